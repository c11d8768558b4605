package service

//go:generate mockgen -destination=../../mocks/mock_token_issuer.go -package=mocks github.com/Automobile-System/backend-sub001/internal/auth/service TokenIssuer

import (
	"errors"
	"fmt"
	"time"

	"github.com/Automobile-System/backend-sub001/config"
	"github.com/Automobile-System/backend-sub001/internal/auth/domain"
	apperrors "github.com/Automobile-System/backend-sub001/internal/errors"
	"github.com/Automobile-System/backend-sub001/pkg/constant"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type TokenIssuer interface {
	IssueAccessToken(userID, email string, roles []domain.Role, rememberMe bool) (string, time.Time, error)
	IssueRefreshToken(userID string) (string, time.Time, error)
	ParseAndVerify(tokenString string) (*AccessClaims, error)
	ParseRefreshToken(tokenString string) (*RefreshClaims, error)
}

// TokenConfig is fixed at startup. The secret and algorithm never change for
// the life of a TokenService.
type TokenConfig struct {
	Secret             string
	Issuer             string
	AccessValidity     time.Duration
	RememberMeValidity time.Duration
	RefreshValidity    time.Duration
}

func NewTokenConfig(cfg *config.Config) TokenConfig {
	return TokenConfig{
		Secret:             cfg.JWTSecret,
		Issuer:             cfg.JWTIssuer,
		AccessValidity:     time.Duration(cfg.AccessExpiryMin) * time.Minute,
		RememberMeValidity: time.Duration(cfg.RememberMeExpiryMin) * time.Minute,
		RefreshValidity:    time.Duration(cfg.RefreshExpiryMin) * time.Minute,
	}
}

type AccessClaims struct {
	jwt.RegisteredClaims
	Email      string   `json:"email"`
	Roles      []string `json:"roles"`
	RememberMe bool     `json:"rememberMe"`
	Type       string   `json:"typ"`
}

func (c *AccessClaims) UserID() string {
	return c.Subject
}

// RefreshClaims carry no role or email claims. Roles are reloaded from storage
// on every refresh.
type RefreshClaims struct {
	jwt.RegisteredClaims
	Type string `json:"typ"`
}

func (c *RefreshClaims) UserID() string {
	return c.Subject
}

type TokenService struct {
	cfg    TokenConfig
	secret []byte
	now    func() time.Time
}

type TokenOption func(*TokenService)

// WithTokenClock sets the clock used for issue and expiry times. Pass the same
// clock as the AuthService so stored expiries and token expiries agree.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(ts *TokenService) { ts.now = now }
}

func NewTokenService(cfg TokenConfig, opts ...TokenOption) *TokenService {
	ts := &TokenService{
		cfg:    cfg,
		secret: []byte(cfg.Secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(ts)
	}
	return ts
}

func (ts *TokenService) AccessValidity(rememberMe bool) time.Duration {
	if rememberMe {
		return ts.cfg.RememberMeValidity
	}
	return ts.cfg.AccessValidity
}

func (ts *TokenService) IssueAccessToken(userID, email string, roles []domain.Role, rememberMe bool) (string, time.Time, error) {
	now := ts.now()
	expiresAt := now.Add(ts.AccessValidity(rememberMe))

	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    ts.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:      email,
		Roles:      domain.RoleNames(roles),
		RememberMe: rememberMe,
		Type:       constant.TokenTypeAccess,
	}

	signed, err := ts.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (ts *TokenService) IssueRefreshToken(userID string) (string, time.Time, error) {
	now := ts.now()
	expiresAt := now.Add(ts.cfg.RefreshValidity)

	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    ts.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Type: constant.TokenTypeRefresh,
	}

	signed, err := ts.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseAndVerify checks signature, expiry and token type of an access token.
// Every failure is an *errors.InvalidTokenError carrying the reason.
func (ts *TokenService) ParseAndVerify(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := ts.parse(tokenString, claims); err != nil {
		return nil, err
	}

	if claims.Type != constant.TokenTypeAccess {
		return nil, &apperrors.InvalidTokenError{Reason: apperrors.TokenReasonWrongType}
	}
	if claims.Subject == "" {
		return nil, &apperrors.InvalidTokenError{Reason: apperrors.TokenReasonClaims, Err: errors.New("missing subject")}
	}
	if _, err := domain.ParseRoles(claims.Roles); err != nil {
		return nil, &apperrors.InvalidTokenError{Reason: apperrors.TokenReasonClaims, Err: err}
	}
	return claims, nil
}

func (ts *TokenService) ParseRefreshToken(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := ts.parse(tokenString, claims); err != nil {
		return nil, err
	}

	if claims.Type != constant.TokenTypeRefresh {
		return nil, &apperrors.InvalidTokenError{Reason: apperrors.TokenReasonWrongType}
	}
	if claims.Subject == "" {
		return nil, &apperrors.InvalidTokenError{Reason: apperrors.TokenReasonClaims, Err: errors.New("missing subject")}
	}
	return claims, nil
}

func (ts *TokenService) sign(claims jwt.Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(ts.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (ts *TokenService) parse(tokenString string, claims jwt.Claims) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ts.now),
	}
	if ts.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(ts.cfg.Issuer))
	}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return ts.secret, nil
	}, opts...)
	if err != nil {
		return &apperrors.InvalidTokenError{Reason: tokenFailureReason(err), Err: err}
	}
	return nil
}

func tokenFailureReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperrors.TokenReasonExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return apperrors.TokenReasonSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return apperrors.TokenReasonMalformed
	default:
		return apperrors.TokenReasonClaims
	}
}
