package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Automobile-System/backend-sub001/internal/auth/domain"
	"github.com/Automobile-System/backend-sub001/internal/auth/service"
	apperrors "github.com/Automobile-System/backend-sub001/internal/errors"
	"github.com/Automobile-System/backend-sub001/pkg/constant"
	"github.com/sirupsen/logrus"
)

// AttrAccessToken is the session attribute holding a token verified at handshake.
const AttrAccessToken = "access_token"

type TokenVerifier interface {
	ParseAndVerify(token string) (*service.AccessClaims, error)
}

// UserLoader is the slice of the credential store the channel needs.
type UserLoader interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// Attributes live for the lifetime of one socket session.
type Attributes map[string]string

// Principal is the identity bound to a channel session. A nil Principal is an
// anonymous session.
type Principal struct {
	UserID string
	Email  string
	Roles  []domain.Role
}

type ChannelAuthenticator struct {
	verifier       TokenVerifier
	users          UserLoader
	allowAnonymous bool
	log            logrus.FieldLogger
}

func NewChannelAuthenticator(verifier TokenVerifier, users UserLoader, allowAnonymous bool, logger logrus.FieldLogger) *ChannelAuthenticator {
	return &ChannelAuthenticator{
		verifier:       verifier,
		users:          users,
		allowAnonymous: allowAnonymous,
		log:            logger,
	}
}

// Handshake runs before the upgrade. A valid access_token cookie is stashed in
// the returned attributes; an invalid one is dropped and the upgrade proceeds.
func (a *ChannelAuthenticator) Handshake(r *http.Request) Attributes {
	attrs := Attributes{}

	cookie, err := r.Cookie(constant.AccessTokenCookieName)
	if err != nil || cookie.Value == "" {
		return attrs
	}
	if _, err := a.verifier.ParseAndVerify(cookie.Value); err != nil {
		a.logFailure(err, "dropped handshake cookie")
		return attrs
	}

	attrs[AttrAccessToken] = cookie.Value
	return attrs
}

// Connect resolves the principal for a CONNECT frame. The Authorization header
// wins over the handshake attribute. The token is verified again and roles are
// loaded from storage. With anonymous sessions allowed, a missing or bad token
// yields (nil, nil); otherwise it yields ErrUnauthenticated.
func (a *ChannelAuthenticator) Connect(ctx context.Context, headers map[string]string, attrs Attributes) (*Principal, error) {
	token := bearerFromHeaders(headers)
	if token == "" {
		token = attrs[AttrAccessToken]
	}
	if token == "" {
		return a.anonymous()
	}

	claims, err := a.verifier.ParseAndVerify(token)
	if err != nil {
		a.logFailure(err, "connect with invalid token")
		return a.anonymous()
	}

	user, err := a.users.GetByID(ctx, claims.UserID())
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil || !user.Enabled {
		a.log.WithField("user_id", claims.UserID()).Warn("connect for inactive user")
		return a.anonymous()
	}

	return &Principal{UserID: user.ID, Email: user.Email, Roles: user.Roles}, nil
}

func (a *ChannelAuthenticator) anonymous() (*Principal, error) {
	if a.allowAnonymous {
		return nil, nil
	}
	return nil, apperrors.ErrUnauthenticated
}

func (a *ChannelAuthenticator) logFailure(err error, msg string) {
	entry := a.log.WithError(err)
	var ite *apperrors.InvalidTokenError
	if errors.As(err, &ite) {
		entry = entry.WithField("reason", ite.Reason)
	}
	entry.Warn(msg)
}

func bearerFromHeaders(headers map[string]string) string {
	var raw string
	for k, v := range headers {
		if strings.EqualFold(k, HeaderAuthorization) {
			raw = v
			break
		}
	}
	scheme, token, found := strings.Cut(raw, " ")
	if !found || !strings.EqualFold(scheme, constant.DefaultTokenType) {
		return ""
	}
	return strings.TrimSpace(token)
}
