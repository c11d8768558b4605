package service

import (
	"errors"
	"testing"
	"time"

	"github.com/Automobile-System/backend-sub001/config"
	"github.com/Automobile-System/backend-sub001/internal/auth/domain"
	apperrors "github.com/Automobile-System/backend-sub001/internal/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, time.January, 10, 12, 0, 0, 0, time.UTC)

func testTokenConfig() TokenConfig {
	return TokenConfig{
		Secret:             "test-signing-secret-with-enough-entropy",
		Issuer:             "automobile-service",
		AccessValidity:     15 * time.Minute,
		RememberMeValidity: 30 * 24 * time.Hour,
		RefreshValidity:    7 * 24 * time.Hour,
	}
}

func newTestTokenService(now time.Time) *TokenService {
	ts := NewTokenService(testTokenConfig())
	ts.now = func() time.Time { return now }
	return ts
}

func reasonOf(t *testing.T, err error) string {
	t.Helper()
	var ite *apperrors.InvalidTokenError
	require.True(t, errors.As(err, &ite), "expected InvalidTokenError, got %v", err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
	return ite.Reason
}

func TestNewTokenConfig(t *testing.T) {
	cfg := &config.Config{
		JWTSecret:           "secret",
		JWTIssuer:           "issuer",
		AccessExpiryMin:     15,
		RememberMeExpiryMin: 43200,
		RefreshExpiryMin:    10080,
	}

	tc := NewTokenConfig(cfg)

	assert.Equal(t, "secret", tc.Secret)
	assert.Equal(t, "issuer", tc.Issuer)
	assert.Equal(t, 15*time.Minute, tc.AccessValidity)
	assert.Equal(t, 30*24*time.Hour, tc.RememberMeValidity)
	assert.Equal(t, 7*24*time.Hour, tc.RefreshValidity)
}

func TestTokenService_IssueAccessToken(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		email      string
		roles      []domain.Role
		rememberMe bool
		wantExpiry time.Time
	}{
		{
			name:       "customer without remember me",
			userID:     "user-123",
			email:      "test@example.com",
			roles:      []domain.Role{domain.RoleCustomer},
			wantExpiry: fixedNow.Add(15 * time.Minute),
		},
		{
			name:       "manager with remember me",
			userID:     "manager-456",
			email:      "manager@example.com",
			roles:      []domain.Role{domain.RoleStaff, domain.RoleManager},
			rememberMe: true,
			wantExpiry: fixedNow.Add(30 * 24 * time.Hour),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestTokenService(fixedNow)

			token, expiresAt, err := ts.IssueAccessToken(tt.userID, tt.email, tt.roles, tt.rememberMe)
			require.NoError(t, err)
			assert.NotEmpty(t, token)
			assert.Equal(t, tt.wantExpiry, expiresAt)

			claims, err := ts.ParseAndVerify(token)
			require.NoError(t, err)
			assert.Equal(t, tt.userID, claims.UserID())
			assert.Equal(t, tt.email, claims.Email)
			assert.Equal(t, domain.RoleNames(tt.roles), claims.Roles)
			assert.Equal(t, tt.rememberMe, claims.RememberMe)
			assert.True(t, tt.wantExpiry.Equal(claims.ExpiresAt.Time))
			assert.True(t, fixedNow.Equal(claims.IssuedAt.Time))

			parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
			require.NoError(t, err)
			assert.Equal(t, "HS512", parsed.Method.Alg())
		})
	}
}

func TestTokenService_IssueRefreshToken(t *testing.T) {
	ts := newTestTokenService(fixedNow)

	first, expiresAt, err := ts.IssueRefreshToken("user-123")
	require.NoError(t, err)
	assert.Equal(t, fixedNow.Add(7*24*time.Hour), expiresAt)

	second, _, err := ts.IssueRefreshToken("user-123")
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "refresh tokens issued in the same second must differ")

	claims, err := ts.ParseRefreshToken(first)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.UserID())
	assert.NotEmpty(t, claims.ID)

	// refresh tokens carry no role or email claims
	raw := jwt.MapClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(first, raw)
	require.NoError(t, err)
	assert.NotContains(t, raw, "roles")
	assert.NotContains(t, raw, "email")
}

func TestTokenService_ParseAndVerify_Failures(t *testing.T) {
	ts := newTestTokenService(fixedNow)

	refresh, _, err := ts.IssueRefreshToken("user-123")
	require.NoError(t, err)

	otherSecret := NewTokenService(TokenConfig{
		Secret:         "a-completely-different-secret",
		Issuer:         "automobile-service",
		AccessValidity: 15 * time.Minute,
	})
	otherSecret.now = ts.now
	forged, _, err := otherSecret.IssueAccessToken("user-123", "test@example.com", []domain.Role{domain.RoleAdmin}, false)
	require.NoError(t, err)

	past := newTestTokenService(fixedNow.Add(-time.Hour))
	expired, _, err := past.IssueAccessToken("user-123", "test@example.com", []domain.Role{domain.RoleCustomer}, false)
	require.NoError(t, err)

	hs256, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			Issuer:    "automobile-service",
			ExpiresAt: jwt.NewNumericDate(fixedNow.Add(time.Hour)),
		},
		Type: "access",
	}).SignedString([]byte(testTokenConfig().Secret))
	require.NoError(t, err)

	foreignIssuer := NewTokenService(TokenConfig{
		Secret:         testTokenConfig().Secret,
		Issuer:         "someone-else",
		AccessValidity: 15 * time.Minute,
	})
	foreignIssuer.now = ts.now
	foreign, _, err := foreignIssuer.IssueAccessToken("user-123", "test@example.com", nil, false)
	require.NoError(t, err)

	unknownRole, err := jwt.NewWithClaims(jwt.SigningMethodHS512, AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			Issuer:    "automobile-service",
			ExpiresAt: jwt.NewNumericDate(fixedNow.Add(time.Hour)),
		},
		Roles: []string{"OWNER"},
		Type:  "access",
	}).SignedString([]byte(testTokenConfig().Secret))
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		reason string
	}{
		{name: "malformed", token: "not-a-jwt", reason: apperrors.TokenReasonMalformed},
		{name: "empty", token: "", reason: apperrors.TokenReasonMalformed},
		{name: "wrong secret", token: forged, reason: apperrors.TokenReasonSignature},
		{name: "wrong algorithm", token: hs256, reason: apperrors.TokenReasonSignature},
		{name: "expired", token: expired, reason: apperrors.TokenReasonExpired},
		{name: "refresh token used as access token", token: refresh, reason: apperrors.TokenReasonWrongType},
		{name: "foreign issuer", token: foreign, reason: apperrors.TokenReasonClaims},
		{name: "unknown role", token: unknownRole, reason: apperrors.TokenReasonClaims},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ts.ParseAndVerify(tt.token)
			assert.Nil(t, claims)
			require.Error(t, err)
			assert.Equal(t, tt.reason, reasonOf(t, err))
		})
	}
}

func TestTokenService_ParseRefreshToken_RejectsAccessToken(t *testing.T) {
	ts := newTestTokenService(fixedNow)

	access, _, err := ts.IssueAccessToken("user-123", "test@example.com", []domain.Role{domain.RoleCustomer}, false)
	require.NoError(t, err)

	claims, err := ts.ParseRefreshToken(access)
	assert.Nil(t, claims)
	assert.Equal(t, apperrors.TokenReasonWrongType, reasonOf(t, err))
}

func TestTokenService_ParseRefreshToken_Expired(t *testing.T) {
	issuer := newTestTokenService(fixedNow.Add(-8 * 24 * time.Hour))
	refresh, _, err := issuer.IssueRefreshToken("user-123")
	require.NoError(t, err)

	_, err = newTestTokenService(fixedNow).ParseRefreshToken(refresh)
	assert.Equal(t, apperrors.TokenReasonExpired, reasonOf(t, err))
}
