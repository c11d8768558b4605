package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/Automobile-System/backend-sub001/internal/auth/domain"
	"github.com/Automobile-System/backend-sub001/internal/auth/service"
	apperrors "github.com/Automobile-System/backend-sub001/internal/errors"
	"github.com/Automobile-System/backend-sub001/pkg/constant"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type TokenVerifier interface {
	ParseAndVerify(tokenString string) (*service.AccessClaims, error)
}

type Limiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

// Principal is the caller identity taken from a verified access token.
type Principal struct {
	UserID     string
	Email      string
	Roles      []domain.Role
	RememberMe bool
}

func (p *Principal) HasAnyRole(roles ...domain.Role) bool {
	return domain.HasAnyRole(p.Roles, roles...)
}

func PrincipalFromClaims(claims *service.AccessClaims) (*Principal, error) {
	roles, err := domain.ParseRoles(claims.Roles)
	if err != nil {
		return nil, &apperrors.InvalidTokenError{Reason: apperrors.TokenReasonClaims, Err: err}
	}
	return &Principal{
		UserID:     claims.UserID(),
		Email:      claims.Email,
		Roles:      roles,
		RememberMe: claims.RememberMe,
	}, nil
}

type principalKey struct{}

const principalLocal = "principal"

// PrincipalFromContext returns the principal bound by Authenticate, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

func principal(c *fiber.Ctx) (*Principal, bool) {
	p, ok := c.Locals(principalLocal).(*Principal)
	return p, ok && p != nil
}

// Authenticate verifies a bearer token when one is present. Requests without
// an Authorization header pass through anonymously; a bad header or token ends
// the request with 401. Verification is local and touches no storage.
func Authenticate(verifier TokenVerifier, logger logrus.FieldLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return c.Next()
		}

		token, ok := bearerToken(header)
		if !ok {
			logger.WithFields(logrus.Fields{"ip": c.IP(), "reason": apperrors.TokenReasonMalformed}).Warn("rejected authorization header")
			return &apperrors.InvalidTokenError{Reason: apperrors.TokenReasonMalformed}
		}

		claims, err := verifier.ParseAndVerify(token)
		if err != nil {
			logTokenFailure(logger, c, err)
			return err
		}

		p, err := PrincipalFromClaims(claims)
		if err != nil {
			logTokenFailure(logger, c, err)
			return err
		}

		c.Locals(principalLocal, p)
		c.SetUserContext(context.WithValue(c.UserContext(), principalKey{}, p))
		return c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, constant.DefaultTokenType) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func logTokenFailure(logger logrus.FieldLogger, c *fiber.Ctx, err error) {
	entry := logger.WithFields(logrus.Fields{"ip": c.IP(), "path": c.Path()})
	var ite *apperrors.InvalidTokenError
	if errors.As(err, &ite) {
		entry = entry.WithField("reason", ite.Reason)
	}
	entry.Warn("rejected access token")
}

// AccessRule grants a path prefix to a set of roles. An empty role list admits
// any authenticated caller.
type AccessRule struct {
	Prefix string
	Roles  []domain.Role
}

type AccessPolicy []AccessRule

func DefaultAccessPolicy() AccessPolicy {
	return AccessPolicy{
		{Prefix: "/api/v1/admin", Roles: []domain.Role{domain.RoleAdmin}},
		{Prefix: "/api/v1/manage", Roles: []domain.Role{domain.RoleManager, domain.RoleAdmin}},
		{Prefix: "/api/v1/auth/me"},
		{Prefix: "/api/v1/auth/sessions"},
	}
}

// Match returns the rule with the longest prefix covering path. Prefixes match
// whole path segments only and ignore case.
func (p AccessPolicy) Match(path string) (AccessRule, bool) {
	var (
		best  AccessRule
		found bool
	)
	path = strings.ToLower(path)
	for _, rule := range p {
		prefix := strings.ToLower(strings.TrimSuffix(rule.Prefix, "/"))
		if path != prefix && !strings.HasPrefix(path, prefix+"/") {
			continue
		}
		if !found || len(prefix) > len(strings.TrimSuffix(best.Prefix, "/")) {
			best, found = rule, true
		}
	}
	return best, found
}

// Authorize enforces the policy on the principal bound by Authenticate. Paths
// without a rule are public.
func Authorize(policy AccessPolicy) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rule, ok := policy.Match(c.Path())
		if !ok {
			return c.Next()
		}

		p, ok := principal(c)
		if !ok {
			return apperrors.ErrUnauthenticated
		}
		if len(rule.Roles) > 0 && !p.HasAnyRole(rule.Roles...) {
			return apperrors.ErrForbidden
		}
		return c.Next()
	}
}

// RequireRoles guards a route group on its own, independent of the policy
// table.
func RequireRoles(roles ...domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := principal(c)
		if !ok {
			return apperrors.ErrUnauthenticated
		}
		if !p.HasAnyRole(roles...) {
			return apperrors.ErrForbidden
		}
		return c.Next()
	}
}

// RateLimit counts requests per route and client IP. Limiter errors let the
// request through.
func RateLimit(limiter Limiter, logger logrus.FieldLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Path() + ":" + c.IP()

		allowed, retryAfter, err := limiter.Allow(c.UserContext(), key)
		if err != nil {
			logger.WithError(err).Warn("rate limiter unavailable")
			return c.Next()
		}
		if !allowed {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(retryAfter.Round(time.Second)/time.Second)))
			logger.WithFields(logrus.Fields{"ip": c.IP(), "path": c.Path()}).Warn("rate limit exceeded")
			return apperrors.ErrTooManyRequests
		}
		return c.Next()
	}
}
