package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Automobile-System/backend-sub001/config"
	"github.com/Automobile-System/backend-sub001/internal/auth/domain"
	"github.com/Automobile-System/backend-sub001/internal/auth/dto"
	apperrors "github.com/Automobile-System/backend-sub001/internal/errors"
	"github.com/Automobile-System/backend-sub001/pkg/constant"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// dummyHash is compared against when the email is unknown so that the
// response time does not reveal whether an account exists.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("automobile-service-dummy"), bcrypt.DefaultCost)

type AuthService struct {
	repo      domain.UserRepository
	tokens    TokenIssuer
	cfg       *config.Config
	log       logrus.FieldLogger
	publisher domain.EventPublisher
	now       func() time.Time
}

type Option func(*AuthService)

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *AuthService) { s.log = l }
}

func WithPublisher(p domain.EventPublisher) Option {
	return func(s *AuthService) { s.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *AuthService) { s.now = now }
}

func NewAuthService(repo domain.UserRepository, tokens TokenIssuer, cfg *config.Config, opts ...Option) *AuthService {
	s := &AuthService{
		repo:   repo,
		tokens: tokens,
		cfg:    cfg,
		log:    logrus.StandardLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AuthService) Register(ctx context.Context, input dto.RegisterInput) (*dto.UserSummary, error) {
	email := normalizeEmail(input.Email)

	existing, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.ErrEmailAlreadyInUse
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hashed),
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Roles:        []domain.Role{domain.RoleCustomer},
		Enabled:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.publish(ctx, domain.SubjectUserRegistered, domain.UserRegisteredEvent{
		UserID:    user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		CreatedAt: user.CreatedAt,
	})

	summary := toUserSummary(user)
	return &summary, nil
}

// Login checks the lockout window before the password, so a locked account is
// rejected even when the password is right.
func (s *AuthService) Login(ctx context.Context, input dto.LoginInput) (*dto.LoginResponse, error) {
	email := normalizeEmail(input.Email)
	now := s.now()
	logger := s.log.WithFields(logrus.Fields{"email": email, "ip": input.IPAddress})

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	if user == nil {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(input.Password))
		s.recordFailure(ctx, logger, email, input, now, constant.FailureUserNotFound)
		logger.Warn("login rejected: unknown email")
		return nil, apperrors.ErrInvalidCredentials
	}

	if user.IsLocked(now) {
		s.recordFailure(ctx, logger, email, input, now, constant.FailureAccountLocked)
		remaining := minutesUntil(now, *user.LockedUntil)
		logger.WithField("minutes_remaining", remaining).Warn("login rejected: account locked")
		return nil, &apperrors.AccountLockedError{Email: email, MinutesRemaining: remaining}
	}

	if !user.Enabled {
		s.recordFailure(ctx, logger, email, input, now, constant.FailureAccountDisabled)
		logger.Warn("login rejected: account disabled")
		return nil, apperrors.ErrAccountDisabled
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)) != nil {
		lockUntil := now.Add(time.Duration(s.cfg.LockoutMinutes) * time.Minute)
		result, err := s.repo.RegisterFailedLogin(ctx, user.ID, s.cfg.LoginMaxAttempts, lockUntil)
		if err != nil {
			return nil, fmt.Errorf("register failed login: %w", err)
		}
		s.recordFailure(ctx, logger, email, input, now, constant.FailureBadCredentials)

		if result.LockedUntil != nil {
			logger.WithField("locked_until", result.LockedUntil).Warn("account locked after repeated failures")
			s.publish(ctx, domain.SubjectAccountLocked, domain.AccountLockedEvent{
				UserID:      user.ID,
				Email:       email,
				IPAddress:   input.IPAddress,
				LockedUntil: *result.LockedUntil,
			})
		} else {
			logger.WithField("failed_attempts", result.FailedAttempts).Warn("login rejected: bad credentials")
		}
		return nil, apperrors.ErrInvalidCredentials
	}

	if err := s.repo.RegisterSuccessfulLogin(ctx, user.ID, now, input.IPAddress); err != nil {
		return nil, fmt.Errorf("register successful login: %w", err)
	}
	if err := s.repo.RecordLoginAttempt(ctx, s.attempt(email, input.IPAddress, input.UserAgent, now, true, "")); err != nil {
		return nil, fmt.Errorf("record login attempt: %w", err)
	}

	accessToken, accessExpiry, err := s.tokens.IssueAccessToken(user.ID, user.Email, user.Roles, input.RememberMe)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.storeRefreshToken(ctx, user.ID, input.RememberMe, input.IPAddress, input.UserAgent)
	if err != nil {
		return nil, err
	}

	logger.WithField("user_id", user.ID).Info("login succeeded")

	return &dto.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    constant.DefaultTokenType,
		ExpiresIn:    secondsUntil(now, accessExpiry),
		User:         toUserSummary(user),
	}, nil
}

// Refresh rotates a refresh token. The stored row is authoritative: a token
// with a valid signature is still rejected when its row is missing, revoked or
// expired, and roles are reloaded from the user record.
func (s *AuthService) Refresh(ctx context.Context, input dto.RefreshInput) (*dto.TokenResponse, error) {
	now := s.now()
	logger := s.log.WithField("ip", input.IPAddress)

	claims, err := s.tokens.ParseRefreshToken(input.RefreshToken)
	if err != nil {
		logger.WithError(err).Warn("refresh rejected: token verification failed")
		return nil, &apperrors.RefreshTokenError{Reason: apperrors.RefreshReasonInvalid}
	}

	stored, err := s.repo.GetRefreshToken(ctx, input.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("load refresh token: %w", err)
	}
	if stored == nil || stored.UserID != claims.UserID() {
		return nil, s.rejectRefresh(logger, apperrors.RefreshReasonNotFound)
	}
	if stored.Revoked {
		return nil, s.rejectRefresh(logger, apperrors.RefreshReasonRevoked)
	}
	if !now.Before(stored.ExpiresAt) {
		return nil, s.rejectRefresh(logger, apperrors.RefreshReasonExpired)
	}

	user, err := s.repo.GetByID(ctx, stored.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil || !user.Enabled {
		return nil, s.rejectRefresh(logger, apperrors.RefreshReasonUserInactive)
	}

	revoked, err := s.repo.RevokeRefreshToken(ctx, stored.ID, now)
	if err != nil {
		return nil, fmt.Errorf("revoke refresh token: %w", err)
	}
	if !revoked {
		// another request rotated this token first
		return nil, s.rejectRefresh(logger, apperrors.RefreshReasonRevoked)
	}

	accessToken, accessExpiry, err := s.tokens.IssueAccessToken(user.ID, user.Email, user.Roles, stored.RememberMe)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.storeRefreshToken(ctx, user.ID, stored.RememberMe, input.IPAddress, input.UserAgent)
	if err != nil {
		// the old token is already revoked, so this session is gone
		logger.WithError(err).WithField("user_id", user.ID).Error("refresh rotation lost session: successor not stored")
		return nil, err
	}

	return &dto.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    constant.DefaultTokenType,
		ExpiresIn:    secondsUntil(now, accessExpiry),
	}, nil
}

// Logout revokes one refresh token, or every token of its owner when
// RevokeAll is set. Unknown and already revoked tokens are not an error.
func (s *AuthService) Logout(ctx context.Context, input dto.LogoutInput) error {
	stored, err := s.repo.GetRefreshToken(ctx, input.RefreshToken)
	if err != nil {
		return fmt.Errorf("load refresh token: %w", err)
	}
	if stored == nil {
		return nil
	}

	now := s.now()
	if input.RevokeAll {
		n, err := s.repo.RevokeAllRefreshTokensByUserID(ctx, stored.UserID, now)
		if err != nil {
			return fmt.Errorf("revoke all refresh tokens: %w", err)
		}
		s.log.WithFields(logrus.Fields{"user_id": stored.UserID, "revoked": n}).Info("logged out of all sessions")
		return nil
	}

	if stored.Revoked {
		return nil
	}
	if _, err := s.repo.RevokeRefreshToken(ctx, stored.ID, now); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

func (s *AuthService) ForceLogoutByUserID(ctx context.Context, userID string) (int64, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	if user == nil {
		return 0, apperrors.ErrUserNotFound
	}

	n, err := s.repo.RevokeAllRefreshTokensByUserID(ctx, userID, s.now())
	if err != nil {
		return 0, fmt.Errorf("revoke all refresh tokens: %w", err)
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "revoked": n}).Info("forced logout")
	return n, nil
}

func (s *AuthService) GetUser(ctx context.Context, userID string) (*dto.UserOutput, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.ErrUserNotFound
	}
	out := toUserOutput(user)
	return &out, nil
}

func (s *AuthService) ListSessions(ctx context.Context, userID string) ([]dto.SessionOutput, error) {
	tokens, err := s.repo.GetActiveRefreshTokens(ctx, userID, s.now())
	if err != nil {
		return nil, err
	}

	sessions := make([]dto.SessionOutput, 0, len(tokens))
	for _, t := range tokens {
		sessions = append(sessions, dto.SessionOutput{
			ID:         t.ID,
			IPAddress:  t.IPAddress,
			UserAgent:  t.UserAgent,
			RememberMe: t.RememberMe,
			CreatedAt:  t.CreatedAt,
			ExpiresAt:  t.ExpiresAt,
		})
	}
	return sessions, nil
}

func (s *AuthService) UnlockAccount(ctx context.Context, userID string) error {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return apperrors.ErrUserNotFound
	}
	if err := s.repo.Unlock(ctx, userID); err != nil {
		return fmt.Errorf("unlock account: %w", err)
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "email": user.Email}).Info("account unlocked")
	return nil
}

// UpdateUserRoles replaces a user's roles. Access tokens already issued keep
// their old roles until they expire; the next refresh picks up the change.
func (s *AuthService) UpdateUserRoles(ctx context.Context, userID string, names []string) (*dto.UserOutput, error) {
	roles, err := domain.ParseRoles(names)
	if err != nil {
		return nil, &apperrors.ValidationError{Field: "roles", Message: err.Error()}
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.ErrUserNotFound
	}

	roles = dedupeRoles(roles)
	if err := s.repo.UpdateRoles(ctx, userID, roles); err != nil {
		return nil, fmt.Errorf("update roles: %w", err)
	}

	user.Roles = roles
	out := toUserOutput(user)
	return &out, nil
}

func (s *AuthService) ListUsers(ctx context.Context) ([]dto.UserOutput, error) {
	users, err := s.repo.GetAllUsers(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]dto.UserOutput, 0, len(users))
	for _, u := range users {
		out = append(out, toUserOutput(u))
	}
	return out, nil
}

// ListLoginAttempts returns the newest attempts first. An empty email lists
// attempts for every account.
func (s *AuthService) ListLoginAttempts(ctx context.Context, email string, limit int) ([]dto.LoginAttemptOutput, error) {
	switch {
	case limit <= 0:
		limit = constant.LoginAttemptsDefaultLimit
	case limit > constant.LoginAttemptsMaxLimit:
		limit = constant.LoginAttemptsMaxLimit
	}

	attempts, err := s.repo.ListLoginAttempts(ctx, normalizeEmail(email), limit)
	if err != nil {
		return nil, err
	}

	out := make([]dto.LoginAttemptOutput, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, dto.LoginAttemptOutput{
			Email:         a.Email,
			IPAddress:     a.IPAddress,
			UserAgent:     a.UserAgent,
			AttemptedAt:   a.AttemptedAt,
			Success:       a.Success,
			FailureReason: a.FailureReason,
		})
	}
	return out, nil
}

func (s *AuthService) storeRefreshToken(ctx context.Context, userID string, rememberMe bool, ip, userAgent string) (string, error) {
	token, expiresAt, err := s.tokens.IssueRefreshToken(userID)
	if err != nil {
		return "", err
	}

	s.enforceSessionCap(ctx, userID)

	rt := &domain.RefreshToken{
		ID:         uuid.NewString(),
		UserID:     userID,
		Token:      token,
		ExpiresAt:  expiresAt,
		RememberMe: rememberMe,
		IPAddress:  ip,
		UserAgent:  userAgent,
		CreatedAt:  s.now(),
	}
	if err := s.repo.StoreRefreshToken(ctx, rt); err != nil {
		return "", fmt.Errorf("store refresh token: %w", err)
	}
	return token, nil
}

// enforceSessionCap drops the oldest active refresh token when the user is at
// the limit. Failures only cost an extra live session, so they are logged.
func (s *AuthService) enforceSessionCap(ctx context.Context, userID string) {
	if s.cfg.MaxActiveRefreshTokens <= 0 {
		return
	}

	count, err := s.repo.GetActiveCountByUserID(ctx, userID, s.now())
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("failed to count active refresh tokens")
		return
	}
	if count < s.cfg.MaxActiveRefreshTokens {
		return
	}
	if err := s.repo.DeleteOldestByUserID(ctx, userID, s.now()); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("failed to delete oldest refresh token")
	}
}

func (s *AuthService) recordFailure(ctx context.Context, logger logrus.FieldLogger, email string, input dto.LoginInput, at time.Time, reason string) {
	if err := s.repo.RecordLoginAttempt(ctx, s.attempt(email, input.IPAddress, input.UserAgent, at, false, reason)); err != nil {
		logger.WithError(err).Error("failed to record login attempt")
	}
}

func (s *AuthService) attempt(email, ip, userAgent string, at time.Time, success bool, reason string) *domain.LoginAttempt {
	return &domain.LoginAttempt{
		ID:            uuid.NewString(),
		Email:         email,
		IPAddress:     ip,
		UserAgent:     userAgent,
		AttemptedAt:   at,
		Success:       success,
		FailureReason: reason,
	}
}

func (s *AuthService) rejectRefresh(logger logrus.FieldLogger, reason string) error {
	logger.WithField("reason", reason).Warn("refresh rejected")
	return &apperrors.RefreshTokenError{Reason: reason}
}

func (s *AuthService) publish(ctx context.Context, subject string, event any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, subject, event); err != nil {
		s.log.WithError(err).WithField("subject", subject).Warn("failed to publish event")
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// minutesUntil rounds up and never reports less than one minute.
func minutesUntil(now, until time.Time) int {
	m := int(math.Ceil(until.Sub(now).Minutes()))
	if m < 1 {
		return 1
	}
	return m
}

func secondsUntil(now, until time.Time) int64 {
	return int64(until.Sub(now) / time.Second)
}

func dedupeRoles(roles []domain.Role) []domain.Role {
	seen := make(map[domain.Role]bool, len(roles))
	out := make([]domain.Role, 0, len(roles))
	for _, r := range roles {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

func toUserSummary(u *domain.User) dto.UserSummary {
	return dto.UserSummary{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Roles:     domain.RoleNames(u.Roles),
	}
}

func toUserOutput(u *domain.User) dto.UserOutput {
	return dto.UserOutput{
		ID:                  u.ID,
		Email:               u.Email,
		FirstName:           u.FirstName,
		LastName:            u.LastName,
		Roles:               domain.RoleNames(u.Roles),
		Enabled:             u.Enabled,
		FailedLoginAttempts: u.FailedLoginAttempts,
		LockedUntil:         u.LockedUntil,
		LastLoginAt:         u.LastLoginAt,
		LastLoginIP:         u.LastLoginIP,
		CreatedAt:           u.CreatedAt,
		UpdatedAt:           u.UpdatedAt,
	}
}
