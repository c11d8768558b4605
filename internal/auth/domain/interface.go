package domain

//go:generate mockgen -destination=../../mocks/mock_user_repository.go -package=mocks github.com/Automobile-System/backend-sub001/internal/auth/domain UserRepository,EventPublisher

import (
	"context"
	"time"
)

type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, user *User) error
	GetAllUsers(ctx context.Context) ([]*User, error)
	UpdateRoles(ctx context.Context, userID string, roles []Role) error

	// RegisterFailedLogin increments the failure counter in a single statement.
	// When the new count reaches threshold the account is locked until lockUntil
	// and the counter restarts at zero.
	RegisterFailedLogin(ctx context.Context, userID string, threshold int, lockUntil time.Time) (*FailedLoginResult, error)
	RegisterSuccessfulLogin(ctx context.Context, userID string, at time.Time, ip string) error
	Unlock(ctx context.Context, userID string) error

	RecordLoginAttempt(ctx context.Context, attempt *LoginAttempt) error
	ListLoginAttempts(ctx context.Context, email string, limit int) ([]*LoginAttempt, error)

	StoreRefreshToken(ctx context.Context, rt *RefreshToken) error
	GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error)
	// RevokeRefreshToken flips an unrevoked row to revoked. It reports false when
	// the row was already revoked, so only one concurrent caller wins a rotation.
	RevokeRefreshToken(ctx context.Context, id string, at time.Time) (bool, error)
	RevokeAllRefreshTokensByUserID(ctx context.Context, userID string, at time.Time) (int64, error)
	GetActiveRefreshTokens(ctx context.Context, userID string, now time.Time) ([]*RefreshToken, error)
	GetActiveCountByUserID(ctx context.Context, userID string, now time.Time) (int, error)
	// DeleteOldestByUserID removes the oldest token still active at now.
	DeleteOldestByUserID(ctx context.Context, userID string, now time.Time) error
}

// EventPublisher fans auth events out to the notification side of the system.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, event any) error
}
