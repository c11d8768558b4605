package service_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Automobile-System/backend-sub001/internal/auth/domain"
)

// memoryRepository mirrors the row-level semantics of the Postgres repository
// closely enough for multi-step login and rotation scenarios.
type memoryRepository struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	tokens   map[string]*domain.RefreshToken
	attempts []*domain.LoginAttempt
}

func newMemoryRepository(users ...*domain.User) *memoryRepository {
	r := &memoryRepository{
		users:  make(map[string]*domain.User),
		tokens: make(map[string]*domain.RefreshToken),
	}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *memoryRepository) user(id string) domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.users[id]
}

func (r *memoryRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memoryRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *memoryRepository) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *memoryRepository) GetAllUsers(_ context.Context) ([]*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.User, 0, len(r.users))
	for _, u := range r.users {
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memoryRepository) UpdateRoles(_ context.Context, userID string, roles []domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[userID].Roles = roles
	return nil
}

func (r *memoryRepository) RegisterFailedLogin(_ context.Context, userID string, threshold int, lockUntil time.Time) (*domain.FailedLoginResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.users[userID]
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= threshold {
		u.FailedLoginAttempts = 0
		until := lockUntil
		u.LockedUntil = &until
		return &domain.FailedLoginResult{FailedAttempts: 0, LockedUntil: &until}, nil
	}
	return &domain.FailedLoginResult{FailedAttempts: u.FailedLoginAttempts}, nil
}

func (r *memoryRepository) RegisterSuccessfulLogin(_ context.Context, userID string, at time.Time, ip string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.users[userID]
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	u.LastLoginAt = &at
	u.LastLoginIP = ip
	return nil
}

func (r *memoryRepository) Unlock(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.users[userID]
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	return nil
}

func (r *memoryRepository) RecordLoginAttempt(_ context.Context, attempt *domain.LoginAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, attempt)
	return nil
}

func (r *memoryRepository) ListLoginAttempts(_ context.Context, email string, limit int) ([]*domain.LoginAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.LoginAttempt
	for i := len(r.attempts) - 1; i >= 0 && len(out) < limit; i-- {
		if email == "" || r.attempts[i].Email == email {
			out = append(out, r.attempts[i])
		}
	}
	return out, nil
}

func (r *memoryRepository) StoreRefreshToken(_ context.Context, rt *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rt
	r.tokens[rt.Token] = &cp
	return nil
}

func (r *memoryRepository) GetRefreshToken(_ context.Context, token string) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.tokens[token]
	if !ok {
		return nil, nil
	}
	cp := *rt
	return &cp, nil
}

func (r *memoryRepository) RevokeRefreshToken(_ context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rt := range r.tokens {
		if rt.ID == id {
			if rt.Revoked {
				return false, nil
			}
			rt.Revoked = true
			rt.RevokedAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepository) RevokeAllRefreshTokensByUserID(_ context.Context, userID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, rt := range r.tokens {
		if rt.UserID == userID && !rt.Revoked {
			rt.Revoked = true
			rt.RevokedAt = &at
			n++
		}
	}
	return n, nil
}

func (r *memoryRepository) GetActiveRefreshTokens(_ context.Context, userID string, now time.Time) ([]*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.RefreshToken
	for _, rt := range r.tokens {
		if rt.UserID == userID && rt.IsValid(now) {
			cp := *rt
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryRepository) GetActiveCountByUserID(ctx context.Context, userID string, now time.Time) (int, error) {
	active, _ := r.GetActiveRefreshTokens(ctx, userID, now)
	return len(active), nil
}

func (r *memoryRepository) DeleteOldestByUserID(_ context.Context, userID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var oldest *domain.RefreshToken
	for _, rt := range r.tokens {
		if rt.UserID != userID || !rt.IsValid(now) {
			continue
		}
		if oldest == nil || rt.CreatedAt.Before(oldest.CreatedAt) {
			oldest = rt
		}
	}
	if oldest != nil {
		delete(r.tokens, oldest.Token)
	}
	return nil
}

func (r *memoryRepository) setRefreshExpiry(token string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token].ExpiresAt = at
}

func (r *memoryRepository) refreshToken(token string) domain.RefreshToken {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.tokens[token]
}

var _ domain.UserRepository = (*memoryRepository)(nil)
