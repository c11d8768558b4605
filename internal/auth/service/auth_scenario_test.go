package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Automobile-System/backend-sub001/internal/auth/domain"
	"github.com/Automobile-System/backend-sub001/internal/auth/dto"
	"github.com/Automobile-System/backend-sub001/internal/auth/service"
	autherror "github.com/Automobile-System/backend-sub001/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scenario struct {
	repo   *memoryRepository
	tokens *service.TokenService
	svc    *service.AuthService
	mu     sync.Mutex
	clock  time.Time
}

func newScenario(t *testing.T) *scenario {
	user := activeUser(t)
	user.Roles = []domain.Role{domain.RoleCustomer, domain.RoleStaff}

	sc := &scenario{
		repo:  newMemoryRepository(user),
		clock: time.Now().Truncate(time.Second),
	}
	sc.tokens = service.NewTokenService(service.NewTokenConfig(testConfig()), service.WithTokenClock(sc.now))
	sc.svc = service.NewAuthService(sc.repo, sc.tokens, testConfig(),
		service.WithLogger(quietLogger()),
		service.WithClock(sc.now),
	)
	return sc
}

func (sc *scenario) now() time.Time {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.clock
}

func (sc *scenario) advance(d time.Duration) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.clock = sc.clock.Add(d)
}

func (sc *scenario) login(password string, rememberMe bool) (*dto.LoginResponse, error) {
	return sc.svc.Login(context.Background(), dto.LoginInput{
		Email:      "user@example.com",
		Password:   password,
		RememberMe: rememberMe,
		IPAddress:  "192.168.1.20",
		UserAgent:  "scenario",
	})
}

func TestScenario_FailureCounterIncrementsByOne(t *testing.T) {
	sc := newScenario(t)

	for want := 1; want <= 4; want++ {
		_, err := sc.login("wrong-password", false)
		assert.Equal(t, autherror.ErrInvalidCredentials, err)

		u := sc.repo.user("user-1")
		assert.Equal(t, want, u.FailedLoginAttempts)
		assert.Nil(t, u.LockedUntil)
	}
}

func TestScenario_FiveFailuresThenCorrectPasswordIsLocked(t *testing.T) {
	sc := newScenario(t)
	start := sc.now()

	for i := 0; i < 5; i++ {
		_, err := sc.login("wrong-password", false)
		assert.Equal(t, autherror.ErrInvalidCredentials, err)
	}

	u := sc.repo.user("user-1")
	require.NotNil(t, u.LockedUntil)
	assert.Equal(t, start.Add(30*time.Minute), *u.LockedUntil)
	assert.Equal(t, 0, u.FailedLoginAttempts)

	resp, err := sc.login("correct-password", false)
	assert.Nil(t, resp)
	var locked *autherror.AccountLockedError
	require.True(t, errors.As(err, &locked))
	assert.Equal(t, 30, locked.MinutesRemaining)

	sc.advance(29*time.Minute + 30*time.Second)
	_, err = sc.login("correct-password", false)
	require.True(t, errors.As(err, &locked))
	assert.Equal(t, 1, locked.MinutesRemaining)

	sc.advance(30 * time.Second)
	resp, err = sc.login("correct-password", false)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)

	u = sc.repo.user("user-1")
	assert.Nil(t, u.LockedUntil)
	assert.Equal(t, 0, u.FailedLoginAttempts)
	require.NotNil(t, u.LastLoginAt)
	assert.Equal(t, "192.168.1.20", u.LastLoginIP)

	attempts, err := sc.svc.ListLoginAttempts(context.Background(), "user@example.com", 0)
	require.NoError(t, err)
	require.Len(t, attempts, 8)
	assert.True(t, attempts[0].Success)
	assert.Equal(t, "account_locked", attempts[1].FailureReason)
	assert.Equal(t, "bad_credentials", attempts[7].FailureReason)
}

func TestScenario_SuccessResetsCounter(t *testing.T) {
	sc := newScenario(t)

	for i := 0; i < 3; i++ {
		_, _ = sc.login("wrong-password", false)
	}
	require.Equal(t, 3, sc.repo.user("user-1").FailedLoginAttempts)

	_, err := sc.login("correct-password", false)
	require.NoError(t, err)
	assert.Equal(t, 0, sc.repo.user("user-1").FailedLoginAttempts)

	// the counter starts over, so four more failures still do not lock
	for i := 0; i < 4; i++ {
		_, _ = sc.login("wrong-password", false)
	}
	assert.Nil(t, sc.repo.user("user-1").LockedUntil)
}

func TestScenario_AccessTokenExpiry(t *testing.T) {
	tests := []struct {
		name       string
		rememberMe bool
		validity   time.Duration
	}{
		{name: "session", rememberMe: false, validity: 15 * time.Minute},
		{name: "remember me", rememberMe: true, validity: 30 * 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := newScenario(t)

			resp, err := sc.login("correct-password", tt.rememberMe)
			require.NoError(t, err)

			claims, err := sc.tokens.ParseAndVerify(resp.AccessToken)
			require.NoError(t, err)
			assert.WithinDuration(t, time.Now().Add(tt.validity), claims.ExpiresAt.Time, 5*time.Second)
			assert.Equal(t, tt.rememberMe, claims.RememberMe)
			assert.Equal(t, "user-1", claims.UserID())
			assert.Equal(t, "user@example.com", claims.Email)
			assert.Equal(t, []string{"CUSTOMER", "STAFF"}, claims.Roles)
		})
	}
}

func TestScenario_RefreshRotation(t *testing.T) {
	sc := newScenario(t)

	login, err := sc.login("correct-password", true)
	require.NoError(t, err)

	rotated, err := sc.svc.Refresh(context.Background(), dto.RefreshInput{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, rotated.RefreshToken)

	old := sc.repo.refreshToken(login.RefreshToken)
	assert.True(t, old.Revoked)
	assert.NotNil(t, old.RevokedAt)
	assert.True(t, sc.repo.refreshToken(rotated.RefreshToken).RememberMe)

	claims, err := sc.tokens.ParseAndVerify(rotated.AccessToken)
	require.NoError(t, err)
	assert.True(t, claims.RememberMe)

	// replaying the rotated-out token issues nothing
	resp, err := sc.svc.Refresh(context.Background(), dto.RefreshInput{RefreshToken: login.RefreshToken})
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, autherror.ErrRefreshToken)
}

func TestScenario_RefreshPicksUpRoleChange(t *testing.T) {
	sc := newScenario(t)

	login, err := sc.login("correct-password", false)
	require.NoError(t, err)

	_, err = sc.svc.UpdateUserRoles(context.Background(), "user-1", []string{"MANAGER"})
	require.NoError(t, err)

	rotated, err := sc.svc.Refresh(context.Background(), dto.RefreshInput{RefreshToken: login.RefreshToken})
	require.NoError(t, err)

	claims, err := sc.tokens.ParseAndVerify(rotated.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, []string{"MANAGER"}, claims.Roles)
}

func TestScenario_RefreshAfterStorageExpiry(t *testing.T) {
	sc := newScenario(t)

	login, err := sc.login("correct-password", false)
	require.NoError(t, err)

	// the row expires before the signed token does
	sc.repo.setRefreshExpiry(login.RefreshToken, sc.now().Add(-time.Second))

	resp, err := sc.svc.Refresh(context.Background(), dto.RefreshInput{RefreshToken: login.RefreshToken})
	assert.Nil(t, resp)
	var rte *autherror.RefreshTokenError
	require.True(t, errors.As(err, &rte))
	assert.Equal(t, autherror.RefreshReasonExpired, rte.Reason)
}

func TestScenario_ConcurrentRefreshHasOneWinner(t *testing.T) {
	sc := newScenario(t)

	login, err := sc.login("correct-password", false)
	require.NoError(t, err)

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sc.svc.Refresh(context.Background(), dto.RefreshInput{RefreshToken: login.RefreshToken})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins int
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, autherror.ErrRefreshToken)
	}
	assert.Equal(t, 1, wins)

	active, err := sc.svc.ListSessions(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestScenario_LogoutIsIdempotent(t *testing.T) {
	sc := newScenario(t)

	login, err := sc.login("correct-password", false)
	require.NoError(t, err)

	input := dto.LogoutInput{RefreshToken: login.RefreshToken}
	require.NoError(t, sc.svc.Logout(context.Background(), input))
	first := sc.repo.refreshToken(login.RefreshToken)
	require.True(t, first.Revoked)

	sc.advance(time.Minute)
	require.NoError(t, sc.svc.Logout(context.Background(), input))
	second := sc.repo.refreshToken(login.RefreshToken)
	assert.Equal(t, first, second)
}

func TestScenario_SessionCap(t *testing.T) {
	sc := newScenario(t)

	var first string
	for i := 0; i < 6; i++ {
		resp, err := sc.login("correct-password", false)
		require.NoError(t, err)
		if i == 0 {
			first = resp.RefreshToken
		}
		sc.advance(time.Second)
	}

	sessions, err := sc.svc.ListSessions(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, sessions, 5)

	_, err = sc.svc.Refresh(context.Background(), dto.RefreshInput{RefreshToken: first})
	var rte *autherror.RefreshTokenError
	require.True(t, errors.As(err, &rte))
	assert.Equal(t, autherror.RefreshReasonNotFound, rte.Reason)
}

func TestScenario_SessionCapIgnoresExpiredRows(t *testing.T) {
	sc := newScenario(t)

	_, err := sc.login("correct-password", false)
	require.NoError(t, err)

	sc.advance(6 * 24 * time.Hour)
	for i := 0; i < 4; i++ {
		_, err := sc.login("correct-password", false)
		require.NoError(t, err)
		sc.advance(time.Second)
	}

	// the first session has expired but was never revoked
	sc.advance(2 * 24 * time.Hour)
	for i := 0; i < 2; i++ {
		_, err := sc.login("correct-password", false)
		require.NoError(t, err)
		sc.advance(time.Second)
	}

	sessions, err := sc.svc.ListSessions(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, sessions, 5)
}

func TestScenario_RefreshExpiryFollowsServiceClock(t *testing.T) {
	sc := newScenario(t)

	login, err := sc.login("correct-password", false)
	require.NoError(t, err)

	stored := sc.repo.refreshToken(login.RefreshToken)
	assert.True(t, stored.ExpiresAt.Equal(sc.now().Add(7*24*time.Hour)))
	assert.True(t, stored.CreatedAt.Equal(sc.now()))
}
