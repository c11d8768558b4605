package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Automobile-System/backend-sub001/internal/auth/domain"
	apperrors "github.com/Automobile-System/backend-sub001/internal/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// DBinterface is satisfied by *pgxpool.Pool and by pgxmock pools in tests.
type DBinterface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

type PostgresRepository struct {
	db DBinterface
}

func NewPostgresRepository(db DBinterface) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

const userColumns = `id, email, password_hash, first_name, last_name, roles, enabled,
	failed_login_attempts, locked_until, last_login_at, COALESCE(last_login_ip, ''),
	created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user  domain.User
		roles []string
	)
	err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.FirstName, &user.LastName, &roles, &user.Enabled,
		&user.FailedLoginAttempts, &user.LockedUntil, &user.LastLoginAt, &user.LastLoginIP,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.Roles, err = domain.ParseRoles(roles)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", user.ID, err)
	}
	return &user, nil
}

// GetByEmail returns nil, nil when no user has the email.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 LIMIT 1`

	user, err := scanUser(r.db.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

// GetByID returns nil, nil when the user does not exist.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) Create(ctx context.Context, user *domain.User) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, first_name, last_name, roles, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName,
		domain.RoleNames(user.Roles), user.Enabled, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperrors.ErrEmailAlreadyInUse
		}
		return err
	}
	return nil
}

func (r *PostgresRepository) GetAllUsers(ctx context.Context) ([]*domain.User, error) {
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *PostgresRepository) UpdateRoles(ctx context.Context, userID string, roles []domain.Role) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET roles = $2, updated_at = now() WHERE id = $1`,
		userID, domain.RoleNames(roles))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

// RegisterFailedLogin increments and compares in one statement, so concurrent
// failures cannot overwrite each other's count. A returned count of zero means
// this failure reached the threshold and applied the lock.
func (r *PostgresRepository) RegisterFailedLogin(ctx context.Context, userID string, threshold int, lockUntil time.Time) (*domain.FailedLoginResult, error) {
	query := `
		UPDATE users SET
			failed_login_attempts = CASE WHEN failed_login_attempts + 1 >= $2 THEN 0 ELSE failed_login_attempts + 1 END,
			locked_until = CASE WHEN failed_login_attempts + 1 >= $2 THEN $3 ELSE locked_until END,
			updated_at = now()
		WHERE id = $1
		RETURNING failed_login_attempts, locked_until`

	var (
		attempts    int
		lockedUntil *time.Time
	)
	err := r.db.QueryRow(ctx, query, userID, threshold, lockUntil).Scan(&attempts, &lockedUntil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to register failed login: %w", err)
	}

	result := &domain.FailedLoginResult{FailedAttempts: attempts}
	if attempts == 0 {
		result.LockedUntil = lockedUntil
	}
	return result, nil
}

func (r *PostgresRepository) RegisterSuccessfulLogin(ctx context.Context, userID string, at time.Time, ip string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE users SET
			failed_login_attempts = 0,
			locked_until = NULL,
			last_login_at = $2,
			last_login_ip = $3,
			updated_at = now()
		WHERE id = $1
	`, userID, at, ip)
	return err
}

func (r *PostgresRepository) Unlock(ctx context.Context, userID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET failed_login_attempts = 0, locked_until = NULL, updated_at = now() WHERE id = $1`,
		userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

func (r *PostgresRepository) RecordLoginAttempt(ctx context.Context, a *domain.LoginAttempt) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO login_attempts (id, email, ip_address, user_agent, attempted_at, success, failure_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.Email, a.IPAddress, a.UserAgent, a.AttemptedAt, a.Success, a.FailureReason)
	return err
}

// ListLoginAttempts returns the newest attempts first. An empty email matches
// every account.
func (r *PostgresRepository) ListLoginAttempts(ctx context.Context, email string, limit int) ([]*domain.LoginAttempt, error) {
	const columns = `id, email, ip_address, user_agent, attempted_at, success, failure_reason`

	var (
		rows pgx.Rows
		err  error
	)
	if email == "" {
		rows, err = r.db.Query(ctx,
			`SELECT `+columns+` FROM login_attempts ORDER BY attempted_at DESC LIMIT $1`, limit)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+columns+` FROM login_attempts WHERE email = $1 ORDER BY attempted_at DESC LIMIT $2`, email, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list login attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*domain.LoginAttempt
	for rows.Next() {
		var a domain.LoginAttempt
		if err := rows.Scan(&a.ID, &a.Email, &a.IPAddress, &a.UserAgent, &a.AttemptedAt, &a.Success, &a.FailureReason); err != nil {
			return nil, fmt.Errorf("failed to scan login attempt: %w", err)
		}
		attempts = append(attempts, &a)
	}
	return attempts, rows.Err()
}

func (r *PostgresRepository) StoreRefreshToken(ctx context.Context, rt *domain.RefreshToken) error {
	query := `INSERT INTO refresh_tokens (id, user_id, token, expires_at, revoked, remember_me, ip_address, user_agent, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.Exec(ctx, query,
		rt.ID, rt.UserID, rt.Token, rt.ExpiresAt, rt.Revoked,
		rt.RememberMe, rt.IPAddress, rt.UserAgent, rt.CreatedAt)
	return err
}

const refreshTokenColumns = `id, user_id, token, expires_at, revoked, revoked_at, remember_me, ip_address, user_agent, created_at`

func scanRefreshToken(row pgx.Row) (*domain.RefreshToken, error) {
	var rt domain.RefreshToken
	err := row.Scan(&rt.ID, &rt.UserID, &rt.Token, &rt.ExpiresAt, &rt.Revoked, &rt.RevokedAt,
		&rt.RememberMe, &rt.IPAddress, &rt.UserAgent, &rt.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

// GetRefreshToken returns nil, nil for an unknown token.
func (r *PostgresRepository) GetRefreshToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	rt, err := scanRefreshToken(r.db.QueryRow(ctx,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE token = $1`, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rt, nil
}

// RevokeRefreshToken only touches a row that is still unrevoked. Of several
// concurrent callers exactly one sees true.
func (r *PostgresRepository) RevokeRefreshToken(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1 AND revoked = FALSE`,
		id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) RevokeAllRefreshTokensByUserID(ctx context.Context, userID string, at time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE user_id = $1 AND revoked = FALSE`,
		userID, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) GetActiveRefreshTokens(ctx context.Context, userID string, now time.Time) ([]*domain.RefreshToken, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+refreshTokenColumns+`
		FROM refresh_tokens
		WHERE user_id = $1 AND revoked = FALSE AND expires_at > $2
		ORDER BY created_at DESC
	`, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list active refresh tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*domain.RefreshToken
	for rows.Next() {
		rt, err := scanRefreshToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan refresh token: %w", err)
		}
		tokens = append(tokens, rt)
	}
	return tokens, rows.Err()
}

func (r *PostgresRepository) GetActiveCountByUserID(ctx context.Context, userID string, now time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(id) FROM refresh_tokens
		WHERE user_id = $1 AND revoked = FALSE AND expires_at > $2
	`, userID, now).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active refresh tokens: %w", err)
	}
	return count, nil
}

// DeleteOldestByUserID only considers rows GetActiveCountByUserID counts, so
// an expired leftover never takes the place of a live session.
func (r *PostgresRepository) DeleteOldestByUserID(ctx context.Context, userID string, now time.Time) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM refresh_tokens
		WHERE id = (
			SELECT id FROM refresh_tokens
			WHERE user_id = $1 AND revoked = FALSE AND expires_at > $2
			ORDER BY created_at ASC
			LIMIT 1
		)
	`, userID, now)
	if err != nil {
		return fmt.Errorf("failed to delete oldest refresh token: %w", err)
	}
	return nil
}

var _ domain.UserRepository = (*PostgresRepository)(nil)
