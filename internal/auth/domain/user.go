package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role is a closed set of account roles ordered by privilege.
type Role uint8

const (
	RoleCustomer Role = iota + 1
	RoleStaff
	RoleManager
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleCustomer: "CUSTOMER",
	RoleStaff:    "STAFF",
	RoleManager:  "MANAGER",
	RoleAdmin:    "ADMIN",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Role(%d)", uint8(r))
}

func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// AtLeast reports whether r ranks at or above min.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && r >= min
}

// ParseRole accepts the role name case-insensitively, with or without a ROLE_ prefix.
func ParseRole(s string) (Role, error) {
	name := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "ROLE_")
	for r, n := range roleNames {
		if n == name {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

// ParseRoles converts stored or claimed role names, failing on the first unknown one.
func ParseRoles(names []string) ([]Role, error) {
	roles := make([]Role, 0, len(names))
	for _, n := range names {
		r, err := ParseRole(n)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, nil
}

func RoleNames(roles []Role) []string {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.String())
	}
	return names
}

// HasAnyRole reports whether granted contains at least one of allowed.
func HasAnyRole(granted []Role, allowed ...Role) bool {
	for _, g := range granted {
		for _, a := range allowed {
			if g == a {
				return true
			}
		}
	}
	return false
}

type User struct {
	ID                  string
	Email               string
	PasswordHash        string
	FirstName           string
	LastName            string
	Roles               []Role
	Enabled             bool
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLoginAt         *time.Time
	LastLoginIP         string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsLocked reports whether the lockout window is still open at now.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

type RefreshToken struct {
	ID         string
	UserID     string
	Token      string
	ExpiresAt  time.Time
	Revoked    bool
	RevokedAt  *time.Time
	RememberMe bool
	IPAddress  string
	UserAgent  string
	CreatedAt  time.Time
}

// IsValid holds iff the token is not revoked and not yet expired.
func (rt *RefreshToken) IsValid(now time.Time) bool {
	return !rt.Revoked && now.Before(rt.ExpiresAt)
}

type LoginAttempt struct {
	ID            string
	Email         string
	IPAddress     string
	UserAgent     string
	AttemptedAt   time.Time
	Success       bool
	FailureReason string
}

// FailedLoginResult is the counter state after a failed password check.
type FailedLoginResult struct {
	FailedAttempts int
	LockedUntil    *time.Time
}
