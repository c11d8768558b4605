package dto

import (
	"time"
)

type UserSummary struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Roles     []string `json:"roles"`
}

type UserOutput struct {
	ID                  string     `json:"id"`
	Email               string     `json:"email"`
	FirstName           string     `json:"firstName"`
	LastName            string     `json:"lastName"`
	Roles               []string   `json:"roles"`
	Enabled             bool       `json:"enabled"`
	FailedLoginAttempts int        `json:"failedLoginAttempts"`
	LockedUntil         *time.Time `json:"lockedUntil,omitempty"`
	LastLoginAt         *time.Time `json:"lastLoginAt,omitempty"`
	LastLoginIP         string     `json:"lastLoginIp,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

type UpdateRolesInput struct {
	Roles []string `json:"roles" validate:"required,min=1,dive,required"`
}

type SessionOutput struct {
	ID         string    `json:"id"`
	IPAddress  string    `json:"ipAddress"`
	UserAgent  string    `json:"userAgent"`
	RememberMe bool      `json:"rememberMe"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type LoginAttemptOutput struct {
	Email         string    `json:"email"`
	IPAddress     string    `json:"ipAddress"`
	UserAgent     string    `json:"userAgent"`
	AttemptedAt   time.Time `json:"attemptedAt"`
	Success       bool      `json:"success"`
	FailureReason string    `json:"failureReason,omitempty"`
}

type ErrorResponse struct {
	Code             string `json:"code"`
	Error            string `json:"error"`
	Field            string `json:"field,omitempty"`
	MinutesRemaining int    `json:"minutesRemaining,omitempty"`
}
