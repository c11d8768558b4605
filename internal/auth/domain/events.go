package domain

import "time"

const (
	SubjectAccountLocked  = "auth.account.locked"
	SubjectUserRegistered = "auth.user.registered"
)

type AccountLockedEvent struct {
	UserID      string    `json:"userId"`
	Email       string    `json:"email"`
	IPAddress   string    `json:"ipAddress"`
	LockedUntil time.Time `json:"lockedUntil"`
}

type UserRegisteredEvent struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	CreatedAt time.Time `json:"createdAt"`
}
