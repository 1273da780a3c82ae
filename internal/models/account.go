package models

import (
	"time"
)

// Account roles
const (
	RoleUser  = "user"
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

// Account is the slice of the account entity the security core needs.
type Account struct {
	ID            string
	Email         string
	PasswordHash  string
	Role          string
	IsActive      bool
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsPrivileged reports whether the account belongs to the staff/admin tier.
func (a *Account) IsPrivileged() bool {
	return a.Role == RoleStaff || a.Role == RoleAdmin
}

// AccountSecurityState holds the lockout bookkeeping for one account.
type AccountSecurityState struct {
	AccountID          string
	FailedAttemptCount int
	LockedUntil        *time.Time
	LastKnownIP        *string
}

// IsLockedAt reports whether the account is locked at the given instant.
func (s *AccountSecurityState) IsLockedAt(now time.Time) bool {
	return s.LockedUntil != nil && now.Before(*s.LockedUntil)
}

// ActivationCode is the single active activation code of an account.
type ActivationCode struct {
	AccountID    string
	Code         string
	IssuedAt     time.Time
	AttemptCount int
}

// ExpiresAt returns the last instant at which the code is still accepted.
func (c *ActivationCode) ExpiresAt(ttl time.Duration) time.Time {
	return c.IssuedAt.Add(ttl)
}

// IsExpiredAt reports whether the code is past its validity window.
// A code submitted exactly at IssuedAt+ttl is still valid.
func (c *ActivationCode) IsExpiredAt(now time.Time, ttl time.Duration) bool {
	return now.After(c.ExpiresAt(ttl))
}

// IsUsableAt reports whether the code can still be verified.
func (c *ActivationCode) IsUsableAt(now time.Time, ttl time.Duration, maxAttempts int) bool {
	return !c.IsExpiredAt(now, ttl) && c.AttemptCount < maxAttempts
}
