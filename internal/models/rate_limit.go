package models

import "time"

// Rate limit scopes
const (
	RateLimitScopeHTTP     = "http"
	RateLimitScopeLogin    = "login"
	RateLimitScopeRegister = "register"
)

// Tier is the privilege tier a request is limited under.
type Tier string

const (
	TierAnonymous     Tier = "anonymous"
	TierAuthenticated Tier = "authenticated"
	TierStaff         Tier = "staff"
)

// RateLimit is a request budget per fixed window.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// RateLimitDecision is the outcome of one admission check.
type RateLimitDecision struct {
	Allowed bool
	Count   int64
	Limit   int
	ResetAt time.Time
}

// Remaining returns how many requests are left in the current window.
func (d RateLimitDecision) Remaining() int {
	left := int64(d.Limit) - d.Count
	if left < 0 {
		return 0
	}
	return int(left)
}
