package models

import (
	"github.com/golang-jwt/jwt/v5"
)

type TokenClaims struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// IsPrivileged reports whether the token was issued to a staff or admin account.
func (c *TokenClaims) IsPrivileged() bool {
	return c.Role == RoleStaff || c.Role == RoleAdmin
}
