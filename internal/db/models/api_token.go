package models

import "time"

// APIToken is a long-lived credential for command line clients
type APIToken struct {
	ID          string     `db:"id" json:"id"`
	UserID      int64      `db:"user_id" json:"user_id"`
	Name        string     `db:"name" json:"name"`
	TokenHash   string     `db:"token_hash" json:"-"`        // bcrypt hash of the full token
	TokenPrefix string     `db:"token_prefix" json:"prefix"` // first characters, used for lookup and display
	ExpiresAt   *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	LastUsedAt  *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// IsExpired reports whether the token has an expiry in the past
func (t *APIToken) IsExpired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}
