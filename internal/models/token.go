package models

import (
	"time"

	"github.com/lib/pq"
)

// RefreshRecord tracks the refresh-token family of a single principal. At
// most one record exists per owner: CurrentToken is the only refresh token
// the owner may redeem, and UsedTokens is the ordered history of tokens
// retired by rotation. A retired token showing up again is treated as proof
// of compromise and destroys the whole record.
type RefreshRecord struct {
	Owner        string         `db:"owner" json:"owner"`
	CurrentToken string         `db:"current_token" json:"current_token"`
	UsedTokens   pq.StringArray `db:"used_tokens" json:"used_tokens"`
	ExpiresAt    time.Time      `db:"expires_at" json:"expires_at"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// HasUsed reports whether token was previously retired by rotation.
func (r *RefreshRecord) HasUsed(token string) bool {
	for _, used := range r.UsedTokens {
		if used == token {
			return true
		}
	}
	return false
}

// Expired reports whether the record itself has outlived its store TTL.
func (r *RefreshRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}
