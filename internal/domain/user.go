package domain

import (
	"time"
)

// Tier controls quota enforcement for a user.
type Tier string

const (
	// TierFree is subject to the monthly usage quota.
	TierFree Tier = "free"
	// TierPremium bypasses the quota gate entirely.
	TierPremium Tier = "premium"
)

// Unrestricted reports whether the tier skips quota accounting.
func (t Tier) Unrestricted() bool {
	return t == TierPremium
}

// User represents a user in the system.
type User struct {
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	Tier       Tier      `json:"tier"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
