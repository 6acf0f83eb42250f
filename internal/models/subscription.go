package models

import "time"

// Plan is a subscription tier.
type Plan string

const (
	PlanFull    Plan = "full"
	PlanLimited Plan = "limited"
	// PlanBasic is the implicit tier of users without an active subscription.
	PlanBasic Plan = "basic"
)

// Subscription is a purchased plan for one user.
type Subscription struct {
	UserID          int64
	PurchasedAt     time.Time
	ExpiresAt       time.Time
	Plan            Plan
	ExpiredNotified bool
	Upgraded        bool
}

// UserUsage holds the tokens a user redeemed on Date.
type UserUsage struct {
	UserID int64
	Date   string
	// Tokens is ordered by first redemption.
	Tokens []string
}

// Contains reports whether token was already counted.
func (u UserUsage) Contains(token string) bool {
	for _, t := range u.Tokens {
		if t == token {
			return true
		}
	}
	return false
}

// DeletionObligation is a durable record of a message that must be deleted at DeleteAt.
type DeletionObligation struct {
	ChatID    int64
	MessageID int
	DeleteAt  time.Time
}

// DailyUsers is the set of users seen on Date.
type DailyUsers struct {
	Date  string
	Users map[int64]struct{}
}
