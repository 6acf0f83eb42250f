package delivery

import (
	"errors"
	"fmt"

	"gatedrop-bot/internal/models"
)

// ErrInvalidLink is returned for tokens that do not resolve to a batch.
var ErrInvalidLink = errors.New("invalid link")

// MembershipRequiredError lists the required channels the user has not joined.
// No quota is charged when it is returned.
type MembershipRequiredError struct {
	Channels []int64
}

func (e *MembershipRequiredError) Error() string {
	return fmt.Sprintf("membership required in %d channel(s)", len(e.Channels))
}

// QuotaExceededError is returned when the user's plan allows no more distinct
// links today.
type QuotaExceededError struct {
	Plan  models.Plan
	Limit int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily limit of %d link(s) reached on %s plan", e.Limit, e.Plan)
}
