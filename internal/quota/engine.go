package quota

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gatedrop-bot/internal/models"
	"gatedrop-bot/internal/state"
	"gatedrop-bot/pkg/mutex"
)

// Unlimited is the allowance of plans without a daily cap.
const Unlimited = -1

const dayLayout = "2006-01-02"

// Reason explains a denial.
type Reason string

const (
	ReasonNone Reason = ""
	// ReasonLimitedExhausted means a limited subscriber used every daily link.
	// No upgrade is offered for this case.
	ReasonLimitedExhausted Reason = "limited_exhausted"
	// ReasonBasicExhausted means a user without a subscription used the free link.
	ReasonBasicExhausted Reason = "basic_exhausted"
)

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed bool
	Reason  Reason
	Plan    models.Plan
	// Limit is the daily allowance, or Unlimited.
	Limit int
	// Used is the number of distinct tokens counted today after the check.
	Used int
}

// errUnchanged aborts a state update that has nothing to persist.
var errUnchanged = errors.New("usage unchanged")

// AllowedLinks returns the number of distinct tokens plan may redeem per day.
func AllowedLinks(plan models.Plan) int {
	switch plan {
	case models.PlanFull:
		return Unlimited
	case models.PlanLimited:
		return 3
	default:
		return 1
	}
}

// DayKey formats the calendar day of t in loc.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(dayLayout)
}

// Engine enforces daily redemption quotas.
type Engine struct {
	state      *state.State
	locks      *mutex.KeyedMutex[int64]
	operatorID int64
	log        *slog.Logger
}

// NewEngine creates an engine. operatorID is never limited.
func NewEngine(st *state.State, operatorID int64, log *slog.Logger) *Engine {
	return &Engine{
		state:      st,
		locks:      &mutex.KeyedMutex[int64]{},
		operatorID: operatorID,
		log:        log,
	}
}

// CheckAndRecord decides whether userID may redeem token today under plan and
// records the token when it is newly counted. A token already counted today is
// always allowed again. Calls for the same user are serialized.
func (e *Engine) CheckAndRecord(ctx context.Context, userID int64, token string, plan models.Plan, today string) (Decision, error) {
	limit := AllowedLinks(plan)
	if userID == e.operatorID {
		return Decision{Allowed: true, Plan: plan, Limit: Unlimited}, nil
	}

	e.locks.Lock(userID)
	defer e.locks.Unlock(userID)

	dec := Decision{Plan: plan, Limit: limit}
	err := e.state.Update(ctx, func(d *models.Snapshot) error {
		usage := d.Usage[userID]
		if usage.Date != today {
			usage = models.UserUsage{UserID: userID, Date: today}
		}
		if usage.Contains(token) {
			dec.Allowed = true
			dec.Used = len(usage.Tokens)
			return errUnchanged
		}
		if limit != Unlimited && len(usage.Tokens) >= limit {
			dec.Used = len(usage.Tokens)
			dec.Reason = ReasonBasicExhausted
			if plan == models.PlanLimited {
				dec.Reason = ReasonLimitedExhausted
			}
			return errUnchanged
		}
		usage.Tokens = append(append([]string(nil), usage.Tokens...), token)
		d.Usage[userID] = usage
		dec.Allowed = true
		dec.Used = len(usage.Tokens)
		return nil
	})
	switch {
	case errors.Is(err, state.ErrNotSaved):
		// The token is recorded in memory; refusing now would charge for nothing.
		e.log.Warn("quota record not persisted", "user_id", userID, "token", token, "error", err)
	case err != nil && !errors.Is(err, errUnchanged):
		return Decision{}, err
	}

	if !dec.Allowed {
		e.log.Info("quota exceeded", "user_id", userID, "token", token, "plan", plan, "used", dec.Used)
	}
	return dec, nil
}

// UsedToday returns how many distinct tokens userID has redeemed on today.
func (e *Engine) UsedToday(userID int64, today string) int {
	used := 0
	e.state.View(func(d *models.Snapshot) {
		if u, ok := d.Usage[userID]; ok && u.Date == today {
			used = len(u.Tokens)
		}
	})
	return used
}
