package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"gatedrop-bot/internal/models"
	"gatedrop-bot/internal/state"

	"github.com/benbjohnson/clock"
)

// Period is the length of a purchased subscription.
const Period = 30 * 24 * time.Hour

var (
	ErrNotFound      = errors.New("subscription not found")
	ErrUpgradeNoOp   = errors.New("no limited subscription to upgrade")
	ErrAlreadyPaused = errors.New("subscription countdown already paused")
	ErrNotPaused     = errors.New("subscription countdown is not paused")
	ErrInvalidPlan   = errors.New("invalid plan")
)

// Status is a subscription as seen at a point in time.
type Status struct {
	models.Subscription
	// EffectiveExpiry accounts for a running countdown pause.
	EffectiveExpiry time.Time
	Remaining       time.Duration
	Active          bool
}

// Ledger tracks purchased subscriptions and the global countdown pause.
type Ledger struct {
	state *state.State
	clock clock.Clock
	log   *slog.Logger

	// pauseMu guards pause and resume against concurrent toggles.
	pauseMu sync.Mutex
}

// NewLedger creates a ledger over st.
func NewLedger(st *state.State, clk clock.Clock, log *slog.Logger) *Ledger {
	return &Ledger{state: st, clock: clk, log: log}
}

// effectiveExpiry returns the expiry of sub with the countdown frozen since pausedAt.
func effectiveExpiry(sub models.Subscription, pausedAt *time.Time, now time.Time) time.Time {
	if pausedAt == nil || !sub.ExpiresAt.After(*pausedAt) || now.Before(*pausedAt) {
		return sub.ExpiresAt
	}
	return sub.ExpiresAt.Add(now.Sub(*pausedAt))
}

func status(sub models.Subscription, pausedAt *time.Time, now time.Time) Status {
	exp := effectiveExpiry(sub, pausedAt, now)
	st := Status{Subscription: sub, EffectiveExpiry: exp}
	if exp.After(now) {
		st.Active = true
		st.Remaining = exp.Sub(now)
	}
	return st
}

// Activate starts a new subscription period for userID, replacing any prior one.
func (l *Ledger) Activate(ctx context.Context, userID int64, plan models.Plan) (models.Subscription, error) {
	if plan != models.PlanFull && plan != models.PlanLimited {
		return models.Subscription{}, fmt.Errorf("%w: %q", ErrInvalidPlan, plan)
	}
	now := l.clock.Now()
	sub := models.Subscription{
		UserID:      userID,
		PurchasedAt: now,
		ExpiresAt:   now.Add(Period),
		Plan:        plan,
	}
	err := l.state.Update(ctx, func(d *models.Snapshot) error {
		d.Subscriptions[userID] = sub
		d.AllUsers[userID] = struct{}{}
		return nil
	})
	if err != nil {
		return models.Subscription{}, err
	}
	l.log.Info("subscription activated", "user_id", userID, "plan", plan, "expires_at", sub.ExpiresAt)
	return sub, nil
}

// Upgrade moves a limited subscription to the full plan. Any other state
// returns ErrUpgradeNoOp and changes nothing.
func (l *Ledger) Upgrade(ctx context.Context, userID int64) (models.Subscription, error) {
	var sub models.Subscription
	err := l.state.Update(ctx, func(d *models.Snapshot) error {
		current, ok := d.Subscriptions[userID]
		if !ok || current.Plan != models.PlanLimited {
			return ErrUpgradeNoOp
		}
		current.Plan = models.PlanFull
		current.Upgraded = true
		d.Subscriptions[userID] = current
		sub = current
		return nil
	})
	if err != nil {
		return models.Subscription{}, err
	}
	l.log.Info("subscription upgraded", "user_id", userID)
	return sub, nil
}

// EffectivePlan returns the plan userID has now. Users without a subscription,
// or whose subscription has expired, are on the basic plan.
func (l *Ledger) EffectivePlan(userID int64) models.Plan {
	plan := models.PlanBasic
	now := l.clock.Now()
	l.state.View(func(d *models.Snapshot) {
		sub, ok := d.Subscriptions[userID]
		if ok && status(sub, d.PausedAt, now).Active {
			plan = sub.Plan
		}
	})
	return plan
}

// Cancel removes userID's subscription.
func (l *Ledger) Cancel(ctx context.Context, userID int64) error {
	err := l.state.Update(ctx, func(d *models.Snapshot) error {
		if _, ok := d.Subscriptions[userID]; !ok {
			return ErrNotFound
		}
		delete(d.Subscriptions, userID)
		return nil
	})
	if err != nil {
		return err
	}
	l.log.Info("subscription cancelled", "user_id", userID)
	return nil
}

// SweepExpired marks every newly expired subscription as notified and returns
// their user ids in ascending order. Each expiry is returned once. While the
// countdown is paused only subscriptions that lapsed before the pause began
// can be returned.
func (l *Ledger) SweepExpired(ctx context.Context) ([]int64, error) {
	now := l.clock.Now()
	var expired []int64
	err := l.state.Update(ctx, func(d *models.Snapshot) error {
		for uid, sub := range d.Subscriptions {
			if sub.ExpiredNotified || status(sub, d.PausedAt, now).Active {
				continue
			}
			sub.ExpiredNotified = true
			d.Subscriptions[uid] = sub
			expired = append(expired, uid)
		}
		if len(expired) == 0 {
			return errNothingExpired
		}
		return nil
	})
	if err != nil && !errors.Is(err, errNothingExpired) {
		return nil, err
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i] < expired[j] })
	return expired, nil
}

var errNothingExpired = errors.New("nothing expired")

// Pause freezes every subscription countdown.
func (l *Ledger) Pause(ctx context.Context) error {
	l.pauseMu.Lock()
	defer l.pauseMu.Unlock()

	now := l.clock.Now()
	err := l.state.Update(ctx, func(d *models.Snapshot) error {
		if d.PausedAt != nil {
			return ErrAlreadyPaused
		}
		d.PausedAt = &now
		return nil
	})
	if err != nil {
		return err
	}
	l.log.Info("subscription countdown paused")
	return nil
}

// Resume restarts the countdown. Subscriptions that were still running when
// the pause began are extended by the paused duration, which is returned.
func (l *Ledger) Resume(ctx context.Context) (time.Duration, error) {
	l.pauseMu.Lock()
	defer l.pauseMu.Unlock()

	now := l.clock.Now()
	var paused time.Duration
	err := l.state.Update(ctx, func(d *models.Snapshot) error {
		if d.PausedAt == nil {
			return ErrNotPaused
		}
		pausedAt := *d.PausedAt
		if now.After(pausedAt) {
			paused = now.Sub(pausedAt)
		}
		for uid, sub := range d.Subscriptions {
			if sub.ExpiresAt.After(pausedAt) {
				sub.ExpiresAt = sub.ExpiresAt.Add(paused)
				d.Subscriptions[uid] = sub
			}
		}
		d.PausedAt = nil
		return nil
	})
	if err != nil {
		return 0, err
	}
	l.log.Info("subscription countdown resumed", "paused_for", paused)
	return paused, nil
}

// Toggle pauses a running countdown or resumes a paused one. It reports
// whether the countdown is paused afterwards.
func (l *Ledger) Toggle(ctx context.Context) (bool, error) {
	if paused, _ := l.Paused(); paused {
		_, err := l.Resume(ctx)
		if errors.Is(err, ErrNotPaused) {
			return false, nil
		}
		return false, err
	}
	err := l.Pause(ctx)
	if errors.Is(err, ErrAlreadyPaused) {
		return true, nil
	}
	return err == nil, err
}

// Paused reports whether the countdown is frozen and since when.
func (l *Ledger) Paused() (bool, time.Time) {
	var (
		paused bool
		since  time.Time
	)
	l.state.View(func(d *models.Snapshot) {
		if d.PausedAt != nil {
			paused = true
			since = *d.PausedAt
		}
	})
	return paused, since
}

// Get returns userID's subscription status.
func (l *Ledger) Get(userID int64) (Status, bool) {
	now := l.clock.Now()
	var (
		st Status
		ok bool
	)
	l.state.View(func(d *models.Snapshot) {
		var sub models.Subscription
		sub, ok = d.Subscriptions[userID]
		if ok {
			st = status(sub, d.PausedAt, now)
		}
	})
	return st, ok
}

// Counts returns the number of users with an active subscription and the
// number of users known to the bot.
func (l *Ledger) Counts() (premium, total int) {
	now := l.clock.Now()
	l.state.View(func(d *models.Snapshot) {
		for _, sub := range d.Subscriptions {
			if status(sub, d.PausedAt, now).Active {
				premium++
			}
		}
		total = len(d.AllUsers)
	})
	return premium, total
}

// ActiveList returns every active subscription ordered by user id.
func (l *Ledger) ActiveList() []Status {
	now := l.clock.Now()
	var out []Status
	l.state.View(func(d *models.Snapshot) {
		for _, sub := range d.Subscriptions {
			if st := status(sub, d.PausedAt, now); st.Active {
				out = append(out, st)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
