package delivery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gatedrop-bot/internal/content"
	"gatedrop-bot/internal/database"
	"gatedrop-bot/internal/links"
	"gatedrop-bot/internal/metrics"
	"gatedrop-bot/internal/models"
	"gatedrop-bot/internal/quota"
	"gatedrop-bot/internal/state"

	"github.com/benbjohnson/clock"
)

// LinkResolver looks up batches by token.
type LinkResolver interface {
	Resolve(token string) (models.BatchLink, error)
}

// MembershipChecker reports required channels a user has not joined.
type MembershipChecker interface {
	MissingChannels(ctx context.Context, userID int64) []int64
}

// PlanSource resolves a user's current plan.
type PlanSource interface {
	EffectivePlan(userID int64) models.Plan
}

// QuotaChecker enforces daily quotas.
type QuotaChecker interface {
	CheckAndRecord(ctx context.Context, userID int64, token string, plan models.Plan, today string) (quota.Decision, error)
}

// Sender delivers a rendered item and returns the sent message id.
type Sender interface {
	Send(ctx context.Context, chatID int64, out content.Outgoing) (int, error)
}

// DeletionScheduler records deferred deletions.
type DeletionScheduler interface {
	Schedule(ctx context.Context, chatID int64, messageID int, delay time.Duration) (models.DeletionObligation, error)
}

// Result summarizes one successful redemption.
type Result struct {
	Token     string
	Plan      models.Plan
	Delivered int
	Skipped   int
}

// Stats are today's activity counters.
type Stats struct {
	Day              string
	Redemptions      int
	ActiveUsers      int
	PendingDeletions int
}

// Deps holds the collaborators of an Orchestrator.
type Deps struct {
	Links     LinkResolver
	Members   MembershipChecker
	Plans     PlanSource
	Quota     QuotaChecker
	Sender    Sender
	Deletions DeletionScheduler
	State     *state.State
	// Activity is optional.
	Activity database.ActivityLogger
	Clock    clock.Clock
	Location *time.Location
	Log      *slog.Logger
}

// Orchestrator redeems tokens: it gates, charges quota, delivers every item of
// the batch and schedules each delivered message for deletion.
type Orchestrator struct {
	Deps
}

// New creates an orchestrator.
func New(deps Deps) *Orchestrator {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	return &Orchestrator{Deps: deps}
}

// Today returns the current day key.
func (o *Orchestrator) Today() string {
	return quota.DayKey(o.Clock.Now(), o.Location)
}

// Redeem delivers the batch for token to userID. Quota charged for a
// successful check is kept even if every item fails to send.
func (o *Orchestrator) Redeem(ctx context.Context, userID int64, token string) (Result, error) {
	res, err := o.redeem(ctx, userID, token)
	o.record(ctx, userID, token, res, err)
	return res, err
}

func (o *Orchestrator) redeem(ctx context.Context, userID int64, token string) (Result, error) {
	today := o.Today()
	res := Result{Token: token}

	link, err := o.Links.Resolve(token)
	if errors.Is(err, links.ErrNotFound) {
		return res, ErrInvalidLink
	}
	if err != nil {
		return res, err
	}

	if missing := o.Members.MissingChannels(ctx, userID); len(missing) > 0 {
		return res, &MembershipRequiredError{Channels: missing}
	}

	res.Plan = o.Plans.EffectivePlan(userID)
	dec, err := o.Quota.CheckAndRecord(ctx, userID, token, res.Plan, today)
	if err != nil {
		return res, err
	}
	if !dec.Allowed {
		return res, &QuotaExceededError{Plan: res.Plan, Limit: dec.Limit}
	}

	var (
		baseURL    string
		autoDelete time.Duration
	)
	err = o.State.Update(ctx, func(d *models.Snapshot) error {
		d.DailyRedemptions[today]++
		baseURL = d.BaseURL
		autoDelete = d.AutoDeleteAfter
		return nil
	})
	if err != nil {
		o.Log.Error("failed to count redemption", "user_id", userID, "token", token, "error", err)
	}

	for i, item := range link.Items {
		msgID, err := o.Sender.Send(ctx, userID, content.Prepare(item, baseURL))
		if err != nil {
			res.Skipped++
			o.Log.Warn("failed to deliver item", "user_id", userID, "token", token, "item", i, "error", err)
			continue
		}
		res.Delivered++
		if _, err := o.Deletions.Schedule(ctx, userID, msgID, autoDelete); err != nil {
			o.Log.Error("failed to schedule deletion", "user_id", userID, "token", token, "message_id", msgID, "error", err)
		}
	}

	o.Log.Info("batch delivered", "user_id", userID, "token", token, "plan", res.Plan,
		"delivered", res.Delivered, "skipped", res.Skipped)
	return res, nil
}

func outcome(err error) string {
	var (
		membership *MembershipRequiredError
		exceeded   *QuotaExceededError
	)
	switch {
	case err == nil:
		return metrics.OutcomeDelivered
	case errors.Is(err, ErrInvalidLink):
		return metrics.OutcomeInvalidLink
	case errors.As(err, &membership):
		return metrics.OutcomeMembershipRequired
	case errors.As(err, &exceeded):
		return metrics.OutcomeQuotaExceeded
	default:
		return metrics.OutcomeError
	}
}

func (o *Orchestrator) record(ctx context.Context, userID int64, token string, res Result, err error) {
	oc := outcome(err)
	metrics.ObserveRedemption(oc, res.Delivered, res.Skipped)
	if o.Activity == nil {
		return
	}
	details := map[string]interface{}{
		"token":     token,
		"outcome":   oc,
		"plan":      string(res.Plan),
		"delivered": res.Delivered,
		"skipped":   res.Skipped,
	}
	if logErr := o.Activity.LogUserAction(ctx, userID, "redeem", details); logErr != nil {
		o.Log.Warn("failed to log redemption", "user_id", userID, "token", token, "error", logErr)
	}
}

// TrackUser adds userID to the known users and to today's active users.
// Nothing is saved when both already hold the user.
func (o *Orchestrator) TrackUser(ctx context.Context, userID int64) error {
	today := o.Today()
	err := o.State.Update(ctx, func(d *models.Snapshot) error {
		changed := false
		if _, ok := d.AllUsers[userID]; !ok {
			d.AllUsers[userID] = struct{}{}
			changed = true
		}
		if d.ActiveUsers.Date != today {
			d.ActiveUsers = models.DailyUsers{Date: today, Users: make(map[int64]struct{})}
			changed = true
		}
		if _, ok := d.ActiveUsers.Users[userID]; !ok {
			d.ActiveUsers.Users[userID] = struct{}{}
			changed = true
		}
		if !changed {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return nil
	}
	return err
}

var errUnchanged = errors.New("unchanged")

// TodayStats returns today's redemption and active-user counts together with
// the number of pending deletions.
func (o *Orchestrator) TodayStats() Stats {
	st := Stats{Day: o.Today()}
	o.State.View(func(d *models.Snapshot) {
		st.Redemptions = d.DailyRedemptions[st.Day]
		if d.ActiveUsers.Date == st.Day {
			st.ActiveUsers = len(d.ActiveUsers.Users)
		}
		st.PendingDeletions = len(d.Pending)
	})
	return st
}
