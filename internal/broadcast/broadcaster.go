// Package broadcast fans channel announcements out to every known user.
package broadcast

import (
	"context"
	"log/slog"
	"sort"

	"gatedrop-bot/internal/content"
	"gatedrop-bot/internal/metrics"
	"gatedrop-bot/internal/models"
	"gatedrop-bot/internal/state"

	"go.uber.org/ratelimit"
)

// Sender delivers one announcement.
type Sender interface {
	SendAnnouncement(ctx context.Context, chatID int64, a content.Announcement) error
}

// Summary counts the outcome of one broadcast.
type Summary struct {
	Sent   int
	Failed int
}

// Broadcaster sends announcements to every known user at a bounded rate.
type Broadcaster struct {
	state   *state.State
	sender  Sender
	limiter ratelimit.Limiter
	log     *slog.Logger
}

// NewBroadcaster creates a broadcaster sending at most perSecond messages per
// second. A non-positive rate disables limiting.
func NewBroadcaster(st *state.State, sender Sender, perSecond int, log *slog.Logger) *Broadcaster {
	limiter := ratelimit.NewUnlimited()
	if perSecond > 0 {
		limiter = ratelimit.New(perSecond)
	}
	return &Broadcaster{state: st, sender: sender, limiter: limiter, log: log}
}

func (b *Broadcaster) recipients() []int64 {
	var ids []int64
	b.state.View(func(d *models.Snapshot) {
		ids = make([]int64, 0, len(d.AllUsers))
		for id := range d.AllUsers {
			ids = append(ids, id)
		}
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Send delivers a to every known user. Per-user failures are counted and the
// fan-out continues. A cancelled ctx stops it early.
func (b *Broadcaster) Send(ctx context.Context, a content.Announcement) Summary {
	var sum Summary
	for _, id := range b.recipients() {
		if ctx.Err() != nil {
			b.log.Warn("broadcast interrupted", "sent", sum.Sent, "failed", sum.Failed)
			break
		}
		b.limiter.Take()
		err := b.sender.SendAnnouncement(ctx, id, a)
		metrics.ObserveBroadcast(err)
		if err != nil {
			sum.Failed++
			b.log.Error("error broadcasting to user", "user_id", id, "error", err)
			continue
		}
		sum.Sent++
	}
	b.log.Info("broadcast complete", "sent", sum.Sent, "failed", sum.Failed)
	return sum
}
