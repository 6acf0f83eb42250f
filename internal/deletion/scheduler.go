// Package deletion removes delivered messages after a delay and keeps every
// pending removal durable so none is lost across restarts.
package deletion

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"gatedrop-bot/internal/metrics"
	"gatedrop-bot/internal/models"
	"gatedrop-bot/internal/state"

	"github.com/benbjohnson/clock"
	"go.uber.org/ratelimit"
)

// Deleter removes a message from a chat.
type Deleter interface {
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

type key struct {
	chatID    int64
	messageID int
}

func keyOf(ob models.DeletionObligation) key {
	return key{chatID: ob.ChatID, messageID: ob.MessageID}
}

var errExists = errors.New("obligation exists")

// Scheduler arms one timer per obligation. An obligation is executed at most
// once: whichever of its timer or a forced sweep claims it first runs it.
type Scheduler struct {
	state   *state.State
	deleter Deleter
	clock   clock.Clock
	limiter ratelimit.Limiter
	log     *slog.Logger

	// ctx is used for executions triggered by timers.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	timers map[key]*clock.Timer
	// inflight holds claimed obligations that are not yet resolved.
	inflight map[key]bool
	stopped  bool
	running  sync.WaitGroup
}

// NewScheduler creates a scheduler. deletesPerSecond bounds the rate of delete
// calls; zero or less disables the limit.
func NewScheduler(st *state.State, deleter Deleter, clk clock.Clock, deletesPerSecond int, log *slog.Logger) *Scheduler {
	limiter := ratelimit.NewUnlimited()
	if deletesPerSecond > 0 {
		limiter = ratelimit.New(deletesPerSecond)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		state:    st,
		deleter:  deleter,
		clock:    clk,
		limiter:  limiter,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		timers:   make(map[key]*clock.Timer),
		inflight: make(map[key]bool),
	}
}

// Schedule records that messageID in chatID must be deleted after delay, then
// arms its timer. The obligation is persisted before the timer exists. If the
// save fails the timer is still armed and a later save persists the record.
// Scheduling the same message twice keeps the first deadline.
func (s *Scheduler) Schedule(ctx context.Context, chatID int64, messageID int, delay time.Duration) (models.DeletionObligation, error) {
	ob := models.DeletionObligation{
		ChatID:    chatID,
		MessageID: messageID,
		DeleteAt:  s.clock.Now().Add(delay),
	}
	err := s.state.Update(ctx, func(d *models.Snapshot) error {
		for _, p := range d.Pending {
			if keyOf(p) == keyOf(ob) {
				ob = p
				return errExists
			}
		}
		d.Pending = append(d.Pending, ob)
		metrics.PendingDeletions.Set(float64(len(d.Pending)))
		return nil
	})
	switch {
	case errors.Is(err, state.ErrNotSaved):
		s.log.Warn("deletion armed but not persisted", "chat_id", chatID, "message_id", messageID, "error", err)
	case err != nil && !errors.Is(err, errExists):
		return models.DeletionObligation{}, err
	}
	s.arm(ob)
	return ob, nil
}

// RecoverPending arms every obligation in obs, adding any the state does not
// already hold. Past-due obligations run right away. It returns how many
// obligations were armed.
func (s *Scheduler) RecoverPending(ctx context.Context, obs []models.DeletionObligation) (int, error) {
	err := s.state.Update(ctx, func(d *models.Snapshot) error {
		known := make(map[key]bool, len(d.Pending))
		for _, p := range d.Pending {
			known[keyOf(p)] = true
		}
		added := false
		for _, ob := range obs {
			if !known[keyOf(ob)] {
				d.Pending = append(d.Pending, ob)
				known[keyOf(ob)] = true
				added = true
			}
		}
		metrics.PendingDeletions.Set(float64(len(d.Pending)))
		if !added {
			return errExists
		}
		return nil
	})
	switch {
	case errors.Is(err, state.ErrNotSaved):
		s.log.Warn("recovered deletions not persisted", "count", len(obs), "error", err)
	case err != nil && !errors.Is(err, errExists):
		return 0, err
	}

	armed := 0
	for _, ob := range obs {
		if s.arm(ob) {
			armed++
		}
	}
	s.log.Info("pending deletions recovered", "count", armed)
	return armed, nil
}

// arm starts the timer for ob unless it is already armed, running or resolved.
func (s *Scheduler) arm(ob models.DeletionObligation) bool {
	k := keyOf(ob)
	delay := ob.DeleteAt.Sub(s.clock.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	if _, ok := s.timers[k]; ok || s.inflight[k] {
		return false
	}
	// A forced sweep may have run and resolved ob since it was recorded.
	if !s.isPending(k) {
		return false
	}
	if delay <= 0 {
		s.timers[k] = nil
		go s.fire(k)
		return true
	}
	s.timers[k] = s.clock.AfterFunc(delay, func() { s.fire(k) })
	return true
}

func (s *Scheduler) isPending(k key) bool {
	pending := false
	s.state.View(func(d *models.Snapshot) {
		for _, p := range d.Pending {
			if keyOf(p) == k {
				pending = true
				return
			}
		}
	})
	return pending
}

// fire runs the obligation for k if no one else has claimed it.
func (s *Scheduler) fire(k key) {
	s.mu.Lock()
	if _, ok := s.timers[k]; !ok || s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.timers, k)
	s.inflight[k] = true
	s.running.Add(1)
	s.mu.Unlock()
	defer s.running.Done()

	_ = s.execute(s.ctx, k)
	if err := s.resolve(s.ctx, []key{k}); err != nil {
		s.log.Error("failed to persist resolved deletion", "chat_id", k.chatID, "message_id", k.messageID, "error", err)
	}
	s.release([]key{k})
}

func (s *Scheduler) release(keys []key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.inflight, k)
	}
}

func (s *Scheduler) execute(ctx context.Context, k key) error {
	s.limiter.Take()
	err := s.deleter.DeleteMessage(ctx, k.chatID, k.messageID)
	metrics.ObserveDeletion(err)
	if err != nil {
		s.log.Warn("failed to delete message", "chat_id", k.chatID, "message_id", k.messageID, "error", err)
	}
	return err
}

// resolve drops the obligations for keys from the durable set.
func (s *Scheduler) resolve(ctx context.Context, keys []key) error {
	done := make(map[key]bool, len(keys))
	for _, k := range keys {
		done[k] = true
	}
	return s.state.Update(ctx, func(d *models.Snapshot) error {
		kept := d.Pending[:0:0]
		for _, p := range d.Pending {
			if !done[keyOf(p)] {
				kept = append(kept, p)
			}
		}
		d.Pending = kept
		metrics.PendingDeletions.Set(float64(len(d.Pending)))
		return nil
	})
}

// ForceExecuteAll runs every pending obligation now, ignoring deadlines.
// Failed deletes are counted and still resolved.
func (s *Scheduler) ForceExecuteAll(ctx context.Context) (executed, failed int, err error) {
	var pending []models.DeletionObligation
	s.state.View(func(d *models.Snapshot) {
		pending = append(pending, d.Pending...)
	})

	s.mu.Lock()
	claimed := make([]key, 0, len(pending))
	for _, ob := range pending {
		k := keyOf(ob)
		if s.inflight[k] {
			continue
		}
		if t := s.timers[k]; t != nil {
			t.Stop()
		}
		delete(s.timers, k)
		s.inflight[k] = true
		claimed = append(claimed, k)
	}
	s.running.Add(1)
	s.mu.Unlock()
	defer s.running.Done()
	defer s.release(claimed)

	for _, k := range claimed {
		if s.execute(ctx, k) != nil {
			failed++
		} else {
			executed++
		}
	}
	if err := s.resolve(ctx, claimed); err != nil {
		return executed, failed, err
	}
	s.log.Info("forced deletion sweep", "executed", executed, "failed", failed)
	return executed, failed, nil
}

// Pending returns a copy of the outstanding obligations.
func (s *Scheduler) Pending() []models.DeletionObligation {
	var out []models.DeletionObligation
	s.state.View(func(d *models.Snapshot) {
		out = append(out, d.Pending...)
	})
	return out
}

// Stop disarms every timer and waits for running executions. Obligations stay
// persisted and are picked up by RecoverPending on the next start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for k, t := range s.timers {
		if t != nil {
			t.Stop()
		}
		delete(s.timers, k)
	}
	s.mu.Unlock()

	s.running.Wait()
	s.cancel()
}
