package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"gatedrop-bot/internal/content"
	"gatedrop-bot/internal/database"
	"gatedrop-bot/internal/links"
	"gatedrop-bot/internal/models"
	"gatedrop-bot/internal/quota"
	"gatedrop-bot/internal/state"
	"gatedrop-bot/internal/subscriptions"
	"gatedrop-bot/pkg/logger"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const operatorID = 1

type fakeMembers struct{ missing []int64 }

func (f *fakeMembers) MissingChannels(context.Context, int64) []int64 { return f.missing }

type fakeSender struct {
	mu     sync.Mutex
	sent   []content.Outgoing
	fail   map[int]bool
	nextID int
}

func (f *fakeSender) Send(_ context.Context, _ int64, out content.Outgoing) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := len(f.sent)
	f.sent = append(f.sent, out)
	if f.fail[idx] {
		return 0, errors.New("chat not found")
	}
	f.nextID++
	return 100 + f.nextID, nil
}

type fakeDeletions struct {
	mu        sync.Mutex
	scheduled []int
	delays    []time.Duration
}

func (f *fakeDeletions) Schedule(_ context.Context, chatID int64, messageID int, delay time.Duration) (models.DeletionObligation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, messageID)
	f.delays = append(f.delays, delay)
	return models.DeletionObligation{ChatID: chatID, MessageID: messageID}, nil
}

type fakeActivity struct {
	mu      sync.Mutex
	actions []map[string]interface{}
}

func (f *fakeActivity) LogUserAction(_ context.Context, _ int64, _ string, details map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, details)
	return nil
}

type fixture struct {
	store     *database.MemoryStateStore
	state     *state.State
	clock     *clock.Mock
	registry  *links.Registry
	ledger    *subscriptions.Ledger
	members   *fakeMembers
	sender    *fakeSender
	deletions *fakeDeletions
	activity  *fakeActivity
	orch      *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.Discard()
	f := &fixture{
		clock:     clock.NewMock(),
		members:   &fakeMembers{},
		sender:    &fakeSender{fail: map[int]bool{}},
		deletions: &fakeDeletions{},
		activity:  &fakeActivity{},
	}
	f.clock.Set(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	f.store = database.NewMemoryStateStore()
	f.state = state.New(f.store, "https://old.example/", 30*time.Minute)

	n := 0
	f.registry = links.NewRegistry(f.state, f.clock, log, links.WithTokenGenerator(func() string {
		n++
		return fmt.Sprintf("tok%d", n)
	}))
	f.ledger = subscriptions.NewLedger(f.state, f.clock, log)
	f.orch = New(Deps{
		Links:     f.registry,
		Members:   f.members,
		Plans:     f.ledger,
		Quota:     quota.NewEngine(f.state, operatorID, log),
		Sender:    f.sender,
		Deletions: f.deletions,
		State:     f.state,
		Activity:  f.activity,
		Clock:     f.clock,
		Log:       log,
	})
	return f
}

func (f *fixture) batch(t *testing.T, first, last int) string {
	t.Helper()
	link, err := f.registry.CreateBatch(context.Background(), first, last, func(_ context.Context, id int) (models.ContentItem, error) {
		text := fmt.Sprintf("post %d https://old.example/p/%d", id, id)
		return models.ContentItem{
			Kind:          models.KindText,
			Text:          text,
			OriginalText:  text,
			SourceBaseURL: "https://old.example/",
		}, nil
	})
	require.NoError(t, err)
	return link.Token
}

func TestRedeemDeliversAndSchedulesEveryItem(t *testing.T) {
	f := newFixture(t)
	token := f.batch(t, 1, 3)

	res, err := f.orch.Redeem(context.Background(), 42, token)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Delivered)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, models.PlanBasic, res.Plan)

	require.Len(t, f.sender.sent, 3)
	assert.Equal(t, []int{101, 102, 103}, f.deletions.scheduled)
	for _, d := range f.deletions.delays {
		assert.Equal(t, 30*time.Minute, d)
	}
	assert.Equal(t, 1, f.orch.TodayStats().Redemptions)
}

func TestRedeemUsesCurrentBaseURL(t *testing.T) {
	f := newFixture(t)
	token := f.batch(t, 7, 7)
	require.NoError(t, f.state.Update(context.Background(), func(d *models.Snapshot) error {
		d.BaseURL = "https://new.example/"
		return nil
	}))

	_, err := f.orch.Redeem(context.Background(), 42, token)
	require.NoError(t, err)
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, []string{"https://new.example/p/7"}, f.sender.sent[0].Links)
}

func TestRedeemInvalidToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Redeem(context.Background(), 42, "missing")
	assert.ErrorIs(t, err, ErrInvalidLink)
	assert.Empty(t, f.sender.sent)
}

func TestRedeemMembershipRequiredDoesNotChargeQuota(t *testing.T) {
	f := newFixture(t)
	token := f.batch(t, 1, 1)
	f.members.missing = []int64{-1001}

	_, err := f.orch.Redeem(context.Background(), 42, token)
	var mErr *MembershipRequiredError
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, []int64{-1001}, mErr.Channels)

	f.members.missing = nil
	other := f.batch(t, 2, 2)
	_, err = f.orch.Redeem(context.Background(), 42, other)
	assert.NoError(t, err, "the basic daily link must still be available")
}

func TestRedeemQuotaExceeded(t *testing.T) {
	f := newFixture(t)
	first := f.batch(t, 1, 1)
	second := f.batch(t, 2, 2)

	_, err := f.orch.Redeem(context.Background(), 42, first)
	require.NoError(t, err)

	_, err = f.orch.Redeem(context.Background(), 42, second)
	var qErr *QuotaExceededError
	require.ErrorAs(t, err, &qErr)
	assert.Equal(t, models.PlanBasic, qErr.Plan)
	assert.Equal(t, 1, qErr.Limit)
	assert.Len(t, f.sender.sent, 1)

	_, err = f.orch.Redeem(context.Background(), 42, first)
	assert.NoError(t, err, "re-opening a counted link is free")
}

func TestRedeemFullPlanUnlimited(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.Activate(context.Background(), 42, models.PlanFull)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		res, err := f.orch.Redeem(context.Background(), 42, f.batch(t, i, i))
		require.NoError(t, err)
		assert.Equal(t, models.PlanFull, res.Plan)
	}
}

func TestRedeemSkipsFailedItemsAndKeepsQuota(t *testing.T) {
	f := newFixture(t)
	token := f.batch(t, 1, 3)
	f.sender.fail[1] = true

	res, err := f.orch.Redeem(context.Background(), 42, token)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Delivered)
	assert.Equal(t, 1, res.Skipped)
	assert.Len(t, f.deletions.scheduled, 2)

	_, err = f.orch.Redeem(context.Background(), 42, f.batch(t, 4, 4))
	var qErr *QuotaExceededError
	assert.ErrorAs(t, err, &qErr)
}

func TestRedeemLogsActivity(t *testing.T) {
	f := newFixture(t)
	_, _ = f.orch.Redeem(context.Background(), 42, "missing")

	require.Len(t, f.activity.actions, 1)
	assert.Equal(t, "invalid_link", f.activity.actions[0]["outcome"])
}

func TestTrackUserResetsDailyUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.orch.TrackUser(ctx, 1))
	require.NoError(t, f.orch.TrackUser(ctx, 2))
	require.NoError(t, f.orch.TrackUser(ctx, 2))
	assert.Equal(t, 2, f.orch.TodayStats().ActiveUsers)

	f.clock.Add(24 * time.Hour)
	assert.Equal(t, 0, f.orch.TodayStats().ActiveUsers)
	require.NoError(t, f.orch.TrackUser(ctx, 3))
	assert.Equal(t, 1, f.orch.TodayStats().ActiveUsers)

	snap := f.state.Snapshot()
	assert.Len(t, snap.AllUsers, 3)
}

func TestRedeemDeliversWhenStoreIsDown(t *testing.T) {
	f := newFixture(t)
	token := f.batch(t, 1, 2)
	f.store.Err = errors.New("server selection timeout")

	res, err := f.orch.Redeem(context.Background(), 10, token)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Delivered)
	assert.Len(t, f.deletions.scheduled, 2)
}
