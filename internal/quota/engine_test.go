package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gatedrop-bot/internal/database"
	"gatedrop-bot/internal/models"
	"gatedrop-bot/internal/state"
	"gatedrop-bot/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const operatorID = 1

func newTestEngine(t *testing.T) (*Engine, *database.MemoryStateStore) {
	t.Helper()
	store := database.NewMemoryStateStore()
	st := state.New(store, "", time.Hour)
	return NewEngine(st, operatorID, logger.Discard()), store
}

func TestBasicPlanOneTokenPerDay(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	dec, err := eng.CheckAndRecord(ctx, 10, "tok1", models.PlanBasic, "2025-05-01")
	require.NoError(t, err)
	assert.True(t, dec.Allowed)

	dec, err = eng.CheckAndRecord(ctx, 10, "tok2", models.PlanBasic, "2025-05-01")
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, ReasonBasicExhausted, dec.Reason)
	assert.Equal(t, 1, dec.Limit)
}

func TestSameTokenNeverDoubleCharges(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		dec, err := eng.CheckAndRecord(ctx, 10, "tok1", models.PlanBasic, "2025-05-01")
		require.NoError(t, err)
		assert.True(t, dec.Allowed)
		assert.Equal(t, 1, dec.Used)
	}
	assert.Equal(t, 1, store.Saves(), "repeat redemptions must not persist")
	assert.Equal(t, 1, eng.UsedToday(10, "2025-05-01"))
}

func TestLimitedPlanThreeTokensPerDay(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		dec, err := eng.CheckAndRecord(ctx, 20, fmt.Sprintf("tok%d", i), models.PlanLimited, "2025-05-01")
		require.NoError(t, err)
		assert.True(t, dec.Allowed, "token %d", i)
	}

	dec, err := eng.CheckAndRecord(ctx, 20, "tok4", models.PlanLimited, "2025-05-01")
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, ReasonLimitedExhausted, dec.Reason)
	assert.Equal(t, 3, dec.Used)
}

func TestFullPlanUnlimited(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		dec, err := eng.CheckAndRecord(ctx, 30, fmt.Sprintf("tok%d", i), models.PlanFull, "2025-05-01")
		require.NoError(t, err)
		assert.True(t, dec.Allowed)
		assert.Equal(t, Unlimited, dec.Limit)
	}
}

func TestOperatorBypassesQuota(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		dec, err := eng.CheckAndRecord(ctx, operatorID, fmt.Sprintf("tok%d", i), models.PlanBasic, "2025-05-01")
		require.NoError(t, err)
		assert.True(t, dec.Allowed)
	}
	assert.Equal(t, 0, store.Saves())
}

func TestLazyDailyReset(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	dec, err := eng.CheckAndRecord(ctx, 10, "tok1", models.PlanBasic, "2025-05-01")
	require.NoError(t, err)
	require.True(t, dec.Allowed)
	dec, err = eng.CheckAndRecord(ctx, 10, "tok2", models.PlanBasic, "2025-05-02")
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Equal(t, 0, eng.UsedToday(10, "2025-05-01"))
	assert.Equal(t, 1, eng.UsedToday(10, "2025-05-02"))
}

func TestConcurrentRedemptionsDoNotOvershoot(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	var allowed int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dec, err := eng.CheckAndRecord(ctx, 40, fmt.Sprintf("tok%d", i), models.PlanLimited, "2025-05-01")
			if err == nil && dec.Allowed {
				atomic.AddInt32(&allowed, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(3), allowed)
	assert.Equal(t, 3, eng.UsedToday(40, "2025-05-01"))
}

func TestDayKeyUsesLocation(t *testing.T) {
	ts := time.Date(2025, 5, 1, 23, 30, 0, 0, time.UTC)
	tokyo := time.FixedZone("JST", 9*60*60)
	assert.Equal(t, "2025-05-01", DayKey(ts, nil))
	assert.Equal(t, "2025-05-02", DayKey(ts, tokyo))
}

func TestAllowedLinks(t *testing.T) {
	assert.Equal(t, Unlimited, AllowedLinks(models.PlanFull))
	assert.Equal(t, 3, AllowedLinks(models.PlanLimited))
	assert.Equal(t, 1, AllowedLinks(models.PlanBasic))
}

func TestSaveFailureStillAllowsAndKeepsRecord(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	store.Err = errors.New("no reachable servers")
	dec, err := eng.CheckAndRecord(ctx, 10, "tok1", models.PlanBasic, "2025-05-01")
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Equal(t, 1, eng.UsedToday(10, "2025-05-01"))

	// Reopening the same token stays free once the store is back.
	store.Err = nil
	dec, err = eng.CheckAndRecord(ctx, 10, "tok1", models.PlanBasic, "2025-05-01")
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
}
