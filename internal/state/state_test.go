package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gatedrop-bot/internal/database"
	"gatedrop-bot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadKeepsDefaultsWhenStoreEmpty(t *testing.T) {
	st := New(database.NewMemoryStateStore(), "https://default.example/", time.Hour)
	require.NoError(t, st.Load(context.Background()))

	snap := st.Snapshot()
	assert.Equal(t, "https://default.example/", snap.BaseURL)
	assert.Equal(t, time.Hour, snap.AutoDeleteAfter)
}

func TestLoadFillsEmptyFieldsFromDefaults(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStateStore()
	stored := models.NewSnapshot("", 0)
	stored.AllUsers[5] = struct{}{}
	require.NoError(t, store.SaveAll(ctx, stored))

	st := New(store, "https://default.example/", time.Hour)
	require.NoError(t, st.Load(ctx))

	st.View(func(d *models.Snapshot) {
		assert.Equal(t, "https://default.example/", d.BaseURL)
		assert.Equal(t, time.Hour, d.AutoDeleteAfter)
		assert.Contains(t, d.AllUsers, int64(5))
	})
}

func TestLoadError(t *testing.T) {
	store := database.NewMemoryStateStore()
	store.Err = errors.New("unreachable")
	st := New(store, "", time.Hour)
	assert.ErrorContains(t, st.Load(context.Background()), "failed to load state")
}

func TestUpdatePersists(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStateStore()
	st := New(store, "https://a.example/", time.Hour)

	err := st.Update(ctx, func(d *models.Snapshot) error {
		d.AllUsers[1] = struct{}{}
		return nil
	})
	require.NoError(t, err)

	saved, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Contains(t, saved.AllUsers, int64(1))
}

func TestUpdateErrorSkipsSave(t *testing.T) {
	store := database.NewMemoryStateStore()
	st := New(store, "", time.Hour)
	errStop := errors.New("stop")

	err := st.Update(context.Background(), func(d *models.Snapshot) error { return errStop })
	assert.ErrorIs(t, err, errStop)
	assert.Equal(t, 0, store.Saves())
}

func TestSaveWrapsStoreError(t *testing.T) {
	store := database.NewMemoryStateStore()
	diskFull := errors.New("disk full")
	store.Err = diskFull
	st := New(store, "", time.Hour)

	err := st.Save(context.Background())
	assert.ErrorContains(t, err, "failed to save state")
	assert.ErrorIs(t, err, ErrNotSaved)
	assert.ErrorIs(t, err, diskFull)
}

func TestUpdateSaveFailureKeepsMutationForNextSave(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStateStore()
	st := New(store, "", time.Hour)

	store.Err = errors.New("connection reset")
	err := st.Update(ctx, func(d *models.Snapshot) error {
		d.AllUsers[7] = struct{}{}
		return nil
	})
	require.ErrorIs(t, err, ErrNotSaved)
	st.View(func(d *models.Snapshot) {
		assert.Contains(t, d.AllUsers, int64(7))
	})

	store.Err = nil
	require.NoError(t, st.Update(ctx, func(d *models.Snapshot) error {
		d.AllUsers[8] = struct{}{}
		return nil
	}))
	saved, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Contains(t, saved.AllUsers, int64(7))
	assert.Contains(t, saved.AllUsers, int64(8))
}

func TestConcurrentUpdatesAllPersisted(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStateStore()
	st := New(store, "", time.Hour)

	var wg sync.WaitGroup
	for i := int64(0); i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_ = st.Update(ctx, func(d *models.Snapshot) error {
				d.AllUsers[id] = struct{}{}
				return nil
			})
		}(i)
	}
	wg.Wait()

	saved, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, saved.AllUsers, 50)
}

func TestSnapshotIsDetached(t *testing.T) {
	st := New(database.NewMemoryStateStore(), "", time.Hour)
	snap := st.Snapshot()
	snap.AllUsers[9] = struct{}{}
	st.View(func(d *models.Snapshot) {
		assert.NotContains(t, d.AllUsers, int64(9))
	})
}
