package bot

import (
	"context"
	"testing"
	"time"

	"gatedrop-bot/internal/handlers"
	"gatedrop-bot/pkg/logger"
	"gatedrop-bot/pkg/telegoapi/mocks"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidatesDeps(t *testing.T) {
	updates := make(chan telego.Update)
	valid := BotDeps{
		Bot:         new(mocks.MockBot),
		UpdatesChan: updates,
		Handler:     &handlers.MessageHandler{},
		Log:         logger.Discard(),
	}

	_, err := New(valid)
	require.NoError(t, err)

	noBot := valid
	noBot.Bot = nil
	_, err = New(noBot)
	assert.ErrorContains(t, err, "BotAPI")

	noHandler := valid
	noHandler.Handler = nil
	_, err = New(noHandler)
	assert.ErrorContains(t, err, "handler")

	noUpdates := valid
	noUpdates.UpdatesChan = nil
	_, err = New(noUpdates)
	assert.ErrorContains(t, err, "updates channel")
}

func TestStartReturnsWhenUpdatesClose(t *testing.T) {
	updates := make(chan telego.Update)
	b, err := New(BotDeps{
		Bot:         new(mocks.MockBot),
		UpdatesChan: updates,
		Handler:     &handlers.MessageHandler{},
		Log:         logger.Discard(),
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		b.Start(context.Background())
		close(done)
	}()
	// Updates the bot does not route are dropped.
	updates <- telego.Update{UpdateID: 1}
	close(updates)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after the updates channel closed")
	}
}

func TestStartReturnsOnCancel(t *testing.T) {
	b, err := New(BotDeps{
		Bot:         new(mocks.MockBot),
		UpdatesChan: make(chan telego.Update),
		Handler:     &handlers.MessageHandler{},
		Log:         logger.Discard(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b.Start(ctx)
}
