package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"gatedrop-bot/internal/handlers"
	telegoapi "gatedrop-bot/pkg/telegoapi"

	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	"go.uber.org/ratelimit"
)

const processTimeout = 30 * time.Second

// Bot runs the update loop and routes every update to the message handler.
type Bot struct {
	bot         telegoapi.BotAPI
	updatesChan <-chan telego.Update
	debug       bool
	handler     *handlers.MessageHandler
	ratelimiter ratelimit.Limiter
	log         *slog.Logger
}

// BotDeps holds the dependencies required by the Bot.
type BotDeps struct {
	Bot         telegoapi.BotAPI
	UpdatesChan <-chan telego.Update
	Handler     *handlers.MessageHandler
	// UpdatesPerSecond caps update processing; zero or less disables the cap.
	UpdatesPerSecond int
	Debug            bool
	Log              *slog.Logger
}

// New creates a new Bot from its dependencies.
func New(deps BotDeps) (*Bot, error) {
	if deps.Bot == nil {
		return nil, errors.New("telego bot (BotAPI) instance cannot be nil")
	}
	if deps.Handler == nil {
		return nil, errors.New("message handler cannot be nil")
	}
	if deps.UpdatesChan == nil {
		return nil, errors.New("updates channel cannot be nil")
	}
	if deps.Log == nil {
		return nil, errors.New("logger cannot be nil")
	}

	limiter := ratelimit.NewUnlimited()
	if deps.UpdatesPerSecond > 0 {
		limiter = ratelimit.New(deps.UpdatesPerSecond)
	}
	return &Bot{
		bot:         deps.Bot,
		updatesChan: deps.UpdatesChan,
		debug:       deps.Debug,
		handler:     deps.Handler,
		ratelimiter: limiter,
		log:         deps.Log,
	}, nil
}

// report logs a handler error and sends it to Sentry.
func (b *Bot) report(kind string, err error, attrs ...any) {
	b.log.Error(kind+" handler error", append(attrs, "error", err)...)
	sentry.CaptureException(fmt.Errorf("%s handler error: %w", kind, err))
}

// handlePrivateMessage routes a private message to a command or to the
// non-command handler.
func (b *Bot) handlePrivateMessage(ctx context.Context, message telego.Message) {
	b.handler.TrackUser(ctx, message.From)

	if name, _ := handlers.ParseCommand(message.Text); name != "" {
		if fn := b.handler.GetCommandHandler(name, message.From.ID); fn != nil {
			if b.debug {
				b.log.Debug("executing command", "command", name, "user_id", message.From.ID)
			}
			if err := fn(ctx, b.bot, message); err != nil {
				b.report("command", err, "command", name, "user_id", message.From.ID)
			}
			return
		}
		b.log.Debug("no handler for command", "command", name, "user_id", message.From.ID)
	}

	if err := b.handler.HandlePrivateMessage(ctx, b.bot, message); err != nil {
		b.report("message", err, "user_id", message.From.ID, "message_id", message.MessageID)
	}
}

// processUpdate routes incoming updates to the appropriate handlers.
func (b *Bot) processUpdate(ctx context.Context, update telego.Update) {
	b.ratelimiter.Take()

	defer func() {
		if r := recover(); r != nil {
			b.log.Error("panic recovered in processUpdate", "panic", r, "stack", string(debug.Stack()))
			sentry.CurrentHub().Recover(r)
			sentry.Flush(2 * time.Second)
		}
	}()

	switch {
	case update.Message != nil:
		message := *update.Message
		if message.From == nil || message.Chat.Type != telego.ChatTypePrivate {
			return
		}
		processingCtx, cancel := context.WithTimeout(ctx, processTimeout)
		defer cancel()
		b.handlePrivateMessage(processingCtx, message)

	case update.CallbackQuery != nil:
		processingCtx, cancel := context.WithTimeout(ctx, processTimeout)
		defer cancel()
		if err := b.handler.HandleCallbackQuery(processingCtx, b.bot, *update.CallbackQuery); err != nil {
			b.report("callback", err, "user_id", update.CallbackQuery.From.ID, "data", update.CallbackQuery.Data)
		}

	case update.ChannelPost != nil:
		// Broadcasts fan out to every user, so they run without the per-update timeout.
		if err := b.handler.HandleChannelPost(ctx, b.bot, *update.ChannelPost); err != nil {
			b.report("channel post", err, "chat_id", update.ChannelPost.Chat.ID)
		}

	default:
		if b.debug {
			b.log.Debug("ignoring unhandled update type", "update_id", update.UpdateID)
		}
	}
}

// Start processes updates until ctx is done or the updates channel closes.
func (b *Bot) Start(ctx context.Context) {
	b.log.Info("listening for updates")

	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			b.log.Info("context done, stopping update processing")
			wg.Wait()
			b.log.Info("all update processing finished")
			return
		case update, ok := <-b.updatesChan:
			if !ok {
				b.log.Info("updates channel closed")
				wg.Wait()
				return
			}
			wg.Add(1)
			go func(up telego.Update) {
				defer wg.Done()
				b.processUpdate(ctx, up)
			}(update)
		}
	}
}

// Stop is called on shutdown. The loop itself stops with its context.
func (b *Bot) Stop() {
	b.log.Info("bot stopped")
}
