package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	telegoBot "gatedrop-bot/bot"
	"gatedrop-bot/internal/auth"
	"gatedrop-bot/internal/broadcast"
	"gatedrop-bot/internal/config"
	"gatedrop-bot/internal/database"
	"gatedrop-bot/internal/deletion"
	"gatedrop-bot/internal/delivery"
	"gatedrop-bot/internal/handlers"
	"gatedrop-bot/internal/links"
	"gatedrop-bot/internal/locales"
	"gatedrop-bot/internal/metrics"
	"gatedrop-bot/internal/quota"
	"gatedrop-bot/internal/state"
	"gatedrop-bot/internal/subscriptions"
	"gatedrop-bot/internal/transport"
	"gatedrop-bot/pkg/logger"

	"github.com/benbjohnson/clock"
	sentry "github.com/getsentry/sentry-go"
	telego "github.com/mymmrac/telego"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	appLog := logger.NewLogger(cfg.Debug)

	err = sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.AppEnv,
		Release:          cfg.Version,
		EnableTracing:    true,
		TracesSampleRate: 1.0,
		Debug:            cfg.Debug,
	})
	if err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}
	defer sentry.Flush(2 * time.Second)

	fatal := func(msg string, err error) {
		sentry.CaptureException(err)
		appLog.Error(msg, "error", err)
		sentry.Flush(2 * time.Second)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage: MongoDB when configured, otherwise process memory.
	var (
		store    database.StateStore
		activity database.ActivityLogger
	)
	if cfg.MongoDBURI != "" {
		client, db, err := database.ConnectDB(ctx, cfg.MongoDBURI, cfg.MongoDBDatabase, appLog)
		if err != nil {
			fatal("failed to connect to MongoDB", err)
		}
		defer func() {
			if err := client.Disconnect(context.Background()); err != nil {
				appLog.Error("error disconnecting from MongoDB", "error", err)
				sentry.CaptureException(err)
			} else {
				appLog.Info("disconnected from MongoDB")
			}
		}()
		store = database.NewMongoStateStore(db, appLog)
		activity = database.NewMongoActivityLogger(db)
	} else {
		appLog.Warn("MONGODB_URI not set, state is kept in memory only")
		store = database.NewMemoryStateStore()
		activity = database.NewSlogActivityLogger(appLog)
	}

	st := state.New(store, cfg.DefaultBaseURL, cfg.AutoDeleteAfter)
	if err := st.Load(ctx); err != nil {
		fatal("failed to load state", err)
	}

	var bot *telego.Bot
	if cfg.Debug {
		bot, err = telego.NewBot(cfg.BotToken, telego.WithDefaultDebugLogger())
	} else {
		bot, err = telego.NewBot(cfg.BotToken, telego.WithDefaultLogger(false, false))
	}
	if err != nil {
		fatal("failed to create telego bot", err)
	}
	me, err := bot.GetMe(ctx)
	if err != nil {
		fatal("failed to get bot info", err)
	}

	clk := clock.New()
	tr := transport.NewTelegram(bot, cfg.DBChannelID, cfg.AdminID, appLog)
	checker := auth.NewChecker(bot, cfg.AdminID, cfg.RequiredChannels, appLog)
	registry := links.NewRegistry(st, clk, appLog)
	engine := quota.NewEngine(st, cfg.AdminID, appLog)
	ledger := subscriptions.NewLedger(st, clk, appLog)
	scheduler := deletion.NewScheduler(st, tr, clk, cfg.DeletesPerSecond, appLog)
	defer scheduler.Stop()

	orchestrator := delivery.New(delivery.Deps{
		Links:     registry,
		Members:   checker,
		Plans:     ledger,
		Quota:     engine,
		Sender:    tr,
		Deletions: scheduler,
		State:     st,
		Activity:  activity,
		Clock:     clk,
		Location:  cfg.Location,
		Log:       appLog,
	})

	bundle, err := locales.New(cfg.DefaultLanguage, appLog)
	if err != nil {
		fatal("failed to load locales", err)
	}

	messageHandler := handlers.NewMessageHandler(handlers.Deps{
		Config:        cfg,
		BotUsername:   me.Username,
		State:         st,
		Auth:          checker,
		Links:         registry,
		Quota:         engine,
		Subscriptions: ledger,
		Deletions:     scheduler,
		Delivery:      orchestrator,
		Broadcaster:   broadcast.NewBroadcaster(st, tr, cfg.BroadcastPerSecond, appLog),
		Transport:     tr,
		Locales:       bundle,
		Activity:      activity,
		Clock:         clk,
		Log:           appLog,
	})

	// Deletions left over from the previous run are re-armed or run now.
	recovered, err := scheduler.RecoverPending(ctx, st.Snapshot().Pending)
	if err != nil {
		appLog.Error("failed to recover pending deletions", "error", err)
	}
	appLog.Info("pending deletions recovered", "count", recovered)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.MustRegister(promRegistry)
	if cfg.MetricsAddr != "" {
		metrics.StartServer(ctx, appLog, cfg.MetricsAddr, promRegistry)
	}

	if err := messageHandler.SetupCommands(ctx, bot); err != nil {
		appLog.Error("failed to set up bot commands", "error", err)
		sentry.CaptureException(err)
	}

	go messageHandler.RunExpiryNotifier(ctx, bot, cfg.ExpirySweepInterval)

	updates, err := bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		AllowedUpdates: []string{"message", "callback_query", "channel_post"},
	})
	if err != nil {
		fatal("failed to start long polling", err)
	}

	appBot, err := telegoBot.New(telegoBot.BotDeps{
		Bot:              bot,
		UpdatesChan:      updates,
		Handler:          messageHandler,
		UpdatesPerSecond: cfg.UpdatesPerSecond,
		Debug:            cfg.Debug,
		Log:              appLog,
	})
	if err != nil {
		fatal("failed to create bot", err)
	}

	appLog.Info("bot started", "username", me.Username, "version", cfg.Version)
	appBot.Start(ctx)

	appLog.Info("shutting down bot")
	appBot.Stop()
	appLog.Info("bot shutdown complete")
}
