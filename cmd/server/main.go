package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/user/centsalert/internal/auth"
	"github.com/user/centsalert/internal/channel"
	"github.com/user/centsalert/internal/config"
	"github.com/user/centsalert/internal/dispatch"
	"github.com/user/centsalert/internal/scheduler"
	"github.com/user/centsalert/internal/server"
	"github.com/user/centsalert/internal/source"
	"github.com/user/centsalert/internal/storage"
	"github.com/user/centsalert/internal/telegram"
	"github.com/user/centsalert/pkg/logger"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		// Try to initialize basic logger for error output
		logger.Init(true, "")
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	debug := cfg.Log.Level == "debug"
	if err := logger.Init(debug, cfg.Log.File); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	logger.Info().Msg("Starting CEnT-S Alert service")
	logger.Info().Str("source", cfg.Source.URL).Dur("interval", cfg.PollInterval()).Msg("Monitoring exam calendar")

	// Initialize database
	db, err := storage.NewDatabase(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	subscribers := storage.NewSubscriberStore(db)
	snapshots := storage.NewSnapshotStore(db)
	ledger := storage.NewDeliveryLedger(db)
	sessions := storage.NewSessionStore(db)
	logger.Info().Str("path", cfg.Database.Path).Msg("Database initialized")

	// Initialize Telegram bot
	bot, err := telegram.NewBot(cfg.Telegram.Token, cfg.Telegram.Debug, subscribers)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize Telegram bot")
	}

	// Channel senders
	senders := map[storage.Channel]channel.Sender{
		storage.ChannelTelegram: channel.NewTelegramSender(bot.GetAPI()),
	}
	if cfg.Messaging.AccountSID != "" {
		messaging := channel.NewMessagingClient(
			cfg.Messaging.AccountSID, cfg.Messaging.AuthToken,
			cfg.Messaging.FromNumber, cfg.Messaging.VoiceURL,
		)
		senders[storage.ChannelSMS] = channel.NewSMSSender(messaging)
		senders[storage.ChannelVoice] = channel.NewVoiceSender(messaging)
		logger.Info().Msg("SMS and voice channels enabled")
	} else {
		logger.Warn().Msg("Messaging provider not configured, SMS and voice channels disabled")
	}

	// Dispatch pipeline
	coordinator := dispatch.NewCoordinator(senders, ledger, cfg.PollInterval())
	fetcher := source.NewClient(cfg.Source.URL, cfg.FetchTimeout())
	sched := scheduler.New(fetcher, snapshots, subscribers, coordinator, cfg.PollInterval())
	sched.Start()

	// Auth service
	authSvc := auth.NewService(cfg.Auth, cfg.SessionTTL(), subscribers, sessions)

	// HTTP API
	api := server.New(
		cfg.ServerAddress(), cfg.Server.CORSOrigins,
		authSvc, subscribers, snapshots, ledger, sched,
		senders[storage.ChannelTelegram], bot.Username(),
	)

	go func() {
		if err := api.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Start Telegram bot
	bot.Start()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("Shutting down...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sched.Stop()

	if err := api.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	bot.Stop()

	logger.Info().Msg("Shutdown complete")
}
