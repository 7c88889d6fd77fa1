package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/mixelka/unimail/internal/config"
	"github.com/mixelka/unimail/internal/database"
	"github.com/mixelka/unimail/internal/email"
	"github.com/mixelka/unimail/internal/formatter"
	"github.com/mixelka/unimail/internal/metrics"
	"github.com/mixelka/unimail/internal/parser"
	"github.com/mixelka/unimail/internal/secret"
	"github.com/mixelka/unimail/internal/telegram"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting unified mailbox bot")

	// Connect to database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations completed")

	box, err := secret.NewBox([]byte(cfg.EncryptionKey))
	if err != nil {
		logger.Error("failed to create credential box", "error", err)
		os.Exit(1)
	}

	overrides, err := email.LoadFolderCandidates(cfg.FoldersFile)
	if err != nil {
		logger.Error("failed to load folder candidates", "error", err)
		os.Exit(1)
	}
	if len(overrides) > 0 {
		logger.Info("folder candidate overrides loaded", "file", cfg.FoldersFile, "roles", len(overrides))
	}

	// Create components
	htmlParser := parser.NewHTMLParser()
	mail := email.NewClient(email.ClientDeps{
		Store: database.NewAccountStore(db, box),
		Dialer: email.NewIMAPDialer(email.DialerConfig{
			DialTimeout:   cfg.IMAPDialTimeout,
			OpTimeout:     cfg.IMAPOpTimeout,
			LoginRate:     cfg.LoginRate,
			LoginBurst:    cfg.LoginBurst,
			TLSSkipVerify: cfg.TLSSkipVerify,
		}, logger),
		Transport: email.NewSMTPTransport(cfg.IMAPDialTimeout, cfg.TLSSkipVerify),
		Text:      htmlParser,
		Resolver:  email.NewFolderResolver(overrides),
		Logger:    logger,
	}, email.ClientConfig{
		MaxParallel:      cfg.MaxParallelConnections,
		AggregateTimeout: cfg.AggregateTimeout,
	})

	bot, err := telegram.NewBot(telegram.BotDeps{
		Config:    cfg,
		DB:        db,
		Box:       box,
		Mail:      mail,
		Formatter: formatter.NewTelegramFormatter(htmlParser, parser.NewCodeFinder(3)),
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to create bot", "error", err)
		os.Exit(1)
	}

	if cfg.MetricsAddr != "" {
		go metrics.Serve(ctx, cfg.MetricsAddr, logger)
	}

	logger.Info("bot is running, press Ctrl+C to stop")
	bot.Start(ctx)

	logger.Info("bot stopped")
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
