// Package app wires the configuration, storage, Telegram transport and
// processing loops into one runnable unit.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"circularbot/internal/bot"
	"circularbot/internal/config"
	"circularbot/internal/runtime/supervisor"
	"circularbot/internal/scraper"
	"circularbot/internal/storage"
	"circularbot/internal/translator"
	"circularbot/internal/transport/telegram"
	"circularbot/internal/web"
)

const shutdownGrace = 15 * time.Second

type App struct {
	cfg       config.Config
	log       zerolog.Logger
	store     storage.Store
	tg        *telegram.Client
	scheduler *bot.Scheduler
	handler   *web.Handler
	chatID    int64
}

// New assembles every component. It connects to storage and Telegram,
// so a misconfigured environment fails here rather than mid-run.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*App, error) {
	chatID, err := cfg.BroadcastChatID()
	if err != nil {
		return nil, err
	}
	cutoff, err := cfg.CutoffDate()
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, storage.Config{
		MongoURI:    cfg.MongoURI,
		PostgresURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
	}, log.With().Str("component", "storage").Logger())
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	tg, err := telegram.New(telegram.Config{
		Token:   cfg.BotToken,
		Timeout: cfg.RequestTimeout,
	}, log.With().Str("component", "telegram").Logger())
	if err != nil {
		store.Close()
		return nil, err
	}
	log.Info().Str("username", tg.Username()).Msg("telegram connection verified")

	var trans bot.Translator
	if cfg.EnableTranslation {
		trans = translator.New(log.With().Str("component", "translator").Logger())
	}

	source := scraper.New(scraper.Config{
		URL:        cfg.SourceURL,
		UserAgent:  cfg.UserAgent,
		Timeout:    cfg.RequestTimeout,
		MaxRetries: cfg.MaxRetries,
	}, log.With().Str("component", "scraper").Logger())

	pipeLog := log.With().Str("component", "pipeline").Logger()
	filter := bot.NewFilter(store, cutoff, pipeLog)
	dispatcher := bot.NewDispatcher(tg, trans, cfg.EnableTranslation, cfg.ShowOriginalText, pipeLog)
	limiter := rate.NewLimiter(rate.Every(cfg.SendDelay), 1)
	processor := bot.NewProcessor(source, store, filter, dispatcher, limiter, chatID, pipeLog)

	listener := bot.NewCommandListener(tg, tg, processor, cfg.CommandPollTimeout,
		log.With().Str("component", "commands").Logger())
	scheduler := bot.NewScheduler(processor, listener, cfg.ScanInterval, cfg.CommandPollInterval,
		log.With().Str("component", "scheduler").Logger())

	return &App{
		cfg:       cfg,
		log:       log,
		store:     store,
		tg:        tg,
		scheduler: scheduler,
		handler:   web.NewHandler(store, log.With().Str("component", "web").Logger()),
		chatID:    chatID,
	}, nil
}

// Run starts every loop and blocks until ctx is cancelled, then shuts
// the application down in reverse order.
func (a *App) Run(ctx context.Context) error {
	sup := supervisor.New(ctx, a.log)

	srv := web.NewServer(":"+a.cfg.WebPort, a.handler)
	sup.Go("web-server", func(ctx context.Context) error {
		a.log.Info().Str("addr", srv.Addr).Msg("dashboard listening")
		return web.Run(ctx, srv, a.log)
	})

	sweeper := cron.New()
	if _, err := sweeper.AddFunc("@daily", a.retentionSweep); err != nil {
		return fmt.Errorf("schedule retention sweep: %w", err)
	}
	sweeper.Start()

	a.sendStartupMessage(ctx)
	a.scheduler.Start(ctx)
	a.log.Info().
		Str("backend", a.store.Backend()).
		Dur("scan_interval", a.cfg.ScanInterval).
		Msg("circularbot running")

	<-ctx.Done()
	a.log.Info().Msg("shutting down")

	// The command loop may be mid-delivery; drain it before touching
	// the store or announcing the shutdown.
	a.scheduler.Stop(shutdownGrace)
	a.sendShutdownMessage()

	cronCtx := sweeper.Stop()
	select {
	case <-cronCtx.Done():
	case <-time.After(shutdownGrace):
		a.log.Warn().Msg("retention sweep still running at shutdown")
	}

	sup.Cancel()
	sup.Wait(shutdownGrace)

	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("store close failed")
	}
	a.log.Info().Msg("shutdown complete")
	return sup.Err()
}

func (a *App) retentionSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	deleted, err := a.store.PurgeOlderThan(ctx, a.cfg.RetentionDays)
	if err != nil {
		a.log.Error().Err(err).Msg("retention sweep failed")
		return
	}
	if deleted > 0 {
		a.log.Info().Int64("deleted", deleted).Int("retention_days", a.cfg.RetentionDays).
			Msg("old notifications purged")
	}
}

func (a *App) sendStartupMessage(ctx context.Context) {
	text := "🤖 *Circular Bot Started*\n\n" +
		"✅ Bot is online and monitoring\n" +
		fmt.Sprintf("📊 Check interval: every %s\n", a.cfg.ScanInterval) +
		fmt.Sprintf("🗄 Storage: %s\n\n", a.store.Backend()) +
		"💬 Commands:\n/new - fetch the last 10 circulars (groups only)"
	if _, err := a.tg.SendMessage(ctx, a.chatID, text, telegram.SendOptions{ParseMode: tele.ModeMarkdown}); err != nil {
		a.log.Warn().Err(err).Msg("startup message failed")
	}
}

func (a *App) sendShutdownMessage() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	text := "🤖 *Circular Bot Shutting Down*\n\n⏹ Bot is going offline\n💾 State saved"
	if _, err := a.tg.SendMessage(ctx, a.chatID, text, telegram.SendOptions{ParseMode: tele.ModeMarkdown}); err != nil {
		a.log.Warn().Err(err).Msg("shutdown message failed")
	}
}
