package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"sonaged-backend/internal/config"
	"sonaged-backend/internal/database"
	"sonaged-backend/internal/dispatch"
	"sonaged-backend/internal/handlers"
	"sonaged-backend/internal/intake"
	"sonaged-backend/internal/logger"
	"sonaged-backend/internal/middleware"
	"sonaged-backend/internal/models"
	"sonaged-backend/internal/services"
	"sonaged-backend/internal/snapshot"
	"sonaged-backend/internal/transport/telegram"
	"sonaged-backend/internal/transport/whatsapp"
	"sonaged-backend/internal/websocket"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("❌ FATAL ERROR: invalid configuration")
	}
	logger.Setup(cfg)

	log.Info().Str("env", cfg.Env).Msg("🚀 Report intake server starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("❌ FATAL ERROR")
	}
	log.Info().Msg("👋 Server stopped")
}

func run(ctx context.Context, cfg config.Config) error {
	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		return err
	}

	hub := websocket.NewHub()
	go hub.Run(ctx)

	reports := services.NewReportService(
		database.NewReportRepository(db),
		snapshot.NewFile(cfg.SnapshotPath),
		hub,
	)
	if n, err := reports.RefreshSnapshot(ctx); err != nil {
		log.Warn().Err(err).Msg("⚠️ Initial snapshot refresh failed")
	} else {
		log.Info().Int("reports", n).Str("path", cfg.SnapshotPath).Msg("✅ Snapshot written")
	}

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return fmt.Errorf("failed to initialize Telegram API: %w", err)
	}
	log.Info().Str("bot", api.Self.UserName).Msg("✅ Telegram bot authorized")

	var waClient *whatsapp.Client
	if cfg.WhatsApp.Enabled() {
		waClient = whatsapp.NewClient(cfg.WhatsApp)
	}

	broadcaster := services.NewBroadcaster(addressResolver(cfg), cfg.MapURL, notificationTargets(ctx, cfg, api, waClient)...)
	log.Info().Strs("targets", broadcaster.Targets()).Msg("📣 Notification targets")

	sessions := intake.NewSessionStore(cfg.Sessions.TTL)
	if cfg.Sessions.TTL > 0 {
		go sessions.RunJanitor(ctx, cfg.Sessions.SweepInterval)
	}
	engine := intake.NewEngine(sessions, reports, broadcaster)

	// Jobs already queued at shutdown still need a live context to finish.
	dispatcher := dispatch.New(context.WithoutCancel(ctx), engine, dispatch.Options{
		QueueSize:  cfg.Dispatch.QueueSize,
		JobTimeout: cfg.Dispatch.JobTimeout,
	})

	adminAuth, err := middleware.NewAdminAuth(cfg.Admin.Token, cfg.Admin.JWTSecret)
	if err != nil {
		return err
	}
	if adminAuth.Open() {
		log.Warn().Msg("⚠️ ADMIN_TOKEN not set, admin routes are open")
	}

	deps := handlers.RouterDeps{
		Reports:  reports,
		Admin:    adminAuth,
		DB:       db,
		Stats:    runtimeStats{sessions: sessions, dispatcher: dispatcher},
		LiveFeed: websocket.HandleWebSocket(hub),
	}

	bot := telegram.NewBot(api, dispatcher, cfg.Telegram.WebhookSecret)
	if cfg.Telegram.UseWebhook {
		webhookURL := cfg.TelegramWebhookURL()
		if webhookURL == "" {
			return errors.New("USE_WEBHOOK requires PUBLIC_BASE_URL")
		}
		if err := telegram.RegisterWebhook(api, webhookURL, cfg.Telegram.WebhookSecret); err != nil {
			return err
		}
		deps.TelegramWebhook = bot.WebhookHandler()
		deps.TelegramPath = "/" + strings.TrimPrefix(cfg.Telegram.WebhookPath, "/")
		log.Info().Str("url", webhookURL).Msg("🔗 Telegram webhook mode")
	} else {
		if err := telegram.DeleteWebhook(api); err != nil {
			log.Warn().Err(err).Msg("⚠️ Could not clear Telegram webhook")
		}
		go func() {
			if err := bot.StartLongPolling(ctx, api); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("❌ Long polling stopped")
			}
		}()
		log.Info().Msg("🤖 Telegram long polling mode")
	}

	if waClient != nil {
		wh := whatsapp.NewWebhook(cfg.WhatsApp.VerifyToken, cfg.WhatsApp.AppSecret, dispatcher, waClient)
		deps.WhatsAppVerify = wh.Verify
		deps.WhatsAppReceive = wh.Receive
		log.Info().Msg("💬 WhatsApp webhook enabled")
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("🔌 Ready to accept requests")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("🛑 Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("⚠️ HTTP shutdown incomplete")
	}
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("⚠️ Pending conversation events dropped")
	}
	return nil
}

func notificationTargets(ctx context.Context, cfg config.Config, api *tgbotapi.BotAPI, waClient *whatsapp.Client) []services.Target {
	var targets []services.Target

	if cfg.Telegram.GroupChatID != 0 {
		group := services.NewTelegramGroupTarget(api, cfg.Telegram.GroupChatID)
		if waClient != nil {
			group.WithMedia(models.ChannelWhatsApp, waClient)
		}
		targets = append(targets, group)
	} else {
		log.Info().Msg("ℹ️ GROUP_CHAT_ID not set, send /groupinfo in the group to get it")
	}

	fcm, err := services.NewFCMService(ctx, cfg.Firebase)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("⚠️ Failed to initialize FCM (push notifications disabled)")
	case fcm != nil:
		targets = append(targets, fcm)
	}
	return targets
}

func addressResolver(cfg config.Config) services.AddressResolver {
	if g := services.NewGeocodingService(cfg.Geocoding.GoogleMapsAPIKey); g != nil {
		return services.NewAddressCache(g, 1000, 24*time.Hour)
	}
	return nil
}

type runtimeStats struct {
	sessions   *intake.SessionStore
	dispatcher *dispatch.Dispatcher
}

func (s runtimeStats) Sessions() int      { return s.sessions.Len() }
func (s runtimeStats) Conversations() int { return s.dispatcher.Active() }
