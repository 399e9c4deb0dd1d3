package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Sdongmaker/emby-cdn-preheat/internal/approval"
	"github.com/Sdongmaker/emby-cdn-preheat/internal/cdn"
	"github.com/Sdongmaker/emby-cdn-preheat/internal/config"
	"github.com/Sdongmaker/emby-cdn-preheat/internal/db"
	"github.com/Sdongmaker/emby-cdn-preheat/internal/db/repository"
	"github.com/Sdongmaker/emby-cdn-preheat/internal/dispatcher"
	"github.com/Sdongmaker/emby-cdn-preheat/internal/events"
	"github.com/Sdongmaker/emby-cdn-preheat/internal/handler"
	"github.com/Sdongmaker/emby-cdn-preheat/internal/notify"
	"github.com/Sdongmaker/emby-cdn-preheat/internal/resolver"
	"github.com/Sdongmaker/emby-cdn-preheat/internal/service"
	"github.com/Sdongmaker/emby-cdn-preheat/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg); err != nil {
		logger.Log.Fatal("Server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer db.Close(pool)
	logger.Log.Info("Database connection established",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Name))

	repo := repository.NewReviewRequestRepository(pool)

	// Optional event mirror.
	var publisher *events.Publisher
	if cfg.AMQP.Host != "" {
		publisher, err = events.NewPublisher(&cfg.AMQP)
		if err != nil {
			logger.Log.Warn("Event mirror unavailable, continuing without it", zap.Error(err))
			publisher = nil
		} else {
			defer func() { _ = publisher.Close() }()
		}
	}

	// Optional CDN warmer.
	var warmer cdn.Warmer
	if cfg.Tencent.Enabled {
		tencent, err := cdn.NewTencentWarmer(&cfg.Tencent)
		if err != nil {
			logger.Log.Warn("CDN warmer unavailable, approvals will not warm", zap.Error(err))
		} else {
			warmer = tencent
			logger.Log.Info("Tencent CDN warmer initialized",
				zap.String("region", cfg.Tencent.Region))
		}
	} else {
		logger.Log.Info("CDN warming disabled by configuration")
	}

	// The review channel is optional too: without a bot token the service
	// degrades to recording requests (or auto-approving, per config).
	var bot *notify.TelegramBot
	var disp *dispatcher.Dispatcher
	if cfg.Review.Enabled {
		bot, err = notify.NewTelegramBot(cfg.Telegram.BotToken, cfg.Telegram.AdminChatIDs, repo)
		if err != nil {
			logger.Log.Warn("Review channel unavailable, requests will be recorded but not notified",
				zap.Error(err))
		} else {
			disp = dispatcher.New(bot, repo, cfg.Telegram.AdminChatIDs, &cfg.Batch)

			if err := disp.Reconcile(ctx, repo); err != nil {
				logger.Log.Warn("Failed to re-queue unnotified requests", zap.Error(err))
			}

			go bot.Run(ctx)
			go disp.Run(ctx)

			var decidedMirror approval.EventMirror
			if publisher != nil {
				decidedMirror = publisher
			}
			processor := approval.New(repo, bot, warmer, decidedMirror)
			go processor.Run(ctx, bot)
		}

		if cfg.Review.TimeoutSeconds > 0 {
			// Pending requests never expire; the timeout is informational.
			logger.Log.Info("Review timeout configured but not enforced, pending requests wait indefinitely",
				zap.Int("timeoutSeconds", cfg.Review.TimeoutSeconds))
		}
	} else {
		logger.Log.Info("Human review disabled",
			zap.Bool("autoApprove", cfg.Review.AutoApproveIfDisabled))
	}

	res := resolver.New(cfg.Mappings, cfg.Blacklist.Paths, cfg.SmartMatch)
	var enqueuer service.Enqueuer
	if disp != nil {
		enqueuer = disp
	}
	var mirror service.EventMirror
	if publisher != nil {
		mirror = publisher
	}
	preheat := service.NewPreheatService(res, repo, enqueuer, warmer, mirror, cfg.Review)

	router := buildRouter(cfg, preheat, repo, pool, publisher)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Log.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case sig := <-shutdown:
		logger.Log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		// Stop background workers before refusing new requests so in-flight
		// decisions finish cleanly.
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("Graceful shutdown failed", zap.Error(err))
			if err := server.Close(); err != nil {
				return fmt.Errorf("close server: %w", err)
			}
		}

		logger.Log.Info("Server stopped gracefully")
		return nil
	}
}

func buildRouter(cfg *config.Config, preheat *service.PreheatService, repo repository.ReviewRequestRepository, pool *pgxpool.Pool, publisher *events.Publisher) *gin.Engine {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	webhookHandler := handler.NewWebhookHandler(preheat)
	reviewHandler := handler.NewReviewHandler(repo)
	healthHandler := handler.NewHealthHandler(pool, publisher)

	router.POST("/webhook/emby", webhookHandler.HandleEmbyWebhook)

	api := router.Group("/api/v1")
	{
		api.GET("/requests/pending", reviewHandler.ListPending)
		api.GET("/requests/approved", reviewHandler.ListApproved)
		api.GET("/stats", reviewHandler.Stats)
	}

	router.GET("/health/live", healthHandler.LivenessProbe)
	router.GET("/health/ready", healthHandler.ReadinessProbe)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
