package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/support-desk/internal/api/http"
	"github.com/spec-kit/support-desk/internal/api/http/handlers"
	"github.com/spec-kit/support-desk/internal/auth"
	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/notify"
	"github.com/spec-kit/support-desk/internal/observability"
	"github.com/spec-kit/support-desk/internal/persistence"
	"github.com/spec-kit/support-desk/internal/repository"
	"github.com/spec-kit/support-desk/internal/service"
	"github.com/spec-kit/support-desk/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App.Env)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	metrics := observability.NewMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pingers := map[string]handlers.Pinger{}

	var (
		userRepo   repository.UserRepository
		ticketRepo repository.TicketRepository
	)
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			logger.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer pg.Close()
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.Pool, cfg.Postgres.MigrationsDir, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		userRepo = repository.NewUserRepository(pg.Pool)
		ticketRepo = repository.NewTicketRepository(pg.Pool)
		pingers["postgres"] = pg
	case config.StoreDriverMongo:
		mg, err := persistence.NewMongo(ctx, cfg.Mongo, logger)
		if err != nil {
			logger.Fatal("failed to connect mongo", zap.Error(err))
		}
		defer mg.Close(context.Background())
		if err := repository.EnsureMongoIndexes(ctx, mg.DB); err != nil {
			logger.Fatal("failed to create mongo indexes", zap.Error(err))
		}
		userRepo = repository.NewMongoUserRepository(mg.DB)
		ticketRepo = repository.NewMongoTicketRepository(mg.DB)
		pingers["mongo"] = mg
	default:
		logger.Warn("using in-memory store; data is lost on restart")
		store := repository.NewMemoryStore()
		userRepo = store.Users()
		ticketRepo = store.Tickets()
	}

	var resetCodes repository.ResetCodeStore
	if cfg.Store.ResetCodeStore == "redis" {
		rdb := persistence.NewRedis(ctx, cfg.Redis, logger)
		defer rdb.Close()
		resetCodes = repository.NewRedisResetCodeStore(rdb.Client, cfg.Redis.Prefix)
		pingers["redis"] = rdb
	} else {
		resetCodes = repository.NewMemoryResetCodeStore()
	}

	var objectStore persistence.ObjectStore
	if cfg.MinIO.Endpoint != "" {
		minioStore, err := persistence.NewMinIO(cfg.MinIO)
		if err != nil {
			logger.Fatal("failed to configure minio", zap.Error(err))
		}
		if err := minioStore.EnsureBucket(ctx, logger); err != nil {
			logger.Warn("attachment bucket unavailable", zap.Error(err))
		}
		objectStore = minioStore
		pingers["minio"] = minioStore
	}

	var mailer notify.Mailer
	if cfg.SMTP.Host != "" {
		mailer = notify.NewSMTPMailer(cfg.SMTP, cfg.Notification.EmailFrom)
	} else {
		logger.Warn("SMTP_HOST not set; emails are logged, not sent")
		mailer = notify.NewLogMailer(logger)
	}
	var webhook notify.Poster
	if cfg.Notification.WebhookURL != "" {
		webhook = notify.NewWebhookPoster(cfg.Notification.WebhookURL, cfg.Notification.Timeout())
	}

	dispatcher := events.NewAsyncDispatcher(events.AsyncOptions{
		QueueSize: cfg.Notification.QueueSize,
		Workers:   cfg.Notification.Workers,
		Timeout:   cfg.Notification.Timeout(),
	}, logger, metrics)

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL())
	authService := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		UserRepo:     userRepo,
		ResetCodes:   resetCodes,
		TokenManager: tokenManager,
		Dispatcher:   dispatcher,
		Logger:       logger,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:         ticketRepo,
		ObjectStore:        objectStore,
		Dispatcher:         dispatcher,
		Logger:             logger,
		Metrics:            metrics,
		MaxTokenAttempts:   cfg.Tickets.TokenMaxAttempts,
		MaxAttachmentBytes: cfg.Tickets.MaxAttachmentBytes(),
		AllowAnonymous:     cfg.Tickets.AnonymousIntake(),
	})
	notificationService := service.NewNotificationService(service.NotificationDependencies{
		Dispatcher:   dispatcher,
		Mailer:       mailer,
		Webhook:      webhook,
		Logger:       logger,
		Metrics:      metrics,
		Config:       cfg.Notification,
		ResetCodeTTL: cfg.Auth.ResetCodeTTL(),
	})
	notificationWorker := worker.StartNotificationWorker(notificationService, dispatcher, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		Immutable:    true,
		BodyLimit:    cfg.App.BodyLimitMB * 1024 * 1024,
		ErrorHandler: httptransport.ErrorHandler(logger),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:          handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pingers),
		Users:           handlers.NewUsersHandler(authService),
		Tickets:         handlers.NewTicketsHandler(ticketService),
		AuthMiddleware:  auth.NewAuthMiddleware(tokenManager),
		Metrics:         metrics,
		AnonymousIntake: cfg.Tickets.AnonymousIntake(),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	_ = notificationWorker.Stop(stopCtx)
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
