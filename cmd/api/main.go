package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/wanotify/backend/internal/config"
	"github.com/wanotify/backend/internal/db"
	"github.com/wanotify/backend/internal/events"
	apphttp "github.com/wanotify/backend/internal/http"
	"github.com/wanotify/backend/internal/http/handlers"
	"github.com/wanotify/backend/internal/queue"
	"github.com/wanotify/backend/internal/repositories"
	"github.com/wanotify/backend/internal/services"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repositories
	userRepo := repositories.NewUserRepo(pool)
	templateRepo := repositories.NewTemplateRepo(pool)
	campaignRepo := repositories.NewCampaignRepo(pool)
	messageRepo := repositories.NewMessageLogRepo(pool)

	// Events + queue
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)
	jobQueue := queue.New(rdb, cfg.QueueRetention, cfg.QueueClaimTimeout, log)

	// Services
	dispatchService := services.NewDispatchService(
		campaignRepo, templateRepo, userRepo, messageRepo, jobQueue, publisher, cfg, log)

	// Handlers
	authHandler := handlers.NewAuthHandler(userRepo, cfg, log)
	campaignHandler := handlers.NewCampaignHandler(dispatchService, log)
	webhookHandler := handlers.NewWebhookHandler(messageRepo, publisher, log)
	wsHub := handlers.NewWSHub(cfg, subscriber, campaignRepo, log)

	// Start WS hub
	wsHub.Start(ctx)

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 20 * 1024 * 1024, // CSV uploads
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, authHandler, campaignHandler, webhookHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
