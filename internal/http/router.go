package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/wanotify/backend/internal/config"
	"github.com/wanotify/backend/internal/http/handlers"
	"github.com/wanotify/backend/internal/middleware"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	authHandler *handlers.AuthHandler,
	campaignHandler *handlers.CampaignHandler,
	webhookHandler *handlers.WebhookHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	// Gateway callbacks are never rate limited: Twilio retries on failures
	api.Post("/webhooks/twilio/status", webhookHandler.TwilioStatus)

	// Auth (public, limited by IP since there is no identity yet)
	api.Post("/auth/login", middleware.RateLimitMiddleware(rdb, 10, time.Minute), authHandler.Login)

	// Protected endpoints, limited per user
	protected := api.Group("",
		middleware.AuthMiddleware(cfg, log),
		middleware.RateLimitMiddleware(rdb, 100, time.Minute),
	)

	protected.Post("/campaigns/create", campaignHandler.CreateCampaign)
	protected.Get("/campaigns", campaignHandler.ListCampaigns)
	protected.Get("/campaigns/:id", campaignHandler.GetCampaign)
	protected.Post("/campaigns/:id/pause", campaignHandler.PauseCampaign)
	protected.Post("/campaigns/:id/resume", campaignHandler.ResumeCampaign)
	protected.Get("/campaigns/:id/delivery", campaignHandler.GetDelivery)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
