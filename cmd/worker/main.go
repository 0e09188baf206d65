package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/wanotify/backend/internal/config"
	"github.com/wanotify/backend/internal/db"
	"github.com/wanotify/backend/internal/events"
	"github.com/wanotify/backend/internal/gateway"
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

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repos
	campaignRepo := repositories.NewCampaignRepo(pool)
	messageRepo := repositories.NewMessageLogRepo(pool)
	userRepo := repositories.NewUserRepo(pool)

	// Wiring
	publisher := events.NewRedisPublisher(rdb, log)
	sender := gateway.NewTwilioClient(
		cfg.TwilioBaseURL,
		cfg.TwilioAccountSID,
		cfg.TwilioAuthToken,
		cfg.TwilioWhatsAppFrom,
		cfg.TwilioSendTimeout,
		cfg.SendRatePerSecond,
		log,
	)
	processor := services.NewCampaignProcessor(campaignRepo, messageRepo, userRepo, sender, publisher, log)
	jobQueue := queue.New(rdb, cfg.QueueRetention, cfg.QueueClaimTimeout, log)

	log.Info("worker started", zap.Int("consumers", cfg.WorkerConcurrency))

	var wg sync.WaitGroup
	for i := 0; i < cfg.WorkerConcurrency; i++ {
		consumer := queue.NewConsumer(jobQueue, processor.HandleJob, processor.FailCampaign, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			consumer.Run(ctx)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down worker")
	cancel()
	wg.Wait()
}
