package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nocturne-health/demo-backend/config"
	"github.com/nocturne-health/demo-backend/internal/bootstrap"
	cronjob "github.com/nocturne-health/demo-backend/internal/demodata/cron"
	"github.com/nocturne-health/demo-backend/internal/demodata/repository"
	"github.com/nocturne-health/demo-backend/internal/demodata/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	pool, err := bootstrap.OpenDB(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	redisClient, err := bootstrap.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer redisClient.Close()

	svc := service.NewDemoDataService(
		cfg.Demo,
		repository.NewEntryRepository(pool),
		repository.NewTreatmentRepository(pool),
		repository.NewStateRepository(redisClient),
	)

	cronjob.NewScheduler(svc).Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("worker shutting down")
}
