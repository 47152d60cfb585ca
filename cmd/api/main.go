package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/nocturne-health/demo-backend/config"
	"github.com/nocturne-health/demo-backend/internal/bootstrap"
	demohttp "github.com/nocturne-health/demo-backend/internal/demodata/http"
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
	handler := demohttp.NewHandler(svc)

	bootstrap.SetGinMode(os.Getenv("APP_ENV"))

	r := gin.Default()
	r.Use(cors.Default())
	r.Use(demohttp.RequestID())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1/demo")
	api.Use(demohttp.RateLimit(rate.Limit(5), 10))
	handler.Register(api)

	log.Printf("listening on :%s", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
