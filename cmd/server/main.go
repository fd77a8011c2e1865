package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/smartcanteen/api/internal/config"
	"github.com/smartcanteen/api/internal/database"
	"github.com/smartcanteen/api/internal/forecast"
	"github.com/smartcanteen/api/internal/notify"
	"github.com/smartcanteen/api/internal/router"
	"github.com/smartcanteen/api/internal/service"
	"github.com/smartcanteen/api/internal/ws"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	policy, err := service.ParseTransitionPolicy(cfg.OrderStatusPolicy)
	if err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Unable to ping database: %v", err)
	}
	log.Println("Connected to database")

	queries := database.New(pool)

	hub := ws.NewHub()
	go hub.Run(ctx)

	opts := []service.Option{
		service.WithTransitionPolicy(policy),
		service.WithRejectUnknownItems(cfg.RejectUnknownItems),
		service.WithEventPublisher(hub),
	}

	if cfg.RabbitMQURL != "" {
		publisher, err := notify.NewPublisher(notify.Dial(cfg.RabbitMQURL))
		if err != nil {
			log.Fatalf("Unable to connect to RabbitMQ: %v", err)
		}
		defer publisher.Close()
		go publisher.Run(ctx)
		opts = append(opts, service.WithEventPublisher(publisher))
		log.Printf("Publishing order events to exchange %q", notify.Exchange)
	}

	orderService := service.NewOrderService(queries, opts...)

	var forecastOpts []forecast.Option
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		rdb := redis.NewClient(redisOpts)
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Printf("WARN: redis unreachable, forecast cache may miss: %v", err)
		}
		cancel()
		forecastOpts = append(forecastOpts, forecast.WithCache(forecast.NewRedisCache(rdb), cfg.ForecastCacheTTL))
	}
	forecaster := forecast.NewClient(cfg.ForecastURL, forecastOpts...)

	r := router.New(cfg, queries, orderService, forecaster, hub)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           otelhttp.NewHandler(r, "canteen-api"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR: forced shutdown: %v", err)
	}
	log.Println("Server exiting")
}
