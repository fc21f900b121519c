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

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"warungpos/backend/internal/config"
	"warungpos/backend/internal/gateway"
	"warungpos/backend/internal/httpapi"
	"warungpos/backend/internal/laporan"
	"warungpos/backend/internal/notify"
	"warungpos/backend/internal/schedule"
	"warungpos/backend/internal/service"
	"warungpos/backend/internal/stock"
	"warungpos/backend/internal/store"
	"warungpos/backend/internal/store/memory"
	pgstore "warungpos/backend/internal/store/postgres"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("dotenv: %v", err)
	}
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	var realtime stock.Realtime
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Printf("redis unavailable (%v), stock falls back to primary store only", err)
		} else {
			realtime = stock.NewRedisRealtime(client)
			closers = append(closers, client.Close)
			log.Println("realtime stock store: redis")
		}
	} else {
		log.Println("realtime stock store: disabled")
	}

	var notifier notify.Notifier = notify.Noop{}
	if cfg.PushWebhookURL != "" {
		notifier = notify.NewWebhook(cfg.PushWebhookURL)
		log.Println("stock notifications: webhook")
	}

	var tokens gateway.TokenProvider
	if cfg.MidtransServerKey != "" {
		tokens = gateway.NewSnapProvider(cfg.MidtransServerKey, cfg.MidtransProduction)
		log.Println("payment gateway: midtrans snap")
	} else {
		log.Println("payment gateway: disabled, sales are created without a snap token")
	}

	stockLedger := stock.NewLedger(repo, realtime, notifier)
	aggregator := laporan.NewAggregator(repo)
	svc := service.New(repo, stockLedger, aggregator, tokens)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	scheduler, err := schedule.StartDailyRollup(cfg.RollupSchedule, svc)
	if err != nil {
		log.Fatalf("invalid ROLLUP_SCHEDULE %q: %v", cfg.RollupSchedule, err)
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("POS backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	<-scheduler.Stop().Done()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
