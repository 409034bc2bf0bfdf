package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/velocityfunds/waitlist-service/internal/api"
	"github.com/velocityfunds/waitlist-service/internal/config"
	"github.com/velocityfunds/waitlist-service/internal/notify"
	"github.com/velocityfunds/waitlist-service/internal/turnstile"
	"github.com/velocityfunds/waitlist-service/internal/waitlist"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is not configured")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = db.PingContext(pingCtx)
	cancel()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Printf("Connected to Postgres")

	store := waitlist.NewStore(db, cfg.Waitlist.Table)
	log.Printf("Signup table: %s", store.Table())

	// Prefer the atomic Redis limiter when configured; the table-backed
	// limiter needs no extra infrastructure.
	var limiter waitlist.RateLimiter = waitlist.NewStoreRateLimiter(store)
	if cfg.Redis.URL != "" {
		redisLimiter, err := waitlist.NewRedisRateLimiterFromURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisLimiter.Close()
		limiter = redisLimiter
		log.Printf("Rate limiter: redis")
	} else {
		log.Printf("Rate limiter: postgres")
	}

	verifier := turnstile.NewClient(cfg.Turnstile)
	notifier := notify.NewSESNotifier(cfg.SES)

	svc := waitlist.NewService(store, limiter, verifier, notifier, cfg.Waitlist.IPSalt)
	handlers := api.NewHandlers(cfg, svc)
	server := api.NewServer(cfg.Server, handlers)

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Waitlist service listening on %s", addr)
		errCh <- server.ListenAndServe(addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("Server error: %v", err)
	case sig := <-sigCh:
		log.Printf("Received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
