package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"checkin/internal/audit"
	"checkin/internal/config"
	"checkin/internal/queue"
	"checkin/internal/store"
)

// Worker drains audit events published by the API and persists them.
func main() {
	cfg := config.Load()
	if cfg.QueueBackend != "redis" {
		log.Fatalf("worker needs QUEUE_BACKEND=redis, got %q; the API drains in-memory queues itself", cfg.QueueBackend)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		log.Printf("WARNING: redis at %s not reachable yet, consumer will keep retrying", cfg.RedisAddr)
	}

	var w audit.Writer = audit.NewRepository(db.Client)
	if cfg.Env == "dev" {
		w = audit.MultiWriter{w, audit.LogWriter{}}
	}

	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	log.Println("worker started, waiting for audit events...")
	if err := audit.Consume(ctx, q, w); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("audit consumer failed: %v", err)
	}
	log.Println("worker stopped")
}
