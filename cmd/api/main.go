package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"checkin/internal/api"
	"checkin/internal/attendance"
	"checkin/internal/audit"
	"checkin/internal/clock"
	"checkin/internal/config"
	"checkin/internal/httpmiddleware"
	"checkin/internal/metrics"
	"checkin/internal/nonce"
	"checkin/internal/queue"
	"checkin/internal/ratelimit"
	"checkin/internal/store"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	if cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		if db == nil {
			return err
		}
		log.Printf("warning: db not reachable: %v", err)
	}
	defer db.Close()

	if cfg.AutoMigrate {
		if err := store.Migrate(db.Client); err != nil {
			log.Printf("warning: migrations not applied: %v", err)
		}
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	clk := clock.System{}

	var (
		counter    ratelimit.Counter
		nonceStore nonce.Store
	)
	if cfg.EphemeralBackend == "memory" {
		memCounter := ratelimit.NewMemoryCounter(clk)
		memNonces := nonce.NewMemoryStore(clk)
		go sweep(ctx, time.Minute, func() {
			memCounter.Sweep()
			memNonces.Sweep()
		})
		counter, nonceStore = memCounter, memNonces
		log.Println("ephemeral state kept in memory; run a single instance only")
	} else {
		counter = ratelimit.NewRedisCounter(redisClient.Client)
		nonceStore = nonce.NewRedisStore(redisClient.Client)
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(256)
		// No separate worker can reach an in-process queue, so drain it here.
		var w audit.Writer = audit.NewRepository(db.Client)
		if cfg.Env == "dev" {
			w = audit.MultiWriter{w, audit.LogWriter{}}
		}
		go func() {
			if err := audit.Consume(ctx, q, w); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("audit consumer stopped: %v", err)
			}
		}()
	} else {
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc := attendance.NewService(
		attendance.NewRepository(db.Client),
		ratelimit.New(counter),
		nonce.NewBroker(nonceStore, clk, cfg.NonceTTL),
		clk,
		attendance.Options{
			Rules: attendance.Rules{
				Nonce:         ratelimit.PerMinute(int64(cfg.NoncePerMin)),
				CheckIn:       ratelimit.PerMinute(int64(cfg.CheckInPerMin)),
				Bulk:          ratelimit.PerMinute(int64(cfg.BulkPerMin)),
				SessionCreate: ratelimit.PerMinute(int64(cfg.SessionPerMin)),
			},
			Audit:   audit.NewPublisher(q),
			Metrics: metrics.New(reg),
		},
	)

	ipLimiter := httpmiddleware.NewIPLimiter(cfg.RateLimitPerMin)
	go sweep(ctx, 5*time.Minute, func() { ipLimiter.Sweep(10 * time.Minute) })

	r := api.NewRouter(svc, api.Config{
		SigningKey:  cfg.JWTSigningKey,
		Issuer:      cfg.JWTIssuer,
		CORSOrigins: cfg.CORSOrigins,
		CSRF:        cfg.CSRFEnabled,
		IPLimiter:   ipLimiter,
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Health: func(ctx context.Context) map[string]bool {
			checks := map[string]bool{"db": db.Healthy(ctx)}
			if cfg.EphemeralBackend == "redis" || cfg.QueueBackend == "redis" {
				checks["redis"] = redisClient.Healthy(ctx)
			}
			return checks
		},
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

func sweep(ctx context.Context, every time.Duration, fn func()) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fn()
		}
	}
}
