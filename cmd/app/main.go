// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"asset-studio/internal/config"
	"asset-studio/internal/domain/ports/adapter"
	"asset-studio/internal/infra/adapters/imagegen"
	"asset-studio/internal/infra/logging"
	"asset-studio/internal/infra/metrics"
	red "asset-studio/internal/infra/redis"
	"asset-studio/internal/infra/web"
	"asset-studio/internal/scheduler"
	"asset-studio/internal/store"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, relaxed auth)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("developer mode enabled")
	}

	metrics.MustRegister()

	// ---- State store ----
	st := store.New(logger)
	if err := st.SetMaxConcurrent(cfg.Scheduler.MaxConcurrentJobs); err != nil {
		logger.Fatal().Err(err).Msg("scheduler config")
	}
	st.Subscribe(store.EventStatsUpdated, func(ev store.Event) {
		metrics.SetJobGauges(ev.Stats.Running, ev.Stats.Idle)
	})

	// ---- Generation client ----
	var client adapter.GenerationClient
	switch cfg.Generation.Provider {
	case "openai":
		client, err = imagegen.NewOpenAIClient(cfg.Generation.OpenAIKey, cfg.Generation.OpenAIModel)
	case "gemini":
		client, err = imagegen.NewGeminiClient(ctx, cfg.Generation.GeminiKey, cfg.Generation.GeminiURL, cfg.Generation.GeminiModel)
	case "http":
		client, err = imagegen.NewHTTPClient(cfg.Generation.BackendURL, cfg.Generation.RequestTimeout)
	default:
		client = imagegen.NewNoopClient(0)
	}
	if err != nil {
		logger.Fatal().Err(err).Str("provider", cfg.Generation.Provider).Msg("generation client")
	}
	logger.Info().Str("provider", client.Provider()).Msg("generation client ready")

	// ---- Scheduler ----
	sched := scheduler.New(st, client, logger)
	defer sched.Close()

	// ---- Optional redis rate limiter ----
	var limiter *red.RateLimiter
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()
		limiter = red.NewRateLimiter(redisClient)
	}

	// ---- Auth ----
	var auth *web.AuthManager
	if cfg.Server.JWTSecret != "" {
		auth = web.NewAuthManager(cfg.Server.JWTSecret, !cfg.Runtime.Dev, cfg.Server.SessionTTL)
	} else {
		logger.Warn().Msg("server.jwt_secret not set; dashboard API is unauthenticated")
	}

	// ---- HTTP server ----
	srv := web.NewServer(sched, auth, limiter, cfg.Redis.SubmitPerMinute, cfg.Server.DashboardKey, logger)
	mux := srv.Router()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Server.Port), Handler: mux}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("dashboard API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	cancel()
}
