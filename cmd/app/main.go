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

	"github.com/kai-zer-ru/max-notify-ha/internal/app"
	"github.com/kai-zer-ru/max-notify-ha/internal/config"
	"github.com/kai-zer-ru/max-notify-ha/internal/domain/ports"
	"github.com/kai-zer-ru/max-notify-ha/internal/infra/logging"
	"github.com/kai-zer-ru/max-notify-ha/internal/infra/maxapi"
	"github.com/kai-zer-ru/max-notify-ha/internal/infra/media"
	red "github.com/kai-zer-ru/max-notify-ha/internal/infra/redis"
	"github.com/kai-zer-ru/max-notify-ha/internal/infra/sink"
	"github.com/kai-zer-ru/max-notify-ha/internal/infra/web"
	"github.com/kai-zer-ru/max-notify-ha/internal/infra/worker"
	"github.com/kai-zer-ru/max-notify-ha/internal/registry"
	"github.com/kai-zer-ru/max-notify-ha/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, no redaction)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("dev mode enabled")
	}

	// ---- MAX platform client ----
	client := maxapi.NewClient(maxapi.DefaultBaseURL, nil, logger)

	// ---- Registry and outbound path ----
	reg := registry.New(cfg.Bots)
	files := media.NewSource(cfg.Media.Root, logger)
	dispatcher := usecase.NewDispatcher(client, usecase.NewResolver(reg), files, logger)

	// ---- Event sink ----
	var events ports.EventSink
	if cfg.HomeAssistant.URL != "" {
		events = sink.NewHomeAssistant(&cfg.HomeAssistant, logger)
	} else {
		logger.Warn().Msg("homeassistant.url not set; inbound events go to the log only")
		events = sink.NewLog(logger)
	}

	// ---- Dedup backend (Redis optional) ----
	var newDedup app.DedupFactory
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer redisClient.Close()
		newDedup = func(entryID string) ports.Deduplicator {
			return red.NewDedupStore(redisClient, entryID)
		}
		logger.Info().Msg("dedup window backed by redis")
	}

	// ---- Ingestion runtimes ----
	pool := worker.NewPool(8, logger)
	manager := app.NewManager(cfg, client, reg, events, pool, newDedup, logger)
	manager.Start(ctx)
	defer manager.Stop()

	// ---- Config hot reload ----
	watcher := app.NewConfigWatcher(*cfgPath, manager.Reload, logger)
	watcher.Prime()
	go func() {
		if err := watcher.Run(ctx); err != nil {
			logger.Warn().Err(err).Msg("config watcher stopped")
		}
	}()

	// ---- HTTP server ----
	srv := web.NewServer(dispatcher, reg, manager, cfg.Server.APIKey, logger)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv.Router(),
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown incomplete")
	}
}
