package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"clearquote/internal/backend"
	"clearquote/internal/config"
	"clearquote/internal/logger"
	"clearquote/internal/models"
	"clearquote/internal/monitor"
	"clearquote/internal/server"
	"clearquote/internal/storage"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to configuration file (YAML)")
		addr       = flag.String("addr", ":8080", "address for the web server")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.New("text", "info").Error("load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogFormat, cfg.LogLevel)
	log.Info("configuration loaded", "backend", cfg.BackendURL, "path", *configPath)

	store, err := storage.NewHealthStore(filepath.Join(cfg.DataDirectory, "health.db"))
	if err != nil {
		log.Error("initialise storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	client := backend.New(cfg.BackendURL, time.Duration(cfg.RequestTimeoutSec)*time.Second, log)

	mon := monitor.New(client, monitor.Config{
		PollInterval:   time.Duration(cfg.Monitor.PollIntervalMs) * time.Millisecond,
		MaxRetries:     cfg.Monitor.MaxRetries,
		BaseRetryDelay: time.Duration(cfg.Monitor.BaseRetryDelayMs) * time.Millisecond,
		FetchTimeout:   time.Duration(cfg.RequestTimeoutSec) * time.Second,
	}, log)

	srv := server.New(*addr, client, mon, store, cfg.HistoryLimit, log)

	mon.SetOnUpdate(srv.BroadcastHealth)
	mon.SetOnSample(func(sample models.HealthSample) {
		if err := store.Append(sample); err != nil {
			log.Warn("record health sample", "error", err)
		}
	})
	mon.Start()
	defer mon.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown", "error", err)
		}
	}()

	log.Info("clearquote dashboard listening", "addr", *addr, "poll_interval_ms", cfg.Monitor.PollIntervalMs)
	if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
