package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shamimkhan539/PressBox-sub006/internal/api"
	"github.com/shamimkhan539/PressBox-sub006/internal/backend"
	dockerbackend "github.com/shamimkhan539/PressBox-sub006/internal/backend/docker"
	nativebackend "github.com/shamimkhan539/PressBox-sub006/internal/backend/native"
	"github.com/shamimkhan539/PressBox-sub006/internal/config"
	"github.com/shamimkhan539/PressBox-sub006/internal/dbserver"
	"github.com/shamimkhan539/PressBox-sub006/internal/hosts"
	"github.com/shamimkhan539/PressBox-sub006/internal/logging"
	"github.com/shamimkhan539/PressBox-sub006/internal/model"
	"github.com/shamimkhan539/PressBox-sub006/internal/orchestrator"
	"github.com/shamimkhan539/PressBox-sub006/internal/ports"
	"github.com/shamimkhan539/PressBox-sub006/internal/registry"
)

func main() {
	stopInfra := flag.Bool("stop-infra", false, "Stop shared database servers on shutdown")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	if err := os.MkdirAll(cfg.SitesDir(), 0o755); err != nil {
		logger.Fatal().Err(err).Msg("create data directory")
	}

	reg, err := registry.Open(cfg.RegistryPath())
	if err != nil {
		logger.Fatal().Err(err).Msg("open site registry")
	}
	defer reg.Close()

	allocator := ports.NewAllocator(logger, cfg.Ports)
	hostsSync := hosts.NewSynchronizer(logger, cfg.HostsFile, cfg.HostsBackupPath())
	dbManager := dbserver.NewManager(logger, cfg.MySQL, cfg.DBServersDir())

	backends := map[model.Environment]backend.Backend{
		model.EnvNative: nativebackend.New(logger, cfg),
	}
	if docker, err := dockerbackend.New(logger, cfg.Docker); err != nil {
		// Sites in the container environment stay unusable until the
		// daemon restarts with Docker present; native sites keep working.
		logger.Warn().Err(err).Msg("container backend unavailable")
	} else {
		backends[model.EnvContainer] = docker
		defer docker.Close()
	}

	orch := orchestrator.New(logger, cfg, reg, allocator, hostsSync, dbManager, backends, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := orch.Reconcile(ctx); err != nil {
		logger.Error().Err(err).Msg("startup reconciliation failed")
	}

	srv := api.NewServer(logger, orch, reg)
	httpServer := &http.Server{
		Addr:         cfg.HTTPListenAddr,
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("starting pressbox daemon")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down daemon")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)

	// Site processes and containers stay up across daemon restarts;
	// reconciliation re-adopts them. Shared database servers stop only
	// when explicitly asked.
	if *stopInfra {
		if err := orch.StopSharedInfra(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("stop shared database servers")
		}
	}
}
