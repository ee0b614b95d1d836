// Package main is the entry point for the allocator HTTP service.
//
// Startup order: configuration, logging, the price history database, the
// optimizer with its Prometheus recorder, then the HTTP server. SIGINT and
// SIGTERM trigger a graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/database"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/modules/universe"
	"github.com/aristath/allocator/internal/server"
	"github.com/aristath/allocator/pkg/logger"
	"github.com/aristath/allocator/pkg/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("version", server.Version).Msg("Starting allocator")

	historyDB, err := database.New(database.Config{
		Path:    cfg.HistoryDBPath,
		Profile: database.ProfileStandard,
		Name:    "history",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history database")
	}
	defer historyDB.Close()

	if err := historyDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate history database")
	}
	log.Info().Str("path", historyDB.Path()).Msg("History database ready")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	optimizer := optimization.NewOptimizer(
		optimization.SolverSettings{
			MaxIterations: cfg.SolverMaxIterations,
			Tolerance:     cfg.SolverTolerance,
		},
		metrics.New(reg),
		log,
	)

	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		Optimizer: optimizer,
		HistoryDB: historyDB,
		Prices:    universe.NewHistoryDB(historyDB.Conn(), log),
		Gatherer:  reg,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// In-flight frontier sweeps get the same window as ordinary requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
