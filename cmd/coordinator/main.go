// Command coordinator is the Storm coordinator process (spec.md §4.1,
// §6): loads the target config and agent registry, runs the HTTP API,
// and sweeps agent liveness / prunes aged results in the background.
// Grounded on the teacher's controller/cmd/controller/main.go: same
// getenvDefault helper, same signal.NotifyContext + srv.Shutdown
// graceful-stop shape, same "log and continue with in-memory defaults"
// tolerance for a missing store — generalized from the teacher's
// Postgres-or-memory store switch (spec.md names no database; Storm's
// persistence is the atomic JSON files internal/coordinator/storage
// already implements) to Storm's file-backed targets/registry/results
// components, and from a single errgroup-less goroutine fan-out to an
// explicit errgroup supervising the target-file watcher, the registry
// sweep, and the results prune loop together; the HTTP server runs in
// its own goroutine outside the group.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iRazvan2745/Storm/internal/coordinator/alert"
	"github.com/iRazvan2745/Storm/internal/coordinator/cache"
	"github.com/iRazvan2745/Storm/internal/coordinator/metrics"
	"github.com/iRazvan2745/Storm/internal/coordinator/registry"
	"github.com/iRazvan2745/Storm/internal/coordinator/results"
	"github.com/iRazvan2745/Storm/internal/coordinator/server"
	"github.com/iRazvan2745/Storm/internal/coordinator/targets"
)

// pruneInterval is how often the results store is swept for records
// older than pruneHorizon (spec.md §9's age-based retention addition).
const (
	pruneInterval = 24 * time.Hour
	pruneHorizon  = 400 * 24 * time.Hour
)

func main() {
	logger := log.New(os.Stdout, "storm-coordinator ", log.LstdFlags|log.LUTC)

	dataDir := getenvDefault("DATA_DIR", "data")
	configDir := getenvDefault("CONFIG_DIR", dataDir+"/config")

	targetsMgr := targets.New(configDir+"/targets.json", logger)
	if err := targetsMgr.Load(); err != nil {
		logger.Printf("warning: initial targets load failed: %v", err)
	}

	agentRegistry := registry.New(dataDir+"/agents.json", logger)
	if err := agentRegistry.Load(); err != nil {
		logger.Printf("warning: initial registry load failed: %v", err)
	}

	var sink results.AlertSink
	if url := os.Getenv("DISCORD_WEBHOOK"); url != "" {
		sink = alert.New(url, logger)
	}

	engine := results.New(dataDir+"/results.json", logger)
	if sink != nil {
		engine.WithAlertSink(sink)
	}
	if err := engine.Load(); err != nil {
		logger.Printf("warning: initial results load failed: %v", err)
	}

	cfg := server.Config{
		Addr:         ":" + getenvDefault("SERVER_PORT", "3000"),
		APIKey:       os.Getenv("API_KEY"),
		ServerID:     getenvDefault("SERVER_ID", "storm-coordinator"),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	resultCache := cache.New()
	engine.OnChange(resultCache.Invalidate)

	srv := server.New(cfg, server.Dependencies{
		Logger:   logger,
		Targets:  targetsMgr,
		Registry: agentRegistry,
		Engine:   engine,
		Cache:    resultCache,
		Metrics:  metrics.NewStore(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	grp, groupCtx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		targetsMgr.Watch(groupCtx)
		return nil
	})
	grp.Go(func() error {
		agentRegistry.Run(groupCtx)
		return nil
	})
	grp.Go(func() error {
		runPruneLoop(groupCtx, engine, logger)
		return nil
	})

	serverErr := make(chan error, 1)
	go func() {
		logger.Printf("starting coordinator on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-groupCtx.Done():
		logger.Println("shutdown signal received")
	case err := <-serverErr:
		logger.Printf("server error: %v", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}

	_ = grp.Wait()
	logger.Println("coordinator stopped")
}

func runPruneLoop(ctx context.Context, engine *results.Engine, logger *log.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := engine.Prune(time.Now().Add(-pruneHorizon))
			if err != nil {
				logger.Printf("warning: results prune failed: %v", err)
				continue
			}
			if removed > 0 {
				logger.Printf("pruned %d result record(s) older than %s", removed, pruneHorizon)
			}
		}
	}
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}
