// Package main implements the Logmill coordinator service: the control
// plane that registers workers, watches their heartbeats, partitions log
// files into chunks, and serves the running aggregate metrics.
//
// Configuration (environment, with optional COORDINATOR_CONFIG YAML):
//   - COORDINATOR_ADDR: listen address (default ":8080")
//   - HEARTBEAT_INTERVAL: expected worker heartbeat period (default 5s)
//   - SUSPECT_AFTER / FAIL_AFTER: staleness thresholds (default 10s/15s)
//   - RESULT_TIMEOUT: deadline for a dispatched chunk's report (default 30s)
//   - LOG_LEVEL: zerolog level (default "info")
//
// Example usage:
//
//	# Start the coordinator
//	COORDINATOR_ADDR=:8080 ./coordinator
//
//	# Kick off a distribution
//	curl -X POST localhost:8080/distribute \
//	  -d '{"file_path":"/var/log/app/requests.log"}'
//
//	# Read the running aggregate
//	curl localhost:8080/metrics
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dreamware/logmill/internal/config"
	"github.com/dreamware/logmill/internal/coordinator"
	"github.com/dreamware/logmill/internal/history"
	"github.com/dreamware/logmill/internal/metrics"
	"github.com/dreamware/logmill/internal/observability"
)

func main() {
	cfg, err := config.LoadCoordinator()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	observability.InitLogger(cfg.LogLevel)

	registry := coordinator.NewWorkerRegistry()
	agg := metrics.NewAggregator()
	dist := coordinator.NewDistributor(registry, agg)
	dist.SetResultTimeout(cfg.ResultTimeout)

	monitor := coordinator.NewHeartbeatMonitor(registry, cfg.HeartbeatInterval, cfg.SuspectAfter, cfg.FailAfter)
	monitor.SetOnFailed(dist.WorkerFailed)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Start(ctx)

	srv := newServer(registry, agg, dist, history.NewMemoryStore())

	mux := http.NewServeMux()
	mux.HandleFunc("/register", srv.handleRegister)
	mux.HandleFunc("/heartbeat", srv.handleHeartbeat)
	mux.HandleFunc("/report", srv.handleReport)
	mux.HandleFunc("/metrics", srv.handleMetrics)
	mux.HandleFunc("/workers", srv.handleWorkers)
	mux.HandleFunc("/distribute", srv.handleDistribute)
	mux.HandleFunc("/runs", srv.handleRuns)
	mux.HandleFunc("/runs/", srv.handleRuns)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("coordinator listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	monitor.Stop()
	log.Info().Msg("coordinator stopped")
}
