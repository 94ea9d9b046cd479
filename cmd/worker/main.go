// Package main implements the Logmill worker service, which processes
// byte-range chunks of log files on behalf of the coordinator.
//
// The worker is the data plane of the Logmill system, responsible for:
//   - Registering with the coordinator on startup
//   - Sending periodic heartbeats so the coordinator can track health
//   - Accepting chunk assignments and parsing the assigned byte range
//   - Reporting each chunk's summary (or failure) back to the coordinator
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│               Worker                     │
//	├─────────────────────────────────────────┤
//	│  HTTP API:                              │
//	│    /process      - Chunk assignment     │
//	│    /health       - Liveness probe       │
//	├─────────────────────────────────────────┤
//	│  Background:                            │
//	│    heartbeatLoop - Coordinator link     │
//	│    run           - Chunk processing     │
//	└─────────────────────────────────────────┘
//
// Configuration (environment, with optional WORKER_CONFIG YAML):
//   - WORKER_ID: Unique worker identifier (default: generated)
//   - WORKER_LISTEN: Listen address (default ":8081")
//   - WORKER_ADDR: Public address for the coordinator (default "http://127.0.0.1:8081")
//   - COORDINATOR_ADDR: Coordinator URL (required)
//   - HEARTBEAT_INTERVAL: Heartbeat period (default 5s)
//   - LOG_LEVEL: zerolog level (default "info")
//
// Example usage:
//
//	WORKER_ID=worker-1 \
//	WORKER_LISTEN=:8081 \
//	WORKER_ADDR=http://localhost:8081 \
//	COORDINATOR_ADDR=http://localhost:8080 \
//	./worker
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
	"github.com/dreamware/logmill/internal/observability"
)

func main() {
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	observability.InitLogger(cfg.LogLevel)

	worker := NewWorker(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/process", worker.handleProcess)
	mux.HandleFunc("/health", worker.handleHealth)

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().
			Str("worker_id", cfg.ID).
			Str("addr", cfg.ListenAddr).
			Str("public", cfg.PublicAddr).
			Msg("worker listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen failed")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := worker.register(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to register with coordinator")
	}
	log.Info().Str("coordinator", cfg.CoordinatorAddr).Msg("registered with coordinator")

	go worker.heartbeatLoop(ctx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	worker.Wait()
	log.Info().Msg("worker stopped")
}
