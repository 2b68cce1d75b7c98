// Command geostorm serves geomagnetic storm predictions over HTTP and,
// optionally, gRPC.
//
// At startup the server loads a single regression model from a JSON artifact
// (a local file, optionally staged in memory, Redis or bbolt) or binds to a
// remote BYOM model service.
// If the model cannot be loaded the process exits with status 1; it never
// serves without a model.
//
// HTTP routes (default :8080):
//   - GET  /          - Prediction form
//   - GET  /randomize - Random plausible solar-wind values
//   - POST /predict   - JSON record, or CSV upload in multipart part "file"
//   - GET  /model     - Loaded model info
//   - GET  /healthz   - Liveness
//   - GET  /readyz    - Readiness
//   - GET  /metrics   - Prometheus metrics
//
// Usage:
//
//	geostorm -model-path=geomagnetic_model.json
//	geostorm -model-source=redis -redis-addr=redis:6379 -model-name=geomagnetic
//	geostorm -model=byom -byom-url=http://model:8000/predict -grpc-listen=:50051
//
// Environment variables:
//
//	LISTEN           - HTTP listen address (default: :8080)
//	GRPC_LISTEN      - gRPC listen address (default: disabled)
//	MODEL            - Model backend: artifact or byom (default: artifact)
//	MODEL_SOURCE     - Artifact source: file, memory, redis or bolt (default: file)
//	MODEL_PATH       - Artifact file (default: artifacts/geomagnetic_model.json)
//	MODEL_NAME       - Artifact name in the store (default: geomagnetic)
//	BYOM_URL         - BYOM service URL
//	MAX_UPLOAD_BYTES - Request body limit (default: 10485760)
//	RATE_LIMIT       - Requests per second, 0 disables (default: 0)
//	LOG_LEVEL        - Logging level: debug, info, warn, error (default: info)
//	LOG_FORMAT       - Logging format: text, json (default: text)
//	CONFIG_FILE      - YAML configuration file
//	ENV_FILE         - .env file (default: .env when present)
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HatiCode/geostorm/cmd/geostorm/config"
	"github.com/HatiCode/geostorm/cmd/geostorm/logger"
	"github.com/HatiCode/geostorm/cmd/geostorm/metrics"
	"github.com/HatiCode/geostorm/cmd/geostorm/models"
	"github.com/HatiCode/geostorm/cmd/geostorm/router"
	"github.com/HatiCode/geostorm/pkg/grpcapi"
	"github.com/HatiCode/geostorm/pkg/httpx"
	"github.com/HatiCode/geostorm/pkg/inference"
	"github.com/HatiCode/geostorm/pkg/pipeline"
	"github.com/HatiCode/geostorm/pkg/tls"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg := config.ParseFlags()

	log := logger.New(cfg)
	slog.SetDefault(log)

	log.Info("starting geostorm",
		"version", version,
		"listen", cfg.Listen,
		"grpc_listen", cfg.GRPCListen,
		"model", cfg.Model,
		"model_source", cfg.ModelSource,
		"tls_enabled", cfg.TLS.Enabled,
	)

	m := metrics.New()

	loader, err := models.NewLoader(cfg, log)
	if err != nil {
		log.Error("invalid model configuration", "error", err)
		os.Exit(1)
	}

	adapter := inference.New(log)
	loadCtx, cancelLoad := context.WithTimeout(context.Background(), 30*time.Second)
	err = adapter.Load(loadCtx, loader)
	cancelLoad()
	if err != nil {
		log.Error("failed to load model", "error", err)
		os.Exit(1)
	}
	m.SetModelLoaded(true)

	p := pipeline.New(adapter, m, log)

	mux := router.SetupRoutes(p, adapter, cfg.MaxUploadBytes, log)
	handler := httpx.Chain(mux,
		httpx.StatusMiddleware(m.RecordHTTP),
		httpx.RecoveryMiddleware(log),
		httpx.RequestIDMiddleware(),
		httpx.LoggingMiddleware(log),
		httpx.RateLimitMiddleware(cfg.RateLimit, cfg.RateBurst),
		httpx.RouteMiddleware(),
	)
	httpServer := httpx.NewServer(cfg.Listen, handler, log)

	if cfg.TLS.Enabled {
		tlsConfig, err := tls.NewServerTLSConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.CAFile)
		if err != nil {
			log.Error("failed to create TLS config", "error", err)
			os.Exit(1)
		}
		httpServer.SetTLSConfig(tlsConfig)
	}

	serverErr := make(chan error, 2)
	go func() {
		serverErr <- httpServer.Start()
	}()

	var grpcServer *grpcapi.Server
	if cfg.GRPCListen != "" {
		creds, err := tls.ServerCredentials(cfg.TLS)
		if err != nil {
			log.Error("failed to create gRPC credentials", "error", err)
			os.Exit(1)
		}
		lis, err := net.Listen("tcp", cfg.GRPCListen)
		if err != nil {
			log.Error("failed to listen", "address", cfg.GRPCListen, "error", err)
			os.Exit(1)
		}
		grpcServer = grpcapi.NewServer(grpcapi.NewService(p), creds, log)
		go func() {
			serverErr <- grpcServer.Serve(lis)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	exitCode := 0
	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil && !errors.Is(err, net.ErrClosed) {
			log.Error("server failed", "error", err)
			exitCode = 1
		}
	}

	log.Info("shutting down")

	if grpcServer != nil {
		grpcServer.Stop(cfg.ShutdownTimeout)
	}
	if err := httpServer.Stop(cfg.ShutdownTimeout); err != nil {
		log.Error("server shutdown failed", "error", err)
		exitCode = 1
	}

	adapter.Close()
	m.SetModelLoaded(false)

	log.Info("shutdown complete")
	os.Exit(exitCode)
}
