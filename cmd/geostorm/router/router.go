// Package router configures HTTP routes for the geostorm server.
//
// Routes configured:
//   - GET  /          - Prediction form (embedded HTML)
//   - GET  /randomize - Random plausible feature values
//   - POST /predict   - JSON record, or multipart CSV upload in part "file"
//   - GET  /model     - Loaded model name, source and load time
//   - GET  /healthz   - Liveness (always 200 OK)
//   - GET  /readyz    - Readiness (503 until a model is loaded)
//   - GET  /metrics   - Prometheus metrics endpoint
package router

import (
	"context"
	_ "embed"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/geostorm/pkg/features"
	"github.com/HatiCode/geostorm/pkg/httpx"
	"github.com/HatiCode/geostorm/pkg/inference"
	"github.com/HatiCode/geostorm/pkg/pipeline"
	"github.com/HatiCode/geostorm/pkg/randomize"
)

//go:embed static/index.html
var indexHTML []byte

// SetupRoutes configures HTTP endpoints for the server.
func SetupRoutes(p *pipeline.Pipeline, adapter *inference.Adapter, maxUploadBytes int64, logger *slog.Logger) *http.ServeMux {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", handleIndex(logger))
	mux.HandleFunc("GET /randomize", handleRandomize(logger))
	mux.HandleFunc("POST /predict", handlePredict(p, maxUploadBytes, logger))
	mux.HandleFunc("GET /model", handleModelInfo(adapter, logger))

	mux.Handle("GET /healthz", httpx.HealthHandler())
	mux.Handle("GET /readyz", httpx.HealthHandlerWithCheck(adapter.Ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

func handleIndex(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if _, err := w.Write(indexHTML); err != nil {
			logger.Error("failed to write index page", "error", err)
		}
	}
}

func handleRandomize(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := httpx.WriteJSON(w, http.StatusOK, randomize.Generate(nil)); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

func handleModelInfo(adapter *inference.Adapter, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, ok := adapter.Info()
		if !ok {
			httpx.WriteErrorMessage(w, http.StatusServiceUnavailable, "model unavailable")
			return
		}
		resp := map[string]any{
			"name":     info.Name,
			"source":   info.Source,
			"loadedAt": info.LoadedAt.Format(time.RFC3339),
		}
		if err := httpx.WriteJSON(w, http.StatusOK, resp); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// handlePredict dispatches on the request shape: a multipart form is a batch
// upload, anything else is a single JSON record.
func handlePredict(p *pipeline.Pipeline, maxUploadBytes int64, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

		if isMultipart(r) {
			predictBatch(w, r, p, maxUploadBytes, logger)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeBodyError(w, err)
			return
		}

		rec, err := features.ParseJSON(body)
		if err != nil {
			writePipelineError(w, r, err, logger)
			return
		}

		res, err := p.Run(r.Context(), rec)
		if err != nil {
			writePipelineError(w, r, err, logger)
			return
		}

		if err := httpx.WriteJSON(w, http.StatusOK, res); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

func predictBatch(w http.ResponseWriter, r *http.Request, p *pipeline.Pipeline, maxUploadBytes int64, logger *slog.Logger) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeBodyError(w, err)
		return
	}

	// A file input submitted with nothing selected arrives either as a file
	// part with an empty filename or as a plain form value.
	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) || (err == nil && header.Filename == "") {
		if file != nil {
			file.Close()
		}
		httpx.WriteErrorMessage(w, http.StatusBadRequest, "No file selected")
		return
	}
	if err != nil {
		writeBodyError(w, err)
		return
	}
	defer file.Close()

	recs, err := features.ReadCSV(file)
	if err != nil {
		writePipelineError(w, r, err, logger)
		return
	}

	rows, err := p.RunBatch(r.Context(), recs)
	if err != nil {
		writePipelineError(w, r, err, logger)
		return
	}

	logger.Debug("batch processed", "file", header.Filename, "rows", len(rows))
	if err := httpx.WriteJSON(w, http.StatusOK, rows); err != nil {
		logger.Error("failed to write JSON response", "error", err)
	}
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

func writeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		httpx.WriteErrorMessage(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid request body")
}

// writePipelineError maps pipeline errors to HTTP responses. Only invalid
// input is echoed back; everything else gets a fixed message.
func writePipelineError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	switch {
	case errors.Is(err, features.ErrInvalidInput):
		httpx.WriteError(w, http.StatusBadRequest, err)
	case errors.Is(err, inference.ErrModelUnavailable):
		logger.Warn("prediction failed", "error", err, "request_id", httpx.RequestID(r.Context()))
		httpx.WriteErrorMessage(w, http.StatusServiceUnavailable, "model unavailable")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logger.Debug("prediction canceled", "error", err, "request_id", httpx.RequestID(r.Context()))
		httpx.WriteErrorMessage(w, http.StatusServiceUnavailable, "request canceled")
	default:
		logger.Error("prediction failed", "error", err, "request_id", httpx.RequestID(r.Context()))
		httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
	}
}
