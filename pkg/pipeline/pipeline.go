// Package pipeline runs the request-to-classification chain:
//
//	record → features.Extract → Predictor.Predict → classify.Classify
//
// Run handles a single record. RunBatch applies the same chain to each record
// in input order and is fail-fast: the first failing row aborts the batch and
// no partial output is returned. The returned *RowError names the 1-based row
// and wraps the underlying error, so errors.Is still identifies its category.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/geostorm/pkg/classify"
	"github.com/HatiCode/geostorm/pkg/features"
	"github.com/HatiCode/geostorm/pkg/inference"
)

// Predictor is the inference capability the pipeline depends on.
// *inference.Adapter implements it.
type Predictor interface {
	Predict(ctx context.Context, v features.Vector) (float64, error)
}

// Recorder receives pipeline observations. Implementations must be safe for
// concurrent use; a nil Recorder disables recording.
type Recorder interface {
	RecordPrediction(class string, seconds float64)
	RecordBatch(rows int)
	RecordError(component, reason string)
}

// Result is the outcome for a single record.
type Result struct {
	Prediction     float64        `json:"prediction"`
	Classification classify.Class `json:"classification"`
	Effects        string         `json:"effects"`
}

// Row is one batch output: the record's original fields plus its Result.
type Row struct {
	Fields features.Record
	Result
}

// MarshalJSON flattens the original fields and the result into one object.
// Result keys win over input columns with the same name.
func (r Row) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+3)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["prediction"] = r.Prediction
	out["classification"] = r.Classification
	out["effects"] = r.Effects
	return json.Marshal(out)
}

// RowError reports which batch row failed.
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Pipeline wires extraction, inference and classification together.
type Pipeline struct {
	predictor Predictor
	recorder  Recorder
	logger    *slog.Logger
}

// New creates a pipeline. recorder may be nil.
func New(predictor Predictor, recorder Recorder, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		predictor: predictor,
		recorder:  recorder,
		logger:    logger,
	}
}

// Run processes a single record.
func (p *Pipeline) Run(ctx context.Context, rec features.Record) (Result, error) {
	v, err := features.Extract(rec)
	if err != nil {
		p.recordError("features", err)
		return Result{}, err
	}

	start := time.Now()
	y, err := p.predictor.Predict(ctx, v)
	if err != nil {
		p.recordError("inference", err)
		return Result{}, err
	}

	c := classify.Classify(y)
	if p.recorder != nil {
		p.recorder.RecordPrediction(string(c.Class), time.Since(start).Seconds())
	}

	return Result{
		Prediction:     y,
		Classification: c.Class,
		Effects:        c.Effects,
	}, nil
}

// RunBatch processes records in order. Output order matches input order.
func (p *Pipeline) RunBatch(ctx context.Context, recs []features.Record) ([]Row, error) {
	rows := make([]Row, 0, len(recs))
	for i, rec := range recs {
		if err := ctx.Err(); err != nil {
			return nil, &RowError{Row: i + 1, Err: err}
		}

		res, err := p.Run(ctx, rec)
		if err != nil {
			p.logger.Debug("batch aborted", "row", i+1, "rows", len(recs), "error", err)
			return nil, &RowError{Row: i + 1, Err: err}
		}
		rows = append(rows, Row{Fields: rec, Result: res})
	}

	if p.recorder != nil {
		p.recorder.RecordBatch(len(rows))
	}
	return rows, nil
}

func (p *Pipeline) recordError(component string, err error) {
	if p.recorder == nil {
		return
	}
	p.recorder.RecordError(component, Reason(err))
}

// Reason maps an error to a short, stable label for metrics and logs.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, features.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, inference.ErrModelUnavailable):
		return "model_unavailable"
	case errors.Is(err, inference.ErrInternal):
		return "internal"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "unknown"
	}
}
