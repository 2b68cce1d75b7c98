package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HatiCode/geostorm/pkg/classify"
	"github.com/HatiCode/geostorm/pkg/features"
	"github.com/HatiCode/geostorm/pkg/inference"
)

type predictorFunc func(ctx context.Context, v features.Vector) (float64, error)

func (f predictorFunc) Predict(ctx context.Context, v features.Vector) (float64, error) {
	return f(ctx, v)
}

func constant(y float64) predictorFunc {
	return func(context.Context, features.Vector) (float64, error) { return y, nil }
}

// bzPredictor returns the record's bz_gsm value, which makes row-to-result
// mapping visible in batch tests.
func bzPredictor() predictorFunc {
	return func(_ context.Context, v features.Vector) (float64, error) { return v[3], nil }
}

type fakeRecorder struct {
	mu          sync.Mutex
	predictions []string
	batches     []int
	errors      []string
}

func (r *fakeRecorder) RecordPrediction(class string, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.predictions = append(r.predictions, class)
}

func (r *fakeRecorder) RecordBatch(rows int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, rows)
}

func (r *fakeRecorder) RecordError(component, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, component+"/"+reason)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func record(speed, bt, temp, bz, density float64) features.Record {
	return features.Record{
		features.Speed:       speed,
		features.Bt:          bt,
		features.Temperature: temp,
		features.BzGSM:       bz,
		features.Density:     density,
	}
}

func TestRun(t *testing.T) {
	tests := []struct {
		name      string
		y         float64
		wantClass classify.Class
	}{
		{"quiet", 3.5, classify.Quiet},
		{"weak", -10, classify.Weak},
		{"moderate", -35, classify.Moderate},
		{"boundary goes to the more severe band", -50, classify.Strong},
		{"severe", -150, classify.Severe},
		{"extreme boundary", -200, classify.Extreme},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(constant(tt.y), nil, discard())

			got, err := p.Run(context.Background(), record(400, 5, 100000, -1, 4))
			require.NoError(t, err)
			assert.Equal(t, tt.y, got.Prediction)
			assert.Equal(t, tt.wantClass, got.Classification)
			assert.Equal(t, classify.Classify(tt.y).Effects, got.Effects)
		})
	}
}

func TestRun_InvalidInput(t *testing.T) {
	called := false
	p := New(predictorFunc(func(context.Context, features.Vector) (float64, error) {
		called = true
		return 0, nil
	}), nil, discard())

	rec := record(400, 5, 100000, -1, 4)
	delete(rec, features.Density)

	_, err := p.Run(context.Background(), rec)
	require.ErrorIs(t, err, features.ErrInvalidInput)
	assert.Contains(t, err.Error(), features.Density)
	assert.False(t, called, "predictor must not run on invalid input")
}

func TestRun_PropagatesInferenceErrors(t *testing.T) {
	for _, want := range []error{inference.ErrModelUnavailable, inference.ErrInternal} {
		p := New(predictorFunc(func(context.Context, features.Vector) (float64, error) {
			return 0, fmt.Errorf("wrapped: %w", want)
		}), nil, discard())

		_, err := p.Run(context.Background(), record(1, 2, 3, 4, 5))
		assert.ErrorIs(t, err, want)
	}
}

func TestRun_Records(t *testing.T) {
	rec := &fakeRecorder{}
	p := New(constant(-75), rec, discard())

	_, err := p.Run(context.Background(), record(1, 2, 3, 4, 5))
	require.NoError(t, err)

	_, err = p.Run(context.Background(), features.Record{})
	require.Error(t, err)

	assert.Equal(t, []string{string(classify.Strong)}, rec.predictions)
	assert.Equal(t, []string{"features/invalid_input"}, rec.errors)
}

func TestRunBatch_PreservesOrder(t *testing.T) {
	rec := &fakeRecorder{}
	p := New(bzPredictor(), rec, discard())

	in := []features.Record{
		record(400, 5, 100000, 3, 4),
		record(500, 10, 200000, -60, 8),
		record(700, 25, 400000, -250, 20),
	}

	rows, err := p.RunBatch(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, 3.0, rows[0].Prediction)
	assert.Equal(t, classify.Quiet, rows[0].Classification)
	assert.Equal(t, -60.0, rows[1].Prediction)
	assert.Equal(t, classify.Strong, rows[1].Classification)
	assert.Equal(t, -250.0, rows[2].Prediction)
	assert.Equal(t, classify.Extreme, rows[2].Classification)

	for i := range rows {
		assert.Equal(t, in[i], rows[i].Fields)
	}
	assert.Equal(t, []int{3}, rec.batches)
}

func TestRunBatch_Empty(t *testing.T) {
	p := New(constant(0), nil, discard())

	rows, err := p.RunBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestRunBatch_FailFast(t *testing.T) {
	calls := 0
	p := New(predictorFunc(func(context.Context, features.Vector) (float64, error) {
		calls++
		return 0, nil
	}), nil, discard())

	bad := record(1, 2, 3, 4, 5)
	bad[features.Bt] = "strong"

	rows, err := p.RunBatch(context.Background(), []features.Record{
		record(1, 2, 3, 4, 5),
		bad,
		record(1, 2, 3, 4, 5),
	})
	require.Error(t, err)
	assert.Nil(t, rows)
	assert.ErrorIs(t, err, features.ErrInvalidInput)

	var rowErr *RowError
	require.True(t, errors.As(err, &rowErr))
	assert.Equal(t, 2, rowErr.Row)
	assert.Contains(t, err.Error(), "row 2")
	assert.Contains(t, err.Error(), features.Bt)
	assert.Equal(t, 1, calls, "rows after the failure must not be evaluated")
}

func TestRunBatch_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(constant(0), nil, discard())
	_, err := p.RunBatch(ctx, []features.Record{record(1, 2, 3, 4, 5)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRow_MarshalJSON(t *testing.T) {
	row := Row{
		Fields: features.Record{
			features.Speed:       400.0,
			features.Bt:          5.0,
			features.Temperature: 100000.0,
			features.BzGSM:       -1.0,
			features.Density:     4.0,
			"time_tag":           "2024-05-10 17:00",
		},
		Result: Result{Prediction: -120, Classification: classify.Strong, Effects: "x"},
	}

	data, err := json.Marshal(row)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "2024-05-10 17:00", got["time_tag"])
	assert.Equal(t, 400.0, got[features.Speed])
	assert.Equal(t, -120.0, got["prediction"])
	assert.Equal(t, "Strong", got["classification"])
	assert.Equal(t, "x", got["effects"])
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("x: %w", features.ErrInvalidInput), "invalid_input"},
		{inference.ErrModelUnavailable, "model_unavailable"},
		{inference.ErrInternal, "internal"},
		{context.DeadlineExceeded, "canceled"},
		{errors.New("boom"), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Reason(tt.err), "Reason(%v)", tt.err)
	}
}
