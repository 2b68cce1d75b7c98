// Package inference owns the process-wide model handle.
//
// The model is loaded exactly once at startup through a Loader. After a
// successful Load the handle is immutable and shared by every request; reads
// need no locking. A failed Load must abort startup: the service never runs
// with a degraded or missing model. Close marks the handle unavailable at
// shutdown and cannot be undone.
package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/HatiCode/geostorm/pkg/features"
	"github.com/HatiCode/geostorm/pkg/models"
)

var (
	// ErrModelUnavailable is returned when no model is loaded, the adapter was
	// closed, or the model backend could not serve the request.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrInternal marks programming errors such as a wrong vector arity or a
	// non-finite model output. Details must not be exposed to callers.
	ErrInternal = errors.New("internal error")
)

// Info describes the loaded model.
type Info struct {
	Name     string    `json:"name"`
	Source   string    `json:"source"`
	LoadedAt time.Time `json:"loadedAt"`
}

type handle struct {
	model models.Model
	info  Info
}

// Adapter wraps the loaded model behind a fixed-arity Predict.
type Adapter struct {
	current atomic.Pointer[handle]
	closed  atomic.Bool
	loadMu  sync.Mutex
	clock   clockwork.Clock
	logger  *slog.Logger
}

// New creates an adapter with no model loaded.
func New(logger *slog.Logger) *Adapter {
	return NewWithClock(logger, clockwork.NewRealClock())
}

// NewWithClock creates an adapter that timestamps loads with clock.
func NewWithClock(logger *slog.Logger, clock clockwork.Clock) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Adapter{clock: clock, logger: logger}
}

// Load fetches and installs the model. It may succeed at most once.
func (a *Adapter) Load(ctx context.Context, l Loader) error {
	a.loadMu.Lock()
	defer a.loadMu.Unlock()

	if a.closed.Load() {
		return fmt.Errorf("%w: adapter is closed", ErrModelUnavailable)
	}
	if a.current.Load() != nil {
		return errors.New("model already loaded")
	}

	start := a.clock.Now()
	m, source, err := l.Load(ctx)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	if m == nil {
		return fmt.Errorf("load model from %s: loader returned no model", source)
	}

	h := &handle{
		model: m,
		info: Info{
			Name:     m.Name(),
			Source:   source,
			LoadedAt: a.clock.Now().UTC(),
		},
	}
	a.current.Store(h)

	a.logger.Info("model loaded",
		"model", h.info.Name,
		"source", source,
		"duration", a.clock.Since(start),
	)
	return nil
}

// Predict runs the model on a single feature vector.
//
// Errors:
//   - ErrInternal if len(v) != features.Size or the output is not finite
//   - ErrModelUnavailable if no model is loaded or the backend failed
//   - the context error if ctx is done
func (a *Adapter) Predict(ctx context.Context, v features.Vector) (float64, error) {
	if len(v) != features.Size {
		return 0, fmt.Errorf("%w: feature vector has %d entries, want %d", ErrInternal, len(v), features.Size)
	}

	h := a.current.Load()
	if h == nil || a.closed.Load() {
		return 0, ErrModelUnavailable
	}

	y, err := h.model.Predict(ctx, v)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, fmt.Errorf("%w: %s: %v", ErrModelUnavailable, h.info.Name, err)
	}

	if math.IsNaN(y) || math.IsInf(y, 0) {
		return 0, fmt.Errorf("%w: %s returned non-finite prediction %v", ErrInternal, h.info.Name, y)
	}

	return y, nil
}

// Ready returns nil when a model is loaded and the adapter is open.
func (a *Adapter) Ready() error {
	if a.closed.Load() || a.current.Load() == nil {
		return ErrModelUnavailable
	}
	return nil
}

// Info reports the loaded model, if any.
func (a *Adapter) Info() (Info, bool) {
	h := a.current.Load()
	if h == nil || a.closed.Load() {
		return Info{}, false
	}
	return h.info, true
}

// Close releases the model. Subsequent Predict calls fail with ErrModelUnavailable.
func (a *Adapter) Close() {
	a.loadMu.Lock()
	defer a.loadMu.Unlock()

	if a.closed.Swap(true) {
		return
	}
	if h := a.current.Swap(nil); h != nil {
		a.logger.Info("model released", "model", h.info.Name)
	}
}
