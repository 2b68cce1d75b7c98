// Package metrics provides Prometheus instrumentation for the geostorm server.
//
// Metrics exposed:
//   - geostorm_predictions_total: Counter of predictions by classification
//   - geostorm_predict_seconds: Histogram of model inference duration
//   - geostorm_batch_rows: Histogram of rows per successful batch
//   - geostorm_errors_total: Counter of errors by component and reason
//   - geostorm_model_loaded: Gauge, 1 while a model is loaded
//   - geostorm_http_requests_total: Counter of HTTP responses by route and code
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/HatiCode/geostorm/pkg/classify"
)

const namespace = "geostorm"

// Metrics holds all Prometheus metrics for the server. It implements
// pipeline.Recorder.
type Metrics struct {
	PredictionsTotal  *prometheus.CounterVec
	PredictSeconds    prometheus.Histogram
	BatchRows         prometheus.Histogram
	ErrorsTotal       *prometheus.CounterVec
	ModelLoaded       prometheus.Gauge
	HTTPRequestsTotal *prometheus.CounterVec
}

// New creates metrics registered with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics registered with reg. Every classification
// starts with a zero series so rates work before the first storm.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	m := &Metrics{
		PredictionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Total number of predictions by classification",
		}, []string{"class"}),

		PredictSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "predict_seconds",
			Help:      "Time spent in model inference",
			Buckets:   prometheus.DefBuckets,
		}),

		BatchRows: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_rows",
			Help:      "Rows per successfully processed batch upload",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),

		ErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of errors by component and reason",
		}, []string{"component", "reason"}),

		ModelLoaded: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_loaded",
			Help:      "1 while a model is loaded and serving",
		}),

		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP responses by route pattern and status code",
		}, []string{"path", "code"}),
	}

	for _, c := range classify.Classes() {
		m.PredictionsTotal.WithLabelValues(string(c))
	}
	return m
}

// RecordPrediction counts a prediction and observes its inference time.
func (m *Metrics) RecordPrediction(class string, seconds float64) {
	m.PredictionsTotal.WithLabelValues(class).Inc()
	m.PredictSeconds.Observe(seconds)
}

// RecordBatch records the size of a completed batch.
func (m *Metrics) RecordBatch(rows int) {
	m.BatchRows.Observe(float64(rows))
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}

// RecordHTTP counts an HTTP response.
func (m *Metrics) RecordHTTP(pattern string, status int) {
	m.HTTPRequestsTotal.WithLabelValues(pattern, strconv.Itoa(status)).Inc()
}

// SetModelLoaded sets the model_loaded gauge.
func (m *Metrics) SetModelLoaded(loaded bool) {
	if loaded {
		m.ModelLoaded.Set(1)
		return
	}
	m.ModelLoaded.Set(0)
}
