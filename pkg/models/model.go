// Package models provides storm-index regression model implementations.
//
// A Model is an opaque scalar predictor over a fixed-order feature vector.
// Implementations available:
//   - LinearModel: intercept plus weighted sum, decoded from an artifact
//   - TreeEnsemble: regression tree forest or boosted trees, decoded from an artifact
//   - BYOMModel: delegates inference to an external HTTP service
//
// Models are immutable after construction and safe for concurrent Predict calls.
package models

import "context"

// Model is the interface every storm-index predictor implements.
type Model interface {
	// Name returns a short identifier such as "linear", "tree_ensemble" or "byom".
	Name() string

	// Predict returns the model's estimate for a single feature vector laid out
	// in features.Order. The vector length must match the model's arity.
	Predict(ctx context.Context, x []float64) (float64, error)
}
