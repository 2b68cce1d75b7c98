package models

import (
	"context"
	"errors"
	"fmt"
)

// LinearModel computes intercept + Σ weights[i]*x[i].
type LinearModel struct {
	intercept float64
	weights   []float64
}

// NewLinearModel creates a linear model. The weights slice is copied.
//
// Panics if weights is empty.
func NewLinearModel(intercept float64, weights []float64) *LinearModel {
	if len(weights) == 0 {
		panic("weights cannot be empty")
	}
	w := make([]float64, len(weights))
	copy(w, weights)
	return &LinearModel{intercept: intercept, weights: w}
}

// Name returns the model identifier.
func (m *LinearModel) Name() string {
	return "linear"
}

// Predict evaluates the linear function at x.
func (m *LinearModel) Predict(ctx context.Context, x []float64) (float64, error) {
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	if len(x) != len(m.weights) {
		return 0, fmt.Errorf("linear: expected %d features, got %d", len(m.weights), len(x))
	}

	y := m.intercept
	for i, w := range m.weights {
		y += w * x[i]
	}
	return y, nil
}

func validateLinear(intercept float64, weights []float64, arity int) error {
	if len(weights) != arity {
		return fmt.Errorf("linear: %d weights for %d features", len(weights), arity)
	}
	if !finite(intercept) {
		return errors.New("linear: intercept must be finite")
	}
	for i, w := range weights {
		if !finite(w) {
			return fmt.Errorf("linear: weight %d must be finite", i)
		}
	}
	return nil
}
