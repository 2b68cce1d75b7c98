// Package features turns raw solar-wind observations into the fixed-order
// numeric vectors consumed by geostorm models.
//
// A Record is a loosely typed mapping (decoded JSON or a CSV row). Extract
// converts it into a Vector whose positions always follow Order:
//
//	[speed, bt, temperature, bz_gsm, density]
//
// Models are fit against this exact ordering. Reordering the vector does not
// produce an error anywhere downstream; it silently corrupts predictions, so
// Order is the single source of truth for every producer and consumer.
package features

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Feature names accepted in records.
const (
	Speed       = "speed"       // km/s
	Bt          = "bt"          // nT
	Temperature = "temperature" // K
	BzGSM       = "bz_gsm"      // nT
	Density     = "density"     // particles/cm³
)

// Order is the position of every feature within a Vector.
var Order = []string{Speed, Bt, Temperature, BzGSM, Density}

// Size is the model input arity.
const Size = 5

// ErrInvalidInput is returned when a record or table cannot be turned into
// feature vectors. Callers should surface it as a client error.
var ErrInvalidInput = errors.New("invalid input")

// Record is a named-field observation, as decoded from JSON or a CSV row.
type Record map[string]any

// Vector is an ordered feature vector laid out according to Order.
type Vector []float64

// Extract converts a record into a Vector. It is all-or-nothing: the first
// missing or non-numeric field fails the whole record.
func Extract(r Record) (Vector, error) {
	v := make(Vector, len(Order))
	for i, name := range Order {
		raw, ok := r[name]
		if !ok || raw == nil {
			return nil, fmt.Errorf("%w: missing field %q", ErrInvalidInput, name)
		}
		f, err := toFloat(name, raw)
		if err != nil {
			return nil, err
		}
		v[i] = f
	}
	return v, nil
}

// ParseFloat coerces a text cell into a finite float64.
func ParseFloat(field, text string) (float64, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, fmt.Errorf("%w: field %q is empty", ErrInvalidInput, field)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: field %q: %q is not a number", ErrInvalidInput, field, text)
	}
	return checkFinite(field, f)
}

func toFloat(field string, raw any) (float64, error) {
	switch x := raw.(type) {
	case float64:
		return checkFinite(field, x)
	case float32:
		return checkFinite(field, float64(x))
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		return ParseFloat(field, x)
	case interface{ Float64() (float64, error) }:
		f, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: field %q: %v", ErrInvalidInput, field, err)
		}
		return checkFinite(field, f)
	default:
		return 0, fmt.Errorf("%w: field %q has unsupported type %T", ErrInvalidInput, field, raw)
	}
}

func checkFinite(field string, f float64) (float64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: field %q must be a finite number", ErrInvalidInput, field)
	}
	return f, nil
}

// Map returns the vector keyed by feature name.
func (v Vector) Map() map[string]float64 {
	m := make(map[string]float64, len(v))
	for i, f := range v {
		if i < len(Order) {
			m[Order[i]] = f
		}
	}
	return m
}
