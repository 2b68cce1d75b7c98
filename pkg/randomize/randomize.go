// Package randomize produces plausible solar-wind observations for demos and
// manual testing of the prediction endpoints.
package randomize

import (
	"math"
	"math/rand/v2"

	"github.com/HatiCode/geostorm/pkg/features"
)

// Range is a closed interval [Min, Max] for one feature.
type Range struct {
	Min float64
	Max float64
}

// Ranges lists the sampling interval of every feature.
var Ranges = map[string]Range{
	features.BzGSM:       {Min: -10, Max: 10},
	features.Bt:          {Min: 0, Max: 20},
	features.Density:     {Min: 0, Max: 50},
	features.Speed:       {Min: 200, Max: 800},
	features.Temperature: {Min: 10000, Max: 500000},
}

// Generate draws one uniform sample per feature and rounds it to the nearest
// integer. Features are drawn in Order, so a seeded r gives repeatable output.
// A nil r uses the global source.
func Generate(r *rand.Rand) map[string]int {
	out := make(map[string]int, len(Ranges))
	for _, name := range features.Order {
		rg := Ranges[name]
		var u float64
		if r != nil {
			u = r.Float64()
		} else {
			u = rand.Float64()
		}
		out[name] = int(math.Round(rg.Min + u*(rg.Max-rg.Min)))
	}
	return out
}
