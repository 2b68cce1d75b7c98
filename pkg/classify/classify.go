// Package classify maps a predicted storm index (Dst-like, in nanotesla) to a
// severity class and a description of its expected effects.
//
// Bands are evaluated from the top down. A value sitting exactly on a
// threshold belongs to the more severe band: -20 is Moderate, not Weak, and
// -200 is Extreme. Zero is the one exception and stays Quiet. Every finite
// real maps to exactly one band.
package classify

import "math"

// Class is a storm severity label.
type Class string

const (
	Quiet    Class = "Quiet"
	Weak     Class = "Weak"
	Moderate Class = "Moderate"
	Strong   Class = "Strong"
	Severe   Class = "Severe"
	Extreme  Class = "Extreme"
)

// Result is the classification of a single prediction.
type Result struct {
	Class   Class  `json:"classification"`
	Effects string `json:"effects"`
}

// band is one row of the classification table. Predictions p with
// p > Lower (or p >= Lower when Inclusive is set) fall into the band unless
// an earlier band matched.
type band struct {
	Lower     float64
	Inclusive bool
	Class     Class
	Effects   string
}

func (b band) contains(p float64) bool {
	if b.Inclusive {
		return p >= b.Lower
	}
	return p > b.Lower
}

// bands are ordered from the highest lower bound to the lowest; the last
// band has Lower = -Inf so the table is total.
var bands = []band{
	{Lower: 0, Inclusive: true, Class: Quiet, Effects: "No disturbance"},
	{Lower: -20, Class: Weak, Effects: "Minor fluctuations"},
	{Lower: -50, Class: Moderate, Effects: "Small disturbances in radio and GPS"},
	{Lower: -100, Class: Strong, Effects: "Possible power grid & satellite effects"},
	{Lower: -200, Class: Severe, Effects: "Widespread disruptions, auroras visible at lower latitudes"},
	{Lower: math.Inf(-1), Class: Extreme, Effects: "Power grid failures, major satellite issues"},
}

// Classify returns the band for prediction p. First match wins.
func Classify(p float64) Result {
	for _, b := range bands {
		if b.contains(p) {
			return Result{Class: b.Class, Effects: b.Effects}
		}
	}
	// -Inf and NaN land here; inference rejects non-finite output upstream.
	last := bands[len(bands)-1]
	return Result{Class: last.Class, Effects: last.Effects}
}

// Classes returns every class label, highest band first. Metrics use it to
// pre-create one series per class.
func Classes() []Class {
	out := make([]Class, len(bands))
	for i, b := range bands {
		out[i] = b.Class
	}
	return out
}
