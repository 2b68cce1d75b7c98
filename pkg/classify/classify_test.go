package classify

import (
	"math"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		prediction  float64
		wantClass   Class
		wantEffects string
	}{
		{"zero is quiet", 0, Quiet, "No disturbance"},
		{"positive", 42.5, Quiet, "No disturbance"},
		{"just below zero", -0.001, Weak, "Minor fluctuations"},
		{"weak interior", -10, Weak, "Minor fluctuations"},
		{"minus twenty is moderate", -20, Moderate, "Small disturbances in radio and GPS"},
		{"moderate interior", -35, Moderate, "Small disturbances in radio and GPS"},
		{"minus fifty is strong", -50, Strong, "Possible power grid & satellite effects"},
		{"minus hundred is severe", -100, Severe, "Widespread disruptions, auroras visible at lower latitudes"},
		{"severe lower edge", -199.999, Severe, "Widespread disruptions, auroras visible at lower latitudes"},
		{"minus two hundred is extreme", -200, Extreme, "Power grid failures, major satellite issues"},
		{"very negative", -1e9, Extreme, "Power grid failures, major satellite issues"},
		{"positive infinity", math.Inf(1), Quiet, "No disturbance"},
		{"negative infinity", math.Inf(-1), Extreme, "Power grid failures, major satellite issues"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.prediction)
			if got.Class != tt.wantClass {
				t.Errorf("Classify(%v).Class = %q, want %q", tt.prediction, got.Class, tt.wantClass)
			}
			if got.Effects != tt.wantEffects {
				t.Errorf("Classify(%v).Effects = %q, want %q", tt.prediction, got.Effects, tt.wantEffects)
			}
		})
	}
}

// Every value in a sweep must land in exactly one band, and bands must be
// visited in table order as the value decreases.
func TestClassify_Totality(t *testing.T) {
	order := map[Class]int{}
	for i, c := range Classes() {
		order[c] = i
	}

	prev := 0
	for p := 50.0; p >= -300; p -= 0.25 {
		c := Classify(p).Class
		idx, ok := order[c]
		if !ok {
			t.Fatalf("Classify(%v) returned unknown class %q", p, c)
		}
		if idx < prev {
			t.Fatalf("Classify(%v) = %q went back up the table", p, c)
		}
		prev = idx
	}
	if prev != len(Classes())-1 {
		t.Errorf("sweep ended in band %d, want the last band", prev)
	}
}

func TestBands_NonOverlapping(t *testing.T) {
	if len(bands) != 6 {
		t.Fatalf("len(bands) = %d, want 6", len(bands))
	}
	for i := 1; i < len(bands); i++ {
		if !(bands[i].Lower < bands[i-1].Lower) {
			t.Errorf("band %d lower %v is not below band %d lower %v", i, bands[i].Lower, i-1, bands[i-1].Lower)
		}
	}
	if !math.IsInf(bands[len(bands)-1].Lower, -1) {
		t.Error("last band must be unbounded below")
	}
}
