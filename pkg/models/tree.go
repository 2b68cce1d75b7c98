package models

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Aggregation controls how per-tree outputs are combined.
type Aggregation string

const (
	// AggregateMean averages tree outputs (random forest).
	AggregateMean Aggregation = "mean"
	// AggregateSum adds tree outputs to a base score (gradient boosting).
	AggregateSum Aggregation = "sum"
)

// leaf marks a terminal node in Node.Feature.
const leaf = -1

// Node is one node of a flattened regression tree.
//
// Split nodes send x[Feature] <= Threshold to Left and everything else to
// Right. Leaf nodes have Feature == -1 and carry Value.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
	Value     float64 `json:"value,omitempty"`
}

// Tree is a flattened regression tree rooted at Nodes[0].
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// TreeEnsemble implements the Model interface over a set of regression trees.
type TreeEnsemble struct {
	trees       []Tree
	aggregation Aggregation
	baseScore   float64
	nFeatures   int
}

// NewTreeEnsemble validates the trees and builds an ensemble over nFeatures inputs.
func NewTreeEnsemble(trees []Tree, aggregation Aggregation, baseScore float64, nFeatures int) (*TreeEnsemble, error) {
	if len(trees) == 0 {
		return nil, errors.New("tree_ensemble: at least one tree is required")
	}
	if nFeatures <= 0 {
		return nil, errors.New("tree_ensemble: nFeatures must be > 0")
	}
	switch aggregation {
	case "":
		aggregation = AggregateMean
	case AggregateMean, AggregateSum:
	default:
		return nil, fmt.Errorf("tree_ensemble: unknown aggregation %q (must be mean or sum)", aggregation)
	}
	if !finite(baseScore) {
		return nil, errors.New("tree_ensemble: baseScore must be finite")
	}

	for i, t := range trees {
		if err := validateTree(t, nFeatures); err != nil {
			return nil, fmt.Errorf("tree_ensemble: tree %d: %w", i, err)
		}
	}

	return &TreeEnsemble{
		trees:       trees,
		aggregation: aggregation,
		baseScore:   baseScore,
		nFeatures:   nFeatures,
	}, nil
}

// Name returns the model identifier.
func (m *TreeEnsemble) Name() string {
	return "tree_ensemble"
}

// Predict walks every tree and combines the leaf values.
func (m *TreeEnsemble) Predict(ctx context.Context, x []float64) (float64, error) {
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	if len(x) != m.nFeatures {
		return 0, fmt.Errorf("tree_ensemble: expected %d features, got %d", m.nFeatures, len(x))
	}

	var sum float64
	for i := range m.trees {
		sum += m.trees[i].eval(x)
	}

	if m.aggregation == AggregateSum {
		return m.baseScore + sum, nil
	}
	return sum / float64(len(m.trees)), nil
}

// Trees returns the number of trees in the ensemble.
func (m *TreeEnsemble) Trees() int {
	return len(m.trees)
}

// eval descends from the root. validateTree guarantees children have larger
// indices than their parent, so the walk always terminates.
func (t Tree) eval(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature == leaf {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

func validateTree(t Tree, nFeatures int) error {
	if len(t.Nodes) == 0 {
		return errors.New("no nodes")
	}
	for i, n := range t.Nodes {
		if n.Feature == leaf {
			if !finite(n.Value) {
				return fmt.Errorf("node %d: leaf value must be finite", i)
			}
			continue
		}
		if n.Feature < 0 || n.Feature >= nFeatures {
			return fmt.Errorf("node %d: feature index %d out of range [0, %d)", i, n.Feature, nFeatures)
		}
		if math.IsNaN(n.Threshold) {
			return fmt.Errorf("node %d: threshold is NaN", i)
		}
		for _, child := range []int{n.Left, n.Right} {
			if child <= i || child >= len(t.Nodes) {
				return fmt.Errorf("node %d: child index %d must be in (%d, %d)", i, child, i, len(t.Nodes))
			}
		}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
