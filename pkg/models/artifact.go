package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/tidwall/gjson"
)

// Artifact header values recognised by Decode.
const (
	ArtifactFormat  = "geostorm-model"
	ArtifactVersion = 1

	KindLinear       = "linear"
	KindTreeEnsemble = "tree_ensemble"
)

// Header is the metadata common to every model artifact.
type Header struct {
	Format   string   `json:"format"`
	Version  int      `json:"version"`
	Kind     string   `json:"kind"`
	Features []string `json:"features"`
}

type linearArtifact struct {
	Header
	Intercept float64   `json:"intercept"`
	Weights   []float64 `json:"weights"`
}

type treeArtifact struct {
	Header
	Aggregation Aggregation `json:"aggregation"`
	BaseScore   float64     `json:"baseScore"`
	Trees       []Tree      `json:"trees"`
}

// ReadHeader extracts the artifact header without decoding the model body.
func ReadHeader(data []byte) (Header, error) {
	if !gjson.ValidBytes(data) {
		return Header{}, errors.New("artifact is not valid JSON")
	}

	fields := gjson.GetManyBytes(data, "format", "version", "kind", "features")
	h := Header{
		Format:  fields[0].String(),
		Version: int(fields[1].Int()),
		Kind:    fields[2].String(),
	}
	for _, f := range fields[3].Array() {
		h.Features = append(h.Features, f.String())
	}

	if h.Format != ArtifactFormat {
		return Header{}, fmt.Errorf("unsupported artifact format %q (want %q)", h.Format, ArtifactFormat)
	}
	if h.Version != ArtifactVersion {
		return Header{}, fmt.Errorf("unsupported artifact version %d (want %d)", h.Version, ArtifactVersion)
	}
	if h.Kind == "" {
		return Header{}, errors.New("artifact kind is missing")
	}
	if len(h.Features) == 0 {
		return Header{}, errors.New("artifact features are missing")
	}
	return h, nil
}

// Decode builds a Model from a serialized artifact. The artifact's declared
// feature order must equal order exactly; a model fit on a different layout
// would silently produce wrong predictions.
func Decode(data []byte, order []string) (Model, error) {
	h, err := ReadHeader(data)
	if err != nil {
		return nil, err
	}
	if !slices.Equal(h.Features, order) {
		return nil, fmt.Errorf("artifact feature order %v does not match %v", h.Features, order)
	}

	switch h.Kind {
	case KindLinear:
		var a linearArtifact
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("decode linear artifact: %w", err)
		}
		if err := validateLinear(a.Intercept, a.Weights, len(order)); err != nil {
			return nil, err
		}
		return NewLinearModel(a.Intercept, a.Weights), nil

	case KindTreeEnsemble:
		var a treeArtifact
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("decode tree_ensemble artifact: %w", err)
		}
		return NewTreeEnsemble(a.Trees, a.Aggregation, a.BaseScore, len(order))

	default:
		return nil, fmt.Errorf("unknown model kind %q (must be %s or %s)", h.Kind, KindLinear, KindTreeEnsemble)
	}
}

// EncodeLinear serializes a linear model as an artifact.
func EncodeLinear(intercept float64, weights []float64, order []string) ([]byte, error) {
	if err := validateLinear(intercept, weights, len(order)); err != nil {
		return nil, err
	}
	return json.Marshal(linearArtifact{
		Header:    Header{Format: ArtifactFormat, Version: ArtifactVersion, Kind: KindLinear, Features: order},
		Intercept: intercept,
		Weights:   weights,
	})
}
