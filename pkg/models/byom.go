package models

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/HatiCode/geostorm/pkg/features"
)

// DefaultBYOMValuePath is the gjson path of the prediction in a BYOM response.
const DefaultBYOMValuePath = "prediction"

// BYOMConfig configures a BYOMModel.
type BYOMConfig struct {
	// Endpoint is the URL that receives prediction requests (required).
	Endpoint string

	// ValuePath is the gjson path of the scalar prediction in the response body.
	// Defaults to DefaultBYOMValuePath.
	ValuePath string

	// HTTPClient is optional; if nil a client with a 10s timeout is used.
	HTTPClient *http.Client
}

// BYOMModel implements a model that delegates predictions to an external HTTP service.
// This allows serving any regressor (scikit-learn, XGBoost, ONNX runtimes) as long
// as the service accepts the request below and returns a JSON body containing the
// prediction at ValuePath.
//
// Request body, with the vector in features.Order so the remote service can
// bind by name or by position:
//
//	{"features": {"speed": 400, "bt": 2, ...}, "vector": [400, 2, ...]}
type BYOMModel struct {
	endpoint  string
	valuePath string
	client    *resty.Client
}

type byomRequest struct {
	Features map[string]float64 `json:"features"`
	Vector   []float64          `json:"vector"`
}

// NewBYOMModel creates a new BYOM model that delegates to an external HTTP service.
func NewBYOMModel(cfg BYOMConfig) (*BYOMModel, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("byom: endpoint cannot be empty")
	}
	if cfg.ValuePath == "" {
		cfg.ValuePath = DefaultBYOMValuePath
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 2,
			},
		}
	}

	client := resty.NewWithClient(httpClient).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &BYOMModel{
		endpoint:  cfg.Endpoint,
		valuePath: cfg.ValuePath,
		client:    client,
	}, nil
}

// Name returns the model identifier.
func (m *BYOMModel) Name() string {
	return "byom"
}

// Predict calls the external BYOM HTTP service for a single vector.
func (m *BYOMModel) Predict(ctx context.Context, x []float64) (float64, error) {
	if len(x) != features.Size {
		return 0, fmt.Errorf("byom: expected %d features, got %d", features.Size, len(x))
	}

	req := byomRequest{
		Features: features.Vector(x).Map(),
		Vector:   x,
	}

	resp, err := m.client.R().
		SetContext(ctx).
		SetBody(req).
		Post(m.endpoint)
	if err != nil {
		return 0, fmt.Errorf("byom: http request failed: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		body := resp.Body()
		if len(body) > 1024 {
			body = body[:1024]
		}
		return 0, fmt.Errorf("byom: http %d: %s", resp.StatusCode(), string(body))
	}

	body := resp.Body()
	if !gjson.ValidBytes(body) {
		return 0, errors.New("byom: response is not valid JSON")
	}

	value := gjson.GetBytes(body, m.valuePath)
	if !value.Exists() {
		return 0, fmt.Errorf("byom: response has no value at %q", m.valuePath)
	}
	if value.Type != gjson.Number {
		return 0, fmt.Errorf("byom: value at %q is not a number: %s", m.valuePath, value.Raw)
	}

	return value.Num, nil
}
