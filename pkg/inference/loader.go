package inference

import (
	"context"
	"fmt"
	"os"

	"github.com/HatiCode/geostorm/pkg/features"
	"github.com/HatiCode/geostorm/pkg/models"
	"github.com/HatiCode/geostorm/pkg/storage"
)

// Loader produces the model served by an Adapter, together with a short
// description of where it came from (for logs and /model).
type Loader interface {
	Load(ctx context.Context) (models.Model, string, error)
}

// FileLoader decodes an artifact from a local file.
type FileLoader struct {
	Path string
}

// Load reads and decodes the artifact file.
func (l FileLoader) Load(ctx context.Context) (models.Model, string, error) {
	source := "file:" + l.Path
	if err := ctx.Err(); err != nil {
		return nil, source, err
	}

	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, source, fmt.Errorf("read artifact: %w", err)
	}

	m, err := models.Decode(data, features.Order)
	if err != nil {
		return nil, source, fmt.Errorf("decode artifact %s: %w", l.Path, err)
	}
	return m, source, nil
}

// StoreLoader fetches an artifact by name from a storage.Store and verifies
// its checksum before decoding.
type StoreLoader struct {
	Store   storage.Store
	Name    string
	Backend string
}

// Load retrieves, verifies and decodes the named artifact.
func (l StoreLoader) Load(ctx context.Context) (models.Model, string, error) {
	source := fmt.Sprintf("%s:%s", l.Backend, l.Name)

	a, found, err := l.Store.GetLatest(ctx, l.Name)
	if err != nil {
		return nil, source, fmt.Errorf("fetch artifact: %w", err)
	}
	if !found {
		return nil, source, fmt.Errorf("artifact %q not found in %s store", l.Name, l.Backend)
	}
	if err := a.Verify(); err != nil {
		return nil, source, err
	}

	m, err := models.Decode(a.Data, features.Order)
	if err != nil {
		return nil, source, fmt.Errorf("decode artifact %q: %w", l.Name, err)
	}
	return m, source, nil
}

// StaticLoader hands over an already constructed model, such as a BYOMModel.
type StaticLoader struct {
	Model  models.Model
	Source string
}

// Load returns the wrapped model.
func (l StaticLoader) Load(ctx context.Context) (models.Model, string, error) {
	if l.Model == nil {
		return nil, l.Source, fmt.Errorf("no model configured for %s", l.Source)
	}
	return l.Model, l.Source, nil
}
