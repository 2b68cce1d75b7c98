package models

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/HatiCode/geostorm/cmd/geostorm/config"
	"github.com/HatiCode/geostorm/pkg/features"
	"github.com/HatiCode/geostorm/pkg/inference"
	"github.com/HatiCode/geostorm/pkg/models"
	"github.com/HatiCode/geostorm/pkg/storage"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func linearArtifact(t *testing.T, intercept float64) []byte {
	t.Helper()
	data, err := models.EncodeLinear(intercept, []float64{0, 0, 0, 0, 0}, features.Order)
	if err != nil {
		t.Fatalf("EncodeLinear() error = %v", err)
	}
	return data
}

func TestNewLoader_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geomagnetic_model.json")
	if err := os.WriteFile(path, linearArtifact(t, 3.5), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := config.Defaults()
	cfg.ModelPath = path

	l, err := NewLoader(&cfg, discard())
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	if _, ok := l.(inference.FileLoader); !ok {
		t.Fatalf("NewLoader() = %T, want inference.FileLoader", l)
	}

	a := inference.New(discard())
	if err := a.Load(context.Background(), l); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	y, err := a.Predict(context.Background(), features.Vector{400, 2, 50000, 1, 5})
	if err != nil || y != 3.5 {
		t.Errorf("Predict() = %v, %v; want 3.5", y, err)
	}
}

func TestNewLoader_Memory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geomagnetic_model.json")
	if err := os.WriteFile(path, linearArtifact(t, -60), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := config.Defaults()
	cfg.ModelSource = config.SourceMemory
	cfg.ModelPath = path

	l, err := NewLoader(&cfg, discard())
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	a := inference.New(discard())
	if err := a.Load(context.Background(), l); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	info, _ := a.Info()
	if info.Source != "memory:geomagnetic" {
		t.Errorf("Source = %q, want memory:geomagnetic", info.Source)
	}
	y, err := a.Predict(context.Background(), features.Vector{1, 2, 3, 4, 5})
	if err != nil || y != -60 {
		t.Errorf("Predict() = %v, %v; want -60", y, err)
	}
}

func TestNewLoader_MemoryMissingFile(t *testing.T) {
	cfg := config.Defaults()
	cfg.ModelSource = config.SourceMemory
	cfg.ModelPath = filepath.Join(t.TempDir(), "missing.json")

	l, err := NewLoader(&cfg, discard())
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	if _, _, err := l.Load(context.Background()); err == nil {
		t.Error("Load() of missing artifact file should fail")
	}
}

func TestNewLoader_Bolt(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "geostorm.db")

	store, err := storage.NewBoltStore(dbPath)
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	if err := store.Put(context.Background(), storage.NewArtifact("geomagnetic", linearArtifact(t, -42), time.Now())); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	cfg := config.Defaults()
	cfg.ModelSource = config.SourceBolt
	cfg.BoltPath = dbPath

	l, err := NewLoader(&cfg, discard())
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	m, source, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if source != "bolt:geomagnetic" {
		t.Errorf("source = %q", source)
	}
	y, _ := m.Predict(context.Background(), []float64{1, 2, 3, 4, 5})
	if y != -42 {
		t.Errorf("Predict() = %v, want -42", y)
	}

	// The store must have been released so it can be reopened.
	reopened, err := storage.NewBoltStore(dbPath)
	if err != nil {
		t.Fatalf("reopen after Load() error = %v", err)
	}
	reopened.Close()
}

func TestNewLoader_BYOM(t *testing.T) {
	cfg := config.Defaults()
	cfg.Model = config.ModelBYOM
	cfg.BYOMURL = "http://model.internal:8000/predict"

	l, err := NewLoader(&cfg, discard())
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	m, source, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if m.Name() != "byom" || source != "byom:"+cfg.BYOMURL {
		t.Errorf("Load() = %s, %q", m.Name(), source)
	}
}

func TestNewLoader_Invalid(t *testing.T) {
	cfg := config.Defaults()
	cfg.Model = "sklearn"
	if _, err := NewLoader(&cfg, discard()); err == nil {
		t.Error("NewLoader() with unknown model should fail")
	}

	cfg = config.Defaults()
	cfg.ModelSource = "s3"
	if _, err := NewLoader(&cfg, discard()); err == nil {
		t.Error("NewLoader() with unknown source should fail")
	}
}
