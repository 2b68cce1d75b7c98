// Package models selects the model loader configured for the server.
package models

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/HatiCode/geostorm/cmd/geostorm/config"
	"github.com/HatiCode/geostorm/pkg/httpx"
	"github.com/HatiCode/geostorm/pkg/inference"
	"github.com/HatiCode/geostorm/pkg/models"
	"github.com/HatiCode/geostorm/pkg/storage"
)

// NewLoader returns the inference.Loader for cfg.Model and cfg.ModelSource.
func NewLoader(cfg *config.Config, logger *slog.Logger) (inference.Loader, error) {
	switch cfg.Model {
	case config.ModelBYOM:
		logger.Info("initializing BYOM model", "url", cfg.BYOMURL, "value_path", cfg.BYOMValuePath)

		client, err := httpx.NewClient(cfg.TLS, cfg.BYOMTimeout)
		if err != nil {
			return nil, fmt.Errorf("create BYOM client: %w", err)
		}
		m, err := models.NewBYOMModel(models.BYOMConfig{
			Endpoint:   cfg.BYOMURL,
			ValuePath:  cfg.BYOMValuePath,
			HTTPClient: client,
		})
		if err != nil {
			return nil, err
		}
		return inference.StaticLoader{Model: m, Source: "byom:" + cfg.BYOMURL}, nil

	case config.ModelArtifact:
		switch cfg.ModelSource {
		case config.SourceFile:
			logger.Info("loading model artifact from file", "path", cfg.ModelPath)
			return inference.FileLoader{Path: cfg.ModelPath}, nil

		case config.SourceMemory:
			logger.Info("staging model artifact in memory", "path", cfg.ModelPath, "name", cfg.ModelName)
			return memoryLoader{
				path:  cfg.ModelPath,
				name:  cfg.ModelName,
				store: storage.NewMemoryStore(),
			}, nil

		case config.SourceRedis:
			logger.Info("loading model artifact from redis", "addr", cfg.RedisAddr, "name", cfg.ModelName)
			return storeLoader{
				name:    cfg.ModelName,
				backend: config.SourceRedis,
				open: func() (closableStore, error) {
					return storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, 0)
				},
				logger: logger,
			}, nil

		case config.SourceBolt:
			logger.Info("loading model artifact from bolt", "path", cfg.BoltPath, "name", cfg.ModelName)
			return storeLoader{
				name:    cfg.ModelName,
				backend: config.SourceBolt,
				open: func() (closableStore, error) {
					return storage.NewBoltStore(cfg.BoltPath)
				},
				logger: logger,
			}, nil
		}
		return nil, fmt.Errorf("invalid model source %q", cfg.ModelSource)
	}

	return nil, fmt.Errorf("invalid model %q", cfg.Model)
}

type closableStore interface {
	storage.Store
	Close() error
}

// storeLoader opens the artifact store only for the duration of Load. The
// model is immutable once loaded, so the connection is not kept.
type storeLoader struct {
	name    string
	backend string
	open    func() (closableStore, error)
	logger  *slog.Logger
}

func (l storeLoader) Load(ctx context.Context) (models.Model, string, error) {
	store, err := l.open()
	if err != nil {
		return nil, l.backend + ":" + l.name, fmt.Errorf("open %s store: %w", l.backend, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			l.logger.Warn("failed to close artifact store", "backend", l.backend, "error", err)
		}
	}()

	return inference.StoreLoader{Store: store, Name: l.name, Backend: l.backend}.Load(ctx)
}

// memoryLoader stages an artifact file in an in-process store and loads it
// from there, so a single instance gets the same named, checksummed artifact
// as a Redis or bbolt deployment without running one.
type memoryLoader struct {
	path  string
	name  string
	store *storage.MemoryStore
}

func (l memoryLoader) Load(ctx context.Context) (models.Model, string, error) {
	source := config.SourceMemory + ":" + l.name

	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, source, fmt.Errorf("read artifact: %w", err)
	}
	if err := l.store.Put(ctx, storage.NewArtifact(l.name, data, time.Now().UTC())); err != nil {
		return nil, source, fmt.Errorf("stage artifact: %w", err)
	}

	return inference.StoreLoader{Store: l.store, Name: l.name, Backend: config.SourceMemory}.Load(ctx)
}
