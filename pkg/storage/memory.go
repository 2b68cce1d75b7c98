package storage

import (
	"context"
	"sync"
)

// MemoryStore implements an in-process store for model artifacts.
// It is safe for concurrent use by multiple goroutines.
//
// Artifacts live as long as the process. For multi-instance deployments use
// RedisStore instead.
type MemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string]Artifact
}

// NewMemoryStore creates an empty in-memory artifact store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		artifacts: make(map[string]Artifact),
	}
}

// Put stores an artifact, replacing any existing artifact with the same name.
func (s *MemoryStore) Put(ctx context.Context, artifact Artifact) error {
	if err := ValidateName(artifact.Name); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.artifacts[artifact.Name] = artifact
	return nil
}

// GetLatest retrieves the stored artifact for name.
//
// Returns:
//   - artifact: The stored artifact (zero value if not found)
//   - found: true if an artifact exists for this name
//   - error: Context error if context is canceled, nil otherwise
func (s *MemoryStore) GetLatest(ctx context.Context, name string) (Artifact, bool, error) {
	select {
	case <-ctx.Done():
		return Artifact{}, false, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	a, found := s.artifacts[name]
	return a, found, nil
}
