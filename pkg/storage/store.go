// Package storage provides model artifact storage implementations.
//
// Stores hold serialized model artifacts so that several geostorm instances
// can load the same model at startup. Only artifacts are stored; predictions
// never leave the request that produced them.
//
// Available backends:
//   - MemoryStore: in-process map (MODEL_SOURCE=memory, single instance)
//   - RedisStore: shared Redis key per artifact name
//   - BoltStore: local bbolt file
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Artifact is a serialized model plus the metadata needed to verify it.
type Artifact struct {
	Name       string    `json:"name"`
	Data       []byte    `json:"data"`
	Checksum   string    `json:"checksum"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Store persists model artifacts by name. Put replaces any previous
// artifact with the same name.
type Store interface {
	Put(ctx context.Context, artifact Artifact) error
	GetLatest(ctx context.Context, name string) (Artifact, bool, error)
}

var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9_.-]{0,251}[a-zA-Z0-9])?$`)

// ValidateName reports whether name is usable as an artifact key.
func ValidateName(name string) error {
	if name == "" {
		return errors.New("artifact name required")
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("invalid artifact name %q: only alphanumeric, dots, hyphens, and underscores allowed", name)
	}
	return nil
}

// Checksum returns the hex-encoded SHA-256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NewArtifact builds an artifact with its checksum filled in.
func NewArtifact(name string, data []byte, uploadedAt time.Time) Artifact {
	return Artifact{
		Name:       name,
		Data:       data,
		Checksum:   Checksum(data),
		UploadedAt: uploadedAt.UTC(),
	}
}

// Verify checks the artifact data against its recorded checksum.
func (a Artifact) Verify() error {
	if a.Checksum == "" {
		return fmt.Errorf("artifact %q has no checksum", a.Name)
	}
	if got := Checksum(a.Data); got != a.Checksum {
		return fmt.Errorf("artifact %q checksum mismatch: got %s, want %s", a.Name, got, a.Checksum)
	}
	return nil
}
