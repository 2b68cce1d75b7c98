package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var artifactsBucket = []byte("artifacts")

// BoltStore implements the Store interface on a local bbolt database file.
// Useful for single-host deployments that want artifact versioning without Redis.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the bbolt database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if path == "" {
		return nil, errors.New("bolt path cannot be empty")
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(artifactsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create artifacts bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Put stores an artifact, replacing any existing artifact with the same name.
func (s *BoltStore) Put(ctx context.Context, a Artifact) error {
	if err := ValidateName(a.Name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(artifactsBucket).Put([]byte(a.Name), data)
	})
}

// GetLatest retrieves the artifact stored under name.
func (s *BoltStore) GetLatest(ctx context.Context, name string) (Artifact, bool, error) {
	if name == "" {
		return Artifact{}, false, errors.New("artifact name required")
	}
	if err := ctx.Err(); err != nil {
		return Artifact{}, false, err
	}

	var (
		a     Artifact
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(artifactsBucket).Get([]byte(name))
		if v == nil {
			return nil
		}
		found = true
		// v is only valid for the lifetime of the transaction; Unmarshal copies.
		return json.Unmarshal(v, &a)
	})
	if err != nil {
		return Artifact{}, false, fmt.Errorf("failed to read artifact from bolt: %w", err)
	}

	return a, found, nil
}

// Close releases the database file lock.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
