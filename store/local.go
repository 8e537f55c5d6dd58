package store

import (
	"context"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"
)

const bucketDocuments = "documents"

// LocalStore is the durable on-disk cache, a single-bucket bbolt file.
// It plays the role the browser's localStorage played in the original
// deployment: always written as backup, read when the remote is down.
type LocalStore struct {
	db *bbolt.DB
}

// OpenLocalStore opens (creating if needed) the cache file at path.
func OpenLocalStore(path string) (*LocalStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketDocuments))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &LocalStore{db: db}, nil
}

func (s *LocalStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *LocalStore) Load(_ context.Context, key string) ([]byte, error) {
	var payload []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket([]byte(bucketDocuments)).Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}
		payload = append(payload, raw...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (s *LocalStore) Save(_ context.Context, key string, payload []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketDocuments)).Put([]byte(key), payload)
	})
}
