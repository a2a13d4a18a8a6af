// Package history keeps generation run results in a local bbolt database.
package history

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/rowforge/rowforge/internal/engine"
)

// ErrNotFound is returned when no run has the requested ID.
var ErrNotFound = errors.New("run not found")

var (
	runsBucket  = []byte("runs")  // time-ordered key -> JSON BatchResult
	indexBucket = []byte("index") // run ID -> time-ordered key
)

// Store implements engine.HistoryStore.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{runsBucket, indexBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing history database: %w", err)
	}
	return &Store{db: db}, nil
}

// runKey orders runs by start time, then ID.
func runKey(r *engine.BatchResult) []byte {
	id := r.RunID.String()
	k := make([]byte, 8, 8+len(id))
	binary.BigEndian.PutUint64(k, uint64(r.StartedAt.UnixNano()))
	return append(k, id...)
}

// Save stores r, replacing any earlier record with the same run ID.
func (s *Store) Save(r *engine.BatchResult) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding run %s: %w", r.RunID, err)
	}
	id := []byte(r.RunID.String())
	key := runKey(r)

	return s.db.Update(func(tx *bolt.Tx) error {
		runs, index := tx.Bucket(runsBucket), tx.Bucket(indexBucket)
		if old := index.Get(id); old != nil {
			if err := runs.Delete(old); err != nil {
				return err
			}
		}
		if err := runs.Put(key, data); err != nil {
			return err
		}
		return index.Put(id, key)
	})
}

// Get returns the run with the given ID.
func (s *Store) Get(id string) (*engine.BatchResult, error) {
	var r *engine.BatchResult
	err := s.db.View(func(tx *bolt.Tx) error {
		key := tx.Bucket(indexBucket).Get([]byte(id))
		if key == nil {
			return ErrNotFound
		}
		data := tx.Bucket(runsBucket).Get(key)
		if data == nil {
			return ErrNotFound
		}
		r = &engine.BatchResult{}
		return json.Unmarshal(data, r)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// List returns up to limit runs, newest first. A non-positive limit returns all.
func (s *Store) List(limit int) ([]*engine.BatchResult, error) {
	var out []*engine.BatchResult
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(runsBucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(out) >= limit {
				break
			}
			r := &engine.BatchResult{}
			if err := json.Unmarshal(v, r); err != nil {
				return fmt.Errorf("decoding run: %w", err)
			}
			out = append(out, r)
		}
		return nil
	})
	return out, err
}

// Delete removes a run. Removing an unknown ID is not an error.
func (s *Store) Delete(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		index := tx.Bucket(indexBucket)
		key := index.Get([]byte(id))
		if key == nil {
			return nil
		}
		if err := tx.Bucket(runsBucket).Delete(key); err != nil {
			return err
		}
		return index.Delete([]byte(id))
	})
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
