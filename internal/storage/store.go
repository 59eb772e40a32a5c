// Package storage persists small pieces of client state (marked items,
// deletions seen while the board was inactive) across restarts. It plays
// the part browser localStorage plays for a web client.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/syndtr/goleveldb/leveldb"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"
)

const keyPrefix = "pos:"

// Store is a string-keyed JSON store backed by LevelDB.
type Store struct{ db *leveldb.DB }

// Open opens (or creates) the store in dir.
func Open(dir string) (*Store, error) {
	db, err := leveldb.OpenFile(filepath.Clean(dir), nil)
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// OpenMemory opens a store that lives only as long as the process.
func OpenMemory() (*Store, error) {
	db, err := leveldb.Open(lvlstorage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func key(k string) []byte { return []byte(keyPrefix + k) }

// GetJSON decodes the value stored under k into v. It reports false when
// the key is absent.
func (s *Store) GetJSON(k string, v any) (bool, error) {
	data, err := s.db.Get(key(k), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", k, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decoding %s: %w", k, err)
	}
	return true, nil
}

// PutJSON stores v under k.
func (s *Store) PutJSON(k string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", k, err)
	}
	return s.db.Put(key(k), data, nil)
}

// Delete removes k. Deleting an absent key is not an error.
func (s *Store) Delete(k string) error {
	return s.db.Delete(key(k), nil)
}
