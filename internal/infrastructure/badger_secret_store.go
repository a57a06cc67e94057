package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"adsetl/internal/domain"

	"github.com/dgraph-io/badger/v4"
)

const (
	secretKeyPrefix = "secret:"
	dirMode         = 0o700
)

// storedSecret keeps the write time next to the value.
type storedSecret struct {
	Value     string `json:"value"`
	UpdatedAt int64  `json:"updated_at"`
}

// BadgerSecretStore implements domain.SecretStore on a local Badger
// database, for development and offline runs.
type BadgerSecretStore struct {
	db  *badger.DB
	now func() time.Time
}

// NewBadgerSecretStore opens the store at path. An empty path runs in memory.
func NewBadgerSecretStore(path string) (*BadgerSecretStore, error) {
	opts := badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR)
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR)
	} else if err := os.MkdirAll(path, dirMode); err != nil {
		return nil, fmt.Errorf("failed to create secret store path: %w", err)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open secret store: %w", err)
	}
	return &BadgerSecretStore{db: db, now: time.Now}, nil
}

func (s *BadgerSecretStore) Close() error {
	return s.db.Close()
}

func (s *BadgerSecretStore) Get(_ context.Context, key string) (string, error) {
	var stored storedSecret
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(secretKeyPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &stored)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", domain.ErrSecretNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read secret %s: %w", key, err)
	}
	return stored.Value, nil
}

func (s *BadgerSecretStore) Set(_ context.Context, key, value string) error {
	data, err := json.Marshal(storedSecret{Value: value, UpdatedAt: s.now().Unix()})
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(secretKeyPrefix+key), data)
	})
}
