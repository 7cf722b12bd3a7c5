package mmr

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v3"
)

// BadgerStore is the durable Store variant, backed by a badger database on
// disk. A single badger transaction carries each PutBatch, so an append is
// never partially applied even across process crashes.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) a badger database at dir.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store at %s: %w", dir, err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) Get(_ context.Context, key string) (string, error) {
	var value string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			value = string(v)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("badger get %s: %w", key, err)
	}
	return value, nil
}

func (s *BadgerStore) Put(_ context.Context, key string, value string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("badger put %s: %w", key, err)
	}
	return nil
}

func (s *BadgerStore) PutBatch(_ context.Context, entries map[string]string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		for k, v := range entries {
			if err := txn.Set([]byte(k), []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badger put batch: %w", err)
	}
	return nil
}
