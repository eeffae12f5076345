// Package embcache is the persistent tier of the embedding cache: a badger
// key-value store mapping model-prefixed text keys to packed float32
// vectors. The store is a hint, not a source of truth — a lost or corrupt
// entry just means the embedding is recomputed.
package embcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// Store wraps a badger database holding packed vectors.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// badgerLogger adapts slog to badger's logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (l *badgerLogger) Errorf(msg string, args ...any)   { l.logger.Error(fmt.Sprintf(msg, args...)) }
func (l *badgerLogger) Warningf(msg string, args ...any) { l.logger.Warn(fmt.Sprintf(msg, args...)) }
func (l *badgerLogger) Infof(msg string, args ...any)    { l.logger.Debug(fmt.Sprintf(msg, args...)) }
func (l *badgerLogger) Debugf(msg string, args ...any)   { l.logger.Debug(fmt.Sprintf(msg, args...)) }

// Open opens (or creates) the store at dir. An empty dir opens an
// in-memory store, used by tests.
func Open(dir string) (*Store, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = &badgerLogger{logger: slog.Default().With("component", "embcache")}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	return &Store{db: db, logger: slog.Default().With("component", "embcache")}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetMany reads the vectors stored under keys. Absent keys are simply
// missing from the result; undecodable values are dropped and logged.
func (s *Store) GetMany(ctx context.Context, keys []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(keys))

	err := s.db.View(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := ctx.Err(); err != nil {
				return err
			}
			item, err := txn.Get([]byte(key))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			err = item.Value(func(val []byte) error {
				vec, err := unmarshalVector(val)
				if err != nil {
					s.logger.Warn("dropping undecodable cached vector",
						slog.String("key", key),
						slog.String("error", err.Error()))
					return nil
				}
				out[key] = vec
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetMany writes all vectors in one write batch.
func (s *Store) SetMany(ctx context.Context, vectors map[string][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for key, vec := range vectors {
		if err := wb.Set([]byte(key), marshalVector(vec)); err != nil {
			return fmt.Errorf("stage cached vector: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush embedding cache batch: %w", err)
	}
	return nil
}

// Len counts stored vectors.
func (s *Store) Len() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}
