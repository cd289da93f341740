package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble/v2"
	"github.com/cockroachdb/pebble/v2/vfs"
	"github.com/rs/zerolog"
)

// PebbleStore keeps records in an embedded PebbleDB key-value store.
type PebbleStore struct {
	db *pebble.DB
}

// pebbleLogger routes Pebble's internal logging through zerolog.
type pebbleLogger struct {
	logger zerolog.Logger
}

func (l pebbleLogger) Infof(format string, args ...interface{}) {
	l.logger.Info().Msgf(format, args...)
}

func (l pebbleLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf(format, args...)
}

func (l pebbleLogger) Fatalf(format string, args ...interface{}) {
	l.logger.Fatal().Msgf(format, args...)
}

// NewPebbleStore opens (or creates) a Pebble database in dir.
// If dir is empty, defaults to "./data/pebble".
func NewPebbleStore(ctx context.Context, dir string, logger zerolog.Logger) (*PebbleStore, error) {
	if dir == "" {
		dir = "./data/pebble"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{
		Logger: pebbleLogger{logger: logger.With().Str("component", "pebble").Logger()},
	})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

// NewMemPebbleStore opens a Pebble database backed by an in-memory filesystem.
// Its internal logging is discarded.
func NewMemPebbleStore() (*PebbleStore, error) {
	db, err := pebble.Open("", &pebble.Options{
		FS:     vfs.NewMem(),
		Logger: pebbleLogger{logger: zerolog.Nop()},
	})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

// Close closes the database.
func (s *PebbleStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database still serves reads.
func (s *PebbleStore) Ping(ctx context.Context) error {
	_, closer, err := s.db.Get([]byte("\x00ping"))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return closer.Close()
}

// Get returns the record stored under key.
func (s *PebbleStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()

	// value is only valid until closer is closed
	return append([]byte{}, value...), nil
}

// Put writes the record and syncs it to disk.
func (s *PebbleStore) Put(ctx context.Context, key string, value []byte) error {
	return s.db.Set([]byte(key), value, pebble.Sync)
}

// Delete removes the record. Deleting a missing key is not an error.
func (s *PebbleStore) Delete(ctx context.Context, key string) error {
	return s.db.Delete([]byte(key), pebble.Sync)
}

// List returns all records whose key starts with prefix, in key order.
func (s *PebbleStore) List(ctx context.Context, prefix string) ([][]byte, error) {
	opts := &pebble.IterOptions{}
	if prefix != "" {
		opts.LowerBound = []byte(prefix)
		opts.UpperBound = prefixUpperBound([]byte(prefix))
	}

	it, err := s.db.NewIter(opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()

	var out [][]byte
	for it.First(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		value, err := it.ValueAndErr()
		if err != nil {
			return nil, err
		}
		out = append(out, append([]byte{}, value...))
	}
	return out, it.Error()
}
