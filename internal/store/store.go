// Package store implements the document store: collections of weather
// documents persisted in BadgerDB, with secondary indexes, radius and
// aggregation queries, and optimistic-concurrency writes.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/couchcryptid/weather-data-store/internal/observability"
)

// Collection names.
const (
	ColStations    = "weather_stations"
	ColReports     = "weather_reports"
	ColBalloons    = "weather_balloon_reports"
	ColUsers       = "users"
	ColTechnicians = "technicians"
	ColMaintenance = "maintenance_logs"
	ColExtremes    = "weather_extremes"
)

// Options configures a Store.
type Options struct {
	// Dir is the BadgerDB directory. Ignored when InMemory is set.
	Dir string
	// InMemory keeps all data in RAM. Used by tests.
	InMemory bool
	Logger   *slog.Logger
	Metrics  *observability.Metrics
}

// Store is a document store over BadgerDB. All exported methods are safe for
// concurrent use; index rebuilds take the write lock so that writers observe
// a consistent index set.
type Store struct {
	db      *badger.DB
	logger  *slog.Logger
	metrics *observability.Metrics

	// mu serializes index rebuilds against writers. Writers hold the read
	// lock; EnsureIndexes holds the write lock while backfilling.
	mu sync.RWMutex

	// ready index names, populated by EnsureIndexes.
	indexMu sync.RWMutex
	indexes map[string]bool
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open opens the store. The directory is created if it does not exist.
func Open(opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NewMetricsForTesting()
	}

	var badgerOpts badger.Options
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Dir == "" {
			return nil, errors.New("store: dir is required for a persistent store")
		}
		if err := os.MkdirAll(opts.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("store: create dir %s: %w", opts.Dir, err)
		}
		badgerOpts = badger.DefaultOptions(opts.Dir)
	}
	badgerOpts = badgerOpts.WithLogger(badgerLogger{logger: logger})

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger: %w", err)
	}

	return &Store{
		db:      db,
		logger:  logger,
		metrics: metrics,
		indexes: make(map[string]bool),
	}, nil
}

// OpenInMemory opens a volatile store, primarily for tests.
func OpenInMemory(logger *slog.Logger) (*Store, error) {
	return Open(Options{InMemory: true, Logger: logger})
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// update runs fn in a read-write transaction while holding the read half of
// the index lock, so rebuilds never interleave with writes.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

// view runs fn in a read-only transaction.
func (s *Store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	txn := s.db.NewTransaction(false)
	defer txn.Discard()
	return fn(txn)
}

// getDoc decodes the document with the given id into out. Returns ErrNotFound
// if no such document exists.
func getDoc(txn *badger.Txn, collection, id string, out any) error {
	item, err := txn.Get(docKey(collection, id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

// setDoc writes the document and refreshes its index entries.
func (s *Store) setDoc(txn *badger.Txn, collection, id string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, id, err)
	}
	if err := s.reindexDoc(txn, collection, id, data); err != nil {
		return err
	}
	return txn.Set(docKey(collection, id), data)
}

// deleteDoc removes the document and its index entries.
func (s *Store) deleteDoc(txn *badger.Txn, collection, id string) error {
	item, err := txn.Get(docKey(collection, id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return err
	}
	var old []byte
	if err := item.Value(func(val []byte) error {
		old = append([]byte(nil), val...)
		return nil
	}); err != nil {
		return err
	}
	if err := s.unindexDoc(txn, collection, id, old); err != nil {
		return err
	}
	return txn.Delete(docKey(collection, id))
}

// claimUnique reserves a uniqueness key for id, failing with ConflictError if
// another document already holds it.
func claimUnique(txn *badger.Txn, collection, key, id string) error {
	k := uniqueKey(collection, key)
	item, err := txn.Get(k)
	if err == nil {
		var holder string
		_ = item.Value(func(val []byte) error {
			holder = string(val)
			return nil
		})
		if holder != id {
			return &ConflictError{Collection: collection, Key: key}
		}
		return nil
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	return txn.Set(k, []byte(id))
}

func releaseUnique(txn *badger.Txn, collection, key string) error {
	err := txn.Delete(uniqueKey(collection, key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

// forEachDoc iterates all documents of a collection, invoking fn with the id
// and raw JSON value. fn may return errStopIteration to end the scan early.
func forEachDoc(txn *badger.Txn, collection string, fn func(id string, val []byte) error) error {
	prefix := docPrefix(collection)
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 64})
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		id := string(item.Key()[len(prefix):])
		err := item.Value(func(val []byte) error {
			return fn(id, val)
		})
		if errors.Is(err, errStopIteration) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

var errStopIteration = errors.New("stop iteration")
