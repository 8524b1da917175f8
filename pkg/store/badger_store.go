package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/mac-/configurine/pkg/log"
	"github.com/mac-/configurine/pkg/types"
)

// Validate that BadgerStore implements the Store interface
var _ Store = &BadgerStore{}

// BadgerStore implements the Store interface using an embedded BadgerDB.
type BadgerStore struct {
	path     string
	inMemory bool
	logger   log.Logger
	conn     *Connector[*badger.DB]
}

// NewBadgerStore creates a BadgerDB-backed store rooted at path. With inMemory set the
// database lives only in memory and path is ignored.
func NewBadgerStore(path string, inMemory bool, logger log.Logger) *BadgerStore {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	logger = logger.WithComponent("store").With(log.Str("driver", "badger"))

	s := &BadgerStore{path: path, inMemory: inMemory, logger: logger}
	s.conn = NewConnector(s.dial, func(db *badger.DB) error { return db.Close() }, logger)
	return s
}

func (s *BadgerStore) dial(ctx context.Context) (*badger.DB, error) {
	opts := badger.DefaultOptions(s.path)
	if s.inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = &badgerLogAdapter{logger: s.logger}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	s.logger.Info("Badger store opened", log.Str("path", s.path), log.Bool("in_memory", s.inMemory))
	return db, nil
}

// Open opens the database.
func (s *BadgerStore) Open(ctx context.Context) error {
	_, err := s.conn.Connect(ctx)
	return err
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	s.logger.Info("Closing badger store", log.Str("path", s.path))
	return s.conn.Shutdown()
}

// State reports the connection state.
func (s *BadgerStore) State() State { return s.conn.State() }

// Ping checks that the database is open and readable.
func (s *BadgerStore) Ping(ctx context.Context) error {
	db, err := s.conn.Connect(ctx)
	if err != nil {
		return err
	}
	return db.View(func(*badger.Txn) error { return nil })
}

// Create creates a new resource.
func (s *BadgerStore) Create(ctx context.Context, resourceType types.ResourceType, key string, resource interface{}) error {
	if err := checkKey(resourceType, key); err != nil {
		return err
	}
	data, err := json.Marshal(resource)
	if err != nil {
		return fmt.Errorf("failed to serialize resource: %w", err)
	}
	db, err := s.conn.Connect(ctx)
	if err != nil {
		return err
	}

	s.logger.Debug("Creating resource", log.Str("resource_type", string(resourceType)), log.Str("key", key))

	k := MakeKey(resourceType, key)
	err = db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(k)
		if err == nil {
			return fmt.Errorf("%s/%s: %w", resourceType, key, ErrAlreadyExists)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("failed to check existing resource: %w", err)
		}
		return txn.Set(k, data)
	})
	if errors.Is(err, badger.ErrConflict) {
		// A concurrent writer committed the same key first.
		return fmt.Errorf("%s/%s: %w", resourceType, key, ErrAlreadyExists)
	}
	return err
}

// Get retrieves a resource.
func (s *BadgerStore) Get(ctx context.Context, resourceType types.ResourceType, key string, resource interface{}) error {
	if err := checkKey(resourceType, key); err != nil {
		return err
	}
	db, err := s.conn.Connect(ctx)
	if err != nil {
		return err
	}

	return db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(MakeKey(resourceType, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%s/%s: %w", resourceType, key, ErrNotFound)
		} else if err != nil {
			return fmt.Errorf("failed to get resource: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, resource)
		})
	})
}

// List retrieves all resources of a type in key order.
func (s *BadgerStore) List(ctx context.Context, resourceType types.ResourceType, resource interface{}) error {
	if !resourceType.IsValid() {
		return fmt.Errorf("unknown resource type %q", resourceType)
	}
	db, err := s.conn.Connect(ctx)
	if err != nil {
		return err
	}

	var items [][]byte
	prefix := MakePrefix(resourceType)
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("failed to read resource: %w", err)
			}
			items = append(items, val)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug("Found resources", log.Str("resource_type", string(resourceType)), log.Int("count", len(items)))
	return decodeList(items, resource)
}

// Update updates an existing resource.
func (s *BadgerStore) Update(ctx context.Context, resourceType types.ResourceType, key string, resource interface{}) error {
	if err := checkKey(resourceType, key); err != nil {
		return err
	}
	data, err := json.Marshal(resource)
	if err != nil {
		return fmt.Errorf("failed to serialize resource: %w", err)
	}
	db, err := s.conn.Connect(ctx)
	if err != nil {
		return err
	}

	s.logger.Debug("Updating resource", log.Str("resource_type", string(resourceType)), log.Str("key", key))

	k := MakeKey(resourceType, key)
	return db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(k)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%s/%s: %w", resourceType, key, ErrNotFound)
		} else if err != nil {
			return fmt.Errorf("failed to check existing resource: %w", err)
		}
		return txn.Set(k, data)
	})
}

// Delete deletes a resource.
func (s *BadgerStore) Delete(ctx context.Context, resourceType types.ResourceType, key string) error {
	if err := checkKey(resourceType, key); err != nil {
		return err
	}
	db, err := s.conn.Connect(ctx)
	if err != nil {
		return err
	}

	s.logger.Debug("Deleting resource", log.Str("resource_type", string(resourceType)), log.Str("key", key))

	k := MakeKey(resourceType, key)
	return db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(k)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%s/%s: %w", resourceType, key, ErrNotFound)
		} else if err != nil {
			return fmt.Errorf("failed to check existing resource: %w", err)
		}
		return txn.Delete(k)
	})
}

// badgerLogAdapter adapts our logger to BadgerDB's logger interface.
type badgerLogAdapter struct {
	logger log.Logger
}

// Errorf implements badger.Logger.
func (l *badgerLogAdapter) Errorf(format string, args ...interface{}) {
	l.logger.Error("BadgerDB: " + fmt.Sprintf(format, args...))
}

// Warningf implements badger.Logger.
func (l *badgerLogAdapter) Warningf(format string, args ...interface{}) {
	l.logger.Warn("BadgerDB: " + fmt.Sprintf(format, args...))
}

// Infof implements badger.Logger.
func (l *badgerLogAdapter) Infof(format string, args ...interface{}) {
	l.logger.Debug("BadgerDB: " + fmt.Sprintf(format, args...))
}

// Debugf implements badger.Logger.
func (l *badgerLogAdapter) Debugf(format string, args ...interface{}) {
	l.logger.Debug("BadgerDB: " + fmt.Sprintf(format, args...))
}
