// Package badger implements journal.ObjectStore on BadgerDB.
//
// It plays the role tags on a volume group play for LVM-based SRs: a small,
// crash-safe namespace living next to the data. Writes are synchronous so an
// entry that Create reported survives a crash.
//
// Key Namespace:
//
//	Data Type   Prefix  Key Format   Value
//	==========================================
//	Objects     "j:"    j:<name>     payload (possibly empty)
package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/marmos91/srmeta/pkg/store"
	"github.com/marmos91/srmeta/pkg/store/journal"
)

// DefaultMaxNameLen is the device-mapper name limit a tag or logical volume
// name must respect on LVM.
const DefaultMaxNameLen = 127

const objectPrefix = "j:"

// Config configures a BadgerDB object store.
type Config struct {
	// DBPath is the directory holding the database files
	DBPath string `mapstructure:"db_path" validate:"required_without=InMemory"`

	// MaxNameLen is the object name ceiling.
	// Default: 127
	MaxNameLen int `mapstructure:"max_name_len" validate:"omitempty,gte=32"`

	// InMemory keeps the database in memory (tests).
	InMemory bool `mapstructure:"in_memory"`
}

// Store is a journal.ObjectStore backed by BadgerDB.
type Store struct {
	db         *badgerdb.DB
	path       string
	maxNameLen int
}

var _ journal.ObjectStore = (*Store)(nil)

// New opens the database described by cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badgerdb.Options
	if cfg.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badgerdb.DefaultOptions(cfg.DBPath).WithSyncWrites(true)
	}
	opts = opts.WithLoggingLevel(badgerdb.WARNING) // Reduce log noise
	opts = opts.WithCompression(options.None)      // Entries are tiny

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.DBPath, err)
	}

	maxNameLen := cfg.MaxNameLen
	if maxNameLen == 0 {
		maxNameLen = DefaultMaxNameLen
	}

	return &Store{db: db, path: cfg.DBPath, maxNameLen: maxNameLen}, nil
}

// Path returns the database directory, empty for in-memory stores.
func (s *Store) Path() string {
	return s.path
}

func objectKey(name string) []byte {
	return []byte(objectPrefix + name)
}

// List implements journal.ObjectStore. Only keys are iterated.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var names []string
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = objectKey(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			names = append(names, strings.TrimPrefix(key, objectPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, store.Wrap(err, store.ErrIO, "failed to list journal objects")
	}
	return names, nil
}

// Create implements journal.ObjectStore.
func (s *Store) Create(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(name) > s.maxNameLen {
		return store.NewError(store.ErrInvalidArgument, "object name %q longer than %d bytes", name, s.maxNameLen)
	}

	return s.update(name, "create", func(txn *badgerdb.Txn) error {
		_, err := txn.Get(objectKey(name))
		if err == nil {
			return store.NewError(store.ErrAlreadyExists, "object %s already exists", name)
		}
		if !errors.Is(err, badgerdb.ErrKeyNotFound) {
			return err
		}
		return txn.Set(objectKey(name), []byte{})
	})
}

// Remove implements journal.ObjectStore.
func (s *Store) Remove(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.update(name, "remove", func(txn *badgerdb.Txn) error {
		if err := s.mustExist(txn, name); err != nil {
			return err
		}
		return txn.Delete(objectKey(name))
	})
}

// WritePayload implements journal.ObjectStore.
func (s *Store) WritePayload(ctx context.Context, name string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.update(name, "write", func(txn *badgerdb.Txn) error {
		if err := s.mustExist(txn, name); err != nil {
			return err
		}
		return txn.Set(objectKey(name), append([]byte(nil), payload...))
	})
}

// ReadPayload implements journal.ObjectStore.
func (s *Store) ReadPayload(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var payload []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(objectKey(name))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return store.NewError(store.ErrNotFound, "object %s not found", name)
		}
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, mapError(err, name, "read")
	}
	return payload, nil
}

// MaxNameLen implements journal.ObjectStore.
func (s *Store) MaxNameLen() int {
	return s.maxNameLen
}

// Close implements journal.ObjectStore.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) mustExist(txn *badgerdb.Txn, name string) error {
	_, err := txn.Get(objectKey(name))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return store.NewError(store.ErrNotFound, "object %s not found", name)
	}
	return err
}

func (s *Store) update(name, op string, fn func(txn *badgerdb.Txn) error) error {
	if err := s.db.Update(fn); err != nil {
		return mapError(err, name, op)
	}
	return nil
}

// mapError passes store errors through and wraps everything else as I/O.
func mapError(err error, name, op string) error {
	var se *store.StoreError
	if errors.As(err, &se) {
		return se
	}
	return store.Wrap(err, store.ErrIO, "failed to %s journal object %s", op, name)
}
