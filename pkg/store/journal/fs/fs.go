// Package fs implements journal.ObjectStore as a directory of files.
//
// Each object is one regular file named after the object; its payload is the
// file content. Creation, payload writes and removal are fsynced together with
// the directory, so an entry that Create reported is on disk.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/marmos91/srmeta/internal/logger"
	"github.com/marmos91/srmeta/pkg/store"
	"github.com/marmos91/srmeta/pkg/store/journal"
)

// MaxNameLen is the file name limit of ext4, xfs and most other filesystems.
const MaxNameLen = 255

// Config configures a filesystem object store.
type Config struct {
	// Path is the directory holding the journal files
	Path string `mapstructure:"path" validate:"required"`
}

// Store is a journal.ObjectStore backed by a directory.
type Store struct {
	dir string
}

var _ journal.ObjectStore = (*Store)(nil)

// New opens (creating if needed) the journal directory.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("journal directory path is required")
	}
	if err := os.MkdirAll(cfg.Path, 0700); err != nil {
		return nil, fmt.Errorf("failed to create journal directory %s: %w", cfg.Path, err)
	}
	return &Store{dir: cfg.Path}, nil
}

// Dir returns the journal directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(name string) (string, error) {
	if name == "" || strings.ContainsRune(name, os.PathSeparator) || name == "." || name == ".." {
		return "", store.NewError(store.ErrInvalidArgument, "invalid object name %q", name)
	}
	if len(name) > MaxNameLen {
		return "", store.NewError(store.ErrInvalidArgument, "object name %q longer than %d bytes", name, MaxNameLen)
	}
	return filepath.Join(s.dir, name), nil
}

// syncDir makes directory entry changes durable.
func (s *Store) syncDir() error {
	d, err := os.Open(s.dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

func mapError(err error, name, op string) error {
	switch {
	case errors.Is(err, fs.ErrExist):
		return store.NewError(store.ErrAlreadyExists, "object %s already exists", name)
	case errors.Is(err, fs.ErrNotExist):
		return store.NewError(store.ErrNotFound, "object %s not found", name)
	default:
		return store.Wrap(err, store.ErrIO, "failed to %s journal object %s", op, name)
	}
}

// List implements journal.ObjectStore.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, store.Wrap(err, store.ErrIO, "failed to list journal directory %s", s.dir)
	}

	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if strings.HasPrefix(e.Name(), prefix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Create implements journal.ObjectStore.
func (s *Store) Create(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(name)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return mapError(err, name, "create")
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return mapError(err, name, "sync")
	}
	if err := f.Close(); err != nil {
		return mapError(err, name, "close")
	}
	if err := s.syncDir(); err != nil {
		return mapError(err, name, "sync directory of")
	}

	logger.Debug("journal/fs: created %s", p)
	return nil
}

// Remove implements journal.ObjectStore.
func (s *Store) Remove(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(name)
	if err != nil {
		return err
	}

	if err := os.Remove(p); err != nil {
		return mapError(err, name, "remove")
	}
	if err := s.syncDir(); err != nil {
		return mapError(err, name, "sync directory of")
	}

	logger.Debug("journal/fs: removed %s", p)
	return nil
}

// WritePayload implements journal.ObjectStore.
func (s *Store) WritePayload(ctx context.Context, name string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(name)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(p, os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return mapError(err, name, "open")
	}
	if _, err := f.Write(payload); err != nil {
		_ = f.Close()
		return mapError(err, name, "write")
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return mapError(err, name, "sync")
	}
	if err := f.Close(); err != nil {
		return mapError(err, name, "close")
	}
	return nil
}

// ReadPayload implements journal.ObjectStore.
func (s *Store) ReadPayload(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return nil, mapError(err, name, "read")
	}
	return data, nil
}

// MaxNameLen implements journal.ObjectStore.
func (s *Store) MaxNameLen() int {
	return MaxNameLen
}

// Close implements journal.ObjectStore.
func (s *Store) Close() error {
	return nil
}
