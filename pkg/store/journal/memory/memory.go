// Package memory implements an in-memory journal.ObjectStore.
//
// Nothing survives the process. Use it in tests and for dry runs.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/marmos91/srmeta/pkg/store"
	"github.com/marmos91/srmeta/pkg/store/journal"
)

// DefaultMaxNameLen matches the file name limit of common filesystems.
const DefaultMaxNameLen = 255

// Store is an in-memory journal.ObjectStore.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	objects    map[string][]byte
	maxNameLen int
	reads      int
}

var _ journal.ObjectStore = (*Store)(nil)

// New creates an empty store. maxNameLen 0 means DefaultMaxNameLen.
func New(maxNameLen int) *Store {
	if maxNameLen <= 0 {
		maxNameLen = DefaultMaxNameLen
	}
	return &Store{
		objects:    make(map[string][]byte),
		maxNameLen: maxNameLen,
	}
}

// List implements journal.ObjectStore. Names are returned sorted.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var names []string
	for name := range s.objects {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
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
	if len(name) > s.maxNameLen {
		return store.NewError(store.ErrInvalidArgument, "object name %q longer than %d bytes", name, s.maxNameLen)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.objects[name]; exists {
		return store.NewError(store.ErrAlreadyExists, "object %s already exists", name)
	}
	s.objects[name] = nil
	return nil
}

// Remove implements journal.ObjectStore.
func (s *Store) Remove(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.objects[name]; !exists {
		return store.NewError(store.ErrNotFound, "object %s not found", name)
	}
	delete(s.objects, name)
	return nil
}

// WritePayload implements journal.ObjectStore.
func (s *Store) WritePayload(ctx context.Context, name string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.objects[name]; !exists {
		return store.NewError(store.ErrNotFound, "object %s not found", name)
	}
	s.objects[name] = append([]byte(nil), payload...)
	return nil
}

// ReadPayload implements journal.ObjectStore.
func (s *Store) ReadPayload(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	payload, exists := s.objects[name]
	if !exists {
		return nil, store.NewError(store.ErrNotFound, "object %s not found", name)
	}
	s.reads++
	return append([]byte(nil), payload...), nil
}

// MaxNameLen implements journal.ObjectStore.
func (s *Store) MaxNameLen() int {
	return s.maxNameLen
}

// Close implements journal.ObjectStore.
func (s *Store) Close() error {
	return nil
}

// PayloadReads returns how many payloads have been read.
func (s *Store) PayloadReads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads
}
