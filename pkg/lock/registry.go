package lock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"github.com/marmos91/srmeta/internal/logger"
	"github.com/marmos91/srmeta/pkg/metrics"
)

// DefaultBaseDir is where lock files live unless configured otherwise.
const DefaultBaseDir = "/var/lock/sm"

// NilNamespace is the directory used for the empty namespace.
const NilNamespace = ".nil"

// Default is the process-wide registry rooted at DefaultBaseDir.
var Default = NewRegistry(DefaultBaseDir, nil)

type identity struct {
	namespace string
	name      string
}

// Registry hands out one *Lock per (name, namespace).
type Registry struct {
	mu      sync.RWMutex
	baseDir string
	metrics metrics.LockMetrics
	locks   map[identity]*Lock
}

// NewRegistry creates a registry rooted at baseDir. m may be nil.
func NewRegistry(baseDir string, m metrics.LockMetrics) *Registry {
	if m == nil {
		m = metrics.NoopLockMetrics{}
	}
	return &Registry{
		baseDir: baseDir,
		metrics: m,
		locks:   make(map[identity]*Lock),
	}
}

// Configure changes the base directory and metrics of r. Handles already
// handed out keep their paths.
func (r *Registry) Configure(baseDir string, m metrics.LockMetrics) {
	if m == nil {
		m = metrics.NoopLockMetrics{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if baseDir != "" {
		r.baseDir = baseDir
	}
	r.metrics = m
}

func (r *Registry) lockMetrics() metrics.LockMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metrics
}

// BaseDir returns the registry root.
func (r *Registry) BaseDir() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.baseDir
}

func validComponent(what, s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsRune(s, '/') {
		return fmt.Errorf("invalid lock %s %q", what, s)
	}
	return nil
}

func normalizeNamespace(ns string) string {
	if ns == "" {
		return NilNamespace
	}
	return ns
}

// Get returns the handle for (name, ns), creating it on first use.
func (r *Registry) Get(name, ns string) (*Lock, error) {
	ns = normalizeNamespace(ns)
	if err := validComponent("name", name); err != nil {
		return nil, err
	}
	if err := validComponent("namespace", ns); err != nil {
		return nil, err
	}

	id := identity{namespace: ns, name: name}

	r.mu.RLock()
	l, ok := r.locks[id]
	r.mu.RUnlock()
	if ok {
		return l, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := r.locks[id]; ok {
		return l, nil
	}

	path := filepath.Join(r.baseDir, ns, name)
	l = &Lock{
		name:      name,
		namespace: ns,
		path:      path,
		registry:  r,
		file:      flock.New(path),
	}
	r.locks[id] = l
	return l, nil
}

// Cleanup removes the lock file of (name, ns) and forgets its handle,
// whether or not it is held. Use it for stale locks after a crash.
func (r *Registry) Cleanup(name, ns string) error {
	ns = normalizeNamespace(ns)
	if err := validComponent("name", name); err != nil {
		return err
	}
	if err := validComponent("namespace", ns); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.locks, identity{namespace: ns, name: name})
	path := filepath.Join(r.baseDir, ns, name)
	r.mu.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove lock %s: %w", path, err)
	}
	logger.Debug("lock: cleaned up %s", path)
	return nil
}

// CleanupAll removes every lock file of ns and forgets their handles.
func (r *Registry) CleanupAll(ns string) error {
	ns = normalizeNamespace(ns)
	if err := validComponent("namespace", ns); err != nil {
		return err
	}

	r.mu.Lock()
	for id := range r.locks {
		if id.namespace == ns {
			delete(r.locks, id)
		}
	}
	dir := filepath.Join(r.baseDir, ns)
	r.mu.Unlock()

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove lock namespace %s: %w", dir, err)
	}
	logger.Debug("lock: cleaned up namespace %s", dir)
	return nil
}

// New returns the Default registry's handle for (name, ns).
func New(name, ns string) (*Lock, error) {
	return Default.Get(name, ns)
}

// Cleanup removes a lock from the Default registry.
func Cleanup(name, ns string) error {
	return Default.Cleanup(name, ns)
}

// CleanupAll removes a namespace from the Default registry.
func CleanupAll(ns string) error {
	return Default.CleanupAll(ns)
}
