// Package lock provides named, reference-counted, file-based mutual exclusion.
//
// A lock is identified by (name, namespace) and backed by the file
// <base>/<namespace>/<name>, locked with flock(2). Exactly one *Lock exists per
// identity in a Registry; it counts acquisitions so that nested Acquire calls
// in one process take the OS lock only once:
//
//	l, err := lock.New("sr", srUUID)
//	if err != nil { ... }
//	if err := l.Acquire(); err != nil { ... }
//	defer l.Release()
//
// Locks serialize processes on one host. Hosts sharing storage need
// coordination above this package.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/marmos91/srmeta/internal/logger"
)

// ErrNotHeld is returned by Release when the lock is not held.
var ErrNotHeld = errors.New("lock not held")

// Lock is a reentrant handle on one lock file.
//
// Thread Safety: Safe for concurrent use. The count is per handle, not per
// goroutine: any goroutine may release an acquisition made by another.
type Lock struct {
	name      string
	namespace string
	path      string
	registry  *Registry

	// acquiring serializes OS-level acquisition attempts on this handle.
	acquiring sync.Mutex

	// file keeps its descriptor open between failed attempts.
	file *flock.Flock

	mu    sync.Mutex
	count int
}

// Name returns the lock name.
func (l *Lock) Name() string {
	return l.name
}

// Namespace returns the lock namespace (".nil" for the empty namespace).
func (l *Lock) Namespace() string {
	return l.namespace
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Held reports whether this handle owns the OS lock.
func (l *Lock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count > 0
}

// reenter bumps the count if the lock is already held.
func (l *Lock) reenter() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.count > 0 {
		l.count++
		return true
	}
	return false
}

func (l *Lock) acquired() {
	l.mu.Lock()
	l.count = 1
	l.mu.Unlock()

	l.writeHolder()
	logger.Debug("lock: acquired %s/%s", l.namespace, l.name)
}

func (l *Lock) prepare() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory for %s: %w", l.path, err)
	}
	return nil
}

// Acquire takes the lock, blocking until it is available.
//
// If another process holds it, the holder's PID is logged before blocking.
func (l *Lock) Acquire() error {
	l.acquiring.Lock()
	defer l.acquiring.Unlock()

	if l.reenter() {
		return nil
	}
	if err := l.prepare(); err != nil {
		return err
	}

	start := time.Now()
	ok, err := l.file.TryLock()
	if err != nil {
		l.registry.lockMetrics().RecordAcquire(l.namespace, false, time.Since(start), false)
		return fmt.Errorf("failed to lock %s: %w", l.path, err)
	}
	if !ok {
		logger.Info("lock: %s/%s is held by pid %s, waiting", l.namespace, l.name, l.holder())
		if err := l.file.Lock(); err != nil {
			l.registry.lockMetrics().RecordAcquire(l.namespace, true, time.Since(start), false)
			return fmt.Errorf("failed to lock %s: %w", l.path, err)
		}
	}

	l.registry.lockMetrics().RecordAcquire(l.namespace, !ok, time.Since(start), true)
	l.acquired()
	return nil
}

// AcquireNoblock takes the lock if it is free or already held by this
// handle, without blocking. It reports whether the lock is now held.
//
// A concurrent Acquire waiting on the same handle counts as contention.
func (l *Lock) AcquireNoblock() (bool, error) {
	if l.reenter() {
		return true, nil
	}
	if !l.acquiring.TryLock() {
		return false, nil
	}
	defer l.acquiring.Unlock()

	if l.reenter() {
		return true, nil
	}
	if err := l.prepare(); err != nil {
		return false, err
	}

	start := time.Now()
	ok, err := l.file.TryLock()
	l.registry.lockMetrics().RecordAcquire(l.namespace, !ok, time.Since(start), ok && err == nil)
	if err != nil {
		return false, fmt.Errorf("failed to lock %s: %w", l.path, err)
	}
	if !ok {
		return false, nil
	}

	l.acquired()
	return true, nil
}

// AcquireContext takes the lock, polling every retry until it is available
// or ctx is done. It reports whether the lock is now held; on cancellation it
// returns false and the context error.
func (l *Lock) AcquireContext(ctx context.Context, retry time.Duration) (bool, error) {
	if l.reenter() {
		return true, nil
	}
	if err := l.lockAcquiring(ctx, retry); err != nil {
		return false, err
	}
	defer l.acquiring.Unlock()

	if l.reenter() {
		return true, nil
	}
	if err := l.prepare(); err != nil {
		return false, err
	}

	start := time.Now()
	ok, err := l.file.TryLock()
	contended := err == nil && !ok
	if contended {
		logger.Info("lock: %s/%s is held by pid %s, waiting", l.namespace, l.name, l.holder())
		ok, err = l.file.TryLockContext(ctx, retry)
	}
	l.registry.lockMetrics().RecordAcquire(l.namespace, contended, time.Since(start), ok && err == nil)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	l.acquired()
	return true, nil
}

// lockAcquiring takes the acquiring mutex, polling every retry so that a
// blocked Acquire on the same handle cannot outlast ctx.
func (l *Lock) lockAcquiring(ctx context.Context, retry time.Duration) error {
	if l.acquiring.TryLock() {
		return nil
	}
	ticker := time.NewTicker(retry)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if l.acquiring.TryLock() {
				return nil
			}
		}
	}
}

// Release drops one acquisition. The OS lock is released with the last one.
//
// Returns ErrNotHeld if the lock is not held.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count == 0 {
		return fmt.Errorf("release %s/%s: %w", l.namespace, l.name, ErrNotHeld)
	}
	l.count--
	if l.count > 0 {
		return nil
	}

	if err := l.file.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock %s: %w", l.path, err)
	}
	l.registry.lockMetrics().RecordRelease(l.namespace)
	logger.Debug("lock: released %s/%s", l.namespace, l.name)
	return nil
}

// writeHolder records our PID in the lock file, best effort.
func (l *Lock) writeHolder() {
	pid := strconv.Itoa(os.Getpid()) + "\n"
	if err := os.WriteFile(l.path, []byte(pid), 0644); err != nil {
		logger.Warn("lock: failed to record holder of %s: %v", l.path, err)
	}
}

// holder returns the PID recorded in the lock file, or "unknown".
func (l *Lock) holder() string {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return "unknown"
	}
	pid := strings.TrimSpace(string(data))
	if pid == "" {
		return "unknown"
	}
	return pid
}

// Holder returns the PID recorded by the last process that acquired the lock,
// or 0 if none is recorded.
func (l *Lock) Holder() int {
	pid, err := strconv.Atoi(l.holder())
	if err != nil {
		return 0
	}
	return pid
}
