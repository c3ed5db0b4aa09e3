// Package journal records in-progress multi-step operations so they survive a
// crash.
//
// An entry maps (type, id) to a value. A process that starts up and finds an
// entry for some id must treat the operation it describes as incomplete and
// drive it to completion or rollback before touching the id again. The
// existence of the entry is the durability signal; resume and rollback policy
// belong to the caller.
//
// Entries live in an ObjectStore, one object per entry (see encoding.go).
// Three stores are provided: fs (a directory of files), badger (a key-value
// database, standing in for tags on a volume group) and memory (tests).
package journal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/marmos91/srmeta/internal/fistpoint"
	"github.com/marmos91/srmeta/internal/logger"
	"github.com/marmos91/srmeta/pkg/metrics"
	"github.com/marmos91/srmeta/pkg/store"
)

// Fault points around the payload write of an OutOfLine entry.
const (
	FistCreateBeforePayload = "journal.create.before-payload"
	FistCreateAfterPayload  = "journal.create.after-payload"
)

// ObjectStore is a flat namespace of named objects with optional payloads.
//
// Implementations return *store.StoreError values: ErrAlreadyExists from
// Create, ErrNotFound from Remove, WritePayload and ReadPayload.
type ObjectStore interface {
	// List returns the names of all objects starting with prefix. It never
	// reads payloads.
	List(ctx context.Context, prefix string) ([]string, error)

	// Create durably creates an empty object.
	Create(ctx context.Context, name string) error

	// Remove durably removes an object and its payload.
	Remove(ctx context.Context, name string) error

	// WritePayload durably replaces the payload of an existing object.
	WritePayload(ctx context.Context, name string, payload []byte) error

	// ReadPayload returns the payload of an object.
	ReadPayload(ctx context.Context, name string) ([]byte, error)

	// MaxNameLen is the longest object name the store accepts.
	MaxNameLen() int

	// Close releases the store.
	Close() error
}

// Journal is the (type, id) -> value table.
//
// Thread Safety:
// Safe for concurrent use within a process. Across processes the caller's
// lock discipline applies, exactly as for the metadata store.
type Journal struct {
	objects ObjectStore
	metrics metrics.StoreMetrics

	mu sync.Mutex
}

// New creates a Journal over objects. m may be nil.
func New(objects ObjectStore, m metrics.StoreMetrics) *Journal {
	if m == nil {
		m = metrics.NoopStoreMetrics{}
	}
	return &Journal{objects: objects, metrics: m}
}

// Close releases the underlying object store.
func (j *Journal) Close() error {
	return j.objects.Close()
}

func (j *Journal) observe(operation string, start time.Time, err *error) {
	j.metrics.RecordOperation(operation, time.Since(start), *err)
}

// lookup finds the object holding (typ, id).
func (j *Journal) lookup(ctx context.Context, typ, id string) (string, entryName, bool, error) {
	names, err := j.objects.List(ctx, keyPrefix(typ, id))
	if err != nil {
		return "", entryName{}, false, err
	}
	for _, name := range names {
		if e, ok := parseName(name); ok && e.Type == typ && e.ID == id {
			return name, e, true, nil
		}
	}
	return "", entryName{}, false, nil
}

// value returns the value of a decoded entry, reading the payload of an
// OutOfLine entry.
func (j *Journal) value(ctx context.Context, name string, e entryName) (string, error) {
	if e.Variant == Inline {
		return e.Value, nil
	}
	payload, err := j.objects.ReadPayload(ctx, name)
	if err != nil {
		return "", err
	}
	return decodePayload(name, payload)
}

// Create records value under (typ, id).
//
// Returns ErrAlreadyExists if (typ, id) already has a value. If writing the
// payload of an OutOfLine entry fails, the partially created object is removed
// before the error is returned.
func (j *Journal) Create(ctx context.Context, typ, id, value string) (err error) {
	if err = ctx.Err(); err != nil {
		return err
	}
	defer j.observe("JournalCreate", time.Now(), &err)

	if err = validateKeys(typ, id); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	_, _, exists, err := j.lookup(ctx, typ, id)
	if err != nil {
		return err
	}
	if exists {
		return store.NewError(store.ErrAlreadyExists, "journal entry %s/%s already exists", typ, id)
	}

	name, variant := encodeName(typ, id, value, j.objects.MaxNameLen())
	if len(name) > j.objects.MaxNameLen() {
		return store.NewError(store.ErrInvalidArgument,
			"journal type and id too long: %d bytes, limit %d", len(name), j.objects.MaxNameLen())
	}

	if err = j.objects.Create(ctx, name); err != nil {
		return err
	}

	if variant == OutOfLine {
		if err = j.writePayload(ctx, name, value); err != nil {
			j.discard(ctx, name)
			return err
		}
	}

	logger.Debug("journal: created %s/%s (%s)", typ, id, variant)
	return nil
}

func (j *Journal) writePayload(ctx context.Context, name, value string) error {
	if err := fistpoint.Activate(FistCreateBeforePayload); err != nil {
		return store.Wrap(err, store.ErrIO, "failed to write journal payload %s", name)
	}
	if err := j.objects.WritePayload(ctx, name, encodePayload(value)); err != nil {
		return err
	}
	if err := fistpoint.Activate(FistCreateAfterPayload); err != nil {
		return store.Wrap(err, store.ErrIO, "failed to write journal payload %s", name)
	}
	return nil
}

// discard removes a partially created object, best effort.
func (j *Journal) discard(ctx context.Context, name string) {
	if err := j.objects.Remove(context.WithoutCancel(ctx), name); err != nil {
		logger.Warn("journal: failed to clean up partial entry %s: %v", name, err)
		return
	}
	logger.Debug("journal: removed partial entry %s", name)
}

// Remove deletes the entry for (typ, id).
//
// Returns ErrNotFound if there is none.
func (j *Journal) Remove(ctx context.Context, typ, id string) (err error) {
	if err = ctx.Err(); err != nil {
		return err
	}
	defer j.observe("JournalRemove", time.Now(), &err)

	if err = validateKeys(typ, id); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	name, _, exists, err := j.lookup(ctx, typ, id)
	if err != nil {
		return err
	}
	if !exists {
		return store.NewError(store.ErrNotFound, "journal entry %s/%s not found", typ, id)
	}

	if err = j.objects.Remove(ctx, name); err != nil {
		return err
	}

	logger.Debug("journal: removed %s/%s", typ, id)
	return nil
}

// Get returns the value of (typ, id). The bool is false when there is no
// entry.
func (j *Journal) Get(ctx context.Context, typ, id string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if err := validateKeys(typ, id); err != nil {
		return "", false, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	name, e, exists, err := j.lookup(ctx, typ, id)
	if err != nil || !exists {
		return "", false, err
	}

	v, err := j.value(ctx, name, e)
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// GetAll returns every id of the given type with its value.
//
// An OutOfLine entry whose payload is torn (a crash between creating the
// object and writing its payload) is logged and left out; Get on its id
// still reports ErrCorrupt, and Remove deletes it.
func (j *Journal) GetAll(ctx context.Context, typ string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateKey("type", typ); err != nil {
		return nil, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	names, err := j.objects.List(ctx, typePrefix(typ))
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(names))
	for _, name := range names {
		e, ok := parseName(name)
		if !ok || e.Type != typ {
			continue
		}
		v, err := j.value(ctx, name, e)
		if errors.Is(err, store.ErrCorrupt) {
			logger.Warn("journal: skipping %s: %v", name, err)
			continue
		}
		if err != nil {
			return nil, err
		}
		out[e.ID] = v
	}
	return out, nil
}

// HasJournals reports whether any entry of any type exists for id.
//
// Only object names are scanned; payloads are never opened.
func (j *Journal) HasJournals(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := validateKey("id", id); err != nil {
		return false, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	names, err := j.objects.List(ctx, namePrefix+separator)
	if err != nil {
		return false, err
	}
	for _, name := range names {
		if e, ok := parseName(name); ok && e.ID == id {
			return true, nil
		}
	}
	return false, nil
}
