package metadata

import (
	"context"
)

// ============================================================================
// Store Interface
// ============================================================================

// Store is the record store for one SR's metadata and the metadata of all its
// VDIs.
//
// The store is laid out as a sequence of fixed-size slots on a backing block
// device or file: a header slot, the SR-info slots, then two slots per VDI.
// A used-length field in the header bounds the meaningful prefix; everything
// beyond it is undefined.
//
// Concurrency:
// The store provides no cross-process concurrency control. Every mutation of
// a given store must happen while the caller holds that SR's lock (see
// pkg/lock). Reads without the lock may observe a stale but never torn
// snapshot, since writes are whole blocks.
//
// Errors are *store.StoreError values; match them with errors.Is against the
// store.Err* codes.
type Store interface {
	// GetMetadata returns the SR record and all live VDI records indexed by
	// offset.
	//
	// A store that has never been written returns a zero SRInfo and an empty
	// map with a nil error.
	GetMetadata(ctx context.Context) (SRInfo, map[int64]VDIInfo, error)

	// WriteMetadata initializes an empty store with the SR record followed by
	// the given VDI records, in order, and sets used-length to the total bytes
	// written.
	//
	// Returns ErrAlreadyExists if the store already carries metadata.
	WriteMetadata(ctx context.Context, sr SRInfo, vdis []VDIInfo) error

	// UpdateMetadata routes the update to UpdateSR or UpdateVDI based on its
	// object type.
	UpdateMetadata(ctx context.Context, update Update) error

	// UpdateSR changes the SR name label and/or description.
	UpdateSR(ctx context.Context, update SRUpdate) error

	// UpdateVDI merges the provided fields into the VDI record identified by
	// update.UUID.
	//
	// Returns ErrNotFound if no live record carries that uuid.
	UpdateVDI(ctx context.Context, update VDIUpdate) error

	// FindMetadataVDI returns the uuid of the VDI with type "metadata" that is
	// not a snapshot. The bool is false when there is none.
	FindMetadataVDI(ctx context.Context) (string, bool, error)

	// GetVDI returns the live VDI record with the given uuid.
	//
	// Returns ErrNotFound if there is none.
	GetVDI(ctx context.Context, uuid string) (VDIInfo, error)

	// AddVDI stores a new VDI record and returns its offset.
	//
	// The first deleted slot (ascending offset) is reused; if none is
	// deleted the record is appended and used-length grows.
	AddVDI(ctx context.Context, vdi VDIInfo) (int64, error)

	// DeleteVDIFromMetadata soft-deletes the VDI record with the given uuid.
	//
	// If the record occupied the last slot, used-length shrinks to exclude
	// it. Interior deleted slots remain as reusable holes.
	//
	// Returns ErrNotFound if no live record carries that uuid.
	DeleteVDIFromMetadata(ctx context.Context, uuid string) error

	// EnsureSpaceIsAvailableForVDIs proves there is room for count more VDI
	// records.
	//
	// Returns ErrNoSpace if the backing volume is too small.
	EnsureSpaceIsAvailableForVDIs(ctx context.Context, count int) error

	// UsedLength returns the used-length recorded in the header, or 0 for a
	// store that has never been written.
	UsedLength(ctx context.Context) (int64, error)

	// Healthcheck verifies the backing volume is readable and, if written,
	// carries a valid header.
	Healthcheck(ctx context.Context) error

	// Close releases the backing volume.
	Close() error
}
