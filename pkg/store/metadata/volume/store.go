// Package volume implements metadata.Store on a raw backing volume.
//
// VolumeMetadataStore keeps the SR record and every VDI record of one SR in a
// sequence of fixed-size slots on a small logical volume, block device or
// plain file (see layout.go for the format). Records are addressed by byte
// offset; deleted records are soft-deleted in place and their slots reused.
//
// Every write covers whole blocks of the configured block size. A write to one
// record therefore regenerates every other record sharing one of its blocks,
// which keeps neighbouring records consistent with the in-memory view used to
// produce the write.
package volume

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/marmos91/srmeta/internal/fistpoint"
	"github.com/marmos91/srmeta/internal/logger"
	"github.com/marmos91/srmeta/pkg/backing"
	"github.com/marmos91/srmeta/pkg/metrics"
	"github.com/marmos91/srmeta/pkg/sector"
	"github.com/marmos91/srmeta/pkg/store"
	"github.com/marmos91/srmeta/pkg/store/metadata"
)

// Fault points, one per durable write step.
const (
	FistWriteRecords = "metadata.write-records"
	FistWriteHeader  = "metadata.write-header"
)

// DefaultBlockSize is the write granularity used when Config.BlockSize is 0.
const DefaultBlockSize = slotSize

// Config configures a VolumeMetadataStore.
type Config struct {
	// BlockSize is the write granularity in bytes. Every write is aligned to
	// and a multiple of BlockSize. Must be a multiple of 512.
	// Default: 512. Use 4096 for 4K-native devices.
	BlockSize int64 `mapstructure:"block_size" validate:"omitempty,gte=512"`
}

// VolumeMetadataStore implements metadata.Store over a backing.Volume.
//
// Thread Safety:
// All operations are serialized by a mutex so the store may be shared by
// goroutines of one process. Cross-process exclusion is the caller's job: hold
// the SR lock (pkg/lock) around every mutation.
type VolumeMetadataStore struct {
	vol       backing.Volume
	blockSize int64
	metrics   metrics.StoreMetrics

	mu sync.Mutex
}

var _ metadata.Store = (*VolumeMetadataStore)(nil)

// New creates a store on vol.
//
// The volume is not touched: a never-written volume is a valid, empty store
// that WriteMetadata initializes.
//
// Parameters:
//   - ctx: Context for cancellation
//   - vol: Backing volume (block device, file, or memory)
//   - cfg: Store configuration
//   - m: Optional metrics, nil for none
//
// Returns:
//   - *VolumeMetadataStore: Store ready for use
//   - error: If the configuration is invalid or ctx is cancelled
func New(ctx context.Context, vol backing.Volume, cfg Config, m metrics.StoreMetrics) (*VolumeMetadataStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	blockSize := cfg.BlockSize
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}
	if blockSize%slotSize != 0 || blockSize <= 0 {
		return nil, store.NewError(store.ErrInvalidArgument,
			"block size %d is not a positive multiple of %d", blockSize, slotSize)
	}

	if m == nil {
		m = metrics.NoopStoreMetrics{}
	}

	return &VolumeMetadataStore{
		vol:       vol,
		blockSize: blockSize,
		metrics:   m,
	}, nil
}

// Close releases the backing volume.
func (s *VolumeMetadataStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.vol.Close(); err != nil {
		return fmt.Errorf("failed to close metadata volume %s: %w", s.vol.Name(), err)
	}
	return nil
}

// BlockSize returns the write granularity.
func (s *VolumeMetadataStore) BlockSize() int64 {
	return s.blockSize
}

// observe records an operation's duration and outcome. It is deferred with a
// pointer to the operation's named error result.
func (s *VolumeMetadataStore) observe(operation string, start time.Time, err *error) {
	s.metrics.RecordOperation(operation, time.Since(start), *err)
}

// ============================================================================
// Low-level I/O
// ============================================================================

// readAt reads exactly len(p) bytes at off.
//
// A volume shorter than the range is reported as corrupt, since callers only
// read below the used-length recorded in the header.
func (s *VolumeMetadataStore) readAt(p []byte, off int64) error {
	start := time.Now()
	n, err := s.vol.ReadAt(p, off)
	if err == io.EOF && n == len(p) {
		err = nil
	}
	s.metrics.RecordStorageOperation("read", n, time.Since(start), err)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		return &store.StoreError{
			Code:    store.ErrCorrupt,
			Message: fmt.Sprintf("metadata volume %s truncated: wanted %d bytes, got %d", s.vol.Name(), len(p), n),
			Offset:  off,
		}
	default:
		return store.WrapIO(err, off, "failed to read metadata volume %s", s.vol.Name())
	}
}

// writeAt durably writes a block-aligned buffer at off.
func (s *VolumeMetadataStore) writeAt(p []byte, off int64, point string) error {
	if off%s.blockSize != 0 || int64(len(p))%s.blockSize != 0 {
		return store.NewError(store.ErrInvalidArgument,
			"unaligned metadata write of %d bytes at %d (block size %d)", len(p), off, s.blockSize)
	}

	if err := fistpoint.Activate(point); err != nil {
		return store.WrapIO(err, off, "failed to write metadata volume %s", s.vol.Name())
	}

	start := time.Now()
	n, err := s.vol.WriteAt(p, off)
	if err == nil {
		err = s.vol.Sync()
	}
	s.metrics.RecordStorageOperation("write", n, time.Since(start), err)

	if err != nil {
		if backing.IsNoSpace(err) {
			return &store.StoreError{
				Code:    store.ErrNoSpace,
				Message: fmt.Sprintf("metadata volume %s is full", s.vol.Name()),
				Offset:  off,
				Err:     err,
			}
		}
		return store.WrapIO(err, off, "failed to write metadata volume %s", s.vol.Name())
	}

	logger.Debug("metadata: wrote %d bytes at offset %d of %s", len(p), off, s.vol.Name())
	return nil
}

// readHeader reads and decodes the header slot.
//
// empty is true for a volume that has never been written (too short or only
// padding in the header slot).
func (s *VolumeMetadataStore) readHeader() (hdr sector.Header, empty bool, err error) {
	buf := make([]byte, slotSize)

	start := time.Now()
	n, rerr := s.vol.ReadAt(buf, headerOffset)
	if rerr == io.EOF && n == len(buf) {
		rerr = nil
	}
	s.metrics.RecordStorageOperation("read", n, time.Since(start), rerr)

	if rerr != nil && !errors.Is(rerr, io.EOF) {
		return sector.Header{}, false, store.WrapIO(rerr, headerOffset,
			"failed to read metadata header of %s", s.vol.Name())
	}
	if isBlank(buf[:n]) {
		return sector.Header{}, true, nil
	}
	if n < len(buf) {
		return sector.Header{}, false, corruptAt(headerOffset, "truncated metadata header", nil)
	}

	hdr, err = sector.UnpackHeader(buf)
	if err != nil {
		return sector.Header{}, false, err
	}
	if hdr.Major != sector.MajorVersion {
		return sector.Header{}, false, store.NewError(store.ErrCorrupt,
			"unsupported metadata major version %d (expected %d)", hdr.Major, sector.MajorVersion)
	}
	if hdr.Length < vdiRegionOffset || (hdr.Length-vdiRegionOffset)%vdiSize != 0 {
		return sector.Header{}, false, store.NewError(store.ErrCorrupt,
			"metadata header has invalid used-length %d", hdr.Length)
	}

	s.metrics.SetUsedLength(hdr.Length)
	return hdr, false, nil
}

// ============================================================================
// Health
// ============================================================================

// UsedLength implements metadata.Store.
func (s *VolumeMetadataStore) UsedLength(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	hdr, empty, err := s.readHeader()
	if err != nil || empty {
		return 0, err
	}
	return hdr.Length, nil
}

// Healthcheck implements metadata.Store.
func (s *VolumeMetadataStore) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.vol.Capacity(); err != nil {
		return fmt.Errorf("metadata volume %s capacity unavailable: %w", s.vol.Name(), err)
	}
	_, _, err := s.readHeader()
	return err
}
