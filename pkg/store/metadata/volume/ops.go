package volume

import (
	"context"
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/srmeta/internal/logger"
	"github.com/marmos91/srmeta/pkg/sector"
	"github.com/marmos91/srmeta/pkg/store"
	"github.com/marmos91/srmeta/pkg/store/metadata"
)

// spaceProbeLabel is the label of the throwaway record written by
// EnsureSpaceIsAvailableForVDIs.
const spaceProbeLabel = "dummy vdi for space check"

// ============================================================================
// Reads
// ============================================================================

// GetMetadata implements metadata.Store.
func (s *VolumeMetadataStore) GetMetadata(ctx context.Context) (sr metadata.SRInfo, vdis map[int64]metadata.VDIInfo, err error) {
	if err = ctx.Err(); err != nil {
		return metadata.SRInfo{}, nil, err
	}
	defer s.observe("GetMetadata", time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.parse(newFilter())
	if err != nil {
		return metadata.SRInfo{}, nil, err
	}
	return snap.sr, snap.vdis, nil
}

// GetVDI implements metadata.Store.
func (s *VolumeMetadataStore) GetVDI(ctx context.Context, vdiUUID string) (metadata.VDIInfo, error) {
	if err := ctx.Err(); err != nil {
		return metadata.VDIInfo{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.findVDI(vdiUUID)
}

// findVDI returns the live record carrying vdiUUID.
func (s *VolumeMetadataStore) findVDI(vdiUUID string) (metadata.VDIInfo, error) {
	if vdiUUID == "" {
		return metadata.VDIInfo{}, store.NewError(store.ErrInvalidArgument, "empty VDI uuid")
	}

	f := newFilter()
	f.vdiUUID = vdiUUID
	f.indexByUUID = true

	snap, err := s.parse(f)
	if err != nil {
		return metadata.VDIInfo{}, err
	}
	vdi, ok := snap.byUUID[vdiUUID]
	if !ok {
		return metadata.VDIInfo{}, store.NewError(store.ErrNotFound, "VDI %s not found in metadata", vdiUUID)
	}
	return vdi, nil
}

// FindMetadataVDI implements metadata.Store.
func (s *VolumeMetadataStore) FindMetadataVDI(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.parse(newFilter())
	if err != nil {
		return "", false, err
	}

	for _, off := range slices.Sorted(maps.Keys(snap.vdis)) {
		vdi := snap.vdis[off]
		if vdi.Type == metadata.VDITypeMetadata && !vdi.IsASnapshot {
			return vdi.UUID, true, nil
		}
	}
	return "", false, nil
}

// ============================================================================
// Initialization
// ============================================================================

// WriteMetadata implements metadata.Store.
//
// The body (SR slots after the first block and every VDI record) is written
// before the first block, so the header that makes the store non-empty is the
// last thing to reach the disk.
func (s *VolumeMetadataStore) WriteMetadata(ctx context.Context, sr metadata.SRInfo, vdis []metadata.VDIInfo) (err error) {
	if err = ctx.Err(); err != nil {
		return err
	}
	defer s.observe("WriteMetadata", time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, empty, err := s.readHeader()
	if err != nil {
		return err
	}
	if !empty {
		return store.NewError(store.ErrAlreadyExists, "metadata volume %s already carries metadata", s.vol.Name())
	}

	snap := &snapshot{vdis: make(map[int64]metadata.VDIInfo, len(vdis))}
	seen := make(map[string]struct{}, len(vdis))
	for i, vdi := range vdis {
		if vdi.UUID == "" {
			return store.NewError(store.ErrInvalidArgument, "VDI %d has an empty uuid", i)
		}
		if _, dup := seen[vdi.UUID]; dup {
			return store.NewError(store.ErrInvalidArgument, "VDI %s listed twice", vdi.UUID)
		}
		seen[vdi.UUID] = struct{}{}

		vdi.Offset = recordOffset(int64(i))
		snap.vdis[vdi.Offset] = vdi
	}

	length := recordOffset(int64(len(vdis)))
	_, upper := sector.BlockAlignedRange(s.blockSize, 0, length)
	p := pending{length: length, sr: sr}

	if upper > s.blockSize {
		body := region{lower: s.blockSize, upper: upper, snap: snap}
		if err = s.writeRegion(body, p, FistWriteRecords); err != nil {
			return err
		}
	}

	head := region{lower: headerOffset, upper: s.blockSize, snap: snap}
	if err = s.writeRegion(head, p, FistWriteHeader); err != nil {
		return err
	}

	logger.Debug("metadata: initialized SR %s with %d VDIs, used-length %d", sr.UUID, len(vdis), length)
	return nil
}

// ============================================================================
// Updates
// ============================================================================

// UpdateMetadata implements metadata.Store.
func (s *VolumeMetadataStore) UpdateMetadata(ctx context.Context, update metadata.Update) error {
	switch u := update.(type) {
	case metadata.SRUpdate:
		return s.UpdateSR(ctx, u)
	case *metadata.SRUpdate:
		if u != nil {
			return s.UpdateSR(ctx, *u)
		}
	case metadata.VDIUpdate:
		return s.UpdateVDI(ctx, u)
	case *metadata.VDIUpdate:
		if u != nil {
			return s.UpdateVDI(ctx, *u)
		}
	}
	return store.NewError(store.ErrInvalidArgument, "unsupported metadata update %T", update)
}

// UpdateSR implements metadata.Store.
//
// Only the slots of the changed fields are rewritten (plus whatever shares
// their blocks).
func (s *VolumeMetadataStore) UpdateSR(ctx context.Context, update metadata.SRUpdate) (err error) {
	if err = ctx.Err(); err != nil {
		return err
	}
	defer s.observe("UpdateSR", time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	hdr, empty, err := s.readHeader()
	if err != nil {
		return err
	}
	if empty {
		return store.NewError(store.ErrNotFound, "metadata volume %s carries no SR record", s.vol.Name())
	}

	var offset, length int64
	switch {
	case update.NameLabel != nil && update.NameDescription != nil:
		offset, length = srLabelOffset, 2*slotSize
	case update.NameLabel != nil:
		offset, length = srLabelOffset, slotSize
	case update.NameDescription != nil:
		offset, length = srDescriptionOffset, slotSize
	default:
		return nil
	}

	r, err := s.prepareRegion(offset, length)
	if err != nil {
		return err
	}

	sr := update.Apply(r.snap.sr)
	if err = s.writeRegion(r, pending{length: hdr.Length, sr: sr}, FistWriteRecords); err != nil {
		return err
	}

	logger.Debug("metadata: updated SR %s", sr.UUID)
	return nil
}

// UpdateVDI implements metadata.Store.
//
// An update touching only the label and description rewrites sub-slot A; one
// touching only scalar fields rewrites sub-slot B.
func (s *VolumeMetadataStore) UpdateVDI(ctx context.Context, update metadata.VDIUpdate) (err error) {
	if err = ctx.Err(); err != nil {
		return err
	}
	defer s.observe("UpdateVDI", time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	hdr, empty, err := s.readHeader()
	if err != nil {
		return err
	}
	if empty {
		return store.NewError(store.ErrNotFound, "VDI %s not found in metadata: store is empty", update.UUID)
	}

	vdi, err := s.findVDI(update.UUID)
	if err != nil {
		return err
	}

	touchesA := update.NameLabel != nil || update.NameDescription != nil
	touchesB := update.IsASnapshot != nil || update.SnapshotOf != nil || update.SnapshotTime != nil ||
		update.Type != nil || update.VDIType != nil || update.ReadOnly != nil ||
		update.Managed != nil || update.MetadataOfPool != nil

	offset, length := vdi.Offset, int64(vdiSize)
	switch {
	case touchesA && touchesB:
	case touchesA:
		length = slotSize
	case touchesB:
		offset, length = vdi.Offset+slotSize, slotSize
	default:
		return nil
	}

	r, err := s.prepareRegion(offset, length)
	if err != nil {
		return err
	}

	updated := update.Apply(vdi)
	p := pending{length: hdr.Length, sr: r.snap.sr, vdi: &updated}
	if err = s.writeRegion(r, p, FistWriteRecords); err != nil {
		return err
	}

	logger.Debug("metadata: updated VDI %s at offset %d", updated.UUID, updated.Offset)
	return nil
}

// ============================================================================
// Add / Delete
// ============================================================================

// AddVDI implements metadata.Store.
func (s *VolumeMetadataStore) AddVDI(ctx context.Context, vdi metadata.VDIInfo) (offset int64, err error) {
	if err = ctx.Err(); err != nil {
		return 0, err
	}
	defer s.observe("AddVDI", time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.addVDI(vdi)
}

func (s *VolumeMetadataStore) addVDI(vdi metadata.VDIInfo) (int64, error) {
	if vdi.UUID == "" {
		return 0, store.NewError(store.ErrInvalidArgument, "cannot add a VDI with an empty uuid")
	}

	hdr, empty, err := s.readHeader()
	if err != nil {
		return 0, err
	}
	if empty {
		return 0, store.NewError(store.ErrNotFound, "cannot add VDI %s: metadata volume %s carries no SR record",
			vdi.UUID, s.vol.Name())
	}

	if _, err := s.findVDI(vdi.UUID); err == nil {
		return 0, store.NewError(store.ErrAlreadyExists, "VDI %s already in metadata", vdi.UUID)
	} else if !errors.Is(err, store.ErrNotFound) {
		return 0, err
	}

	f := newFilter()
	f.firstDeleted = true
	holes, err := s.parse(f)
	if err != nil {
		return 0, err
	}

	vdi.Deleted = false

	// Reuse the first hole: a single region write.
	if hole, ok := holes.first(); ok {
		vdi.Offset = hole.Offset

		r, err := s.prepareRegion(vdi.Offset, vdiSize)
		if err != nil {
			return 0, err
		}
		p := pending{length: hdr.Length, sr: r.snap.sr, vdi: &vdi}
		if err := s.writeRegion(r, p, FistWriteRecords); err != nil {
			return 0, err
		}

		logger.Debug("metadata: added VDI %s in reused slot at offset %d", vdi.UUID, vdi.Offset)
		return vdi.Offset, nil
	}

	// Append: the record goes down first with the old used-length, then the
	// header grows to include it.
	vdi.Offset = hdr.Length
	length := hdr.Length + vdiSize

	rec, err := s.prepareRegion(vdi.Offset, vdiSize)
	if err != nil {
		return 0, err
	}
	head, err := s.headerRegion()
	if err != nil {
		return 0, err
	}

	p := pending{length: hdr.Length, sr: rec.snap.sr, vdi: &vdi}
	if err := s.writeRegion(rec, p, FistWriteRecords); err != nil {
		return 0, err
	}

	p = pending{length: length, sr: head.snap.sr, vdi: &vdi}
	if err := s.writeRegion(head, p, FistWriteHeader); err != nil {
		// The record lies past the used-length and is ignored by readers.
		logger.Warn("metadata: VDI %s written at offset %d but used-length not grown: %v",
			vdi.UUID, vdi.Offset, err)
		return 0, err
	}

	logger.Debug("metadata: appended VDI %s at offset %d, used-length %d", vdi.UUID, vdi.Offset, length)
	return vdi.Offset, nil
}

// DeleteVDIFromMetadata implements metadata.Store.
func (s *VolumeMetadataStore) DeleteVDIFromMetadata(ctx context.Context, vdiUUID string) (err error) {
	if err = ctx.Err(); err != nil {
		return err
	}
	defer s.observe("DeleteVDIFromMetadata", time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deleteVDI(vdiUUID)
}

func (s *VolumeMetadataStore) deleteVDI(vdiUUID string) error {
	hdr, empty, err := s.readHeader()
	if err != nil {
		return err
	}
	if empty {
		return store.NewError(store.ErrNotFound, "VDI %s not found in metadata: store is empty", vdiUUID)
	}

	vdi, err := s.findVDI(vdiUUID)
	if err != nil {
		return err
	}
	vdi.Deleted = true

	rec, err := s.prepareRegion(vdi.Offset, vdiSize)
	if err != nil {
		return err
	}

	tail := vdi.Offset+vdiSize == hdr.Length
	var head region
	if tail {
		if head, err = s.headerRegion(); err != nil {
			return err
		}
	}

	p := pending{length: hdr.Length, sr: rec.snap.sr, vdi: &vdi}
	if err := s.writeRegion(rec, p, FistWriteRecords); err != nil {
		return err
	}

	if !tail {
		logger.Debug("metadata: deleted VDI %s at offset %d", vdiUUID, vdi.Offset)
		return nil
	}

	// The record is already marked deleted, so a failure here only leaves a
	// hole at the tail.
	p = pending{length: vdi.Offset, sr: head.snap.sr, vdi: &vdi}
	if err := s.writeRegion(head, p, FistWriteHeader); err != nil {
		return err
	}

	logger.Debug("metadata: deleted tail VDI %s, used-length %d", vdiUUID, vdi.Offset)
	return nil
}

// ============================================================================
// Capacity
// ============================================================================

// EnsureSpaceIsAvailableForVDIs implements metadata.Store.
//
// The volume capacity must hold the current used-length plus count records
// minus the holes available for reuse. When it does, a throwaway record is
// added and deleted again to prove the volume accepts writes; the throwaway
// record is removed on every exit path.
func (s *VolumeMetadataStore) EnsureSpaceIsAvailableForVDIs(ctx context.Context, count int) (err error) {
	if err = ctx.Err(); err != nil {
		return err
	}
	defer s.observe("EnsureSpaceIsAvailableForVDIs", time.Now(), &err)

	if count < 0 {
		return store.NewError(store.ErrInvalidArgument, "negative VDI count %d", count)
	}
	if count == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	hdr, empty, err := s.readHeader()
	if err != nil {
		return err
	}
	if empty {
		return store.NewError(store.ErrNotFound, "metadata volume %s carries no SR record", s.vol.Name())
	}

	f := newFilter()
	f.includeDeleted = true
	snap, err := s.parse(f)
	if err != nil {
		return err
	}
	holes := 0
	for _, vdi := range snap.vdis {
		if vdi.Deleted {
			holes++
		}
	}

	capacity, err := s.vol.Capacity()
	if err != nil {
		return store.WrapIO(err, -1, "failed to query capacity of %s", s.vol.Name())
	}

	required := hdr.Length + int64(max(0, count-holes))*vdiSize
	if required > capacity {
		return store.NewError(store.ErrNoSpace,
			"metadata volume %s cannot hold %d more VDIs: need %d bytes, capacity %d",
			s.vol.Name(), count, required, capacity)
	}

	probe := metadata.VDIInfo{
		UUID:      uuid.NewString(),
		NameLabel: spaceProbeLabel,
	}
	if _, err = s.addVDI(probe); err != nil {
		if errors.Is(err, store.ErrNoSpace) {
			return err
		}
		return store.Wrap(err, store.ErrNoSpace, "space probe on %s failed", s.vol.Name())
	}
	defer func() {
		if derr := s.deleteVDI(probe.UUID); derr != nil {
			logger.Warn("metadata: failed to remove space probe VDI %s: %v", probe.UUID, derr)
			err = errors.Join(err, derr)
		}
	}()

	logger.Debug("metadata: space for %d VDIs available on %s (%d of %d bytes)",
		count, s.vol.Name(), required, capacity)
	return nil
}
