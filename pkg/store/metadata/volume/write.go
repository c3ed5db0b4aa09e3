package volume

import (
	"github.com/marmos91/srmeta/pkg/sector"
	"github.com/marmos91/srmeta/pkg/store/metadata"
)

// pending is the change a write applies on top of a snapshot.
type pending struct {
	// length is the used-length written into the header slot, if the range
	// covers it.
	length int64

	// sr is the SR record written into the SR slots.
	sr metadata.SRInfo

	// vdi replaces the record at vdi.Offset; nil for none.
	vdi *metadata.VDIInfo
}

// metadataToWrite regenerates every slot in the block-aligned range
// [lower, upper).
//
// Slots belonging to records other than the pending one are re-serialized
// from snap, so a write to one record also rewrites each neighbour sharing a
// block with it, on either side of the SR/VDI boundary. Slots of unknown
// records are blank.
func (s *VolumeMetadataStore) metadataToWrite(snap *snapshot, lower, upper int64, p pending) ([]byte, error) {
	var (
		sr  [][]byte
		err error
	)

	out := make([]byte, 0, upper-lower)
	for off := lower; off < upper; off += slotSize {
		var slot []byte

		switch {
		case off == headerOffset:
			slot = sector.BuildHeader(p.length, sector.MajorVersion, sector.MinorVersion)

		case off < vdiRegionOffset:
			if sr == nil {
				if sr, err = srSlots(p.sr); err != nil {
					return nil, err
				}
			}
			slot = sr[off/slotSize-1]

		default:
			rel := (off - vdiRegionOffset) % vdiSize
			rec := off - rel
			which := subSlotA
			if rel != 0 {
				which = subSlotB
			}

			vdi, ok := snap.vdis[rec]
			if p.vdi != nil && p.vdi.Offset == rec {
				vdi, ok = *p.vdi, true
			}
			if !ok {
				slot = sector.Blank()
				break
			}
			if slot, err = vdiRecordSlots(vdi, which); err != nil {
				return nil, err
			}
		}

		out = append(out, slot...)
	}
	return out, nil
}

// region is one block-aligned write, prepared before any byte hits the disk.
type region struct {
	lower, upper int64
	snap         *snapshot
}

// prepareRegion widens [offset, offset+length) to whole blocks and loads every
// record, deleted or not, that the widened range covers.
func (s *VolumeMetadataStore) prepareRegion(offset, length int64) (region, error) {
	lower, upper := sector.BlockAlignedRange(s.blockSize, offset, length)

	f := newFilter()
	f.includeDeleted = true
	f.from = lower
	f.upper = upper

	snap, err := s.parse(f)
	if err != nil {
		return region{}, err
	}
	return region{lower: lower, upper: upper, snap: snap}, nil
}

// writeRegion serializes and durably writes a prepared region.
func (s *VolumeMetadataStore) writeRegion(r region, p pending, point string) error {
	buf, err := s.metadataToWrite(r.snap, r.lower, r.upper, p)
	if err != nil {
		return err
	}
	return s.writeAt(buf, r.lower, point)
}

// headerRegion is the region holding the header slot.
func (s *VolumeMetadataStore) headerRegion() (region, error) {
	return s.prepareRegion(headerOffset, slotSize)
}
