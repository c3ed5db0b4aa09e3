package volume

import (
	"bufio"
	"errors"
	"io"
	"time"

	"github.com/marmos91/srmeta/pkg/store"
	"github.com/marmos91/srmeta/pkg/store/metadata"
)

// scanBufferSize is the read-ahead used while streaming VDI records.
const scanBufferSize = 64 << 10

// parseFilter selects which VDI records a parse returns.
//
// The zero value (with offset -1, see newFilter) returns every live record
// indexed by offset.
type parseFilter struct {
	// vdiUUID limits the result to the record with this uuid; the scan stops
	// at the first match.
	vdiUUID string

	// offset limits the scan to the record at this byte offset, -1 for any.
	offset int64

	// firstDeleted returns only the first deleted record (ascending offset).
	firstDeleted bool

	// includeDeleted keeps deleted records in the result.
	includeDeleted bool

	// indexByUUID also fills snapshot.byUUID.
	indexByUUID bool

	// from and upper bound the byte range of records read: every record
	// overlapping [from, upper) is scanned. upper 0 means the used-length.
	from  int64
	upper int64
}

func newFilter() parseFilter {
	return parseFilter{offset: -1}
}

// snapshot is the parsed state of (part of) the store.
type snapshot struct {
	// empty is true when the volume has never been written
	empty bool

	// length is the used-length recorded in the header
	length int64

	sr     metadata.SRInfo
	vdis   map[int64]metadata.VDIInfo
	byUUID map[string]metadata.VDIInfo
}

// parse is the single read path of the store.
//
// It stream-parses the header, the SR-info region, then each VDI slot in
// turn, stopping at the used-length (or the filter's upper bound).
func (s *VolumeMetadataStore) parse(f parseFilter) (*snapshot, error) {
	snap := &snapshot{
		vdis:   make(map[int64]metadata.VDIInfo),
		byUUID: make(map[string]metadata.VDIInfo),
	}

	hdr, empty, err := s.readHeader()
	if err != nil {
		return nil, err
	}
	if empty {
		snap.empty = true
		return snap, nil
	}
	snap.length = hdr.Length

	srBuf := make([]byte, srInfoSlots*slotSize)
	if err := s.readAt(srBuf, srUUIDOffset); err != nil {
		return nil, err
	}
	if snap.sr, err = decodeSR(srBuf); err != nil {
		return nil, err
	}

	first, end := s.recordBounds(hdr.Length, f)
	if first >= end {
		return snap, nil
	}

	start := time.Now()
	scanned := 0
	r := bufio.NewReaderSize(io.NewSectionReader(s.vol, first, end-first), scanBufferSize)
	buf := make([]byte, vdiSize)

	defer func() {
		s.metrics.RecordStorageOperation("scan", scanned, time.Since(start), err)
	}()

	for off := first; off < end; off += vdiSize {
		if _, err = io.ReadFull(r, buf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				err = &store.StoreError{
					Code:    store.ErrCorrupt,
					Message: "metadata volume truncated below used-length",
					Offset:  off,
				}
				return nil, err
			}
			err = store.WrapIO(err, off, "failed to read VDI record of %s", s.vol.Name())
			return nil, err
		}
		scanned += len(buf)

		var vdi metadata.VDIInfo
		if vdi, err = decodeVDI(buf, off); err != nil {
			return nil, err
		}

		if f.firstDeleted {
			if vdi.Deleted {
				snap.add(vdi, f.indexByUUID)
				break
			}
			continue
		}
		if vdi.Deleted && !f.includeDeleted {
			continue
		}
		if f.vdiUUID != "" {
			if vdi.UUID == f.vdiUUID {
				snap.add(vdi, f.indexByUUID)
				break
			}
			continue
		}
		snap.add(vdi, f.indexByUUID)
	}

	return snap, nil
}

// recordBounds returns the byte range [first, end) of whole VDI records to
// scan for a filter, given the used-length.
func (s *VolumeMetadataStore) recordBounds(length int64, f parseFilter) (int64, int64) {
	if f.offset >= 0 {
		if f.offset < vdiRegionOffset || (f.offset-vdiRegionOffset)%vdiSize != 0 || f.offset+vdiSize > length {
			return 0, 0
		}
		return f.offset, f.offset + vdiSize
	}

	first := int64(vdiRegionOffset)
	if f.from > first {
		first = vdiRegionOffset + ((f.from-vdiRegionOffset)/vdiSize)*vdiSize
	}

	end := length
	if f.upper > 0 && f.upper < end {
		// Include the record the bound falls into.
		n := (f.upper - vdiRegionOffset + vdiSize - 1) / vdiSize
		if f.upper <= vdiRegionOffset {
			n = 0
		}
		if bound := recordOffset(n); bound < end {
			end = bound
		}
	}
	return first, end
}

func (snap *snapshot) add(vdi metadata.VDIInfo, byUUID bool) {
	snap.vdis[vdi.Offset] = vdi
	if byUUID {
		snap.byUUID[vdi.UUID] = vdi
	}
}

// first returns the record with the lowest offset, if any.
func (snap *snapshot) first() (metadata.VDIInfo, bool) {
	var (
		best  metadata.VDIInfo
		found bool
	)
	for off, vdi := range snap.vdis {
		if !found || off < best.Offset {
			best, found = vdi, true
		}
	}
	return best, found
}
