package volume

import (
	"bytes"
	"encoding/xml"
	"strings"

	"github.com/marmos91/srmeta/pkg/sector"
	"github.com/marmos91/srmeta/pkg/store"
	"github.com/marmos91/srmeta/pkg/store/metadata"
)

// On-disk Layout
// ==============
//
// The volume is a sequence of sector.Size (512 byte) slots:
//
//	Slot     Offset  Content
//	=====================================================================
//	0        0       header "XSSM:<used-length>:<major>:<minor>"
//	1        512     <sr><uuid>…</uuid><allocation>…</allocation></sr>
//	2        1024    <name_label>…</name_label>             (SR label)
//	3        1536    <name_description>…</name_description> (SR description)
//	4, 5     2048    VDI record 0: sub-slot A, sub-slot B
//	6, 7     3072    VDI record 1
//	…
//
// VDI sub-slot A carries the opening tag and the escaped, budget-truncated
// label and description:
//
//	<vdi><name_label>…</name_label><name_description>…</name_description>
//
// Sub-slot B carries every other field, the deleted flag and the closing
// tag:
//
//	<uuid>…</uuid><is_a_snapshot>0</is_a_snapshot>…<deleted>0</deleted></vdi>
//
// Each sector is space padded. The used-length in the header bounds the
// meaningful prefix of the volume; a reader never looks past it.

const (
	slotSize = int64(sector.Size)

	headerOffset = 0

	srUUIDOffset        = 1 * slotSize
	srLabelOffset       = 2 * slotSize
	srDescriptionOffset = 3 * slotSize

	// srInfoSlots is the number of slots right after the header holding the
	// SR record.
	srInfoSlots = 3

	// vdiRegionOffset is the offset of the first VDI record.
	vdiRegionOffset = (1 + srInfoSlots) * slotSize

	// vdiSlots is the number of slots per VDI record.
	vdiSlots = 2

	// vdiSize is the size of one VDI record in bytes.
	vdiSize = vdiSlots * slotSize
)

// vdiSubSlot selects which part of a VDI record to generate.
type vdiSubSlot int

const (
	subSlotBoth vdiSubSlot = iota
	subSlotA
	subSlotB
)

// maxLabelDescLength is the combined byte budget for the escaped VDI label and
// description in sub-slot A.
var maxLabelDescLength = sector.Size - len(
	sector.OpenTag(metadata.TagVDI)+
		sector.Element(metadata.TagNameLabel, "")+
		sector.Element(metadata.TagNameDescription, ""))

// MaxLabelDescLength is the combined byte budget for the escaped VDI label and
// description. Longer values are truncated when written.
func MaxLabelDescLength() int {
	return maxLabelDescLength
}

// recordOffset returns the offset of the n-th VDI record.
func recordOffset(n int64) int64 {
	return vdiRegionOffset + n*vdiSize
}

// ============================================================================
// Encoding
// ============================================================================

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// srSlots encodes the SR record into its three slots.
func srSlots(sr metadata.SRInfo) ([][]byte, error) {
	first := sector.OpenTag(metadata.TagSR) +
		sector.Element(metadata.TagUUID, sector.Escape(sr.UUID)) +
		sector.Element(metadata.TagAllocation, sector.Escape(sr.Allocation)) +
		sector.CloseTag(metadata.TagSR)
	if len(first) > sector.Size {
		return nil, store.NewError(store.ErrInvalidArgument,
			"SR uuid and allocation do not fit in one sector (%d bytes)", len(first))
	}

	return [][]byte{
		sector.Pad(first),
		sector.BuildXMLSector(metadata.TagNameLabel, sector.Escape(sr.NameLabel)),
		sector.BuildXMLSector(metadata.TagNameDescription, sector.Escape(sr.NameDescription)),
	}, nil
}

// vdiSubSlotA encodes the label and description sub-slot.
func vdiSubSlotA(vdi metadata.VDIInfo) []byte {
	label, desc := sector.SplitBudget(
		sector.Escape(vdi.NameLabel),
		sector.Escape(vdi.NameDescription),
		maxLabelDescLength,
	)
	return sector.Pad(sector.OpenTag(metadata.TagVDI) +
		sector.Element(metadata.TagNameLabel, label) +
		sector.Element(metadata.TagNameDescription, desc))
}

// vdiSubSlotB encodes the scalar-fields sub-slot.
func vdiSubSlotB(vdi metadata.VDIInfo) ([]byte, error) {
	var b strings.Builder
	b.WriteString(sector.Element(metadata.TagUUID, sector.Escape(vdi.UUID)))
	b.WriteString(sector.Element(metadata.TagIsASnapshot, boolField(vdi.IsASnapshot)))
	b.WriteString(sector.Element(metadata.TagSnapshotOf, sector.Escape(vdi.SnapshotOf)))
	b.WriteString(sector.Element(metadata.TagSnapshotTime, sector.Escape(vdi.SnapshotTime)))
	b.WriteString(sector.Element(metadata.TagType, sector.Escape(vdi.Type)))
	b.WriteString(sector.Element(metadata.TagVDIType, sector.Escape(vdi.VDIType)))
	b.WriteString(sector.Element(metadata.TagReadOnly, boolField(vdi.ReadOnly)))
	b.WriteString(sector.Element(metadata.TagMetadataOfPool, sector.Escape(vdi.MetadataOfPool)))
	b.WriteString(sector.Element(metadata.TagManaged, boolField(vdi.Managed)))
	b.WriteString(sector.Element(metadata.TagDeleted, boolField(vdi.Deleted)))
	b.WriteString(sector.CloseTag(metadata.TagVDI))

	if b.Len() > sector.Size {
		return nil, store.NewError(store.ErrInvalidArgument,
			"fields of VDI %s do not fit in one sector (%d bytes)", vdi.UUID, b.Len())
	}
	return sector.Pad(b.String()), nil
}

// vdiRecordSlots encodes the requested part of a VDI record.
func vdiRecordSlots(vdi metadata.VDIInfo, which vdiSubSlot) ([]byte, error) {
	switch which {
	case subSlotA:
		return vdiSubSlotA(vdi), nil
	case subSlotB:
		return vdiSubSlotB(vdi)
	default:
		b, err := vdiSubSlotB(vdi)
		if err != nil {
			return nil, err
		}
		return append(vdiSubSlotA(vdi), b...), nil
	}
}

// ============================================================================
// Decoding
// ============================================================================

type srXML struct {
	XMLName    xml.Name `xml:"sr"`
	UUID       string   `xml:"uuid"`
	Allocation string   `xml:"allocation"`
}

type textXML struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

type vdiXML struct {
	XMLName         xml.Name `xml:"vdi"`
	NameLabel       string   `xml:"name_label"`
	NameDescription string   `xml:"name_description"`
	UUID            string   `xml:"uuid"`
	IsASnapshot     string   `xml:"is_a_snapshot"`
	SnapshotOf      string   `xml:"snapshot_of"`
	SnapshotTime    string   `xml:"snapshot_time"`
	Type            string   `xml:"type"`
	VDIType         string   `xml:"vdi_type"`
	ReadOnly        string   `xml:"read_only"`
	MetadataOfPool  string   `xml:"metadata_of_pool"`
	Managed         string   `xml:"managed"`
	Deleted         string   `xml:"deleted"`
}

func parseBool(s string) bool {
	switch strings.TrimSpace(s) {
	case "1", "true", "True":
		return true
	}
	return false
}

// decodeSR decodes the three SR slots (3*slotSize bytes starting at
// srUUIDOffset).
func decodeSR(b []byte) (metadata.SRInfo, error) {
	var head srXML
	if err := xml.Unmarshal(trimSlot(b[:slotSize]), &head); err != nil {
		return metadata.SRInfo{}, corruptAt(srUUIDOffset, "SR record", err)
	}

	label, err := decodeText(b[slotSize:2*slotSize], metadata.TagNameLabel)
	if err != nil {
		return metadata.SRInfo{}, corruptAt(srLabelOffset, "SR name label", err)
	}
	desc, err := decodeText(b[2*slotSize:3*slotSize], metadata.TagNameDescription)
	if err != nil {
		return metadata.SRInfo{}, corruptAt(srDescriptionOffset, "SR name description", err)
	}

	return metadata.SRInfo{
		UUID:            head.UUID,
		NameLabel:       label,
		NameDescription: desc,
		Allocation:      head.Allocation,
	}, nil
}

func decodeText(b []byte, tag string) (string, error) {
	var t textXML
	if err := xml.Unmarshal(trimSlot(b), &t); err != nil {
		return "", err
	}
	if t.XMLName.Local != tag {
		return "", store.NewError(store.ErrCorrupt, "expected <%s>, found <%s>", tag, t.XMLName.Local)
	}
	return t.Value, nil
}

// decodeVDI decodes one VDI record (vdiSize bytes) located at offset.
func decodeVDI(b []byte, offset int64) (metadata.VDIInfo, error) {
	var v vdiXML
	if err := xml.Unmarshal(trimSlot(b), &v); err != nil {
		return metadata.VDIInfo{}, corruptAt(offset, "VDI record", err)
	}
	if v.UUID == "" {
		return metadata.VDIInfo{}, corruptAt(offset, "VDI record without uuid", nil)
	}

	return metadata.VDIInfo{
		UUID:            v.UUID,
		NameLabel:       v.NameLabel,
		NameDescription: v.NameDescription,
		IsASnapshot:     parseBool(v.IsASnapshot),
		SnapshotOf:      v.SnapshotOf,
		SnapshotTime:    v.SnapshotTime,
		Type:            v.Type,
		VDIType:         v.VDIType,
		ReadOnly:        parseBool(v.ReadOnly),
		Managed:         parseBool(v.Managed),
		MetadataOfPool:  v.MetadataOfPool,
		Deleted:         parseBool(v.Deleted),
		Offset:          offset,
	}, nil
}

// trimSlot strips the padding of one or more sectors.
func trimSlot(b []byte) []byte {
	return bytes.TrimRight(b, " \x00")
}

// isBlank reports whether b holds only padding or zero bytes.
func isBlank(b []byte) bool {
	return len(trimSlot(b)) == 0
}

func corruptAt(offset int64, what string, err error) *store.StoreError {
	return &store.StoreError{
		Code:    store.ErrCorrupt,
		Message: "unparsable " + what,
		Offset:  offset,
		Err:     err,
	}
}
