package metadata

// Tag names used in the on-disk markup. They double as field names in logs
// and CLI output.
const (
	TagSR              = "sr"
	TagVDI             = "vdi"
	TagUUID            = "uuid"
	TagAllocation      = "allocation"
	TagNameLabel       = "name_label"
	TagNameDescription = "name_description"
	TagIsASnapshot     = "is_a_snapshot"
	TagSnapshotOf      = "snapshot_of"
	TagSnapshotTime    = "snapshot_time"
	TagType            = "type"
	TagVDIType         = "vdi_type"
	TagReadOnly        = "read_only"
	TagManaged         = "managed"
	TagMetadataOfPool  = "metadata_of_pool"
	TagDeleted         = "deleted"
)

// VDITypeMetadata is the VDI type of the pool metadata VDI located by
// FindMetadataVDI.
const VDITypeMetadata = "metadata"

// SRInfo is the single SR record of a metadata store.
type SRInfo struct {
	UUID            string `json:"uuid" yaml:"uuid"`
	NameLabel       string `json:"name_label" yaml:"name_label"`
	NameDescription string `json:"name_description" yaml:"name_description"`
	Allocation      string `json:"allocation" yaml:"allocation"`
}

// IsZero reports whether no SR record is present.
func (s SRInfo) IsZero() bool {
	return s == SRInfo{}
}

// VDIInfo is one VDI record.
//
// Offset is the byte position of the record's first slot in the store. It is
// the record's address: stable for the life of the record, and reused by a
// later AddVDI once the record is deleted. Offset is ignored on input.
type VDIInfo struct {
	UUID            string `json:"uuid" yaml:"uuid"`
	NameLabel       string `json:"name_label" yaml:"name_label"`
	NameDescription string `json:"name_description" yaml:"name_description"`
	IsASnapshot     bool   `json:"is_a_snapshot" yaml:"is_a_snapshot"`
	SnapshotOf      string `json:"snapshot_of" yaml:"snapshot_of"`
	SnapshotTime    string `json:"snapshot_time" yaml:"snapshot_time"`
	Type            string `json:"type" yaml:"type"`
	VDIType         string `json:"vdi_type" yaml:"vdi_type"`
	ReadOnly        bool   `json:"read_only" yaml:"read_only"`
	Managed         bool   `json:"managed" yaml:"managed"`
	MetadataOfPool  string `json:"metadata_of_pool" yaml:"metadata_of_pool"`
	Deleted         bool   `json:"deleted" yaml:"deleted"`
	Offset          int64  `json:"offset" yaml:"offset"`
}

// ============================================================================
// Updates
// ============================================================================

// ObjectType discriminates the record an Update applies to.
type ObjectType string

const (
	ObjectTypeSR  ObjectType = "sr"
	ObjectTypeVDI ObjectType = "vdi"
)

// Update is a partial change to one record. It is implemented by SRUpdate and
// VDIUpdate only.
type Update interface {
	ObjectType() ObjectType
	isUpdate()
}

// SRUpdate changes the SR record. Only non-nil fields are applied.
type SRUpdate struct {
	NameLabel       *string
	NameDescription *string
}

func (SRUpdate) ObjectType() ObjectType { return ObjectTypeSR }
func (SRUpdate) isUpdate()              {}

// Apply merges the update into info.
func (u SRUpdate) Apply(info SRInfo) SRInfo {
	if u.NameLabel != nil {
		info.NameLabel = *u.NameLabel
	}
	if u.NameDescription != nil {
		info.NameDescription = *u.NameDescription
	}
	return info
}

// VDIUpdate changes the VDI record identified by UUID. Only non-nil fields are
// applied; the deleted flag is not settable through an update.
type VDIUpdate struct {
	UUID string

	NameLabel       *string
	NameDescription *string
	IsASnapshot     *bool
	SnapshotOf      *string
	SnapshotTime    *string
	Type            *string
	VDIType         *string
	ReadOnly        *bool
	Managed         *bool
	MetadataOfPool  *string
}

func (VDIUpdate) ObjectType() ObjectType { return ObjectTypeVDI }
func (VDIUpdate) isUpdate()              {}

// Apply merges the update into info.
func (u VDIUpdate) Apply(info VDIInfo) VDIInfo {
	if u.NameLabel != nil {
		info.NameLabel = *u.NameLabel
	}
	if u.NameDescription != nil {
		info.NameDescription = *u.NameDescription
	}
	if u.IsASnapshot != nil {
		info.IsASnapshot = *u.IsASnapshot
	}
	if u.SnapshotOf != nil {
		info.SnapshotOf = *u.SnapshotOf
	}
	if u.SnapshotTime != nil {
		info.SnapshotTime = *u.SnapshotTime
	}
	if u.Type != nil {
		info.Type = *u.Type
	}
	if u.VDIType != nil {
		info.VDIType = *u.VDIType
	}
	if u.ReadOnly != nil {
		info.ReadOnly = *u.ReadOnly
	}
	if u.Managed != nil {
		info.Managed = *u.Managed
	}
	if u.MetadataOfPool != nil {
		info.MetadataOfPool = *u.MetadataOfPool
	}
	return info
}

// String returns a pointer to s, for building updates.
func String(s string) *string { return &s }

// Bool returns a pointer to b, for building updates.
func Bool(b bool) *bool { return &b }
