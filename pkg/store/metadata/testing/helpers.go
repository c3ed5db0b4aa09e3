package testing

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/srmeta/pkg/store/metadata"
)

// recordSize mirrors the on-disk size of one VDI record.
const recordSize = 1024

// firstRecordOffset mirrors the offset of the first VDI record.
const firstRecordOffset = 2048

// ============================================================================
// Fixtures
// ============================================================================

// NewSR returns an SR record with a random uuid.
func NewSR() metadata.SRInfo {
	return metadata.SRInfo{
		UUID:            uuid.NewString(),
		NameLabel:       "Local storage",
		NameDescription: "SR used by the test suite",
		Allocation:      "thick",
	}
}

// NewVDI returns a user VDI record with a random uuid.
func NewVDI(label string) metadata.VDIInfo {
	return metadata.VDIInfo{
		UUID:            uuid.NewString(),
		NameLabel:       label,
		NameDescription: "description of " + label,
		Type:            "user",
		VDIType:         "vhd",
		Managed:         true,
	}
}

// NewVDIs returns n user VDIs labelled "disk-0" ... "disk-<n-1>".
func NewVDIs(n int) []metadata.VDIInfo {
	vdis := make([]metadata.VDIInfo, n)
	for i := range vdis {
		vdis[i] = NewVDI(fmt.Sprintf("disk-%d", i))
	}
	return vdis
}

// Comparable strips the fields a store assigns (offset, deleted) so records
// can be compared on the fields callers set.
func Comparable(vdi metadata.VDIInfo) metadata.VDIInfo {
	vdi.Offset = 0
	vdi.Deleted = false
	return vdi
}

// ByUUID indexes records by uuid.
func ByUUID(vdis map[int64]metadata.VDIInfo) map[string]metadata.VDIInfo {
	out := make(map[string]metadata.VDIInfo, len(vdis))
	for _, vdi := range vdis {
		out[vdi.UUID] = vdi
	}
	return out
}

// ============================================================================
// Helpers
// ============================================================================

// initStore writes sr and vdis into store.
func initStore(t *testing.T, store metadata.Store, sr metadata.SRInfo, vdis ...metadata.VDIInfo) {
	t.Helper()
	require.NoError(t, store.WriteMetadata(context.Background(), sr, vdis))
}

// addVDI adds vdi and returns its offset.
func addVDI(t *testing.T, store metadata.Store, vdi metadata.VDIInfo) int64 {
	t.Helper()
	off, err := store.AddVDI(context.Background(), vdi)
	require.NoError(t, err)
	return off
}

func usedLength(t *testing.T, store metadata.Store) int64 {
	t.Helper()
	n, err := store.UsedLength(context.Background())
	require.NoError(t, err)
	return n
}

func getMetadata(t *testing.T, store metadata.Store) (metadata.SRInfo, map[int64]metadata.VDIInfo) {
	t.Helper()
	sr, vdis, err := store.GetMetadata(context.Background())
	require.NoError(t, err)
	return sr, vdis
}

func offsetOf(t *testing.T, store metadata.Store, vdiUUID string) int64 {
	t.Helper()
	vdi, err := store.GetVDI(context.Background(), vdiUUID)
	require.NoError(t, err)
	return vdi.Offset
}

func closeOnCleanup(t *testing.T, store metadata.Store) {
	t.Cleanup(func() { _ = store.Close() })
}
