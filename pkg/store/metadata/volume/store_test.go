package volume

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/srmeta/internal/fistpoint"
	"github.com/marmos91/srmeta/pkg/backing"
	"github.com/marmos91/srmeta/pkg/sector"
	"github.com/marmos91/srmeta/pkg/store"
	"github.com/marmos91/srmeta/pkg/store/metadata"
	metadatatesting "github.com/marmos91/srmeta/pkg/store/metadata/testing"
)

const testCapacity = 1 << 20

// TestVolumeMetadataStore runs the complete metadata.Store suite against a
// memory volume, a file volume and a 4K block size.
func TestVolumeMetadataStore(t *testing.T) {
	t.Run("Memory", func(t *testing.T) {
		suite := &metadatatesting.StoreTestSuite{
			NewStore: func(t *testing.T) metadata.Store {
				return newMemoryStore(t, backing.NewMemory(testCapacity), 0)
			},
			NewStoreWithCapacity: func(t *testing.T, capacity int64) metadata.Store {
				return newMemoryStore(t, backing.NewMemory(capacity), 0)
			},
		}
		suite.Run(t)
	})

	t.Run("File", func(t *testing.T) {
		suite := &metadatatesting.StoreTestSuite{
			NewStore: func(t *testing.T) metadata.Store {
				return newFileStore(t, 0)
			},
			NewStoreWithCapacity: newFileStore,
		}
		suite.Run(t)
	})

	t.Run("BlockSize4K", func(t *testing.T) {
		suite := &metadatatesting.StoreTestSuite{
			NewStore: func(t *testing.T) metadata.Store {
				return newMemoryStore(t, backing.NewMemory(testCapacity), 4096)
			},
		}
		suite.Run(t)
	})
}

func newMemoryStore(t *testing.T, vol *backing.Memory, blockSize int64) *VolumeMetadataStore {
	t.Helper()
	s, err := New(context.Background(), vol, Config{BlockSize: blockSize}, nil)
	require.NoError(t, err)
	return s
}

func newFileStore(t *testing.T, capacity int64) metadata.Store {
	t.Helper()
	vol, err := backing.OpenFile(backing.FileConfig{
		Path:          filepath.Join(t.TempDir(), "sr", "metadata"),
		CapacityBytes: capacity,
		Create:        true,
	})
	require.NoError(t, err)

	s, err := New(context.Background(), vol, Config{}, nil)
	require.NoError(t, err)
	return s
}

// initialized returns a memory-backed store holding n VDIs.
func initialized(t *testing.T, blockSize int64, n int) (*VolumeMetadataStore, *backing.Memory, []metadata.VDIInfo) {
	t.Helper()
	vol := backing.NewMemory(testCapacity)
	s := newMemoryStore(t, vol, blockSize)

	vdis := metadatatesting.NewVDIs(n)
	require.NoError(t, s.WriteMetadata(context.Background(), metadatatesting.NewSR(), vdis))
	vol.ResetWrites()
	return s, vol, vdis
}

func slotAt(vol *backing.Memory, off int64) string {
	data := vol.Bytes()
	return strings.TrimRight(string(data[off:off+slotSize]), " ")
}

// ============================================================================
// Construction
// ============================================================================

func TestNew(t *testing.T) {
	t.Run("DefaultBlockSize", func(t *testing.T) {
		s := newMemoryStore(t, backing.NewMemory(testCapacity), 0)
		assert.Equal(t, int64(DefaultBlockSize), s.BlockSize())
	})

	t.Run("UnalignedBlockSize", func(t *testing.T) {
		_, err := New(context.Background(), backing.NewMemory(testCapacity), Config{BlockSize: 1000}, nil)
		assert.ErrorIs(t, err, store.ErrInvalidArgument)
	})

	t.Run("NegativeBlockSize", func(t *testing.T) {
		_, err := New(context.Background(), backing.NewMemory(testCapacity), Config{BlockSize: -512}, nil)
		assert.ErrorIs(t, err, store.ErrInvalidArgument)
	})
}

// ============================================================================
// On-disk format
// ============================================================================

func TestLayout(t *testing.T) {
	vol := backing.NewMemory(testCapacity)
	s := newMemoryStore(t, vol, 0)

	sr := metadata.SRInfo{UUID: "sr-uuid", NameLabel: "SR & co", NameDescription: "desc", Allocation: "thin"}
	vdi := metadata.VDIInfo{
		UUID:        "vdi-uuid",
		NameLabel:   "disk",
		IsASnapshot: true,
		Type:        "user",
		VDIType:     "vhd",
		Managed:     true,
	}
	require.NoError(t, s.WriteMetadata(context.Background(), sr, []metadata.VDIInfo{vdi}))

	data := vol.Bytes()
	require.Len(t, data, int(vdiRegionOffset+vdiSize))
	assert.Equal(t, sector.BuildHeader(3072, 1, 2), data[:slotSize])
	assert.Equal(t, "XSSM:3072      :1:2", slotAt(vol, headerOffset))
	assert.Equal(t, "<sr><uuid>sr-uuid</uuid><allocation>thin</allocation></sr>", slotAt(vol, srUUIDOffset))
	assert.Equal(t, "<name_label>SR &amp; co</name_label>", slotAt(vol, srLabelOffset))
	assert.Equal(t, "<name_description>desc</name_description>", slotAt(vol, srDescriptionOffset))
	assert.Equal(t, "<vdi><name_label>disk</name_label><name_description></name_description>",
		slotAt(vol, vdiRegionOffset))
	assert.Equal(t,
		"<uuid>vdi-uuid</uuid><is_a_snapshot>1</is_a_snapshot><snapshot_of></snapshot_of>"+
			"<snapshot_time></snapshot_time><type>user</type><vdi_type>vhd</vdi_type>"+
			"<read_only>0</read_only><metadata_of_pool></metadata_of_pool><managed>1</managed>"+
			"<deleted>0</deleted></vdi>",
		slotAt(vol, vdiRegionOffset+slotSize))
}

func TestMaxLabelDescLength(t *testing.T) {
	overhead := len("<vdi><name_label></name_label><name_description></name_description>")
	assert.Equal(t, sector.Size-overhead, MaxLabelDescLength())
}

// ============================================================================
// Write extents and ordering
// ============================================================================

func TestWriteExtents(t *testing.T) {
	t.Run("WriteMetadataBodyBeforeHeader", func(t *testing.T) {
		vol := backing.NewMemory(testCapacity)
		s := newMemoryStore(t, vol, 0)

		require.NoError(t, s.WriteMetadata(context.Background(), metadatatesting.NewSR(), metadatatesting.NewVDIs(2)))
		assert.Equal(t, []backing.Extent{
			{Offset: 512, Length: 4096 - 512},
			{Offset: 0, Length: 512},
		}, vol.Writes())
		assert.Equal(t, 2, vol.Syncs())
	})

	t.Run("AppendRecordBeforeHeader", func(t *testing.T) {
		s, vol, _ := initialized(t, 0, 2)
		syncs := vol.Syncs()

		off, err := s.AddVDI(context.Background(), metadatatesting.NewVDI("new"))
		require.NoError(t, err)
		assert.Equal(t, int64(4096), off)
		assert.Equal(t, []backing.Extent{
			{Offset: 4096, Length: vdiSize},
			{Offset: 0, Length: 512},
		}, vol.Writes())
		assert.Equal(t, syncs+2, vol.Syncs())
	})

	t.Run("ReuseSingleWrite", func(t *testing.T) {
		s, vol, vdis := initialized(t, 0, 3)
		require.NoError(t, s.DeleteVDIFromMetadata(context.Background(), vdis[0].UUID))
		vol.ResetWrites()

		_, err := s.AddVDI(context.Background(), metadatatesting.NewVDI("new"))
		require.NoError(t, err)
		assert.Equal(t, []backing.Extent{{Offset: 2048, Length: vdiSize}}, vol.Writes())
	})

	t.Run("TailDeleteRecordBeforeHeader", func(t *testing.T) {
		s, vol, vdis := initialized(t, 0, 2)

		require.NoError(t, s.DeleteVDIFromMetadata(context.Background(), vdis[1].UUID))
		assert.Equal(t, []backing.Extent{
			{Offset: 3072, Length: vdiSize},
			{Offset: 0, Length: 512},
		}, vol.Writes())
	})

	t.Run("InteriorDeleteRecordOnly", func(t *testing.T) {
		s, vol, vdis := initialized(t, 0, 2)

		require.NoError(t, s.DeleteVDIFromMetadata(context.Background(), vdis[0].UUID))
		assert.Equal(t, []backing.Extent{{Offset: 2048, Length: vdiSize}}, vol.Writes())
		assert.Contains(t, slotAt(vol, 2048+slotSize), "<deleted>1</deleted>")
	})

	t.Run("UpdateVDISubSlots", func(t *testing.T) {
		s, vol, vdis := initialized(t, 0, 2)
		ctx := context.Background()
		target := vdis[1].UUID

		require.NoError(t, s.UpdateVDI(ctx, metadata.VDIUpdate{UUID: target, NameLabel: metadata.String("a")}))
		assert.Equal(t, []backing.Extent{{Offset: 3072, Length: 512}}, vol.Writes())

		vol.ResetWrites()
		require.NoError(t, s.UpdateVDI(ctx, metadata.VDIUpdate{UUID: target, ReadOnly: metadata.Bool(true)}))
		assert.Equal(t, []backing.Extent{{Offset: 3584, Length: 512}}, vol.Writes())

		vol.ResetWrites()
		require.NoError(t, s.UpdateVDI(ctx, metadata.VDIUpdate{
			UUID:      target,
			NameLabel: metadata.String("b"),
			Type:      metadata.String("system"),
		}))
		assert.Equal(t, []backing.Extent{{Offset: 3072, Length: vdiSize}}, vol.Writes())

		vol.ResetWrites()
		require.NoError(t, s.UpdateVDI(ctx, metadata.VDIUpdate{UUID: target}))
		assert.Empty(t, vol.Writes())
	})

	t.Run("UpdateSRSlots", func(t *testing.T) {
		s, vol, _ := initialized(t, 0, 1)
		ctx := context.Background()

		require.NoError(t, s.UpdateSR(ctx, metadata.SRUpdate{NameLabel: metadata.String("l")}))
		assert.Equal(t, []backing.Extent{{Offset: srLabelOffset, Length: 512}}, vol.Writes())

		vol.ResetWrites()
		require.NoError(t, s.UpdateSR(ctx, metadata.SRUpdate{NameDescription: metadata.String("d")}))
		assert.Equal(t, []backing.Extent{{Offset: srDescriptionOffset, Length: 512}}, vol.Writes())
	})
}

// ============================================================================
// Whole-block regeneration
// ============================================================================

func TestBlockRegeneration(t *testing.T) {
	t.Run("WriteMetadataIn4KBlocks", func(t *testing.T) {
		vol := backing.NewMemory(testCapacity)
		s := newMemoryStore(t, vol, 4096)

		require.NoError(t, s.WriteMetadata(context.Background(), metadatatesting.NewSR(), metadatatesting.NewVDIs(3)))
		assert.Equal(t, []backing.Extent{
			{Offset: 4096, Length: 4096},
			{Offset: 0, Length: 4096},
		}, vol.Writes())

		// Slots past the used-length inside the last block are blank.
		data := vol.Bytes()
		assert.True(t, isBlank(data[5120:8192]))
	})

	t.Run("NeighbourReserialized", func(t *testing.T) {
		s, vol, vdis := initialized(t, 4096, 2)

		// Rewrite record 1 by hand in a form the reader accepts but the writer
		// never produces.
		raw := append(
			sector.Pad("<vdi><name_label>hand written</name_label><name_description></name_description>"),
			sector.Pad("<uuid>"+vdis[1].UUID+"</uuid><read_only>true</read_only><deleted>0</deleted></vdi>")...)
		_, err := vol.WriteAt(raw, 3072)
		require.NoError(t, err)
		vol.ResetWrites()

		// Updating record 0 rewrites the whole first block, record 1 included.
		require.NoError(t, s.UpdateVDI(context.Background(), metadata.VDIUpdate{
			UUID:      vdis[0].UUID,
			NameLabel: metadata.String("changed"),
		}))
		assert.Equal(t, []backing.Extent{{Offset: 0, Length: 4096}}, vol.Writes())
		assert.Contains(t, slotAt(vol, 3072+slotSize), "<read_only>1</read_only>")
		assert.Contains(t, slotAt(vol, 3072+slotSize), "<managed>0</managed>")

		got, err := s.GetVDI(context.Background(), vdis[1].UUID)
		require.NoError(t, err)
		assert.Equal(t, "hand written", got.NameLabel)
		assert.True(t, got.ReadOnly)
	})

	t.Run("SRUpdateSpansVDIRegion", func(t *testing.T) {
		s, vol, vdis := initialized(t, 4096, 2)
		before := vol.Bytes()

		require.NoError(t, s.UpdateSR(context.Background(), metadata.SRUpdate{NameLabel: metadata.String("new")}))
		assert.Equal(t, []backing.Extent{{Offset: 0, Length: 4096}}, vol.Writes())

		after := vol.Bytes()
		assert.Equal(t, before[:srLabelOffset], after[:srLabelOffset])
		assert.Equal(t, before[srDescriptionOffset:], after[srDescriptionOffset:])

		_, got, err := s.GetMetadata(context.Background())
		require.NoError(t, err)
		byUUID := metadatatesting.ByUUID(got)
		for _, vdi := range vdis {
			assert.Equal(t, metadatatesting.Comparable(vdi), metadatatesting.Comparable(byUUID[vdi.UUID]))
		}
	})

	t.Run("AppendInHeaderBlock", func(t *testing.T) {
		vol := backing.NewMemory(testCapacity)
		s := newMemoryStore(t, vol, 4096)
		require.NoError(t, s.WriteMetadata(context.Background(), metadatatesting.NewSR(), nil))
		vol.ResetWrites()

		// The record shares block 0 with the header: the first write keeps the
		// old used-length, the second grows it.
		off, err := s.AddVDI(context.Background(), metadatatesting.NewVDI("first"))
		require.NoError(t, err)
		assert.Equal(t, int64(2048), off)
		assert.Equal(t, []backing.Extent{
			{Offset: 0, Length: 4096},
			{Offset: 0, Length: 4096},
		}, vol.Writes())

		n, err := s.UsedLength(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(3072), n)
	})

	t.Run("DeletedHolesPreserved", func(t *testing.T) {
		s, vol, vdis := initialized(t, 4096, 2)
		ctx := context.Background()

		require.NoError(t, s.DeleteVDIFromMetadata(ctx, vdis[0].UUID))
		require.NoError(t, s.UpdateVDI(ctx, metadata.VDIUpdate{UUID: vdis[1].UUID, NameLabel: metadata.String("x")}))

		// Regenerating block 0 kept record 0 as a deleted hole.
		assert.Contains(t, slotAt(vol, 2048+slotSize), "<deleted>1</deleted>")
		off, err := s.AddVDI(ctx, metadatatesting.NewVDI("reuse"))
		require.NoError(t, err)
		assert.Equal(t, int64(2048), off)
	})
}

// ============================================================================
// Fault injection
// ============================================================================

func TestFaultPoints(t *testing.T) {
	t.Cleanup(fistpoint.Reset)

	t.Run("AppendHeaderFails", func(t *testing.T) {
		t.Cleanup(fistpoint.Reset)
		s, _, _ := initialized(t, 0, 1)
		ctx := context.Background()

		vdi := metadatatesting.NewVDI("lost")
		fistpoint.Enable(FistWriteHeader)
		_, err := s.AddVDI(ctx, vdi)
		require.Error(t, err)
		assert.ErrorIs(t, err, fistpoint.ErrInjected)
		assert.ErrorIs(t, err, store.ErrIO)

		n, err := s.UsedLength(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3072), n)
		_, err = s.GetVDI(ctx, vdi.UUID)
		assert.ErrorIs(t, err, store.ErrNotFound)

		fistpoint.Reset()
		off, err := s.AddVDI(ctx, vdi)
		require.NoError(t, err)
		assert.Equal(t, int64(3072), off)
	})

	t.Run("WriteMetadataRecordsFail", func(t *testing.T) {
		t.Cleanup(fistpoint.Reset)
		vol := backing.NewMemory(testCapacity)
		s := newMemoryStore(t, vol, 0)

		fistpoint.Enable(FistWriteRecords)
		err := s.WriteMetadata(context.Background(), metadatatesting.NewSR(), metadatatesting.NewVDIs(1))
		assert.ErrorIs(t, err, fistpoint.ErrInjected)
		assert.Empty(t, vol.Writes())
	})

	t.Run("WriteMetadataHeaderFails", func(t *testing.T) {
		t.Cleanup(fistpoint.Reset)
		vol := backing.NewMemory(testCapacity)
		s := newMemoryStore(t, vol, 0)
		ctx := context.Background()

		fistpoint.Enable(FistWriteHeader)
		err := s.WriteMetadata(ctx, metadatatesting.NewSR(), metadatatesting.NewVDIs(1))
		assert.ErrorIs(t, err, fistpoint.ErrInjected)

		// Without a header the store is still empty and can be initialized.
		sr, vdis, err := s.GetMetadata(ctx)
		require.NoError(t, err)
		assert.True(t, sr.IsZero())
		assert.Empty(t, vdis)

		fistpoint.Reset()
		require.NoError(t, s.WriteMetadata(ctx, metadatatesting.NewSR(), metadatatesting.NewVDIs(1)))
	})

	t.Run("TailDeleteHeaderFails", func(t *testing.T) {
		t.Cleanup(fistpoint.Reset)
		s, _, vdis := initialized(t, 0, 2)
		ctx := context.Background()

		fistpoint.Enable(FistWriteHeader)
		err := s.DeleteVDIFromMetadata(ctx, vdis[1].UUID)
		assert.ErrorIs(t, err, fistpoint.ErrInjected)
		fistpoint.Reset()

		// The record is deleted, only the tail was not reclaimed.
		_, err = s.GetVDI(ctx, vdis[1].UUID)
		assert.ErrorIs(t, err, store.ErrNotFound)
		n, err := s.UsedLength(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(4096), n)

		off, err := s.AddVDI(ctx, metadatatesting.NewVDI("reuse"))
		require.NoError(t, err)
		assert.Equal(t, int64(3072), off)
	})

	t.Run("ProbeFailureReported", func(t *testing.T) {
		t.Cleanup(fistpoint.Reset)
		s, _, _ := initialized(t, 0, 1)

		fistpoint.Enable(FistWriteRecords)
		err := s.EnsureSpaceIsAvailableForVDIs(context.Background(), 1)
		assert.ErrorIs(t, err, store.ErrNoSpace)
		assert.ErrorIs(t, err, fistpoint.ErrInjected)
	})
}

// ============================================================================
// Corruption
// ============================================================================

func TestCorruption(t *testing.T) {
	t.Run("GarbageHeader", func(t *testing.T) {
		s, vol, _ := initialized(t, 0, 1)
		_, err := vol.WriteAt(sector.Pad("not a header"), 0)
		require.NoError(t, err)

		_, _, err = s.GetMetadata(context.Background())
		assert.ErrorIs(t, err, store.ErrCorrupt)

		// A corrupt header is not mistaken for an empty store.
		err = s.WriteMetadata(context.Background(), metadatatesting.NewSR(), nil)
		assert.ErrorIs(t, err, store.ErrCorrupt)
		assert.Error(t, s.Healthcheck(context.Background()))
	})

	t.Run("UnsupportedMajor", func(t *testing.T) {
		s, vol, _ := initialized(t, 0, 1)
		_, err := vol.WriteAt(sector.BuildHeader(3072, 2, 0), 0)
		require.NoError(t, err)

		_, _, err = s.GetMetadata(context.Background())
		assert.ErrorIs(t, err, store.ErrCorrupt)
	})

	t.Run("MisalignedLength", func(t *testing.T) {
		s, vol, _ := initialized(t, 0, 1)
		_, err := vol.WriteAt(sector.BuildHeader(3000, 1, 2), 0)
		require.NoError(t, err)

		_, err = s.UsedLength(context.Background())
		assert.ErrorIs(t, err, store.ErrCorrupt)
	})

	t.Run("LengthPastEnd", func(t *testing.T) {
		s, vol, _ := initialized(t, 0, 1)
		_, err := vol.WriteAt(sector.BuildHeader(5120, 1, 2), 0)
		require.NoError(t, err)

		_, _, err = s.GetMetadata(context.Background())
		assert.ErrorIs(t, err, store.ErrCorrupt)
	})

	t.Run("GarbageRecord", func(t *testing.T) {
		s, vol, _ := initialized(t, 0, 2)
		_, err := vol.WriteAt(bytes.Repeat([]byte("<"), int(vdiSize)), 3072)
		require.NoError(t, err)

		_, _, err = s.GetMetadata(context.Background())
		require.ErrorIs(t, err, store.ErrCorrupt)

		var se *store.StoreError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, int64(3072), se.Offset)
	})
}
