package testing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/srmeta/pkg/store"
	"github.com/marmos91/srmeta/pkg/store/metadata"
)

// RunReadWriteTests executes the initialization and read tests.
func (suite *StoreTestSuite) RunReadWriteTests(t *testing.T) {
	t.Run("EmptyStore", suite.testEmptyStore)
	t.Run("RoundTrip", suite.testRoundTrip)
	t.Run("WriteMetadata", suite.testWriteMetadata)
	t.Run("GetVDI", suite.testGetVDI)
	t.Run("FindMetadataVDI", suite.testFindMetadataVDI)
	t.Run("Healthcheck", suite.testHealthcheck)
}

func (suite *StoreTestSuite) testEmptyStore(test *testing.T) {
	test.Run("GetMetadataIsSoft", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		sr, vdis, err := s.GetMetadata(context.Background())
		require.NoError(t, err)
		assert.True(t, sr.IsZero())
		assert.Empty(t, vdis)
	})

	test.Run("UsedLengthIsZero", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		assert.Equal(t, int64(0), usedLength(t, s))
	})

	test.Run("NoMetadataVDI", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		_, found, err := s.FindMetadataVDI(context.Background())
		require.NoError(t, err)
		assert.False(t, found)
	})

	test.Run("MutationsFail", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)
		ctx := context.Background()

		_, err := s.AddVDI(ctx, NewVDI("orphan"))
		assert.ErrorIs(t, err, store.ErrNotFound)

		err = s.DeleteVDIFromMetadata(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)

		err = s.UpdateSR(ctx, metadata.SRUpdate{NameLabel: metadata.String("x")})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func (suite *StoreTestSuite) testRoundTrip(test *testing.T) {
	test.Run("AllFields", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		sr := NewSR()
		vdis := []metadata.VDIInfo{
			NewVDI("plain"),
			{
				UUID:            "11111111-2222-3333-4444-555555555555",
				NameLabel:       "snap <of> plain & co",
				NameDescription: "nightly \"backup\"",
				IsASnapshot:     true,
				SnapshotOf:      "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
				SnapshotTime:    "20240102T03:04:05Z",
				Type:            "user",
				VDIType:         "vhd",
				ReadOnly:        true,
				Managed:         false,
			},
			{
				UUID:           "99999999-8888-7777-6666-555555555555",
				NameLabel:      "pool metadata",
				Type:           metadata.VDITypeMetadata,
				VDIType:        "raw",
				MetadataOfPool: "0a1b2c3d-0000-0000-0000-000000000000",
				Managed:        true,
			},
			NewVDI("ünïcødé ラベル"),
		}
		initStore(t, s, sr, vdis...)

		gotSR, got := getMetadata(t, s)
		assert.Equal(t, sr, gotSR)
		require.Len(t, got, len(vdis))

		for i, want := range vdis {
			off := int64(firstRecordOffset + i*recordSize)
			vdi, ok := got[off]
			require.True(t, ok, "no record at offset %d", off)
			assert.Equal(t, off, vdi.Offset)
			assert.False(t, vdi.Deleted)
			assert.Equal(t, Comparable(want), Comparable(vdi))
		}
	})

	test.Run("UsedLengthCoversRecords", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		initStore(t, s, NewSR(), NewVDIs(3)...)
		assert.Equal(t, int64(firstRecordOffset+3*recordSize), usedLength(t, s))
	})

	test.Run("NoVDIs", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		sr := NewSR()
		initStore(t, s, sr)

		gotSR, vdis := getMetadata(t, s)
		assert.Equal(t, sr, gotSR)
		assert.Empty(t, vdis)
		assert.Equal(t, int64(firstRecordOffset), usedLength(t, s))
	})
}

func (suite *StoreTestSuite) testWriteMetadata(test *testing.T) {
	test.Run("SecondWriteFails", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		sr := NewSR()
		initStore(t, s, sr, NewVDIs(2)...)

		err := s.WriteMetadata(context.Background(), NewSR(), nil)
		assert.ErrorIs(t, err, store.ErrAlreadyExists)

		gotSR, vdis := getMetadata(t, s)
		assert.Equal(t, sr, gotSR)
		assert.Len(t, vdis, 2)
	})

	test.Run("EmptyUUIDRejected", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		vdi := NewVDI("nameless")
		vdi.UUID = ""
		err := s.WriteMetadata(context.Background(), NewSR(), []metadata.VDIInfo{vdi})
		assert.ErrorIs(t, err, store.ErrInvalidArgument)
		assert.Equal(t, int64(0), usedLength(t, s))
	})

	test.Run("DuplicateUUIDRejected", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		vdi := NewVDI("twice")
		err := s.WriteMetadata(context.Background(), NewSR(), []metadata.VDIInfo{vdi, vdi})
		assert.ErrorIs(t, err, store.ErrInvalidArgument)
	})

	test.Run("DeletedFlagPreserved", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		vdis := NewVDIs(2)
		vdis[0].Deleted = true
		initStore(t, s, NewSR(), vdis...)

		_, got := getMetadata(t, s)
		require.Len(t, got, 1)
		assert.Equal(t, vdis[1].UUID, got[firstRecordOffset+recordSize].UUID)

		// The deleted record is a hole AddVDI reuses.
		assert.Equal(t, int64(firstRecordOffset), addVDI(t, s, NewVDI("reuse")))
	})
}

func (suite *StoreTestSuite) testGetVDI(test *testing.T) {
	test.Run("Found", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		vdis := NewVDIs(3)
		initStore(t, s, NewSR(), vdis...)

		vdi, err := s.GetVDI(context.Background(), vdis[2].UUID)
		require.NoError(t, err)
		assert.Equal(t, Comparable(vdis[2]), Comparable(vdi))
		assert.Equal(t, int64(firstRecordOffset+2*recordSize), vdi.Offset)
	})

	test.Run("NotFound", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		initStore(t, s, NewSR(), NewVDIs(1)...)

		_, err := s.GetVDI(context.Background(), "no-such-vdi")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	test.Run("DeletedNotFound", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		vdis := NewVDIs(2)
		initStore(t, s, NewSR(), vdis...)
		require.NoError(t, s.DeleteVDIFromMetadata(context.Background(), vdis[0].UUID))

		_, err := s.GetVDI(context.Background(), vdis[0].UUID)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func (suite *StoreTestSuite) testFindMetadataVDI(test *testing.T) {
	test.Run("SkipsSnapshots", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		snap := NewVDI("metadata snapshot")
		snap.Type = metadata.VDITypeMetadata
		snap.IsASnapshot = true

		meta := NewVDI("metadata")
		meta.Type = metadata.VDITypeMetadata

		initStore(t, s, NewSR(), NewVDI("user"), snap, meta)

		got, found, err := s.FindMetadataVDI(context.Background())
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, meta.UUID, got)
	})

	test.Run("NoneAmongUserVDIs", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		initStore(t, s, NewSR(), NewVDIs(3)...)

		_, found, err := s.FindMetadataVDI(context.Background())
		require.NoError(t, err)
		assert.False(t, found)
	})

	test.Run("IgnoresDeleted", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		meta := NewVDI("metadata")
		meta.Type = metadata.VDITypeMetadata
		initStore(t, s, NewSR(), meta, NewVDI("user"))
		require.NoError(t, s.DeleteVDIFromMetadata(context.Background(), meta.UUID))

		_, found, err := s.FindMetadataVDI(context.Background())
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func (suite *StoreTestSuite) testHealthcheck(test *testing.T) {
	test.Run("EmptyStore", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		assert.NoError(t, s.Healthcheck(context.Background()))
	})

	test.Run("InitializedStore", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		initStore(t, s, NewSR(), NewVDIs(1)...)
		assert.NoError(t, s.Healthcheck(context.Background()))
	})

	test.Run("CancelledContext", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.ErrorIs(t, s.Healthcheck(ctx), context.Canceled)
		_, _, err := s.GetMetadata(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
