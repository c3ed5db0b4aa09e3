package testing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/srmeta/pkg/store"
	"github.com/marmos91/srmeta/pkg/store/metadata"
)

// RunUpdateTests executes the SR and VDI update tests.
func (suite *StoreTestSuite) RunUpdateTests(t *testing.T) {
	t.Run("UpdateSR", suite.testUpdateSR)
	t.Run("UpdateVDI", suite.testUpdateVDI)
	t.Run("UpdateMetadata", suite.testUpdateMetadata)
}

func (suite *StoreTestSuite) testUpdateSR(test *testing.T) {
	test.Run("LabelOnly", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		sr := NewSR()
		vdis := NewVDIs(2)
		initStore(t, s, sr, vdis...)
		_, before := getMetadata(t, s)

		err := s.UpdateSR(context.Background(), metadata.SRUpdate{NameLabel: metadata.String("renamed")})
		require.NoError(t, err)

		gotSR, after := getMetadata(t, s)
		want := sr
		want.NameLabel = "renamed"
		assert.Equal(t, want, gotSR)
		assert.Equal(t, before, after)
	})

	test.Run("DescriptionOnly", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		sr := NewSR()
		initStore(t, s, sr)

		err := s.UpdateSR(context.Background(), metadata.SRUpdate{NameDescription: metadata.String("new description")})
		require.NoError(t, err)

		gotSR, _ := getMetadata(t, s)
		assert.Equal(t, sr.NameLabel, gotSR.NameLabel)
		assert.Equal(t, "new description", gotSR.NameDescription)
		assert.Equal(t, sr.UUID, gotSR.UUID)
		assert.Equal(t, sr.Allocation, gotSR.Allocation)
	})

	test.Run("Both", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		sr := NewSR()
		initStore(t, s, sr, NewVDIs(1)...)

		err := s.UpdateSR(context.Background(), metadata.SRUpdate{
			NameLabel:       metadata.String("label & more"),
			NameDescription: metadata.String(""),
		})
		require.NoError(t, err)

		gotSR, _ := getMetadata(t, s)
		assert.Equal(t, "label & more", gotSR.NameLabel)
		assert.Equal(t, "", gotSR.NameDescription)
	})

	test.Run("EmptyUpdateIsNoop", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		sr := NewSR()
		initStore(t, s, sr)

		require.NoError(t, s.UpdateSR(context.Background(), metadata.SRUpdate{}))
		gotSR, _ := getMetadata(t, s)
		assert.Equal(t, sr, gotSR)
	})
}

func (suite *StoreTestSuite) testUpdateVDI(test *testing.T) {
	test.Run("OthersUnchanged", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		vdis := NewVDIs(4)
		initStore(t, s, NewSR(), vdis...)
		_, before := getMetadata(t, s)

		target := vdis[1]
		err := s.UpdateVDI(context.Background(), metadata.VDIUpdate{
			UUID:        target.UUID,
			NameLabel:   metadata.String("renamed"),
			ReadOnly:    metadata.Bool(true),
			SnapshotOf:  metadata.String(vdis[0].UUID),
			IsASnapshot: metadata.Bool(true),
		})
		require.NoError(t, err)

		_, after := getMetadata(t, s)
		require.Len(t, after, len(before))
		for off, vdi := range after {
			if vdi.UUID != target.UUID {
				assert.Equal(t, before[off], vdi)
				continue
			}
			want := before[off]
			want.NameLabel = "renamed"
			want.ReadOnly = true
			want.SnapshotOf = vdis[0].UUID
			want.IsASnapshot = true
			assert.Equal(t, want, vdi)
		}
	})

	test.Run("LabelOnlyKeepsScalars", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		vdi := NewVDI("disk")
		vdi.ReadOnly = true
		vdi.SnapshotTime = "20240101T00:00:00Z"
		initStore(t, s, NewSR(), vdi)

		err := s.UpdateVDI(context.Background(), metadata.VDIUpdate{
			UUID:            vdi.UUID,
			NameDescription: metadata.String("updated"),
		})
		require.NoError(t, err)

		got, err := s.GetVDI(context.Background(), vdi.UUID)
		require.NoError(t, err)
		want := vdi
		want.NameDescription = "updated"
		assert.Equal(t, Comparable(want), Comparable(got))
	})

	test.Run("ScalarsOnlyKeepLabel", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		vdi := NewVDI("disk")
		initStore(t, s, NewSR(), vdi)

		err := s.UpdateVDI(context.Background(), metadata.VDIUpdate{
			UUID:    vdi.UUID,
			Managed: metadata.Bool(false),
			VDIType: metadata.String("raw"),
		})
		require.NoError(t, err)

		got, err := s.GetVDI(context.Background(), vdi.UUID)
		require.NoError(t, err)
		want := vdi
		want.Managed = false
		want.VDIType = "raw"
		assert.Equal(t, Comparable(want), Comparable(got))
	})

	test.Run("UnknownUUID", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		initStore(t, s, NewSR(), NewVDIs(1)...)

		err := s.UpdateVDI(context.Background(), metadata.VDIUpdate{
			UUID:      "no-such-vdi",
			NameLabel: metadata.String("x"),
		})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	test.Run("DeletedUUID", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		vdis := NewVDIs(2)
		initStore(t, s, NewSR(), vdis...)
		require.NoError(t, s.DeleteVDIFromMetadata(context.Background(), vdis[0].UUID))

		err := s.UpdateVDI(context.Background(), metadata.VDIUpdate{
			UUID:      vdis[0].UUID,
			NameLabel: metadata.String("ghost"),
		})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	test.Run("EmptyUUID", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		initStore(t, s, NewSR(), NewVDIs(1)...)

		err := s.UpdateVDI(context.Background(), metadata.VDIUpdate{NameLabel: metadata.String("x")})
		assert.ErrorIs(t, err, store.ErrInvalidArgument)
	})
}

func (suite *StoreTestSuite) testUpdateMetadata(test *testing.T) {
	test.Run("RoutesByObjectType", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)
		ctx := context.Background()

		vdi := NewVDI("disk")
		initStore(t, s, NewSR(), vdi)

		require.NoError(t, s.UpdateMetadata(ctx, metadata.SRUpdate{NameLabel: metadata.String("sr")}))
		require.NoError(t, s.UpdateMetadata(ctx, &metadata.VDIUpdate{
			UUID:      vdi.UUID,
			NameLabel: metadata.String("vdi"),
		}))

		sr, vdis := getMetadata(t, s)
		assert.Equal(t, "sr", sr.NameLabel)
		assert.Equal(t, "vdi", ByUUID(vdis)[vdi.UUID].NameLabel)
	})

	test.Run("NilUpdate", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		initStore(t, s, NewSR())

		err := s.UpdateMetadata(context.Background(), nil)
		assert.ErrorIs(t, err, store.ErrInvalidArgument)

		var u *metadata.VDIUpdate
		err = s.UpdateMetadata(context.Background(), u)
		assert.ErrorIs(t, err, store.ErrInvalidArgument)
	})
}
