package testing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/srmeta/pkg/store"
)

// RunSlotTests executes the slot allocation tests: append, reuse of deleted
// slots and tail shrinking.
func (suite *StoreTestSuite) RunSlotTests(t *testing.T) {
	t.Run("AddVDI", suite.testAddVDI)
	t.Run("DeleteVDI", suite.testDeleteVDI)
	t.Run("SlotReuse", suite.testSlotReuse)
	t.Run("Scenario", suite.testScenario)
}

func (suite *StoreTestSuite) testAddVDI(test *testing.T) {
	test.Run("Appends", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		initStore(t, s, NewSR(), NewVDIs(2)...)
		before := usedLength(t, s)

		vdi := NewVDI("new")
		off := addVDI(t, s, vdi)
		assert.Equal(t, before, off)
		assert.Equal(t, before+recordSize, usedLength(t, s))

		got, err := s.GetVDI(context.Background(), vdi.UUID)
		require.NoError(t, err)
		assert.Equal(t, Comparable(vdi), Comparable(got))
		assert.Equal(t, off, got.Offset)
	})

	test.Run("ClearsDeletedFlag", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		initStore(t, s, NewSR())

		vdi := NewVDI("flagged")
		vdi.Deleted = true
		addVDI(t, s, vdi)

		_, vdis := getMetadata(t, s)
		assert.Contains(t, ByUUID(vdis), vdi.UUID)
	})

	test.Run("DuplicateUUID", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		vdi := NewVDI("dup")
		initStore(t, s, NewSR(), vdi)
		before := usedLength(t, s)

		_, err := s.AddVDI(context.Background(), vdi)
		assert.ErrorIs(t, err, store.ErrAlreadyExists)
		assert.Equal(t, before, usedLength(t, s))
	})

	test.Run("ReaddAfterDelete", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		vdis := NewVDIs(2)
		initStore(t, s, NewSR(), vdis...)
		require.NoError(t, s.DeleteVDIFromMetadata(context.Background(), vdis[0].UUID))

		assert.Equal(t, int64(firstRecordOffset), addVDI(t, s, vdis[0]))
	})

	test.Run("EmptyUUID", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		initStore(t, s, NewSR())

		vdi := NewVDI("nameless")
		vdi.UUID = ""
		_, err := s.AddVDI(context.Background(), vdi)
		assert.ErrorIs(t, err, store.ErrInvalidArgument)
	})
}

func (suite *StoreTestSuite) testDeleteVDI(test *testing.T) {
	test.Run("TailShrinks", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		vdis := NewVDIs(3)
		initStore(t, s, NewSR(), vdis...)
		before := usedLength(t, s)

		require.NoError(t, s.DeleteVDIFromMetadata(context.Background(), vdis[2].UUID))
		assert.Equal(t, before-recordSize, usedLength(t, s))

		_, got := getMetadata(t, s)
		assert.Len(t, got, 2)
		assert.NotContains(t, ByUUID(got), vdis[2].UUID)
	})

	test.Run("InteriorDoesNotShrink", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		vdis := NewVDIs(3)
		initStore(t, s, NewSR(), vdis...)
		before := usedLength(t, s)

		require.NoError(t, s.DeleteVDIFromMetadata(context.Background(), vdis[1].UUID))
		assert.Equal(t, before, usedLength(t, s))

		_, got := getMetadata(t, s)
		assert.Len(t, got, 2)
		assert.NotContains(t, ByUUID(got), vdis[1].UUID)
	})

	test.Run("OnlyTailIsReclaimed", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)
		ctx := context.Background()

		vdis := NewVDIs(3)
		initStore(t, s, NewSR(), vdis...)

		// An interior hole followed by a tail delete: used-length drops by one
		// record only, the hole below the new tail stays.
		require.NoError(t, s.DeleteVDIFromMetadata(ctx, vdis[1].UUID))
		require.NoError(t, s.DeleteVDIFromMetadata(ctx, vdis[2].UUID))
		assert.Equal(t, int64(firstRecordOffset+2*recordSize), usedLength(t, s))

		assert.Equal(t, int64(firstRecordOffset+recordSize), addVDI(t, s, NewVDI("fills hole")))
	})

	test.Run("UnknownUUID", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		initStore(t, s, NewSR(), NewVDIs(1)...)

		err := s.DeleteVDIFromMetadata(context.Background(), "no-such-vdi")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	test.Run("Twice", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		vdis := NewVDIs(2)
		initStore(t, s, NewSR(), vdis...)
		require.NoError(t, s.DeleteVDIFromMetadata(context.Background(), vdis[0].UUID))

		err := s.DeleteVDIFromMetadata(context.Background(), vdis[0].UUID)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	test.Run("LastRecord", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		vdi := NewVDI("only")
		initStore(t, s, NewSR(), vdi)

		require.NoError(t, s.DeleteVDIFromMetadata(context.Background(), vdi.UUID))
		assert.Equal(t, int64(firstRecordOffset), usedLength(t, s))

		_, got := getMetadata(t, s)
		assert.Empty(t, got)
	})
}

func (suite *StoreTestSuite) testSlotReuse(test *testing.T) {
	test.Run("NoGrowth", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		vdis := NewVDIs(5)
		initStore(t, s, NewSR(), vdis...)
		before := usedLength(t, s)

		require.NoError(t, s.DeleteVDIFromMetadata(context.Background(), vdis[2].UUID))
		off := addVDI(t, s, NewVDI("replacement"))

		assert.Equal(t, int64(firstRecordOffset+2*recordSize), off)
		assert.Equal(t, before, usedLength(t, s))
	})

	test.Run("FirstHoleWins", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)
		ctx := context.Background()

		vdis := NewVDIs(5)
		initStore(t, s, NewSR(), vdis...)

		require.NoError(t, s.DeleteVDIFromMetadata(ctx, vdis[3].UUID))
		require.NoError(t, s.DeleteVDIFromMetadata(ctx, vdis[1].UUID))

		assert.Equal(t, int64(firstRecordOffset+1*recordSize), addVDI(t, s, NewVDI("a")))
		assert.Equal(t, int64(firstRecordOffset+3*recordSize), addVDI(t, s, NewVDI("b")))
		assert.Equal(t, int64(firstRecordOffset+5*recordSize), addVDI(t, s, NewVDI("c")))
	})

	test.Run("NeighboursUntouched", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		vdis := NewVDIs(3)
		initStore(t, s, NewSR(), vdis...)
		require.NoError(t, s.DeleteVDIFromMetadata(context.Background(), vdis[1].UUID))

		repl := NewVDI("replacement")
		addVDI(t, s, repl)

		_, got := getMetadata(t, s)
		byUUID := ByUUID(got)
		require.Len(t, byUUID, 3)
		assert.Equal(t, Comparable(vdis[0]), Comparable(byUUID[vdis[0].UUID]))
		assert.Equal(t, Comparable(vdis[2]), Comparable(byUUID[vdis[2].UUID]))
		assert.Equal(t, Comparable(repl), Comparable(byUUID[repl.UUID]))
	})
}

// testScenario: create SR with no VDIs, add A and B, delete A, add C. C takes
// A's slot and the store stays two records long.
func (suite *StoreTestSuite) testScenario(t *testing.T) {
	s := suite.NewStore(t)
	closeOnCleanup(t, s)
	ctx := context.Background()

	initStore(t, s, NewSR())

	a := NewVDI("disk-A")
	b := NewVDI("disk-B")
	c := NewVDI("disk-C")

	offA := addVDI(t, s, a)
	addVDI(t, s, b)
	require.NoError(t, s.DeleteVDIFromMetadata(ctx, a.UUID))
	offC := addVDI(t, s, c)

	assert.Equal(t, offA, offC)
	assert.Equal(t, offC, offsetOf(t, s, c.UUID))
	assert.Equal(t, int64(firstRecordOffset+2*recordSize), usedLength(t, s))

	_, got := getMetadata(t, s)
	byUUID := ByUUID(got)
	assert.Len(t, byUUID, 2)
	assert.Contains(t, byUUID, b.UUID)
	assert.Contains(t, byUUID, c.UUID)
	assert.NotContains(t, byUUID, a.UUID)
}
