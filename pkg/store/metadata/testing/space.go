package testing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/srmeta/pkg/store"
)

// RunSpaceTests executes the capacity probe tests.
func (suite *StoreTestSuite) RunSpaceTests(t *testing.T) {
	t.Run("ProbeLeavesNoTrace", suite.testProbeLeavesNoTrace)
	t.Run("Arguments", suite.testSpaceArguments)
	t.Run("Exhausted", suite.testSpaceExhausted)
	t.Run("HolesCount", suite.testSpaceHolesCount)
}

func (suite *StoreTestSuite) testProbeLeavesNoTrace(t *testing.T) {
	s := suite.NewStore(t)
	closeOnCleanup(t, s)

	vdis := NewVDIs(3)
	initStore(t, s, NewSR(), vdis...)
	require.NoError(t, s.DeleteVDIFromMetadata(context.Background(), vdis[1].UUID))

	sr, before := getMetadata(t, s)
	length := usedLength(t, s)

	require.NoError(t, s.EnsureSpaceIsAvailableForVDIs(context.Background(), 4))

	afterSR, after := getMetadata(t, s)
	assert.Equal(t, sr, afterSR)
	assert.Equal(t, before, after)
	assert.Equal(t, length, usedLength(t, s))

	// The hole is still the first free slot.
	assert.Equal(t, int64(firstRecordOffset+recordSize), addVDI(t, s, NewVDI("after probe")))
}

func (suite *StoreTestSuite) testSpaceArguments(test *testing.T) {
	test.Run("ZeroIsNoop", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		initStore(t, s, NewSR())
		assert.NoError(t, s.EnsureSpaceIsAvailableForVDIs(context.Background(), 0))
	})

	test.Run("Negative", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		initStore(t, s, NewSR())
		err := s.EnsureSpaceIsAvailableForVDIs(context.Background(), -1)
		assert.ErrorIs(t, err, store.ErrInvalidArgument)
	})

	test.Run("EmptyStore", func(t *testing.T) {
		s := suite.NewStore(t)
		closeOnCleanup(t, s)

		err := s.EnsureSpaceIsAvailableForVDIs(context.Background(), 1)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func (suite *StoreTestSuite) testSpaceExhausted(t *testing.T) {
	if suite.NewStoreWithCapacity == nil {
		t.Skip("store has no configurable capacity")
	}

	// Room for exactly two records.
	s := suite.NewStoreWithCapacity(t, firstRecordOffset+2*recordSize)
	closeOnCleanup(t, s)

	initStore(t, s, NewSR(), NewVDI("one"))

	require.NoError(t, s.EnsureSpaceIsAvailableForVDIs(context.Background(), 1))

	err := s.EnsureSpaceIsAvailableForVDIs(context.Background(), 2)
	assert.ErrorIs(t, err, store.ErrNoSpace)

	addVDI(t, s, NewVDI("two"))
	err = s.EnsureSpaceIsAvailableForVDIs(context.Background(), 1)
	assert.ErrorIs(t, err, store.ErrNoSpace)

	_, err = s.AddVDI(context.Background(), NewVDI("three"))
	assert.ErrorIs(t, err, store.ErrNoSpace)
	assert.Equal(t, int64(firstRecordOffset+2*recordSize), usedLength(t, s))
}

func (suite *StoreTestSuite) testSpaceHolesCount(t *testing.T) {
	if suite.NewStoreWithCapacity == nil {
		t.Skip("store has no configurable capacity")
	}

	s := suite.NewStoreWithCapacity(t, firstRecordOffset+2*recordSize)
	closeOnCleanup(t, s)

	vdis := NewVDIs(2)
	initStore(t, s, NewSR(), vdis...)
	require.NoError(t, s.DeleteVDIFromMetadata(context.Background(), vdis[0].UUID))

	assert.NoError(t, s.EnsureSpaceIsAvailableForVDIs(context.Background(), 1))
	assert.ErrorIs(t, s.EnsureSpaceIsAvailableForVDIs(context.Background(), 2), store.ErrNoSpace)
}
