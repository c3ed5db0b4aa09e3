package testing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/srmeta/pkg/store"
)

// RunBasicTests covers create, get, remove, listing and id scans.
func (suite *JournalTestSuite) RunBasicTests(t *testing.T) {
	t.Run("CreateAndGet", suite.testCreateAndGet)
	t.Run("GetMissing", suite.testGetMissing)
	t.Run("CreateDuplicate", suite.testCreateDuplicate)
	t.Run("Remove", suite.testRemove)
	t.Run("RemoveMissing", suite.testRemoveMissing)
	t.Run("GetAll", suite.testGetAll)
	t.Run("HasJournals", suite.testHasJournals)
	t.Run("HasJournalsSkipsPayloads", suite.testHasJournalsSkipsPayloads)
}

func (suite *JournalTestSuite) testCreateAndGet(t *testing.T) {
	j := suite.newJournal(t)

	mustCreate(t, j, "clone", "vdi1", "parent-uuid")
	assert.Equal(t, "parent-uuid", mustGet(t, j, "clone", "vdi1"))
}

func (suite *JournalTestSuite) testGetMissing(t *testing.T) {
	j := suite.newJournal(t)

	v, ok, err := j.Get(context.Background(), "clone", "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, v)
}

func (suite *JournalTestSuite) testCreateDuplicate(t *testing.T) {
	j := suite.newJournal(t)
	ctx := context.Background()

	mustCreate(t, j, "clone", "vdi1", "a")

	err := j.Create(ctx, "clone", "vdi1", "b")
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	// A value needing the other variant still collides.
	err = j.Create(ctx, "clone", "vdi1", "has/slash")
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	assert.Equal(t, "a", mustGet(t, j, "clone", "vdi1"))
}

func (suite *JournalTestSuite) testRemove(t *testing.T) {
	j := suite.newJournal(t)
	ctx := context.Background()

	mustCreate(t, j, "clone", "vdi1", "inline-value")
	mustCreate(t, j, "relink", "vdi1", "out of line value")

	require.NoError(t, j.Remove(ctx, "clone", "vdi1"))
	require.NoError(t, j.Remove(ctx, "relink", "vdi1"))

	_, ok, err := j.Get(ctx, "clone", "vdi1")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = j.Get(ctx, "relink", "vdi1")
	require.NoError(t, err)
	assert.False(t, ok)

	// The key is free again.
	mustCreate(t, j, "clone", "vdi1", "again")
	assert.Equal(t, "again", mustGet(t, j, "clone", "vdi1"))
}

func (suite *JournalTestSuite) testRemoveMissing(t *testing.T) {
	j := suite.newJournal(t)

	err := j.Remove(context.Background(), "clone", "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func (suite *JournalTestSuite) testGetAll(t *testing.T) {
	j := suite.newJournal(t)
	ctx := context.Background()

	mustCreate(t, j, "clone", "vdi1", "p1")
	mustCreate(t, j, "clone", "vdi2", "with space")
	mustCreate(t, j, "clone", "vdi3", "")
	mustCreate(t, j, "clonex", "vdi4", "other type sharing a prefix")
	mustCreate(t, j, "relink", "vdi1", "r1")

	all, err := j.GetAll(ctx, "clone")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"vdi1": "p1",
		"vdi2": "with space",
		"vdi3": "",
	}, all)

	none, err := j.GetAll(ctx, "coalesce")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func (suite *JournalTestSuite) testHasJournals(t *testing.T) {
	j := suite.newJournal(t)
	ctx := context.Background()

	has, err := j.HasJournals(ctx, "vdi1")
	require.NoError(t, err)
	assert.False(t, has)

	mustCreate(t, j, "relink", "vdi1", "x")
	mustCreate(t, j, "clone", "vdi10", "y")

	has, err = j.HasJournals(ctx, "vdi1")
	require.NoError(t, err)
	assert.True(t, has)

	// No partial id matches.
	has, err = j.HasJournals(ctx, "vdi")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, j.Remove(ctx, "relink", "vdi1"))
	has, err = j.HasJournals(ctx, "vdi1")
	require.NoError(t, err)
	assert.False(t, has)
}

func (suite *JournalTestSuite) testHasJournalsSkipsPayloads(t *testing.T) {
	objects := suite.NewObjectStore(t)
	t.Cleanup(func() { _ = objects.Close() })
	j := newJournalOver(t, objects)
	mustCreate(t, j, "clone", "vdi1", "needs a payload: spaces")

	scanner := newJournalOver(t, failingPayloads{objects})

	has, err := scanner.HasJournals(context.Background(), "vdi1")
	require.NoError(t, err)
	assert.True(t, has)

	_, _, err = scanner.Get(context.Background(), "clone", "vdi1")
	assert.ErrorIs(t, err, errPayloadRead)
}
