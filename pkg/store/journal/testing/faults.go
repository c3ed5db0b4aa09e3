package testing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/srmeta/internal/fistpoint"
	"github.com/marmos91/srmeta/pkg/store"
	"github.com/marmos91/srmeta/pkg/store/journal"
)

// RunFaultTests injects failures around the payload write and checks that no
// partial entry is left behind.
func (suite *JournalTestSuite) RunFaultTests(t *testing.T) {
	for _, point := range []string{journal.FistCreateBeforePayload, journal.FistCreateAfterPayload} {
		t.Run(point, func(t *testing.T) {
			suite.testPayloadFault(t, point)
		})
	}
	t.Run("InlineIgnoresPayloadFaults", suite.testInlineIgnoresPayloadFaults)
	t.Run("TornPayload", suite.testTornPayload)
}

func (suite *JournalTestSuite) testPayloadFault(t *testing.T, point string) {
	objects := suite.NewObjectStore(t)
	t.Cleanup(func() { _ = objects.Close() })
	j := newJournalOver(t, objects)
	ctx := context.Background()

	fistpoint.Enable(point)
	t.Cleanup(func() { fistpoint.Disable(point) })

	err := j.Create(ctx, "clone", "vdi1", "needs payload")
	require.Error(t, err)
	assert.ErrorIs(t, err, fistpoint.ErrInjected)

	names, err := objects.List(ctx, "journal_")
	require.NoError(t, err)
	assert.Empty(t, names, "partial entry left behind")

	_, ok, err := j.Get(ctx, "clone", "vdi1")
	require.NoError(t, err)
	assert.False(t, ok)

	fistpoint.Disable(point)
	mustCreate(t, j, "clone", "vdi1", "needs payload")
	assert.Equal(t, "needs payload", mustGet(t, j, "clone", "vdi1"))
}

func (suite *JournalTestSuite) testInlineIgnoresPayloadFaults(t *testing.T) {
	j := suite.newJournal(t)

	fistpoint.Enable(journal.FistCreateBeforePayload)
	t.Cleanup(func() { fistpoint.Disable(journal.FistCreateBeforePayload) })

	mustCreate(t, j, "clone", "vdi1", "inline")
	assert.Equal(t, "inline", mustGet(t, j, "clone", "vdi1"))
}

// testTornPayload leaves an OutOfLine object without its payload, as a crash
// between object creation and the payload write would.
func (suite *JournalTestSuite) testTornPayload(t *testing.T) {
	objects := suite.NewObjectStore(t)
	t.Cleanup(func() { _ = objects.Close() })
	j := newJournalOver(t, objects)
	ctx := context.Background()

	mustCreate(t, j, "clone", "vdi1", "parent")
	mustCreate(t, j, "clone", "vdi2", "needs a payload")
	require.NoError(t, objects.Create(ctx, "journal_clone_vdi3_o"))

	all, err := j.GetAll(ctx, "clone")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"vdi1": "parent", "vdi2": "needs a payload"}, all)

	_, _, err = j.Get(ctx, "clone", "vdi3")
	assert.ErrorIs(t, err, store.ErrCorrupt)

	has, err := j.HasJournals(ctx, "vdi3")
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, j.Remove(ctx, "clone", "vdi3"))
	_, ok, err := j.Get(ctx, "clone", "vdi3")
	require.NoError(t, err)
	assert.False(t, ok)
}
