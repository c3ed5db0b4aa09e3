package testing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/srmeta/pkg/store/journal"
)

// RunPersistenceTests checks that entries survive closing and reopening the
// object store.
func (suite *JournalTestSuite) RunPersistenceTests(t *testing.T) {
	if suite.Reopen == nil {
		t.Skip("object store is not persistent")
	}
	t.Run("Reopen", suite.testReopen)
}

func (suite *JournalTestSuite) testReopen(t *testing.T) {
	ctx := context.Background()
	objects := suite.NewObjectStore(t)
	j := newJournalOver(t, objects)

	mustCreate(t, j, "clone", "vdi1", "inline")
	mustCreate(t, j, "clone", "vdi2", "out of line\n")
	mustCreate(t, j, "relink", "vdi3", "x")
	require.NoError(t, j.Remove(ctx, "relink", "vdi3"))

	reopened := suite.Reopen(t, objects)
	t.Cleanup(func() { _ = reopened.Close() })
	j = journal.New(reopened, nil)

	all, err := j.GetAll(ctx, "clone")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"vdi1": "inline", "vdi2": "out of line\n"}, all)

	has, err := j.HasJournals(ctx, "vdi3")
	require.NoError(t, err)
	assert.False(t, has)
}
