package testing

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/srmeta/pkg/store"
)

// RunValidationTests checks argument validation on every operation.
func (suite *JournalTestSuite) RunValidationTests(t *testing.T) {
	t.Run("BadKeys", suite.testBadKeys)
	t.Run("KeysTooLong", suite.testKeysTooLong)
}

func (suite *JournalTestSuite) testBadKeys(t *testing.T) {
	j := suite.newJournal(t)
	ctx := context.Background()

	cases := []struct {
		name string
		typ  string
		id   string
	}{
		{"EmptyType", "", "id"},
		{"EmptyID", "clone", ""},
		{"SeparatorInType", "a_b", "id"},
		{"SeparatorInID", "clone", "a_b"},
		{"SlashInID", "clone", "a/b"},
		{"SpaceInType", "a b", "id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, j.Create(ctx, tc.typ, tc.id, "v"), store.ErrInvalidArgument)
			assert.ErrorIs(t, j.Remove(ctx, tc.typ, tc.id), store.ErrInvalidArgument)

			_, _, err := j.Get(ctx, tc.typ, tc.id)
			assert.ErrorIs(t, err, store.ErrInvalidArgument)
		})
	}

	_, err := j.GetAll(ctx, "")
	assert.ErrorIs(t, err, store.ErrInvalidArgument)
	_, err = j.HasJournals(ctx, "a_b")
	assert.ErrorIs(t, err, store.ErrInvalidArgument)
}

func (suite *JournalTestSuite) testKeysTooLong(t *testing.T) {
	objects := suite.NewObjectStore(t)
	t.Cleanup(func() { _ = objects.Close() })
	j := newJournalOver(t, objects)
	ctx := context.Background()

	id := strings.Repeat("x", objects.MaxNameLen())
	err := j.Create(ctx, "clone", id, "v")
	assert.ErrorIs(t, err, store.ErrInvalidArgument)

	names, err := objects.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)
}
