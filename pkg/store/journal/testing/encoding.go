package testing

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunEncodingTests checks that values round-trip byte for byte whatever
// variant they are stored with.
func (suite *JournalTestSuite) RunEncodingTests(t *testing.T) {
	t.Run("InlineValues", suite.testInlineValues)
	t.Run("OutOfLineValues", suite.testOutOfLineValues)
	t.Run("LengthThreshold", suite.testLengthThreshold)
}

func (suite *JournalTestSuite) testInlineValues(t *testing.T) {
	j := suite.newJournal(t)

	values := map[string]string{
		"a": "3f2a9c1e-0000-4000-8000-000000000001",
		"b": "with_underscores_inside",
		"c": "k=v:x+y.z-w",
		"d": "",
	}
	for id, v := range values {
		mustCreate(t, j, "inline", id, v)
	}
	for id, v := range values {
		assert.Equal(t, v, mustGet(t, j, "inline", id), "id %s", id)
	}
}

func (suite *JournalTestSuite) testOutOfLineValues(t *testing.T) {
	j := suite.newJournal(t)

	values := map[string]string{
		"slash":   "/dev/VG_XenStorage-x/VHD-y",
		"newline": "line1\nline2\n",
		"space":   " leading and trailing ",
		"unicode": "café 日本",
		"long":    strings.Repeat("x", 4096),
		"digits":  "12 34\n",
	}
	for id, v := range values {
		mustCreate(t, j, "ool", id, v)
	}
	for id, v := range values {
		assert.Equal(t, v, mustGet(t, j, "ool", id), "id %s", id)
	}

	all, err := j.GetAll(context.Background(), "ool")
	require.NoError(t, err)
	assert.Equal(t, values, all)
}

func (suite *JournalTestSuite) testLengthThreshold(t *testing.T) {
	objects := suite.NewObjectStore(t)
	t.Cleanup(func() { _ = objects.Close() })
	j := newJournalOver(t, objects)

	prefix := len("journal_t_id_i_")
	limit := objects.MaxNameLen()

	fits := strings.Repeat("v", limit-prefix)
	tooLong := strings.Repeat("v", limit-prefix+1)

	mustCreate(t, j, "t", "id", fits)
	mustCreate(t, j, "t", "id2", tooLong)

	assert.Equal(t, fits, mustGet(t, j, "t", "id"))
	assert.Equal(t, tooLong, mustGet(t, j, "t", "id2"))

	names, err := objects.List(context.Background(), "journal_t_")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"journal_t_id_i_" + fits, "journal_t_id2_o"}, names)
}
