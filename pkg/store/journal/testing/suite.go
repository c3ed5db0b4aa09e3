package testing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/srmeta/pkg/store/journal"
)

// JournalTestSuite is a test suite for journal.ObjectStore implementations,
// exercised through journal.Journal.
type JournalTestSuite struct {
	// NewObjectStore creates a fresh, empty object store for each test.
	NewObjectStore func(t *testing.T) journal.ObjectStore

	// Reopen closes objects and opens the same storage again. Persistence
	// tests are skipped when nil.
	Reopen func(t *testing.T, objects journal.ObjectStore) journal.ObjectStore
}

// Run executes all tests in the suite.
func (suite *JournalTestSuite) Run(test *testing.T) {
	test.Run("Basic", suite.RunBasicTests)
	test.Run("Encoding", suite.RunEncodingTests)
	test.Run("Faults", suite.RunFaultTests)
	test.Run("Validation", suite.RunValidationTests)
	test.Run("Persistence", suite.RunPersistenceTests)
}

// newJournal opens a journal over a fresh store, closed when t ends.
func (suite *JournalTestSuite) newJournal(t *testing.T) *journal.Journal {
	t.Helper()
	j := journal.New(suite.NewObjectStore(t), nil)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

// newJournalOver opens a journal over objects. The caller owns objects.
func newJournalOver(t *testing.T, objects journal.ObjectStore) *journal.Journal {
	t.Helper()
	return journal.New(objects, nil)
}

// failingPayloads refuses every payload read. HasJournals must still work.
type failingPayloads struct {
	journal.ObjectStore
}

var errPayloadRead = errors.New("payload read refused")

func (f failingPayloads) ReadPayload(context.Context, string) ([]byte, error) {
	return nil, errPayloadRead
}

func mustCreate(t *testing.T, j *journal.Journal, typ, id, value string) {
	t.Helper()
	require.NoError(t, j.Create(context.Background(), typ, id, value))
}

func mustGet(t *testing.T, j *journal.Journal, typ, id string) string {
	t.Helper()
	v, ok, err := j.Get(context.Background(), typ, id)
	require.NoError(t, err)
	require.True(t, ok, "expected entry %s/%s", typ, id)
	return v
}
