package badger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/srmeta/pkg/store"
	"github.com/marmos91/srmeta/pkg/store/journal"
	journaltesting "github.com/marmos91/srmeta/pkg/store/journal/testing"
)

func TestBadgerJournal(t *testing.T) {
	suite := &journaltesting.JournalTestSuite{
		NewObjectStore: func(t *testing.T) journal.ObjectStore {
			path := filepath.Join(t.TempDir(), "journal.db")
			s, err := New(context.Background(), Config{DBPath: path})
			require.NoError(t, err)
			return s
		},
		Reopen: func(t *testing.T, objects journal.ObjectStore) journal.ObjectStore {
			path := objects.(*Store).Path()
			require.NoError(t, objects.Close())

			s, err := New(context.Background(), Config{DBPath: path})
			require.NoError(t, err)
			return s
		},
	}
	suite.Run(t)
}

func TestBadgerJournalInMemory(t *testing.T) {
	suite := &journaltesting.JournalTestSuite{
		NewObjectStore: func(t *testing.T) journal.ObjectStore {
			s, err := New(context.Background(), Config{InMemory: true})
			require.NoError(t, err)
			return s
		},
	}
	suite.Run(t)
}

func TestMaxNameLen(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	assert.Equal(t, DefaultMaxNameLen, s.MaxNameLen())

	long := make([]byte, DefaultMaxNameLen+1)
	for i := range long {
		long[i] = 'n'
	}
	assert.ErrorIs(t, s.Create(ctx, string(long)), store.ErrInvalidArgument)

	custom, err := New(ctx, Config{InMemory: true, MaxNameLen: 200})
	require.NoError(t, err)
	t.Cleanup(func() { _ = custom.Close() })
	assert.Equal(t, 200, custom.MaxNameLen())
}

func TestListDoesNotCrossPrefix(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Create(ctx, "journal_a_1_o"))
	require.NoError(t, s.Create(ctx, "journal_b_1_o"))

	names, err := s.List(ctx, "journal_a_")
	require.NoError(t, err)
	assert.Equal(t, []string{"journal_a_1_o"}, names)
}
