package memory

import (
	"testing"

	"github.com/marmos91/srmeta/pkg/store/journal"
	journaltesting "github.com/marmos91/srmeta/pkg/store/journal/testing"
)

func TestMemoryJournal(t *testing.T) {
	suite := &journaltesting.JournalTestSuite{
		NewObjectStore: func(t *testing.T) journal.ObjectStore {
			return New(0)
		},
	}
	suite.Run(t)
}

func TestMemoryJournalShortNames(t *testing.T) {
	suite := &journaltesting.JournalTestSuite{
		NewObjectStore: func(t *testing.T) journal.ObjectStore {
			return New(64)
		},
	}
	suite.Run(t)
}
