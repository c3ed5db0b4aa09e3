package testing

import (
	"testing"

	"github.com/marmos91/srmeta/pkg/store/metadata"
)

// StoreTestSuite is a test suite for metadata.Store implementations.
// It tests the interface contract, not implementation details, so it can be
// run against every backing volume.
type StoreTestSuite struct {
	// NewStore creates a fresh, never-written store for each test.
	NewStore func(t *testing.T) metadata.Store

	// NewStoreWithCapacity creates a fresh store whose backing volume holds at
	// most capacity bytes. Capacity tests are skipped when nil.
	NewStoreWithCapacity func(t *testing.T, capacity int64) metadata.Store
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(test *testing.T) {
	test.Run("ReadWrite", suite.RunReadWriteTests)
	test.Run("Update", suite.RunUpdateTests)
	test.Run("Slots", suite.RunSlotTests)
	test.Run("Truncation", suite.RunTruncationTests)
	test.Run("Space", suite.RunSpaceTests)
}
