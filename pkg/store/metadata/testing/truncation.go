package testing

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/srmeta/pkg/store/metadata"
)

// RunTruncationTests checks that over-long labels and descriptions come back
// as valid, strictly shorter prefixes.
func (suite *StoreTestSuite) RunTruncationTests(t *testing.T) {
	t.Run("VDILabel", suite.testTruncateVDILabel)
	t.Run("VDIBoth", suite.testTruncateVDIBoth)
	t.Run("VDIShortLabelKept", suite.testTruncateKeepsShortField)
	t.Run("VDIEscaped", suite.testTruncateEscaped)
	t.Run("VDIUpdate", suite.testTruncateOnUpdate)
	t.Run("SRLabel", suite.testTruncateSRLabel)
}

// assertTruncatedPrefix fails unless got is a valid UTF-8 prefix of input that
// is strictly shorter than it.
func assertTruncatedPrefix(t *testing.T, input, got string) {
	t.Helper()
	assert.True(t, utf8.ValidString(got), "truncated value is not valid UTF-8")
	assert.True(t, strings.HasPrefix(input, got), "truncated value is not a prefix of the input")
	assert.Less(t, len(got), len(input))
}

func (suite *StoreTestSuite) roundTripVDI(t *testing.T, vdi metadata.VDIInfo) metadata.VDIInfo {
	t.Helper()
	s := suite.NewStore(t)
	closeOnCleanup(t, s)

	initStore(t, s, NewSR(), vdi)
	got, err := s.GetVDI(context.Background(), vdi.UUID)
	require.NoError(t, err)
	return got
}

func (suite *StoreTestSuite) testTruncateVDILabel(t *testing.T) {
	vdi := NewVDI(strings.Repeat("é", 400))
	vdi.NameDescription = ""

	got := suite.roundTripVDI(t, vdi)
	assertTruncatedPrefix(t, vdi.NameLabel, got.NameLabel)
	assert.Equal(t, "", got.NameDescription)
	assert.Equal(t, vdi.Type, got.Type)
}

func (suite *StoreTestSuite) testTruncateVDIBoth(t *testing.T) {
	vdi := NewVDI(strings.Repeat("ラ", 200))
	vdi.NameDescription = strings.Repeat("ü", 300)

	got := suite.roundTripVDI(t, vdi)
	assertTruncatedPrefix(t, vdi.NameLabel, got.NameLabel)
	assertTruncatedPrefix(t, vdi.NameDescription, got.NameDescription)

	// Both exceed half the budget, so both got the same share.
	assert.InDelta(t, len(got.NameLabel), len(got.NameDescription), 3)
}

func (suite *StoreTestSuite) testTruncateKeepsShortField(t *testing.T) {
	vdi := NewVDI(strings.Repeat("l", 100))
	vdi.NameDescription = strings.Repeat("d", 400)

	got := suite.roundTripVDI(t, vdi)
	assert.Equal(t, vdi.NameLabel, got.NameLabel)
	assertTruncatedPrefix(t, vdi.NameDescription, got.NameDescription)
}

func (suite *StoreTestSuite) testTruncateEscaped(t *testing.T) {
	vdi := NewVDI(strings.Repeat("<&>", 200))
	vdi.NameDescription = "ok"

	got := suite.roundTripVDI(t, vdi)
	assertTruncatedPrefix(t, vdi.NameLabel, got.NameLabel)
	assert.Equal(t, "ok", got.NameDescription)
}

func (suite *StoreTestSuite) testTruncateOnUpdate(t *testing.T) {
	s := suite.NewStore(t)
	closeOnCleanup(t, s)

	vdi := NewVDI("short")
	initStore(t, s, NewSR(), vdi)

	long := strings.Repeat("ß", 600)
	err := s.UpdateVDI(context.Background(), metadata.VDIUpdate{
		UUID:      vdi.UUID,
		NameLabel: metadata.String(long),
	})
	require.NoError(t, err)

	got, err := s.GetVDI(context.Background(), vdi.UUID)
	require.NoError(t, err)
	assertTruncatedPrefix(t, long, got.NameLabel)
}

func (suite *StoreTestSuite) testTruncateSRLabel(t *testing.T) {
	s := suite.NewStore(t)
	closeOnCleanup(t, s)

	sr := NewSR()
	sr.NameLabel = strings.Repeat("€", 300)
	sr.NameDescription = strings.Repeat("ñ&", 300)
	initStore(t, s, sr)

	got, _ := getMetadata(t, s)
	assertTruncatedPrefix(t, sr.NameLabel, got.NameLabel)
	assertTruncatedPrefix(t, sr.NameDescription, got.NameDescription)
	assert.Equal(t, sr.UUID, got.UUID)
}
