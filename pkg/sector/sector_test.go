package sector

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/srmeta/pkg/store"
)

func TestHeader(t *testing.T) {
	t.Run("Build", func(t *testing.T) {
		h := BuildHeader(2048, MajorVersion, MinorVersion)
		require.Len(t, h, Size)
		assert.Equal(t, "XSSM:2048      :1:2", strings.TrimRight(string(h), " "))
	})

	t.Run("WideLength", func(t *testing.T) {
		h := BuildHeader(12345678901, 1, 2)
		assert.True(t, strings.HasPrefix(string(h), "XSSM:12345678901:1:2 "))
	})

	t.Run("RoundTrip", func(t *testing.T) {
		for _, length := range []int64{0, 2048, 3072, 1 << 30} {
			got, err := UnpackHeader(BuildHeader(length, 1, 7))
			require.NoError(t, err)
			assert.Equal(t, Header{Magic: Magic, Length: length, Major: 1, Minor: 7}, got)
		}
	})

	t.Run("Corrupt", func(t *testing.T) {
		for name, text := range map[string]string{
			"Empty":        "",
			"BadMagic":     "XXXX:2048:1:2",
			"TooFewFields": "XSSM:2048:1",
			"TooMany":      "XSSM:2048:1:2:3",
			"BadLength":    "XSSM:abc:1:2",
			"Negative":     "XSSM:-1:1:2",
			"BadMajor":     "XSSM:2048:x:2",
			"BadMinor":     "XSSM:2048:1:y",
		} {
			t.Run(name, func(t *testing.T) {
				_, err := UnpackHeader(Pad(text))
				assert.ErrorIs(t, err, store.ErrCorrupt)
			})
		}
	})
}

func TestBuildXMLSector(t *testing.T) {
	t.Run("Short", func(t *testing.T) {
		b := BuildXMLSector("name_label", "hello")
		require.Len(t, b, Size)
		assert.Equal(t, "<name_label>hello</name_label>", strings.TrimRight(string(b), " "))
	})

	t.Run("TruncatedAtRuneBoundary", func(t *testing.T) {
		value := strings.Repeat("é", 300)
		b := BuildXMLSector("name_label", value)
		require.Len(t, b, Size)

		text := strings.TrimRight(string(b), " ")
		require.True(t, strings.HasPrefix(text, "<name_label>"))
		require.True(t, strings.HasSuffix(text, "</name_label>"))

		inner := strings.TrimSuffix(strings.TrimPrefix(text, "<name_label>"), "</name_label>")
		assert.True(t, utf8.ValidString(inner))
		assert.True(t, strings.HasPrefix(value, inner))
		assert.Less(t, len(inner), len(value))
	})

	t.Run("TruncatedAtEntityBoundary", func(t *testing.T) {
		value := Escape(strings.Repeat("&", 200))
		b := BuildXMLSector("name_description", value)

		text := strings.TrimRight(string(b), " ")
		inner := strings.TrimSuffix(strings.TrimPrefix(text, "<name_description>"), "</name_description>")
		assert.True(t, strings.HasSuffix(inner, "&amp;"))
		assert.Zero(t, len(inner)%len("&amp;"))
	})
}

func TestBlockAlignedRange(t *testing.T) {
	tests := []struct {
		name         string
		blockSize    int64
		offset       int64
		length       int64
		lower, upper int64
	}{
		{"Aligned", 512, 1024, 512, 1024, 1536},
		{"Record", 512, 2048, 1024, 2048, 3072},
		{"Unaligned", 512, 100, 10, 0, 512},
		{"Straddle", 512, 500, 24, 0, 1024},
		{"4KHeader", 4096, 0, 512, 0, 4096},
		{"4KRecord", 4096, 3072, 1024, 0, 4096},
		{"4KSpan", 4096, 4000, 1024, 0, 8192},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lower, upper := BlockAlignedRange(tt.blockSize, tt.offset, tt.length)
			assert.Equal(t, tt.lower, lower)
			assert.Equal(t, tt.upper, upper)
		})
	}

	assert.Panics(t, func() { BlockAlignedRange(0, 0, 1) })
}

func TestUnicTrunc(t *testing.T) {
	s := "aé€😀" // 1 + 2 + 3 + 4 bytes

	assert.Equal(t, len(s), UnicTrunc(s, 100))
	assert.Equal(t, 0, UnicTrunc(s, 0))
	assert.Equal(t, 0, UnicTrunc(s, -3))
	assert.Equal(t, 1, UnicTrunc(s, 1))
	assert.Equal(t, 1, UnicTrunc(s, 2))
	assert.Equal(t, 3, UnicTrunc(s, 3))
	assert.Equal(t, 3, UnicTrunc(s, 5))
	assert.Equal(t, 6, UnicTrunc(s, 6))
	assert.Equal(t, 6, UnicTrunc(s, 9))
	assert.Equal(t, 10, UnicTrunc(s, 10))

	for budget := 0; budget <= len(s); budget++ {
		assert.True(t, utf8.ValidString(s[:UnicTrunc(s, budget)]), "budget %d", budget)
	}
}

func TestTruncateEscaped(t *testing.T) {
	s := "ab&amp;cd"

	assert.Equal(t, len(s), TruncateEscaped(s, 20))
	assert.Equal(t, 2, TruncateEscaped(s, 3))
	assert.Equal(t, 2, TruncateEscaped(s, 6))
	assert.Equal(t, 7, TruncateEscaped(s, 7))
	assert.Equal(t, 8, TruncateEscaped(s, 8))
}

func TestSplitBudget(t *testing.T) {
	t.Run("Fits", func(t *testing.T) {
		label, desc := SplitBudget("abc", "def", 10)
		assert.Equal(t, "abc", label)
		assert.Equal(t, "def", desc)
	})

	t.Run("BothLong", func(t *testing.T) {
		label, desc := SplitBudget(strings.Repeat("l", 50), strings.Repeat("d", 60), 40)
		assert.Len(t, label, 20)
		assert.Len(t, desc, 20)
	})

	t.Run("LabelLong", func(t *testing.T) {
		label, desc := SplitBudget(strings.Repeat("l", 50), "short", 40)
		assert.Equal(t, "short", desc)
		assert.Len(t, label, 35)
	})

	t.Run("DescriptionLong", func(t *testing.T) {
		label, desc := SplitBudget("short", strings.Repeat("d", 50), 40)
		assert.Equal(t, "short", label)
		assert.Len(t, desc, 35)
	})
}

func TestEscape(t *testing.T) {
	assert.Equal(t, "a &lt;b&gt; &amp; c", Escape("a <b> & c"))
	assert.Equal(t, "plain", Escape("plain"))
}

func TestPad(t *testing.T) {
	assert.Len(t, Pad("x"), Size)
	assert.Len(t, Pad(strings.Repeat("€", 200)), Size)
	assert.Equal(t, strings.Repeat(" ", Size), string(Blank()))
}
