package journal

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/srmeta/pkg/store"
)

func TestEncodeName(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		max     int
		want    string
		variant Variant
	}{
		{"Inline", "abc", 255, "journal_clone_x_i_abc", Inline},
		{"InlineEmpty", "", 255, "journal_clone_x_i_", Inline},
		{"InlineUnderscore", "a_b", 255, "journal_clone_x_i_a_b", Inline},
		{"UnsafeChars", "a/b", 255, "journal_clone_x_o", OutOfLine},
		{"Space", "a b", 255, "journal_clone_x_o", OutOfLine},
		{"ExactFit", "abcd", len("journal_clone_x_i_abcd"), "journal_clone_x_i_abcd", Inline},
		{"OneOver", "abcde", len("journal_clone_x_i_abcd"), "journal_clone_x_o", OutOfLine},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, variant := encodeName("clone", "x", tt.value, tt.max)
			assert.Equal(t, tt.want, name)
			assert.Equal(t, tt.variant, variant)
		})
	}
}

func TestParseName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want entryName
		ok   bool
	}{
		{"Inline", "journal_clone_x_i_abc", entryName{Type: "clone", ID: "x", Variant: Inline, Value: "abc"}, true},
		{"InlineWithSeparators", "journal_clone_x_i_a_b_c", entryName{Type: "clone", ID: "x", Variant: Inline, Value: "a_b_c"}, true},
		{"OutOfLine", "journal_clone_x_o", entryName{Type: "clone", ID: "x", Variant: OutOfLine}, true},
		{"ForeignPrefix", "other_clone_x_o", entryName{}, false},
		{"MissingID", "journal_clone", entryName{}, false},
		{"EmptyType", "journal__x_o", entryName{}, false},
		{"UnknownTag", "journal_clone_x_z", entryName{}, false},
		{"OutOfLineTrailing", "journal_clone_x_o_extra", entryName{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseName(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNameRoundTrip(t *testing.T) {
	for _, value := range []string{"", "v", "3f2a9c1e-0000-4000-8000-000000000001", "x_y:z=1"} {
		name, variant := encodeName("relink", "vdi", value, 255)
		require.Equal(t, Inline, variant)

		e, ok := parseName(name)
		require.True(t, ok)
		assert.Equal(t, "relink", e.Type)
		assert.Equal(t, "vdi", e.ID)
		assert.Equal(t, value, e.Value)
	}
}

func TestPayload(t *testing.T) {
	for _, value := range []string{"", "a b", "line\n", strings.Repeat("é", 300)} {
		payload := encodePayload(value)
		got, err := decodePayload("n", payload)
		require.NoError(t, err)
		assert.Equal(t, value, got)
	}

	assert.Equal(t, "5 a b c\n", string(encodePayload("a b c")))

	t.Run("Corrupt", func(t *testing.T) {
		for _, payload := range []string{"", "nospace", "x abc", "-1 abc", "10 short\n"} {
			_, err := decodePayload("n", []byte(payload))
			assert.ErrorIs(t, err, store.ErrCorrupt, "payload %q", payload)
		}
	})
}

func TestValidateKey(t *testing.T) {
	assert.NoError(t, validateKey("id", "3f2a9c1e-0000-4000-8000-000000000001"))
	assert.NoError(t, validateKey("type", "clone"))

	for _, bad := range []string{"", "a_b", "a/b", "a b", "é"} {
		assert.ErrorIs(t, validateKey("id", bad), store.ErrInvalidArgument, "key %q", bad)
	}
}

func TestVariantString(t *testing.T) {
	assert.Equal(t, "inline", Inline.String())
	assert.Equal(t, "out-of-line", OutOfLine.String())
	assert.Equal(t, "unknown", Variant(9).String())
}
