// Package sector encodes and decodes the fixed-size sectors of the SR metadata
// volume.
//
// A sector is either the versioned header of the volume or a short markup
// fragment (a tag-delimited text value). Every sector is exactly Size bytes,
// space padded. Text values are UTF-8 and may be truncated to fit a sector;
// truncation never splits an encoded code point or an escaped entity.
package sector

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/marmos91/srmeta/pkg/store"
)

const (
	// Size is the size of a sector (and of a metadata slot) in bytes.
	Size = 512

	// Magic identifies a metadata volume header.
	Magic = "XSSM"

	// MajorVersion and MinorVersion are written into new headers.
	MajorVersion = 1
	MinorVersion = 2

	// headerSep separates header fields.
	headerSep = ":"

	// lengthFieldSize is the width of the used-length header field.
	lengthFieldSize = 10

	// padByte fills the unused tail of every sector.
	padByte = ' '
)

// Header is the decoded content of the header sector.
type Header struct {
	Magic  string
	Length int64
	Major  int
	Minor  int
}

// BuildHeader produces the header sector:
//
//	"XSSM:<length, left-justified in a 10 char field>:<major>:<minor>"
//
// space padded to Size bytes.
func BuildHeader(length int64, major, minor int) []byte {
	lengthField := strconv.FormatInt(length, 10)
	if len(lengthField) < lengthFieldSize {
		lengthField += strings.Repeat(" ", lengthFieldSize-len(lengthField))
	}

	header := strings.Join([]string{
		Magic,
		lengthField,
		strconv.Itoa(major),
		strconv.Itoa(minor),
	}, headerSep)

	return Pad(header)
}

// UnpackHeader decodes a header sector.
//
// Returns an ErrCorrupt store error if the magic token or the field count is
// wrong, or if a numeric field does not parse.
func UnpackHeader(b []byte) (Header, error) {
	text := string(bytes.TrimRight(b, " \x00"))
	fields := strings.Split(text, headerSep)
	if len(fields) != 4 {
		return Header{}, store.NewError(store.ErrCorrupt,
			"metadata header has %d fields, expected 4", len(fields))
	}
	if fields[0] != Magic {
		return Header{}, store.NewError(store.ErrCorrupt,
			"metadata header has bad magic %q", fields[0])
	}

	length, err := strconv.ParseInt(strings.TrimSpace(fields[1]), 10, 64)
	if err != nil || length < 0 {
		return Header{}, store.NewError(store.ErrCorrupt,
			"metadata header has bad length %q", fields[1])
	}
	major, err := strconv.Atoi(strings.TrimSpace(fields[2]))
	if err != nil {
		return Header{}, store.NewError(store.ErrCorrupt,
			"metadata header has bad major version %q", fields[2])
	}
	minor, err := strconv.Atoi(strings.TrimSpace(fields[3]))
	if err != nil {
		return Header{}, store.NewError(store.ErrCorrupt,
			"metadata header has bad minor version %q", fields[3])
	}

	return Header{Magic: fields[0], Length: length, Major: major, Minor: minor}, nil
}

// BuildXMLSector wraps an escaped value in <tag>...</tag> and pads it to Size.
//
// If the fragment would exceed Size bytes, value is cut to the longest prefix
// that fits (see TruncateEscaped) before being wrapped.
func BuildXMLSector(tag, value string) []byte {
	open, closing := OpenTag(tag), CloseTag(tag)
	budget := Size - len(open) - len(closing)
	if budget < 0 {
		budget = 0
	}
	value = value[:TruncateEscaped(value, budget)]
	return Pad(open + value + closing)
}

// OpenTag returns "<tag>".
func OpenTag(tag string) string {
	return "<" + tag + ">"
}

// CloseTag returns "</tag>".
func CloseTag(tag string) string {
	return "</" + tag + ">"
}

// Element returns "<tag>value</tag>" without padding or truncation.
func Element(tag, value string) string {
	return OpenTag(tag) + value + CloseTag(tag)
}

// Pad returns s padded with spaces to exactly one sector.
//
// s must not be longer than Size; longer input is cut at a rune boundary.
func Pad(s string) []byte {
	if len(s) > Size {
		s = s[:UnicTrunc(s, Size)]
	}
	out := make([]byte, Size)
	copy(out, s)
	for i := len(s); i < Size; i++ {
		out[i] = padByte
	}
	return out
}

// Blank returns a sector containing only padding.
func Blank() []byte {
	return Pad("")
}

// BlockAlignedRange returns the smallest range [lower, upper), aligned to
// blockSize, that contains [offset, offset+length).
func BlockAlignedRange(blockSize, offset, length int64) (lower, upper int64) {
	if blockSize <= 0 {
		panic(fmt.Sprintf("sector: invalid block size %d", blockSize))
	}
	lower = offset - offset%blockSize
	end := offset + length
	upper = end
	if rem := end % blockSize; rem != 0 {
		upper = end + blockSize - rem
	}
	return lower, upper
}

// UnicTrunc returns the largest n <= budget such that s[:n] does not end in
// the middle of a multi-byte UTF-8 sequence.
func UnicTrunc(s string, budget int) int {
	if budget >= len(s) {
		return len(s)
	}
	if budget <= 0 {
		return 0
	}
	n := budget
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}

// TruncateEscaped is UnicTrunc for escaped markup text: the resulting prefix
// also never ends inside an entity such as "&amp;".
func TruncateEscaped(s string, budget int) int {
	n := UnicTrunc(s, budget)
	if n == len(s) {
		return n
	}
	if amp := strings.LastIndexByte(s[:n], '&'); amp >= 0 {
		if strings.IndexByte(s[amp:n], ';') < 0 {
			n = amp
		}
	}
	return n
}

// SplitBudget shrinks two escaped values so that their combined length fits
// budget bytes.
//
// When both exceed half the budget, each is cut to half. Otherwise only the
// longer one is cut, to whatever the other leaves.
func SplitBudget(label, desc string, budget int) (string, string) {
	if len(label)+len(desc) <= budget {
		return label, desc
	}

	limit := budget / 2
	switch {
	case len(label) > limit && len(desc) > limit:
		label = label[:TruncateEscaped(label, limit)]
		desc = desc[:TruncateEscaped(desc, limit)]
	case len(label) > limit:
		label = label[:TruncateEscaped(label, budget-len(desc))]
	default:
		desc = desc[:TruncateEscaped(desc, budget-len(label))]
	}
	return label, desc
}

// Escape escapes text for inclusion in a markup fragment.
func Escape(s string) string {
	var buf strings.Builder
	// strings.Builder never returns a write error.
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
