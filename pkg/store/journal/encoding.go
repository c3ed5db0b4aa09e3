package journal

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/marmos91/srmeta/pkg/store"
)

// Object Name Encoding
// ====================
//
// Every entry is one object in the ObjectStore. The object name carries the
// entry type, the id and a variant tag:
//
//	Variant     Name                              Payload
//	==================================================================
//	Inline      journal_<type>_<id>_i_<value>     none
//	OutOfLine   journal_<type>_<id>_o             "<len> <value>\n"
//
// type and id never contain the separator, so the first three separators
// delimit them unambiguously and an inline value may itself contain "_".
//
// The variant is chosen once, at write time: Inline when the value uses only
// name-safe characters and the resulting name fits the store's name-length
// ceiling, OutOfLine otherwise. Readers take the variant from the tag and
// never re-derive it from lengths.

const (
	namePrefix = "journal"
	separator  = "_"

	inlineTag    = "i"
	outOfLineTag = "o"
)

// Variant is the encoding of an entry value.
type Variant int

const (
	// Inline stores the value in the object name.
	Inline Variant = iota

	// OutOfLine stores the value in a length-prefixed payload.
	OutOfLine
)

func (v Variant) String() string {
	switch v {
	case Inline:
		return "inline"
	case OutOfLine:
		return "out-of-line"
	default:
		return "unknown"
	}
}

// entryName is a decoded object name.
type entryName struct {
	Type    string
	ID      string
	Variant Variant

	// Value is only set for Inline entries.
	Value string
}

// nameSafe reports whether every byte of s may appear in an object name.
//
// The set matches what LVM accepts in tags and logical volume names, so the
// same encoding works for every ObjectStore.
func nameSafe(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '+', c == '.', c == '-', c == '_', c == ':', c == '=':
		default:
			return false
		}
	}
	return true
}

// validateKey checks a type or id.
func validateKey(what, s string) error {
	if s == "" {
		return store.NewError(store.ErrInvalidArgument, "journal %s is empty", what)
	}
	if strings.Contains(s, separator) {
		return store.NewError(store.ErrInvalidArgument, "journal %s %q contains %q", what, s, separator)
	}
	if !nameSafe(s) {
		return store.NewError(store.ErrInvalidArgument, "journal %s %q contains characters not allowed in names", what, s)
	}
	return nil
}

func validateKeys(typ, id string) error {
	if err := validateKey("type", typ); err != nil {
		return err
	}
	return validateKey("id", id)
}

// typePrefix is the name prefix shared by all entries of one type.
func typePrefix(typ string) string {
	return namePrefix + separator + typ + separator
}

// keyPrefix is the name prefix shared by every variant of (type, id).
func keyPrefix(typ, id string) string {
	return typePrefix(typ) + id + separator
}

// encodeName picks the object name and variant for an entry.
func encodeName(typ, id, value string, maxNameLen int) (string, Variant) {
	inline := keyPrefix(typ, id) + inlineTag + separator + value
	if nameSafe(value) && len(inline) <= maxNameLen {
		return inline, Inline
	}
	return keyPrefix(typ, id) + outOfLineTag, OutOfLine
}

// parseName decodes an object name. ok is false for names that are not
// journal entries.
func parseName(name string) (entryName, bool) {
	rest, found := strings.CutPrefix(name, namePrefix+separator)
	if !found {
		return entryName{}, false
	}

	typ, rest, found := strings.Cut(rest, separator)
	if !found || typ == "" {
		return entryName{}, false
	}
	id, rest, found := strings.Cut(rest, separator)
	if !found || id == "" {
		return entryName{}, false
	}

	switch {
	case rest == outOfLineTag:
		return entryName{Type: typ, ID: id, Variant: OutOfLine}, true
	case strings.HasPrefix(rest, inlineTag+separator):
		return entryName{
			Type:    typ,
			ID:      id,
			Variant: Inline,
			Value:   strings.TrimPrefix(rest, inlineTag+separator),
		}, true
	}
	return entryName{}, false
}

// encodePayload produces the payload of an OutOfLine entry.
func encodePayload(value string) []byte {
	return []byte(fmt.Sprintf("%d %s\n", len(value), value))
}

// decodePayload extracts the value from an OutOfLine payload: the <len> bytes
// following the first space.
func decodePayload(name string, payload []byte) (string, error) {
	text := string(payload)
	lenField, rest, found := strings.Cut(text, " ")
	if !found {
		return "", store.NewError(store.ErrCorrupt, "journal payload of %s has no length prefix", name)
	}
	n, err := strconv.Atoi(lenField)
	if err != nil || n < 0 {
		return "", store.NewError(store.ErrCorrupt, "journal payload of %s has bad length %q", name, lenField)
	}
	if len(rest) < n {
		return "", store.NewError(store.ErrCorrupt,
			"journal payload of %s truncated: want %d bytes, have %d", name, n, len(rest))
	}
	return rest[:n], nil
}
