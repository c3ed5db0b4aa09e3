package store

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStoreErrorIs(t *testing.T) {
	err := NewError(ErrNotFound, "VDI %s not found", "abc")

	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, &StoreError{Code: ErrNotFound})
	assert.NotErrorIs(t, err, ErrCorrupt)

	wrapped := fmt.Errorf("delete: %w", err)
	assert.ErrorIs(t, wrapped, ErrNotFound)

	code, ok := CodeOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, ErrNotFound, code)

	_, ok = CodeOf(io.EOF)
	assert.False(t, ok)
}

func TestStoreErrorMessage(t *testing.T) {
	assert.Equal(t, "VDI abc not found", NewError(ErrNotFound, "VDI %s not found", "abc").Error())

	ioErr := WrapIO(io.ErrShortWrite, 4096, "failed to write %s", "vol")
	assert.Equal(t, "failed to write vol at offset 4096: short write", ioErr.Error())
	assert.ErrorIs(t, ioErr, ErrIO)
	assert.ErrorIs(t, ioErr, io.ErrShortWrite)

	cause := errors.New("boom")
	w := Wrap(cause, ErrNoSpace, "probe failed")
	assert.Equal(t, "probe failed: boom", w.Error())
	assert.Equal(t, int64(-1), w.Offset)
	assert.ErrorIs(t, w, cause)
}

func TestErrorCodeString(t *testing.T) {
	assert.Equal(t, "AlreadyExists", ErrAlreadyExists.String())
	assert.Equal(t, "NotFound", ErrNotFound.String())
	assert.Equal(t, "Corrupt", ErrCorrupt.String())
	assert.Equal(t, "IOFailure", ErrIO.String())
	assert.Equal(t, "SpaceExhausted", ErrNoSpace.String())
	assert.Equal(t, "InvalidArgument", ErrInvalidArgument.String())
	assert.Equal(t, "Unknown", ErrorCode(99).String())
}
