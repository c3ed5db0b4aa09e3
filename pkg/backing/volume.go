// Package backing resolves an SR's backing object to an openable,
// byte-addressable target and answers capacity queries for it.
//
// The metadata store only ever talks to a Volume. Two implementations are
// provided: File, for a block device (e.g. a small logical volume) or a plain
// file on a local filesystem, and Memory, a fixed-capacity in-memory volume
// used by tests and dry runs.
package backing

import (
	"errors"
	"io"

	"golang.org/x/sys/unix"
)

// ErrNoSpace is returned by WriteAt when a write would extend a volume past
// its capacity. It wraps ENOSPC so callers can also match the errno.
var ErrNoSpace = &noSpaceError{}

type noSpaceError struct{}

func (*noSpaceError) Error() string { return "backing: no space left on volume" }
func (*noSpaceError) Unwrap() error { return unix.ENOSPC }

// Volume is a byte-addressable backing object.
type Volume interface {
	io.ReaderAt
	io.WriterAt

	// Sync flushes written data to stable storage.
	Sync() error

	// Capacity returns the number of bytes the volume can hold.
	Capacity() (int64, error)

	// Name identifies the volume in logs (a path for File volumes).
	Name() string

	// Close releases the volume.
	Close() error
}

// IsNoSpace reports whether err is a capacity failure of a volume.
func IsNoSpace(err error) bool {
	return errors.Is(err, unix.ENOSPC)
}
