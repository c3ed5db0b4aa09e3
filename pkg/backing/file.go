package backing

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// FileConfig configures a File volume.
type FileConfig struct {
	// Path is the block device or regular file holding the metadata
	Path string `mapstructure:"path" validate:"required"`

	// CapacityBytes caps the usable size of a regular file.
	// 0 means "current size plus free space on the hosting filesystem".
	// Ignored for block devices, whose size is fixed.
	CapacityBytes int64 `mapstructure:"capacity_bytes" validate:"gte=0"`

	// Create creates a missing regular file (and its parent directory)
	Create bool `mapstructure:"create"`
}

// File is a Volume backed by a block device or a regular file.
//
// Thread Safety:
// ReadAt and WriteAt are safe for concurrent use (pread/pwrite). Capacity
// reads are cached for block devices, whose size never changes while open.
type File struct {
	f        *os.File
	path     string
	isDevice bool
	capacity int64

	mu         sync.Mutex
	deviceSize int64
}

// OpenFile opens the volume described by cfg.
//
// Parameters:
//   - cfg: Path, optional capacity cap and whether to create a missing file
//
// Returns:
//   - *File: Open volume
//   - error: If the path cannot be opened or is neither a regular file nor a device
func OpenFile(cfg FileConfig) (*File, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("backing: empty path")
	}

	flags := os.O_RDWR
	if cfg.Create {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create volume directory: %w", err)
		}
		flags |= os.O_CREATE
	}

	f, err := os.OpenFile(cfg.Path, flags, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open volume %s: %w", cfg.Path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to stat volume %s: %w", cfg.Path, err)
	}

	mode := fi.Mode()
	if !mode.IsRegular() && mode&os.ModeDevice == 0 {
		_ = f.Close()
		return nil, fmt.Errorf("volume %s is neither a regular file nor a device", cfg.Path)
	}

	return &File{
		f:        f,
		path:     cfg.Path,
		isDevice: mode&os.ModeDevice != 0,
		capacity: cfg.CapacityBytes,
	}, nil
}

// ReadAt implements io.ReaderAt.
//
// Reads past the end of a regular file return the bytes available and io.EOF,
// like os.File.
func (v *File) ReadAt(p []byte, off int64) (int, error) {
	return v.f.ReadAt(p, off)
}

// WriteAt implements io.WriterAt.
//
// Writes extending a regular file beyond CapacityBytes fail with ErrNoSpace
// without writing anything.
func (v *File) WriteAt(p []byte, off int64) (int, error) {
	limit, err := v.Capacity()
	if err != nil {
		return 0, err
	}
	if off+int64(len(p)) > limit {
		return 0, ErrNoSpace
	}
	return v.f.WriteAt(p, off)
}

// Sync implements Volume.
func (v *File) Sync() error {
	return v.f.Sync()
}

// Capacity implements Volume.
func (v *File) Capacity() (int64, error) {
	if v.isDevice {
		return v.blockDeviceSize()
	}
	if v.capacity > 0 {
		return v.capacity, nil
	}

	fi, err := v.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat volume %s: %w", v.path, err)
	}

	var st unix.Statfs_t
	if err := unix.Fstatfs(int(v.f.Fd()), &st); err != nil {
		return 0, fmt.Errorf("failed to statfs volume %s: %w", v.path, err)
	}

	return fi.Size() + int64(st.Bavail)*int64(st.Bsize), nil
}

// blockDeviceSize returns the size of the device, caching it after the first
// successful query.
func (v *File) blockDeviceSize() (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.deviceSize > 0 {
		return v.deviceSize, nil
	}

	size, err := v.f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to size device %s: %w", v.path, err)
	}
	v.deviceSize = size
	return size, nil
}

// Name implements Volume.
func (v *File) Name() string {
	return v.path
}

// Close implements Volume.
func (v *File) Close() error {
	return v.f.Close()
}
