package backing

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestMemory(t *testing.T) {
	t.Run("ReadWrite", func(t *testing.T) {
		m := NewMemory(4096)

		n, err := m.WriteAt([]byte("hello"), 1024)
		require.NoError(t, err)
		assert.Equal(t, 5, n)

		buf := make([]byte, 5)
		_, err = m.ReadAt(buf, 1024)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(buf))

		assert.Equal(t, []Extent{{Offset: 1024, Length: 5}}, m.Writes())
		assert.Len(t, m.Bytes(), 1029)
	})

	t.Run("ReadPastEnd", func(t *testing.T) {
		m := NewMemory(4096)
		_, err := m.WriteAt([]byte("abc"), 0)
		require.NoError(t, err)

		buf := make([]byte, 8)
		n, err := m.ReadAt(buf, 0)
		assert.Equal(t, 3, n)
		assert.ErrorIs(t, err, io.EOF)

		_, err = m.ReadAt(buf, 100)
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("NoSpace", func(t *testing.T) {
		m := NewMemory(1024)
		_, err := m.WriteAt(make([]byte, 512), 768)
		assert.ErrorIs(t, err, ErrNoSpace)
		assert.True(t, IsNoSpace(err))
		assert.ErrorIs(t, err, unix.ENOSPC)
		assert.Empty(t, m.Writes())
	})

	t.Run("Syncs", func(t *testing.T) {
		m := NewMemory(1024)
		require.NoError(t, m.Sync())
		require.NoError(t, m.Sync())
		assert.Equal(t, 2, m.Syncs())

		m.ResetWrites()
		assert.Empty(t, m.Writes())
	})

	t.Run("SurvivesClose", func(t *testing.T) {
		m := NewMemory(1024)
		_, err := m.WriteAt([]byte("x"), 0)
		require.NoError(t, err)
		require.NoError(t, m.Close())
		assert.Equal(t, []byte("x"), m.Bytes())
	})
}

func TestFile(t *testing.T) {
	t.Run("CreateAndCapacity", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "md")
		v, err := OpenFile(FileConfig{Path: path, CapacityBytes: 8192, Create: true})
		require.NoError(t, err)
		defer v.Close()

		capacity, err := v.Capacity()
		require.NoError(t, err)
		assert.Equal(t, int64(8192), capacity)
		assert.Equal(t, path, v.Name())

		_, err = v.WriteAt(make([]byte, 512), 8192-512)
		require.NoError(t, err)
		require.NoError(t, v.Sync())

		_, err = v.WriteAt(make([]byte, 512), 8192)
		assert.True(t, IsNoSpace(err))

		fi, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, int64(8192), fi.Size())
	})

	t.Run("FreeSpaceCapacity", func(t *testing.T) {
		v, err := OpenFile(FileConfig{Path: filepath.Join(t.TempDir(), "md"), Create: true})
		require.NoError(t, err)
		defer v.Close()

		capacity, err := v.Capacity()
		require.NoError(t, err)
		assert.Greater(t, capacity, int64(0))
	})

	t.Run("MissingWithoutCreate", func(t *testing.T) {
		_, err := OpenFile(FileConfig{Path: filepath.Join(t.TempDir(), "absent")})
		assert.Error(t, err)
	})

	t.Run("Directory", func(t *testing.T) {
		_, err := OpenFile(FileConfig{Path: t.TempDir()})
		assert.Error(t, err)
	})

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := OpenFile(FileConfig{})
		assert.Error(t, err)
	})
}
