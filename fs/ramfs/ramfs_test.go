// Test suite for ramfs
package ramfs

import (
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jerryzhang126/dnx-rtos/fs"
	"github.com/jerryzhang126/dnx-rtos/lib/errno"
)

func newFs(t *testing.T) fs.Fs {
	t.Helper()
	f, err := New(nil, "", nil)
	require.NoError(t, err)
	return f
}

func TestCreateReadWrite(t *testing.T) {
	f := newFs(t)

	_, err := f.Open("/missing", fs.O_RDONLY)
	assert.Equal(t, errno.ENOENT, err)

	h, err := f.Open("/file", fs.O_CREATE|fs.O_RDWR)
	require.NoError(t, err)
	n, err := h.Write([]byte("hello"), 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	buf := make([]byte, 16)
	n, err = h.Read(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	// Sparse writes zero-fill the gap.
	_, err = h.Write([]byte("x"), 8)
	require.NoError(t, err)
	var st fs.FileInfo
	require.NoError(t, h.Fstat(&st))
	assert.Equal(t, int64(9), st.Size)

	_, err = h.Read(buf[:1], 100)
	assert.Equal(t, io.EOF, err)
	require.NoError(t, h.Close(false))
}

func TestDirectories(t *testing.T) {
	f := newFs(t)
	require.NoError(t, f.Mkdir("/a", 0777))
	require.NoError(t, f.Mkdir("/a/b", 0777))
	assert.Equal(t, errno.EEXIST, f.Mkdir("/a", 0777))
	assert.Equal(t, errno.ENOENT, f.Mkdir("/x/y", 0777))

	_, err := f.Open("/a", fs.O_RDONLY)
	assert.Equal(t, errno.EISDIR, err)

	h, err := f.Open("/a/b/c.txt", fs.O_CREATE)
	require.NoError(t, err)
	require.NoError(t, h.Close(false))

	d, err := f.OpenDir("/a")
	require.NoError(t, err)
	e, err := d.Readdir()
	require.NoError(t, err)
	assert.Equal(t, "b", e.Name)
	assert.Equal(t, fs.TypeDir, e.Type)
	_, err = d.Readdir()
	assert.Equal(t, io.EOF, err)
	require.NoError(t, d.Close())
}

func TestRemove(t *testing.T) {
	f := newFs(t)
	require.NoError(t, f.Mkdir("/d", 0777))
	h, err := f.Open("/d/f", fs.O_CREATE)
	require.NoError(t, err)

	// Open files and non-empty directories are busy.
	assert.Equal(t, errno.EBUSY, f.Remove("/d/f"))
	require.NoError(t, h.Close(false))
	assert.Equal(t, errno.EBUSY, f.Remove("/d"))
	require.NoError(t, f.Remove("/d/f"))
	require.NoError(t, f.Remove("/d"))
	assert.Equal(t, errno.ENOENT, f.Remove("/d"))
}

func TestRename(t *testing.T) {
	f := newFs(t)
	h, err := f.Open("/src", fs.O_CREATE|fs.O_RDWR)
	require.NoError(t, err)
	_, err = h.Write([]byte("data"), 0)
	require.NoError(t, err)
	require.NoError(t, h.Close(false))
	require.NoError(t, f.Mkdir("/dir", 0777))

	require.NoError(t, f.Rename("/src", "/dir/dst"))
	var st fs.FileInfo
	require.NoError(t, f.Stat("/dir/dst", &st))
	assert.Equal(t, int64(4), st.Size)
	assert.Equal(t, "dst", st.Name)
	assert.Equal(t, errno.ENOENT, f.Stat("/src", &st))
}

func TestChmodChown(t *testing.T) {
	f := newFs(t)
	h, err := f.Open("/f", fs.O_CREATE)
	require.NoError(t, err)
	require.NoError(t, h.Close(false))

	require.NoError(t, f.Chmod("/f", 0600))
	require.NoError(t, f.Chown("/f", 7, 8))
	var st fs.FileInfo
	require.NoError(t, f.Stat("/f", &st))
	assert.Equal(t, fs.FileMode(0600), st.Mode)
	assert.Equal(t, 7, st.UID)
	assert.Equal(t, 8, st.GID)
}

// Concurrent writers and readers never produce a torn byte sequence:
// a read sees the old or the new contents.
func TestByteAtomicity(t *testing.T) {
	f := newFs(t)
	h, err := f.Open("/shared", fs.O_CREATE|fs.O_RDWR)
	require.NoError(t, err)

	old := []byte{0, 0, 0, 0}
	newer := []byte{1, 1, 1, 1}
	_, err = h.Write(old, 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if i%2 == 0 {
				_, _ = h.Write(newer, 0)
			} else {
				_, _ = h.Write(old, 0)
			}
		}
	}()
	fail := false
	go func() {
		defer wg.Done()
		buf := make([]byte, 4)
		for i := 0; i < 200; i++ {
			_, _ = h.Read(buf, 0)
			sum := int(buf[0]) + int(buf[1]) + int(buf[2]) + int(buf[3])
			if sum != 0 && sum != 4 {
				fail = true
				return
			}
		}
	}()
	wg.Wait()
	assert.False(t, fail, "observed a torn write")
	require.NoError(t, h.Close(false))
}
