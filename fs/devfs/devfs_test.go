// Test suite for devfs
package devfs_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/jerryzhang126/dnx-rtos/driver/devnull"
	"github.com/jerryzhang126/dnx-rtos/fs"
	"github.com/jerryzhang126/dnx-rtos/fs/devfs"
	"github.com/jerryzhang126/dnx-rtos/lib/errno"
)

func newFs(t *testing.T) fs.Fs {
	t.Helper()
	f, err := devfs.New(nil, "", nil)
	require.NoError(t, err)
	return f
}

func TestMknodAndOpen(t *testing.T) {
	f := newFs(t)

	err := f.Mknod("/null0", fs.DevNode{Driver: "devnull", Major: 1, Minor: 0})
	require.NoError(t, err)
	assert.Equal(t, errno.EEXIST, f.Mknod("/null0", fs.DevNode{Driver: "devnull"}))
	assert.Error(t, f.Mknod("/bogus", fs.DevNode{Driver: "nosuchdriver"}))

	h, err := f.Open("/null0", fs.O_RDWR)
	require.NoError(t, err)
	n, err := h.Write([]byte("gone"), 0)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	_, err = h.Read(make([]byte, 4), 0)
	assert.Equal(t, io.EOF, err)
	require.NoError(t, h.Close(false))

	_, err = f.Open("/missing", fs.O_RDONLY)
	assert.Equal(t, errno.ENOENT, err)
}

func TestListing(t *testing.T) {
	f := newFs(t)
	require.NoError(t, f.Mknod("/b", fs.DevNode{Driver: "devnull", Minor: 1}))
	require.NoError(t, f.Mknod("/a", fs.DevNode{Driver: "devnull", Minor: 2}))

	d, err := f.OpenDir("/")
	require.NoError(t, err)
	var names []string
	for {
		e, err := d.Readdir()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, fs.TypeDevice, e.Type)
		assert.Equal(t, "devnull", e.Dev.Driver)
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"a", "b"}, names)
	require.NoError(t, d.Close())
}

func TestStat(t *testing.T) {
	f := newFs(t)
	require.NoError(t, f.Mknod("/n", fs.DevNode{Driver: "devnull", Minor: 3}))

	var st fs.FileInfo
	require.NoError(t, f.Stat("/", &st))
	assert.Equal(t, fs.TypeDir, st.Type)

	require.NoError(t, f.Stat("/n", &st))
	assert.Equal(t, fs.TypeDevice, st.Type)
	assert.Equal(t, "n", st.Name)
	assert.Equal(t, "devnull", st.Dev.Driver)

	var fst fs.FsInfo
	require.NoError(t, f.StatFs(&fst))
	assert.Equal(t, int64(1), fst.Files)
}

func TestRemoveAndRename(t *testing.T) {
	f := newFs(t)
	require.NoError(t, f.Mknod("/x", fs.DevNode{Driver: "devnull"}))
	require.NoError(t, f.Rename("/x", "/y"))
	var st fs.FileInfo
	assert.Equal(t, errno.ENOENT, f.Stat("/x", &st))
	require.NoError(t, f.Stat("/y", &st))
	require.NoError(t, f.Remove("/y"))
	assert.Equal(t, errno.ENOENT, f.Remove("/y"))
}

func TestReadOnlyStructure(t *testing.T) {
	f := newFs(t)
	assert.Equal(t, errno.ENOSYS, f.Mkdir("/sub", 0777))
	assert.Equal(t, errno.ENOSYS, f.Mkfifo("/p", 0666))
}
