// Test suite for the VFS
package vfs_test

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jerryzhang126/dnx-rtos/fs"
	"github.com/jerryzhang126/dnx-rtos/lib/errno"
	"github.com/jerryzhang126/dnx-rtos/vfs"

	_ "github.com/jerryzhang126/dnx-rtos/driver/devnull"
	"github.com/jerryzhang126/dnx-rtos/driver/i2c"
	_ "github.com/jerryzhang126/dnx-rtos/fs/devfs"
	_ "github.com/jerryzhang126/dnx-rtos/fs/ramfs"
)

func newRoot(t *testing.T) {
	t.Helper()
	require.NoError(t, vfs.MountFs("ramfs", "", "/", ""))
	t.Cleanup(vfs.Reset)
}

func TestMountRootRequired(t *testing.T) {
	t.Cleanup(vfs.Reset)
	// The first mount must be the root.
	err := vfs.MountFs("ramfs", "", "/data", "")
	assert.True(t, errors.Is(err, errno.ENOENT))
	require.NoError(t, vfs.MountFs("ramfs", "", "/", ""))
}

func TestMountErrors(t *testing.T) {
	newRoot(t)

	err := vfs.MountFs("nosuchfs", "", "/mnt", "")
	assert.True(t, errors.Is(err, errno.ENOENT))

	// Mount point must exist.
	err = vfs.MountFs("ramfs", "", "/missing", "")
	assert.True(t, errors.Is(err, errno.ENOENT))

	// Mount point busy.
	require.NoError(t, vfs.Mkdir("/mnt", 0777))
	require.NoError(t, vfs.MountFs("ramfs", "", "/mnt", ""))
	err = vfs.MountFs("ramfs", "", "/mnt", "")
	assert.True(t, errors.Is(err, errno.EBUSY))
}

// The longest mount point prefix wins and the backend sees only the
// remainder.
func TestMountResolution(t *testing.T) {
	newRoot(t)
	require.NoError(t, vfs.Mkdir("/sub", 0777))
	require.NoError(t, vfs.MountFs("ramfs", "", "/sub", ""))

	f, err := vfs.Open("/sub/inner.txt", fs.O_CREATE|fs.O_RDWR)
	require.NoError(t, err)
	_, err = f.Write([]byte("inner"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// The file lives in the submount's backend, under the tail path.
	var sub *vfs.Mount
	for _, m := range vfs.Mounts() {
		if m.MountPoint == "/sub" {
			sub = m
		}
	}
	require.NotNil(t, sub)
	var st fs.FileInfo
	require.NoError(t, sub.Fs().Stat("/inner.txt", &st))
	assert.Equal(t, int64(5), st.Size)

	// It is invisible to the root backend.
	_, err = vfs.Open("/subx", 0)
	assert.True(t, errors.Is(err, errno.ENOENT), "prefix match must stop at path boundaries")
	var rootSt fs.FileInfo
	err = vfs.Stat("/inner.txt", &rootSt)
	assert.True(t, errors.Is(err, errno.ENOENT))
}

func TestUmountBusy(t *testing.T) {
	newRoot(t)
	require.NoError(t, vfs.Mkdir("/mnt", 0777))
	require.NoError(t, vfs.MountFs("ramfs", "", "/mnt", ""))

	f, err := vfs.Open("/mnt/open.txt", fs.O_CREATE|fs.O_RDWR)
	require.NoError(t, err)

	err = vfs.Umount("/mnt")
	assert.True(t, errors.Is(err, errno.EBUSY))

	require.NoError(t, f.Close())
	require.NoError(t, vfs.Umount("/mnt"))

	// The mount table is back to its prior state.
	assert.Len(t, vfs.Mounts(), 1)
}

func TestUmountWithChildMount(t *testing.T) {
	newRoot(t)
	require.NoError(t, vfs.Mkdir("/a", 0777))
	require.NoError(t, vfs.MountFs("ramfs", "", "/a", ""))
	require.NoError(t, vfs.Mkdir("/a/b", 0777))
	require.NoError(t, vfs.MountFs("ramfs", "", "/a/b", ""))

	err := vfs.Umount("/a")
	assert.True(t, errors.Is(err, errno.EBUSY))

	require.NoError(t, vfs.Umount("/a/b"))
	require.NoError(t, vfs.Umount("/a"))
}

// Writing N bytes and reading them back from offset 0 yields the
// identical sequence.
func TestReadWriteRoundTrip(t *testing.T) {
	newRoot(t)

	payload := make([]byte, 1000)
	for i := range payload {
		payload[i] = byte(i)
	}
	f, err := vfs.Open("/blob", fs.O_CREATE|fs.O_RDWR)
	require.NoError(t, err)
	n, err := f.Write(payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	require.NoError(t, f.Close())

	f, err = vfs.Open("/blob", fs.O_RDONLY)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	got := make([]byte, len(payload))
	_, err = io.ReadFull(f, got)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestSeek(t *testing.T) {
	newRoot(t)
	f, err := vfs.Open("/seek", fs.O_CREATE|fs.O_RDWR)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	_, err = f.Write([]byte("0123456789"))
	require.NoError(t, err)

	pos, err := f.Seek(2, vfs.SeekSet)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pos)
	buf := make([]byte, 3)
	_, err = f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "234", string(buf))

	pos, err = f.Seek(-2, vfs.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(8), pos)

	pos, err = f.Seek(1, vfs.SeekCur)
	require.NoError(t, err)
	assert.Equal(t, int64(9), pos)

	_, err = f.Seek(-100, vfs.SeekSet)
	assert.Error(t, err)
}

func TestOpenFlags(t *testing.T) {
	newRoot(t)

	_, err := vfs.Open("/nofile", fs.O_RDONLY)
	assert.True(t, errors.Is(err, errno.ENOENT))

	f, err := vfs.Open("/file", fs.O_CREATE|fs.O_RDWR)
	require.NoError(t, err)
	_, err = f.Write([]byte("something"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// O_APPEND starts at the end.
	f, err = vfs.Open("/file", fs.O_RDWR|fs.O_APPEND)
	require.NoError(t, err)
	assert.Equal(t, int64(9), f.Tell())
	require.NoError(t, f.Close())

	// O_TRUNC drops the contents.
	f, err = vfs.Open("/file", fs.O_RDWR|fs.O_TRUNC)
	require.NoError(t, err)
	size, err := f.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)
	require.NoError(t, f.Close())
}

func TestRenameRemove(t *testing.T) {
	newRoot(t)

	f, err := vfs.Open("/old", fs.O_CREATE|fs.O_RDWR)
	require.NoError(t, err)
	_, err = f.Write([]byte("contents"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, vfs.Rename("/old", "/new"))
	var st fs.FileInfo
	assert.True(t, errors.Is(vfs.Stat("/old", &st), errno.ENOENT))
	require.NoError(t, vfs.Stat("/new", &st))
	assert.Equal(t, int64(8), st.Size)

	require.NoError(t, vfs.Remove("/new"))
	assert.True(t, errors.Is(vfs.Stat("/new", &st), errno.ENOENT))
}

func TestStatTypes(t *testing.T) {
	newRoot(t)
	require.NoError(t, vfs.Mkdir("/d", 0755))
	require.NoError(t, vfs.Mkfifo("/p", 0644))
	f, err := vfs.Open("/r", fs.O_CREATE)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	var st fs.FileInfo
	require.NoError(t, vfs.Stat("/d", &st))
	assert.Equal(t, fs.TypeDir, st.Type)
	require.NoError(t, vfs.Stat("/p", &st))
	assert.Equal(t, fs.TypeFIFO, st.Type)
	require.NoError(t, vfs.Stat("/r", &st))
	assert.Equal(t, fs.TypeRegular, st.Type)

	var fst fs.FsInfo
	require.NoError(t, vfs.StatFs("/", &fst))
	assert.Equal(t, "ramfs", fst.Type)
}

func TestFifo(t *testing.T) {
	newRoot(t)
	require.NoError(t, vfs.Mkfifo("/pipe", 0666))

	r, err := vfs.Open("/pipe", fs.O_RDONLY)
	require.NoError(t, err)
	w, err := vfs.Open("/pipe", fs.O_WRONLY)
	require.NoError(t, err)

	done := make(chan []byte, 1)
	go func() {
		// A pipe read returns what is available; collect the whole
		// message.
		buf := make([]byte, 16)
		total := 0
		for total < 4 {
			n, err := r.Read(buf[total:])
			if err != nil {
				break
			}
			total += n
		}
		done <- buf[:total]
	}()
	_, err = w.Write([]byte("ping"))
	require.NoError(t, err)
	select {
	case got := <-done:
		assert.Equal(t, "ping", string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("reader never saw the write")
	}

	// Closing the writer ends the stream.
	require.NoError(t, w.Close())
	buf := make([]byte, 4)
	_, err = r.Read(buf)
	assert.Equal(t, io.EOF, err)
	require.NoError(t, r.Close())
}

// Boot scenario: devfs at /dev, a node from mknod, visible to
// readdir as a device.
func TestDevfsBootScenario(t *testing.T) {
	newRoot(t)
	require.NoError(t, vfs.Mkdir("/dev", 0777))
	require.NoError(t, vfs.MountFs("devfs", "", "/dev", ""))

	i2c.AttachPort(0, i2c.NewSimBus())
	require.NoError(t, vfs.Mknod("/dev/i2c0", "i2c", 0, 0))

	d, err := vfs.OpenDir("/dev")
	require.NoError(t, err)
	e, err := d.Readdir()
	require.NoError(t, err)
	assert.Equal(t, "i2c0", e.Name)
	assert.Equal(t, fs.TypeDevice, e.Type)
	_, err = d.Readdir()
	assert.Equal(t, io.EOF, err)
	require.NoError(t, d.Close())
}

func TestRelativePathsWithoutProcess(t *testing.T) {
	newRoot(t)
	// Without a process context the CWD is the root.
	f, err := vfs.Open("plain.txt", fs.O_CREATE)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	var st fs.FileInfo
	require.NoError(t, vfs.Stat("/plain.txt", &st))
}
