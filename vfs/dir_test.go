// Test suite for directory iteration
package vfs_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jerryzhang126/dnx-rtos/fs"
	"github.com/jerryzhang126/dnx-rtos/vfs"
)

func populate(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		f, err := vfs.Open("/"+name, fs.O_CREATE)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}
}

func readNames(t *testing.T, d *vfs.Dir) []string {
	t.Helper()
	var names []string
	for {
		e, err := d.Readdir()
		if err == io.EOF {
			return names
		}
		require.NoError(t, err)
		names = append(names, e.Name)
	}
}

func TestReaddir(t *testing.T) {
	newRoot(t)
	populate(t, "a", "b", "c")
	require.NoError(t, vfs.Mkdir("/sub", 0777))

	d, err := vfs.OpenDir("/")
	require.NoError(t, err)
	defer func() { _ = d.Close() }()

	assert.Equal(t, []string{"a", "b", "c", "sub"}, readNames(t, d))

	// Iteration stays at the end.
	_, err = d.Readdir()
	assert.Equal(t, io.EOF, err)
}

func TestSeekdirTelldir(t *testing.T) {
	newRoot(t)
	populate(t, "a", "b", "c", "d")

	d, err := vfs.OpenDir("/")
	require.NoError(t, err)
	defer func() { _ = d.Close() }()

	e, err := d.Readdir()
	require.NoError(t, err)
	assert.Equal(t, "a", e.Name)

	tok := d.Telldir()
	e, err = d.Readdir()
	require.NoError(t, err)
	assert.Equal(t, "b", e.Name)

	// Seeking back to the token replays the sequence from there.
	d.Seekdir(tok)
	e, err = d.Readdir()
	require.NoError(t, err)
	assert.Equal(t, "b", e.Name)

	d.Rewinddir()
	assert.Equal(t, []string{"a", "b", "c", "d"}, readNames(t, d))
}

func TestOpenDirErrors(t *testing.T) {
	newRoot(t)
	populate(t, "file")

	_, err := vfs.OpenDir("/missing")
	assert.Error(t, err)
	_, err = vfs.OpenDir("/file")
	assert.Error(t, err)
}

// Enumerating to completion and closing leaks nothing: the mount can
// be unmounted afterwards.
func TestOpenDirNoLeak(t *testing.T) {
	newRoot(t)
	require.NoError(t, vfs.Mkdir("/mnt", 0777))
	require.NoError(t, vfs.MountFs("ramfs", "", "/mnt", ""))

	d, err := vfs.OpenDir("/mnt")
	require.NoError(t, err)
	readNames(t, d)
	require.NoError(t, d.Close())

	require.NoError(t, vfs.Umount("/mnt"))
}
