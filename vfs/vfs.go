// Package vfs is the virtual filesystem switch. It owns the mount
// table, resolves paths to mounted filesystem backends by longest
// prefix, and hands out open file and directory records which are
// tracked on the owning process's resource list.
package vfs

import (
	"errors"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/jerryzhang126/dnx-rtos/fs"
	"github.com/jerryzhang126/dnx-rtos/kernel"
	"github.com/jerryzhang126/dnx-rtos/kernel/kres"
	"github.com/jerryzhang126/dnx-rtos/lib/errno"
)

// Mount binds a filesystem instance at a mount point.
type Mount struct {
	SrcPath    string
	MountPoint string
	fs         fs.Fs
	src        *File
	parent     *Mount
	refs       atomic.Int32 // open files and dirs beneath this mount
}

// Fs exposes the backend instance, mainly for tests.
func (m *Mount) Fs() fs.Fs {
	return m.fs
}

var table struct {
	mu     *kernel.Mutex
	mounts []*Mount
}

func init() {
	table.mu = kernel.NewMutex()
}

// cwdProvider is implemented by the process layer; the VFS resolves
// relative paths against it without depending on that layer.
type cwdProvider interface {
	CWD() string
}

// errnoSetter mirrors syscall failures into the per-process errno
// cell.
type errnoSetter interface {
	SetErrno(e errno.Error)
}

// currentOwner finds the resource owner for the calling task, if any.
func currentOwner() kres.Owner {
	t := kernel.CurrentTask()
	if t == nil {
		return nil
	}
	if o, ok := t.Tag().(kres.Owner); ok {
		return o
	}
	return nil
}

// seterr records err in the calling process's errno cell and returns
// it unchanged.
func seterr(err error) error {
	if err == nil {
		return nil
	}
	if t := kernel.CurrentTask(); t != nil {
		if s, ok := t.Tag().(errnoSetter); ok {
			var e errno.Error
			if errors.As(err, &e) {
				s.SetErrno(e)
			} else {
				s.SetErrno(errno.EIO)
			}
		}
	}
	return err
}

// normalize returns a clean absolute path. Relative paths resolve
// against the calling process's working directory; "." and ".." are
// not special.
func normalize(path string) string {
	if !strings.HasPrefix(path, "/") {
		cwd := "/"
		if t := kernel.CurrentTask(); t != nil {
			if p, ok := t.Tag().(cwdProvider); ok && p.CWD() != "" {
				cwd = p.CWD()
			}
		}
		path = strings.TrimSuffix(cwd, "/") + "/" + path
	}
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}

// resolve finds the mount whose mount point is the longest prefix of
// path and the remainder below it. The table is sorted by descending
// mount point length so the first hit wins.
func resolve(path string) (*Mount, string, error) {
	table.mu.Lock(kernel.MaxDelay)
	defer table.mu.Unlock()
	return resolveLocked(path)
}

func resolveLocked(path string) (*Mount, string, error) {
	for _, m := range table.mounts {
		mp := m.MountPoint
		if mp == "/" {
			return m, path, nil
		}
		if path == mp {
			return m, "/", nil
		}
		if strings.HasPrefix(path, mp+"/") {
			return m, path[len(mp):], nil
		}
	}
	return nil, "", errno.ENOENT
}

// MountFs mounts the named filesystem type at mountPoint. srcPath may
// be empty for filesystems needing no backing device; otherwise the
// VFS opens it and hands the open device to the backend. opts is the
// comma separated option string.
func MountFs(fsName, srcPath, mountPoint, opts string) error {
	info, err := fs.Find(fsName)
	if err != nil {
		return seterr(err)
	}
	mountPoint = normalize(mountPoint)

	// Validate the mount point against the current table. The lock is
	// dropped before the backend and its source device come up; the
	// point is re-checked on insertion.
	parent, err := checkMountPoint(mountPoint)
	if err != nil {
		return seterr(err)
	}

	var src *File
	var source fs.Source
	if srcPath != "" {
		src, err = openInternal(normalize(srcPath), fs.O_RDWR)
		if err != nil {
			return seterr(err)
		}
		source = src
	}

	backend, err := info.Mount(source, srcPath, fs.ParseOptions(opts))
	if err != nil {
		if src != nil {
			_ = src.Destroy()
		}
		return seterr(err)
	}

	table.mu.Lock(kernel.MaxDelay)
	for _, m := range table.mounts {
		if m.MountPoint == mountPoint {
			table.mu.Unlock()
			_ = backend.Release()
			if src != nil {
				_ = src.Destroy()
			}
			return seterr(errno.EBUSY)
		}
	}
	table.mounts = append(table.mounts, &Mount{
		SrcPath:    srcPath,
		MountPoint: mountPoint,
		fs:         backend,
		src:        src,
		parent:     parent,
	})
	sort.SliceStable(table.mounts, func(i, j int) bool {
		return len(table.mounts[i].MountPoint) > len(table.mounts[j].MountPoint)
	})
	table.mu.Unlock()
	return nil
}

// checkMountPoint verifies the mount point exists as a directory and
// is not already mounted on, returning the mount it lives in.
func checkMountPoint(mountPoint string) (*Mount, error) {
	table.mu.Lock(kernel.MaxDelay)
	if len(table.mounts) == 0 {
		table.mu.Unlock()
		if mountPoint != "/" {
			return nil, errno.ENOENT
		}
		return nil, nil
	}
	for _, m := range table.mounts {
		if m.MountPoint == mountPoint {
			table.mu.Unlock()
			return nil, errno.EBUSY
		}
	}
	m, rest, err := resolveLocked(mountPoint)
	table.mu.Unlock()
	if err != nil {
		return nil, err
	}
	var st fs.FileInfo
	if err := m.fs.Stat(rest, &st); err != nil {
		return nil, err
	}
	if st.Type != fs.TypeDir {
		return nil, errno.ENOTDIR
	}
	return m, nil
}

// Umount removes the mount at mountPoint. It fails with EBUSY while
// any open file lies beneath it or another mount hangs below it.
func Umount(mountPoint string) error {
	mountPoint = normalize(mountPoint)
	table.mu.Lock(kernel.MaxDelay)
	defer table.mu.Unlock()
	idx := -1
	var mnt *Mount
	for i, m := range table.mounts {
		if m.MountPoint == mountPoint {
			idx, mnt = i, m
			break
		}
	}
	if mnt == nil {
		return seterr(errno.ENOENT)
	}
	if mnt.refs.Load() > 0 {
		return seterr(errno.EBUSY)
	}
	for _, m := range table.mounts {
		if m.parent == mnt {
			return seterr(errno.EBUSY)
		}
	}
	if err := mnt.fs.Release(); err != nil {
		return seterr(err)
	}
	if mnt.src != nil {
		_ = mnt.src.Destroy()
	}
	table.mounts = append(table.mounts[:idx], table.mounts[idx+1:]...)
	return nil
}

// Mounts returns a snapshot of the mount table.
func Mounts() []*Mount {
	table.mu.Lock(kernel.MaxDelay)
	defer table.mu.Unlock()
	out := make([]*Mount, len(table.mounts))
	copy(out, table.mounts)
	return out
}

// Reset force-unmounts everything, ignoring open handles. Used at halt
// and between tests.
func Reset() {
	table.mu.Lock(kernel.MaxDelay)
	mounts := table.mounts
	table.mounts = nil
	table.mu.Unlock()
	for _, m := range mounts {
		_ = m.fs.Release()
		if m.src != nil {
			_ = m.src.Destroy()
		}
	}
}

// Mkdir creates a directory.
func Mkdir(path string, mode fs.FileMode) error {
	m, rest, err := resolve(normalize(path))
	if err != nil {
		return seterr(err)
	}
	return seterr(m.fs.Mkdir(rest, mode))
}

// Mkfifo creates a named pipe.
func Mkfifo(path string, mode fs.FileMode) error {
	m, rest, err := resolve(normalize(path))
	if err != nil {
		return seterr(err)
	}
	return seterr(m.fs.Mkfifo(rest, mode))
}

// Mknod creates a device node bound to a registered driver.
func Mknod(path, driverName string, major, minor int) error {
	m, rest, err := resolve(normalize(path))
	if err != nil {
		return seterr(err)
	}
	return seterr(m.fs.Mknod(rest, fs.DevNode{Driver: driverName, Major: major, Minor: minor}))
}

// Remove deletes the file, empty directory or node at path.
func Remove(path string) error {
	m, rest, err := resolve(normalize(path))
	if err != nil {
		return seterr(err)
	}
	return seterr(m.fs.Remove(rest))
}

// Rename moves oldPath to newPath. Both must live on the same mount.
func Rename(oldPath, newPath string) error {
	mOld, restOld, err := resolve(normalize(oldPath))
	if err != nil {
		return seterr(err)
	}
	mNew, restNew, err := resolve(normalize(newPath))
	if err != nil {
		return seterr(err)
	}
	if mOld != mNew {
		return seterr(errno.EINVAL)
	}
	return seterr(mOld.fs.Rename(restOld, restNew))
}

// Chmod changes the mode bits of path.
func Chmod(path string, mode fs.FileMode) error {
	m, rest, err := resolve(normalize(path))
	if err != nil {
		return seterr(err)
	}
	return seterr(m.fs.Chmod(rest, mode))
}

// Chown changes the owner of path.
func Chown(path string, uid, gid int) error {
	m, rest, err := resolve(normalize(path))
	if err != nil {
		return seterr(err)
	}
	return seterr(m.fs.Chown(rest, uid, gid))
}

// Stat fills st for the object at path.
func Stat(path string, st *fs.FileInfo) error {
	m, rest, err := resolve(normalize(path))
	if err != nil {
		return seterr(err)
	}
	return seterr(m.fs.Stat(rest, st))
}

// StatFs fills st for the filesystem containing path.
func StatFs(path string, st *fs.FsInfo) error {
	m, _, err := resolve(normalize(path))
	if err != nil {
		return seterr(err)
	}
	return seterr(m.fs.StatFs(st))
}

// Sync flushes every mounted filesystem.
func Sync() {
	for _, m := range Mounts() {
		if err := m.fs.Sync(); err != nil {
			_ = seterr(err)
		}
	}
}
