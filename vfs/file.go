package vfs

import (
	"io"
	"sync"

	"github.com/jerryzhang126/dnx-rtos/fs"
	"github.com/jerryzhang126/dnx-rtos/kernel/kres"
	"github.com/jerryzhang126/dnx-rtos/lib/errno"
)

// Seek whence values.
const (
	SeekSet = io.SeekStart
	SeekCur = io.SeekCurrent
	SeekEnd = io.SeekEnd
)

// File is an open file. It is owned by exactly one process and sits on
// that process's resource list until closed.
type File struct {
	hdr   kres.Header
	mnt   *Mount
	h     fs.FileHandle
	path  string
	flags int
	owner kres.Owner

	mu     sync.Mutex
	pos    int64
	closed bool
}

// Open opens path and registers the record on the calling process's
// resource list.
func Open(path string, flags int) (*File, error) {
	f, err := openInternal(normalize(path), flags)
	if err != nil {
		return nil, seterr(err)
	}
	if o := currentOwner(); o != nil {
		f.owner = o
		o.Register(f)
	}
	return f, nil
}

// OpenFor opens path on behalf of owner, registering the record on
// owner's resource list instead of the caller's. The process factory
// uses it to wire a new process's stdio before the process runs.
func OpenFor(owner kres.Owner, path string, flags int) (*File, error) {
	f, err := openInternal(normalize(path), flags)
	if err != nil {
		return nil, seterr(err)
	}
	if owner != nil {
		f.owner = owner
		owner.Register(f)
	}
	return f, nil
}

// openInternal opens without touching any resource list; the VFS uses
// it for mount sources.
func openInternal(path string, flags int) (*File, error) {
	m, rest, err := resolve(path)
	if err != nil {
		return nil, err
	}
	h, err := m.fs.Open(rest, flags)
	if err != nil {
		return nil, err
	}
	f := &File{
		mnt:   m,
		h:     h,
		path:  path,
		flags: flags,
	}
	f.hdr.Init(kres.KindFile, f)
	m.refs.Add(1)
	if flags&fs.O_APPEND != 0 {
		var st fs.FileInfo
		if h.Fstat(&st) == nil {
			f.pos = st.Size
		}
	}
	return f, nil
}

// Head returns the resource header.
func (f *File) Head() *kres.Header {
	return &f.hdr
}

// Path returns the absolute path the file was opened with.
func (f *File) Path() string {
	return f.path
}

func (f *File) String() string {
	return f.path
}

// Close releases the backend handle and removes the record from its
// owner's resource list.
func (f *File) Close() error {
	if f.owner != nil {
		if e := f.owner.Release(f, kres.KindFile); e != errno.OK {
			return seterr(e)
		}
		return nil
	}
	return seterr(f.Destroy())
}

// Destroy closes the backend handle. It is called through the resource
// list; Close is the user-facing path.
func (f *File) Destroy() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return errno.EBADF
	}
	f.closed = true
	f.mu.Unlock()
	err := f.h.Close(false)
	f.mnt.refs.Add(-1)
	return err
}

// Read reads from the current position.
func (f *File) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, seterr(errno.EBADF)
	}
	n, err := f.h.Read(p, f.pos)
	f.pos += int64(n)
	if err != nil && err != io.EOF {
		return n, seterr(err)
	}
	return n, err
}

// Write writes at the current position.
func (f *File) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, seterr(errno.EBADF)
	}
	n, err := f.h.Write(p, f.pos)
	f.pos += int64(n)
	if err != nil {
		return n, seterr(err)
	}
	return n, nil
}

// ReadAt reads at an absolute offset without moving the position.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if f.isClosed() {
		return 0, seterr(errno.EBADF)
	}
	return f.h.Read(p, off)
}

// WriteAt writes at an absolute offset without moving the position.
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	if f.isClosed() {
		return 0, seterr(errno.EBADF)
	}
	return f.h.Write(p, off)
}

// Seek moves the file position.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, seterr(errno.EBADF)
	}
	var base int64
	switch whence {
	case SeekSet:
		base = 0
	case SeekCur:
		base = f.pos
	case SeekEnd:
		var st fs.FileInfo
		if err := f.h.Fstat(&st); err != nil {
			return 0, seterr(err)
		}
		base = st.Size
	default:
		return 0, seterr(errno.EINVAL)
	}
	if base+offset < 0 {
		return 0, seterr(errno.EINVAL)
	}
	f.pos = base + offset
	return f.pos, nil
}

// Tell returns the current file position.
func (f *File) Tell() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos
}

// Ioctl issues a device request on the file.
func (f *File) Ioctl(request uint, arg interface{}) error {
	if f.isClosed() {
		return seterr(errno.EBADF)
	}
	return seterr(f.h.Ioctl(request, arg))
}

// Flush pushes buffered writes down to the backend.
func (f *File) Flush() error {
	if f.isClosed() {
		return seterr(errno.EBADF)
	}
	return seterr(f.h.Flush())
}

// Fstat fills st for the open file.
func (f *File) Fstat(st *fs.FileInfo) error {
	if f.isClosed() {
		return seterr(errno.EBADF)
	}
	return seterr(f.h.Fstat(st))
}

// Size returns the current file size.
func (f *File) Size() (int64, error) {
	var st fs.FileInfo
	if err := f.Fstat(&st); err != nil {
		return 0, err
	}
	return st.Size, nil
}

// Sync flushes the file, satisfying fs.Source for mount sources.
func (f *File) Sync() error {
	return f.Flush()
}

func (f *File) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

var (
	_ kres.Resource = (*File)(nil)
	_ fs.Source     = (*File)(nil)
	_ io.Reader     = (*File)(nil)
	_ io.Writer     = (*File)(nil)
)
