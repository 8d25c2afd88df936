package vfs

import (
	"io"
	"sync"

	"github.com/jerryzhang126/dnx-rtos/fs"
	"github.com/jerryzhang126/dnx-rtos/kernel/kres"
	"github.com/jerryzhang126/dnx-rtos/lib/errno"
)

// Dir is an open directory stream. Entries already read are kept so
// Seekdir can replay the finite sequence from any position.
type Dir struct {
	hdr   kres.Header
	mnt   *Mount
	h     fs.DirHandle
	path  string
	owner kres.Owner

	mu      sync.Mutex
	entries []fs.DirEntry
	pos     int
	eof     bool
	closed  bool
}

// OpenDir opens the directory at path for iteration.
func OpenDir(path string) (*Dir, error) {
	p := normalize(path)
	m, rest, err := resolve(p)
	if err != nil {
		return nil, seterr(err)
	}
	h, err := m.fs.OpenDir(rest)
	if err != nil {
		return nil, seterr(err)
	}
	d := &Dir{
		mnt:  m,
		h:    h,
		path: p,
	}
	d.hdr.Init(kres.KindDir, d)
	m.refs.Add(1)
	if o := currentOwner(); o != nil {
		d.owner = o
		o.Register(d)
	}
	return d, nil
}

// Head returns the resource header.
func (d *Dir) Head() *kres.Header {
	return &d.hdr
}

func (d *Dir) String() string {
	return d.path
}

// Readdir returns the next entry, or io.EOF at the end of the
// directory.
func (d *Dir) Readdir() (fs.DirEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fs.DirEntry{}, seterr(errno.EBADF)
	}
	if err := d.fill(d.pos + 1); err != nil && d.pos >= len(d.entries) {
		if err == io.EOF {
			return fs.DirEntry{}, io.EOF
		}
		return fs.DirEntry{}, seterr(err)
	}
	if d.pos >= len(d.entries) {
		return fs.DirEntry{}, io.EOF
	}
	e := d.entries[d.pos]
	d.pos++
	return e, nil
}

// fill reads from the backend until n entries are cached or the
// directory ends.
func (d *Dir) fill(n int) error {
	for !d.eof && len(d.entries) < n {
		e, err := d.h.Readdir()
		if err == io.EOF {
			d.eof = true
			return io.EOF
		}
		if err != nil {
			return err
		}
		d.entries = append(d.entries, e)
	}
	return nil
}

// Telldir returns a token Seekdir accepts to restart iteration here.
func (d *Dir) Telldir() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pos
}

// Seekdir restarts iteration at a token previously returned by
// Telldir.
func (d *Dir) Seekdir(pos int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if pos < 0 {
		pos = 0
	}
	d.pos = pos
}

// Rewinddir restarts iteration at the beginning.
func (d *Dir) Rewinddir() {
	d.Seekdir(0)
}

// Close releases the directory stream.
func (d *Dir) Close() error {
	if d.owner != nil {
		if e := d.owner.Release(d, kres.KindDir); e != errno.OK {
			return seterr(e)
		}
		return nil
	}
	return seterr(d.Destroy())
}

// Destroy closes the backend stream; called through the resource list.
func (d *Dir) Destroy() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return errno.EBADF
	}
	d.closed = true
	d.mu.Unlock()
	err := d.h.Close()
	d.mnt.refs.Add(-1)
	return err
}

var _ kres.Resource = (*Dir)(nil)
