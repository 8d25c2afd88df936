// Package ramfs provides the in-memory filesystem used as the root.
// It keeps a tree of directories, regular files, FIFO nodes and device
// nodes. Regular file I/O is byte-atomic under the filesystem lock.
package ramfs

import (
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jerryzhang126/dnx-rtos/driver"
	"github.com/jerryzhang126/dnx-rtos/fs"
	"github.com/jerryzhang126/dnx-rtos/lib/errno"
)

// Register with Fs
func init() {
	fs.Register(&fs.RegInfo{
		Name:        "ramfs",
		Description: "In memory general purpose filesystem.",
		Mount:       New,
	})
}

// Fs represents one mounted ramfs instance.
type Fs struct {
	mu   sync.RWMutex
	root *node
}

type node struct {
	name     string
	typ      fs.FileType
	mode     fs.FileMode
	uid, gid int
	mtime    time.Time
	data     []byte
	children map[string]*node
	pipe     *pipe
	dev      *driver.Device
	devNode  fs.DevNode
	opens    int
}

// New creates an empty ramfs. The source is ignored; ramfs needs no
// backing device.
func New(src fs.Source, srcPath string, opt fs.Options) (fs.Fs, error) {
	return &Fs{
		root: &node{
			name:     "/",
			typ:      fs.TypeDir,
			mode:     0777,
			mtime:    time.Now(),
			children: make(map[string]*node),
		},
	}, nil
}

// Name of the filesystem type
func (f *Fs) Name() string {
	return "ramfs"
}

// Release drops the tree and shuts down any device nodes still bound.
func (f *Fs) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var walk func(n *node)
	walk = func(n *node) {
		if n.dev != nil {
			_ = n.dev.Release()
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(f.root)
	f.root.children = make(map[string]*node)
	return nil
}

// split returns the cleaned path elements of p.
func split(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// lookup walks to the node at p. Caller holds the lock.
func (f *Fs) lookup(p string) (*node, error) {
	n := f.root
	for _, elem := range split(p) {
		if n.typ != fs.TypeDir {
			return nil, errno.ENOTDIR
		}
		child, ok := n.children[elem]
		if !ok {
			return nil, errno.ENOENT
		}
		n = child
	}
	return n, nil
}

// lookupParent walks to the directory containing p and returns it with
// the leaf name. Caller holds the lock.
func (f *Fs) lookupParent(p string) (*node, string, error) {
	dir, leaf := path.Split(strings.TrimSuffix(p, "/"))
	if leaf == "" {
		return nil, "", errno.EINVAL
	}
	n, err := f.lookup(dir)
	if err != nil {
		return nil, "", err
	}
	if n.typ != fs.TypeDir {
		return nil, "", errno.ENOTDIR
	}
	return n, leaf, nil
}

func (f *Fs) create(p string, typ fs.FileType, mode fs.FileMode) (*node, error) {
	parent, leaf, err := f.lookupParent(p)
	if err != nil {
		return nil, err
	}
	if _, exists := parent.children[leaf]; exists {
		return nil, errno.EEXIST
	}
	n := &node{
		name:  leaf,
		typ:   typ,
		mode:  mode,
		mtime: time.Now(),
	}
	if typ == fs.TypeDir {
		n.children = make(map[string]*node)
	}
	parent.children[leaf] = n
	return n, nil
}

// Open opens the file at p, creating it when O_CREATE is given.
func (f *Fs) Open(p string, flags int) (fs.FileHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.lookup(p)
	if err == errno.ENOENT && flags&fs.O_CREATE != 0 {
		n, err = f.create(p, fs.TypeRegular, 0666)
	}
	if err != nil {
		return nil, err
	}
	switch n.typ {
	case fs.TypeDir:
		return nil, errno.EISDIR
	case fs.TypeDevice:
		if err := n.dev.Open(flags); err != nil {
			return nil, err
		}
		return &devHandle{fs: f, n: n}, nil
	case fs.TypeFIFO:
		h := &fifoHandle{fs: f, n: n, reads: readable(flags), writes: writable(flags)}
		n.pipe.attach(h.reads, h.writes)
		return h, nil
	}
	if flags&fs.O_TRUNC != 0 {
		n.data = nil
		n.mtime = time.Now()
	}
	n.opens++
	return &fileHandle{fs: f, n: n}, nil
}

func readable(flags int) bool {
	return flags&0x3 == fs.O_RDONLY || flags&0x3 == fs.O_RDWR
}

func writable(flags int) bool {
	return flags&0x3 == fs.O_WRONLY || flags&0x3 == fs.O_RDWR
}

// Mkdir creates a directory at p.
func (f *Fs) Mkdir(p string, mode fs.FileMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.create(p, fs.TypeDir, mode)
	return err
}

// Mkfifo creates a named pipe at p.
func (f *Fs) Mkfifo(p string, mode fs.FileMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.create(p, fs.TypeFIFO, mode)
	if err != nil {
		return err
	}
	n.pipe = newPipe()
	return nil
}

// Mknod creates a device node at p bound to an initialized driver
// instance.
func (f *Fs) Mknod(p string, dev fs.DevNode) error {
	d, err := driver.Init(dev)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, cerr := f.create(p, fs.TypeDevice, 0666)
	if cerr != nil {
		_ = d.Release()
		return cerr
	}
	n.dev = d
	n.devNode = dev
	return nil
}

// OpenDir opens the directory at p for listing. The listing is a
// snapshot taken here, sorted by name.
func (f *Fs) OpenDir(p string) (fs.DirHandle, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n, err := f.lookup(p)
	if err != nil {
		return nil, err
	}
	if n.typ != fs.TypeDir {
		return nil, errno.ENOTDIR
	}
	entries := make([]fs.DirEntry, 0, len(n.children))
	for _, c := range n.children {
		entries = append(entries, fs.DirEntry{
			Name: c.name,
			Size: int64(len(c.data)),
			Type: c.typ,
			Dev:  c.devNode,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return &dirHandle{entries: entries}, nil
}

// Remove deletes the object at p. Directories must be empty.
func (f *Fs) Remove(p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	parent, leaf, err := f.lookupParent(p)
	if err != nil {
		return err
	}
	n, ok := parent.children[leaf]
	if !ok {
		return errno.ENOENT
	}
	if n.typ == fs.TypeDir && len(n.children) > 0 {
		return errno.EBUSY
	}
	if n.opens > 0 {
		return errno.EBUSY
	}
	if n.dev != nil {
		_ = n.dev.Release()
	}
	delete(parent.children, leaf)
	return nil
}

// Rename moves oldPath to newPath within this filesystem.
func (f *Fs) Rename(oldPath, newPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	oldParent, oldLeaf, err := f.lookupParent(oldPath)
	if err != nil {
		return err
	}
	n, ok := oldParent.children[oldLeaf]
	if !ok {
		return errno.ENOENT
	}
	newParent, newLeaf, err := f.lookupParent(newPath)
	if err != nil {
		return err
	}
	if _, exists := newParent.children[newLeaf]; exists {
		return errno.EEXIST
	}
	delete(oldParent.children, oldLeaf)
	n.name = newLeaf
	newParent.children[newLeaf] = n
	return nil
}

// Chmod changes the mode bits at p.
func (f *Fs) Chmod(p string, mode fs.FileMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.lookup(p)
	if err != nil {
		return err
	}
	n.mode = mode
	return nil
}

// Chown changes the owner at p.
func (f *Fs) Chown(p string, uid, gid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.lookup(p)
	if err != nil {
		return err
	}
	n.uid, n.gid = uid, gid
	return nil
}

// Stat fills st for the object at p.
func (f *Fs) Stat(p string, st *fs.FileInfo) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n, err := f.lookup(p)
	if err != nil {
		return err
	}
	fillInfo(n, st)
	return nil
}

func fillInfo(n *node, st *fs.FileInfo) {
	st.Name = n.name
	st.Size = int64(len(n.data))
	st.Type = n.typ
	st.Mode = n.mode
	st.UID = n.uid
	st.GID = n.gid
	st.Dev = n.devNode
	st.ModTime = n.mtime
}

// StatFs fills st for this filesystem.
func (f *Fs) StatFs(st *fs.FsInfo) error {
	st.Type = "ramfs"
	st.BlockSize = 1
	return nil
}

// Sync is a no-op; there is nothing behind the RAM.
func (f *Fs) Sync() error {
	return nil
}

// fileHandle is an open regular file.
type fileHandle struct {
	fs     *Fs
	n      *node
	closed bool
}

func (h *fileHandle) Close(force bool) error {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	if h.closed {
		return errno.EBADF
	}
	h.closed = true
	h.n.opens--
	return nil
}

func (h *fileHandle) Read(p []byte, off int64) (int, error) {
	h.fs.mu.RLock()
	defer h.fs.mu.RUnlock()
	if off >= int64(len(h.n.data)) {
		return 0, io.EOF
	}
	n := copy(p, h.n.data[off:])
	return n, nil
}

func (h *fileHandle) Write(p []byte, off int64) (int, error) {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	end := off + int64(len(p))
	if end > int64(len(h.n.data)) {
		grown := make([]byte, end)
		copy(grown, h.n.data)
		h.n.data = grown
	}
	copy(h.n.data[off:], p)
	h.n.mtime = time.Now()
	return len(p), nil
}

func (h *fileHandle) Ioctl(request uint, arg interface{}) error {
	return errno.ENOSYS
}

func (h *fileHandle) Flush() error {
	return nil
}

func (h *fileHandle) Fstat(st *fs.FileInfo) error {
	h.fs.mu.RLock()
	defer h.fs.mu.RUnlock()
	fillInfo(h.n, st)
	return nil
}

// devHandle routes file I/O through the driver bound to the node.
type devHandle struct {
	fs *Fs
	n  *node
}

func (h *devHandle) Close(force bool) error {
	return h.n.dev.Close(force)
}

func (h *devHandle) Read(p []byte, off int64) (int, error) {
	return h.n.dev.Read(p, off)
}

func (h *devHandle) Write(p []byte, off int64) (int, error) {
	return h.n.dev.Write(p, off)
}

func (h *devHandle) Ioctl(request uint, arg interface{}) error {
	return h.n.dev.Ioctl(request, arg)
}

func (h *devHandle) Flush() error {
	return h.n.dev.Flush()
}

func (h *devHandle) Fstat(st *fs.FileInfo) error {
	if err := h.n.dev.Stat(st); err != nil {
		return err
	}
	st.Name = h.n.name
	st.Type = fs.TypeDevice
	st.Dev = h.n.devNode
	return nil
}

// dirHandle iterates a snapshot listing.
type dirHandle struct {
	entries []fs.DirEntry
	pos     int
}

func (h *dirHandle) Readdir() (fs.DirEntry, error) {
	if h.pos >= len(h.entries) {
		return fs.DirEntry{}, io.EOF
	}
	e := h.entries[h.pos]
	h.pos++
	return e, nil
}

func (h *dirHandle) Close() error {
	return nil
}

var _ fs.Fs = (*Fs)(nil)
