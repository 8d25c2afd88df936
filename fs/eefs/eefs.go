// Package eefs provides the EEPROM filesystem. It keeps a tree of
// files and directories serialized onto a small block device. Writes
// are write-back by default and write-through when the mount carries
// the "sync" option; a mount with "ro" fails every mutating operation
// with EROFS.
package eefs

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jerryzhang126/dnx-rtos/fs"
	"github.com/jerryzhang126/dnx-rtos/lib/errno"
)

// Register with Fs
func init() {
	fs.Register(&fs.RegInfo{
		Name:        "eefs",
		Description: "EEPROM filesystem over a block device.",
		Mount:       New,
	})
}

// On-device layout: magic, payload length, gob encoded tree.
var magic = [4]byte{'e', 'e', 'f', 's'}

// Node is one tree entry. Fields are exported for serialization only.
type Node struct {
	Name     string
	Dir      bool
	Mode     fs.FileMode
	UID, GID int
	ModTime  time.Time
	Data     []byte
	Children map[string]*Node
}

// Fs represents a mounted eefs instance.
type Fs struct {
	mu           sync.Mutex
	dev          fs.Source
	root         *Node
	readOnly     bool
	writeThrough bool
	dirty        bool
}

// New mounts an eefs from the backing device. An unformatted device is
// formatted with an empty root unless the mount is read-only.
func New(src fs.Source, srcPath string, opt fs.Options) (fs.Fs, error) {
	if src == nil {
		return nil, fmt.Errorf("eefs needs a source device: %w", errno.EINVAL)
	}
	f := &Fs{
		dev:          src,
		readOnly:     opt.Has("ro"),
		writeThrough: opt.Has("sync"),
	}
	if err := f.load(); err != nil {
		if f.readOnly {
			return nil, err
		}
		f.root = emptyRoot()
		if err := f.store(); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func emptyRoot() *Node {
	return &Node{
		Name:     "/",
		Dir:      true,
		Mode:     0777,
		ModTime:  time.Now(),
		Children: make(map[string]*Node),
	}
}

// load reads the tree from the device.
func (f *Fs) load() error {
	var hdr [8]byte
	if _, err := f.dev.ReadAt(hdr[:], 0); err != nil {
		return fmt.Errorf("eefs: reading superblock: %w", err)
	}
	if !bytes.Equal(hdr[:4], magic[:]) {
		return fmt.Errorf("eefs: bad magic: %w", errno.EIO)
	}
	length := binary.LittleEndian.Uint32(hdr[4:])
	payload := make([]byte, length)
	if _, err := f.dev.ReadAt(payload, int64(len(hdr))); err != nil {
		return fmt.Errorf("eefs: reading tree: %w", err)
	}
	root := new(Node)
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(root); err != nil {
		return fmt.Errorf("eefs: decoding tree: %w", err)
	}
	f.root = root
	return nil
}

// store writes the tree back to the device. Caller holds the lock.
func (f *Fs) store() error {
	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(f.root); err != nil {
		return fmt.Errorf("eefs: encoding tree: %w", err)
	}
	size, err := f.dev.Size()
	if err == nil && size > 0 && int64(payload.Len()+8) > size {
		return errno.ENOSPC
	}
	var hdr [8]byte
	copy(hdr[:4], magic[:])
	binary.LittleEndian.PutUint32(hdr[4:], uint32(payload.Len()))
	if _, err := f.dev.WriteAt(hdr[:], 0); err != nil {
		return fmt.Errorf("eefs: writing superblock: %w", err)
	}
	if _, err := f.dev.WriteAt(payload.Bytes(), int64(len(hdr))); err != nil {
		return fmt.Errorf("eefs: writing tree: %w", err)
	}
	f.dirty = false
	return f.dev.Sync()
}

// commit persists a mutation: immediately on sync mounts, lazily
// otherwise. Caller holds the lock.
func (f *Fs) commit() error {
	if f.writeThrough {
		return f.store()
	}
	f.dirty = true
	return nil
}

// Name of the filesystem type
func (f *Fs) Name() string {
	return "eefs"
}

// Release flushes outstanding writes to the device.
func (f *Fs) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dirty && !f.readOnly {
		return f.store()
	}
	return nil
}

func split(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func (f *Fs) lookup(p string) (*Node, error) {
	n := f.root
	for _, elem := range split(p) {
		if !n.Dir {
			return nil, errno.ENOTDIR
		}
		child, ok := n.Children[elem]
		if !ok {
			return nil, errno.ENOENT
		}
		n = child
	}
	return n, nil
}

func (f *Fs) lookupParent(p string) (*Node, string, error) {
	dir, leafName := path.Split(strings.TrimSuffix(p, "/"))
	if leafName == "" {
		return nil, "", errno.EINVAL
	}
	n, err := f.lookup(dir)
	if err != nil {
		return nil, "", err
	}
	if !n.Dir {
		return nil, "", errno.ENOTDIR
	}
	return n, leafName, nil
}

// Open opens the file at p, creating it when O_CREATE is given.
func (f *Fs) Open(p string, flags int) (fs.FileHandle, error) {
	writing := flags&(fs.O_WRONLY|fs.O_RDWR|fs.O_CREATE|fs.O_TRUNC|fs.O_APPEND) != 0
	if f.readOnly && writing {
		return nil, errno.EROFS
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.lookup(p)
	if err == errno.ENOENT && flags&fs.O_CREATE != 0 {
		var parent *Node
		var leafName string
		parent, leafName, err = f.lookupParent(p)
		if err != nil {
			return nil, err
		}
		n = &Node{Name: leafName, Mode: 0666, ModTime: time.Now()}
		parent.Children[leafName] = n
		if cerr := f.commit(); cerr != nil {
			return nil, cerr
		}
	}
	if err != nil {
		return nil, err
	}
	if n.Dir {
		return nil, errno.EISDIR
	}
	if flags&fs.O_TRUNC != 0 {
		n.Data = nil
		n.ModTime = time.Now()
		if err := f.commit(); err != nil {
			return nil, err
		}
	}
	return &handle{fs: f, n: n, writable: writing}, nil
}

// Mkdir creates a directory at p.
func (f *Fs) Mkdir(p string, mode fs.FileMode) error {
	if f.readOnly {
		return errno.EROFS
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	parent, leafName, err := f.lookupParent(p)
	if err != nil {
		return err
	}
	if _, exists := parent.Children[leafName]; exists {
		return errno.EEXIST
	}
	parent.Children[leafName] = &Node{
		Name:     leafName,
		Dir:      true,
		Mode:     mode,
		ModTime:  time.Now(),
		Children: make(map[string]*Node),
	}
	return f.commit()
}

// Mkfifo is not supported on a persistent EEPROM tree.
func (f *Fs) Mkfifo(p string, mode fs.FileMode) error {
	if f.readOnly {
		return errno.EROFS
	}
	return errno.ENOSYS
}

// Mknod is not supported; device nodes belong on devfs.
func (f *Fs) Mknod(p string, dev fs.DevNode) error {
	if f.readOnly {
		return errno.EROFS
	}
	return errno.ENOSYS
}

// OpenDir opens the directory at p for listing.
func (f *Fs) OpenDir(p string) (fs.DirHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.lookup(p)
	if err != nil {
		return nil, err
	}
	if !n.Dir {
		return nil, errno.ENOTDIR
	}
	entries := make([]fs.DirEntry, 0, len(n.Children))
	for _, c := range n.Children {
		typ := fs.TypeRegular
		if c.Dir {
			typ = fs.TypeDir
		}
		entries = append(entries, fs.DirEntry{Name: c.Name, Size: int64(len(c.Data)), Type: typ})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return &dirHandle{entries: entries}, nil
}

// Remove deletes the object at p. Directories must be empty.
func (f *Fs) Remove(p string) error {
	if f.readOnly {
		return errno.EROFS
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	parent, leafName, err := f.lookupParent(p)
	if err != nil {
		return err
	}
	n, ok := parent.Children[leafName]
	if !ok {
		return errno.ENOENT
	}
	if n.Dir && len(n.Children) > 0 {
		return errno.EBUSY
	}
	delete(parent.Children, leafName)
	return f.commit()
}

// Rename moves oldPath to newPath.
func (f *Fs) Rename(oldPath, newPath string) error {
	if f.readOnly {
		return errno.EROFS
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	oldParent, oldLeaf, err := f.lookupParent(oldPath)
	if err != nil {
		return err
	}
	n, ok := oldParent.Children[oldLeaf]
	if !ok {
		return errno.ENOENT
	}
	newParent, newLeaf, err := f.lookupParent(newPath)
	if err != nil {
		return err
	}
	if _, exists := newParent.Children[newLeaf]; exists {
		return errno.EEXIST
	}
	delete(oldParent.Children, oldLeaf)
	n.Name = newLeaf
	newParent.Children[newLeaf] = n
	return f.commit()
}

// Chmod changes the mode bits at p.
func (f *Fs) Chmod(p string, mode fs.FileMode) error {
	if f.readOnly {
		return errno.EROFS
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.lookup(p)
	if err != nil {
		return err
	}
	n.Mode = mode
	return f.commit()
}

// Chown changes the owner at p.
func (f *Fs) Chown(p string, uid, gid int) error {
	if f.readOnly {
		return errno.EROFS
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.lookup(p)
	if err != nil {
		return err
	}
	n.UID, n.GID = uid, gid
	return f.commit()
}

// Stat fills st for the object at p.
func (f *Fs) Stat(p string, st *fs.FileInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.lookup(p)
	if err != nil {
		return err
	}
	fill(n, st)
	return nil
}

func fill(n *Node, st *fs.FileInfo) {
	st.Name = n.Name
	st.Size = int64(len(n.Data))
	st.Type = fs.TypeRegular
	if n.Dir {
		st.Type = fs.TypeDir
	}
	st.Mode = n.Mode
	st.UID = n.UID
	st.GID = n.GID
	st.ModTime = n.ModTime
}

// StatFs fills st for this filesystem.
func (f *Fs) StatFs(st *fs.FsInfo) error {
	st.Type = "eefs"
	if size, err := f.dev.Size(); err == nil {
		st.Blocks = size
		st.BlockSize = 1
	}
	return nil
}

// Sync flushes outstanding writes to the device.
func (f *Fs) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dirty && !f.readOnly {
		return f.store()
	}
	return nil
}

// handle is an open eefs file.
type handle struct {
	fs       *Fs
	n        *Node
	writable bool
}

func (h *handle) Close(force bool) error {
	return h.Flush()
}

func (h *handle) Read(p []byte, off int64) (int, error) {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	if off >= int64(len(h.n.Data)) {
		return 0, io.EOF
	}
	return copy(p, h.n.Data[off:]), nil
}

func (h *handle) Write(p []byte, off int64) (int, error) {
	if !h.writable {
		return 0, errno.EACCES
	}
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	if h.fs.readOnly {
		return 0, errno.EROFS
	}
	end := off + int64(len(p))
	if end > int64(len(h.n.Data)) {
		grown := make([]byte, end)
		copy(grown, h.n.Data)
		h.n.Data = grown
	}
	copy(h.n.Data[off:], p)
	h.n.ModTime = time.Now()
	if err := h.fs.commit(); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (h *handle) Ioctl(request uint, arg interface{}) error {
	return errno.ENOSYS
}

func (h *handle) Flush() error {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	if h.fs.dirty && !h.fs.readOnly {
		return h.fs.store()
	}
	return nil
}

func (h *handle) Fstat(st *fs.FileInfo) error {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	fill(h.n, st)
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
