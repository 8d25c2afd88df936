// Package devfs provides the device filesystem. It is a flat registry
// of device nodes created with mknod; opening a node routes every
// operation to the driver bound to it.
package devfs

import (
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jerryzhang126/dnx-rtos/driver"
	"github.com/jerryzhang126/dnx-rtos/fs"
	"github.com/jerryzhang126/dnx-rtos/lib/errno"
	"github.com/jerryzhang126/dnx-rtos/lib/printk"
)

// Register with Fs
func init() {
	fs.Register(&fs.RegInfo{
		Name:        "devfs",
		Description: "Device node registry filesystem.",
		Mount:       New,
	})
}

// Fs represents a mounted devfs instance.
type Fs struct {
	mu      sync.RWMutex
	mounted time.Time
	nodes   map[string]*devNode
}

type devNode struct {
	name string
	dev  *driver.Device
}

// New creates an empty devfs. The source is ignored.
func New(src fs.Source, srcPath string, opt fs.Options) (fs.Fs, error) {
	return &Fs{
		mounted: time.Now(),
		nodes:   make(map[string]*devNode),
	}, nil
}

// Name of the filesystem type
func (f *Fs) Name() string {
	return "devfs"
}

// Release shuts every registered device down.
func (f *Fs) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for name, n := range f.nodes {
		if err := n.dev.Release(); err != nil {
			printk.Errorf(nil, "devfs: releasing %s: %v", name, err)
		}
	}
	f.nodes = make(map[string]*devNode)
	return nil
}

// leaf strips the leading slash; devfs has no subdirectories.
func leaf(p string) (string, error) {
	p = strings.Trim(p, "/")
	if p == "" || strings.Contains(p, "/") {
		return "", errno.ENOENT
	}
	return p, nil
}

func (f *Fs) find(p string) (*devNode, error) {
	name, err := leaf(p)
	if err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	n, ok := f.nodes[name]
	if !ok {
		return nil, errno.ENOENT
	}
	return n, nil
}

// Open opens the device behind the node at p.
func (f *Fs) Open(p string, flags int) (fs.FileHandle, error) {
	n, err := f.find(p)
	if err != nil {
		return nil, err
	}
	if err := n.dev.Open(flags); err != nil {
		return nil, err
	}
	return &handle{n: n}, nil
}

// Mkdir is not supported; devfs is flat.
func (f *Fs) Mkdir(p string, mode fs.FileMode) error {
	return errno.ENOSYS
}

// Mkfifo is not supported on devfs.
func (f *Fs) Mkfifo(p string, mode fs.FileMode) error {
	return errno.ENOSYS
}

// Mknod initializes the driver instance and registers the node.
func (f *Fs) Mknod(p string, dev fs.DevNode) error {
	name, err := leaf(p)
	if err != nil {
		return errno.EINVAL
	}
	f.mu.Lock()
	if _, exists := f.nodes[name]; exists {
		f.mu.Unlock()
		return errno.EEXIST
	}
	f.mu.Unlock()
	d, err := driver.Init(dev)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.nodes[name]; exists {
		_ = d.Release()
		return errno.EEXIST
	}
	f.nodes[name] = &devNode{name: name, dev: d}
	printk.Debugf(nil, "devfs: node %s -> %s (%d,%d)", name, dev.Driver, dev.Major, dev.Minor)
	return nil
}

// OpenDir lists the registered nodes. Only the root can be listed.
func (f *Fs) OpenDir(p string) (fs.DirHandle, error) {
	if strings.Trim(p, "/") != "" {
		return nil, errno.ENOENT
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	entries := make([]fs.DirEntry, 0, len(f.nodes))
	for _, n := range f.nodes {
		entries = append(entries, fs.DirEntry{
			Name: n.name,
			Type: fs.TypeDevice,
			Dev:  n.dev.Node,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return &dirHandle{entries: entries}, nil
}

// Remove unregisters the node and releases its driver instance.
func (f *Fs) Remove(p string) error {
	name, err := leaf(p)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[name]
	if !ok {
		return errno.ENOENT
	}
	if err := n.dev.Release(); err != nil {
		return err
	}
	delete(f.nodes, name)
	return nil
}

// Rename renames a node in place.
func (f *Fs) Rename(oldPath, newPath string) error {
	oldName, err := leaf(oldPath)
	if err != nil {
		return err
	}
	newName, err := leaf(newPath)
	if err != nil {
		return errno.EINVAL
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[oldName]
	if !ok {
		return errno.ENOENT
	}
	if _, exists := f.nodes[newName]; exists {
		return errno.EEXIST
	}
	delete(f.nodes, oldName)
	n.name = newName
	f.nodes[newName] = n
	return nil
}

// Chmod is accepted and ignored; device permissions live with the
// driver.
func (f *Fs) Chmod(p string, mode fs.FileMode) error {
	_, err := f.find(p)
	return err
}

// Chown is accepted and ignored.
func (f *Fs) Chown(p string, uid, gid int) error {
	_, err := f.find(p)
	return err
}

// Stat fills st for the node at p.
func (f *Fs) Stat(p string, st *fs.FileInfo) error {
	if strings.Trim(p, "/") == "" {
		st.Name = "/"
		st.Type = fs.TypeDir
		st.Mode = 0777
		st.ModTime = f.mounted
		return nil
	}
	n, err := f.find(p)
	if err != nil {
		return err
	}
	if err := n.dev.Stat(st); err != nil {
		return err
	}
	st.Name = n.name
	st.Type = fs.TypeDevice
	st.Dev = n.dev.Node
	return nil
}

// StatFs fills st for this filesystem.
func (f *Fs) StatFs(st *fs.FsInfo) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	st.Type = "devfs"
	st.Files = int64(len(f.nodes))
	return nil
}

// Sync flushes every registered device.
func (f *Fs) Sync() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, n := range f.nodes {
		_ = n.dev.Flush()
	}
	return nil
}

// handle forwards file operations to the device.
type handle struct {
	n *devNode
}

func (h *handle) Close(force bool) error {
	return h.n.dev.Close(force)
}

func (h *handle) Read(p []byte, off int64) (int, error) {
	return h.n.dev.Read(p, off)
}

func (h *handle) Write(p []byte, off int64) (int, error) {
	return h.n.dev.Write(p, off)
}

func (h *handle) Ioctl(request uint, arg interface{}) error {
	return h.n.dev.Ioctl(request, arg)
}

func (h *handle) Flush() error {
	return h.n.dev.Flush()
}

func (h *handle) Fstat(st *fs.FileInfo) error {
	if err := h.n.dev.Stat(st); err != nil {
		return err
	}
	st.Name = h.n.name
	st.Type = fs.TypeDevice
	st.Dev = h.n.dev.Node
	return nil
}

// dirHandle iterates the node listing snapshot.
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
