// Package fatfs mounts a FAT32 volume from a block device, delegating
// the on-disk format to the go-diskfs library. The kernel-facing
// surface is the same backend contract every other filesystem
// implements. Mkfifo and Mknod report ENOSYS, as do Remove and Rename,
// which the library surface in use does not provide; Chmod and Chown
// are accepted and ignored.
package fatfs

import (
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/diskfs/go-diskfs/filesystem"
	"github.com/diskfs/go-diskfs/filesystem/fat32"

	"github.com/jerryzhang126/dnx-rtos/fs"
	"github.com/jerryzhang126/dnx-rtos/lib/errno"
)

// Register with Fs
func init() {
	fs.Register(&fs.RegInfo{
		Name:        "fatfs",
		Description: "FAT32 filesystem over a block device.",
		Mount:       New,
	})
}

// Fs represents a mounted FAT volume.
type Fs struct {
	mu       sync.Mutex
	dev      *sourceFile
	vol      *fat32.FileSystem
	readOnly bool
}

// New mounts the FAT volume found on the backing device. The "mkfs"
// option formats the device first.
func New(src fs.Source, srcPath string, opt fs.Options) (fs.Fs, error) {
	if src == nil {
		return nil, fmt.Errorf("fatfs needs a source device: %w", errno.EINVAL)
	}
	dev := &sourceFile{src: src}
	size, err := src.Size()
	if err != nil {
		return nil, fmt.Errorf("fatfs: sizing %s: %w", srcPath, err)
	}
	var vol *fat32.FileSystem
	if opt.Has("mkfs") {
		vol, err = fat32.Create(dev, size, 0, 512, "dnx")
	} else {
		vol, err = fat32.Read(dev, size, 0, 512)
	}
	if err != nil {
		return nil, fmt.Errorf("fatfs: %s: %w", srcPath, err)
	}
	return &Fs{
		dev:      dev,
		vol:      vol,
		readOnly: opt.Has("ro"),
	}, nil
}

// Name of the filesystem type
func (f *Fs) Name() string {
	return "fatfs"
}

// Release flushes the device.
func (f *Fs) Release() error {
	return f.dev.src.Sync()
}

func fatPath(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

// Open opens the file at p.
func (f *Fs) Open(p string, flags int) (fs.FileHandle, error) {
	writing := flags&(fs.O_WRONLY|fs.O_RDWR|fs.O_CREATE|fs.O_TRUNC|fs.O_APPEND) != 0
	if f.readOnly && writing {
		return nil, errno.EROFS
	}
	osFlags := os.O_RDONLY
	if writing {
		osFlags = os.O_RDWR
	}
	if flags&fs.O_CREATE != 0 {
		osFlags |= os.O_CREATE
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	file, err := f.vol.OpenFile(fatPath(p), osFlags)
	if err != nil {
		return nil, fmt.Errorf("fatfs open %s: %w", p, errno.ENOENT)
	}
	return &handle{fs: f, f: file, name: p}, nil
}

// Mkdir creates a directory at p.
func (f *Fs) Mkdir(p string, mode fs.FileMode) error {
	if f.readOnly {
		return errno.EROFS
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.vol.Mkdir(fatPath(p)); err != nil {
		return fmt.Errorf("fatfs mkdir %s: %w", p, errno.EIO)
	}
	return nil
}

// Mkfifo is not a FAT concept.
func (f *Fs) Mkfifo(p string, mode fs.FileMode) error {
	return errno.ENOSYS
}

// Mknod is not a FAT concept.
func (f *Fs) Mknod(p string, dev fs.DevNode) error {
	return errno.ENOSYS
}

// OpenDir lists the directory at p.
func (f *Fs) OpenDir(p string) (fs.DirHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	infos, err := f.vol.ReadDir(fatPath(p))
	if err != nil {
		return nil, errno.ENOENT
	}
	entries := make([]fs.DirEntry, 0, len(infos))
	for _, fi := range infos {
		name := fi.Name()
		if name == "." || name == ".." {
			continue
		}
		typ := fs.TypeRegular
		if fi.IsDir() {
			typ = fs.TypeDir
		}
		entries = append(entries, fs.DirEntry{Name: name, Size: fi.Size(), Type: typ})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return &dirHandle{entries: entries}, nil
}

// Remove is not provided by the FAT library surface in use.
func (f *Fs) Remove(p string) error {
	if f.readOnly {
		return errno.EROFS
	}
	return errno.ENOSYS
}

// Rename is not provided by the FAT library surface in use.
func (f *Fs) Rename(oldPath, newPath string) error {
	if f.readOnly {
		return errno.EROFS
	}
	return errno.ENOSYS
}

// Chmod is meaningless on FAT; accepted and ignored.
func (f *Fs) Chmod(p string, mode fs.FileMode) error {
	var st fs.FileInfo
	return f.Stat(p, &st)
}

// Chown is meaningless on FAT; accepted and ignored.
func (f *Fs) Chown(p string, uid, gid int) error {
	var st fs.FileInfo
	return f.Stat(p, &st)
}

// Stat fills st for the object at p.
func (f *Fs) Stat(p string, st *fs.FileInfo) error {
	if strings.Trim(p, "/") == "" {
		st.Name = "/"
		st.Type = fs.TypeDir
		st.Mode = 0777
		return nil
	}
	dir, leaf := path.Split(strings.TrimSuffix(p, "/"))
	dh, err := f.OpenDir(dir)
	if err != nil {
		return err
	}
	defer func() { _ = dh.Close() }()
	for {
		e, err := dh.Readdir()
		if err != nil {
			return errno.ENOENT
		}
		if e.Name == leaf {
			st.Name = e.Name
			st.Size = e.Size
			st.Type = e.Type
			st.Mode = 0777
			return nil
		}
	}
}

// StatFs fills st for this filesystem.
func (f *Fs) StatFs(st *fs.FsInfo) error {
	st.Type = "fatfs"
	st.BlockSize = 512
	if size, err := f.dev.src.Size(); err == nil {
		st.Blocks = size / 512
	}
	return nil
}

// Sync flushes the device.
func (f *Fs) Sync() error {
	return f.dev.src.Sync()
}

// handle is an open FAT file. The library file carries its own
// position; offset I/O seeks under the filesystem lock.
type handle struct {
	fs   *Fs
	f    filesystem.File
	name string
}

func (h *handle) Close(force bool) error {
	return nil
}

func (h *handle) Read(p []byte, off int64) (int, error) {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	if _, err := h.f.Seek(off, io.SeekStart); err != nil {
		return 0, errno.EIO
	}
	n, err := h.f.Read(p)
	if err != nil && err != io.EOF {
		return n, errno.EIO
	}
	return n, err
}

func (h *handle) Write(p []byte, off int64) (int, error) {
	if h.fs.readOnly {
		return 0, errno.EROFS
	}
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	if _, err := h.f.Seek(off, io.SeekStart); err != nil {
		return 0, errno.EIO
	}
	n, err := h.f.Write(p)
	if err != nil {
		return n, errno.EIO
	}
	return n, nil
}

func (h *handle) Ioctl(request uint, arg interface{}) error {
	return errno.ENOSYS
}

func (h *handle) Flush() error {
	return h.fs.dev.src.Sync()
}

func (h *handle) Fstat(st *fs.FileInfo) error {
	return h.fs.Stat(h.name, st)
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

// sourceFile adapts the VFS-opened block device to the file interface
// the FAT library expects.
type sourceFile struct {
	mu  sync.Mutex
	src fs.Source
	pos int64
}

func (s *sourceFile) ReadAt(p []byte, off int64) (int, error) {
	return s.src.ReadAt(p, off)
}

func (s *sourceFile) WriteAt(p []byte, off int64) (int, error) {
	return s.src.WriteAt(p, off)
}

func (s *sourceFile) Seek(offset int64, whence int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch whence {
	case io.SeekStart:
		s.pos = offset
	case io.SeekCurrent:
		s.pos += offset
	case io.SeekEnd:
		size, err := s.src.Size()
		if err != nil {
			return 0, err
		}
		s.pos = size + offset
	}
	return s.pos, nil
}

func (s *sourceFile) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.src.ReadAt(p, s.pos)
	s.pos += int64(n)
	return n, err
}

func (s *sourceFile) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.src.WriteAt(p, s.pos)
	s.pos += int64(n)
	return n, err
}

func (s *sourceFile) Close() error {
	return nil
}

var _ fs.Fs = (*Fs)(nil)
