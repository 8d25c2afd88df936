// Package fs defines the contract every filesystem backend implements
// and the registry the mount syscall resolves filesystem names
// against. Backends register themselves from an init function; the
// fs/all package imports them all.
package fs

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jerryzhang126/dnx-rtos/lib/errno"
)

// FileType classifies a directory entry.
type FileType uint8

// File types reported by Stat and Readdir.
const (
	TypeRegular FileType = iota
	TypeDir
	TypeDevice
	TypeFIFO
)

func (t FileType) String() string {
	switch t {
	case TypeRegular:
		return "file"
	case TypeDir:
		return "dir"
	case TypeDevice:
		return "device"
	case TypeFIFO:
		return "fifo"
	}
	return "invalid"
}

// FileMode carries permission bits.
type FileMode uint16

// Open flags. The values follow the classic open(2) ones.
const (
	O_RDONLY = 0x0
	O_WRONLY = 0x1
	O_RDWR   = 0x2
	O_CREATE = 0x40
	O_TRUNC  = 0x200
	O_APPEND = 0x400
)

// DevNode identifies the driver instance behind a device node.
type DevNode struct {
	Driver string
	Major  int
	Minor  int
}

// FileInfo is the stat result.
type FileInfo struct {
	Name    string
	Size    int64
	Type    FileType
	Mode    FileMode
	UID     int
	GID     int
	Dev     DevNode
	ModTime time.Time
}

// FsInfo is the statfs result.
type FsInfo struct {
	Type      string
	BlockSize int64
	Blocks    int64
	Free      int64
	Files     int64
}

// DirEntry is one directory listing entry.
type DirEntry struct {
	Name string
	Size int64
	Type FileType
	Dev  DevNode
}

// Source is the backing device handed to filesystems mounted on one,
// already opened by the VFS from the mount's source path.
type Source interface {
	io.ReaderAt
	io.WriterAt
	Size() (int64, error)
	Sync() error
	Close() error
}

// FileHandle is an open file inside a backend.
type FileHandle interface {
	Close(force bool) error
	Read(p []byte, off int64) (int, error)
	Write(p []byte, off int64) (int, error)
	Ioctl(request uint, arg interface{}) error
	Flush() error
	Fstat(st *FileInfo) error
}

// DirHandle iterates a directory. Readdir returns io.EOF at the end.
type DirHandle interface {
	Readdir() (DirEntry, error)
	Close() error
}

// Fs is the filesystem backend contract. Paths are rooted at the mount
// point and always begin with a slash.
type Fs interface {
	Name() string
	Release() error
	Open(path string, flags int) (FileHandle, error)
	Mkdir(path string, mode FileMode) error
	Mkfifo(path string, mode FileMode) error
	Mknod(path string, dev DevNode) error
	OpenDir(path string) (DirHandle, error)
	Remove(path string) error
	Rename(oldPath, newPath string) error
	Chmod(path string, mode FileMode) error
	Chown(path string, uid, gid int) error
	Stat(path string, st *FileInfo) error
	StatFs(st *FsInfo) error
	Sync() error
}

// RegInfo describes a registered filesystem type.
type RegInfo struct {
	// Name the mount syscall resolves, e.g. "ramfs".
	Name string
	// Description is a one line summary for listings.
	Description string
	// Mount creates an instance. src is nil for filesystems with an
	// empty source path.
	Mount func(src Source, srcPath string, opt Options) (Fs, error)
}

var registry struct {
	mu  sync.Mutex
	fss map[string]*RegInfo
}

// Register adds a filesystem type to the registry. Called from backend
// init functions.
func Register(info *RegInfo) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if registry.fss == nil {
		registry.fss = make(map[string]*RegInfo)
	}
	if _, dup := registry.fss[info.Name]; dup {
		panic(fmt.Sprintf("filesystem %q registered twice", info.Name))
	}
	registry.fss[info.Name] = info
}

// Find looks a filesystem type up by name.
func Find(name string) (*RegInfo, error) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	info := registry.fss[name]
	if info == nil {
		return nil, fmt.Errorf("filesystem %q: %w", name, errno.ENOENT)
	}
	return info, nil
}
