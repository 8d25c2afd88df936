// Package procfs provides the read-only process information
// filesystem. It synthesizes a directory per live task under /taskid
// (keyed by PID in hex) and /taskname, plus the program table under
// /bin. File reads produce a freshly formatted ASCII view of the task
// statistics; mutating operations fail with EROFS.
package procfs

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/jerryzhang126/dnx-rtos/fs"
	"github.com/jerryzhang126/dnx-rtos/lib/errno"
	"github.com/jerryzhang126/dnx-rtos/process"
)

// Register with Fs
func init() {
	fs.Register(&fs.RegInfo{
		Name:        "procfs",
		Description: "Process information filesystem.",
		Mount:       New,
	})
}

// Top level directories.
const (
	dirTaskID   = "taskid"
	dirTaskName = "taskname"
	dirBin      = "bin"
)

// Per task attribute files.
var taskFiles = []string{"name", "priority", "freestack", "usedmem", "openfiles"}

// Fs represents a mounted procfs instance.
type Fs struct {
	mounted time.Time
	// Task stat snapshots are cached briefly so a reader walking all
	// attribute files of one task sees one consistent view.
	stats *gocache.Cache
}

// New creates a procfs. The source is ignored.
func New(src fs.Source, srcPath string, opt fs.Options) (fs.Fs, error) {
	return &Fs{
		mounted: time.Now(),
		stats:   gocache.New(500*time.Millisecond, time.Minute),
	}, nil
}

// Name of the filesystem type
func (f *Fs) Name() string {
	return "procfs"
}

// Release drops the snapshot cache.
func (f *Fs) Release() error {
	f.stats.Flush()
	return nil
}

// taskStat is one snapshot of a process's statistics.
type taskStat struct {
	name      string
	priority  int
	freeStack int
	usedMem   int
	openFiles int
}

func (f *Fs) snapshot(p *process.Process) *taskStat {
	key := strconv.Itoa(p.Pid())
	if st, ok := f.stats.Get(key); ok {
		return st.(*taskStat)
	}
	st := &taskStat{
		name:      p.Name(),
		usedMem:   len(p.Globals()),
		openFiles: p.Resources(),
	}
	if t := p.Task(); t != nil {
		st.priority = t.Priority()
		st.freeStack = t.StackDepth()
	}
	f.stats.SetDefault(key, st)
	return st
}

func (st *taskStat) render(attr string) (string, error) {
	switch attr {
	case "name":
		return st.name + "\n", nil
	case "priority":
		return fmt.Sprintf("%d\n", st.priority), nil
	case "freestack":
		return fmt.Sprintf("%d\n", st.freeStack), nil
	case "usedmem":
		return fmt.Sprintf("%d\n", st.usedMem), nil
	case "openfiles":
		return fmt.Sprintf("%d\n", st.openFiles), nil
	}
	return "", errno.ENOENT
}

// findByID resolves a /taskid element, a PID in hex.
func findByID(hexID string) *process.Process {
	pid, err := strconv.ParseInt(hexID, 16, 32)
	if err != nil {
		return nil
	}
	return process.Find(int(pid))
}

// findByName resolves a /taskname element.
func findByName(name string) *process.Process {
	for _, p := range process.All() {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// parts splits a procfs path into its elements.
func parts(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// Open opens a synthetic file for reading.
func (f *Fs) Open(p string, flags int) (fs.FileHandle, error) {
	if flags&(fs.O_WRONLY|fs.O_RDWR|fs.O_CREATE|fs.O_TRUNC|fs.O_APPEND) != 0 {
		return nil, errno.EROFS
	}
	el := parts(p)
	switch {
	case len(el) == 2 && el[0] == dirBin:
		for _, prog := range process.Programs() {
			if prog.Name == el[1] {
				return &fileHandle{name: el[1]}, nil
			}
		}
		return nil, errno.ENOENT
	case len(el) == 3 && el[0] == dirTaskID:
		proc := findByID(el[1])
		if proc == nil {
			return nil, errno.ENOENT
		}
		content, err := f.snapshot(proc).render(el[2])
		if err != nil {
			return nil, err
		}
		return &fileHandle{name: el[2], content: []byte(content)}, nil
	case len(el) == 3 && el[0] == dirTaskName:
		proc := findByName(el[1])
		if proc == nil {
			return nil, errno.ENOENT
		}
		content, err := f.snapshot(proc).render(el[2])
		if err != nil {
			return nil, err
		}
		return &fileHandle{name: el[2], content: []byte(content)}, nil
	}
	return nil, errno.ENOENT
}

// Mkdir fails; procfs is read-only.
func (f *Fs) Mkdir(p string, mode fs.FileMode) error {
	return errno.EROFS
}

// Mkfifo fails; procfs is read-only.
func (f *Fs) Mkfifo(p string, mode fs.FileMode) error {
	return errno.EROFS
}

// Mknod fails; procfs is read-only.
func (f *Fs) Mknod(p string, dev fs.DevNode) error {
	return errno.EROFS
}

// OpenDir lists a synthetic directory.
func (f *Fs) OpenDir(p string) (fs.DirHandle, error) {
	el := parts(p)
	var names []string
	var typ fs.FileType
	switch {
	case len(el) == 0:
		names = []string{dirBin, dirTaskID, dirTaskName}
		typ = fs.TypeDir
	case len(el) == 1 && el[0] == dirBin:
		for _, prog := range process.Programs() {
			names = append(names, prog.Name)
		}
		typ = fs.TypeRegular
	case len(el) == 1 && el[0] == dirTaskID:
		for _, proc := range process.All() {
			names = append(names, fmt.Sprintf("%x", proc.Pid()))
		}
		typ = fs.TypeDir
	case len(el) == 1 && el[0] == dirTaskName:
		for _, proc := range process.All() {
			names = append(names, proc.Name())
		}
		typ = fs.TypeDir
	case len(el) == 2 && (el[0] == dirTaskID || el[0] == dirTaskName):
		var proc *process.Process
		if el[0] == dirTaskID {
			proc = findByID(el[1])
		} else {
			proc = findByName(el[1])
		}
		if proc == nil {
			return nil, errno.ENOENT
		}
		names = append(names, taskFiles...)
		typ = fs.TypeRegular
	default:
		return nil, errno.ENOENT
	}
	sort.Strings(names)
	entries := make([]fs.DirEntry, len(names))
	for i, name := range names {
		entries[i] = fs.DirEntry{Name: name, Type: typ}
	}
	return &dirHandle{entries: entries}, nil
}

// Remove fails; procfs is read-only.
func (f *Fs) Remove(p string) error {
	return errno.EROFS
}

// Rename fails; procfs is read-only.
func (f *Fs) Rename(oldPath, newPath string) error {
	return errno.EROFS
}

// Chmod fails; procfs is read-only.
func (f *Fs) Chmod(p string, mode fs.FileMode) error {
	return errno.EROFS
}

// Chown fails; procfs is read-only.
func (f *Fs) Chown(p string, uid, gid int) error {
	return errno.EROFS
}

// Stat fills st for a synthetic object.
func (f *Fs) Stat(p string, st *fs.FileInfo) error {
	el := parts(p)
	if len(el) == 0 {
		st.Name = "/"
		st.Type = fs.TypeDir
		st.Mode = 0555
		st.ModTime = f.mounted
		return nil
	}
	// Anything a directory listing would produce stats as that type.
	dh, err := f.OpenDir(strings.Join(el[:len(el)-1], "/"))
	if err != nil {
		return err
	}
	defer func() { _ = dh.Close() }()
	for {
		e, err := dh.Readdir()
		if err != nil {
			return errno.ENOENT
		}
		if e.Name == el[len(el)-1] {
			st.Name = e.Name
			st.Type = e.Type
			st.Mode = 0444
			if e.Type == fs.TypeDir {
				st.Mode = 0555
			}
			st.ModTime = f.mounted
			return nil
		}
	}
}

// StatFs fills st for this filesystem.
func (f *Fs) StatFs(st *fs.FsInfo) error {
	st.Type = "procfs"
	st.Files = int64(len(process.All()))
	return nil
}

// Sync is a no-op.
func (f *Fs) Sync() error {
	return nil
}

// fileHandle serves one rendered attribute snapshot.
type fileHandle struct {
	name    string
	content []byte
}

func (h *fileHandle) Close(force bool) error {
	return nil
}

func (h *fileHandle) Read(p []byte, off int64) (int, error) {
	if off >= int64(len(h.content)) {
		return 0, io.EOF
	}
	return copy(p, h.content[off:]), nil
}

func (h *fileHandle) Write(p []byte, off int64) (int, error) {
	return 0, errno.EROFS
}

func (h *fileHandle) Ioctl(request uint, arg interface{}) error {
	return errno.ENOSYS
}

func (h *fileHandle) Flush() error {
	return nil
}

func (h *fileHandle) Fstat(st *fs.FileInfo) error {
	st.Name = h.name
	st.Size = int64(len(h.content))
	st.Type = fs.TypeRegular
	st.Mode = 0444
	return nil
}

// dirHandle iterates a synthetic listing.
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
