// Package eeprom is the EEPROM block device driver. The chip's pages
// persist in a bbolt database on the host so the device keeps its
// contents across boots, the way the real part would. It backs eefs
// and fatfs mounts.
package eeprom

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/jerryzhang126/dnx-rtos/driver"
	"github.com/jerryzhang126/dnx-rtos/fs"
	"github.com/jerryzhang126/dnx-rtos/lib/errno"
	"github.com/jerryzhang126/dnx-rtos/lib/printk"
)

// Register with the driver framework
func init() {
	driver.Register(&driver.RegInfo{
		Name:        "eeprom",
		Description: "EEPROM block device.",
		Drv:         &Driver{},
	})
}

// Ioctl requests.
const (
	IoctlSetWriteProtect uint = 0xee00 + iota
	IoctlGetSize
)

// Default geometry, an AT24C256-class part.
const (
	defaultPageSize = 64
	defaultPages    = 512
)

var pagesBucket = []byte("pages")

var config struct {
	mu       sync.Mutex
	dir      string
	pageSize int
	pages    int
}

// Configure sets the backing directory and the chip geometry for
// devices initialized afterwards. Without it the device lives in a
// temporary directory with the default geometry.
func Configure(dir string, pageSize, pages int) {
	config.mu.Lock()
	defer config.mu.Unlock()
	config.dir = dir
	if pageSize > 0 {
		config.pageSize = pageSize
	}
	if pages > 0 {
		config.pages = pages
	}
}

func settings() (string, int, int) {
	config.mu.Lock()
	defer config.mu.Unlock()
	dir := config.dir
	if dir == "" {
		dir = os.TempDir()
	}
	pageSize := config.pageSize
	if pageSize == 0 {
		pageSize = defaultPageSize
	}
	pages := config.pages
	if pages == 0 {
		pages = defaultPages
	}
	return dir, pageSize, pages
}

// chip is the per-device state.
type chip struct {
	db       *bolt.DB
	minor    int
	pageSize int
	pages    int

	mu           sync.Mutex
	opened       bool
	writeProtect bool
}

// Driver implements the driver contract.
type Driver struct{}

// Init opens the backing database for the minor.
func (d *Driver) Init(major, minor int) (driver.Handle, error) {
	dir, pageSize, pages := settings()
	path := filepath.Join(dir, fmt.Sprintf("eeprom%d.db", minor))
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("eeprom%d: opening %s: %w", minor, path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(pagesBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("eeprom%d: preparing %s: %w", minor, path, err)
	}
	printk.Debugf(nil, "eeprom%d: %d pages of %d bytes at %s", minor, pages, pageSize, path)
	return &chip{
		db:       db,
		minor:    minor,
		pageSize: pageSize,
		pages:    pages,
	}, nil
}

// Release closes the backing database.
func (d *Driver) Release(h driver.Handle) error {
	c := h.(*chip)
	return c.db.Close()
}

// Open admits any number of openers; the chip is a shared block
// device.
func (d *Driver) Open(h driver.Handle, flags int) error {
	c := h.(*chip)
	c.mu.Lock()
	c.opened = true
	c.mu.Unlock()
	return nil
}

// Close is a no-op.
func (d *Driver) Close(h driver.Handle, force bool) error {
	return nil
}

func (c *chip) size() int64 {
	return int64(c.pageSize) * int64(c.pages)
}

func pageKey(n int) []byte {
	var key [4]byte
	binary.BigEndian.PutUint32(key[:], uint32(n))
	return key[:]
}

// Read copies from the chip at seek.
func (d *Driver) Read(h driver.Handle, dst []byte, seek int64) (int, error) {
	c := h.(*chip)
	if seek >= c.size() {
		return 0, io.EOF
	}
	if end := seek + int64(len(dst)); end > c.size() {
		dst = dst[:c.size()-seek]
	}
	err := c.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(pagesBucket)
		for n := 0; n < len(dst); {
			page := int((seek + int64(n)) / int64(c.pageSize))
			off := int((seek + int64(n)) % int64(c.pageSize))
			chunk := c.pageSize - off
			if chunk > len(dst)-n {
				chunk = len(dst) - n
			}
			stored := bkt.Get(pageKey(page))
			if stored == nil {
				for i := 0; i < chunk; i++ {
					dst[n+i] = 0xff
				}
			} else {
				copy(dst[n:n+chunk], stored[off:])
			}
			n += chunk
		}
		return nil
	})
	if err != nil {
		return 0, errno.EIO
	}
	return len(dst), nil
}

// Write copies src to the chip at seek, read-modify-writing the
// affected pages in one transaction.
func (d *Driver) Write(h driver.Handle, src []byte, seek int64) (int, error) {
	c := h.(*chip)
	c.mu.Lock()
	wp := c.writeProtect
	c.mu.Unlock()
	if wp {
		return 0, errno.EROFS
	}
	if seek+int64(len(src)) > c.size() {
		return 0, errno.ENOSPC
	}
	err := c.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(pagesBucket)
		for n := 0; n < len(src); {
			page := int((seek + int64(n)) / int64(c.pageSize))
			off := int((seek + int64(n)) % int64(c.pageSize))
			chunk := c.pageSize - off
			if chunk > len(src)-n {
				chunk = len(src) - n
			}
			buf := make([]byte, c.pageSize)
			if stored := bkt.Get(pageKey(page)); stored != nil {
				copy(buf, stored)
			} else {
				for i := range buf {
					buf[i] = 0xff
				}
			}
			copy(buf[off:], src[n:n+chunk])
			if err := bkt.Put(pageKey(page), buf); err != nil {
				return err
			}
			n += chunk
		}
		return nil
	})
	if err != nil {
		return 0, errno.EIO
	}
	return len(src), nil
}

// Ioctl handles write protect and geometry requests.
func (d *Driver) Ioctl(h driver.Handle, request uint, arg interface{}) error {
	c := h.(*chip)
	switch request {
	case IoctlSetWriteProtect:
		on, ok := arg.(bool)
		if !ok {
			return errno.EINVAL
		}
		c.mu.Lock()
		c.writeProtect = on
		c.mu.Unlock()
	case IoctlGetSize:
		out, ok := arg.(*int64)
		if !ok {
			return errno.EINVAL
		}
		*out = c.size()
	default:
		return errno.ENOSYS
	}
	return nil
}

// Flush syncs the backing database.
func (d *Driver) Flush(h driver.Handle) error {
	c := h.(*chip)
	return c.db.Sync()
}

// Stat reports the chip as a block-style device of its full size.
func (d *Driver) Stat(h driver.Handle, st *fs.FileInfo) error {
	c := h.(*chip)
	st.Type = fs.TypeDevice
	st.Size = c.size()
	st.Mode = 0666
	st.Dev = fs.DevNode{Driver: "eeprom", Minor: c.minor}
	return nil
}

var _ driver.Driver = (*Driver)(nil)
