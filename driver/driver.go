// Package driver is the driver framework: the contract every device
// driver implements, the registry device nodes are resolved against,
// and the flat major/minor numbering binding a node to a driver
// instance. Drivers register themselves from an init function; the
// driver/all package imports them all.
package driver

import (
	"fmt"
	"sync"

	"github.com/jerryzhang126/dnx-rtos/fs"
	"github.com/jerryzhang126/dnx-rtos/lib/errno"
)

// Handle is the driver-private state of one device instance, opaque to
// every caller.
type Handle interface{}

// Driver is the contract every driver implements. The major selects
// the driver, the minor a sub-instance within it (a chip-select line,
// a port number). Open is expected to reject a second opener unless
// the driver explicitly supports sharing.
type Driver interface {
	Init(major, minor int) (Handle, error)
	Release(h Handle) error
	Open(h Handle, flags int) error
	Close(h Handle, force bool) error
	Write(h Handle, src []byte, seek int64) (int, error)
	Read(h Handle, dst []byte, seek int64) (int, error)
	Ioctl(h Handle, request uint, arg interface{}) error
	Flush(h Handle) error
	Stat(h Handle, st *fs.FileInfo) error
}

// RegInfo describes a registered driver module.
type RegInfo struct {
	// Name is the module name mknod resolves, e.g. "i2c".
	Name string
	// Description is a one line summary for listings.
	Description string
	// Drv is the driver implementation.
	Drv Driver
}

var registry struct {
	mu   sync.Mutex
	drvs map[string]*RegInfo
}

// Register adds a driver module to the registry. Called from driver
// init functions.
func Register(info *RegInfo) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if registry.drvs == nil {
		registry.drvs = make(map[string]*RegInfo)
	}
	if _, dup := registry.drvs[info.Name]; dup {
		panic(fmt.Sprintf("driver %q registered twice", info.Name))
	}
	registry.drvs[info.Name] = info
}

// Find looks a driver module up by name.
func Find(name string) (*RegInfo, error) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	info := registry.drvs[name]
	if info == nil {
		return nil, fmt.Errorf("driver %q: %w", name, errno.ENXIO)
	}
	return info, nil
}

// Device is an initialized driver instance, as bound to a device node
// by mknod.
type Device struct {
	Node fs.DevNode
	drv  Driver
	h    Handle
}

// Init resolves the named driver and initializes the (major, minor)
// instance.
func Init(node fs.DevNode) (*Device, error) {
	info, err := Find(node.Driver)
	if err != nil {
		return nil, err
	}
	h, err := info.Drv.Init(node.Major, node.Minor)
	if err != nil {
		return nil, fmt.Errorf("init %s (%d,%d): %w", node.Driver, node.Major, node.Minor, err)
	}
	return &Device{Node: node, drv: info.Drv, h: h}, nil
}

// Release shuts the device instance down.
func (d *Device) Release() error {
	return d.drv.Release(d.h)
}

// Open opens the device.
func (d *Device) Open(flags int) error {
	return d.drv.Open(d.h, flags)
}

// Close closes the device.
func (d *Device) Close(force bool) error {
	return d.drv.Close(d.h, force)
}

// Write writes src at seek.
func (d *Device) Write(src []byte, seek int64) (int, error) {
	return d.drv.Write(d.h, src, seek)
}

// Read reads into dst at seek.
func (d *Device) Read(dst []byte, seek int64) (int, error) {
	return d.drv.Read(d.h, dst, seek)
}

// Ioctl issues a device request.
func (d *Device) Ioctl(request uint, arg interface{}) error {
	return d.drv.Ioctl(d.h, request, arg)
}

// Flush drains buffered device data.
func (d *Device) Flush() error {
	return d.drv.Flush(d.h)
}

// Stat fills st with device information.
func (d *Device) Stat(st *fs.FileInfo) error {
	return d.drv.Stat(d.h, st)
}
