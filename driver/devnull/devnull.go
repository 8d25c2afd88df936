// Package devnull is the byte sink driver: writes disappear, reads
// see end of file. It is also the minimal worked example of the driver
// contract.
package devnull

import (
	"io"

	"github.com/jerryzhang126/dnx-rtos/driver"
	"github.com/jerryzhang126/dnx-rtos/fs"
	"github.com/jerryzhang126/dnx-rtos/lib/errno"
)

// Register with the driver framework
func init() {
	driver.Register(&driver.RegInfo{
		Name:        "devnull",
		Description: "Byte sink.",
		Drv:         &Driver{},
	})
}

type null struct {
	minor int
}

// Driver implements the driver contract.
type Driver struct{}

func (d *Driver) Init(major, minor int) (driver.Handle, error) {
	return &null{minor: minor}, nil
}

func (d *Driver) Release(h driver.Handle) error {
	return nil
}

func (d *Driver) Open(h driver.Handle, flags int) error {
	return nil
}

func (d *Driver) Close(h driver.Handle, force bool) error {
	return nil
}

func (d *Driver) Write(h driver.Handle, src []byte, seek int64) (int, error) {
	return len(src), nil
}

func (d *Driver) Read(h driver.Handle, dst []byte, seek int64) (int, error) {
	return 0, io.EOF
}

func (d *Driver) Ioctl(h driver.Handle, request uint, arg interface{}) error {
	return errno.ENOSYS
}

func (d *Driver) Flush(h driver.Handle) error {
	return nil
}

func (d *Driver) Stat(h driver.Handle, st *fs.FileInfo) error {
	st.Type = fs.TypeDevice
	st.Mode = 0666
	st.Dev = fs.DevNode{Driver: "devnull", Minor: h.(*null).minor}
	return nil
}

var _ driver.Driver = (*Driver)(nil)
