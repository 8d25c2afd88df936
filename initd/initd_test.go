// Test suite for the boot sequence
package initd_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jerryzhang126/dnx-rtos/driver/eeprom"
	"github.com/jerryzhang126/dnx-rtos/fs"
	"github.com/jerryzhang126/dnx-rtos/initd"
	"github.com/jerryzhang126/dnx-rtos/process"
	"github.com/jerryzhang126/dnx-rtos/vfs"

	_ "github.com/jerryzhang126/dnx-rtos/driver/all"
	_ "github.com/jerryzhang126/dnx-rtos/fs/all"
)

func init() {
	process.RegisterProgram(&process.Program{
		Name: "true",
		Main: func(args []string) int { return 0 },
	})
	process.RegisterProgram(&process.Program{
		Name: "false",
		Main: func(args []string) int { return 1 },
	})
}

func TestBootMountsBaseTree(t *testing.T) {
	cfg := initd.DefaultConfig()
	cfg.Shell = "true"
	cfg.DevNodes = []initd.DevNode{
		{Path: "/dev/null0", Driver: "devnull"},
	}
	status, err := initd.Boot(cfg)
	require.NoError(t, err)
	assert.Equal(t, 0, status)
	t.Cleanup(initd.Halt)

	var st fs.FileInfo
	require.NoError(t, vfs.Stat("/dev", &st))
	assert.Equal(t, fs.TypeDir, st.Type)

	var fst fs.FsInfo
	require.NoError(t, vfs.StatFs("/dev", &fst))
	assert.Equal(t, "devfs", fst.Type)
	require.NoError(t, vfs.StatFs("/proc", &fst))
	assert.Equal(t, "procfs", fst.Type)

	// The configured node exists and is usable.
	d, err := vfs.OpenDir("/dev")
	require.NoError(t, err)
	e, err := d.Readdir()
	require.NoError(t, err)
	assert.Equal(t, "null0", e.Name)
	assert.Equal(t, fs.TypeDevice, e.Type)
	require.NoError(t, d.Close())

	f, err := vfs.Open("/dev/null0", fs.O_RDWR)
	require.NoError(t, err)
	_, err = f.Write([]byte("discard"))
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestBootShellStatus(t *testing.T) {
	cfg := initd.DefaultConfig()
	cfg.Shell = "false"
	status, err := initd.Boot(cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, status)
	initd.Halt()
}

func TestBootUnknownShell(t *testing.T) {
	cfg := initd.DefaultConfig()
	cfg.Shell = "enoexist"
	_, err := initd.Boot(cfg)
	assert.Error(t, err)
	initd.Halt()
}

// Full storage bring-up: EEPROM node, eefs on top of it, data
// surviving a remount.
func TestBootWithEEPROM(t *testing.T) {
	eeprom.Configure(t.TempDir(), 0, 0)

	cfg := initd.DefaultConfig()
	cfg.Shell = ""
	cfg.DevNodes = []initd.DevNode{
		{Path: "/dev/ee0", Driver: "eeprom"},
	}
	_, err := initd.Boot(cfg)
	require.NoError(t, err)
	t.Cleanup(initd.Halt)

	require.NoError(t, vfs.MountFs("eefs", "/dev/ee0", "/mnt", ""))
	f, err := vfs.Open("/mnt/boot.cfg", fs.O_CREATE|fs.O_RDWR)
	require.NoError(t, err)
	_, err = f.Write([]byte("tick=1000\n"))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, vfs.Umount("/mnt"))

	// Remount and read back through the same device node.
	require.NoError(t, vfs.MountFs("eefs", "/dev/ee0", "/mnt", "ro"))
	f, err = vfs.Open("/mnt/boot.cfg", fs.O_RDONLY)
	require.NoError(t, err)
	buf := make([]byte, 32)
	n, err := f.Read(buf)
	if err == io.EOF {
		n = 0
	} else {
		require.NoError(t, err)
	}
	assert.Equal(t, "tick=1000\n", string(buf[:n]))
	require.NoError(t, f.Close())
	require.NoError(t, vfs.Umount("/mnt"))
}
