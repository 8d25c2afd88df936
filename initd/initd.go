// Package initd is process zero: it brings the system up by mounting
// the base filesystems, creating the configured device nodes, and
// spawning the first user program, which it reaps before returning.
package initd

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/jerryzhang126/dnx-rtos/lib/printk"
	"github.com/jerryzhang126/dnx-rtos/process"
	"github.com/jerryzhang126/dnx-rtos/vfs"
)

// DevNode is one device node to create at boot.
type DevNode struct {
	Path   string
	Driver string
	Major  int
	Minor  int
}

// MountPoint is one filesystem to mount at boot.
type MountPoint struct {
	FsName string
	Src    string
	Point  string
	Opts   string
}

// Config describes the boot sequence.
type Config struct {
	// Mounts after the root; the root ramfs is always mounted first.
	Mounts []MountPoint
	// Base directories created on the root filesystem.
	Dirs []string
	// Device nodes created once /dev is up.
	DevNodes []DevNode
	// Shell is the command line of the first program.
	Shell string
}

// DefaultConfig mounts devfs and procfs and starts the shell.
func DefaultConfig() *Config {
	return &Config{
		Mounts: []MountPoint{
			{FsName: "devfs", Point: "/dev"},
			{FsName: "procfs", Point: "/proc"},
		},
		Dirs:  []string{"/dev", "/proc", "/mnt", "/tmp"},
		Shell: "sh",
	}
}

// Boot runs the boot sequence and the first program, returning its
// exit status.
func Boot(cfg *Config) (int, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	printk.Infof(nil, "initd: booting")

	if err := vfs.MountFs("ramfs", "", "/", ""); err != nil {
		return -1, fmt.Errorf("mounting root: %w", err)
	}
	for _, dir := range cfg.Dirs {
		if err := vfs.Mkdir(dir, 0777); err != nil {
			return -1, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	for _, m := range cfg.Mounts {
		if err := vfs.MountFs(m.FsName, m.Src, m.Point, m.Opts); err != nil {
			return -1, fmt.Errorf("mounting %s at %s: %w", m.FsName, m.Point, err)
		}
		printk.Infof(nil, "initd: mounted %s at %s", m.FsName, m.Point)
	}

	// Drivers initialize independently of each other.
	var g errgroup.Group
	for _, node := range cfg.DevNodes {
		node := node
		g.Go(func() error {
			if err := vfs.Mknod(node.Path, node.Driver, node.Major, node.Minor); err != nil {
				return fmt.Errorf("node %s (%s %d,%d): %w", node.Path, node.Driver, node.Major, node.Minor, err)
			}
			printk.Infof(nil, "initd: created %s", node.Path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return -1, err
	}

	if cfg.Shell == "" {
		return 0, nil
	}
	pid, err := process.Create(cfg.Shell, &process.Attr{CWD: "/"})
	if err != nil {
		return -1, fmt.Errorf("spawning %q: %w", cfg.Shell, err)
	}
	var status int
	if err := process.Wait(pid, &status); err != nil {
		return -1, fmt.Errorf("reaping %q: %w", cfg.Shell, err)
	}
	printk.Infof(nil, "initd: %q exited with status %d", cfg.Shell, status)
	return status, nil
}

// Halt unmounts everything, flushing what needs flushing.
func Halt() {
	vfs.Sync()
	vfs.Reset()
	printk.Infof(nil, "initd: halted")
}
