// Command dnx boots the kernel image on the host: filesystems and
// drivers register, initd mounts the base tree and creates the
// configured device nodes, and the given command line runs as the
// first program with its console captured to the host's stdout.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	_ "github.com/jerryzhang126/dnx-rtos/driver/all"
	"github.com/jerryzhang126/dnx-rtos/driver/eeprom"
	_ "github.com/jerryzhang126/dnx-rtos/fs/all"
	"github.com/jerryzhang126/dnx-rtos/initd"
	"github.com/jerryzhang126/dnx-rtos/lib/printk"
	"github.com/jerryzhang126/dnx-rtos/libc"
	"github.com/jerryzhang126/dnx-rtos/process"
	"github.com/jerryzhang126/dnx-rtos/vfs"
)

const console = "/tmp/console"

var (
	verbose   bool
	eepromDir string
	withEE    bool
)

func init() {
	// The demonstration programs linked into this image.
	process.RegisterProgram(&process.Program{
		Name:       "echo",
		StackDepth: 1024,
		Main: func(args []string) int {
			_, _ = libc.Printf("%s\n", strings.Join(args[1:], " "))
			return 0
		},
	})
	process.RegisterProgram(&process.Program{
		Name:       "sh",
		StackDepth: 4096,
		Main: func(args []string) int {
			_, _ = libc.Printf("dnx-rtos shell: no terminal attached\n")
			return 0
		},
	})
}

func main() {
	root := &cobra.Command{
		Use:   "dnx [command line]",
		Short: "Boot the dnx-rtos kernel image on the host",
		RunE:  run,
	}
	var flags *pflag.FlagSet = root.Flags()
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable kernel debug messages")
	flags.StringVar(&eepromDir, "eeprom-dir", "", "directory holding EEPROM backing files")
	flags.BoolVar(&withEE, "with-eeprom", false, "create /dev/ee0 and mount eefs at /mnt")
	flags.SetInterspersed(false)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if verbose {
		printk.SetLevel(printk.LevelDebug)
	}
	if eepromDir != "" {
		eeprom.Configure(eepromDir, 0, 0)
	}

	cfg := initd.DefaultConfig()
	cfg.Shell = "" // the command line below is the first program
	if withEE {
		cfg.DevNodes = append(cfg.DevNodes, initd.DevNode{Path: "/dev/ee0", Driver: "eeprom"})
		cfg.Mounts = append(cfg.Mounts, initd.MountPoint{FsName: "eefs", Src: "/dev/ee0", Point: "/mnt"})
	}
	if _, err := initd.Boot(cfg); err != nil {
		return err
	}
	defer initd.Halt()

	commandLine := "echo hello from dnx-rtos"
	if len(args) > 0 {
		commandLine = strings.Join(args, " ")
	}
	pid, err := process.Create(commandLine, &process.Attr{
		CWD:        "/",
		StdoutPath: console,
		StderrPath: console,
	})
	if err != nil {
		return fmt.Errorf("running %q: %w", commandLine, err)
	}
	var status int
	if err := process.Wait(pid, &status); err != nil {
		return fmt.Errorf("reaping %q: %w", commandLine, err)
	}

	if err := dumpConsole(); err != nil {
		return err
	}
	if status != 0 {
		return fmt.Errorf("%q exited with status %d", commandLine, status)
	}
	return nil
}

// dumpConsole copies the captured program output to the host stdout.
func dumpConsole() error {
	f, err := vfs.Open(console, 0)
	if err != nil {
		return nil // the program wrote nothing
	}
	defer func() { _ = f.Close() }()
	_, err = io.Copy(os.Stdout, f)
	return err
}
