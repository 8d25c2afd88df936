// Package libc carries the small C-library shims user programs are
// written against: stdio over VFS files, string conversion, and path
// utilities. The stdio "globals" (stdin, stdout, stderr, errno)
// resolve through the calling task's process context.
package libc

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/jerryzhang126/dnx-rtos/fs"
	"github.com/jerryzhang126/dnx-rtos/lib/errno"
	"github.com/jerryzhang126/dnx-rtos/process"
	"github.com/jerryzhang126/dnx-rtos/vfs"
)

// Fopen opens a file with a C-style mode string: "r", "r+", "w",
// "w+", "a", "a+".
func Fopen(path, mode string) (*vfs.File, error) {
	var flags int
	switch strings.TrimSuffix(mode, "b") {
	case "r":
		flags = fs.O_RDONLY
	case "r+":
		flags = fs.O_RDWR
	case "w":
		flags = fs.O_WRONLY | fs.O_CREATE | fs.O_TRUNC
	case "w+":
		flags = fs.O_RDWR | fs.O_CREATE | fs.O_TRUNC
	case "a":
		flags = fs.O_WRONLY | fs.O_CREATE | fs.O_APPEND
	case "a+":
		flags = fs.O_RDWR | fs.O_CREATE | fs.O_APPEND
	default:
		return nil, errno.EINVAL
	}
	return vfs.Open(path, flags)
}

// Fclose closes the file.
func Fclose(f *vfs.File) error {
	return f.Close()
}

// Fprintf formats into the file.
func Fprintf(f *vfs.File, format string, a ...interface{}) (int, error) {
	if f == nil {
		return 0, errno.EBADF
	}
	return fmt.Fprintf(f, format, a...)
}

// Fscanf scans from the file.
func Fscanf(f *vfs.File, format string, a ...interface{}) (int, error) {
	if f == nil {
		return 0, errno.EBADF
	}
	return fmt.Fscanf(f, format, a...)
}

// Fgets reads one line including its newline.
func Fgets(f *vfs.File) (string, error) {
	if f == nil {
		return "", errno.EBADF
	}
	return bufio.NewReader(f).ReadString('\n')
}

// Fputs writes the string to the file.
func Fputs(f *vfs.File, s string) (int, error) {
	if f == nil {
		return 0, errno.EBADF
	}
	return f.Write([]byte(s))
}

// Printf formats onto the calling process's stdout.
func Printf(format string, a ...interface{}) (int, error) {
	return Fprintf(Stdout(), format, a...)
}

// Stdin returns the calling process's standard input, which may be
// nil.
func Stdin() *vfs.File {
	if p := process.Current(); p != nil {
		return p.Stdin()
	}
	return nil
}

// Stdout returns the calling process's standard output.
func Stdout() *vfs.File {
	if p := process.Current(); p != nil {
		return p.Stdout()
	}
	return nil
}

// Stderr returns the calling process's standard error.
func Stderr() *vfs.File {
	if p := process.Current(); p != nil {
		return p.Stderr()
	}
	return nil
}

// Errno returns the calling process's errno cell.
func Errno() errno.Error {
	if p := process.Current(); p != nil {
		return p.Errno()
	}
	return errno.OK
}
