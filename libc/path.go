package libc

import (
	"strings"

	"github.com/jerryzhang126/dnx-rtos/process"
)

// AbsPath resolves p against cwd. Paths are canonical by convention;
// "." and ".." carry no meaning in the kernel, so this only joins and
// cleans separators.
func AbsPath(cwd, p string) string {
	if !strings.HasPrefix(p, "/") {
		if cwd == "" {
			cwd = "/"
		}
		p = strings.TrimSuffix(cwd, "/") + "/" + p
	}
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// Getcwd returns the calling process's working directory.
func Getcwd() string {
	if p := process.Current(); p != nil {
		return p.CWD()
	}
	return "/"
}

// Chdir changes the calling process's working directory.
func Chdir(path string) {
	if p := process.Current(); p != nil {
		p.SetCWD(AbsPath(p.CWD(), path))
	}
}
