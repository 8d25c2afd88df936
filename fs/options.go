package fs

import "strings"

// Options are the mount options, parsed from the comma separated
// option string of the mount syscall ("sync,ro").
type Options map[string]string

// ParseOptions splits a mount option string.
func ParseOptions(s string) Options {
	opt := make(Options)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if k, v, found := strings.Cut(part, "="); found {
			opt[k] = v
		} else {
			opt[part] = ""
		}
	}
	return opt
}

// Has reports whether the flag option is present.
func (o Options) Has(name string) bool {
	_, ok := o[name]
	return ok
}

// Get returns a valued option or the default.
func (o Options) Get(name, def string) string {
	if v, ok := o[name]; ok && v != "" {
		return v
	}
	return def
}
