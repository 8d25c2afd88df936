// Package all imports every filesystem backend so importing it links
// the full FS registry into the image.
package all

import (
	// Filesystem backends
	_ "github.com/jerryzhang126/dnx-rtos/fs/devfs"
	_ "github.com/jerryzhang126/dnx-rtos/fs/eefs"
	_ "github.com/jerryzhang126/dnx-rtos/fs/fatfs"
	_ "github.com/jerryzhang126/dnx-rtos/fs/procfs"
	_ "github.com/jerryzhang126/dnx-rtos/fs/ramfs"
)
