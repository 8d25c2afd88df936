// Package all imports every driver so importing it links the full
// driver registry into the image.
package all

import (
	// Drivers
	_ "github.com/jerryzhang126/dnx-rtos/driver/devnull"
	_ "github.com/jerryzhang126/dnx-rtos/driver/eeprom"
	_ "github.com/jerryzhang126/dnx-rtos/driver/i2c"
	_ "github.com/jerryzhang126/dnx-rtos/driver/tty"
)
