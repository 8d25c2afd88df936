// Package printk is the kernel logging facade. Messages are tagged
// with the object they concern and routed through logrus so the host
// binary can pick the level and destination.
package printk

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Level is re-exported so callers do not need to import logrus to
// configure verbosity.
type Level = logrus.Level

// Levels accepted by SetLevel.
const (
	LevelError Level = logrus.ErrorLevel
	LevelInfo  Level = logrus.InfoLevel
	LevelDebug Level = logrus.DebugLevel
)

var log = logrus.New()

func init() {
	log.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: false,
		FullTimestamp:    true,
	})
	log.SetLevel(logrus.InfoLevel)
}

// SetLevel selects the verbosity of the kernel log.
func SetLevel(level Level) {
	log.SetLevel(level)
}

// SetOutput redirects the kernel log, used by tests and by the host
// binary when the log should go to a file.
func SetOutput(w interface{ Write([]byte) (int, error) }) {
	log.SetOutput(w)
}

func render(o interface{}, format string, a []interface{}) string {
	msg := fmt.Sprintf(format, a...)
	if o == nil {
		return msg
	}
	return fmt.Sprintf("%v: %s", o, msg)
}

// Debugf writes a debug level message about o.
func Debugf(o interface{}, format string, a ...interface{}) {
	log.Debug(render(o, format, a))
}

// Infof writes an info level message about o.
func Infof(o interface{}, format string, a ...interface{}) {
	log.Info(render(o, format, a))
}

// Errorf writes an error level message about o.
func Errorf(o interface{}, format string, a ...interface{}) {
	log.Error(render(o, format, a))
}
