//go:build !windows

package orchestrator

import (
	"os"

	"golang.org/x/sys/unix"
)

// interruptSignals are the OS signals that trigger a graceful stop (spec
// §4.7, §9). golang.org/x/sys/unix gives the platform-correct numeric
// values instead of assuming the syscall package's constants line up
// across every unix-like GOOS gbos might target.
var interruptSignals = []os.Signal{unix.SIGINT, unix.SIGTERM}
