//go:build windows

package orchestrator

import "os"

var interruptSignals = []os.Signal{os.Interrupt}
