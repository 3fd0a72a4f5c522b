//go:build !windows

package lifecycle

import (
	"os"
	"syscall"
)

// terminate requests a graceful shutdown of the process via SIGTERM.
func terminate(p *os.Process) error {
	return p.Signal(syscall.SIGTERM)
}
