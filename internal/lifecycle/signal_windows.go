//go:build windows

package lifecycle

import "os"

// terminate kills the process outright; Windows has no SIGTERM equivalent
// that console-less child processes reliably honor.
func terminate(p *os.Process) error {
	return p.Kill()
}
