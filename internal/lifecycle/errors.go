package lifecycle

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no record exists for the requested server id.
// Callers must treat it as equivalent to the server being stopped.
var ErrNotFound = errors.New("no process for server")

// ErrMissingConfig is returned by Restart when no config is supplied and no
// previous config is remembered for the server id.
var ErrMissingConfig = errors.New("missing configuration for restart")

// SpawnError wraps the OS error raised while starting a server process.
type SpawnError struct {
	ServerID string
	Err      error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start process for %s: %v", e.ServerID, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }
