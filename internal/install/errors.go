package install

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned for unknown or already cleaned up install ids.
var ErrNotFound = errors.New("installation not found")

// ToolError reports a non-zero exit from an external tool (npm, git).
type ToolError struct {
	Tool     string
	ExitCode int
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Tool, e.ExitCode)
}
