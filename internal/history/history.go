package history

import (
	"context"
	"time"
)

// EventType defines the kind of hub event exported to sinks.
type EventType string

const (
	EventServerStart EventType = "server_start"
	EventServerStop  EventType = "server_stop"
	EventInstall     EventType = "install"
	EventUninstall   EventType = "uninstall"
)

// Event is one exportable audit record. Exactly one of the optional fields
// is meaningful depending on Type: PID for server events, InstallID/Source/
// Status for install events.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	ServerID   string    `json:"server_id,omitempty"`
	PID        int       `json:"pid,omitempty"`
	InstallID  string    `json:"install_id,omitempty"`
	Source     string    `json:"source,omitempty"`
	Status     string    `json:"status,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink is a destination for hub events (audit/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}
