package lifecycle

import "time"

// State is the lifecycle state machine position for one server id.
// Transitions: stopped -> starting -> running -> {stopping -> stopped | error};
// running -> restarting -> starting. Absent record is equivalent to stopped.
type State string

const (
	StateStopped    State = "stopped"
	StateStarting   State = "starting"
	StateRunning    State = "running"
	StateStopping   State = "stopping"
	StateRestarting State = "restarting"
	StateError      State = "error"
)

// ServerProcess is the externally consumable snapshot of one supervised
// server. PID is present only while the OS process is believed alive.
type ServerProcess struct {
	ServerID     string     `json:"server_id"`
	PID          *int       `json:"pid,omitempty"`
	State        State      `json:"state"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	StoppedAt    *time.Time `json:"stopped_at,omitempty"`
	RestartCount int        `json:"restart_count"`
	LastError    *string    `json:"last_error,omitempty"`
	Uptime       *uint64    `json:"uptime,omitempty"` // seconds while running
}

// Config describes how to spawn a stdio server process.
type Config struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
}
