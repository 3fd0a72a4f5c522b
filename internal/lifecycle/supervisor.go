package lifecycle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/AstroAir/mcp-hub-next/internal/history"
	"github.com/AstroAir/mcp-hub-next/internal/logger"
	"github.com/AstroAir/mcp-hub-next/internal/metrics"
)

// DefaultSettleDelay is how long Restart waits between the stop and the
// subsequent start, giving the old process time to release its resources.
const DefaultSettleDelay = 300 * time.Millisecond

// Supervisor owns the process registry: the map from server id to live
// process handle plus status snapshot. Each entry carries its own mutex so
// lifecycle operations for one server id are totally ordered while distinct
// ids proceed independently.
type Supervisor struct {
	mu      sync.RWMutex
	entries map[string]*entry

	capture logger.CaptureConfig
	sinks   []history.Sink
	settle  time.Duration
}

// entry is one supervised server. All fields besides done/exit are guarded
// by mu; exit is written by the monitor goroutine before done is closed.
type entry struct {
	mu   sync.Mutex
	cmd  *exec.Cmd
	rec  ServerProcess
	cfg  Config
	outW io.WriteCloser
	errW io.WriteCloser

	done     chan struct{}
	exitCode int
	exitErr  error
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithCapture routes each server's stdout/stderr into rotating files.
func WithCapture(c logger.CaptureConfig) Option {
	return func(s *Supervisor) { s.capture = c }
}

// WithHistorySinks configures audit sinks for start/stop events.
func WithHistorySinks(sinks ...history.Sink) Option {
	return func(s *Supervisor) { s.sinks = append([]history.Sink(nil), sinks...) }
}

// WithSettleDelay overrides the restart settle delay (tests use a short one).
func WithSettleDelay(d time.Duration) Option {
	return func(s *Supervisor) { s.settle = d }
}

// NewSupervisor returns an empty supervisor. It holds no global state; tests
// construct isolated instances freely.
func NewSupervisor(opts ...Option) *Supervisor {
	s := &Supervisor{
		entries: make(map[string]*entry),
		settle:  DefaultSettleDelay,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start spawns the configured command for serverID. If the server is already
// running the current snapshot is returned without spawning a second process.
// Spawn failures are reported as *SpawnError and leave no record behind.
func (s *Supervisor) Start(serverID string, cfg Config) (ServerProcess, error) {
	e, created := s.lockCurrent(serverID)
	defer e.mu.Unlock()

	if e.alive() {
		e.refreshLocked()
		return e.rec, nil
	}

	cmd := buildCommand(cfg)
	outW, errW := s.capture.Writers(serverID)
	if outW != nil {
		cmd.Stdout = outW
	} else {
		cmd.Stdout = io.Discard
	}
	if errW != nil {
		cmd.Stderr = errW
	} else {
		cmd.Stderr = io.Discard
	}

	if err := cmd.Start(); err != nil {
		closeWriters(outW, errW)
		if created {
			s.remove(serverID, e)
		}
		return ServerProcess{}, &SpawnError{ServerID: serverID, Err: err}
	}

	pid := cmd.Process.Pid
	now := time.Now().UTC()
	restarts := e.rec.RestartCount // preserved across records for the same id
	zero := uint64(0)
	e.cmd = cmd
	e.cfg = cfg
	e.outW, e.errW = outW, errW
	e.done = make(chan struct{})
	e.exitCode = 0
	e.exitErr = nil
	e.rec = ServerProcess{
		ServerID:     serverID,
		PID:          &pid,
		State:        StateRunning,
		StartedAt:    &now,
		RestartCount: restarts,
		Uptime:       &zero,
	}

	go e.monitor()

	slog.Info("server started", "server_id", serverID, "pid", pid, "command", cfg.Command)
	metrics.IncServerStart(serverID)
	metrics.SetRunningServers(s.countRunning())
	s.emit(history.Event{Type: history.EventServerStart, OccurredAt: now, ServerID: serverID, PID: pid})

	return e.rec, nil
}

// Stop terminates the server process. With force a kill signal is sent
// immediately; otherwise a graceful termination signal is sent and Stop
// blocks until the process exits. The record is removed afterwards, so a
// later Status returns ErrNotFound (equivalent to stopped).
func (s *Supervisor) Stop(serverID string, force bool) error {
	e := s.get(serverID)
	if e == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, serverID)
	}
	e.mu.Lock()
	defer func() {
		// Remove before releasing the entry lock so a concurrent Start
		// cannot spawn into an entry that is about to leave the map.
		s.remove(serverID, e)
		e.mu.Unlock()
		metrics.SetRunningServers(s.countRunning())
	}()

	e.rec.State = StateStopping
	if e.cmd != nil && e.cmd.Process != nil && e.alive() {
		if force {
			if err := e.cmd.Process.Kill(); err != nil {
				return fmt.Errorf("failed to kill process for %s: %w", serverID, err)
			}
		} else if err := terminate(e.cmd.Process); err != nil {
			// No graceful primitive or signal failed; fall back to kill.
			_ = e.cmd.Process.Kill()
		}
		// Monitor reaps the child; bounded by the target's own shutdown.
		<-e.done
	}

	now := time.Now().UTC()
	e.rec.State = StateStopped
	e.rec.StoppedAt = &now
	e.rec.PID = nil

	slog.Info("server stopped", "server_id", serverID, "force", force)
	metrics.IncServerStop(serverID)
	s.emit(history.Event{Type: history.EventServerStop, OccurredAt: now, ServerID: serverID})
	return nil
}

// Restart stops the server (errors ignored), waits a short settle delay, then
// starts it again. When cfg is nil the last known config for the id is used;
// ErrMissingConfig is returned if none is remembered.
func (s *Supervisor) Restart(serverID string, cfg *Config) (ServerProcess, error) {
	use, restarts, ok := s.recoverConfig(serverID)
	if cfg != nil {
		use, ok = *cfg, true
	}
	if !ok {
		return ServerProcess{}, fmt.Errorf("%w: %s", ErrMissingConfig, serverID)
	}

	if e := s.get(serverID); e != nil {
		e.mu.Lock()
		e.rec.State = StateRestarting
		e.mu.Unlock()
		_ = s.Stop(serverID, false)
	}
	time.Sleep(s.settle)

	rec, err := s.Start(serverID, use)
	if err != nil {
		return ServerProcess{}, err
	}
	// Restart count carries over from the replaced record. It is not
	// incremented here; see the supervisor tests for the pinned behavior.
	if restarts > rec.RestartCount {
		s.setRestarts(serverID, restarts)
		rec.RestartCount = restarts
	}
	metrics.IncServerRestart(serverID)
	return rec, nil
}

// Status polls the process without blocking and returns the refreshed
// snapshot. A process that exited with code 0 is classified stopped; a
// non-zero exit is classified error with the code recorded in LastError.
func (s *Supervisor) Status(serverID string) (ServerProcess, error) {
	e := s.get(serverID)
	if e == nil {
		return ServerProcess{}, fmt.Errorf("%w: %s", ErrNotFound, serverID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refreshLocked()
	return e.rec, nil
}

// List returns snapshots of every known record with refreshed uptimes.
// The result is sorted by server id for stable output.
func (s *Supervisor) List() []ServerProcess {
	s.mu.RLock()
	es := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		es = append(es, e)
	}
	s.mu.RUnlock()

	out := make([]ServerProcess, 0, len(es))
	for _, e := range es {
		e.mu.Lock()
		e.refreshLocked()
		out = append(out, e.rec)
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServerID < out[j].ServerID })
	return out
}

// Shutdown force-stops every supervised server. Used by the daemon on exit.
func (s *Supervisor) Shutdown() {
	for _, rec := range s.List() {
		_ = s.Stop(rec.ServerID, true)
	}
}

// --- internals ---

func (s *Supervisor) get(serverID string) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[serverID]
}

func (s *Supervisor) getOrCreate(serverID string) (*entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[serverID]; ok {
		return e, false
	}
	e := &entry{rec: ServerProcess{ServerID: serverID, State: StateStopped}}
	s.entries[serverID] = e
	return e, true
}

// lockCurrent returns the entry for serverID with its lock held, retrying
// when a concurrent Stop removed the entry between the map lookup and the
// lock acquisition. Callers must not hold s.mu.
func (s *Supervisor) lockCurrent(serverID string) (*entry, bool) {
	for {
		e, created := s.getOrCreate(serverID)
		e.mu.Lock()
		if s.get(serverID) == e {
			return e, created
		}
		e.mu.Unlock()
	}
}

// remove deletes the map entry only if it still points at e, so a concurrent
// re-start that replaced the entry is not clobbered.
func (s *Supervisor) remove(serverID string, e *entry) {
	s.mu.Lock()
	if cur, ok := s.entries[serverID]; ok && cur == e {
		delete(s.entries, serverID)
	}
	s.mu.Unlock()
}

func (s *Supervisor) recoverConfig(serverID string) (Config, int, bool) {
	e := s.get(serverID)
	if e == nil {
		return Config{}, 0, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cfg.Command == "" {
		return Config{}, e.rec.RestartCount, false
	}
	return e.cfg, e.rec.RestartCount, true
}

func (s *Supervisor) setRestarts(serverID string, n int) {
	if e := s.get(serverID); e != nil {
		e.mu.Lock()
		e.rec.RestartCount = n
		e.mu.Unlock()
	}
}

func (s *Supervisor) countRunning() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries {
		if e.alive() {
			n++
		}
	}
	return n
}

func (s *Supervisor) emit(e history.Event) {
	for _, sink := range s.sinks {
		if err := sink.Send(context.Background(), e); err != nil {
			slog.Warn("history sink send failed", "error", err)
		}
	}
}

// alive reports whether the monitor has not yet observed the child's exit.
func (e *entry) alive() bool {
	if e.done == nil {
		return false
	}
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

// refreshLocked re-classifies the record from the observed process state.
// Caller holds e.mu.
func (e *entry) refreshLocked() {
	if e.cmd == nil || e.done == nil {
		return
	}
	select {
	case <-e.done:
		if e.rec.State == StateStopped || e.rec.State == StateError {
			return // already classified
		}
		now := time.Now().UTC()
		e.rec.StoppedAt = &now
		e.rec.PID = nil
		if e.exitCode == 0 {
			e.rec.State = StateStopped
			e.rec.LastError = nil
		} else {
			e.rec.State = StateError
			msg := fmt.Sprintf("exited with code %d", e.exitCode)
			e.rec.LastError = &msg
		}
	default:
		e.rec.State = StateRunning
		if e.rec.StartedAt != nil {
			up := uint64(time.Since(*e.rec.StartedAt) / time.Second)
			e.rec.Uptime = &up
		}
	}
}

// monitor reaps the child exactly once, records the exit code, releases the
// capture writers, then publishes the exit by closing done.
func (e *entry) monitor() {
	cmd := e.cmd
	done := e.done
	err := cmd.Wait()
	code := 0
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}
	e.exitCode = code
	e.exitErr = err
	closeWriters(e.outW, e.errW)
	close(done)
}

func buildCommand(cfg Config) *exec.Cmd {
	// #nosec G204 -- the command is the caller's explicit server config
	cmd := exec.Command(cfg.Command, cfg.Args...)
	if cfg.Cwd != "" {
		cmd.Dir = cfg.Cwd
	}
	if len(cfg.Env) > 0 {
		env := os.Environ()
		keys := make([]string, 0, len(cfg.Env))
		for k := range cfg.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			env = append(env, k+"="+cfg.Env[k])
		}
		cmd.Env = env
	}
	return cmd
}

func closeWriters(ws ...io.WriteCloser) {
	for _, w := range ws {
		if w != nil {
			_ = w.Close()
		}
	}
}
