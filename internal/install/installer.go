// Package install implements the asynchronous server installer: validation
// of install requests, background execution of npm/git based installs with
// polled progress, durable metadata, and uninstall.
package install

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AstroAir/mcp-hub-next/internal/history"
	"github.com/AstroAir/mcp-hub-next/internal/metrics"
	"github.com/AstroAir/mcp-hub-next/internal/storage"
)

var (
	npmNameRe = regexp.MustCompile(`^(@[a-z0-9-~][a-z0-9-._~]*/)?[a-z0-9-~][a-z0-9-._~]*$`)
	repoRe    = regexp.MustCompile(`^[A-Za-z0-9_-]+/[A-Za-z0-9_.-]+$`)
)

// Size and time estimates reported by Validate, per source kind.
const (
	npmEstimatedSize    uint64 = 10 * 1024 * 1024
	npmEstimatedTime    uint64 = 30
	githubEstimatedSize uint64 = 50 * 1024 * 1024
	githubEstimatedTime uint64 = 60
	localEstimatedTime  uint64 = 1
)

// ServerStopper stops a supervised server process before its assets are
// removed. Satisfied by lifecycle.Supervisor.
type ServerStopper interface {
	Stop(serverID string, force bool) error
}

// Installer runs installs in background goroutines and answers progress
// polls. One Installer serves the whole hub; all methods are safe for
// concurrent use.
type Installer struct {
	tracker *Tracker
	meta    *MetadataStore
	st      *storage.Store
	stopper ServerStopper
	sinks   []history.Sink

	// Tool binary names, overridable in tests.
	npmBin string
	gitBin string

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// Option configures an Installer.
type Option func(*Installer)

// WithServerStopper wires the process supervisor used by Uninstall when the
// caller asks for the running process to be stopped first.
func WithServerStopper(s ServerStopper) Option {
	return func(i *Installer) { i.stopper = s }
}

// WithHistorySinks attaches audit sinks for install/uninstall events.
func WithHistorySinks(sinks ...history.Sink) Option {
	return func(i *Installer) { i.sinks = append(i.sinks, sinks...) }
}

// WithToolBinaries overrides the npm and git executables.
func WithToolBinaries(npm, git string) Option {
	return func(i *Installer) {
		if npm != "" {
			i.npmBin = npm
		}
		if git != "" {
			i.gitBin = git
		}
	}
}

// New returns an Installer persisting metadata through st.
func New(st *storage.Store, opts ...Option) *Installer {
	i := &Installer{
		tracker: NewTracker(),
		meta:    NewMetadataStore(st),
		st:      st,
		npmBin:  "npm",
		gitBin:  "git",
		cancels: make(map[string]context.CancelFunc),
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

// LoadMetadata restores the durable metadata set. Call once at startup.
func (i *Installer) LoadMetadata() error { return i.meta.Load() }

// Validate runs static and environment checks for cfg without side effects.
// Syntactically invalid requests are rejected before any tool probe so a
// malformed name never shells out.
func (i *Installer) Validate(cfg Config) Validation {
	v := Validation{Errors: []string{}, Warnings: []string{}, Dependencies: []DependencyInfo{}}
	switch cfg.Source {
	case SourceNpm:
		if !npmNameRe.MatchString(cfg.PackageName) {
			v.Errors = append(v.Errors, fmt.Sprintf("Invalid npm package name: %s", cfg.PackageName))
			break
		}
		dep := i.probeTool(i.npmBin, true)
		v.Dependencies = append(v.Dependencies, dep)
		if !dep.Installed {
			v.Errors = append(v.Errors, "npm is not installed or not in PATH")
		}
		size, secs := npmEstimatedSize, npmEstimatedTime
		v.EstimatedSize, v.EstimatedTime = &size, &secs
	case SourceGithub:
		if !repoRe.MatchString(cfg.Repository) {
			v.Errors = append(v.Errors, fmt.Sprintf("Invalid repository format (expected owner/repo): %s", cfg.Repository))
			break
		}
		dep := i.probeTool(i.gitBin, true)
		v.Dependencies = append(v.Dependencies, dep)
		if !dep.Installed {
			v.Errors = append(v.Errors, "git is not installed or not in PATH")
		}
		size, secs := githubEstimatedSize, githubEstimatedTime
		v.EstimatedSize, v.EstimatedTime = &size, &secs
	case SourceLocal:
		info, err := os.Stat(cfg.Path)
		switch {
		case err != nil:
			v.Errors = append(v.Errors, fmt.Sprintf("Path does not exist: %s", cfg.Path))
		case !info.IsDir():
			v.Errors = append(v.Errors, fmt.Sprintf("Path is not a directory: %s", cfg.Path))
		}
		size, secs := uint64(0), localEstimatedTime
		v.EstimatedSize, v.EstimatedTime = &size, &secs
	default:
		v.Errors = append(v.Errors, fmt.Sprintf("Unknown install source: %s", cfg.Source))
	}
	v.Valid = len(v.Errors) == 0
	return v
}

func (i *Installer) probeTool(bin string, required bool) DependencyInfo {
	dep := DependencyInfo{Name: bin, Required: required}
	path, err := exec.LookPath(bin)
	if err != nil {
		return dep
	}
	if err := exec.Command(bin, "--version").Run(); err != nil {
		return dep
	}
	dep.Installed = true
	dep.InstallPath = &path
	return dep
}

// Install mints an install id, registers a pending progress record and
// launches the install in a background goroutine. The returned snapshot is
// the initial pending record; callers poll Progress for updates.
func (i *Installer) Install(cfg Config, serverName string) (string, Progress) {
	id := uuid.NewString()
	now := time.Now().UTC()
	p := Progress{
		InstallID: id,
		Status:    StatusPending,
		Progress:  0,
		Message:   "Preparing installation",
		StartedAt: now,
		Logs:      []string{},
	}
	i.tracker.Put(p)

	ctx, cancel := context.WithCancel(context.Background())
	i.mu.Lock()
	i.cancels[id] = cancel
	i.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			i.mu.Lock()
			delete(i.cancels, id)
			i.mu.Unlock()
		}()
		start := time.Now()
		err := i.run(ctx, id, cfg, serverName)
		status := StatusCompleted
		switch {
		case ctx.Err() != nil:
			status = StatusCancelled
		case err != nil:
			status = StatusFailed
			slog.Error("install failed", "install_id", id, "source", cfg.Source, "error", err)
		}
		metrics.ObserveInstallOutcome(string(cfg.Source), string(status), time.Since(start).Seconds())
		i.sendEvent(history.Event{
			Type:       history.EventInstall,
			OccurredAt: time.Now().UTC(),
			ServerID:   serverName,
			InstallID:  id,
			Source:     string(cfg.Source),
			Status:     string(status),
		})
	}()
	return id, p
}

// Progress returns a copy of the progress record for installID.
func (i *Installer) Progress(installID string) (Progress, error) {
	p, ok := i.tracker.Get(installID)
	if !ok {
		return Progress{}, ErrNotFound
	}
	return p, nil
}

// Cancel marks the install cancelled and signals its background task. The
// cancelled status sticks: a late write from the task is discarded by the
// tracker. Cancelling an unknown or finished install is a no-op.
func (i *Installer) Cancel(installID string) {
	i.tracker.Cancel(installID)
	i.mu.Lock()
	cancel := i.cancels[installID]
	i.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	slog.Info("install cancelled", "install_id", installID)
}

// Cleanup drops the progress record once the caller is done polling it.
func (i *Installer) Cleanup(installID string) {
	i.tracker.Remove(installID)
}

// Metadata returns the durable record for installID.
func (i *Installer) Metadata(installID string) (Metadata, error) {
	md, ok := i.meta.Get(installID)
	if !ok {
		return Metadata{}, ErrNotFound
	}
	return md, nil
}

// ListMetadata returns all install records, newest first.
func (i *Installer) ListMetadata() []Metadata { return i.meta.List() }

// Uninstall removes an installed server's assets and its metadata record.
// If stopProcess is set the supervised process for serverID is asked to
// stop gracefully first; stop failures are logged and do not abort the
// removal.
func (i *Installer) Uninstall(installID, serverID string, stopProcess bool) error {
	md, ok := i.meta.Get(installID)
	if !ok {
		return ErrNotFound
	}
	if stopProcess && i.stopper != nil && serverID != "" {
		if err := i.stopper.Stop(serverID, false); err != nil {
			slog.Warn("stop before uninstall failed", "server_id", serverID, "error", err)
		}
	}
	switch md.SourceType {
	case SourceNpm:
		if md.PackageName != nil {
			cmd := exec.Command(i.npmBin, "uninstall", *md.PackageName, "--prefix", md.InstallPath)
			if out, err := cmd.CombinedOutput(); err != nil {
				slog.Warn("npm uninstall failed", "package", *md.PackageName, "error", err, "output", strings.TrimSpace(string(out)))
			}
		}
		if err := os.RemoveAll(md.InstallPath); err != nil {
			return fmt.Errorf("delete npm installation directory: %w", err)
		}
	case SourceGithub:
		if err := os.RemoveAll(md.InstallPath); err != nil {
			return fmt.Errorf("delete cloned repository: %w", err)
		}
	case SourceLocal:
		// Local installs reference user-owned directories; never delete them.
	default:
		return fmt.Errorf("unknown install source %q", md.SourceType)
	}
	if err := i.meta.Remove(installID); err != nil {
		return fmt.Errorf("remove install metadata: %w", err)
	}
	i.tracker.Remove(installID)
	i.sendEvent(history.Event{
		Type:       history.EventUninstall,
		OccurredAt: time.Now().UTC(),
		ServerID:   serverID,
		InstallID:  installID,
		Source:     string(md.SourceType),
		Status:     "removed",
	})
	slog.Info("server uninstalled", "install_id", installID, "server_id", serverID, "source", md.SourceType)
	return nil
}

func (i *Installer) run(ctx context.Context, id string, cfg Config, serverName string) error {
	switch cfg.Source {
	case SourceNpm:
		return i.runNpm(ctx, id, cfg, serverName)
	case SourceGithub:
		return i.runGithub(ctx, id, cfg, serverName)
	case SourceLocal:
		return i.runLocal(id, cfg, serverName)
	default:
		err := fmt.Errorf("unknown install source %q", cfg.Source)
		i.fail(id, "Installation failed", err.Error())
		return err
	}
}

func (i *Installer) runNpm(ctx context.Context, id string, cfg Config, serverName string) error {
	i.step(id, StatusDownloading, 10, fmt.Sprintf("Downloading %s...", cfg.PackageName), "Downloading package", 3, 1)

	var target string
	if cfg.Global {
		target = i.st.Dir()
	} else {
		base, err := i.st.ServersDir("npm")
		if err != nil {
			i.fail(id, "Installation failed", err.Error())
			return err
		}
		target = filepath.Join(base, strings.ReplaceAll(cfg.PackageName, "/", "-"))
		if err := os.MkdirAll(target, 0o750); err != nil {
			i.fail(id, "Installation failed", err.Error())
			return err
		}
	}

	spec := cfg.PackageName
	if cfg.Version != "" {
		spec = spec + "@" + cfg.Version
	}
	args := []string{"install", spec}
	if cfg.Global {
		args = append(args, "--global")
	} else {
		args = append(args, "--prefix", target)
	}
	if cfg.Registry != "" {
		args = append(args, "--registry", cfg.Registry)
	}
	if err := i.runTool(ctx, id, i.npmBin, args, ""); err != nil {
		return err
	}

	i.step(id, StatusConfiguring, 80, "Configuring server...", "Configuring", 3, 2)
	pkg := cfg.PackageName
	md := Metadata{
		ServerID:    serverIDOr(serverName, id),
		InstallID:   id,
		SourceType:  SourceNpm,
		InstallPath: target,
		PackageName: &pkg,
		InstalledAt: time.Now().UTC(),
	}
	if cfg.Version != "" {
		ver := cfg.Version
		md.Version = &ver
	}
	if err := i.meta.Put(md); err != nil {
		slog.Warn("persist install metadata failed", "install_id", id, "error", err)
	}

	i.complete(id, fmt.Sprintf("Successfully installed %s", cfg.PackageName), "Completed", 3, 3)
	return nil
}

func (i *Installer) runGithub(ctx context.Context, id string, cfg Config, serverName string) error {
	i.step(id, StatusDownloading, 10, fmt.Sprintf("Cloning %s...", cfg.Repository), "Cloning repository", 4, 1)

	base, err := i.st.ServersDir("github")
	if err != nil {
		i.fail(id, "Installation failed", err.Error())
		return err
	}
	name := cfg.Repository[strings.LastIndex(cfg.Repository, "/")+1:]
	target := filepath.Join(base, name)

	args := []string{"clone", "--depth", "1"}
	switch {
	case cfg.Tag != "":
		args = append(args, "--branch", cfg.Tag)
	case cfg.Branch != "":
		args = append(args, "--branch", cfg.Branch)
	}
	args = append(args, "https://github.com/"+cfg.Repository+".git", target)
	if err := i.runTool(ctx, id, i.gitBin, args, ""); err != nil {
		return err
	}
	if cfg.Commit != "" {
		if err := i.runTool(ctx, id, i.gitBin, []string{"checkout", cfg.Commit}, target); err != nil {
			return err
		}
	}

	workDir := target
	if cfg.SubPath != "" {
		workDir = filepath.Join(target, cfg.SubPath)
	}
	i.step(id, StatusInstalling, 60, "Installing dependencies...", "Installing dependencies", 4, 3)
	if _, err := os.Stat(filepath.Join(workDir, "package.json")); err == nil {
		// Best effort; servers without an npm build still install.
		cmd := exec.CommandContext(ctx, i.npmBin, "install")
		cmd.Dir = workDir
		if out, derr := cmd.CombinedOutput(); derr != nil {
			i.appendLog(id, strings.TrimSpace(string(out)))
			slog.Warn("dependency install failed", "install_id", id, "error", derr)
		}
	}

	repo := cfg.Repository
	md := Metadata{
		ServerID:    serverIDOr(serverName, id),
		InstallID:   id,
		SourceType:  SourceGithub,
		InstallPath: target,
		Repository:  &repo,
		InstalledAt: time.Now().UTC(),
	}
	if ref := firstNonEmpty(cfg.Commit, cfg.Tag, cfg.Branch); ref != "" {
		md.Version = &ref
	}
	if err := i.meta.Put(md); err != nil {
		slog.Warn("persist install metadata failed", "install_id", id, "error", err)
	}

	i.complete(id, fmt.Sprintf("Successfully installed %s", cfg.Repository), "Completed", 4, 4)
	return nil
}

func (i *Installer) runLocal(id string, cfg Config, serverName string) error {
	// Install can be called without a prior Validate, so re-check here.
	info, err := os.Stat(cfg.Path)
	if err != nil || !info.IsDir() {
		msg := fmt.Sprintf("Path must exist and be a directory: %s", cfg.Path)
		i.fail(id, "Invalid local path", msg)
		return errors.New(msg)
	}

	i.step(id, StatusConfiguring, 50, "Configuring local server...", "Configuring", 2, 1)
	md := Metadata{
		ServerID:    serverIDOr(serverName, id),
		InstallID:   id,
		SourceType:  SourceLocal,
		InstallPath: cfg.Path,
		InstalledAt: time.Now().UTC(),
	}
	if err := i.meta.Put(md); err != nil {
		slog.Warn("persist install metadata failed", "install_id", id, "error", err)
	}

	i.complete(id, "Local server configured", "Completed", 2, 2)
	return nil
}

// runTool executes an external tool, captures its output into the install
// log and converts a non-zero exit into a failed progress record. A
// cancelled context is not recorded as a failure; the tracker already holds
// the cancelled status.
func (i *Installer) runTool(ctx context.Context, id, bin string, args []string, dir string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if s := strings.TrimSpace(string(out)); s != "" {
		i.appendLog(id, s)
	}
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	terr := &ToolError{Tool: bin, ExitCode: exitCode(err)}
	i.fail(id, "Installation failed", terr.Error())
	return terr
}

func (i *Installer) step(id string, status Status, progress int, msg, stepName string, total, number int) {
	i.tracker.Update(id, func(p *Progress) {
		p.Status = status
		p.Progress = progress
		p.Message = msg
		p.CurrentStep = &stepName
		p.TotalSteps = &total
		p.CurrentStepNumber = &number
	})
}

func (i *Installer) complete(id, msg, stepName string, total, number int) {
	now := time.Now().UTC()
	i.tracker.Update(id, func(p *Progress) {
		p.Status = StatusCompleted
		p.Progress = 100
		p.Message = msg
		p.CurrentStep = &stepName
		p.TotalSteps = &total
		p.CurrentStepNumber = &number
		p.CompletedAt = &now
	})
	slog.Info("install completed", "install_id", id)
}

// fail marks the record failed and resets reported progress to zero so a
// poller never sees a stale percentage next to a failed status.
func (i *Installer) fail(id, msg, errMsg string) {
	now := time.Now().UTC()
	i.tracker.Update(id, func(p *Progress) {
		p.Status = StatusFailed
		p.Progress = 0
		p.Message = msg
		p.Error = &errMsg
		p.CompletedAt = &now
	})
}

func (i *Installer) appendLog(id, line string) {
	i.tracker.Update(id, func(p *Progress) {
		p.Logs = append(p.Logs, line)
	})
}

func (i *Installer) sendEvent(e history.Event) {
	for _, s := range i.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := s.Send(ctx, e); err != nil {
			slog.Warn("history sink send failed", "error", err)
		}
		cancel()
	}
}

func serverIDOr(name, installID string) string {
	if name != "" {
		return name
	}
	return installID
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func exitCode(err error) int {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}
