// Package mcphub manages MCP servers: it supervises their processes,
// installs them from npm, GitHub or local directories, and indexes a
// searchable catalog of discoverable servers.
package mcphub

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AstroAir/mcp-hub-next/internal/clients"
	cfg "github.com/AstroAir/mcp-hub-next/internal/config"
	"github.com/AstroAir/mcp-hub-next/internal/history"
	"github.com/AstroAir/mcp-hub-next/internal/history/factory"
	"github.com/AstroAir/mcp-hub-next/internal/inspect"
	"github.com/AstroAir/mcp-hub-next/internal/install"
	"github.com/AstroAir/mcp-hub-next/internal/lifecycle"
	"github.com/AstroAir/mcp-hub-next/internal/logger"
	"github.com/AstroAir/mcp-hub-next/internal/metrics"
	"github.com/AstroAir/mcp-hub-next/internal/registry"
	iapi "github.com/AstroAir/mcp-hub-next/internal/server"
	"github.com/AstroAir/mcp-hub-next/internal/storage"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type ServerConfig = lifecycle.Config

type ServerProcess = lifecycle.ServerProcess

type ServerState = lifecycle.State

type InstallConfig = install.Config

type InstallSource = install.SourceType

type InstallProgress = install.Progress

type InstallValidation = install.Validation

type InstallMetadata = install.Metadata

type RegistryEntry = registry.Entry

type SearchFilters = registry.SearchFilters

type SearchResult = registry.SearchResult

type ClientDiscovery = clients.Discovery

type ClientType = clients.ClientType

type ImportedServer = clients.ImportedServer

type InspectReport = inspect.Report

type HistorySink = history.Sink

type CaptureConfig = logger.CaptureConfig

type FileConfig = cfg.FileConfig

const (
	SourceNpm    = install.SourceNpm
	SourceGithub = install.SourceGithub
	SourceLocal  = install.SourceLocal
)

// Hub bundles the supervisor, installer and registry behind one facade.
type Hub struct {
	sup   *lifecycle.Supervisor
	inst  *install.Installer
	reg   *registry.Cache
	store *storage.Store
	sinks []history.Sink
}

// Options configures a Hub.
type Options struct {
	// DataDir is the durable data directory. Required.
	DataDir string
	// Capture enables per-server stdout/stderr log files.
	Capture *CaptureConfig
	// HistoryDSN attaches an audit sink (sqlite:// or postgres:// DSN).
	HistoryDSN string
	// NpmBin / GitBin / GhBin override the external tool binaries.
	NpmBin string
	GitBin string
	GhBin  string
	// RegistryNpmBin overrides NpmBin for catalog searches only.
	RegistryNpmBin string
	// RegistryToolTimeout bounds one catalog tool invocation.
	RegistryToolTimeout time.Duration
}

// New constructs a Hub and loads the persisted install metadata.
func New(opts Options) (*Hub, error) {
	st, err := storage.New(opts.DataDir)
	if err != nil {
		return nil, err
	}

	var sinks []history.Sink
	if opts.HistoryDSN != "" {
		sink, err := factory.NewSinkFromDSN(opts.HistoryDSN)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}

	var supOpts []lifecycle.Option
	if opts.Capture != nil {
		supOpts = append(supOpts, lifecycle.WithCapture(*opts.Capture))
	}
	if len(sinks) > 0 {
		supOpts = append(supOpts, lifecycle.WithHistorySinks(sinks...))
	}
	sup := lifecycle.NewSupervisor(supOpts...)

	instOpts := []install.Option{
		install.WithServerStopper(sup),
		install.WithToolBinaries(opts.NpmBin, opts.GitBin),
	}
	if len(sinks) > 0 {
		instOpts = append(instOpts, install.WithHistorySinks(sinks...))
	}
	inst := install.New(st, instOpts...)
	if err := inst.LoadMetadata(); err != nil {
		return nil, err
	}

	regNpm := opts.RegistryNpmBin
	if regNpm == "" {
		regNpm = opts.NpmBin
	}
	regOpts := []registry.Option{registry.WithToolBinaries(regNpm, opts.GhBin)}
	if opts.RegistryToolTimeout > 0 {
		regOpts = append(regOpts, registry.WithToolTimeout(opts.RegistryToolTimeout))
	}
	reg := registry.NewCache(regOpts...)

	return &Hub{sup: sup, inst: inst, reg: reg, store: st, sinks: sinks}, nil
}

// Lifecycle operations.

func (h *Hub) Start(serverID string, cfg ServerConfig) (ServerProcess, error) {
	return h.sup.Start(serverID, cfg)
}

func (h *Hub) Stop(serverID string, force bool) error { return h.sup.Stop(serverID, force) }

func (h *Hub) Restart(serverID string, cfg *ServerConfig) (ServerProcess, error) {
	return h.sup.Restart(serverID, cfg)
}

func (h *Hub) Status(serverID string) (ServerProcess, error) { return h.sup.Status(serverID) }

func (h *Hub) List() []ServerProcess { return h.sup.List() }

// Install operations.

func (h *Hub) Validate(cfg InstallConfig) InstallValidation { return h.inst.Validate(cfg) }

func (h *Hub) Install(cfg InstallConfig, serverName string) (string, InstallProgress) {
	return h.inst.Install(cfg, serverName)
}

func (h *Hub) Progress(installID string) (InstallProgress, error) { return h.inst.Progress(installID) }

func (h *Hub) CancelInstall(installID string) { h.inst.Cancel(installID) }

func (h *Hub) CleanupInstall(installID string) { h.inst.Cleanup(installID) }

func (h *Hub) InstallMetadata(installID string) (InstallMetadata, error) {
	return h.inst.Metadata(installID)
}

func (h *Hub) Installed() []InstallMetadata { return h.inst.ListMetadata() }

func (h *Hub) Uninstall(installID, serverID string, stopProcess bool) error {
	return h.inst.Uninstall(installID, serverID, stopProcess)
}

// Registry operations.

func (h *Hub) Search(ctx context.Context, f SearchFilters) SearchResult {
	return h.reg.Search(ctx, f)
}

func (h *Hub) Categories(ctx context.Context) []string { return h.reg.Categories(ctx) }

func (h *Hub) Popular(ctx context.Context, limit int, source string) []RegistryEntry {
	return h.reg.Popular(ctx, limit, source)
}

func (h *Hub) RefreshRegistry(ctx context.Context) { h.reg.Refresh(ctx) }

// Inspect probes a server command over stdio and lists its tools.
func (h *Hub) Inspect(ctx context.Context, cfg ServerConfig) (*InspectReport, error) {
	return inspect.Probe(ctx, cfg)
}

// Shutdown force-stops all supervised processes and closes history sinks.
func (h *Hub) Shutdown() {
	h.sup.Shutdown()
	for _, s := range h.sinks {
		_ = s.Close()
	}
}

// SetupLogging configures the process-wide structured logger.
func SetupLogging(level string, color bool) { logger.Setup(level, color) }

// LoadConfig parses the TOML configuration file at path.
func LoadConfig(path string) (*FileConfig, error) { return cfg.Load(path) }

// DiscoverClientConfigs probes known desktop clients for MCP settings files.
func DiscoverClientConfigs() []ClientDiscovery { return clients.Discover() }

// ImportClientConfig converts a desktop client's settings into hub records.
func ImportClientConfig(path string, ct ClientType) ([]ImportedServer, error) {
	return clients.Import(path, ct)
}

// NewHTTPServer starts an HTTP server exposing the hub API.
func NewHTTPServer(addr, basePath string, h *Hub) *http.Server {
	return iapi.NewServer(addr, basePath, h.sup, h.inst, h.reg)
}

// Handler returns the hub API as an embeddable http.Handler.
func Handler(basePath string, h *Hub) http.Handler {
	return iapi.NewRouter(h.sup, h.inst, h.reg, basePath).Handler()
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the
// default registry. It blocks in the caller goroutine.
func ServeMetrics(addr string) error {
	http.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
