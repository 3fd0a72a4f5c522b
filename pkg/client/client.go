// Package client provides an HTTP client for the hub daemon API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/AstroAir/mcp-hub-next/internal/clients"
	"github.com/AstroAir/mcp-hub-next/internal/inspect"
	"github.com/AstroAir/mcp-hub-next/internal/install"
	"github.com/AstroAir/mcp-hub-next/internal/lifecycle"
	"github.com/AstroAir/mcp-hub-next/internal/registry"
)

// Client talks to a running hub daemon.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger
}

// DefaultConfig returns the configuration for a locally running daemon.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8390/api",
		Timeout: 15 * time.Second,
	}
}

// New creates a hub API client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		logger:  cfg.Logger,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// IsReachable reports whether the daemon answers on its health endpoint.
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// --- lifecycle ---

func (c *Client) StartServer(ctx context.Context, serverID string, cfg lifecycle.Config) (lifecycle.ServerProcess, error) {
	var rec lifecycle.ServerProcess
	err := c.do(ctx, http.MethodPost, "/servers/"+url.PathEscape(serverID)+"/start", cfg, &rec)
	return rec, err
}

func (c *Client) StopServer(ctx context.Context, serverID string, force bool) error {
	path := "/servers/" + url.PathEscape(serverID) + "/stop"
	if force {
		path += "?force=1"
	}
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

func (c *Client) RestartServer(ctx context.Context, serverID string, cfg *lifecycle.Config) (lifecycle.ServerProcess, error) {
	var rec lifecycle.ServerProcess
	err := c.do(ctx, http.MethodPost, "/servers/"+url.PathEscape(serverID)+"/restart", cfg, &rec)
	return rec, err
}

func (c *Client) ServerStatus(ctx context.Context, serverID string) (lifecycle.ServerProcess, error) {
	var rec lifecycle.ServerProcess
	err := c.do(ctx, http.MethodGet, "/servers/"+url.PathEscape(serverID)+"/status", nil, &rec)
	return rec, err
}

func (c *Client) ListServers(ctx context.Context) ([]lifecycle.ServerProcess, error) {
	var recs []lifecycle.ServerProcess
	err := c.do(ctx, http.MethodGet, "/servers", nil, &recs)
	return recs, err
}

func (c *Client) InspectServer(ctx context.Context, cfg lifecycle.Config) (inspect.Report, error) {
	var rep inspect.Report
	err := c.do(ctx, http.MethodPost, "/servers/inspect", cfg, &rep)
	return rep, err
}

// --- install ---

// InstallResponse pairs the minted install id with the initial snapshot.
type InstallResponse struct {
	InstallID string           `json:"install_id"`
	Progress  install.Progress `json:"progress"`
}

func (c *Client) Install(ctx context.Context, cfg install.Config, serverName string) (InstallResponse, error) {
	body := struct {
		Config     install.Config `json:"config"`
		ServerName string         `json:"server_name"`
	}{cfg, serverName}
	var resp InstallResponse
	err := c.do(ctx, http.MethodPost, "/installs", body, &resp)
	return resp, err
}

func (c *Client) Validate(ctx context.Context, cfg install.Config) (install.Validation, error) {
	var v install.Validation
	err := c.do(ctx, http.MethodPost, "/installs/validate", cfg, &v)
	return v, err
}

func (c *Client) Progress(ctx context.Context, installID string) (install.Progress, error) {
	var p install.Progress
	err := c.do(ctx, http.MethodGet, "/installs/"+url.PathEscape(installID), nil, &p)
	return p, err
}

func (c *Client) Cancel(ctx context.Context, installID string) error {
	return c.do(ctx, http.MethodPost, "/installs/"+url.PathEscape(installID)+"/cancel", nil, nil)
}

func (c *Client) Cleanup(ctx context.Context, installID string) error {
	return c.do(ctx, http.MethodDelete, "/installs/"+url.PathEscape(installID), nil, nil)
}

func (c *Client) Installed(ctx context.Context) ([]install.Metadata, error) {
	var list []install.Metadata
	err := c.do(ctx, http.MethodGet, "/installs", nil, &list)
	return list, err
}

func (c *Client) Uninstall(ctx context.Context, installID, serverID string, stopProcess bool) error {
	body := struct {
		ServerID    string `json:"server_id,omitempty"`
		StopProcess *bool  `json:"stop_process"`
	}{serverID, &stopProcess}
	return c.do(ctx, http.MethodPost, "/installs/"+url.PathEscape(installID)+"/uninstall", body, nil)
}

// --- registry ---

func (c *Client) Search(ctx context.Context, f registry.SearchFilters) (registry.SearchResult, error) {
	q := url.Values{}
	if f.Query != "" {
		q.Set("q", f.Query)
	}
	if f.Source != "" {
		q.Set("source", f.Source)
	}
	if f.Verified != nil {
		q.Set("verified", strconv.FormatBool(*f.Verified))
	}
	if f.SortBy != "" {
		q.Set("sort", f.SortBy)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	path := "/registry/search"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var res registry.SearchResult
	err := c.do(ctx, http.MethodGet, path, nil, &res)
	return res, err
}

func (c *Client) Categories(ctx context.Context) ([]string, error) {
	var cats []string
	err := c.do(ctx, http.MethodGet, "/registry/categories", nil, &cats)
	return cats, err
}

func (c *Client) Popular(ctx context.Context, limit int, source string) ([]registry.Entry, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if source != "" {
		q.Set("source", source)
	}
	path := "/registry/popular"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var entries []registry.Entry
	err := c.do(ctx, http.MethodGet, path, nil, &entries)
	return entries, err
}

func (c *Client) RefreshRegistry(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/registry/refresh", nil, nil)
}

// --- client configs ---

func (c *Client) DiscoverClientConfigs(ctx context.Context) ([]clients.Discovery, error) {
	var out []clients.Discovery
	err := c.do(ctx, http.MethodGet, "/clients/configs", nil, &out)
	return out, err
}

func (c *Client) ImportClientConfig(ctx context.Context, path string, clientType clients.ClientType) ([]clients.ImportedServer, error) {
	body := struct {
		Path       string `json:"path"`
		ClientType string `json:"client_type"`
	}{path, string(clientType)}
	var out []clients.ImportedServer
	err := c.do(ctx, http.MethodPost, "/clients/configs/import", body, &out)
	return out, err
}

// do performs one API round trip, encoding body and decoding the response
// into out when given. Non-2xx responses are returned as errors carrying the
// server's error message.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "method", method, "path", path, "error", err)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if derr := json.NewDecoder(resp.Body).Decode(&apiErr); derr == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
