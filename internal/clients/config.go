package clients

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// serverSectionKeys are the settings keys checked for server definitions,
// in order: Claude Desktop, VS Code, Cursor.
var serverSectionKeys = []string{"mcpServers", "mcp.servers", "cursor.mcp.servers"}

// ParseConfigFile reads a client settings file and extracts its server map.
func ParseConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config JSON: %w", err)
	}
	for _, key := range serverSectionKeys {
		raw, ok := doc[key]
		if !ok {
			continue
		}
		var servers map[string]ServerConfig
		if err := json.Unmarshal(raw, &servers); err != nil {
			return nil, fmt.Errorf("parse %s section: %w", key, err)
		}
		return &Config{Servers: servers}, nil
	}
	return nil, fmt.Errorf("no MCP servers configuration found, expected one of %s", strings.Join(serverSectionKeys, ", "))
}

// Discover probes the default settings location of every known client and
// reports what was found. Never returns an error; unprobeable clients show
// up as not found.
func Discover() []Discovery {
	probed := []ClientType{
		ClientClaudeDesktop, ClientVscode, ClientCursor,
		ClientWindsurf, ClientZed, ClientCline, ClientContinue,
	}
	out := make([]Discovery, 0, len(probed))
	for _, ct := range probed {
		d := Discovery{ClientType: ct}
		path, err := DefaultConfigPath(ct)
		if err != nil {
			out = append(out, d)
			continue
		}
		d.ConfigPath = path
		info, err := os.Stat(path)
		d.Found = err == nil
		d.Readable = err == nil && info.Mode().IsRegular()
		if d.Readable {
			if cfg, perr := ParseConfigFile(path); perr == nil {
				n := len(cfg.Servers)
				d.ServerCount = &n
				names := make([]string, 0, n)
				for name := range cfg.Servers {
					names = append(names, name)
				}
				sort.Strings(names)
				d.Servers = names
			}
		}
		out = append(out, d)
	}
	return out
}

// Validate checks a client settings file: it must parse, and each server
// should have a command or a URL. Structural problems are errors; per-server
// oddities are warnings.
func Validate(path string, ct ClientType) Validation {
	v := Validation{Valid: true, ClientType: ct, Errors: []string{}, Warnings: []string{}}
	if _, err := os.Stat(path); err != nil {
		v.Valid = false
		v.Errors = append(v.Errors, fmt.Sprintf("Config file not found: %s", path))
		return v
	}
	cfg, err := ParseConfigFile(path)
	if err != nil {
		v.Valid = false
		v.Errors = append(v.Errors, fmt.Sprintf("Failed to parse config: %v", err))
		return v
	}
	n := len(cfg.Servers)
	v.ServerCount = &n
	for name, sc := range cfg.Servers {
		if sc.Command == "" && sc.URL == "" {
			v.Warnings = append(v.Warnings, fmt.Sprintf("Server '%s' has neither command nor url", name))
		}
		if sc.Command != "" && !strings.ContainsAny(sc.Command, "/\\") {
			v.Warnings = append(v.Warnings, fmt.Sprintf("Server '%s' command '%s' should be in PATH or use absolute path", name, sc.Command))
		}
	}
	if n == 0 {
		v.Warnings = append(v.Warnings, "No servers defined in config")
	}
	return v
}

// Import parses a client settings file and converts every usable server
// definition into a hub-native record. Servers with neither command nor URL
// are skipped with a warning.
func Import(path string, ct ClientType) ([]ImportedServer, error) {
	cfg, err := ParseConfigFile(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(cfg.Servers))
	for name := range cfg.Servers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ImportedServer, 0, len(names))
	now := time.Now().UTC().Format(time.RFC3339)
	for _, name := range names {
		sc := cfg.Servers[name]
		original, _ := json.Marshal(sc)
		s := ImportedServer{
			ID:               uuid.NewString(),
			Name:             name,
			Enabled:          true,
			CreatedAt:        now,
			UpdatedAt:        now,
			ClientType:       ct,
			ConfigSourcePath: path,
			OriginalConfig:   string(original),
		}
		switch {
		case sc.URL != "":
			s.TransportType = "sse"
			if sc.Transport == "http" {
				s.TransportType = "http"
			}
			s.URL = sc.URL
			s.Headers = sc.Headers
		case sc.Command != "":
			s.TransportType = "stdio"
			s.Command = sc.Command
			s.Args = sc.Args
			s.Env = sc.Env
			s.Cwd = sc.Cwd
		default:
			slog.Warn("imported server has neither command nor url, skipping", "server", name)
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// Export converts hub-native server records back into the client settings
// shape. When outputPath is given the result is also written to disk.
func Export(servers []ImportedServer, outputPath string) (string, error) {
	cfg := Config{Servers: make(map[string]ServerConfig, len(servers))}
	for _, s := range servers {
		if s.Name == "" {
			return "", fmt.Errorf("server %s missing name", s.ID)
		}
		if s.TransportType == "stdio" || s.TransportType == "" {
			if s.Command == "" {
				return "", fmt.Errorf("server '%s' missing command", s.Name)
			}
			cfg.Servers[s.Name] = ServerConfig{
				Command: s.Command,
				Args:    s.Args,
				Env:     s.Env,
				Cwd:     s.Cwd,
			}
			continue
		}
		if s.URL == "" {
			return "", fmt.Errorf("server '%s' missing url", s.Name)
		}
		cfg.Servers[s.Name] = ServerConfig{
			URL:       s.URL,
			Headers:   s.Headers,
			Transport: s.TransportType,
		}
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("serialize config: %w", err)
	}
	if outputPath != "" {
		if err := os.WriteFile(outputPath, data, 0o600); err != nil {
			return "", fmt.Errorf("write config file: %w", err)
		}
		slog.Info("exported client config", "path", outputPath, "servers", len(cfg.Servers))
	}
	return string(data), nil
}
