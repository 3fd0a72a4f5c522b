// Package inspect probes an installed MCP server over stdio: it launches the
// server process, performs the protocol handshake and lists the tools the
// server exposes, then shuts it down. Used to verify an install actually
// produced a working server before it is handed to the supervisor.
package inspect

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AstroAir/mcp-hub-next/internal/lifecycle"
)

// DefaultTimeout covers process startup plus the protocol handshake.
const DefaultTimeout = 10 * time.Second

// ToolInfo summarizes one tool exposed by a probed server.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Report is the outcome of probing one server.
type Report struct {
	ServerName    string     `json:"server_name"`
	ServerVersion string     `json:"server_version"`
	Tools         []ToolInfo `json:"tools"`
	ProbedAt      time.Time  `json:"probed_at"`
}

// Probe launches the configured command as an MCP stdio server, initializes
// the protocol and lists its tools. The subprocess is terminated before
// Probe returns. The context bounds the whole probe; without a deadline
// DefaultTimeout applies.
func Probe(ctx context.Context, cfg lifecycle.Config) (*Report, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	env := make([]string, 0, len(cfg.Env))
	for k, v := range cfg.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	c, err := client.NewStdioMCPClient(cfg.Command, env, cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("start stdio client: %w", err)
	}
	defer func() { _ = c.Close() }()

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "mcp-hub", Version: "1.0.0"}
	initReq.Params.Capabilities = mcp.ClientCapabilities{}

	initRes, err := c.Initialize(ctx, initReq)
	if err != nil {
		return nil, fmt.Errorf("initialize MCP protocol: %w", err)
	}

	report := &Report{
		ServerName:    initRes.ServerInfo.Name,
		ServerVersion: initRes.ServerInfo.Version,
		Tools:         []ToolInfo{},
		ProbedAt:      time.Now().UTC(),
	}

	if initRes.Capabilities.Tools != nil {
		toolsRes, err := c.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			return nil, fmt.Errorf("list tools: %w", err)
		}
		for _, t := range toolsRes.Tools {
			report.Tools = append(report.Tools, ToolInfo{Name: t.Name, Description: t.Description})
		}
	}
	return report, nil
}
