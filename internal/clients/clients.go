// Package clients discovers, validates, imports and exports MCP server
// configurations of desktop IDE clients (Claude Desktop, VS Code, Cursor,
// Windsurf, Zed and friends). Each client keeps a JSON settings file with a
// map of server definitions under a client-specific key.
package clients

// ClientType identifies a desktop client that manages MCP servers.
type ClientType string

const (
	ClientMcpHub        ClientType = "mcp-hub"
	ClientClaudeDesktop ClientType = "claude-desktop"
	ClientVscode        ClientType = "vscode"
	ClientCursor        ClientType = "cursor"
	ClientWindsurf      ClientType = "windsurf"
	ClientZed           ClientType = "zed"
	ClientCline         ClientType = "cline"
	ClientContinue      ClientType = "continue"
	ClientCustom        ClientType = "custom"
)

// ParseClientType returns the ClientType for s, or false for unknown names.
func ParseClientType(s string) (ClientType, bool) {
	switch ClientType(s) {
	case ClientMcpHub, ClientClaudeDesktop, ClientVscode, ClientCursor,
		ClientWindsurf, ClientZed, ClientCline, ClientContinue, ClientCustom:
		return ClientType(s), true
	}
	return "", false
}

// ServerConfig is one server definition inside a client settings file.
// Stdio servers set Command; remote servers set URL.
type ServerConfig struct {
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	Cwd       string            `json:"cwd,omitempty"`
	URL       string            `json:"url,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Transport string            `json:"transport,omitempty"`
}

// Config is the parsed server section of a client settings file.
type Config struct {
	Servers map[string]ServerConfig `json:"mcpServers"`
}

// Discovery describes one probed client settings location.
type Discovery struct {
	ClientType  ClientType `json:"client_type"`
	ConfigPath  string     `json:"config_path"`
	Found       bool       `json:"found"`
	Readable    bool       `json:"readable"`
	ServerCount *int       `json:"server_count,omitempty"`
	Servers     []string   `json:"servers,omitempty"`
}

// Validation is the result of checking one client settings file.
type Validation struct {
	Valid       bool       `json:"valid"`
	ClientType  ClientType `json:"client_type,omitempty"`
	Errors      []string   `json:"errors"`
	Warnings    []string   `json:"warnings"`
	ServerCount *int       `json:"server_count,omitempty"`
}

// ImportedServer is a hub-native server record produced from a client config.
type ImportedServer struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	TransportType    string            `json:"transportType"`
	Command          string            `json:"command,omitempty"`
	Args             []string          `json:"args,omitempty"`
	Env              map[string]string `json:"env,omitempty"`
	Cwd              string            `json:"cwd,omitempty"`
	URL              string            `json:"url,omitempty"`
	Headers          map[string]string `json:"headers,omitempty"`
	Enabled          bool              `json:"enabled"`
	CreatedAt        string            `json:"createdAt"`
	UpdatedAt        string            `json:"updatedAt"`
	ClientType       ClientType        `json:"clientType"`
	ConfigSourcePath string            `json:"configSourcePath"`
	OriginalConfig   string            `json:"originalConfig"`
}
