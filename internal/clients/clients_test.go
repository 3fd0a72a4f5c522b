package clients

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParseClientType(t *testing.T) {
	cases := map[string]ClientType{
		"claude-desktop": ClientClaudeDesktop,
		"vscode":         ClientVscode,
		"cursor":         ClientCursor,
		"windsurf":       ClientWindsurf,
		"zed":            ClientZed,
		"cline":          ClientCline,
		"continue":       ClientContinue,
		"mcp-hub":        ClientMcpHub,
		"custom":         ClientCustom,
	}
	for in, want := range cases {
		got, ok := ParseClientType(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got)
	}
	_, ok := ParseClientType("emacs")
	assert.False(t, ok)
}

func TestParseConfigFileSectionKeys(t *testing.T) {
	for _, key := range []string{"mcpServers", "mcp.servers", "cursor.mcp.servers"} {
		doc := map[string]any{
			key: map[string]any{
				"files": map[string]any{"command": "/usr/bin/npx", "args": []string{"-y", "server-filesystem"}},
			},
		}
		raw, err := json.Marshal(doc)
		require.NoError(t, err)

		cfg, err := ParseConfigFile(writeConfig(t, string(raw)))
		require.NoError(t, err, key)
		require.Len(t, cfg.Servers, 1)
		assert.Equal(t, "/usr/bin/npx", cfg.Servers["files"].Command)
	}
}

func TestParseConfigFileNoSection(t *testing.T) {
	_, err := ParseConfigFile(writeConfig(t, `{"theme":"dark"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no MCP servers configuration found")
}

func TestParseConfigFileMalformed(t *testing.T) {
	_, err := ParseConfigFile(writeConfig(t, `{not json`))
	assert.Error(t, err)
}

func TestValidateMissingFile(t *testing.T) {
	v := Validate(filepath.Join(t.TempDir(), "absent.json"), ClientVscode)
	assert.False(t, v.Valid)
	require.Len(t, v.Errors, 1)
	assert.Contains(t, v.Errors[0], "Config file not found")
}

func TestValidateWarnings(t *testing.T) {
	path := writeConfig(t, `{"mcpServers":{
		"ghost": {},
		"bare":  {"command": "npx"},
		"good":  {"command": "/usr/bin/npx"}
	}}`)
	v := Validate(path, ClientClaudeDesktop)
	assert.True(t, v.Valid)
	require.NotNil(t, v.ServerCount)
	assert.Equal(t, 3, *v.ServerCount)

	joined := ""
	for _, w := range v.Warnings {
		joined += w + "\n"
	}
	assert.Contains(t, joined, "'ghost' has neither command nor url")
	assert.Contains(t, joined, "'bare' command 'npx'")
	assert.NotContains(t, joined, "'good'")
}

func TestValidateEmptyServers(t *testing.T) {
	v := Validate(writeConfig(t, `{"mcpServers":{}}`), ClientCursor)
	assert.True(t, v.Valid)
	assert.Contains(t, v.Warnings, "No servers defined in config")
}

func TestImportTransportMapping(t *testing.T) {
	path := writeConfig(t, `{"mcpServers":{
		"local":  {"command": "/usr/bin/npx", "args": ["-y","pkg"], "env": {"K":"V"}, "cwd": "/tmp"},
		"remote": {"url": "https://hub.example/sse", "headers": {"Authorization":"Bearer x"}},
		"http":   {"url": "https://hub.example/mcp", "transport": "http"},
		"ghost":  {}
	}}`)
	imported, err := Import(path, ClientVscode)
	require.NoError(t, err)
	require.Len(t, imported, 3, "server without command or url is skipped")

	// Import sorts by name.
	assert.Equal(t, "http", imported[0].Name)
	assert.Equal(t, "http", imported[0].TransportType)

	local := imported[1]
	assert.Equal(t, "stdio", local.TransportType)
	assert.Equal(t, "/usr/bin/npx", local.Command)
	assert.Equal(t, []string{"-y", "pkg"}, local.Args)
	assert.Equal(t, "V", local.Env["K"])
	assert.Equal(t, "/tmp", local.Cwd)
	assert.Equal(t, ClientVscode, local.ClientType)
	assert.Equal(t, path, local.ConfigSourcePath)
	assert.NotEmpty(t, local.ID)
	assert.NotEmpty(t, local.CreatedAt)
	assert.True(t, local.Enabled)
	assert.Contains(t, local.OriginalConfig, "/usr/bin/npx")

	remote := imported[2]
	assert.Equal(t, "sse", remote.TransportType)
	assert.Equal(t, "https://hub.example/sse", remote.URL)
	assert.Equal(t, "Bearer x", remote.Headers["Authorization"])
}

func TestExportRoundTrip(t *testing.T) {
	src := writeConfig(t, `{"mcpServers":{
		"local":  {"command": "/usr/bin/npx", "args": ["-y","pkg"]},
		"remote": {"url": "https://hub.example/sse"}
	}}`)
	imported, err := Import(src, ClientCustom)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "exported.json")
	text, err := Export(imported, out)
	require.NoError(t, err)
	assert.FileExists(t, out)

	cfg, err := ParseConfigFile(out)
	require.NoError(t, err)
	require.Len(t, cfg.Servers, 2)
	assert.Equal(t, "/usr/bin/npx", cfg.Servers["local"].Command)
	assert.Equal(t, "https://hub.example/sse", cfg.Servers["remote"].URL)
	assert.Contains(t, text, "mcpServers")
}

func TestExportRejectsIncomplete(t *testing.T) {
	_, err := Export([]ImportedServer{{ID: "x", Name: "broken", TransportType: "stdio"}}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing command")

	_, err = Export([]ImportedServer{{ID: "y", Name: "broken", TransportType: "sse"}}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing url")
}

func TestNormalizePath(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "cfg.json")
	require.NoError(t, os.WriteFile(existing, []byte("{}"), 0o600))

	got, err := NormalizePath(existing)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))

	_, err = NormalizePath(filepath.Join(dir, "missing", "settings.json"))
	assert.Error(t, err)
}

func TestValidatePathMustExist(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "cfg.json")
	require.NoError(t, os.WriteFile(existing, []byte("{}"), 0o600))

	_, err := ValidatePath(existing, true)
	assert.NoError(t, err)
	_, err = ValidatePath(filepath.Join(dir, "nope.json"), true)
	assert.Error(t, err)
	got, err := ValidatePath(filepath.Join(dir, "nope.json"), false)
	assert.NoError(t, err)
	assert.NotEmpty(t, got)
	_, err = ValidatePath("", false)
	assert.Error(t, err)
}
