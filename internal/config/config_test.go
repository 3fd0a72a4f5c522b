package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTOML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mcp-hub.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeTOML(t, `
data_dir = "/var/lib/mcp-hub"
listen = "0.0.0.0:9000"
history_dsn = "sqlite:///var/lib/mcp-hub/history.db"

[log]
level = "debug"
color = true
dir = "/var/log/mcp-hub"
max_size_mb = 16
max_backups = 3

[registry]
npm_bin = "/opt/node/bin/npm"
gh_bin = "/usr/local/bin/gh"
tool_timeout = "45s"

[install]
npm_bin = "/opt/node/bin/npm"
git_bin = "/usr/bin/git"

[[servers]]
id = "files"
command = "/usr/bin/npx"
args = ["-y", "@modelcontextprotocol/server-filesystem", "/srv"]
autostart = true

[[servers]]
id = "memory"
command = "/usr/bin/npx"
args = ["-y", "@modelcontextprotocol/server-memory"]
env = { LOG_LEVEL = "debug" }
`)
	fc, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/mcp-hub", fc.DataDir)
	assert.Equal(t, "0.0.0.0:9000", fc.Listen)
	assert.Equal(t, "sqlite:///var/lib/mcp-hub/history.db", fc.HistoryDSN)

	require.NotNil(t, fc.Log)
	assert.Equal(t, "debug", fc.Log.Level)
	assert.Equal(t, "/var/log/mcp-hub", fc.Log.Dir)
	assert.Equal(t, 16, fc.Log.MaxSizeMB)

	require.NotNil(t, fc.Registry)
	assert.Equal(t, "/usr/local/bin/gh", fc.Registry.GhBin)
	assert.Equal(t, 45*time.Second, fc.Registry.ToolTimeout)

	require.Len(t, fc.Servers, 2)
	assert.Equal(t, "files", fc.Servers[0].ID)
	assert.True(t, fc.Servers[0].Autostart)
	assert.False(t, fc.Servers[1].Autostart)
	assert.Equal(t, "debug", fc.Servers[1].Env["LOG_LEVEL"])
}

func TestLoadAppliesDefaults(t *testing.T) {
	fc, err := Load(writeTOML(t, `listen = "127.0.0.1:8888"`))
	require.NoError(t, err)

	assert.NotEmpty(t, fc.DataDir)
	assert.Equal(t, "127.0.0.1:8888", fc.Listen)
	require.NotNil(t, fc.Log)
	assert.Equal(t, "info", fc.Log.Level)
	assert.Equal(t, filepath.Join(fc.DataDir, "logs"), fc.Log.Dir)
	assert.NotNil(t, fc.Registry)
	assert.NotNil(t, fc.Install)
}

func TestDefault(t *testing.T) {
	fc, err := Default()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8390", fc.Listen)
	assert.Contains(t, fc.DataDir, "mcp-hub")
}

func TestLoadRejectsServerWithoutID(t *testing.T) {
	_, err := Load(writeTOML(t, `
[[servers]]
command = "/usr/bin/npx"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing id")
}

func TestLoadRejectsServerWithoutCommand(t *testing.T) {
	_, err := Load(writeTOML(t, `
[[servers]]
id = "files"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing command")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestCaptureMapping(t *testing.T) {
	fc := &FileConfig{Log: &LogConfig{Dir: "/logs", MaxSizeMB: 8, MaxBackups: 2, MaxAgeDays: 7, Compress: true}}
	cc := fc.Capture()
	assert.Equal(t, "/logs", cc.Dir)
	assert.Equal(t, 8, cc.MaxSizeMB)
	assert.Equal(t, 2, cc.MaxBackups)
	assert.Equal(t, 7, cc.MaxAgeDays)
	assert.True(t, cc.Compress)
}

func TestServerLifecycleMapping(t *testing.T) {
	sc := ServerConfig{
		ID:      "files",
		Command: "/usr/bin/npx",
		Args:    []string{"-y", "pkg"},
		Env:     map[string]string{"K": "V"},
		Cwd:     "/srv",
	}
	lc := sc.Lifecycle()
	assert.Equal(t, "/usr/bin/npx", lc.Command)
	assert.Equal(t, []string{"-y", "pkg"}, lc.Args)
	assert.Equal(t, "V", lc.Env["K"])
	assert.Equal(t, "/srv", lc.Cwd)
}
