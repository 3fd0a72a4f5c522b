//go:build !windows

package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AstroAir/mcp-hub-next/internal/install"
	"github.com/AstroAir/mcp-hub-next/internal/lifecycle"
	"github.com/AstroAir/mcp-hub-next/internal/registry"
	"github.com/AstroAir/mcp-hub-next/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	st, err := storage.New(t.TempDir())
	require.NoError(t, err)

	sup := lifecycle.NewSupervisor()
	t.Cleanup(sup.Shutdown)
	inst := install.New(st)
	reg := registry.NewCache()
	reg.Seed([]registry.Entry{
		{ID: "alpha", Name: "Alpha", Description: "first", Source: install.SourceNpm, Tags: []string{"mcp"}},
		{ID: "bravo", Name: "Bravo", Description: "second", Source: install.SourceGithub, Tags: []string{"github"}},
	})
	return NewRouter(sup, inst, reg, "/api").Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealthz(t *testing.T) {
	h := newTestHandler(t)
	w := doJSON(t, h, http.MethodGet, "/api/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[okResp](t, w).OK)
}

func TestStartStatusStopRoundTrip(t *testing.T) {
	h := newTestHandler(t)

	w := doJSON(t, h, http.MethodPost, "/api/servers/echo/start",
		lifecycle.Config{Command: "sleep", Args: []string{"30"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rec := decode[lifecycle.ServerProcess](t, w)
	assert.Equal(t, "echo", rec.ServerID)
	require.NotNil(t, rec.PID)

	w = doJSON(t, h, http.MethodGet, "/api/servers/echo/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	rec = decode[lifecycle.ServerProcess](t, w)
	assert.Equal(t, lifecycle.StateRunning, rec.State)

	w = doJSON(t, h, http.MethodGet, "/api/servers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]lifecycle.ServerProcess](t, w)
	require.Len(t, list, 1)

	w = doJSON(t, h, http.MethodPost, "/api/servers/echo/stop?force=1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, h, http.MethodGet, "/api/servers/echo/status", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartRejectsUnsafeID(t *testing.T) {
	h := newTestHandler(t)
	w := doJSON(t, h, http.MethodPost, "/api/servers/..evil/start",
		lifecycle.Config{Command: "sleep"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[errorResp](t, w).Error, "invalid server id")
}

func TestStartRejectsMissingCommand(t *testing.T) {
	h := newTestHandler(t)
	w := doJSON(t, h, http.MethodPost, "/api/servers/echo/start", lifecycle.Config{})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "command required", decode[errorResp](t, w).Error)
}

func TestStatusUnknownServerIs404(t *testing.T) {
	h := newTestHandler(t)
	w := doJSON(t, h, http.MethodGet, "/api/servers/ghost/status", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, decode[errorResp](t, w).Error)
}

func TestInstallLocalFlow(t *testing.T) {
	h := newTestHandler(t)
	dir := t.TempDir()

	w := doJSON(t, h, http.MethodPost, "/api/installs", map[string]any{
		"config":      install.Config{Source: install.SourceLocal, Path: dir},
		"server_name": "my-local",
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	accepted := decode[installResp](t, w)
	require.NotEmpty(t, accepted.InstallID)

	deadline := time.Now().Add(5 * time.Second)
	var p install.Progress
	for {
		w = doJSON(t, h, http.MethodGet, "/api/installs/"+accepted.InstallID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		p = decode[install.Progress](t, w)
		if p.Status.Terminal() || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.Equal(t, install.StatusCompleted, p.Status, p.Error)

	w = doJSON(t, h, http.MethodGet, "/api/installs/"+accepted.InstallID+"/metadata", nil)
	require.Equal(t, http.StatusOK, w.Code)
	md := decode[install.Metadata](t, w)
	assert.Equal(t, install.SourceLocal, md.SourceType)

	w = doJSON(t, h, http.MethodGet, "/api/installs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]install.Metadata](t, w), 1)

	w = doJSON(t, h, http.MethodDelete, "/api/installs/"+accepted.InstallID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, http.MethodGet, "/api/installs/"+accepted.InstallID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInstallValidateEndpoint(t *testing.T) {
	h := newTestHandler(t)
	w := doJSON(t, h, http.MethodPost, "/api/installs/validate",
		install.Config{Source: install.SourceNpm, PackageName: "Not Valid"})
	require.Equal(t, http.StatusOK, w.Code)
	v := decode[install.Validation](t, w)
	assert.False(t, v.Valid)
}

func TestProgressUnknownInstallIs404(t *testing.T) {
	h := newTestHandler(t)
	w := doJSON(t, h, http.MethodGet, "/api/installs/nope", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, decode[errorResp](t, w).Error, "not found")
}

func TestRegistrySearchEndpoint(t *testing.T) {
	h := newTestHandler(t)

	w := doJSON(t, h, http.MethodGet, "/api/registry/search?q=first", nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[registry.SearchResult](t, w)
	require.Equal(t, 1, res.Total)
	assert.Equal(t, "alpha", res.Entries[0].ID)

	w = doJSON(t, h, http.MethodGet, "/api/registry/search?source=github", nil)
	res = decode[registry.SearchResult](t, w)
	require.Equal(t, 1, res.Total)
	assert.Equal(t, "bravo", res.Entries[0].ID)

	w = doJSON(t, h, http.MethodGet, "/api/registry/search?limit=1&offset=0", nil)
	res = decode[registry.SearchResult](t, w)
	assert.Equal(t, 2, res.Total)
	assert.Len(t, res.Entries, 1)
	assert.True(t, res.HasMore)
}

func TestRegistryCategoriesEndpoint(t *testing.T) {
	h := newTestHandler(t)
	w := doJSON(t, h, http.MethodGet, "/api/registry/categories", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"github", "mcp"}, decode[[]string](t, w))
}

func TestClientConfigValidateEndpoint(t *testing.T) {
	h := newTestHandler(t)
	w := doJSON(t, h, http.MethodPost, "/api/clients/configs/validate",
		map[string]string{"path": "/definitely/not/there.json", "client_type": "vscode"})
	require.Equal(t, http.StatusOK, w.Code)
	var v struct {
		Valid  bool     `json:"valid"`
		Errors []string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.False(t, v.Valid)
	require.NotEmpty(t, v.Errors)
}

func TestClientImportUnknownTypeIs400(t *testing.T) {
	h := newTestHandler(t)
	w := doJSON(t, h, http.MethodPost, "/api/clients/configs/import",
		map[string]string{"path": "/tmp/x.json", "client_type": "emacs"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[errorResp](t, w).Error, "unknown client type")
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestHandler(t)
	w := doJSON(t, h, http.MethodGet, "/api/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
