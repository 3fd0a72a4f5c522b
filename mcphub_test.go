package mcphub

import (
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func requireUnix(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

func newHub(t *testing.T) *Hub {
	t.Helper()
	h, err := New(Options{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("new hub: %v", err)
	}
	t.Cleanup(h.Shutdown)
	return h
}

func TestHubFacadeStartStatusStop(t *testing.T) {
	requireUnix(t)
	h := newHub(t)

	rec, err := h.Start("f1", ServerConfig{Command: "sleep", Args: []string{"30"}})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if rec.PID == nil || *rec.PID == 0 {
		t.Fatalf("expected live pid, got %+v", rec)
	}
	st, err := h.Status("f1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.State != "running" {
		t.Fatalf("unexpected state: %+v", st)
	}
	if got := h.List(); len(got) != 1 {
		t.Fatalf("expected 1 server, got %d", len(got))
	}
	if err := h.Stop("f1", true); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestHubFacadeInstallFlow(t *testing.T) {
	h := newHub(t)
	dir := t.TempDir()

	v := h.Validate(InstallConfig{Source: SourceLocal, Path: dir})
	if !v.Valid {
		t.Fatalf("expected valid local config: %+v", v)
	}

	id, p := h.Install(InstallConfig{Source: SourceLocal, Path: dir}, "facade-local")
	if id == "" || p.InstallID != id {
		t.Fatalf("bad install handle: id=%q progress=%+v", id, p)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		p, err := h.Progress(id)
		if err != nil {
			t.Fatalf("progress: %v", err)
		}
		if p.Status.Terminal() {
			if p.Status != "completed" {
				t.Fatalf("install did not complete: %+v", p)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("install did not finish in time: %+v", p)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if got := h.Installed(); len(got) != 1 || got[0].ServerID != "facade-local" {
		t.Fatalf("unexpected installed set: %+v", got)
	}
}

func TestHandlerEmbeddable(t *testing.T) {
	h := newHub(t)
	srv := httptest.NewServer(Handler("/api", h))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("unexpected content type %q", ct)
	}
}

func TestRegisterMetricsCustomRegistry(t *testing.T) {
	r := prometheus.NewRegistry()
	if err := RegisterMetrics(r); err != nil {
		t.Fatalf("register: %v", err)
	}
}
