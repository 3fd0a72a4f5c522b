// Package server exposes the hub over HTTP. The router is embeddable: it
// returns an http.Handler that can be mounted in any mux, and NewServer
// wraps it in a standalone http.Server.
package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AstroAir/mcp-hub-next/internal/clients"
	"github.com/AstroAir/mcp-hub-next/internal/inspect"
	"github.com/AstroAir/mcp-hub-next/internal/install"
	"github.com/AstroAir/mcp-hub-next/internal/lifecycle"
	"github.com/AstroAir/mcp-hub-next/internal/metrics"
	"github.com/AstroAir/mcp-hub-next/internal/registry"
)

// Router provides HTTP handlers over the supervisor, installer and registry.
//
// Endpoints (under basePath):
//
//	GET    /servers                     list process snapshots
//	POST   /servers/:id/start           body: lifecycle config JSON
//	POST   /servers/:id/stop            query: force=1
//	POST   /servers/:id/restart         body: optional lifecycle config JSON
//	GET    /servers/:id/status
//	POST   /servers/inspect             body: lifecycle config JSON
//	POST   /installs                    body: {config, server_name}
//	POST   /installs/validate           body: install config JSON
//	GET    /installs                    installed metadata, newest first
//	GET    /installs/:id                progress snapshot
//	POST   /installs/:id/cancel
//	DELETE /installs/:id                progress cleanup
//	GET    /installs/:id/metadata
//	POST   /installs/:id/uninstall      body: {server_id, stop_process}
//	GET    /registry/search             query: q, source, verified, sort, limit, offset
//	GET    /registry/categories
//	GET    /registry/popular            query: limit, source
//	POST   /registry/refresh
//	GET    /clients/configs             discover client settings files
//	POST   /clients/configs/validate    body: {path, client_type}
//	POST   /clients/configs/import      body: {path, client_type}
//	POST   /clients/configs/export      body: {servers, output_path}
//	GET    /metrics
//	GET    /healthz
type Router struct {
	sup      *lifecycle.Supervisor
	inst     *install.Installer
	reg      *registry.Cache
	basePath string
}

// NewRouter constructs a Router with a configurable basePath.
func NewRouter(sup *lifecycle.Supervisor, inst *install.Installer, reg *registry.Cache, basePath string) *Router {
	return &Router{sup: sup, inst: inst, reg: reg, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)

	group.GET("/servers", r.handleList)
	group.POST("/servers/inspect", r.handleInspect)
	group.POST("/servers/:id/start", r.handleStart)
	group.POST("/servers/:id/stop", r.handleStop)
	group.POST("/servers/:id/restart", r.handleRestart)
	group.GET("/servers/:id/status", r.handleStatus)

	group.POST("/installs", r.handleInstall)
	group.POST("/installs/validate", r.handleValidate)
	group.GET("/installs", r.handleInstallList)
	group.GET("/installs/:id", r.handleProgress)
	group.POST("/installs/:id/cancel", r.handleCancel)
	group.DELETE("/installs/:id", r.handleCleanup)
	group.GET("/installs/:id/metadata", r.handleMetadata)
	group.POST("/installs/:id/uninstall", r.handleUninstall)

	group.GET("/registry/search", r.handleSearch)
	group.GET("/registry/categories", r.handleCategories)
	group.GET("/registry/popular", r.handlePopular)
	group.POST("/registry/refresh", r.handleRefresh)

	group.GET("/clients/configs", r.handleDiscover)
	group.POST("/clients/configs/validate", r.handleClientValidate)
	group.POST("/clients/configs/import", r.handleClientImport)
	group.POST("/clients/configs/export", r.handleClientExport)

	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	group.GET("/healthz", func(c *gin.Context) { writeJSON(c, http.StatusOK, okResp{OK: true}) })
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, sup *lifecycle.Supervisor, inst *install.Installer, reg *registry.Cache) *http.Server {
	r := NewRouter(sup, inst, reg, basePath)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

// --- lifecycle handlers ---

func (r *Router) handleStart(c *gin.Context) {
	id := c.Param("id")
	if !isSafeID(id) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid server id: allowed [A-Za-z0-9._-] and no '..' or path separators"})
		return
	}
	var cfg lifecycle.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if cfg.Command == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "command required"})
		return
	}
	rec, err := r.sup.Start(id, cfg)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, rec)
}

func (r *Router) handleStop(c *gin.Context) {
	id := c.Param("id")
	force := c.Query("force") == "1" || c.Query("force") == "true"
	if err := r.sup.Stop(id, force); err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleRestart(c *gin.Context) {
	id := c.Param("id")
	if !isSafeID(id) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid server id"})
		return
	}
	var cfg *lifecycle.Config
	if c.Request.ContentLength > 0 {
		var body lifecycle.Config
		if err := c.ShouldBindJSON(&body); err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
			return
		}
		cfg = &body
	}
	rec, err := r.sup.Restart(id, cfg)
	if err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, rec)
}

func (r *Router) handleStatus(c *gin.Context) {
	rec, err := r.sup.Status(c.Param("id"))
	if err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, rec)
}

func (r *Router) handleList(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.sup.List())
}

func (r *Router) handleInspect(c *gin.Context) {
	var cfg lifecycle.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if cfg.Command == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "command required"})
		return
	}
	report, err := inspect.Probe(c.Request.Context(), cfg)
	if err != nil {
		writeJSON(c, http.StatusBadGateway, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, report)
}

// --- install handlers ---

type installReq struct {
	Config     install.Config `json:"config"`
	ServerName string         `json:"server_name"`
}

type installResp struct {
	InstallID string           `json:"install_id"`
	Progress  install.Progress `json:"progress"`
}

func (r *Router) handleInstall(c *gin.Context) {
	var req installReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	id, p := r.inst.Install(req.Config, req.ServerName)
	writeJSON(c, http.StatusAccepted, installResp{InstallID: id, Progress: p})
}

func (r *Router) handleValidate(c *gin.Context) {
	var cfg install.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, r.inst.Validate(cfg))
}

func (r *Router) handleInstallList(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.inst.ListMetadata())
}

func (r *Router) handleProgress(c *gin.Context) {
	p, err := r.inst.Progress(c.Param("id"))
	if err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, p)
}

func (r *Router) handleCancel(c *gin.Context) {
	r.inst.Cancel(c.Param("id"))
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleCleanup(c *gin.Context) {
	r.inst.Cleanup(c.Param("id"))
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleMetadata(c *gin.Context) {
	md, err := r.inst.Metadata(c.Param("id"))
	if err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, md)
}

type uninstallReq struct {
	ServerID    string `json:"server_id"`
	StopProcess *bool  `json:"stop_process"`
}

func (r *Router) handleUninstall(c *gin.Context) {
	var req uninstallReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
			return
		}
	}
	stop := true
	if req.StopProcess != nil {
		stop = *req.StopProcess
	}
	if err := r.inst.Uninstall(c.Param("id"), req.ServerID, stop); err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

// --- registry handlers ---

func (r *Router) handleSearch(c *gin.Context) {
	f := registry.SearchFilters{
		Query:  c.Query("q"),
		Source: c.Query("source"),
		SortBy: c.Query("sort"),
	}
	if v := c.Query("verified"); v != "" {
		b := v == "1" || v == "true"
		f.Verified = &b
	}
	if n, err := strconv.Atoi(c.Query("limit")); err == nil {
		f.Limit = n
	}
	if n, err := strconv.Atoi(c.Query("offset")); err == nil {
		f.Offset = n
	}
	writeJSON(c, http.StatusOK, r.reg.Search(c.Request.Context(), f))
}

func (r *Router) handleCategories(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.reg.Categories(c.Request.Context()))
}

func (r *Router) handlePopular(c *gin.Context) {
	limit := registry.DefaultSearchLimit
	if n, err := strconv.Atoi(c.Query("limit")); err == nil && n > 0 {
		limit = n
	}
	writeJSON(c, http.StatusOK, r.reg.Popular(c.Request.Context(), limit, c.Query("source")))
}

func (r *Router) handleRefresh(c *gin.Context) {
	r.reg.Refresh(c.Request.Context())
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

// --- client config handlers ---

type clientConfigReq struct {
	Path       string `json:"path"`
	ClientType string `json:"client_type"`
}

func (r *Router) handleDiscover(c *gin.Context) {
	writeJSON(c, http.StatusOK, clients.Discover())
}

func (r *Router) handleClientValidate(c *gin.Context) {
	var req clientConfigReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	ct, _ := clients.ParseClientType(req.ClientType)
	writeJSON(c, http.StatusOK, clients.Validate(req.Path, ct))
}

func (r *Router) handleClientImport(c *gin.Context) {
	var req clientConfigReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	ct, ok := clients.ParseClientType(req.ClientType)
	if !ok {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "unknown client type: " + req.ClientType})
		return
	}
	servers, err := clients.Import(req.Path, ct)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, servers)
}

type clientExportReq struct {
	Servers    []clients.ImportedServer `json:"servers"`
	OutputPath string                   `json:"output_path"`
}

func (r *Router) handleClientExport(c *gin.Context) {
	var req clientExportReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	out, err := clients.Export(req.Servers, req.OutputPath)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	c.Header("Content-Type", "application/json")
	c.String(http.StatusOK, out)
}

func statusFor(err error) int {
	if errors.Is(err, lifecycle.ErrNotFound) || errors.Is(err, install.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}
