package main

import "time"

// defaultAPIUrl is where a locally running daemon listens.
const defaultAPIUrl = "http://127.0.0.1:8390/api"

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	ConfigPath  string
	Listen      string
	DataDir     string
	MetricsAddr string
}

// ServerFlags holds flags for lifecycle commands.
type ServerFlags struct {
	Command string
	Args    []string
	Env     []string
	Cwd     string
	Force   bool
}

// InstallFlags holds flags for the install command.
type InstallFlags struct {
	Source     string
	Package    string
	Version    string
	Registry   string
	Global     bool
	Repository string
	Branch     string
	Tag        string
	Path       string
	ServerName string
	Wait       bool
}

// UninstallFlags holds flags for the uninstall command.
type UninstallFlags struct {
	ServerID    string
	KeepRunning bool
}

// SearchFlags holds flags for registry commands.
type SearchFlags struct {
	Source   string
	Verified bool
	SortBy   string
	Limit    int
	Offset   int
}
