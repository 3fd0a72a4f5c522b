package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AstroAir/mcp-hub-next/internal/clients"
	"github.com/AstroAir/mcp-hub-next/internal/install"
	"github.com/AstroAir/mcp-hub-next/internal/lifecycle"
	"github.com/AstroAir/mcp-hub-next/internal/registry"
	"github.com/AstroAir/mcp-hub-next/pkg/client"
)

// buildRoot creates the CLI command tree. Every command except serve talks
// to a running daemon over its HTTP API.
func buildRoot() *cobra.Command {
	global := &GlobalFlags{}

	root := &cobra.Command{
		Use:           "mcphub",
		Short:         "Manage MCP servers: supervise, install, discover",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&global.APIUrl, "api-url", defaultAPIUrl, "daemon API base URL")
	root.PersistentFlags().DurationVar(&global.APITimeout, "api-timeout", 15*time.Second, "API request timeout")

	root.AddCommand(buildServeCmd())
	root.AddCommand(buildServerCmds(global)...)
	root.AddCommand(buildInstallCmds(global)...)
	root.AddCommand(buildRegistryCmd(global))
	root.AddCommand(buildClientsCmd(global))
	return root
}

func apiClient(g *GlobalFlags) (*client.Client, error) {
	c := client.New(client.Config{BaseURL: g.APIUrl, Timeout: g.APITimeout})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if !c.IsReachable(ctx) {
		return nil, fmt.Errorf("daemon not reachable at %s - start it first with 'mcphub serve'", g.APIUrl)
	}
	return c, nil
}

func parseEnv(kvs []string) map[string]string {
	if len(kvs) == 0 {
		return nil
	}
	m := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func buildServerCmds(g *GlobalFlags) []*cobra.Command {
	sf := &ServerFlags{}

	start := &cobra.Command{
		Use:   "start <server-id>",
		Short: "Start a server process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(g)
			if err != nil {
				return err
			}
			rec, err := c.StartServer(cmd.Context(), args[0], lifecycle.Config{
				Command: sf.Command,
				Args:    sf.Args,
				Env:     parseEnv(sf.Env),
				Cwd:     sf.Cwd,
			})
			if err != nil {
				return err
			}
			return printJSON(rec)
		},
	}
	start.Flags().StringVar(&sf.Command, "command", "", "executable to run (required)")
	start.Flags().StringArrayVar(&sf.Args, "arg", nil, "argument, repeatable")
	start.Flags().StringArrayVar(&sf.Env, "env", nil, "KEY=VALUE environment entry, repeatable")
	start.Flags().StringVar(&sf.Cwd, "cwd", "", "working directory")
	_ = start.MarkFlagRequired("command")

	stop := &cobra.Command{
		Use:   "stop <server-id>",
		Short: "Stop a server process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(g)
			if err != nil {
				return err
			}
			if err := c.StopServer(cmd.Context(), args[0], sf.Force); err != nil {
				return err
			}
			fmt.Printf("Stopped server: %s\n", args[0])
			return nil
		},
	}
	stop.Flags().BoolVar(&sf.Force, "force", false, "kill instead of graceful terminate")

	restart := &cobra.Command{
		Use:   "restart <server-id>",
		Short: "Restart a server process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(g)
			if err != nil {
				return err
			}
			var cfg *lifecycle.Config
			if sf.Command != "" {
				cfg = &lifecycle.Config{
					Command: sf.Command,
					Args:    sf.Args,
					Env:     parseEnv(sf.Env),
					Cwd:     sf.Cwd,
				}
			}
			rec, err := c.RestartServer(cmd.Context(), args[0], cfg)
			if err != nil {
				return err
			}
			return printJSON(rec)
		},
	}
	restart.Flags().StringVar(&sf.Command, "command", "", "replacement command (optional)")
	restart.Flags().StringArrayVar(&sf.Args, "arg", nil, "argument, repeatable")
	restart.Flags().StringArrayVar(&sf.Env, "env", nil, "KEY=VALUE environment entry, repeatable")
	restart.Flags().StringVar(&sf.Cwd, "cwd", "", "working directory")

	status := &cobra.Command{
		Use:   "status [server-id]",
		Short: "Show status of one server or all servers",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(g)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				rec, err := c.ServerStatus(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(rec)
			}
			recs, err := c.ListServers(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(recs)
		},
	}

	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Probe a server command over stdio and list its tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sf.Command == "" {
				return fmt.Errorf("inspect requires --command")
			}
			c, err := apiClient(g)
			if err != nil {
				return err
			}
			rep, err := c.InspectServer(cmd.Context(), lifecycle.Config{
				Command: sf.Command,
				Args:    sf.Args,
				Env:     parseEnv(sf.Env),
				Cwd:     sf.Cwd,
			})
			if err != nil {
				return err
			}
			return printJSON(rep)
		},
	}
	inspectCmd.Flags().StringVar(&sf.Command, "command", "", "executable to probe (required)")
	inspectCmd.Flags().StringArrayVar(&sf.Args, "arg", nil, "argument, repeatable")
	inspectCmd.Flags().StringArrayVar(&sf.Env, "env", nil, "KEY=VALUE environment entry, repeatable")

	return []*cobra.Command{start, stop, restart, status, inspectCmd}
}

func installConfigFromFlags(f *InstallFlags) (install.Config, error) {
	switch install.SourceType(f.Source) {
	case install.SourceNpm:
		if f.Package == "" {
			return install.Config{}, fmt.Errorf("npm install requires --package")
		}
		return install.Config{
			Source:      install.SourceNpm,
			PackageName: f.Package,
			Version:     f.Version,
			Registry:    f.Registry,
			Global:      f.Global,
		}, nil
	case install.SourceGithub:
		if f.Repository == "" {
			return install.Config{}, fmt.Errorf("github install requires --repo")
		}
		return install.Config{
			Source:     install.SourceGithub,
			Repository: f.Repository,
			Branch:     f.Branch,
			Tag:        f.Tag,
		}, nil
	case install.SourceLocal:
		if f.Path == "" {
			return install.Config{}, fmt.Errorf("local install requires --path")
		}
		return install.Config{Source: install.SourceLocal, Path: f.Path}, nil
	default:
		return install.Config{}, fmt.Errorf("unknown source %q (npm, github, local)", f.Source)
	}
}

func buildInstallCmds(g *GlobalFlags) []*cobra.Command {
	inf := &InstallFlags{}
	unf := &UninstallFlags{}

	installCmd := &cobra.Command{
		Use:   "install",
		Short: "Install a server from npm, GitHub or a local directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := installConfigFromFlags(inf)
			if err != nil {
				return err
			}
			c, err := apiClient(g)
			if err != nil {
				return err
			}
			resp, err := c.Install(cmd.Context(), cfg, inf.ServerName)
			if err != nil {
				return err
			}
			if !inf.Wait {
				return printJSON(resp)
			}
			return waitInstall(cmd.Context(), c, resp.InstallID)
		},
	}
	installCmd.Flags().StringVar(&inf.Source, "source", "npm", "install source: npm, github or local")
	installCmd.Flags().StringVar(&inf.Package, "package", "", "npm package name")
	installCmd.Flags().StringVar(&inf.Version, "version", "", "npm version pin")
	installCmd.Flags().StringVar(&inf.Registry, "registry", "", "custom npm registry URL")
	installCmd.Flags().BoolVar(&inf.Global, "global", false, "install globally instead of staging under the data dir")
	installCmd.Flags().StringVar(&inf.Repository, "repo", "", "GitHub repository as owner/repo")
	installCmd.Flags().StringVar(&inf.Branch, "branch", "", "branch to clone")
	installCmd.Flags().StringVar(&inf.Tag, "tag", "", "tag to clone")
	installCmd.Flags().StringVar(&inf.Path, "path", "", "local server directory")
	installCmd.Flags().StringVar(&inf.ServerName, "name", "", "server name to associate with the install")
	installCmd.Flags().BoolVar(&inf.Wait, "wait", false, "poll progress until the install finishes")

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate an install request without installing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := installConfigFromFlags(inf)
			if err != nil {
				return err
			}
			c, err := apiClient(g)
			if err != nil {
				return err
			}
			v, err := c.Validate(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return printJSON(v)
		},
	}
	validate.Flags().AddFlagSet(installCmd.Flags())

	progress := &cobra.Command{
		Use:   "progress <install-id>",
		Short: "Show progress of an install",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(g)
			if err != nil {
				return err
			}
			p, err := c.Progress(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(p)
		},
	}

	cancel := &cobra.Command{
		Use:   "cancel <install-id>",
		Short: "Cancel a running install",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(g)
			if err != nil {
				return err
			}
			if err := c.Cancel(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Cancelled install: %s\n", args[0])
			return nil
		},
	}

	installed := &cobra.Command{
		Use:   "installed",
		Short: "List installed servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(g)
			if err != nil {
				return err
			}
			list, err := c.Installed(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(list)
		},
	}

	uninstall := &cobra.Command{
		Use:   "uninstall <install-id>",
		Short: "Remove an installed server and its assets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(g)
			if err != nil {
				return err
			}
			if err := c.Uninstall(cmd.Context(), args[0], unf.ServerID, !unf.KeepRunning); err != nil {
				return err
			}
			fmt.Printf("Uninstalled: %s\n", args[0])
			return nil
		},
	}
	uninstall.Flags().StringVar(&unf.ServerID, "server-id", "", "supervised server to stop before removal")
	uninstall.Flags().BoolVar(&unf.KeepRunning, "keep-running", false, "do not stop the server process first")

	return []*cobra.Command{installCmd, validate, progress, cancel, installed, uninstall}
}

// waitInstall polls the daemon until the install reaches a terminal status.
func waitInstall(ctx context.Context, c *client.Client, installID string) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	var last string
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		p, err := c.Progress(ctx, installID)
		if err != nil {
			return err
		}
		if p.Message != last {
			fmt.Printf("[%3d%%] %s\n", p.Progress, p.Message)
			last = p.Message
		}
		if p.Status.Terminal() {
			if p.Status == install.StatusFailed {
				msg := p.Message
				if p.Error != nil {
					msg = *p.Error
				}
				return fmt.Errorf("install failed: %s", msg)
			}
			fmt.Printf("Install %s: %s\n", installID, p.Status)
			return nil
		}
	}
}

func buildRegistryCmd(g *GlobalFlags) *cobra.Command {
	sf := &SearchFlags{}

	reg := &cobra.Command{
		Use:   "registry",
		Short: "Browse the catalog of discoverable servers",
	}

	search := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the server catalog",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(g)
			if err != nil {
				return err
			}
			f := registry.SearchFilters{
				Source: sf.Source,
				SortBy: sf.SortBy,
				Limit:  sf.Limit,
				Offset: sf.Offset,
			}
			if len(args) == 1 {
				f.Query = args[0]
			}
			if cmd.Flags().Changed("verified") {
				f.Verified = &sf.Verified
			}
			res, err := c.Search(cmd.Context(), f)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	search.Flags().StringVar(&sf.Source, "source", "", "filter by source: npm, github or local")
	search.Flags().BoolVar(&sf.Verified, "verified", false, "filter by verified flag")
	search.Flags().StringVar(&sf.SortBy, "sort", "", "sort key: downloads, stars, updated or name")
	search.Flags().IntVar(&sf.Limit, "limit", 20, "page size")
	search.Flags().IntVar(&sf.Offset, "offset", 0, "page offset")

	categories := &cobra.Command{
		Use:   "categories",
		Short: "List all catalog tags",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(g)
			if err != nil {
				return err
			}
			cats, err := c.Categories(cmd.Context())
			if err != nil {
				return err
			}
			for _, cat := range cats {
				fmt.Println(cat)
			}
			return nil
		},
	}

	popular := &cobra.Command{
		Use:   "popular",
		Short: "Show the most downloaded servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(g)
			if err != nil {
				return err
			}
			entries, err := c.Popular(cmd.Context(), sf.Limit, sf.Source)
			if err != nil {
				return err
			}
			return printJSON(entries)
		},
	}
	popular.Flags().IntVar(&sf.Limit, "limit", 10, "number of entries")
	popular.Flags().StringVar(&sf.Source, "source", "", "filter by source")

	refresh := &cobra.Command{
		Use:   "refresh",
		Short: "Rebuild the server catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(g)
			if err != nil {
				return err
			}
			if err := c.RefreshRegistry(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Registry refreshed.")
			return nil
		},
	}

	reg.AddCommand(search, categories, popular, refresh)
	return reg
}

func buildClientsCmd(g *GlobalFlags) *cobra.Command {
	cc := &cobra.Command{
		Use:   "clients",
		Short: "Work with desktop client configurations",
	}

	discover := &cobra.Command{
		Use:   "discover",
		Short: "Find MCP settings files of installed desktop clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Discovery inspects the local filesystem, no daemon needed.
			return printJSON(clients.Discover())
		},
	}

	var importPath, importType string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import server definitions from a client settings file",
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, ok := clients.ParseClientType(importType)
			if !ok {
				return fmt.Errorf("unknown client type %q", importType)
			}
			servers, err := clients.Import(importPath, ct)
			if err != nil {
				return err
			}
			return printJSON(servers)
		},
	}
	importCmd.Flags().StringVar(&importPath, "path", "", "settings file to import (required)")
	importCmd.Flags().StringVar(&importType, "client", string(clients.ClientClaudeDesktop), "client type")
	_ = importCmd.MarkFlagRequired("path")

	var validatePath, validateType string
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a client settings file",
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, _ := clients.ParseClientType(validateType)
			v := clients.Validate(validatePath, ct)
			if err := printJSON(v); err != nil {
				return err
			}
			if !v.Valid {
				os.Exit(1)
			}
			return nil
		},
	}
	validateCmd.Flags().StringVar(&validatePath, "path", "", "settings file to validate (required)")
	validateCmd.Flags().StringVar(&validateType, "client", "", "client type")
	_ = validateCmd.MarkFlagRequired("path")

	cc.AddCommand(discover, importCmd, validateCmd)
	return cc
}
