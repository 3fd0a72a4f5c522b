package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	mcphub "github.com/AstroAir/mcp-hub-next"
	cfg "github.com/AstroAir/mcp-hub-next/internal/config"
)

func buildServeCmd() *cobra.Command {
	f := &ServeFlags{}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the hub daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(f)
		},
	}
	serve.Flags().StringVarP(&f.ConfigPath, "config", "c", "", "TOML config file")
	serve.Flags().StringVar(&f.Listen, "listen", "", "HTTP listen address (overrides config)")
	serve.Flags().StringVar(&f.DataDir, "data-dir", "", "data directory (overrides config)")
	serve.Flags().StringVar(&f.MetricsAddr, "metrics-listen", "", "separate metrics listen address (optional)")
	return serve
}

func runServe(f *ServeFlags) error {
	var fc *cfg.FileConfig
	var err error
	if f.ConfigPath != "" {
		fc, err = cfg.Load(f.ConfigPath)
	} else {
		fc, err = cfg.Default()
	}
	if err != nil {
		return err
	}
	if f.Listen != "" {
		fc.Listen = f.Listen
	}
	if f.DataDir != "" {
		fc.DataDir = f.DataDir
	}

	mcphub.SetupLogging(fc.Log.Level, fc.Log.Color)
	if err := mcphub.RegisterMetricsDefault(); err != nil {
		return err
	}

	capture := fc.Capture()
	hub, err := mcphub.New(mcphub.Options{
		DataDir:    fc.DataDir,
		Capture:    &capture,
		HistoryDSN: fc.HistoryDSN,
		NpmBin:     fc.Install.NpmBin,
		GitBin:     fc.Install.GitBin,
		GhBin:      fc.Registry.GhBin,

		RegistryNpmBin:      fc.Registry.NpmBin,
		RegistryToolTimeout: fc.Registry.ToolTimeout,
	})
	if err != nil {
		return err
	}
	defer hub.Shutdown()

	for _, sc := range fc.Servers {
		if !sc.Autostart {
			continue
		}
		if _, err := hub.Start(sc.ID, sc.Lifecycle()); err != nil {
			slog.Error("autostart failed", "server_id", sc.ID, "error", err)
		}
	}

	srv := mcphub.NewHTTPServer(fc.Listen, "/api", hub)
	slog.Info("daemon listening", "addr", fc.Listen, "data_dir", fc.DataDir)

	if f.MetricsAddr != "" {
		go func() {
			if err := mcphub.ServeMetrics(f.MetricsAddr); err != nil {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		_ = srv.Close()
	}
	return nil
}
