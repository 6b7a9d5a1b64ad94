package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/phsayre/pdf-uploader/internal/config"
	"github.com/phsayre/pdf-uploader/internal/daemon"
	"github.com/phsayre/pdf-uploader/internal/dashboard"
	"github.com/phsayre/pdf-uploader/internal/pipeline"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "passes",
	Short:   "Run upload passes repeatedly",
	Long: `Run one pass immediately and then one pass per interval.

With --looper, the daemon keeps going only while the looper file contains
"true"; write anything else to it to stop after the current pass.

With --watch, files arriving in the watch directory start the next pass
early. With --port, pass progress is broadcast on a WebSocket dashboard.

Ctrl+C stops the daemon after the pass in progress finishes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			fatalf("%v", err)
		}
		if err := serve(cfg); err != nil {
			fatalf("%v", err)
		}
	},
}

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "passes",
	Short:   "Run the daemon with the real-time WebSocket dashboard",
	Long: `Run the daemon and broadcast pass progress to WebSocket clients.

WebSocket messages include:
- run_started: a pass found files to process
- file_outcome: a file was uploaded, quarantined, skipped or left inconsistent
- run_complete: pass summary

Example usage:
  pdfuploader dashboard -c config.yaml              # Start on default port 8080
  pdfuploader dashboard -c config.yaml --port 9000  # Start on custom port

Connect with a WebSocket client:
  ws://localhost:8080/ws`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			fatalf("%v", err)
		}
		if cfg.Dashboard.Port == 0 {
			cfg.Dashboard.Port = 8080
		}
		if err := serve(cfg); err != nil {
			fatalf("%v", err)
		}
	},
}

// serve runs the daemon until it stops on its own or is interrupted.
func serve(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var observer pipeline.Observer
	if cfg.Dashboard.Port > 0 {
		server := dashboard.NewServer(&dashboard.Config{
			Port:   cfg.Dashboard.Port,
			Logger: a.logger.Named("dashboard"),
		})
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}
		defer func() {
			if err := server.Stop(); err != nil {
				a.logger.Warn("dashboard shutdown failed", zap.Error(err))
			}
		}()
		observer = dashboard.NewHandler(server, a.logger.Named("dashboard"))

		fmt.Printf("Dashboard started on http://localhost:%d\n", cfg.Dashboard.Port)
		fmt.Printf("WebSocket endpoint: ws://localhost:%d/ws\n", cfg.Dashboard.Port)
	}

	runner, err := a.runner(observer)
	if err != nil {
		return err
	}

	dcfg := &daemon.Config{
		Interval:   cfg.Daemon.Interval,
		LooperPath: cfg.Daemon.LooperPath,
		Logger:     a.logger.Named("daemon"),
	}
	if cfg.Daemon.Watch {
		dcfg.WatchDir = cfg.WatchDir
	}
	d, err := daemon.NewWithConfig(runner, dcfg)
	if err != nil {
		return err
	}

	if err := d.Start(ctx); err != nil {
		return err
	}

	stats := d.GetStats()
	a.logger.Info("daemon finished",
		zap.Int("passes", stats.Passes),
		zap.Int("uploaded", stats.Uploaded),
		zap.Int("failed", stats.Failed),
		zap.Int("duplicates", stats.Duplicate),
		zap.Int("errors", stats.Errors))
	return nil
}

func init() {
	for _, cmd := range []*cobra.Command{daemonCmd, dashboardCmd} {
		addDirFlags(cmd)
		cmd.Flags().Duration("interval", 0, "Delay between passes (default 1s)")
		cmd.Flags().String("looper", "", "Keep looping while this file contains \"true\"")
		cmd.Flags().Bool("watch", false, "Start a pass early when files arrive")
		cmd.Flags().IntP("port", "p", 0, "Dashboard port (0 disables)")
		rootCmd.AddCommand(cmd)
	}
}
