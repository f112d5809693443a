// Package main provides the ys-launcher entry point.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rennerdo30/ys-launcher/internal/api"
	"github.com/rennerdo30/ys-launcher/internal/config"
	"github.com/rennerdo30/ys-launcher/internal/launcher"
	"github.com/rennerdo30/ys-launcher/internal/logging"
	"github.com/rennerdo30/ys-launcher/internal/updater"
	"github.com/rennerdo30/ys-launcher/internal/version"
	"github.com/rennerdo30/ys-launcher/internal/versioncheck"
)

const defaultConfigFile = "ys-launcher.yaml"

type cli struct {
	configFile   string
	yes          bool
	force        bool
	strictBackup bool
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:           "ys-launcher",
		Short:         "Yandere Simulator launcher",
		Long:          `ys-launcher keeps a local game installation up to date and starts it, carrying custom content across updates.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          c.runPlay,
	}
	rootCmd.PersistentFlags().StringVarP(&c.configFile, "config", "c", defaultConfigFile, "config file path")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(c.configFile); err != nil {
				return fmt.Errorf("configuration invalid: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
			return nil
		},
	})

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		RunE:  c.runConfigInit,
	}
	initCmd.Flags().BoolVarP(&c.force, "force", "f", false, "overwrite an existing file (a backup is kept)")
	configCmd.AddCommand(initCmd)
	rootCmd.AddCommand(configCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the installation status",
		RunE:  c.runStatus,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Check the game and launcher for updates",
		RunE:  c.runCheck,
	})

	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Download and install the latest game build",
		RunE:  c.runUpdate,
	}
	updateCmd.Flags().BoolVarP(&c.yes, "yes", "y", false, "do not ask for confirmation")
	updateCmd.Flags().BoolVarP(&c.force, "force", "f", false, "reinstall even when up to date")
	updateCmd.Flags().BoolVar(&c.strictBackup, "strict-backup", false, "abort before wiping when custom content cannot be staged")
	rootCmd.AddCommand(updateCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "launch",
		Short: "Start the game",
		RunE:  c.runLaunch,
	})

	playCmd := &cobra.Command{
		Use:   "play",
		Short: "Update the game when needed, then start it",
		RunE:  c.runPlay,
	}
	playCmd.Flags().BoolVar(&c.strictBackup, "strict-backup", false, "abort before wiping when custom content cannot be staged")
	rootCmd.AddCommand(playCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the local status API",
		RunE:  c.runServe,
	})

	return rootCmd
}

// loadApp reads the config (defaults when the file is absent), sets up
// logging and assembles the launcher.
func (c *cli) loadApp() (*launcher.App, error) {
	cfg, _, err := config.LoadOptional(c.configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if c.strictBackup {
		cfg.Install.StrictBackup = true
	}

	if err := logging.Setup(cfg.Logging); err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}

	app, err := launcher.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("create launcher: %w", err)
	}
	return app, nil
}

func (c *cli) runConfigInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(c.configFile); err == nil {
		if !c.force {
			return fmt.Errorf("%s already exists, use --force to overwrite", c.configFile)
		}
		backup, err := config.Backup(c.configFile)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Previous config saved to %s\n", backup)
	}

	cfg := config.DefaultLauncherConfig()
	if err := config.Save(c.configFile, &cfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", c.configFile)
	return nil
}

func (c *cli) runStatus(cmd *cobra.Command, args []string) error {
	app, err := c.loadApp()
	if err != nil {
		return err
	}
	defer logging.Close()

	st := app.Status(cmd.Context())
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Executable:     %s\n", st.Executable)
	fmt.Fprintf(out, "Installed:      %t\n", st.Installed)
	fmt.Fprintf(out, "Running:        %t\n", st.Running)
	fmt.Fprintf(out, "Game version:   %s\n", orUnknown(st.LocalVersion))
	fmt.Fprintf(out, "Launcher build: %d\n", st.LauncherBuild)
	if st.LastUpdate != nil {
		fmt.Fprintf(out, "Last update:    %s (%s, %s)\n",
			st.LastUpdate.Phase, st.LastUpdate.RemoteVersion, st.LastUpdate.UpdatedAt.Format(time.RFC1123))
	}
	return nil
}

func (c *cli) runCheck(cmd *cobra.Command, args []string) error {
	app, err := c.loadApp()
	if err != nil {
		return err
	}
	defer logging.Close()

	game, self := app.Check(cmd.Context())
	out := cmd.OutOrStdout()
	printCheck(out, "Game", game)
	printCheck(out, "Launcher", self)
	if self.UpdateRequired() {
		fmt.Fprintln(out, "\nA newer launcher is available, please download it from the website.")
	}
	return nil
}

func printCheck(out io.Writer, name string, res versioncheck.Result) {
	switch res.Status {
	case versioncheck.StatusUnknown:
		fmt.Fprintf(out, "%-9s could not check for updates: %v\n", name+":", res.Err)
	case versioncheck.StatusUpdateAvailable:
		fmt.Fprintf(out, "%-9s update available (%s -> %s)\n", name+":", orUnknown(res.Local), res.Remote)
	default:
		fmt.Fprintf(out, "%-9s up to date (%s)\n", name+":", res.Local)
	}
}

func (c *cli) runUpdate(cmd *cobra.Command, args []string) error {
	app, err := c.loadApp()
	if err != nil {
		return err
	}
	defer logging.Close()

	out := cmd.OutOrStdout()
	check := app.Checker.CheckApp(cmd.Context())
	switch {
	case check.Status == versioncheck.StatusUnknown:
		return fmt.Errorf("check for update: %w", check.Err)
	case !check.UpdateRequired() && !c.force:
		fmt.Fprintf(out, "Game version %s is up to date.\n", check.Local)
		return nil
	}

	if !c.yes {
		fmt.Fprintf(out, "Install game version %s over %s? Custom content is kept. [y/N]: ", check.Remote, orUnknown(check.Local))
		response, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Fprintln(out, "Update skipped.")
			return nil
		}
	}

	res, err := app.Update(cmd.Context(), progressCallbacks(out))
	return reportUpdate(out, res, err)
}

func (c *cli) runLaunch(cmd *cobra.Command, args []string) error {
	app, err := c.loadApp()
	if err != nil {
		return err
	}
	defer logging.Close()

	pid, err := app.Launch(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Started %s (pid %d)\n", app.Install.Executable, pid)
	return nil
}

func (c *cli) runPlay(cmd *cobra.Command, args []string) error {
	app, err := c.loadApp()
	if err != nil {
		return err
	}
	defer logging.Close()

	out := cmd.OutOrStdout()
	res, err := app.Play(cmd.Context(), progressCallbacks(out))
	if err != nil {
		if errors.Is(err, launcher.ErrNotInstalled) {
			return fmt.Errorf("%w: run 'ys-launcher update' once the server is reachable", err)
		}
		return err
	}
	if res.Updated {
		_ = reportUpdate(out, res.Update, nil)
	}
	fmt.Fprintf(out, "Started %s (pid %d)\n", app.Install.Executable, res.PID)
	return nil
}

func (c *cli) runServe(cmd *cobra.Command, args []string) error {
	app, err := c.loadApp()
	if err != nil {
		return err
	}
	defer logging.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := app.Collector()
	collector.Start()
	defer collector.Stop()

	srv := api.New(api.Config{
		Service: app,
		Metrics: app.Metrics.Handler(),
		Token:   app.Config.API.Token,
	})
	httpServer := &http.Server{
		Addr:              app.Config.API.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("API server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("API server: %w", err)
		}
	case <-ctx.Done():
		logging.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Warn("API server shutdown", "error", err)
	}

	// An update that already started wiping must not be cut short.
	srv.Wait()
	app.FlushMetrics()
	return nil
}

func progressCallbacks(out io.Writer) updater.Callbacks {
	lastPct := -1
	return updater.Callbacks{
		Progress: func(downloaded, total float64) {
			if total <= 0 {
				return
			}
			pct := int(downloaded / total * 100)
			if pct != lastPct {
				fmt.Fprintf(out, "\rDownloading: %d%%", pct)
				lastPct = pct
			}
		},
		UnpackStarting: func() {
			fmt.Fprintln(out, "\nUnpacking...")
		},
	}
}

func reportUpdate(out io.Writer, res *updater.Result, err error) error {
	if err != nil {
		if errors.Is(err, launcher.ErrGameRunning) {
			return fmt.Errorf("%w: close the game before updating", err)
		}
		return fmt.Errorf("update failed: %w", err)
	}
	if res == nil {
		return nil
	}

	fmt.Fprintf(out, "Installed game version %s in %s.\n", res.RemoteVersion, res.Duration.Round(time.Millisecond))
	if res.StagingKept {
		fmt.Fprintln(out, "Some custom content could not be restored. It stays in the staging folder and the next update retries it:")
		for _, p := range res.Restore.FailedPaths() {
			fmt.Fprintf(out, "  %s\n", p)
		}
	}
	if cerr := res.Err(); cerr != nil {
		fmt.Fprintf(out, "Completed with warnings: %v\n", cerr)
	}
	return nil
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
