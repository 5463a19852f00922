package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/gotrs-io/gotrs-mailpipe/internal/api"
	"github.com/gotrs-io/gotrs-mailpipe/internal/config"
	"github.com/gotrs-io/gotrs-mailpipe/internal/email/inbound/postmaster"
	"github.com/gotrs-io/gotrs-mailpipe/internal/runner"
	"github.com/gotrs-io/gotrs-mailpipe/internal/runner/tasks"
	"github.com/gotrs-io/gotrs-mailpipe/internal/version"
)

var configPathFlag string

var rootCmd = &cobra.Command{
	Use:   "gotrs-mailpipe",
	Short: "Pipe support mailbox replies into ticket threads",
	Long: `gotrs-mailpipe polls a support mailbox over IMAP and appends replies to
the tickets named in their subject lines.

Configuration is read from a YAML file and MAILPIPE_* environment variables.`,
	Version:       version.GetInfo().String(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Perform a single piping pass and print the run report",
	RunE:  runOnce,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run piping on its schedule and serve /health, /metrics and /status",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the ticket and message tables if they do not exist",
	RunE:  runMigrate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("gotrs-mailpipe %s\n", version.GetInfo().Full())
	},
}

var jsonFlag bool

func init() {
	rootCmd.PersistentFlags().StringVar(&configPathFlag, "config", "", "Path to config.yaml or a directory containing it")
	runCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print the run report as JSON")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if err := config.Load(configPathFlag); err != nil {
		return nil, err
	}
	cfg := config.Get()
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	report := a.ingester.Run(ctx)
	if jsonFlag {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "run %s %s: seen=%d ingested=%d skipped=%d errored=%d deferred=%d\n",
			report.RunID, report.State, report.Seen, report.Ingested, report.Skipped, report.Errored, report.Deferred)
	}
	if report.State == postmaster.StateConnectFailed {
		return report.Err
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	config.OnChange(func(next *config.Config) {
		a.logger.Printf("Configuration changed, piping enabled=%v mailbox=%s", next.Piping.Enabled, next.Piping.IMAP.Host)
	})

	registry := runner.NewTaskRegistry()
	task := tasks.NewEmailPipingTask(a.ingester,
		tasks.WithPipingSchedule(cfg.Scheduler.Schedule),
		tasks.WithPipingTimeout(cfg.Scheduler.RunTimeout),
		tasks.WithPipingLogger(a.componentLogger("EMAIL-PIPING")))
	if err := registry.Register(task); err != nil {
		return err
	}

	var srv *http.Server
	if cfg.Metrics.Enabled {
		if cfg.App.IsProduction() {
			gin.SetMode(gin.ReleaseMode)
		}
		router := api.NewRouter(a.db, a.ingester, a.registry, version.GetInfo().Version)
		router.SetupRoutes()
		srv = &http.Server{
			Addr:              cfg.Metrics.GetListenAddr(),
			Handler:           router.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		opsLogger := a.componentLogger("OPS")
		go func() {
			opsLogger.Printf("Listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				opsLogger.Printf("Server error: %v", err)
				stop()
			}
		}()
	}

	r := runner.NewRunner(registry, runner.WithRunnerLogger(a.componentLogger("RUNNER")), runner.WithoutSignalHandling())
	err = r.Start(ctx)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			log.Printf("ops server shutdown: %v", serr)
		}
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.tickets.Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Schema ready (%s, prefix %q)\n", cfg.Database.Driver, cfg.Database.TablePrefix)
	return nil
}
