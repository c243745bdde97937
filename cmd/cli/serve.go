package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/anstrom/labscan/internal/api"
	"github.com/anstrom/labscan/internal/api/middleware"
	"github.com/anstrom/labscan/internal/client"
	"github.com/anstrom/labscan/internal/config"
	"github.com/anstrom/labscan/internal/controller"
	"github.com/anstrom/labscan/internal/logging"
	"github.com/anstrom/labscan/internal/metrics"
	"github.com/anstrom/labscan/internal/scanning"
	"github.com/anstrom/labscan/internal/scheduler"
)

// serveCmd runs the scan backend and the dashboard API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scan backend and dashboard API",
	Long: `Start the HTTP server. POST /scan runs the fixed nmap profile against
the configured lab target; the dashboard endpoints drive scan cycles and
stream their progress over a websocket.

The lab target is read from configuration only (lab.target, or the
LAB_TARGET environment variable). Requests cannot choose it.`,
	Example: `  labscan serve
  labscan serve --host 0.0.0.0 --port 5000
  labscan serve --schedule "0 * * * *"
  LAB_TARGET=10.0.0.7 labscan serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "Override server host")
	serveCmd.Flags().Int("port", 0, "Override server port")
	serveCmd.Flags().String("target", "", "Override the lab target")
	serveCmd.Flags().String("nmap", "", "Path to the nmap binary")
	serveCmd.Flags().String("schedule", "", "Cron expression for automatic dashboard scans")

	bindServeFlags()
}

func bindServeFlags() {
	bindFlag(serveCmd.Flags(), "api.host", "host")
	bindFlag(serveCmd.Flags(), "api.port", "port")
	bindFlag(serveCmd.Flags(), "lab.target", "target")
	bindFlag(serveCmd.Flags(), "lab.binary_path", "nmap")
	bindFlag(serveCmd.Flags(), "lab.schedule", "schedule")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg)
}

// serve wires the engine, controller and API server and blocks until ctx is
// canceled.
func serve(ctx context.Context, cfg *config.Config) error {
	logger := logging.Default().WithComponent("serve")
	m := metrics.GetGlobalMetrics()

	engine := scanning.NewEngine(cfg.Lab, m)
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Warn("Failed to close scan engine", "error", err)
		}
	}()

	// The dashboard controller goes through the same POST /scan as any
	// other client. Its per-process token keeps it out of the rate limit;
	// the controller already runs one cycle at a time.
	internalToken := uuid.NewString()
	backend := client.New(cfg.BackendURL(), cfg.Client.Timeout,
		client.WithHeader(middleware.InternalTokenHeader, internalToken))
	ctrl := controller.New(backend, controller.WithMetrics(m))

	deps := api.Deps{
		Scanner:       engine,
		Slots:         engine.Resources(),
		Dashboard:     ctrl,
		Metrics:       m,
		InternalToken: internalToken,
	}

	if cfg.Lab.Schedule != "" {
		sched, err := scheduler.New(cfg.Lab.Schedule, ctrl)
		if err != nil {
			return err
		}
		if err := sched.Start(); err != nil {
			return err
		}
		defer sched.Stop()
		deps.Schedule = sched
	}

	server, err := api.New(cfg, deps)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	logger.Info("labscan ready",
		"address", server.GetAddress(),
		"target", cfg.Lab.Target,
		"top_ports", cfg.Lab.TopPorts,
		"backend", backend.BaseURL(),
		"client_timeout", durationOrNone(cfg.Client.Timeout))

	return server.Start(ctx)
}
