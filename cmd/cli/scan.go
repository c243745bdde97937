package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/anstrom/labscan/internal/client"
	"github.com/anstrom/labscan/internal/controller"
	"github.com/anstrom/labscan/internal/logging"
	"github.com/anstrom/labscan/internal/present"
)

// errScanFailed is returned after a failed cycle has been rendered.
var errScanFailed = fmt.Errorf("scan failed")

// scanCmd runs one scan cycle against a backend.
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Request one scan and explain the results",
	Long: `Ask a labscan backend to scan its lab target, then print the open ports,
the likely role of the host and suggested lab-safe next steps.

The backend defaults to the local server address from the configuration.`,
	Example: `  labscan scan
  labscan scan --backend http://127.0.0.1:5000
  labscan scan --timeout 5m --json`,
	RunE: runScan,
}

var scanJSON bool

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().String("backend", "", "Base URL of the scan backend")
	scanCmd.Flags().Duration("timeout", 0, "Request timeout (0 waits for the backend)")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Print the final update as JSON")

	bindScanFlags()
}

func bindScanFlags() {
	bindFlag(scanCmd.Flags(), "client.base_url", "backend")
	bindFlag(scanCmd.Flags(), "client.timeout", "timeout")
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	return scanOnce(ctx, client.New(cfg.BackendURL(), cfg.Client.Timeout), cmd.OutOrStdout(), scanJSON)
}

// scanOnce runs a single controller cycle and renders it to out.
func scanOnce(ctx context.Context, requester controller.ScanRequester, out io.Writer, asJSON bool) error {
	var opts []controller.Option
	if !asJSON {
		opts = append(opts, controller.WithPresenter(present.NewTerminal(out)))
	}
	ctrl := controller.New(requester, opts...)

	if !ctrl.Trigger(ctx) {
		return fmt.Errorf("scan already in progress")
	}

	final := ctrl.Snapshot()
	logging.Debug("Scan cycle finished", "state", final.State.String(), "duration", elapsed(final))

	if asJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(final); err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
	}

	if final.State == controller.StateFailed {
		return errScanFailed
	}
	return nil
}

// elapsed reports how long a finished cycle took.
func elapsed(u controller.Update) time.Duration {
	if u.StartedAt.IsZero() || u.FinishedAt.IsZero() {
		return 0
	}
	return u.FinishedAt.Sub(u.StartedAt)
}
