package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/demandcast/internal/control"
	"github.com/vietddude/demandcast/internal/health"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Run every health check once and print the results",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx := context.Background()

	app, err := control.New(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize demandcast", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = app.Stop(ctx)
	}()

	report := app.Checker().Check(ctx)
	printReport(os.Stdout, report)
	if report.OverallStatus == health.StatusCritical {
		os.Exit(2)
	}
}

func printReport(out io.Writer, r *health.Report) {
	_, _ = fmt.Fprintf(out, "Overall: %s (%d healthy, %d warning, %d critical of %d)\n\n",
		r.OverallStatus, r.HealthyComponents, r.WarningComponents, r.CriticalComponents, r.TotalComponents)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "COMPONENT\tSTATUS\tRESPONSE\tUPTIME\tERROR")
	for _, c := range r.Components {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.1f%%\t%s\n",
			c.Name, c.Status, c.ResponseTime.Round(time.Microsecond), c.UptimePercentage, c.ErrorMessage)
	}
	_ = w.Flush()

	if len(r.Alerts) > 0 {
		_, _ = fmt.Fprintln(out, "\nAlerts:")
		for _, a := range r.Alerts {
			_, _ = fmt.Fprintln(out, "  "+a)
		}
	}
}
