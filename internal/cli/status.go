package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/vietddude/relay/internal/core/config"
	"github.com/vietddude/relay/internal/metrics"
	"github.com/vietddude/relay/internal/resilience/breaker"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show counters and breaker states of a running relay",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://localhost:%d/health/detailed", cfg.Server.Port))
	if err != nil {
		slog.Error("Failed to reach relay", "port", cfg.Server.Port, "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var report struct {
		Counters metrics.Snapshot `json:"counters"`
		Breakers []breaker.Stats  `json:"breakers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		slog.Error("Failed to decode status", "error", err)
		os.Exit(1)
	}

	fmt.Printf("processed=%d skipped=%d failed=%d cycles=%d avg_cycle=%s\n\n",
		report.Counters.Processed,
		report.Counters.Skipped,
		report.Counters.Failed,
		report.Counters.PollCycles,
		report.Counters.AverageCycleTime)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "SERVICE\tSTATE\tFAILURES\tLAST FAILURE")

	for _, b := range report.Breakers {
		last := "-"
		if !b.LastFailure.IsZero() {
			last = b.LastFailure.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", b.Service, b.State, b.FailureCount, last)
	}
	_ = w.Flush()
}
