package cli

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/vietddude/relay/internal/core/config"
)

var resetBreakersCmd = &cobra.Command{
	Use:   "reset-breakers [service]",
	Short: "Force circuit breakers of a running relay back to CLOSED",
	Long:  `Resets the named service's circuit breaker, or every breaker when no service is given.`,
	Args:  cobra.MaximumNArgs(1),
	Run:   runResetBreakers,
}

func init() {
	rootCmd.AddCommand(resetBreakersCmd)
}

func runResetBreakers(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	endpoint := fmt.Sprintf("http://localhost:%d/admin/breakers/reset", cfg.Server.Port)
	if len(args) == 1 {
		endpoint += "?service=" + url.QueryEscape(args[0])
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(endpoint, "application/json", nil)
	if err != nil {
		slog.Error("Failed to reach relay", "port", cfg.Server.Port, "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		fmt.Printf("Unknown service: %s\n", args[0])
		os.Exit(1)
	}
	if resp.StatusCode != http.StatusOK {
		slog.Error("Reset failed", "status", resp.StatusCode)
		os.Exit(1)
	}

	if len(args) == 1 {
		fmt.Printf("Successfully reset breaker for %s\n", args[0])
	} else {
		fmt.Println("Successfully reset all breakers")
	}
}
