package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <run_hash>",
	Short: "Request cooperative cancellation of an in-flight run",
	Long: `Sends POST /runs/{run_hash}/cancel to a running serve instance. A
no-op on already-terminal runs (spec §4.10); an unknown run_hash is
answered with 404 and reported as an error.`,
	Args: cobra.ExactArgs(1),
	RunE: runCancel,
}

func init() {
	cancelCmd.Flags().String("server", "http://localhost:8080", "Base URL of a running backtestd serve instance")
}

func runCancel(cmd *cobra.Command, args []string) error {
	server, _ := cmd.Flags().GetString("server")
	runHash := args[0]

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(fmt.Sprintf("%s/runs/%s/cancel", server, runHash), "application/json", nil)
	if err != nil {
		return fmt.Errorf("cancel request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("cancel request returned %s", resp.Status)
	}

	fmt.Printf("cancellation requested for run %s\n", runHash)
	return nil
}
