package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	enqueueLeague   string
	enqueueSeason   string
	enqueuePriority int
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Queue a manual standings calculation",
	Run:   runEnqueue,
}

func init() {
	enqueueCmd.Flags().StringVar(&enqueueLeague, "league", "", "league id")
	enqueueCmd.Flags().StringVar(&enqueueSeason, "season", "", "season id")
	enqueueCmd.Flags().IntVar(&enqueuePriority, "priority", 2, "job priority (0=low, 1=normal, 2=high, 3=critical)")
	rootCmd.AddCommand(enqueueCmd)
}

func runEnqueue(cmd *cobra.Command, args []string) {
	if enqueueLeague == "" || enqueueSeason == "" {
		fmt.Fprintln(os.Stderr, "both --league and --season are required")
		os.Exit(1)
	}

	var resp struct {
		JobID string `json:"job_id"`
	}
	exitOnErr(adminPost("/queue/enqueue", map[string]any{
		"league_id": enqueueLeague,
		"season_id": enqueueSeason,
		"priority":  enqueuePriority,
		"trigger":   "manual",
	}, &resp), "Failed to enqueue job")

	fmt.Printf("queued job %s\n", resp.JobID)
}
