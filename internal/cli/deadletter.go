package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tabellenwerk/standings/internal/core/domain"
)

var deadletterCmd = &cobra.Command{
	Use:   "deadletter",
	Short: "Inspect and manage dead-lettered jobs",
}

var deadletterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs awaiting manual intervention",
	Run:   runDeadletterList,
}

var deadletterReprocessCmd = &cobra.Command{
	Use:   "reprocess <job-id>",
	Short: "Re-admit a dead-lettered job with a fresh retry budget",
	Args:  cobra.ExactArgs(1),
	Run:   runDeadletterReprocess,
}

var deadletterClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop all dead-lettered jobs",
	Run:   runDeadletterClear,
}

func init() {
	deadletterCmd.AddCommand(deadletterListCmd, deadletterReprocessCmd, deadletterClearCmd)
	rootCmd.AddCommand(deadletterCmd)
}

func runDeadletterList(cmd *cobra.Command, args []string) {
	var jobs []*domain.CalculationJob
	exitOnErr(adminGet("/queue/deadletter", &jobs), "Failed to fetch dead-letter jobs")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "JOB\tLEAGUE\tSEASON\tRETRIES\tFAILED AT\tLAST ERROR")
	for _, j := range jobs {
		failedAt := ""
		if j.CompletedAt != nil {
			failedAt = j.CompletedAt.Format(time.RFC3339)
		}
		lastErr := ""
		if n := len(j.Errors); n > 0 {
			lastErr = j.Errors[n-1].Message
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			j.ID, j.LeagueID, j.SeasonID, j.RetryCount, j.MaxRetries, failedAt, lastErr)
	}
	_ = w.Flush()
}

func runDeadletterReprocess(cmd *cobra.Command, args []string) {
	exitOnErr(adminPost("/queue/deadletter/"+args[0]+"/reprocess", nil, nil), "Failed to reprocess job")
	fmt.Printf("job %s re-admitted\n", args[0])
}

func runDeadletterClear(cmd *cobra.Command, args []string) {
	var resp struct {
		Cleared int `json:"cleared"`
	}
	exitOnErr(adminPost("/queue/deadletter/clear", nil, &resp), "Failed to clear dead-letter queue")
	fmt.Printf("cleared %d jobs\n", resp.Cleared)
}
