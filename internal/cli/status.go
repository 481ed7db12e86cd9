package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tabellenwerk/standings/internal/standings/queue"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the queue status of a running pipeline",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	var st queue.Status
	exitOnErr(adminGet("/queue/status", &st), "Failed to fetch queue status")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "PENDING\tPROCESSING\tCOMPLETED\tFAILED\tDEAD LETTER\tPAUSED\tSUCCESS RATE\tAVG DURATION")
	_, _ = fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%t\t%.1f%%\t%s\n",
		st.Pending, st.Processing, st.Completed, st.Failed,
		st.DeadLetter, st.Paused, st.SuccessRate*100, st.AvgDuration)
	_ = w.Flush()
}
