package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tabellenwerk/standings/internal/core/domain"
	"github.com/tabellenwerk/standings/internal/standings/snapshot"
)

var (
	snapLeague      string
	snapSeason      string
	snapDescription string
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage standings snapshots",
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a snapshot of the current table for a target",
	Run:   runSnapshotCreate,
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots for a target, newest first",
	Run:   runSnapshotList,
}

var snapshotRestoreCmd = &cobra.Command{
	Use:   "restore <snapshot-id>",
	Short: "Restore a table from a snapshot",
	Args:  cobra.ExactArgs(1),
	Run:   runSnapshotRestore,
}

func init() {
	snapshotCmd.PersistentFlags().StringVar(&snapLeague, "league", "", "league id")
	snapshotCmd.PersistentFlags().StringVar(&snapSeason, "season", "", "season id")
	snapshotCreateCmd.Flags().StringVar(&snapDescription, "description", "", "snapshot description")

	snapshotCmd.AddCommand(snapshotCreateCmd, snapshotListCmd, snapshotRestoreCmd)
	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshotCreate(cmd *cobra.Command, args []string) {
	if snapLeague == "" || snapSeason == "" {
		fmt.Fprintln(os.Stderr, "both --league and --season are required")
		os.Exit(1)
	}

	var snap domain.Snapshot
	exitOnErr(adminPost("/snapshots", map[string]string{
		"league_id":   snapLeague,
		"season_id":   snapSeason,
		"description": snapDescription,
	}, &snap), "Failed to create snapshot")

	fmt.Printf("created snapshot %s (%d bytes, checksum %s)\n", snap.ID, snap.Size, snap.Checksum[:12])
}

func runSnapshotList(cmd *cobra.Command, args []string) {
	path := "/snapshots"
	if snapLeague != "" {
		path += "?league=" + snapLeague + "&season=" + snapSeason
	}
	var snaps []*domain.Snapshot
	exitOnErr(adminGet(path, &snaps), "Failed to list snapshots")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ID\tLEAGUE\tSEASON\tCREATED\tSIZE\tDESCRIPTION")
	for _, s := range snaps {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			s.ID, s.LeagueID, s.SeasonID, s.CreatedAt.Format(time.RFC3339), s.Size, s.Description)
	}
	_ = w.Flush()
}

func runSnapshotRestore(cmd *cobra.Command, args []string) {
	var result snapshot.RestoreResult
	exitOnErr(adminPost("/snapshots/"+args[0]+"/restore", nil, &result), "Failed to restore snapshot")

	fmt.Printf("restored %d rows from %s\n", result.RestoredCount, result.SnapshotID)
	for _, e := range result.Errors {
		fmt.Fprintf(os.Stderr, "row error: %s\n", e)
	}
	if !result.Success {
		os.Exit(1)
	}
}
