package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jonathan/resume-author/internal/db"
)

var (
	runsDatabaseURL string
	runsLimit       int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent runs",
	Long:  `List recent pipeline runs from the database, newest first.`,
	RunE:  runListRuns,
}

func init() {
	runsCmd.Flags().StringVar(&runsDatabaseURL, "db-url", "", "PostgreSQL connection URL (defaults to DATABASE_URL env var)")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum number of runs to show")
	rootCmd.AddCommand(runsCmd)
}

func runListRuns(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	databaseURL := runsDatabaseURL
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		return fmt.Errorf("a database is required to list runs: set --db-url or DATABASE_URL")
	}

	database, err := db.Connect(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	runs, err := database.ListRuns(ctx, runsLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tSTAGE\tGATE\tCREATED")
	for _, run := range runs {
		gate := "-"
		if run.PendingGate != nil {
			gate = *run.PendingGate
		}
		status := string(run.Status)
		if run.Archived {
			status += " (archived)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			run.ID, status, run.CurrentStage, gate, run.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
