package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/sprawl-cli/internal/model"
	"github.com/sells-group/sprawl-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect analysis run history",
	Long:  "Commands for listing, viewing, and pruning recorded analysis runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List analysis runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		district, _ := cmd.Flags().GetString("district")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status:   model.RunStatus(status),
			District: district,
			Limit:    limit,
			Offset:   offset,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		output, _ := cmd.Flags().GetString("output")
		return writeRun(os.Stdout, run, output)
	},
}

// -- runs prune --

var runsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete runs older than a given age",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		olderThan, _ := cmd.Flags().GetDuration("older-than")
		if olderThan <= 0 {
			return eris.New("--older-than must be positive")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.DeleteRunsBefore(ctx, time.Now().Add(-olderThan))
		if err != nil {
			return eris.Wrap(err, "runs prune")
		}
		fmt.Fprintf(os.Stderr, "Deleted %d runs.\n", n)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (queued, running, complete, failed)")
	runsListCmd.Flags().String("district", "", "filter by district name (case-insensitive)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsListCmd.Flags().Int("offset", 0, "number of runs to skip")

	runsShowCmd.Flags().StringP("output", "o", "json", "output format: json or yaml")

	runsPruneCmd.Flags().Duration("older-than", 30*24*time.Hour, "delete runs created before this age")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsPruneCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tDISTRICT\tSTATUS\tOUTCOME\tSPRAWL\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t--------\t------\t-------\t------\t-------\t--------")

	for _, r := range runs {
		dur := r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String()

		district := r.Request.District
		if len(district) > 30 {
			district = district[:27] + "..."
		}

		sprawl := "-"
		if r.Result != nil {
			sprawl = fmt.Sprintf("%.1f%%", r.Result.Summary.SprawlFraction*100)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			district,
			r.Status,
			r.Outcome,
			sprawl,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
