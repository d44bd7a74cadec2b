package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewHistoryCommand creates the run-history listing command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List the most recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			defer app.close()

			recent, err := app.history.Recent()
			if err != nil {
				return err
			}
			if len(recent) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no runs recorded")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FINISHED\tMODE\tSTATUS\tFETCHED\tDEDUP\tUPDATED\tAPPENDED")
			for _, outcome := range recent {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
					outcome.FinishedAt.Format("2006-01-02 15:04:05"),
					outcome.Mode, outcome.Status,
					outcome.Fetched, outcome.Deduplicated, outcome.Updated, outcome.Appended)
			}
			return tw.Flush()
		},
	}
}
