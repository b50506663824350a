package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/goalflow/internal/model"
	"github.com/sells-group/goalflow/internal/store"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Inspect outbound webhook deliveries",
}

var dispatchFailuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "List webhook sends that failed after their change was committed",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		batchID, _ := cmd.Flags().GetString("batch")
		unresolved, _ := cmd.Flags().GetBool("unresolved")
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rows, err := st.ListDispatchFailures(ctx, store.DispatchFailureFilter{
			BatchID:        batchID,
			UnresolvedOnly: unresolved,
			Limit:          limit,
		})
		if err != nil {
			return eris.Wrap(err, "dispatch failures")
		}
		if len(rows) == 0 {
			fmt.Fprintln(os.Stderr, "No dispatch failures found.")
			return nil
		}

		formatFailures(cmd.OutOrStdout(), rows)
		return nil
	},
}

func init() {
	dispatchFailuresCmd.Flags().String("batch", "", "only failures of this batch")
	dispatchFailuresCmd.Flags().Bool("unresolved", false, "hide failures a later send resolved")
	dispatchFailuresCmd.Flags().Int("limit", 50, "max number of rows to display")

	dispatchCmd.AddCommand(dispatchFailuresCmd)
	rootCmd.AddCommand(dispatchCmd)
}

// formatFailures writes a tabular list of dispatch failures to out.
func formatFailures(out io.Writer, rows []model.DispatchFailure) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "BATCH\tPHASE\tTYPE\tATTEMPTS\tCREATED\tRESOLVED\tERROR")
	_, _ = fmt.Fprintln(w, "-----\t-----\t----\t--------\t-------\t--------\t-----")

	for _, f := range rows {
		resolved := "-"
		if f.ResolvedAt != nil {
			resolved = f.ResolvedAt.Format("2006-01-02 15:04")
		}
		msg := f.Error
		if len(msg) > 60 {
			msg = msg[:57] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			truncateID(f.BatchID),
			f.Phase,
			f.ErrorType,
			f.Attempts,
			f.CreatedAt.Format("2006-01-02 15:04"),
			resolved,
			msg,
		)
	}
	_ = w.Flush()
}
