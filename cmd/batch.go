package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/goalflow/internal/model"
	"github.com/sells-group/goalflow/internal/poller"
	"github.com/sells-group/goalflow/internal/store"
	"github.com/sells-group/goalflow/internal/workflow"
	"github.com/sells-group/goalflow/pkg/goalflow"
)

// idPrinter groups digits the way reviewers read targets ("360.000.000").
var idPrinter = message.NewPrinter(language.Indonesian)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Inspect and drive analysis batches",
}

// -- batch list --

var batchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List analysis batches, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		if status != "" && !model.BatchStatus(status).Valid() {
			return eris.Errorf("unknown batch status %q", status)
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		batches, err := st.ListBatches(ctx, store.BatchFilter{Status: model.BatchStatus(status), Limit: limit})
		if err != nil {
			return eris.Wrap(err, "batch list")
		}
		if len(batches) == 0 {
			fmt.Fprintln(os.Stderr, "No batches found.")
			return nil
		}

		formatBatchList(cmd.OutOrStdout(), batches)
		return nil
	},
}

// -- batch show --

var batchShowCmd = &cobra.Command{
	Use:   "show <batch-id>",
	Short: "Show a batch with its goals and review collections as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		detail, err := st.GetBatchDetail(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "batch show")
		}
		goals, err := st.ListGoals(ctx, store.GoalFilter{BatchID: args[0]})
		if err != nil {
			return eris.Wrap(err, "batch show: goals")
		}
		return writeBatchYAML(cmd.OutOrStdout(), detail, goals)
	},
}

// -- batch watch --

var batchWatchCmd = &cobra.Command{
	Use:   "watch <batch-id>",
	Short: "Poll a batch until the workflow engine moves it on",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("watch"); err != nil {
			return err
		}
		until, _ := cmd.Flags().GetStringSlice("until")

		client := goalflow.NewClient(cfg.Poll.ServerURL)
		res, err := watchBatch(ctx, cmd.OutOrStdout(), client, args[0], until,
			poller.WithInterval(time.Duration(cfg.Poll.IntervalSecs)*time.Second),
			poller.WithMaxAttempts(cfg.Poll.MaxAttempts),
		)
		if err != nil {
			return err
		}
		switch res.State {
		case poller.TimedOut:
			return eris.Errorf("batch %s still %s after %d checks", args[0], res.Status, res.Attempts)
		case poller.Cancelled:
			if res.Err != nil {
				return eris.Wrap(res.Err, "batch watch")
			}
			return ctx.Err()
		}
		return nil
	},
}

// -- batch retrigger --

var batchRetriggerCmd = &cobra.Command{
	Use:   "retrigger <batch-id>",
	Short: "Resend the webhook the batch is waiting on",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := goalflow.NewClient(cfg.Poll.ServerURL)
		out, err := client.Retrigger(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrap(err, "batch retrigger")
		}
		if out.DryRun {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "batch %s (%s): webhook not configured, payload not sent\n", out.BatchID, out.Status)
			return nil
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "batch %s (%s): webhook resent\n", out.BatchID, out.Status)
		return nil
	},
}

// -- batch complete --

var batchCompleteCmd = &cobra.Command{
	Use:   "complete <batch-id>",
	Short: "Mark an active batch as completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		flow := workflow.New(st, newDispatcher(cfg), cfg.IsProduction())
		b, err := flow.CompleteBatch(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "batch complete")
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "batch %s is %s\n", b.ID, b.Status)
		return nil
	},
}

func init() {
	batchListCmd.Flags().String("status", "", "filter by batch status (Analyzing, review_pending, Active, ...)")
	batchListCmd.Flags().Int("limit", 50, "max number of batches to display")
	batchWatchCmd.Flags().StringSlice("until", nil, "statuses that end the watch (default: the batch's poll targets)")

	batchCmd.AddCommand(batchListCmd)
	batchCmd.AddCommand(batchShowCmd)
	batchCmd.AddCommand(batchWatchCmd)
	batchCmd.AddCommand(batchRetriggerCmd)
	batchCmd.AddCommand(batchCompleteCmd)
	rootCmd.AddCommand(batchCmd)
}

// formatBatchList writes a tabular list of batches to out.
func formatBatchList(out io.Writer, batches []model.AnalysisBatch) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tSTATUS\tVERSION\tCREATED\tUPDATED")
	_, _ = fmt.Fprintln(w, "--\t----\t------\t-------\t-------\t-------")

	for _, b := range batches {
		name := b.Name
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			truncateID(b.ID),
			name,
			b.Status,
			b.Version,
			b.CreatedAt.Format("2006-01-02 15:04"),
			b.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

type goalLine struct {
	ID     string     `yaml:"goal_id"`
	Name   string     `yaml:"goal_name"`
	Target string     `yaml:"target"`
	Start  model.Date `yaml:"start_date"`
	End    model.Date `yaml:"end_date"`
}

type batchDocument struct {
	Batch *model.BatchDetail `yaml:"batch"`
	Goals []goalLine         `yaml:"goals"`
}

// writeBatchYAML renders a batch, its goals and review collections.
func writeBatchYAML(out io.Writer, detail *model.BatchDetail, goals []model.StrategicGoal) error {
	doc := batchDocument{Batch: detail, Goals: make([]goalLine, 0, len(goals))}
	for _, g := range goals {
		doc.Goals = append(doc.Goals, goalLine{
			ID:     g.ID,
			Name:   g.Name,
			Target: groupAmount(g.TargetValue) + " " + g.TargetUnit,
			Start:  g.StartDate,
			End:    g.EndDate,
		})
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return eris.Wrap(err, "encode batch yaml")
	}
	return eris.Wrap(enc.Close(), "encode batch yaml")
}

// groupAmount formats a with id-ID digit grouping. Values past int64 are
// printed ungrouped.
func groupAmount(a model.Amount) string {
	b := a.BigInt()
	if !b.IsInt64() {
		return a.String()
	}
	return idPrinter.Sprintf("%d", b.Int64())
}

// watchBatch polls batchID until it reaches one of until, or the server's
// reported poll targets when until is empty.
func watchBatch(ctx context.Context, out io.Writer, client goalflow.Client, batchID string, until []string, opts ...poller.Option) (poller.Result, error) {
	first, err := client.CheckStatus(ctx, batchID)
	if err != nil {
		return poller.Result{}, eris.Wrap(err, "batch watch")
	}

	targetNames := until
	if len(targetNames) == 0 {
		targetNames = first.PollTargets
	}
	targets := make([]model.BatchStatus, 0, len(targetNames))
	for _, t := range targetNames {
		s := model.BatchStatus(strings.TrimSpace(t))
		if !s.Valid() {
			return poller.Result{}, eris.Errorf("unknown batch status %q", t)
		}
		targets = append(targets, s)
	}
	if len(targets) == 0 {
		_, _ = fmt.Fprintf(out, "batch %s is %s; nothing to wait for\n", batchID, first.Status)
		return poller.Result{State: poller.Idle, Status: model.BatchStatus(first.Status)}, nil
	}

	_, _ = fmt.Fprintf(out, "batch %s is %s; waiting for %s\n", batchID, first.Status, strings.Join(targetNames, ", "))
	opts = append(opts, poller.WithObserver(func(attempt int, status model.BatchStatus, err error) {
		if err != nil {
			zap.L().Warn("status check failed", zap.String("batch_id", batchID), zap.Int("attempt", attempt), zap.Error(err))
			return
		}
		zap.L().Debug("status checked", zap.String("batch_id", batchID), zap.Int("attempt", attempt), zap.String("status", string(status)))
	}))

	p := poller.New(opts...)
	res := p.Run(ctx, func(ctx context.Context) (model.BatchStatus, error) {
		st, err := client.CheckStatus(ctx, batchID)
		if err != nil {
			return "", err
		}
		return model.BatchStatus(st.Status), nil
	}, targets...)

	_, _ = fmt.Fprintf(out, "batch %s: %s after %d checks (status %s)\n", batchID, res.State, res.Attempts, res.Status)
	return res, nil
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
