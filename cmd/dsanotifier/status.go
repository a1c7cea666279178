package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"dsanotifier/internal/app"
	"dsanotifier/internal/config"
	"dsanotifier/internal/telemetry"
)

func newStatusCmd(configPath *string) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show delivery progress and recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger := telemetry.NewLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())

			application, err := app.NewReadOnly(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer application.Close()

			st, err := application.Status(cmd.Context())
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), st, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	return cmd
}

func printStatus(w io.Writer, st *app.Status, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	fmt.Fprintf(w, "Questions file: %s\n", st.QuestionsFile)
	fmt.Fprintf(w, "Policy:         %s\n", st.Policy)
	fmt.Fprintf(w, "Progress:       %d/%d delivered, %d remaining\n", st.Delivered, st.Total, st.Remaining)
	if !st.NextRun.IsZero() {
		fmt.Fprintf(w, "Next run:       %s\n", st.NextRun.Format(time.RFC1123))
	}

	fmt.Fprintln(w)
	if len(st.NextBatch) == 0 {
		fmt.Fprintf(w, "Next batch: none (%s)\n", st.Selection)
	} else {
		fmt.Fprintln(w, "Next batch:")
		table(w, []string{"#", "QUESTION", "TOPIC", "CATEGORY"}, batchRows(st.NextBatch))
	}

	if st.Stats != nil {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Runs recorded: %d, questions delivered: %d\n", st.Stats.TotalRuns, st.Stats.QuestionsDelivered)
		if st.Stats.LastDeliveredAt != nil {
			fmt.Fprintf(w, "Last delivery: %s\n", st.Stats.LastDeliveredAt.Local().Format(time.RFC1123))
		}
	}
	if len(st.RecentRuns) > 0 {
		fmt.Fprintln(w)
		rows := make([][]string, len(st.RecentRuns))
		for i, r := range st.RecentRuns {
			rows[i] = []string{
				r.StartedAt.Local().Format("2006-01-02 15:04"),
				string(r.Status),
				strconv.Itoa(r.QuestionCount),
				r.Error,
			}
		}
		table(w, []string{"STARTED", "STATUS", "QUESTIONS", "ERROR"}, rows)
	}
	return nil
}

func batchRows(batch []app.BatchEntry) [][]string {
	rows := make([][]string, len(batch))
	for i, b := range batch {
		rows[i] = []string{strconv.Itoa(b.Number), b.Question, b.Topic, b.Category}
	}
	return rows
}

func table(w io.Writer, headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}
