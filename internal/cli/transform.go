package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/spanfix/internal/merge"
	"github.com/ppiankov/spanfix/internal/pipeline"
	"github.com/ppiankov/spanfix/internal/traceio"
	"github.com/ppiankov/spanfix/internal/tracer"
)

func init() {
	rootCmd.AddCommand(idsCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(fixCmd)
}

var idsCmd = &cobra.Command{
	Use:   "ids [input] [output]",
	Short: "Assign unique span ids and parent ids",
	Long: "Sorts events by timestamp and gives every Begin a fresh id and the id of the\n" +
		"innermost open span on its track as parentId. Ends take the id of the span they close.\n" +
		"Defaults: trace.json -> trace_with_ids.json",
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransform(cmd, args, "trace_with_ids.json", true, false)
	},
}

var mergeCmd = &cobra.Command{
	Use:   "merge [input] [output]",
	Short: "Merge spans recorded several times",
	Long: "Groups Begin/End events by name, args, pid and tid. A group of more than one\n" +
		"Begin/End pair that strictly alternates is replaced by a single span.\n" +
		"Defaults: trace.json -> trace_merged.json",
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransform(cmd, args, "trace_merged.json", false, true)
	},
}

var fixCmd = &cobra.Command{
	Use:   "fix [input] [output]",
	Short: "Assign span ids, then merge duplicate spans",
	Long:  "Runs ids followed by merge in one pass.\nDefaults: trace.json -> trace_fixed.json",
	Args:  cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransform(cmd, args, "trace_fixed.json", true, true)
	},
}

func runTransform(cmd *cobra.Command, args []string, defOut string, reconstruct, doMerge bool) error {
	req := pipeline.Request{
		Input:       argOr(args, 0, "trace.json"),
		Output:      argOr(args, 1, defOut),
		Reconstruct: reconstruct,
		Merge:       doMerge,
		Tracer:      tracer.Options{SingleTrack: cfg.Reconstruct.SingleTrack},
		Merger:      merge.Options{Style: cfg.MergeStyle()},
		Save:        traceio.SaveOptions{Layout: cfg.OutputLayout(), Indent: cfg.Output.Indent},
	}
	logger.Debug("transform",
		zap.String("input", req.Input),
		zap.String("output", req.Output),
		zap.Bool("reconstruct", reconstruct),
		zap.Bool("merge", doMerge),
	)

	sum, err := pipeline.Run(cmd.Context(), req)
	if err != nil {
		return err
	}
	logSummary(sum)
	fmt.Fprintln(cmd.OutOrStdout(), sum.String())
	return nil
}

func logSummary(sum *pipeline.Summary) {
	if st := sum.Tracer; st != nil {
		logger.Info("reconstructed span identity",
			zap.Int("spans", st.Spans),
			zap.Int("tracks", st.Tracks),
			zap.Int("max_depth", st.MaxDepth),
		)
		if st.UnmatchedEnds > 0 {
			logger.Warn("end events without an open span", zap.Int("count", st.UnmatchedEnds))
		}
		if st.OpenSpans > 0 {
			logger.Warn("spans never closed", zap.Int("count", st.OpenSpans), zap.Int64s("ids", sum.Unclosed))
		}
	}
	if st := sum.Merge; st != nil {
		logger.Info("merged duplicate spans",
			zap.Int("groups", st.Merged),
			zap.Int("skipped", st.Skipped),
			zap.Int("superseded", st.Superseded),
		)
		for _, g := range sum.Groups {
			fields := []zap.Field{
				zap.String("name", g.Name),
				zap.String("key", g.Fingerprint),
				zap.Int64("pid", g.PID),
				zap.Int64("tid", g.TID),
				zap.Int("size", g.Size),
			}
			if g.Outcome == merge.OutcomeNotAlternating {
				logger.Warn("group does not alternate begin/end, left as is", fields...)
				continue
			}
			logger.Debug("group merged", fields...)
		}
	}
}
