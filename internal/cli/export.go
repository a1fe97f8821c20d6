package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/spanfix/internal/pipeline"
	"github.com/ppiankov/spanfix/internal/tracer"
)

func init() {
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export [input] [database]",
	Short: "Write the reconstructed span tree to SQLite",
	Long:  "Assigns span ids like `ids` and stores one row per span in a spans table.\nDefaults: trace.json -> trace.db",
	Args:  cobra.MaximumNArgs(2),
	RunE:  runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	in := argOr(args, 0, "trace.json")
	db := argOr(args, 1, "trace.db")

	sum, err := pipeline.Export(cmd.Context(), in, db, tracer.Options{SingleTrack: cfg.Reconstruct.SingleTrack})
	if err != nil {
		return err
	}
	logger.Info("exported spans", zap.String("db", db), zap.Int("spans", sum.Spans))
	if sum.Tracer != nil && sum.Tracer.OpenSpans > 0 {
		logger.Warn("spans never closed", zap.Int("count", sum.Tracer.OpenSpans))
	}
	fmt.Fprintln(cmd.OutOrStdout(), sum.String())
	return nil
}
