package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/spanfix/internal/inspect"
	"github.com/ppiankov/spanfix/internal/traceio"
	"github.com/ppiankov/spanfix/internal/tracediff"
)

var diffFormat string

func init() {
	rootCmd.AddCommand(diffCmd)
	diffCmd.Flags().StringVarP(&diffFormat, "format", "f", "text", "Output format (text|json)")
}

var diffCmd = &cobra.Command{
	Use:   "diff <old.json> <new.json>",
	Short: "Compare the span identity reports of two traces",
	Long:  "Analyzes two trace files and shows what changed: event and phase counts,\nid coverage, shared ids, duplicate groups, span names added or removed.",
	Args:  cobra.ExactArgs(2),
	RunE:  runDiff,
}

func runDiff(cmd *cobra.Command, args []string) error {
	oldDoc, err := traceio.Load(args[0])
	if err != nil {
		return fmt.Errorf("load old trace: %w", err)
	}

	newDoc, err := traceio.Load(args[1])
	if err != nil {
		return fmt.Errorf("load new trace: %w", err)
	}

	result := tracediff.Diff(inspect.Analyze(oldDoc.Events), inspect.Analyze(newDoc.Events))
	result.OldPath = args[0]
	result.NewPath = args[1]

	switch diffFormat {
	case "json":
		out, err := tracediff.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
	default:
		fmt.Fprint(cmd.OutOrStdout(), tracediff.FormatText(result))
	}

	return nil
}
