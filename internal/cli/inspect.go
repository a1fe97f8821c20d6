package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/spanfix/internal/inspect"
	"github.com/ppiankov/spanfix/internal/traceio"
)

var (
	inspectFormat string
	inspectVerify bool
)

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVarP(&inspectFormat, "format", "f", "text", "Output format (text|json)")
	inspectCmd.Flags().BoolVar(&inspectVerify, "verify", false, "Check span identity and exit 1 on violations")
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [input]",
	Short: "Report phases and span identity of a trace",
	Long:  "Counts events per phase, ids and parent ids, and duplicate span groups.\nWith --verify, checks that ids are unique and parents are open on the same track.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	path := argOr(args, 0, "trace.json")
	doc, err := traceio.Load(path)
	if err != nil {
		return err
	}

	report := inspect.Analyze(doc.Events)
	switch inspectFormat {
	case "json":
		out, err := inspect.FormatJSON(report)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
	default:
		fmt.Fprint(cmd.OutOrStdout(), inspect.FormatText(path, report))
	}

	if !inspectVerify {
		return nil
	}
	if err := inspect.Verify(doc.Events, inspect.Options{SingleTrack: cfg.Reconstruct.SingleTrack}); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "verify: %v\n", err)
		return fmt.Errorf("%s: span identity check failed", path)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "verify: ok")
	return nil
}
