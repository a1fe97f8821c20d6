package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/spanfix/internal/config"
	"github.com/ppiankov/spanfix/internal/logging"
)

var (
	configPath  string
	logLevel    string
	singleTrack bool
	mergeStyle  string
)

// Populated by loadSettings before any subcommand runs.
var (
	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "spanfix",
	Short: "Repair span identity in Chrome trace files",
	Long: "Reconstructs id/parentId for Begin/End events whose producer emitted a shared or missing id,\n" +
		"and merges spans that were recorded several times by duplicated instrumentation.",
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ~/.spanfix/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&singleTrack, "single-track", false, "Nest all events on one stack regardless of pid/tid")
	rootCmd.PersistentFlags().StringVar(&mergeStyle, "merge-style", "", "Merged span shape (collapse|pair|complete)")
}

// loadSettings reads the config file and lets flags override it.
func loadSettings(cmd *cobra.Command, args []string) error {
	c, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
	if singleTrack {
		c.Reconstruct.SingleTrack = true
	}
	if mergeStyle != "" {
		c.Merge.Style = mergeStyle
	}
	if err := c.Validate(); err != nil {
		return err
	}

	l, err := logging.New(c.Log.Level, c.Log.Format)
	if err != nil {
		return err
	}
	cfg = c
	logger = l
	return nil
}

// argOr returns args[i] when present, else def.
func argOr(args []string, i int, def string) string {
	if i < len(args) && args[i] != "" {
		return args[i]
	}
	return def
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
