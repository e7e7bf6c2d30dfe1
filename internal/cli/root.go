// Package cli implements the meetscribe command line.
package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/meetscribe/internal/config"
)

// rootOptions are shared by every subcommand. cfg is set before RunE.
type rootOptions struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

// NewRootCommand returns the meetscribe command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "meetscribe",
		Short: "Record meetings and keep a live summary",
		Long: `meetscribe records a meeting from a microphone, transcribes it in
small segments and keeps a running summary, themes, insights, questions
and action items up to date. The finished meeting is saved to the
configured store.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.Log.Level = opts.logLevel
			}
			setupLogging(cmd.ErrOrStderr(), cfg.Log.Level)
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ./"+config.DefaultFile+" when present)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")

	cmd.AddCommand(
		newRecordCommand(opts),
		newServeCommand(opts),
		newDevicesCommand(),
		newAuthCommand(opts),
		newVersionCommand(),
	)
	return cmd
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	if err := NewRootCommand().Execute(); err != nil {
		return 1
	}
	return 0
}

func setupLogging(w io.Writer, level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})))
}
