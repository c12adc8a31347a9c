// Package cli implements the decider command line: local decisions against a
// feature document, document validation and publishing, override management
// and the long-running serve command.
package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rafaeljc/decider/internal/config"
	"github.com/rafaeljc/decider/internal/decider"
	"github.com/rafaeljc/decider/internal/logger"
)

// app carries state shared by every command. It is filled in by the root
// command's PersistentPreRunE before any subcommand runs.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	// file overrides cfg.Source.Path for commands reading a local document.
	file string
}

// NewRootCmd builds the decider command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "decider",
		Short: "Deterministic feature decisions: experiments, holdouts and dynamic configs",
		Long: `decider evaluates feature documents locally and runs the decider service.

Configuration is read from DECIDER_* environment variables. Commands that read
a local document use --file, falling back to DECIDER_SOURCE_PATH.`,
		Version:       decider.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logger.NewWithWriter(&cfg.App, cmd.ErrOrStderr())
			ctx := logger.WithContext(cmd.Context(), a.logger)
			cmd.SetContext(logger.With(ctx, slog.String("command", cmd.Name())))
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&a.file, "file", "f", "", "feature document path (default $DECIDER_SOURCE_PATH)")

	root.AddCommand(
		newChooseCmd(a),
		newValuesCmd(a),
		newValidateCmd(a),
		newSimulateCmd(a),
		newPublishCmd(a),
		newVersionsCmd(a),
		newMigrateCmd(a),
		newOverrideCmd(a),
		newServeCmd(a),
	)

	return root
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// documentPath resolves the local feature document for this invocation.
func (a *app) documentPath() string {
	if a.file != "" {
		return a.file
	}
	return a.cfg.Source.Path
}

// loadLocal builds a Decider from the local document. Partial loads are
// logged by the Decider and otherwise tolerated.
func (a *app) loadLocal() (*decider.Decider, error) {
	return decider.NewFromFile(a.documentPath(), decider.WithLogger(a.logger))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
