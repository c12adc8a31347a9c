package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rafaeljc/decider/internal/decider"
)

// ErrPartialDocument is returned by strict validation when features failed to load.
var ErrPartialDocument = errors.New("feature document loaded partially")

// checkDocument loads body and renders a report to w. Partial loads fail only when strict.
func checkDocument(w io.Writer, body []byte, strict bool) (*decider.Decider, error) {
	d, err := decider.NewFromBytes(body, decider.WithLogger(discardLogger()))
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(w, "features loaded: %d\n", len(d.Features()))

	pe := d.LoadErrors()
	if pe == nil {
		return d, nil
	}

	fmt.Fprintf(w, "features failed: %d\n", len(pe.Failures))
	for _, name := range pe.Failures.Names() {
		fmt.Fprintf(w, "  %s: %s\n", name, pe.Failures[name])
	}
	if strict {
		return nil, fmt.Errorf("%w: %d features failed", ErrPartialDocument, len(pe.Failures))
	}
	return d, nil
}

func newValidateCmd(a *app) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate [path]",
		Short: "Load a feature document and report features that fail to load",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.documentPath()
			if len(args) == 1 {
				path = args[0]
			}

			body, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read feature document: %w", err)
			}

			_, err = checkDocument(cmd.OutOrStdout(), body, strict)
			return err
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "fail when any feature fails to load")
	return cmd
}
