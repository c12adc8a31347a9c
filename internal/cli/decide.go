package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// contextFlags reads the request context from --context or --context-file.
type contextFlags struct {
	inline string
	file   string
}

func (c *contextFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&c.inline, "context", "c", "", `request context as a JSON object, e.g. '{"user_id": "t2_1"}'`)
	cmd.Flags().StringVar(&c.file, "context-file", "", "read the request context from a JSON file ('-' for stdin)")
	cmd.MarkFlagsMutuallyExclusive("context", "context-file")
}

// fields returns the decoded context. Without either flag it is an empty object.
func (c *contextFlags) fields(stdin io.Reader) (map[string]any, error) {
	var raw []byte
	switch {
	case c.inline != "":
		raw = []byte(c.inline)
	case c.file == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read context from stdin: %w", err)
		}
		raw = b
	case c.file != "":
		b, err := os.ReadFile(c.file)
		if err != nil {
			return nil, fmt.Errorf("failed to read context file: %w", err)
		}
		raw = b
	default:
		return map[string]any{}, nil
	}

	// Numbers stay json.Number so large integer identifiers keep every digit.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("context must be a JSON object: %w", err)
	}
	if fields == nil {
		return nil, fmt.Errorf("context must be a JSON object, got null")
	}
	return fields, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newChooseCmd(a *app) *cobra.Command {
	var (
		ctxFlags       contextFlags
		bucketingField string
	)

	cmd := &cobra.Command{
		Use:   "choose [feature]",
		Short: "Decide one feature, or every experiment when no feature is named",
		Example: `  decider choose genexp_0 -c '{"user_id": "795244"}'
  decider choose -c '{"user_id": "795244"}' --bucketing-field user_id`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := ctxFlags.fields(cmd.InOrStdin())
			if err != nil {
				return err
			}
			d, err := a.loadLocal()
			if err != nil {
				return err
			}

			if len(args) == 1 {
				decision, err := d.Choose(args[0], fields)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), decision)
			}

			decisions, err := d.ChooseAll(fields, bucketingField)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), decisions)
		},
	}

	ctxFlags.register(cmd)
	cmd.Flags().StringVar(&bucketingField, "bucketing-field", "", "only decide experiments bucketed on this field")
	return cmd
}

func newValuesCmd(a *app) *cobra.Command {
	var ctxFlags contextFlags

	cmd := &cobra.Command{
		Use:   "values",
		Short: "Resolve every dynamic config for a context",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fields, err := ctxFlags.fields(cmd.InOrStdin())
			if err != nil {
				return err
			}
			d, err := a.loadLocal()
			if err != nil {
				return err
			}

			values, err := d.AllValues(fields)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), values)
		},
	}

	ctxFlags.register(cmd)
	return cmd
}
