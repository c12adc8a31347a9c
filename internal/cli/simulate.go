package cli

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rafaeljc/decider/internal/decider"
)

// noVariant labels contexts that received no variant.
const noVariant = "(none)"

// Distribution counts the variants assigned to a batch of synthetic identifiers.
type Distribution struct {
	Total  int
	Counts map[string]int
	// Errors counts contexts the feature could not be decided for.
	Errors int
}

// Simulate decides feature for n synthetic identifiers written to field.
// A non-empty seed makes the identifiers, and therefore the result, reproducible.
func Simulate(d *decider.Decider, feature string, base map[string]any, field string, n int, seed string) (Distribution, error) {
	dist := Distribution{Counts: make(map[string]int)}

	for i := range n {
		fields := maps.Clone(base)
		if fields == nil {
			fields = make(map[string]any)
		}
		fields[field] = syntheticID(seed, i)

		decision, err := d.Choose(feature, fields)
		if err != nil {
			var notFound *decider.FeatureNotFoundError
			if errors.As(err, &notFound) {
				return Distribution{}, err
			}
			dist.Errors++
			continue
		}

		variant := decision.Variant
		if variant == "" {
			variant = noVariant
		}
		dist.Counts[variant]++
		dist.Total++
	}
	return dist, nil
}

func syntheticID(seed string, i int) string {
	if seed == "" {
		return uuid.NewString()
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed+"/"+strconv.Itoa(i))).String()
}

// Render draws the distribution as a table sorted by variant name.
func (d Distribution) Render() string {
	rows := make([][]string, 0, len(d.Counts))
	for _, variant := range slices.Sorted(maps.Keys(d.Counts)) {
		count := d.Counts[variant]
		share := 0.0
		if d.Total > 0 {
			share = 100 * float64(count) / float64(d.Total)
		}
		rows = append(rows, []string{variant, strconv.Itoa(count), fmt.Sprintf("%.2f%%", share)})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("VARIANT", "COUNT", "SHARE").
		Rows(rows...)

	return t.Render()
}

func newSimulateCmd(a *app) *cobra.Command {
	var (
		ctxFlags contextFlags
		field    string
		n        int
		seed     string
	)

	cmd := &cobra.Command{
		Use:   "simulate <feature>",
		Short: "Show how an experiment splits a population of synthetic identifiers",
		Example: `  decider simulate genexp_0 -n 100000
  decider simulate genexp_device_id --field device_id --seed ci`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if n <= 0 {
				return fmt.Errorf("-n must be positive, got %d", n)
			}
			base, err := ctxFlags.fields(cmd.InOrStdin())
			if err != nil {
				return err
			}
			d, err := a.loadLocal()
			if err != nil {
				return err
			}

			dist, err := Simulate(d, args[0], base, field, n, seed)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, dist.Render())
			if dist.Errors > 0 {
				fmt.Fprintf(out, "%d contexts could not be decided\n", dist.Errors)
			}
			return nil
		},
	}

	ctxFlags.register(cmd)
	cmd.Flags().StringVar(&field, "field", "user_id", "context field receiving the synthetic identifier")
	cmd.Flags().IntVarP(&n, "count", "n", 10000, "number of synthetic identifiers")
	cmd.Flags().StringVar(&seed, "seed", "", "derive identifiers from this seed for reproducible output")
	return cmd
}
