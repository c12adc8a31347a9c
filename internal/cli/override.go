package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/rafaeljc/decider/internal/decider"
	"github.com/rafaeljc/decider/internal/logger"
	"github.com/rafaeljc/decider/internal/overrides"
)

// connectRedis opens the override source. Redis and override settings are
// validated here because config.Load only checks them when overrides are enabled.
func (a *app) connectRedis(cmd *cobra.Command) (*redis.Client, *overrides.RedisSource, error) {
	if err := a.cfg.Redis.Validate(a.cfg.App.Environment); err != nil {
		return nil, nil, fmt.Errorf("redis config: %w", err)
	}
	client, err := overrides.NewRedisClient(cmd.Context(), &a.cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	return client, overrides.NewRedisSource(client, a.cfg.Overrides.KeyPrefix, logger.FromContext(cmd.Context())), nil
}

// parseOverride builds an Override from the --variant and --value flags.
func parseOverride(variant, value string) (decider.Override, error) {
	o := decider.Override{Variant: variant}
	if value != "" {
		dec := json.NewDecoder(bytes.NewReader([]byte(value)))
		dec.UseNumber()
		if err := dec.Decode(&o.Value); err != nil {
			return decider.Override{}, fmt.Errorf("--value must be JSON: %w", err)
		}
		o.HasValue = true
	}
	if o.Variant == "" && !o.HasValue {
		return decider.Override{}, errors.New("one of --variant or --value is required")
	}
	return o, nil
}

func newOverrideCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "override",
		Short: "Manage out-of-band overrides stored in Redis",
		Long: `Overrides force a variant or a dynamic config value for a single identifier.
Running services pick changes up on their next override sync.`,
	}

	cmd.AddCommand(newOverrideSetCmd(a), newOverrideDeleteCmd(a))
	return cmd
}

func newOverrideSetCmd(a *app) *cobra.Command {
	var variant, value string

	cmd := &cobra.Command{
		Use:   "set <feature> <identifier>",
		Short: "Force a variant or value for one identifier",
		Example: `  decider override set genexp_0 t2_1 --variant variant_2
  decider override set dc_theme t2_1 --value '"dark"'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := parseOverride(variant, value)
			if err != nil {
				return err
			}

			client, src, err := a.connectRedis(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := src.Put(cmd.Context(), args[0], args[1], o); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "override stored for %s/%s\n", args[0], args[1])
			return nil
		},
	}

	cmd.Flags().StringVar(&variant, "variant", "", "variant to force (experiments)")
	cmd.Flags().StringVar(&value, "value", "", "JSON value to force (dynamic configs)")
	return cmd
}

func newOverrideDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <feature> <identifier>",
		Short: "Remove the override of one identifier",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, src, err := a.connectRedis(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := src.Delete(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "override removed for %s/%s\n", args[0], args[1])
			return nil
		},
	}
}
