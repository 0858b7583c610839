package main

import (
	"encoding/json"
	"fmt"

	"github.com/nvandessel/impairsim/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect impairsim configuration",
		Long: `View the effective configuration after defaults, the config file and
IMPAIRSIM_* environment variables are applied.

Examples:
  impairsim config list                  # Show all settings
  impairsim config get impairment.mode   # Get a specific setting
  impairsim config validate              # Check the configuration`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigValidateCmd(),
	)

	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return json.NewEncoder(out).Encode(cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			_, err = out.Write(data)
			return err
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			key := args[0]
			value, found := getConfigValue(cfg, key)
			if !found {
				return usagef("unknown configuration key: %s", key)
			}

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"key":   key,
					"value": value,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, value)
			return nil
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return &usageError{err: err}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration OK")
			return nil
		},
	}
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (any, bool) {
	switch key {
	case "impairment.mode":
		return cfg.Impairment.Mode, true
	case "impairment.lag_ms":
		return cfg.Impairment.LagMS, true
	case "impairment.sigma_ms":
		return cfg.Impairment.SigmaMS, true
	case "impairment.drop_p":
		return cfg.Impairment.DropP, true
	case "impairment.seed":
		if cfg.Impairment.Seed == nil {
			return "(auto)", true
		}
		return *cfg.Impairment.Seed, true
	case "loader.missing_timestamp":
		return cfg.Loader.MissingTimestamp, true
	case "dispatch.tracker_cmd":
		return cfg.Dispatch.TrackerCmd, true
	case "dispatch.no_wait":
		return cfg.Dispatch.NoWait, true
	case "ledger.dir":
		return cfg.Ledger.Dir, true
	case "metrics.textfile_path":
		return cfg.Metrics.TextfilePath, true
	case "logging.level":
		return cfg.Logging.Level, true
	case "logging.decision_trace":
		return cfg.Logging.DecisionTrace, true
	default:
		return nil, false
	}
}
