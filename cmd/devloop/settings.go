package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"devloop/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change settings",
	Long: `Settings live in settings.yaml under the data directory. The daemon
re-reads them every poll cycle, so changes (including pause) take effect
without a restart.

Keys:
  model              Agent model name
  poll               Poll interval in seconds
  pause              true/false: pause the daemon without stopping it
  max_test_retries   Test failure retries before giving up
  spawn_fix_request  true/false: queue a bug_fix request on fatal errors
  commit             true/false: default commit policy
  doc_retention      Days to keep archived phase transcripts`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print current settings as YAML",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		out, err := yaml.Marshal(config.Get())
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Change one setting",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigSet(_ *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	var apply func(*config.Settings) error
	switch key {
	case "model":
		apply = func(s *config.Settings) error { s.Model = value; return nil }
	case "poll":
		apply = func(s *config.Settings) error {
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("poll must be an integer: %w", err)
			}
			s.PollIntervalSecs = n
			return nil
		}
	case "pause":
		apply = func(s *config.Settings) error {
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("pause must be true or false: %w", err)
			}
			s.Paused = b
			return nil
		}
	case "max_test_retries":
		apply = func(s *config.Settings) error {
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("max_test_retries must be an integer: %w", err)
			}
			s.MaxTestRetries = n
			return nil
		}
	case "spawn_fix_request":
		apply = func(s *config.Settings) error {
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("spawn_fix_request must be true or false: %w", err)
			}
			s.SpawnFixRequest = b
			return nil
		}
	case "commit":
		apply = func(s *config.Settings) error {
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("commit must be true or false: %w", err)
			}
			s.CommitEnabled = b
			return nil
		}
	case "doc_retention":
		apply = func(s *config.Settings) error {
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("doc_retention must be an integer: %w", err)
			}
			s.DocRetentionDays = n
			return nil
		}
	default:
		return fmt.Errorf("unknown setting %q (see 'devloop config --help')", key)
	}

	var applyErr error
	err := config.Update(func(s *config.Settings) {
		applyErr = apply(s)
	})
	if applyErr != nil {
		return applyErr
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s = %s\n", key, value)
	return nil
}
