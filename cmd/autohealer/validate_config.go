package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wp-autohealer/engine/internal/config"
)

func newValidateConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config",
		Short: "Load configuration and report whether it is valid",
		Long:  "Loads the closed configuration set from the environment (and --config file, if given), runs struct validation, and prints the sanitized result. Exits non-zero on any validation error.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("configuration invalid: %w", err)
			}

			sanitized := config.NewDefaultConfigSanitizer().Sanitize(cfg)
			out, err := json.MarshalIndent(sanitized, "", "  ")
			if err != nil {
				return fmt.Errorf("rendering sanitized config: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
