// Command autohealer is the operational entry point for the WordPress
// incident remediation engine: a small cobra tree wiring config, logging,
// and every core collaborator together.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	serviceName    = "autohealer"
	serviceVersion = "0.1.0"
)

var configFile string

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:     serviceName,
		Short:   "WordPress incident remediation engine",
		Long:    "autohealer drives WordPress incidents through discovery, backup, tiered fix attempts, verification, and rollback to a terminal FIXED or ESCALATED outcome.",
		Version: serviceVersion,
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML config file (env vars always apply; a config file is optional)")

	root.AddCommand(newServeCommand())
	root.AddCommand(newValidateConfigCommand())
	root.AddCommand(newDryRunCommand())

	return root
}
