// Package main provides the entry point for the pugna reconciliation CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0-dev"
	configFile string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	rootCmd := &cobra.Command{
		Use:           "pugna",
		Short:         "Identity resolution and fight-history reconciliation for combat-sport records",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default ./pugna.yaml if present)")

	rootCmd.AddCommand(
		newMigrateCmd(),
		newReconcileCmd(),
		newConsumeCmd(),
		newReviewCmd(),
		newContestChangedCmd(),
		newMergeDuplicatesCmd(),
	)

	return rootCmd.ExecuteContext(ctx)
}
