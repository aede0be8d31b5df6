package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/database"
)

type migrateFlags struct {
	version uint
	force   int
}

func newMigrateCmd() *cobra.Command {
	var flags migrateFlags

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the canonical store's schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, flags)
		},
	}

	cmd.Flags().UintVar(&flags.version, "version", 0, "Migrate to this version instead of the latest")
	cmd.Flags().IntVar(&flags.force, "force", 0, "Force the schema version before migrating (clears a dirty state)")

	return cmd
}

func runMigrate(cmd *cobra.Command, flags migrateFlags) error {
	ctx := cmd.Context()

	return withApp(ctx, func(a *app) error {
		if err := a.openDB(ctx); err != nil {
			return err
		}

		migration := a.cfg.Migration()
		if cmd.Flags().Changed("version") {
			migration.Version = flags.version
		}
		if cmd.Flags().Changed("force") {
			migration.Force = flags.force
		}

		if err := database.NewMigrationService(a.logger, migration).MigratePostgres(a.db, a.cfg.DatabaseName); err != nil {
			return fmt.Errorf("migrating %s: %w", a.cfg.DatabaseName, err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
		return nil
	})
}
