package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BVSokolov/udemy-prostore/migrations"
	"github.com/BVSokolov/udemy-prostore/pkg/database"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if list {
				names, err := database.PendingMigrations(migrations.FS, migrations.Dir)
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}

			opts.noCache = true
			e, err := connect(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := database.RunMigrations(cmd.Context(), e.pool, migrations.FS, migrations.Dir, e.logger); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "print the migration files in order without connecting")
	return cmd
}
