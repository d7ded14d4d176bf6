package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bannerdesk/banner-service/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending postgres migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if cfg.Database.Driver != "postgres" {
		return errors.New("migrate requires database.driver=postgres")
	}
	ctx := context.Background()

	pool, err := database.Connect(ctx, cfg.Database.Pool())
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := database.ApplyMigrations(ctx, pool)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
		return nil
	}
	for _, name := range applied {
		fmt.Fprintln(cmd.OutOrStdout(), "Applied", name)
	}
	return nil
}
