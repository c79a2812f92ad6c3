package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/amerfu/llmgate/internal/database"
	"github.com/amerfu/llmgate/internal/models"
)

// NewSeedCommand migrates the store and loads the default price table plus a
// demo tenant.
func NewSeedCommand() *cobra.Command {
	var pricesOnly bool

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Migrate the store and seed default data",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := requireDB()
			if err != nil {
				return err
			}

			if err := conn.AutoMigrate(
				&models.Account{},
				&models.Key{},
				&models.ModelPrice{},
				&models.UsageLog{},
			); err != nil {
				return fmt.Errorf("failed to migrate store: %w", err)
			}

			seeder := database.NewSeeder(conn)
			if pricesOnly {
				return seeder.SeedPrices()
			}
			return seeder.SeedAll()
		},
	}

	cmd.Flags().BoolVar(&pricesOnly, "prices-only", false, "seed only the price table")

	return cmd
}
