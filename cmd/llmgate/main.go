package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/amerfu/llmgate/cmd/llmgate/commands"
	"github.com/amerfu/llmgate/internal/database"
)

var (
	dbURL      string
	dbName     string
	outputJSON bool
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "llmgate",
		Short: "llmgate management CLI",
		Long: `Manage llmgate tenants, keys, and model prices with direct store access.
Reads STORE_URI and STORE_DB from the environment when flags are not given.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initStore()
		},
	}

	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "store URL (default $STORE_URI)")
	rootCmd.PersistentFlags().StringVar(&dbName, "db-name", "", "database name (default $STORE_DB)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")

	rootCmd.AddCommand(commands.NewAccountCommand())
	rootCmd.AddCommand(commands.NewKeyCommand())
	rootCmd.AddCommand(commands.NewPriceCommand())
	rootCmd.AddCommand(commands.NewSeedCommand())

	return rootCmd
}

func initStore() error {
	_ = godotenv.Load()

	uri := dbURL
	if uri == "" {
		uri = os.Getenv("STORE_URI")
	}
	if uri == "" {
		return fmt.Errorf("no store configured: pass --db-url or set STORE_URI")
	}
	name := dbName
	if name == "" {
		name = os.Getenv("STORE_DB")
	}

	db, err := gorm.Open(postgres.Open(database.ApplyDatabase(uri, name)), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to store: %w", err)
	}

	commands.SetDB(db)
	commands.SetOutputJSON(outputJSON)
	return nil
}
