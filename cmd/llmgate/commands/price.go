package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/amerfu/llmgate/internal/services/pricing"
)

// NewPriceCommand manages the model price table.
func NewPriceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Manage model prices (USD per million tokens)",
	}

	cmd.AddCommand(newPriceSetCommand())
	cmd.AddCommand(newPriceListCommand())
	cmd.AddCommand(newPriceDeleteCommand())

	return cmd
}

func newPriceSetCommand() *cobra.Command {
	var provider string
	var input, output, cacheRead, cacheWrite float64

	cmd := &cobra.Command{
		Use:   "set MODEL_NAME",
		Short: "Create or replace a model's rate card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := requireDB()
			if err != nil {
				return err
			}

			svc := pricing.NewService(conn, cliLogger())
			price, created, err := svc.Upsert(cmd.Context(), &pricing.UpsertPriceRequest{
				ModelName:      args[0],
				Provider:       provider,
				InputRate:      input,
				OutputRate:     output,
				CacheReadRate:  cacheRead,
				CacheWriteRate: cacheWrite,
			})
			if err != nil {
				return err
			}

			printResult(price, func() {
				verb := "Updated"
				if created {
					verb = "Created"
				}
				fmt.Printf("%s price for %s: in $%.4f out $%.4f cache-read $%.4f cache-write $%.4f\n",
					verb, price.ModelName, price.InputRate, price.OutputRate,
					price.CacheReadRate, price.CacheWriteRate)
			})
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "upstream provider name")
	cmd.Flags().Float64Var(&input, "input", 0, "input rate, USD per million tokens")
	cmd.Flags().Float64Var(&output, "output", 0, "output rate, USD per million tokens")
	cmd.Flags().Float64Var(&cacheRead, "cache-read", 0, "cache read rate, USD per million tokens")
	cmd.Flags().Float64Var(&cacheWrite, "cache-write", 0, "cache write rate, USD per million tokens")

	return cmd
}

func newPriceListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all model prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := requireDB()
			if err != nil {
				return err
			}

			svc := pricing.NewService(conn, cliLogger())
			prices, err := svc.List(cmd.Context())
			if err != nil {
				return err
			}

			printResult(prices, func() {
				for _, p := range prices {
					fmt.Printf("%-32s %-10s in $%.4f  out $%.4f  cr $%.4f  cw $%.4f\n",
						p.ModelName, p.Provider, p.InputRate, p.OutputRate,
						p.CacheReadRate, p.CacheWriteRate)
				}
				fmt.Printf("%d price(s)\n", len(prices))
			})
			return nil
		},
	}
}

func newPriceDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete MODEL_NAME",
		Short: "Delete a model's rate card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := requireDB()
			if err != nil {
				return err
			}

			svc := pricing.NewService(conn, cliLogger())
			if err := svc.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted price for %s\n", args[0])
			return nil
		},
	}
}
