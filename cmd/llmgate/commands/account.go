package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/amerfu/llmgate/internal/models"
	"github.com/amerfu/llmgate/internal/services/account"
)

// NewAccountCommand manages tenant accounts.
func NewAccountCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage tenant accounts",
	}

	cmd.AddCommand(newAccountCreateCommand())
	cmd.AddCommand(newAccountListCommand())
	cmd.AddCommand(newAccountGetCommand())
	cmd.AddCommand(newAccountUpdateCommand())

	return cmd
}

func newAccountCreateCommand() *cobra.Command {
	var name, period string
	var budget float64

	cmd := &cobra.Command{
		Use:   "create USER_ID",
		Short: "Create a tenant account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := requireDB()
			if err != nil {
				return err
			}
			if period != "" && !models.ValidBudgetPeriod(models.BudgetPeriod(period)) {
				return fmt.Errorf("invalid budget period %q", period)
			}

			svc := account.NewService(conn, cliLogger())
			created, err := svc.Create(cmd.Context(), account.CreateAccountRequest{
				UserID:       args[0],
				AccountName:  name,
				BudgetUSD:    budget,
				BudgetPeriod: models.BudgetPeriod(period),
			})
			if err != nil {
				return err
			}

			printResult(created, func() {
				fmt.Printf("Created account %s (budget $%.2f, period %s)\n",
					created.UserID, created.BudgetUSD, created.BudgetPeriod)
			})
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().Float64Var(&budget, "budget", 0, "budget in USD")
	cmd.Flags().StringVar(&period, "period", "total", "budget period (daily, weekly, monthly, total)")

	return cmd
}

func newAccountListCommand() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tenant accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := requireDB()
			if err != nil {
				return err
			}

			svc := account.NewService(conn, cliLogger())
			accounts, err := svc.List(cmd.Context(), offset, limit)
			if err != nil {
				return err
			}

			printResult(accounts, func() {
				for _, a := range accounts {
					state := "active"
					if !a.IsActive {
						state = "disabled"
					}
					fmt.Printf("%-24s  spent $%.6f of $%.2f  %s\n",
						a.UserID, a.SpentUSD, a.BudgetUSD, state)
				}
				fmt.Printf("%d account(s)\n", len(accounts))
			})
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "limit number of results")
	cmd.Flags().IntVar(&offset, "offset", 0, "offset for pagination")

	return cmd
}

func newAccountGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get USER_ID",
		Short: "Show one account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := requireDB()
			if err != nil {
				return err
			}

			svc := account.NewService(conn, cliLogger())
			acct, err := svc.GetByUserID(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			printResult(acct, func() {
				fmt.Printf("User ID:    %s\n", acct.UserID)
				fmt.Printf("Name:       %s\n", acct.AccountName)
				fmt.Printf("Budget:     $%.2f (%s)\n", acct.BudgetUSD, acct.BudgetPeriod)
				fmt.Printf("Spent:      $%.6f\n", acct.SpentUSD)
				fmt.Printf("Remaining:  $%.6f\n", acct.RemainingBudget())
				fmt.Printf("Active:     %v\n", acct.IsActive)
				fmt.Printf("OverBudget: %v\n", acct.IsOverBudget())
			})
			return nil
		},
	}
}

func newAccountUpdateCommand() *cobra.Command {
	var name, period string
	var budget float64
	var activate, deactivate bool

	cmd := &cobra.Command{
		Use:   "update USER_ID",
		Short: "Update an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := requireDB()
			if err != nil {
				return err
			}
			if activate && deactivate {
				return fmt.Errorf("--activate and --deactivate are mutually exclusive")
			}

			req := account.UpdateAccountRequest{}
			if cmd.Flags().Changed("name") {
				req.AccountName = &name
			}
			if cmd.Flags().Changed("budget") {
				req.BudgetUSD = &budget
			}
			if cmd.Flags().Changed("period") {
				p := models.BudgetPeriod(period)
				if !models.ValidBudgetPeriod(p) {
					return fmt.Errorf("invalid budget period %q", period)
				}
				req.BudgetPeriod = &p
			}
			if activate || deactivate {
				req.IsActive = &activate
			}
			if req.Empty() {
				return fmt.Errorf("nothing to update")
			}

			svc := account.NewService(conn, cliLogger())
			updated, err := svc.Update(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}

			printResult(updated, func() {
				fmt.Printf("Updated account %s\n", updated.UserID)
			})
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().Float64Var(&budget, "budget", 0, "budget in USD")
	cmd.Flags().StringVar(&period, "period", "", "budget period (daily, weekly, monthly, total)")
	cmd.Flags().BoolVar(&activate, "activate", false, "activate the account")
	cmd.Flags().BoolVar(&deactivate, "deactivate", false, "deactivate the account")

	return cmd
}
