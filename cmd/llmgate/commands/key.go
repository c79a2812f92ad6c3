package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/amerfu/llmgate/internal/services/key"
)

// NewKeyCommand manages bearer keys.
func NewKeyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage bearer keys",
	}

	cmd.AddCommand(newKeyCreateCommand())
	cmd.AddCommand(newKeyListCommand())
	cmd.AddCommand(newKeyDisableCommand())

	return cmd
}

func newKeyCreateCommand() *cobra.Command {
	var name string
	var allowedModels []string

	cmd := &cobra.Command{
		Use:   "create USER_ID",
		Short: "Create a key for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := requireDB()
			if err != nil {
				return err
			}
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			svc := key.NewService(conn, cliLogger())
			created, err := svc.Create(cmd.Context(), key.CreateKeyRequest{
				UserID:        args[0],
				KeyName:       name,
				AllowedModels: allowedModels,
			})
			if err != nil {
				return err
			}

			printResult(created, func() {
				fmt.Printf("Created key %s for %s: %s\n", created.KeyName, created.UserID, created.Key)
			})
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "key name (required)")
	cmd.Flags().StringSliceVar(&allowedModels, "allowed-models", nil, "restrict the key to these models")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newKeyListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list USER_ID",
		Short: "List an account's keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := requireDB()
			if err != nil {
				return err
			}

			svc := key.NewService(conn, cliLogger())
			keys, err := svc.ListByUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			printResult(keys, func() {
				for _, k := range keys {
					state := "active"
					if !k.IsActive {
						state = "disabled"
					}
					fmt.Printf("%-20s  %s  %s\n", k.KeyName, k.Key, state)
				}
				fmt.Printf("%d key(s)\n", len(keys))
			})
			return nil
		},
	}
}

func newKeyDisableCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disable KEY",
		Short: "Disable a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := requireDB()
			if err != nil {
				return err
			}

			inactive := false
			svc := key.NewService(conn, cliLogger())
			updated, err := svc.Update(cmd.Context(), args[0], key.UpdateKeyRequest{
				IsActive: &inactive,
			})
			if err != nil {
				return err
			}

			printResult(updated, func() {
				fmt.Printf("Disabled key %s (%s)\n", updated.KeyName, updated.UserID)
			})
			return nil
		},
	}
}
