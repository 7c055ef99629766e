package commands

import (
	"github.com/spf13/cobra"

	"ticket_ledger/internal/service/app"
)

func partyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "party",
		Short: "Manage parties known to the gateway",
	}
	cmd.AddCommand(partyCreateCmd(), partyShowCmd(), partyMessagesCmd())
	return cmd
}

// party create <name>: register a party. With --secret-file the local
// secret is used (and generated if the file is missing); otherwise the
// gateway mints one and prints it once.
func partyCreateCmd() *cobra.Command {
	var secretFile string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Register a party",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)

			if secretFile != "" {
				p, _, err := app.EnsureParty(ctx, client, args[0], secretFile)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), p)
			}

			p, err := client.CreateParty(ctx, args[0], "")
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	}
	cmd.Flags().StringVar(&secretFile, "secret-file", "", "register with the secret in this file")
	return cmd
}

func partyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show a party's public id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := client.GetParty(commandContext(cmd), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	}
}

func partyMessagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "messages <name>",
		Short: "List sealed messages naming a party, grouped by ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tickets, err := client.PartyMessages(commandContext(cmd), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), tickets)
		},
	}
}
