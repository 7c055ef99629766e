package commands

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ticket_ledger/internal/service/app"
)

// watch <name>: interactive inbox of the party's incoming messages.
func watchCmd() *cobra.Command {
	var secretFile string
	cmd := &cobra.Command{
		Use:   "watch <name>",
		Short: "Watch incoming messages, opening and proof-checking each locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			party, secret, err := app.EnsureParty(ctx, client, args[0], secretFile)
			if err != nil {
				return err
			}

			a := app.NewApp(client, party, secret)
			go func() {
				<-ctx.Done()
				a.Stop()
			}()
			return a.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&secretFile, "secret-file", "", "file holding the party secret (created if missing)")
	_ = cmd.MarkFlagRequired("secret-file")
	return cmd
}
