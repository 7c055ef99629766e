package commands

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"ticket_ledger/internal/cryptographic/dh"
	"ticket_ledger/internal/cryptographic/signature"
	"ticket_ledger/internal/service/app"
)

// keygen: create a party secret, or with --signer a commitment signing seed.
func keygenCmd() *cobra.Command {
	var (
		out    string
		signer bool
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a party secret or a gateway signing seed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()

			if signer {
				pub, priv, err := signature.NewEd25519Keypair()
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "SIGNING_SEED=%s\n", hex.EncodeToString(priv[:32]))
				fmt.Fprintf(w, "signer key:  %s\n", hex.EncodeToString(pub))
				return nil
			}

			secret, publicID, err := dh.NewParty()
			if err != nil {
				return err
			}
			if out != "" {
				if err := app.SaveSecret(out, secret); err != nil {
					return err
				}
				fmt.Fprintf(w, "secret written to %s\n", out)
			} else {
				fmt.Fprintf(w, "secret:    %s\n", hex.EncodeToString(secret))
			}
			fmt.Fprintf(w, "public id: %s\n", publicID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the secret to this file instead of stdout")
	cmd.Flags().BoolVar(&signer, "signer", false, "generate an ed25519 seed for SIGNING_SEED")
	return cmd
}
