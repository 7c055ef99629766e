package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ticket_ledger/internal/cryptographic/hash"
	"ticket_ledger/internal/ledger/merkle"
	"ticket_ledger/internal/service/app"
)

// append <ticket>: post a document; ticket "new" opens a fresh ticket.
func appendCmd() *cobra.Command {
	var (
		messageType string
		docPath     string
		parent      string
		recipients  []string
	)
	cmd := &cobra.Command{
		Use:   "append <ticket>",
		Short: "Append an ISO 20022 document to a ticket (\"new\" opens one)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(cmd, docPath)
			if err != nil {
				return err
			}

			req := app.AppendRequest{
				MessageType: messageType,
				Document:    doc,
				Recipients:  recipients,
			}
			if parent != "" {
				req.ParentID = &parent
			}

			m, err := client.Append(commandContext(cmd), args[0], req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), m)
		},
	}
	cmd.Flags().StringVarP(&messageType, "type", "t", "", "message schema, e.g. pain.001.001.12")
	cmd.Flags().StringVarP(&docPath, "doc", "d", "-", "JSON document file, - for stdin")
	cmd.Flags().StringVar(&parent, "parent", "", "id of the parent message (omit for the root)")
	cmd.Flags().StringSliceVar(&recipients, "to", nil, "recipient party names")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func readDocument(cmd *cobra.Command, path string) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%s is not valid JSON", path)
	}
	return data, nil
}

func chainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chain <ticket>",
		Short: "Print a ticket's messages in chain order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			messages, err := client.Chain(commandContext(cmd), args[0])
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tPARENT\tTYPE\tDIGEST\tVERIFICATION")
			for _, m := range messages {
				parent := "-"
				if m.ParentID != nil {
					parent = *m.ParentID
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", m.ID, parent, m.MessageType, m.Digest, m.Verification)
			}
			return tw.Flush()
		},
	}
}

func commitmentRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "root <ticket>",
		Short: "Compute and print the ticket's current Merkle root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.Root(commandContext(cmd), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), c)
		},
	}
}

func stateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state <ticket>",
		Short: "Print the ticket state and last committed root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := client.State(commandContext(cmd), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}
}

func proofCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "proof <ticket> <digest>",
		Short: "Fetch the inclusion proof of a digest",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			digest, err := hash.Parse(args[1])
			if err != nil {
				return err
			}
			p, err := client.Proof(commandContext(cmd), args[0], digest)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	}
}

// verify <ticket> <digest>: check the proof locally, then let the gateway
// record the outcome on the message.
func verifyCmd() *cobra.Command {
	var rootHex string
	cmd := &cobra.Command{
		Use:   "verify <ticket> <digest>",
		Short: "Verify a digest's inclusion, optionally against an anchored root",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)

			digest, err := hash.Parse(args[1])
			if err != nil {
				return err
			}
			var anchored *hash.Hash
			if rootHex != "" {
				r, err := hash.Parse(rootHex)
				if err != nil {
					return err
				}
				anchored = &r
			}

			p, err := client.Proof(ctx, args[0], digest)
			if err != nil {
				return err
			}
			checked := p.Root
			if anchored != nil {
				checked = *anchored
			}
			local := merkle.Verify(checked, digest, p.Siblings)

			res, err := client.Verify(ctx, args[0], digest, p.Siblings, anchored)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "root:          %s\n", checked)
			fmt.Fprintf(w, "local check:   %t\n", local)
			fmt.Fprintf(w, "gateway check: %t\n", res.Valid)
			if res.RootMismatch {
				fmt.Fprintf(w, "warning: gateway root %s differs from the anchored root\n", res.LocalRoot)
			}
			if local != res.Valid {
				return fmt.Errorf("gateway verdict disagrees with the local check")
			}
			if !local {
				return fmt.Errorf("digest %s is not included under %s", digest, checked)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&rootHex, "root", "", "externally anchored root to check against")
	return cmd
}

// open <ticket> <id>: decrypt with a local secret and check inclusion.
func openCmd() *cobra.Command {
	var (
		secretFile string
		rootHex    string
	)
	cmd := &cobra.Command{
		Use:   "open <ticket> <id>",
		Short: "Decrypt a message with a local secret and check its proof",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := app.LoadSecret(secretFile)
			if err != nil {
				return err
			}
			var anchored *hash.Hash
			if rootHex != "" {
				r, err := hash.Parse(rootHex)
				if err != nil {
					return err
				}
				anchored = &r
			}

			r, err := app.Inspect(commandContext(cmd), client, secret, args[0], args[1], anchored)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "schema:   %s\n", r.Schema)
			fmt.Fprintf(w, "digest:   %s\n", r.Message.Digest)
			fmt.Fprintf(w, "included: %t (root %s)\n", r.Included, r.CheckedRoot)
			var doc any
			if err := json.Unmarshal(r.Document, &doc); err != nil {
				return err
			}
			return printJSON(w, doc)
		},
	}
	cmd.Flags().StringVar(&secretFile, "secret-file", "", "file holding the party secret")
	cmd.Flags().StringVar(&rootHex, "root", "", "externally anchored root to check against")
	_ = cmd.MarkFlagRequired("secret-file")
	return cmd
}
