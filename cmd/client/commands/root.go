package commands

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"ticket_ledger/internal/config"
	"ticket_ledger/internal/service/app"
	"ticket_ledger/internal/utils/log"
)

var (
	serverURL string
	timeout   time.Duration
	debug     bool

	client *app.Client
)

func Execute() error {
	root := &cobra.Command{
		Use:           "ledger",
		Short:         "Client for the verifiable ticket message ledger",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if serverURL == "" {
				serverURL = cfg.LedgerURL
			}
			if debug {
				if err := log.Init("debug", true); err != nil {
					return err
				}
			}

			client, err = app.NewClient(serverURL, &http.Client{Timeout: timeout})
			return err
		},
	}

	root.PersistentFlags().StringVar(&serverURL, "server", "", "gateway base URL (default $LEDGER_URL)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "HTTP request timeout")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "log to stderr")

	root.AddCommand(
		keygenCmd(),
		partyCmd(),
		appendCmd(),
		chainCmd(),
		commitmentRootCmd(),
		stateCmd(),
		proofCmd(),
		verifyCmd(),
		openCmd(),
		watchCmd(),
	)
	return root.Execute()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
