package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"foxylend/services/lending/client"
)

const defaultURL = "http://127.0.0.1:8446"

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	url      string
	token    string
	timeout  time.Duration
	output   string
	insecure bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "lend-cli",
		Short:         "Operate the NFT lending service",
		Long:          "lend-cli talks to a lendingd instance over HTTP. Mutations need a bearer token from --token or LEND_TOKEN.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.url, "url", envOr("LEND_URL", defaultURL), "lendingd base URL")
	flags.StringVar(&opts.token, "token", os.Getenv("LEND_TOKEN"), "bearer token for mutations")
	flags.DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")
	flags.StringVarP(&opts.output, "output", "o", "text", "output format (text|json)")
	flags.BoolVar(&opts.insecure, "insecure", false, "skip TLS verification (development only)")

	root.AddCommand(
		newOffersCmd(opts),
		newLendCmd(opts),
		newCancelCmd(opts),
		newBorrowCmd(opts),
		newRepayCmd(opts),
		newQuoteCmd(opts),
		newStatsCmd(opts),
		newParamsCmd(opts),
		newCollectionsCmd(opts),
		newAdminCmd(opts),
		newTokenCmd(),
		newKeygenCmd(),
	)
	return root
}

func (o *globalOptions) client() (*client.Client, error) {
	return client.New(client.Config{
		BaseURL:       o.url,
		BearerToken:   o.token,
		Timeout:       o.timeout,
		AllowInsecure: o.insecure,
	})
}

func (o *globalOptions) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}

func (o *globalOptions) jsonOutput() bool {
	return strings.EqualFold(o.output, "json")
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
