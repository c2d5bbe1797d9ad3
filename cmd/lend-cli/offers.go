package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"foxylend/services/lending/client"
	"foxylend/services/lending/server"
)

func parseOfferID(raw string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 16)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("invalid offer id %q", raw)
	}
	return uint16(v), nil
}

type pageFlags struct {
	page  uint64
	limit uint64
}

func (p *pageFlags) bind(cmd *cobra.Command) {
	cmd.Flags().Uint64Var(&p.page, "page", 1, "page number")
	cmd.Flags().Uint64Var(&p.limit, "limit", 20, "page size")
}

func newOffersCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "offers",
		Short: "Query lending offers",
	}

	list := &pageFlags{}
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all offers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOffers(cmd, opts, func(ctx context.Context, c *client.Client) ([]server.OfferView, error) {
				return c.Offers(ctx, list.page, list.limit)
			})
		},
	}
	list.bind(listCmd)

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a single offer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseOfferID(args[0])
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			offer, err := c.Offer(ctx, id)
			if err != nil {
				return err
			}
			if opts.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), offer)
			}
			return printOffer(cmd.OutOrStdout(), offer)
		},
	}

	owner := &pageFlags{}
	ownerCmd := &cobra.Command{
		Use:   "by-owner <address>",
		Short: "List offers posted by a lender",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOffers(cmd, opts, func(ctx context.Context, c *client.Client) ([]server.OfferView, error) {
				return c.OffersByOwner(ctx, args[0], owner.page, owner.limit)
			})
		},
	}
	owner.bind(ownerCmd)

	borrower := &pageFlags{}
	borrowerCmd := &cobra.Command{
		Use:   "by-borrower <address>",
		Short: "List loans taken by a borrower",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOffers(cmd, opts, func(ctx context.Context, c *client.Client) ([]server.OfferView, error) {
				return c.OffersByBorrower(ctx, args[0], borrower.page, borrower.limit)
			})
		},
	}
	borrower.bind(borrowerCmd)

	price := &pageFlags{}
	var order string
	priceCmd := &cobra.Command{
		Use:   "by-price <threshold>",
		Short: "List offers whose amount exceeds a threshold",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOffers(cmd, opts, func(ctx context.Context, c *client.Client) ([]server.OfferView, error) {
				return c.OffersByPrice(ctx, args[0], order, price.page, price.limit)
			})
		},
	}
	price.bind(priceCmd)
	priceCmd.Flags().StringVar(&order, "order", "asc", "sort order (asc|desc)")

	cmd.AddCommand(listCmd, getCmd, ownerCmd, borrowerCmd, priceCmd)
	return cmd
}

func runOffers(cmd *cobra.Command, opts *globalOptions, fetch func(context.Context, *client.Client) ([]server.OfferView, error)) error {
	c, err := opts.client()
	if err != nil {
		return err
	}
	ctx, cancel := opts.context(cmd)
	defer cancel()
	offers, err := fetch(ctx, c)
	if err != nil {
		return err
	}
	if opts.jsonOutput() {
		return writeJSON(cmd.OutOrStdout(), offers)
	}
	return printOffers(cmd.OutOrStdout(), offers)
}

// coinFlags attaches funds to a mutation. When --denom is empty the service
// denom is looked up from the params endpoint.
type coinFlags struct {
	amount string
	denom  string
}

func (f *coinFlags) bind(cmd *cobra.Command, usage string) {
	cmd.Flags().StringVar(&f.amount, "funds", "", usage)
	cmd.Flags().StringVar(&f.denom, "denom", "", "denom of the attached funds (defaults to the service denom)")
}

func (f *coinFlags) coins(ctx context.Context, c *client.Client) ([]server.Coin, error) {
	amount := strings.TrimSpace(f.amount)
	if amount == "" {
		return nil, nil
	}
	denom := strings.TrimSpace(f.denom)
	if denom == "" {
		params, err := c.Params(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve denom: %w", err)
		}
		denom = params.Denom
	}
	return []server.Coin{{Denom: denom, Amount: amount}}, nil
}

func runMutation(cmd *cobra.Command, opts *globalOptions, call func(context.Context, *client.Client) (*server.ResultView, error)) error {
	c, err := opts.client()
	if err != nil {
		return err
	}
	ctx, cancel := opts.context(cmd)
	defer cancel()
	res, err := call(ctx, c)
	if err != nil {
		return err
	}
	if opts.jsonOutput() {
		return writeJSON(cmd.OutOrStdout(), res)
	}
	return printResult(cmd.OutOrStdout(), res)
}

func newLendCmd(opts *globalOptions) *cobra.Command {
	var collection uint16
	funds := &coinFlags{}
	cmd := &cobra.Command{
		Use:   "lend <amount>",
		Short: "Post an offer against a collection",
		Long:  "Posts an offer and attaches <amount> of the service denom unless --funds overrides it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount := strings.TrimSpace(args[0])
			if funds.amount == "" {
				funds.amount = amount
			}
			return runMutation(cmd, opts, func(ctx context.Context, c *client.Client) (*server.ResultView, error) {
				coins, err := funds.coins(ctx, c)
				if err != nil {
					return nil, err
				}
				return c.Lend(ctx, server.LendRequest{Amount: amount, CollectionID: collection, Funds: coins})
			})
		},
	}
	cmd.Flags().Uint16Var(&collection, "collection", 0, "collection id")
	funds.bind(cmd, "attached amount (defaults to <amount>)")
	_ = cmd.MarkFlagRequired("collection")
	return cmd
}

func newCancelCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <offer-id>",
		Short: "Withdraw an open offer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseOfferID(args[0])
			if err != nil {
				return err
			}
			return runMutation(cmd, opts, func(ctx context.Context, c *client.Client) (*server.ResultView, error) {
				return c.Cancel(ctx, id)
			})
		},
	}
}

func newBorrowCmd(opts *globalOptions) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "borrow <offer-id>",
		Short: "Accept an offer by pledging an NFT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseOfferID(args[0])
			if err != nil {
				return err
			}
			return runMutation(cmd, opts, func(ctx context.Context, c *client.Client) (*server.ResultView, error) {
				return c.Borrow(ctx, id, server.BorrowRequest{TokenID: token})
			})
		},
	}
	cmd.Flags().StringVar(&token, "token-id", "", "NFT token id to pledge")
	_ = cmd.MarkFlagRequired("token-id")
	return cmd
}

func newRepayCmd(opts *globalOptions) *cobra.Command {
	funds := &coinFlags{}
	cmd := &cobra.Command{
		Use:   "repay <offer-id>",
		Short: "Repay a loan",
		Long:  "Repays a loan. Without --funds the amount due is taken from a fresh quote, which goes stale once the next second starts accruing.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseOfferID(args[0])
			if err != nil {
				return err
			}
			return runMutation(cmd, opts, func(ctx context.Context, c *client.Client) (*server.ResultView, error) {
				if funds.amount == "" {
					quote, err := c.Quote(ctx, id)
					if err != nil {
						return nil, fmt.Errorf("quote offer %d: %w", id, err)
					}
					if !quote.Overdue {
						funds.amount = quote.Due
					}
				}
				coins, err := funds.coins(ctx, c)
				if err != nil {
					return nil, err
				}
				return c.Repay(ctx, id, server.FundsRequest{Funds: coins})
			})
		},
	}
	funds.bind(cmd, "attached amount (defaults to the quoted amount due)")
	return cmd
}

func newQuoteCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "quote <offer-id>",
		Short: "Show what repaying a loan costs right now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseOfferID(args[0])
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			quote, err := c.Quote(ctx, id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOutput() {
				return writeJSON(out, quote)
			}
			fmt.Fprintf(out, "Offer    : %d\n", quote.OfferID)
			fmt.Fprintf(out, "Reward   : %s\n", formatAmount(quote.Reward))
			fmt.Fprintf(out, "Due      : %s\n", formatAmount(quote.Due))
			deadline := time.Unix(int64(quote.Deadline), 0)
			fmt.Fprintf(out, "Deadline : %s (%s)\n", deadline.UTC().Format(time.RFC3339), formatStart(quote.Deadline))
			if quote.Overdue {
				fmt.Fprintln(out, "Overdue  : repaying now forfeits the collateral to the lender")
			}
			return nil
		},
	}
}

func newStatsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count open offers and active loans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			stats, err := c.Stats(ctx)
			if err != nil {
				return err
			}
			if opts.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), stats)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Open offers  : %d\nActive loans : %d\n", stats.Open, stats.Active)
			return nil
		},
	}
}
