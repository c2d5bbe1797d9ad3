package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"foxylend/services/lending/client"
	"foxylend/services/lending/server"
)

func parseCollectionID(raw string) (uint16, error) {
	v, err := strconv.ParseUint(raw, 10, 16)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("invalid collection id %q", raw)
	}
	return uint16(v), nil
}

func newParamsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "params",
		Short: "Show protocol parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			params, err := c.Params(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOutput() {
				return writeJSON(out, params)
			}
			fmt.Fprintf(out, "Admin          : %s\n", params.Admin)
			fmt.Fprintf(out, "Custodian      : %s\n", params.Custodian)
			fmt.Fprintf(out, "Denom          : %s\n", params.Denom)
			fmt.Fprintf(out, "Interest split : %d%% owner / %d%% admin\n", params.InterestSplit, 100-params.InterestSplit)
			return nil
		},
	}
}

func newCollectionsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collections",
		Short: "Query NFT collections accepted as collateral",
	}

	page := &pageFlags{}
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			collections, err := c.Collections(ctx, page.page, page.limit)
			if err != nil {
				return err
			}
			if opts.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), collections)
			}
			return printCollections(cmd.OutOrStdout(), collections)
		},
	}
	page.bind(listCmd)

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCollectionID(args[0])
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			collection, err := c.Collection(ctx, id)
			if err != nil {
				return err
			}
			if opts.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), collection)
			}
			return printCollections(cmd.OutOrStdout(), []server.CollectionView{*collection})
		},
	}

	cmd.AddCommand(listCmd, getCmd)
	return cmd
}

func newAdminCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative operations (admin token required)",
	}

	var req server.CollectionRequest
	upsertCmd := &cobra.Command{
		Use:   "upsert-collection",
		Short: "Register or replace a collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMutation(cmd, opts, func(ctx context.Context, c *client.Client) (*server.ResultView, error) {
				return c.UpsertCollection(ctx, req)
			})
		},
	}
	upsertCmd.Flags().Uint16Var(&req.ID, "id", 0, "collection id")
	upsertCmd.Flags().StringVar(&req.Name, "name", "", "display name")
	upsertCmd.Flags().StringVar(&req.FloorPrice, "floor-price", "", "minimum offer amount")
	upsertCmd.Flags().Uint16Var(&req.APY, "apy", 0, "annual percentage yield")
	upsertCmd.Flags().Uint64Var(&req.MaxTime, "max-time", 0, "loan duration in seconds")
	upsertCmd.Flags().StringVar(&req.Contract, "contract", "", "NFT contract address")
	for _, name := range []string{"id", "name", "floor-price", "apy", "max-time", "contract"} {
		_ = upsertCmd.MarkFlagRequired(name)
	}

	floorCmd := &cobra.Command{
		Use:   "floor-price <collection-id> <price>",
		Short: "Change a collection's floor price",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCollectionID(args[0])
			if err != nil {
				return err
			}
			return runMutation(cmd, opts, func(ctx context.Context, c *client.Client) (*server.ResultView, error) {
				return c.UpdateFloorPrice(ctx, id, args[1])
			})
		},
	}

	setAdminCmd := &cobra.Command{
		Use:   "set-admin <address>",
		Short: "Hand the admin role to another address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMutation(cmd, opts, func(ctx context.Context, c *client.Client) (*server.ResultView, error) {
				return c.UpdateAdmin(ctx, args[0])
			})
		},
	}

	splitCmd := &cobra.Command{
		Use:   "interest-split <percent>",
		Short: "Set the lender's share of the reward",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			split, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid interest split %q", args[0])
			}
			return runMutation(cmd, opts, func(ctx context.Context, c *client.Client) (*server.ResultView, error) {
				return c.UpdateInterestSplit(ctx, split)
			})
		},
	}

	var status string
	var limit uint64
	outboxCmd := &cobra.Command{
		Use:   "outbox",
		Short: "List pending or failed transfer instructions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			jobs, err := c.OutboxJobs(ctx, status, limit)
			if err != nil {
				return err
			}
			if opts.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), jobs)
			}
			return printJobs(cmd.OutOrStdout(), jobs)
		},
	}
	outboxCmd.Flags().StringVar(&status, "status", "", "filter by status (staged|pending|done|failed)")
	outboxCmd.Flags().Uint64Var(&limit, "limit", 50, "maximum jobs to list")

	cmd.AddCommand(upsertCmd, floorCmd, setAdminCmd, splitCmd, outboxCmd)
	return cmd
}
