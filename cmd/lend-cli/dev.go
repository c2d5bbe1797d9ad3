package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"foxylend/crypto"
	"foxylend/services/lending/server"
)

func newTokenCmd() *cobra.Command {
	var (
		secret   string
		issuer   string
		audience string
		seed     string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token [address]",
		Short: "Mint a bearer token for a development deployment",
		Long: `Signs an HS256 token whose subject is the given address. The secret must
match auth.hmac_secret of the target lendingd. Use --seed to derive a fixture
address instead of passing one.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var caller crypto.Address
			switch {
			case len(args) == 1:
				addr, err := crypto.DecodeAddress(strings.TrimSpace(args[0]))
				if err != nil {
					return fmt.Errorf("decode address: %w", err)
				}
				caller = addr
			case seed != "":
				caller = crypto.AddressFromSeed(seed)
			default:
				return errors.New("address argument or --seed required")
			}
			token, err := server.IssueToken(server.AuthConfig{
				HMACSecret: secret,
				Issuer:     issuer,
				Audience:   audience,
			}, caller, ttl, time.Now())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("LENDINGD_AUTH_HMAC_SECRET"), "HMAC secret shared with lendingd")
	cmd.Flags().StringVar(&issuer, "issuer", "", "token issuer")
	cmd.Flags().StringVar(&audience, "audience", "", "token audience")
	cmd.Flags().StringVar(&seed, "seed", "", "derive the subject from a fixture seed")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func newKeygenCmd() *cobra.Command {
	var keyFile string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a participant key and print its address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := crypto.GeneratePrivateKey()
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			out := cmd.OutOrStdout()
			if keyFile != "" {
				if err := os.WriteFile(keyFile, []byte(hex.EncodeToString(key.Bytes())), 0o600); err != nil {
					return fmt.Errorf("write key: %w", err)
				}
				fmt.Fprintf(out, "Key written to %s\n", keyFile)
			}
			_, err = fmt.Fprintf(out, "Address: %s\n", key.Address().String())
			return err
		},
	}
	cmd.Flags().StringVar(&keyFile, "key-file", "", "write the hex private key to this file")
	return cmd
}
