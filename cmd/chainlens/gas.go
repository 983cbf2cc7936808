package main

import (
	"context"

	"github.com/spf13/cobra"

	"chainLens/internal/quote"
)

func newGasCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gas <network>",
		Short: "Quote current gas fees, priced in fiat where possible",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := blockQuery(cmd)
			if err != nil {
				return err
			}
			eventType, _ := cmd.Flags().GetString("type")
			gasLimit, _ := cmd.Flags().GetUint64("gas-limit")
			code, _ := cmd.Flags().GetString("currency")
			return run(cmd, func(ctx context.Context, a *app) error {
				out, err := a.quotes.GasPrice(ctx, args[0], quote.GasQuery{
					EventType: eventType,
					GasLimit:  gasLimit,
					Block:     q,
					Currency:  code,
				})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	addBlockQueryFlags(cmd)
	cmd.Flags().String("type", "", "event type: native_transfer, erc20_transfer or swap")
	cmd.Flags().Uint64("gas-limit", 0, "explicit gas units, overrides --type")
	cmd.Flags().String("currency", "USD", "fiat currency code")
	return cmd
}
