package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chainLens/internal/apperr"
	"chainLens/internal/blocktime"
	"chainLens/internal/config"
	"chainLens/internal/storage"
)

func newPriceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "price <network>",
		Short: "Quote one unit of a network's native currency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := blockQuery(cmd)
			if err != nil {
				return err
			}
			code, _ := cmd.Flags().GetString("currency")
			return run(cmd, func(ctx context.Context, a *app) error {
				quote, err := a.quotes.NativePrice(ctx, args[0], q, code)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), quote)
			})
		},
	}
	addBlockQueryFlags(cmd)
	cmd.Flags().String("currency", "USD", "fiat currency code")
	return cmd
}

func newPricesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prices",
		Short: "Quote several networks concurrently",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Heights differ per chain; only a date selects the same moment everywhere.
			var q blocktime.Query
			date, _ := cmd.Flags().GetString("date")
			if date != "" {
				t, err := blocktime.ParseDate(date)
				if err != nil {
					return err
				}
				q.Date = &t
			}
			code, _ := cmd.Flags().GetString("currency")
			rawNetworks, _ := cmd.Flags().GetString("networks")
			out, _ := cmd.Flags().GetString("out")

			return run(cmd, func(ctx context.Context, a *app) error {
				names := config.SplitList(rawNetworks)
				if len(names) == 0 {
					names = a.pricedNetworks()
				}
				if len(names) == 0 {
					return apperr.Validationf("no networks to quote")
				}
				quotes, err := a.quotes.NativePrices(ctx, names, q, code)
				if err != nil {
					return err
				}
				if out == "" {
					return writeJSON(cmd.OutOrStdout(), quotes)
				}
				sink := storage.NewJsonlStorage(out)
				if err := sink.PutQuotes(quotes); err != nil {
					return err
				}
				a.logger.Info("quotes written",
					zap.Int("count", len(quotes)),
					zap.String("date", date),
					zap.String("out", sink.Path()),
				)
				return nil
			})
		},
	}
	cmd.Flags().String("networks", "", "comma-separated networks (defaults to every priced network)")
	cmd.Flags().String("date", "", "date as unix seconds, RFC3339 or YYYY-MM-DD (defaults to each chain head)")
	cmd.Flags().String("currency", "USD", "fiat currency code")
	cmd.Flags().String("out", "", "append quotes to this JSONL file instead of printing them")
	return cmd
}

// pricedNetworks lists the networks that configure a pricing pool.
func (a *app) pricedNetworks() []string {
	var names []string
	for _, desc := range a.registry.All() {
		if desc.NativeCurrencyToUSDPool != nil || desc.NativeCurrencyToETHPool != nil {
			names = append(names, desc.NetworkID)
		}
	}
	return names
}
