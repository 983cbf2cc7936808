package main

import (
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"chainLens/internal/apperr"
	"chainLens/internal/currency"
)

// The currency table is static, so these commands skip building the app.
func newCurrencyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "currency",
		Short: "Fiat currency table and conversions",
	}

	convertCmd := &cobra.Command{
		Use:   "convert <amount> <from> <to>",
		Short: "Convert an amount between two currencies",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[0])
			if err != nil {
				return apperr.Validationf("invalid amount %q", args[0])
			}
			c := currency.NewConverter()
			converted, err := c.Convert(amount, args[1], args[2])
			if err != nil {
				return err
			}
			to, err := c.Lookup(args[2])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"amount": amount.String(),
				"from":   args[1],
				"to":     to.Code,
				"result": to.Symbol + converted.StringFixed(2),
				"exact":  converted.String(),
			})
		},
	}

	infoCmd := &cobra.Command{
		Use:   "info [code]",
		Short: "Show one currency, or the whole table",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := currency.NewConverter()
			if len(args) == 1 {
				rate, err := c.Lookup(args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), rate)
			}
			rates := make([]currency.Rate, 0, len(c.Codes()))
			for _, code := range c.Codes() {
				rate, err := c.Lookup(code)
				if err != nil {
					return err
				}
				rates = append(rates, rate)
			}
			return writeJSON(cmd.OutOrStdout(), rates)
		},
	}

	cmd.AddCommand(convertCmd, infoCmd)
	return cmd
}
