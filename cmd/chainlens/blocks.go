package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chainLens/internal/apperr"
	"chainLens/internal/blocktime"
)

// run builds the app, wires signal cancellation and calls fn.
func run(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, a)
}

func addBlockQueryFlags(cmd *cobra.Command) {
	cmd.Flags().String("block", "", "block height (wins over --date)")
	cmd.Flags().String("date", "", "date as unix seconds, RFC3339 or YYYY-MM-DD")
}

func blockQuery(cmd *cobra.Command) (blocktime.Query, error) {
	var q blocktime.Query
	if raw, _ := cmd.Flags().GetString("block"); raw != "" {
		height, err := blocktime.ParseBlockNumber(raw)
		if err != nil {
			return q, err
		}
		q.BlockHeight = &height
	}
	if raw, _ := cmd.Flags().GetString("date"); raw != "" {
		date, err := blocktime.ParseDate(raw)
		if err != nil {
			return q, err
		}
		q.Date = &date
	}
	return q, nil
}

func newBlockAtCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "block-at <network> <date>",
		Short: "Resolve the first block at or after a date",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := blocktime.ParseDate(args[1])
			if err != nil {
				return err
			}
			return run(cmd, func(ctx context.Context, a *app) error {
				rd, release, err := a.reader(ctx, args[0])
				if err != nil {
					return err
				}
				defer release()
				number, err := a.resolver.BlockAt(ctx, rd, date)
				if err != nil {
					return err
				}
				a.logger.Debug("block resolved", zap.String("network", args[0]), zap.Time("date", date), zap.Uint64("block", number))
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"network_name": args[0],
					"date":         date.Format(blocktime.ISO8601),
					"block_height": number,
				})
			})
		},
	}
	return cmd
}

func newBlockTimeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "block-time <network> <block>",
		Short: "Print the timestamp and date of a block",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			number, err := blocktime.ParseBlockNumber(args[1])
			if err != nil {
				return err
			}
			return run(cmd, func(ctx context.Context, a *app) error {
				rd, release, err := a.reader(ctx, args[0])
				if err != nil {
					return err
				}
				defer release()
				ts, err := a.resolver.BlockTimestamp(ctx, rd, number)
				if err != nil {
					return err
				}
				date, err := a.resolver.BlockDate(ctx, rd, number)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"network_name": args[0],
					"block_height": number,
					"timestamp":    ts,
					"date":         date,
				})
			})
		},
	}
}

func newFinalBlockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "final-block <network>",
		Short: "Resolve --block, --date or the chain head to a block height",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := blockQuery(cmd)
			if err != nil {
				return err
			}
			return run(cmd, func(ctx context.Context, a *app) error {
				rd, release, err := a.reader(ctx, args[0])
				if err != nil {
					return err
				}
				defer release()
				number, err := a.resolver.FinalBlockNumber(ctx, rd, q)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"network_name": args[0],
					"block_height": number,
				})
			})
		},
	}
	addBlockQueryFlags(cmd)
	return cmd
}

func newBlocksBetweenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blocks-between <network> <start> <end>",
		Short: "Resolve the inclusive block range between two dates",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := blocktime.ParseDate(args[1])
			if err != nil {
				return err
			}
			end, err := blocktime.ParseDate(args[2])
			if err != nil {
				return err
			}
			batch, _ := cmd.Flags().GetUint64("batch")
			return run(cmd, func(ctx context.Context, a *app) error {
				rd, release, err := a.reader(ctx, args[0])
				if err != nil {
					return err
				}
				defer release()
				blocks, err := a.resolver.BlocksBetween(ctx, rd, start, end)
				if err != nil {
					return err
				}
				out := map[string]any{
					"network_name": args[0],
					"from":         blocks.From,
					"to":           blocks.To,
					"count":        blocks.Len(),
				}
				if batch > 0 {
					batches, err := blocks.Split(batch)
					if err != nil {
						return apperr.Validationf("split range: %v", err)
					}
					out["batches"] = batches
				}
				return writeJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().Uint64("batch", 0, "also split the range into batches of this many blocks")
	return cmd
}
