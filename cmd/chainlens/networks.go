package main

import (
	"github.com/spf13/cobra"

	"chainLens/internal/config"
)

type networkSummary struct {
	NetworkID    string `json:"network_id"`
	ChainID      uint64 `json:"chain_id"`
	NativeSymbol string `json:"native_symbol,omitempty"`
	PoolType     string `json:"pool_type"`
	PricedVia    string `json:"priced_via,omitempty"`
	PricingPool  string `json:"pricing_pool,omitempty"`
	USDC         string `json:"usdc,omitempty"`
	USDT         string `json:"usdt,omitempty"`
	Explorer     string `json:"explorer,omitempty"`
}

func newNetworksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "networks",
		Short: "List the network registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgFile, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			registry, err := loadRegistry(cfg)
			if err != nil {
				return err
			}

			out := make([]networkSummary, 0, len(registry.Names()))
			for _, desc := range registry.All() {
				summary := networkSummary{
					NetworkID:    desc.NetworkID,
					ChainID:      desc.ChainID,
					NativeSymbol: desc.NativeSymbol,
					PoolType:     string(desc.PoolType),
					Explorer:     desc.BlockExplorerBaseURL,
				}
				switch {
				case desc.NativeCurrencyToUSDPool != nil:
					summary.PricedVia = "usd"
					summary.PricingPool = desc.NativeCurrencyToUSDPool.Hex()
				case desc.NativeCurrencyToETHPool != nil:
					summary.PricedVia = "eth"
					summary.PricingPool = desc.NativeCurrencyToETHPool.Hex()
				}
				if usdc, ok := registry.USDCAddress(desc.NetworkID); ok {
					summary.USDC = usdc.Hex()
				}
				if usdt, ok := registry.USDTAddress(desc.NetworkID); ok {
					summary.USDT = usdt.Hex()
				}
				out = append(out, summary)
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}
