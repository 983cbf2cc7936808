// Package pricing derives USD prices of native currencies from on-chain AMM pools.
package pricing

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"chainLens/internal/apperr"
	"chainLens/internal/chain"
	"chainLens/internal/dex"
	"chainLens/internal/metrics"
	"chainLens/internal/networks"
)

// WeiPerNative is 10^18, the wei in one unit of native currency.
var WeiPerNative = decimal.New(1, 18)

// DescriptorSource is the registry lookup the oracle needs.
type DescriptorSource interface {
	Descriptor(name string) (networks.Descriptor, error)
}

// ReaderSource leases a chain reader per network; *chain.Pool satisfies it.
// The returned func releases the lease.
type ReaderSource interface {
	Reader(ctx context.Context, network string, opts chain.Options) (chain.Reader, func(), error)
}

// Oracle reads native-currency prices.
type Oracle struct {
	registry  DescriptorSource
	providers ReaderSource
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// New creates an oracle. logger and m may be nil.
func New(registry DescriptorSource, providers ReaderSource, logger *zap.Logger, m *metrics.Metrics) *Oracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Oracle{registry: registry, providers: providers, logger: logger, metrics: m}
}

// PriceFromPool reads pool with the layout of desc.PoolType and post-processes
// the result. With a block it first reads pinned state, then falls back once
// to latest state; the returned Quote reports which one served.
func (o *Oracle) PriceFromPool(ctx context.Context, rd chain.Reader, pool common.Address, desc networks.Descriptor, block *uint64) (dex.Quote, error) {
	extractor, err := dex.ExtractorFor(desc.PoolType)
	if err != nil {
		return dex.Quote{}, err
	}
	poolType := string(desc.PoolType)

	pinned := block != nil
	var raw decimal.Decimal
	if pinned {
		o.metrics.PriceReads.WithLabelValues(poolType, "pinned").Inc()
		raw, err = dex.ReadRawPrice(ctx, rd, pool, extractor, new(big.Int).SetUint64(*block))
		if err != nil {
			if ctx.Err() != nil {
				return dex.Quote{}, ctx.Err()
			}
			transient := apperr.TransientRPCf("pool %s at block %d: %v", pool.Hex(), *block, err)
			o.logger.Warn("pinned pool read failed, retrying at latest",
				zap.String("network", desc.NetworkID),
				zap.String("pool", pool.Hex()),
				zap.Uint64("block", *block),
				zap.Error(transient),
			)
			o.metrics.PriceFallback.WithLabelValues(poolType).Inc()
			pinned = false
		}
	}
	if !pinned {
		o.metrics.PriceReads.WithLabelValues(poolType, "latest").Inc()
		raw, err = dex.ReadRawPrice(ctx, rd, pool, extractor, nil)
		if err != nil {
			return dex.Quote{}, apperr.NotFoundf("failed to fetch price for pool %s: %v", pool.Hex(), err)
		}
	}

	price, err := PostProcess(raw, desc.PoolInversed, desc.PoolScale)
	if err != nil {
		return dex.Quote{}, apperr.NotFoundf("price for pool %s: %v", pool.Hex(), err)
	}

	quote := dex.Quote{
		PoolType: desc.PoolType,
		Pool:     pool,
		Raw:      raw,
		Price:    price,
		Inversed: desc.PoolInversed,
		Pinned:   pinned,
	}
	if desc.PoolScale != nil {
		quote.Scale = *desc.PoolScale
	}
	o.logger.Debug("pool price",
		zap.String("network", desc.NetworkID),
		zap.String("pool", pool.Hex()),
		zap.String("raw", raw.String()),
		zap.String("price", price.String()),
		zap.Bool("pinned", pinned),
	)
	return quote, nil
}

// NativeQuote is the USD price of one native unit and whether every pool
// read behind it was served at the requested block.
type NativeQuote struct {
	USD    decimal.Decimal
	Pinned bool
}

// WeiToUSD returns the USD value of one wei of network's native currency.
// Descriptors with an ETH pool are composed with the eth-mainnet wei price.
func (o *Oracle) WeiToUSD(ctx context.Context, network string, block *uint64) (decimal.Decimal, error) {
	price, _, err := o.weiToUSD(ctx, network, block)
	return price, err
}

// NativeToUSD returns the USD value of one whole unit of network's native currency.
func (o *Oracle) NativeToUSD(ctx context.Context, network string, block *uint64) (decimal.Decimal, error) {
	quote, err := o.NativeQuote(ctx, network, block)
	if err != nil {
		return decimal.Zero, err
	}
	return quote.USD, nil
}

// NativeQuote is NativeToUSD together with the pinned flag of the reads.
func (o *Oracle) NativeQuote(ctx context.Context, network string, block *uint64) (NativeQuote, error) {
	weiToUSD, pinned, err := o.weiToUSD(ctx, network, block)
	if err != nil {
		return NativeQuote{}, err
	}
	return NativeQuote{USD: weiToUSD.Mul(WeiPerNative), Pinned: pinned}, nil
}

func (o *Oracle) weiToUSD(ctx context.Context, network string, block *uint64) (decimal.Decimal, bool, error) {
	desc, err := o.registry.Descriptor(network)
	if err != nil {
		return decimal.Zero, false, err
	}
	if err := desc.ValidatePricing(); err != nil {
		return decimal.Zero, false, err
	}

	pool := desc.NativeCurrencyToUSDPool
	viaETH := desc.NativeCurrencyToETHPool != nil
	if viaETH {
		if strings.EqualFold(desc.NetworkID, networks.MainnetID) {
			return decimal.Zero, false, apperr.Configf("%s cannot be priced through its own ETH pool", desc.NetworkID)
		}
		pool = desc.NativeCurrencyToETHPool
	}
	if pool == nil {
		return decimal.Zero, false, apperr.Configf("could not convert native token of %s to USD: no pricing pool", desc.NetworkID)
	}

	target := desc.PricingNetwork()
	rd, release, err := o.providers.Reader(ctx, target, chain.Options{})
	if err != nil {
		return decimal.Zero, false, err
	}
	quote, err := o.PriceFromPool(ctx, rd, *pool, desc, block)
	release()
	if err != nil {
		return decimal.Zero, false, err
	}
	if !viaETH {
		return quote.Price, quote.Pinned, nil
	}

	ethWeiToUSD, ethPinned, err := o.weiToUSD(ctx, networks.MainnetID, block)
	if err != nil {
		return decimal.Zero, false, err
	}
	o.logger.Debug("composed native price through eth-mainnet",
		zap.String("network", desc.NetworkID),
		zap.String("native_per_eth", quote.Price.String()),
		zap.String("eth_wei_usd", ethWeiToUSD.String()),
	)
	return quote.Price.Mul(ethWeiToUSD), quote.Pinned && ethPinned, nil
}
