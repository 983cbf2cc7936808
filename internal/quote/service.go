// Package quote answers native-price and gas-price requests for a network,
// combining block resolution, pool pricing and fiat conversion.
package quote

import (
	"context"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chainLens/internal/apperr"
	"chainLens/internal/blocktime"
	"chainLens/internal/chain"
	"chainLens/internal/currency"
	"chainLens/internal/model"
	"chainLens/internal/networks"
	"chainLens/internal/pgcache"
	"chainLens/internal/pricing"
)

const (
	nativePricePlaces = 6
	costPlaces        = 12
	// defaultParallelism bounds concurrent networks in NativePrices.
	defaultParallelism = 4
)

// Gas units charged per event type.
const (
	EventNativeTransfer = "native_transfer"
	EventERC20Transfer  = "erc20_transfer"
	EventSwap           = "swap"
)

// defaultPriorityFee is used when a London chain does not answer eth_maxPriorityFeePerGas.
var defaultPriorityFee = big.NewInt(1_000_000_000)

// DescriptorSource is the registry lookup the service needs.
type DescriptorSource interface {
	Descriptor(name string) (networks.Descriptor, error)
}

// Providers leases node access per network; *chain.Pool satisfies it. The
// returned func releases the lease.
type Providers interface {
	FeeReader(ctx context.Context, network string, opts chain.Options) (chain.FeeReader, func(), error)
}

// PriceSource prices native currencies; *pricing.Oracle satisfies it.
type PriceSource interface {
	WeiToUSD(ctx context.Context, network string, block *uint64) (decimal.Decimal, error)
	NativeQuote(ctx context.Context, network string, block *uint64) (pricing.NativeQuote, error)
}

// Config wires a Service. Cache and Logger are optional.
type Config struct {
	Networks  DescriptorSource
	Providers Providers
	Resolver  *blocktime.Resolver
	Prices    PriceSource
	Converter *currency.Converter
	Cache     *pgcache.Cache
	Logger    *zap.Logger
}

// Service builds native-price and gas quotes.
type Service struct {
	networks  DescriptorSource
	providers Providers
	resolver  *blocktime.Resolver
	prices    PriceSource
	converter *currency.Converter
	cache     *pgcache.Cache
	logger    *zap.Logger
}

// NewService creates a quote service.
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = blocktime.New(logger)
	}
	converter := cfg.Converter
	if converter == nil {
		converter = currency.NewConverter()
	}
	return &Service{
		networks:  cfg.Networks,
		providers: cfg.Providers,
		resolver:  resolver,
		prices:    cfg.Prices,
		converter: converter,
		cache:     cfg.Cache,
		logger:    logger,
	}
}

// NativePrice quotes one native unit of network at the block selected by q,
// in currencyCode (USD when empty).
func (s *Service) NativePrice(ctx context.Context, network string, q blocktime.Query, currencyCode string) (model.NativePriceQuote, error) {
	rate, err := s.lookupCurrency(currencyCode)
	if err != nil {
		return model.NativePriceQuote{}, err
	}
	desc, err := s.networks.Descriptor(network)
	if err != nil {
		return model.NativePriceQuote{}, err
	}
	network, chainID := desc.NetworkID, desc.ChainID
	rd, release, err := s.providers.FeeReader(ctx, network, chain.Options{})
	if err != nil {
		return model.NativePriceQuote{}, err
	}
	block, err := s.resolver.FinalBlockNumber(ctx, rd, q)
	release()
	if err != nil {
		return model.NativePriceQuote{}, err
	}

	steps := nativePriceSteps(network, chainID, block, func(ctx context.Context) (pricing.NativeQuote, error) {
		return s.prices.NativeQuote(ctx, network, &block)
	})
	usd, err := pgcache.ReadThrough(ctx, s.cache, network, steps)
	if err != nil {
		return model.NativePriceQuote{}, err
	}
	amount := usd.USD.Mul(rate.USDRate)

	s.logger.Debug("native price",
		zap.String("network", network),
		zap.Uint64("block", block),
		zap.String("usd", usd.USD.String()),
		zap.String("currency", rate.Code),
		zap.Bool("pinned", usd.Pinned),
	)
	return model.NativePriceQuote{
		ChainID:        chainID,
		NetworkName:    network,
		BlockHeight:    block,
		Price:          rate.Symbol + pricing.FormatTruncated(amount, nativePricePlaces),
		Currency:       rate.Code,
		CurrencySymbol: rate.Symbol,
		Pinned:         usd.Pinned,
	}, nil
}

// NativePrices quotes several networks concurrently. Results keep the order of
// names; the first failure cancels the rest.
func (s *Service) NativePrices(ctx context.Context, names []string, q blocktime.Query, currencyCode string) ([]model.NativePriceQuote, error) {
	quotes := make([]model.NativePriceQuote, len(names))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(defaultParallelism)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			quote, err := s.NativePrice(ctx, name, q, currencyCode)
			if err != nil {
				return err
			}
			quotes[i] = quote
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return quotes, nil
}

// GasQuery selects what a gas quote should price.
type GasQuery struct {
	// EventType is one of the Event* constants; others count as one gas unit.
	EventType string
	// GasLimit, when non-zero, overrides the units of EventType.
	GasLimit uint64
	Block    blocktime.Query
	Currency string
}

// GasUnits returns the gas units to price and whether they were asked for
// explicitly, which enables the execution cost.
func GasUnits(eventType string, gasLimit uint64) (*big.Int, bool) {
	if gasLimit > 0 {
		return new(big.Int).SetUint64(gasLimit), true
	}
	switch eventType {
	case "":
		return big.NewInt(1), false
	case EventNativeTransfer:
		return big.NewInt(21_000), true
	case EventERC20Transfer:
		return big.NewInt(50_000), true
	case EventSwap:
		return big.NewInt(356_190), true
	default:
		return big.NewInt(1), true
	}
}

type feeData struct {
	gasPrice     *big.Int
	baseFee      *big.Int
	priorityFee  *big.Int
	maxFeePerGas *big.Int
}

func (s *Service) readFees(ctx context.Context, network string, rd chain.FeeReader) (feeData, error) {
	gasPrice, err := rd.SuggestGasPrice(ctx)
	if err != nil {
		return feeData{}, apperr.NotFoundf("gas price data not available for %s: %v", network, err)
	}
	head, err := rd.HeaderByNumber(ctx, nil)
	if err != nil {
		return feeData{}, apperr.NotFoundf("gas price data not available for %s: %v", network, err)
	}
	fees := feeData{gasPrice: gasPrice}
	if head.BaseFee == nil {
		return fees, nil
	}
	fees.baseFee = head.BaseFee
	tip, err := rd.SuggestGasTipCap(ctx)
	if err != nil {
		s.logger.Debug("priority fee unavailable, using default", zap.String("network", network), zap.Error(err))
		tip = defaultPriorityFee
	}
	fees.priorityFee = tip
	fees.maxFeePerGas = new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tip)
	return fees, nil
}

// GasPrice quotes current fee data of network. When the network's native
// currency can be priced, the cost fields are filled in q.Currency.
func (s *Service) GasPrice(ctx context.Context, network string, q GasQuery) (model.GasQuote, error) {
	rate, err := s.lookupCurrency(q.Currency)
	if err != nil {
		return model.GasQuote{}, err
	}
	desc, err := s.networks.Descriptor(network)
	if err != nil {
		return model.GasQuote{}, err
	}
	network, chainID := desc.NetworkID, desc.ChainID
	rd, release, err := s.providers.FeeReader(ctx, network, chain.Options{})
	if err != nil {
		return model.GasQuote{}, err
	}
	defer release()
	block, err := s.resolver.FinalBlockNumber(ctx, rd, q.Block)
	if err != nil {
		return model.GasQuote{}, err
	}
	fees, err := s.readFees(ctx, network, rd)
	if err != nil {
		return model.GasQuote{}, err
	}
	units, explicit := GasUnits(q.EventType, q.GasLimit)

	out := model.GasQuote{
		ChainID:     chainID,
		NetworkName: network,
		BlockHeight: block,
		EventType:   q.EventType,
		GasRequired: units.String(),
		GasCostWei:  fees.gasPrice.String(),
		GasCostGwei: formatUnits(fees.gasPrice, gweiDecimals),
		GasCostEth:  formatUnits(fees.gasPrice, etherDecimals),
	}
	if fees.baseFee != nil {
		out.FeeWei = fees.baseFee.String()
		out.FeeGwei = formatUnits(fees.baseFee, gweiDecimals)
		out.FeeEth = formatUnits(fees.baseFee, etherDecimals)
	}
	if fees.priorityFee != nil {
		out.TipWei = fees.priorityFee.String()
		out.TipGwei = formatUnits(fees.priorityFee, gweiDecimals)
		out.TipEth = formatUnits(fees.priorityFee, etherDecimals)
	}

	weiToUSD, err := s.prices.WeiToUSD(ctx, network, &block)
	if err != nil {
		if ctx.Err() != nil {
			return model.GasQuote{}, ctx.Err()
		}
		s.logger.Warn("gas quote without fiat costs", zap.String("network", network), zap.Error(err))
		return out, nil
	}
	weiToFiat := weiToUSD.Mul(rate.USDRate)
	money := func(d decimal.Decimal) string {
		return rate.Symbol + pricing.FormatTruncated(d, costPlaces)
	}

	gasCost := weiToFiat.Mul(decimal.NewFromBigInt(fees.gasPrice, 0))
	out.Currency = rate.Code
	out.GasCost = money(gasCost)
	total := gasCost
	if explicit {
		execution := gasCost.Mul(decimal.NewFromBigInt(units, 0))
		out.ExecutionCost = money(execution)
		total = execution
	}
	if fees.priorityFee != nil {
		tip := weiToFiat.Mul(decimal.NewFromBigInt(fees.priorityFee, 0))
		out.TipCost = money(tip)
		total = total.Add(tip)
	}
	if fees.maxFeePerGas != nil {
		fee := weiToFiat.Mul(decimal.NewFromBigInt(fees.maxFeePerGas, 0))
		out.FeeCost = money(fee)
		total = total.Add(fee)
	}
	out.TotalCost = money(total)
	return out, nil
}

func (s *Service) lookupCurrency(code string) (currency.Rate, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		code = currency.USD
	}
	return s.converter.Lookup(code)
}
