package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"

	"chainLens/internal/apperr"
	"chainLens/internal/metrics"
)

// BlockRef identifies a block and its timestamp.
type BlockRef struct {
	Number    uint64
	Hash      common.Hash
	Timestamp uint64
}

// Time returns the block timestamp in UTC.
func (b BlockRef) Time() time.Time {
	return time.Unix(int64(b.Timestamp), 0).UTC()
}

// Reader is the read-only node surface used by block-time resolution and pricing.
type Reader interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	Block(ctx context.Context, number uint64) (BlockRef, error)
	LatestBlock(ctx context.Context) (BlockRef, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// FeeReader adds the fee-market calls used for gas quotes.
type FeeReader interface {
	Reader
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
}

// Backend is the subset of *ethclient.Client the Client needs.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	Close()
}

// ClientOptions tunes a Client. The zero value is usable. RateLimit caps
// requests per second and zero disables limiting. MaxRetries retries failed
// header and block-number reads and zero disables it.
type ClientOptions struct {
	Network      string
	RateLimit    float64
	Burst        int
	MaxRetries   int
	RetryBackoff time.Duration
	Metrics      *metrics.Metrics
}

// Client wraps go-ethereum RPC and provides helper methods.
type Client struct {
	network      string
	backend      Backend
	limiter      *rate.Limiter
	maxRetries   int
	retryBackoff time.Duration
	metrics      *metrics.Metrics
}

// Dial connects to rpcURL and wraps the resulting ethclient.
func Dial(ctx context.Context, rpcURL string, opts ClientOptions) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, apperr.TransientRPCf("dial %s: %v", opts.Network, err)
	}
	return NewClient(ethclient.NewClient(rpcClient), opts), nil
}

// NewClient wraps an existing backend.
func NewClient(backend Backend, opts ClientOptions) *Client {
	client := &Client{
		network:      opts.Network,
		backend:      backend,
		maxRetries:   opts.MaxRetries,
		retryBackoff: opts.RetryBackoff,
		metrics:      opts.Metrics,
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		client.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return client
}

// Network returns the network this client was created for.
func (c *Client) Network() string {
	return c.network
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.backend != nil {
		c.backend.Close()
	}
}

// GetChainID returns the chain ID.
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	defer c.observe("eth_chainId", time.Now())
	return c.backend.ChainID(ctx)
}

// LatestBlockNumber returns the latest block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var number uint64
	err := withRetry(ctx, c.maxRetries, c.retryBackoff, func(ctx context.Context) error {
		if err := c.wait(ctx); err != nil {
			return err
		}
		defer c.observe("eth_blockNumber", time.Now())
		n, err := c.backend.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("get latest block number: %w", err)
		}
		number = n
		return nil
	})
	return number, err
}

// Block returns the header reference of block number.
func (c *Client) Block(ctx context.Context, number uint64) (BlockRef, error) {
	return c.header(ctx, new(big.Int).SetUint64(number))
}

// LatestBlock returns the header reference of the chain head.
func (c *Client) LatestBlock(ctx context.Context) (BlockRef, error) {
	return c.header(ctx, nil)
}

// HeaderByNumber returns the block header by number; nil means latest.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	var header *types.Header
	err := withRetry(ctx, c.maxRetries, c.retryBackoff, func(ctx context.Context) error {
		if err := c.wait(ctx); err != nil {
			return err
		}
		defer c.observe("eth_getBlockByNumber", time.Now())
		h, err := c.backend.HeaderByNumber(ctx, number)
		if err != nil {
			if errors.Is(err, ethereum.NotFound) {
				return apperr.NotFoundf("block %s not found on %s", blockLabel(number), c.network)
			}
			return fmt.Errorf("get block %s: %w", blockLabel(number), err)
		}
		if h == nil {
			return apperr.NotFoundf("block %s not found on %s", blockLabel(number), c.network)
		}
		header = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	return header, nil
}

// CallContract performs an eth_call for a contract method.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	defer c.observe("eth_call", time.Now())
	return c.backend.CallContract(ctx, msg, blockNumber)
}

// SuggestGasPrice returns the node's legacy gas price.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	defer c.observe("eth_gasPrice", time.Now())
	return c.backend.SuggestGasPrice(ctx)
}

// SuggestGasTipCap returns the node's suggested priority fee.
func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	defer c.observe("eth_maxPriorityFeePerGas", time.Now())
	return c.backend.SuggestGasTipCap(ctx)
}

func (c *Client) header(ctx context.Context, number *big.Int) (BlockRef, error) {
	header, err := c.HeaderByNumber(ctx, number)
	if err != nil {
		return BlockRef{}, err
	}
	return BlockRef{
		Number:    header.Number.Uint64(),
		Hash:      header.Hash(),
		Timestamp: header.Time,
	}, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit %s: %w", c.network, err)
	}
	return nil
}

func (c *Client) observe(method string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.RPCCallLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

func blockLabel(number *big.Int) string {
	if number == nil {
		return "latest"
	}
	return number.String()
}
