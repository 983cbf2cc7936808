package chain

import (
	"context"
	"errors"
	"math/big"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainLens/internal/apperr"
	"chainLens/internal/networks"
	"chainLens/internal/resource"
)

type fakeBackend struct {
	headers map[uint64]*types.Header
	latest  uint64
	closed  atomic.Int32
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) { return big.NewInt(1), nil }
func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) {
	return f.latest, nil
}
func (f *fakeBackend) HeaderByNumber(_ context.Context, number *big.Int) (*types.Header, error) {
	n := f.latest
	if number != nil {
		n = number.Uint64()
	}
	header, ok := f.headers[n]
	if !ok {
		return nil, ethereum.NotFound
	}
	return header, nil
}
func (f *fakeBackend) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error)  { return big.NewInt(1), nil }
func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) { return big.NewInt(1), nil }
func (f *fakeBackend) Close()                                             { f.closed.Add(1) }

func TestClientBlockRefs(t *testing.T) {
	backend := &fakeBackend{
		latest: 2,
		headers: map[uint64]*types.Header{
			0: {Number: big.NewInt(0), Time: 1000},
			2: {Number: big.NewInt(2), Time: 1024},
		},
	}
	client := NewClient(backend, ClientOptions{Network: "eth-mainnet", RateLimit: 1000})

	genesis, err := client.Block(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), genesis.Timestamp)
	assert.Equal(t, backend.headers[0].Hash(), genesis.Hash)

	head, err := client.LatestBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), head.Number)
	assert.Equal(t, "1970-01-01T00:17:04Z", head.Time().Format("2006-01-02T15:04:05Z07:00"))

	_, err = client.Block(context.Background(), 1)
	assert.True(t, errors.Is(err, apperr.ErrNotFound), "got %v", err)
}

func TestTemplateResolver(t *testing.T) {
	resolver := TemplateResolver{
		Template:  "https://rpc.example.org/{network}/{key}",
		APIKey:    "secret",
		Overrides: map[string]string{"bsc-mainnet": "https://bsc.example.org"},
	}

	endpoint, err := resolver.Endpoint("eth-mainnet", Options{})
	require.NoError(t, err)
	assert.Equal(t, "https://rpc.example.org/eth-mainnet/secret", endpoint)

	endpoint, err = resolver.Endpoint("bsc-mainnet", Options{Random: true, Fallback: true})
	require.NoError(t, err)
	parsed, err := url.Parse(endpoint)
	require.NoError(t, err)
	assert.Equal(t, "bsc.example.org", parsed.Host)
	assert.Equal(t, "true", parsed.Query().Get("random"))
	assert.Equal(t, "true", parsed.Query().Get("fallback"))
	assert.Empty(t, parsed.Query().Get("all"))

	_, err = TemplateResolver{}.Endpoint("eth-mainnet", Options{})
	assert.True(t, errors.Is(err, apperr.ErrConfiguration))
}

func newTestPool(t *testing.T) (*Pool, *atomic.Int32) {
	t.Helper()
	reg, err := networks.Default()
	require.NoError(t, err)

	var dials atomic.Int32
	pool := NewPool(reg, PoolConfig{
		Resolver: TemplateResolver{Template: "http://node.invalid/{network}"},
		Dial: func(_ context.Context, _ string, opts ClientOptions) (*Client, error) {
			dials.Add(1)
			return NewClient(&fakeBackend{}, opts), nil
		},
	})
	return pool, &dials
}

func TestPoolReturnsSameClientForSameKey(t *testing.T) {
	pool, dials := newTestPool(t)
	ctx := context.Background()

	first, release, err := pool.Acquire(ctx, "eth-mainnet", Options{Fallback: true})
	require.NoError(t, err)
	defer release()
	second, release, err := pool.Acquire(ctx, "ETH-MAINNET", Options{Fallback: true})
	require.NoError(t, err)
	defer release()
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), dials.Load())
	assert.Equal(t, "eth-mainnet", first.Network())

	other, release, err := pool.Acquire(ctx, "eth-mainnet", Options{})
	require.NoError(t, err)
	defer release()
	assert.NotSame(t, first, other)
	assert.Equal(t, int32(2), dials.Load())
}

func TestPoolUnknownNetwork(t *testing.T) {
	pool, dials := newTestPool(t)
	_, _, err := pool.Acquire(context.Background(), "dogechain", Options{})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.Equal(t, int32(0), dials.Load())
}

func newRecordingPool(t *testing.T, policy resource.Policy) (*Pool, *[]*fakeBackend) {
	t.Helper()
	reg, err := networks.Default()
	require.NoError(t, err)

	backends := &[]*fakeBackend{}
	pool := NewPool(reg, PoolConfig{
		Resolver: TemplateResolver{Template: "http://node.invalid/{network}"},
		Policy:   policy,
		Dial: func(_ context.Context, _ string, opts ClientOptions) (*Client, error) {
			backend := &fakeBackend{}
			*backends = append(*backends, backend)
			return NewClient(backend, opts), nil
		},
	})
	return pool, backends
}

func TestPoolInvalidateClosesVariants(t *testing.T) {
	pool, backends := newRecordingPool(t, resource.Policy{})
	ctx := context.Background()
	acquire := func(network string, opts Options) *Client {
		client, release, err := pool.Acquire(ctx, network, opts)
		require.NoError(t, err)
		release()
		return client
	}

	first := acquire("eth-mainnet", Options{})
	acquire("eth-mainnet", Options{All: true})
	acquire("bsc-mainnet", Options{})

	assert.Equal(t, 2, pool.Invalidate("eth-mainnet"))
	assert.Equal(t, int32(1), (*backends)[0].closed.Load())
	assert.Equal(t, int32(1), (*backends)[1].closed.Load())
	assert.Equal(t, int32(0), (*backends)[2].closed.Load())

	fresh := acquire("eth-mainnet", Options{})
	assert.NotSame(t, first, fresh)

	pool.Close()
	assert.Equal(t, int32(1), (*backends)[2].closed.Load())
}

func TestPoolKeepsLeasedClientOpenPastEviction(t *testing.T) {
	pool, backends := newRecordingPool(t, resource.Policy{MaxEntries: 1})
	ctx := context.Background()

	rd, release, err := pool.Reader(ctx, "eth-mainnet", Options{})
	require.NoError(t, err)

	_, releaseOther, err := pool.Reader(ctx, "bsc-mainnet", Options{})
	require.NoError(t, err)
	defer releaseOther()

	if got := (*backends)[0].closed.Load(); got != 0 {
		t.Fatalf("client in use was closed %d times on eviction", got)
	}
	_, err = rd.LatestBlockNumber(ctx)
	require.NoError(t, err)

	release()
	assert.Equal(t, int32(1), (*backends)[0].closed.Load())
}

type flakyBackend struct {
	fakeBackend
	failures int
	calls    int
}

func (f *flakyBackend) BlockNumber(context.Context) (uint64, error) {
	f.calls++
	if f.calls <= f.failures {
		return 0, errors.New("502 bad gateway")
	}
	return f.latest, nil
}

func TestClientRetriesTransientReads(t *testing.T) {
	backend := &flakyBackend{fakeBackend: fakeBackend{latest: 77}, failures: 2}
	client := NewClient(backend, ClientOptions{MaxRetries: 2, RetryBackoff: time.Millisecond})

	number, err := client.LatestBlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(77), number)
	assert.Equal(t, 3, backend.calls)

	backend.calls, backend.failures = 0, 5
	_, err = client.LatestBlockNumber(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 3, backend.calls)
}

func TestClientDoesNotRetryMissingBlocks(t *testing.T) {
	backend := &fakeBackend{latest: 1, headers: map[uint64]*types.Header{}}
	client := NewClient(backend, ClientOptions{MaxRetries: 3, RetryBackoff: time.Hour})

	_, err := client.Block(context.Background(), 9)
	assert.True(t, errors.Is(err, apperr.ErrNotFound), "got %v", err)
}
