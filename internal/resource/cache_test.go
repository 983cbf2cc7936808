package resource

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type handle struct{ id int }

func constant(id int) func(context.Context) (*handle, error) {
	return func(context.Context) (*handle, error) { return &handle{id: id}, nil }
}

func TestAcquireReturnsSameInstance(t *testing.T) {
	cache := New[*handle](Policy{}, nil)
	var calls int
	create := func(context.Context) (*handle, error) {
		calls++
		return &handle{id: calls}, nil
	}

	first, release, err := cache.Acquire(context.Background(), "eth-mainnet", create)
	require.NoError(t, err)
	release()
	second, release, err := cache.Acquire(context.Background(), "eth-mainnet", create)
	require.NoError(t, err)
	release()

	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestCreateErrorIsNotCached(t *testing.T) {
	cache := New[*handle](Policy{}, nil)
	boom := errors.New("dial failed")

	_, _, err := cache.Acquire(context.Background(), "k", func(context.Context) (*handle, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, cache.Len())

	got, release, err := cache.Acquire(context.Background(), "k", constant(7))
	require.NoError(t, err)
	defer release()
	assert.Equal(t, 7, got.id)
}

func TestConcurrentCreatesCollapse(t *testing.T) {
	cache := New[*handle](Policy{}, nil)
	var calls atomic.Int32
	unblock := make(chan struct{})

	var wg sync.WaitGroup
	results := make([]*handle, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, release, err := cache.Acquire(context.Background(), "k", func(context.Context) (*handle, error) {
				calls.Add(1)
				<-unblock
				return &handle{id: 1}, nil
			})
			if err == nil {
				results[i] = h
				release()
			}
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(unblock)
	wg.Wait()

	for _, h := range results {
		assert.Same(t, results[0], h)
	}
	assert.LessOrEqual(t, calls.Load(), int32(len(results)))
	assert.Equal(t, 1, cache.Len())
}

func TestCancelledCallerDoesNotFailSharedCreate(t *testing.T) {
	cache := New[*handle](Policy{}, nil)
	started := make(chan struct{})
	unblock := make(chan struct{})
	create := func(ctx context.Context) (*handle, error) {
		close(started)
		select {
		case <-unblock:
			return &handle{id: 1}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, _, err := cache.Acquire(firstCtx, "k", create)
		firstErr <- err
	}()
	<-started

	type result struct {
		h   *handle
		err error
	}
	second := make(chan result, 1)
	go func() {
		h, release, err := cache.Acquire(context.Background(), "k", func(context.Context) (*handle, error) {
			return nil, errors.New("second create must join the first")
		})
		if err == nil {
			release()
		}
		second <- result{h, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller: got %v, want context.Canceled", err)
	}
	close(unblock)

	got := <-second
	if got.err != nil {
		t.Fatalf("live caller failed: %v", got.err)
	}
	if got.h == nil || got.h.id != 1 {
		t.Fatalf("live caller got %+v", got.h)
	}
	assert.Equal(t, 1, cache.Len())
}

func TestSharedCreateIsBounded(t *testing.T) {
	cache := New[*handle](Policy{CreateTimeout: 10 * time.Millisecond}, nil)
	_, _, err := cache.Acquire(context.Background(), "k", func(ctx context.Context) (*handle, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, cache.Len())
}

func TestLRUBoundEvictsOldest(t *testing.T) {
	var evicted []string
	cache := New[*handle](Policy{MaxEntries: 2}, func(key string, _ *handle) {
		evicted = append(evicted, key)
	})
	ctx := context.Background()
	touch := func(key string, id int) {
		_, release, err := cache.Acquire(ctx, key, constant(id))
		require.NoError(t, err)
		release()
	}

	touch("a", 1)
	touch("b", 2)
	touch("a", 1)
	touch("c", 3)

	assert.Equal(t, []string{"b"}, evicted)
	assert.Equal(t, 2, cache.Len())
}

func TestEvictionWaitsForLastRelease(t *testing.T) {
	var closed []int
	cache := New[*handle](Policy{MaxEntries: 1}, func(_ string, h *handle) {
		closed = append(closed, h.id)
	})
	ctx := context.Background()

	held, releaseHeld, err := cache.Acquire(ctx, "a", constant(1))
	require.NoError(t, err)
	shared, releaseShared, err := cache.Acquire(ctx, "a", constant(99))
	require.NoError(t, err)
	require.Same(t, held, shared)

	_, releaseB, err := cache.Acquire(ctx, "b", constant(2))
	require.NoError(t, err)
	defer releaseB()

	if len(closed) != 0 {
		t.Fatalf("leased value closed on eviction: %v", closed)
	}
	assert.Equal(t, 1, cache.Len())

	releaseHeld()
	releaseHeld()
	assert.Empty(t, closed)

	releaseShared()
	assert.Equal(t, []int{1}, closed)

	again, releaseAgain, err := cache.Acquire(ctx, "a", constant(3))
	require.NoError(t, err)
	defer releaseAgain()
	assert.Equal(t, 3, again.id)
}

func TestIdleTTLExpiresEntries(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	var evicted int
	cache := New[*handle](Policy{IdleTTL: time.Minute, Now: clock.Now}, func(string, *handle) { evicted++ })
	ctx := context.Background()

	first, release, err := cache.Acquire(ctx, "k", constant(1))
	require.NoError(t, err)
	release()

	clock.Advance(30 * time.Second)
	second, release, err := cache.Acquire(ctx, "k", constant(2))
	require.NoError(t, err)
	assert.Same(t, first, second)

	clock.Advance(2 * time.Minute)
	leased, releaseLeased, err := cache.Acquire(ctx, "k", constant(3))
	require.NoError(t, err)
	assert.Same(t, first, leased, "a leased entry never idles out")
	release()
	releaseLeased()

	clock.Advance(61 * time.Second)
	fresh, release, err := cache.Acquire(ctx, "k", constant(4))
	require.NoError(t, err)
	defer release()
	assert.Equal(t, 4, fresh.id)
	assert.Equal(t, 1, evicted)
}

func TestInvalidatePrefix(t *testing.T) {
	var closed []string
	cache := New[*handle](Policy{}, func(key string, _ *handle) { closed = append(closed, key) })
	ctx := context.Background()
	for _, key := range []string{"eth-mainnet|all=false", "eth-mainnet|all=true", "bsc-mainnet|all=false"} {
		_, release, err := cache.Acquire(ctx, key, constant(0))
		require.NoError(t, err)
		release()
	}

	assert.Equal(t, 2, cache.InvalidatePrefix("eth-mainnet|"))
	assert.ElementsMatch(t, []string{"eth-mainnet|all=false", "eth-mainnet|all=true"}, closed)
	assert.Equal(t, 1, cache.Len())

	assert.True(t, cache.Invalidate("bsc-mainnet|all=false"))
	assert.False(t, cache.Invalidate("bsc-mainnet|all=false"))
	assert.Equal(t, 0, cache.Len())
}
