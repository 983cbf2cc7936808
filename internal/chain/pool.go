package chain

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"chainLens/internal/apperr"
	"chainLens/internal/metrics"
	"chainLens/internal/networks"
	"chainLens/internal/resource"
)

// Options selects the endpoint strategy of a provider. Each distinct value is
// its own cache entry.
type Options struct {
	All      bool
	Random   bool
	Fallback bool
}

func (o Options) key(network string) string {
	return fmt.Sprintf("%s|all=%t|random=%t|fallback=%t", strings.ToLower(network), o.All, o.Random, o.Fallback)
}

// EndpointResolver maps a network and option set to a JSON-RPC URL.
type EndpointResolver interface {
	Endpoint(network string, opts Options) (string, error)
}

// TemplateResolver fills {network} and {key} in a URL template. Overrides
// replace the template for individual networks.
type TemplateResolver struct {
	Template  string
	APIKey    string
	Overrides map[string]string
}

// Endpoint implements EndpointResolver.
func (r TemplateResolver) Endpoint(network string, opts Options) (string, error) {
	raw := r.Template
	if override, ok := r.Overrides[strings.ToLower(network)]; ok && override != "" {
		raw = override
	}
	if strings.TrimSpace(raw) == "" {
		return "", apperr.Configf("no rpc endpoint configured for %s", network)
	}
	raw = strings.NewReplacer("{network}", network, "{key}", r.APIKey).Replace(raw)

	endpoint, err := url.Parse(raw)
	if err != nil {
		return "", apperr.Configf("rpc endpoint for %s: %v", network, err)
	}
	query := endpoint.Query()
	for name, enabled := range map[string]bool{"all": opts.All, "random": opts.Random, "fallback": opts.Fallback} {
		if enabled {
			query.Set(name, strconv.FormatBool(true))
		}
	}
	endpoint.RawQuery = query.Encode()
	return endpoint.String(), nil
}

// Dialer opens a client for a resolved endpoint.
type Dialer func(ctx context.Context, endpoint string, opts ClientOptions) (*Client, error)

// DescriptorSource is the registry lookup the pool needs.
type DescriptorSource interface {
	Descriptor(name string) (networks.Descriptor, error)
}

// PoolConfig wires a Pool. Only Resolver is required. Client is the template
// for every dialed client; Network is filled per entry.
type PoolConfig struct {
	Resolver EndpointResolver
	Dial     Dialer
	Policy   resource.Policy
	Client   ClientOptions
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

// Pool hands out one shared Client per (network, Options).
type Pool struct {
	registry DescriptorSource
	resolver EndpointResolver
	dial     Dialer
	client   ClientOptions
	cache    *resource.Cache[*Client]
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewPool creates a provider pool over registry.
func NewPool(registry DescriptorSource, cfg PoolConfig) *Pool {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop()
	}
	if cfg.Dial == nil {
		cfg.Dial = Dial
	}
	cfg.Client.Metrics = cfg.Metrics

	p := &Pool{
		registry: registry,
		resolver: cfg.Resolver,
		dial:     cfg.Dial,
		client:   cfg.Client,
		logger:   logger,
		metrics:  cfg.Metrics,
	}
	p.cache = resource.New[*Client](cfg.Policy, func(key string, client *Client) {
		p.logger.Debug("closing rpc client", zap.String("key", key))
		client.Close()
	})
	return p
}

// Acquire returns the client for network and opts, dialing it on first use,
// and a release func to call once the request is done with it. Unknown
// networks fail with apperr.ErrNotFound.
func (p *Pool) Acquire(ctx context.Context, network string, opts Options) (*Client, func(), error) {
	desc, err := p.registry.Descriptor(network)
	if err != nil {
		return nil, nil, err
	}
	name := desc.NetworkID
	key := opts.key(name)

	return p.cache.Acquire(ctx, key, func(ctx context.Context) (*Client, error) {
		if p.resolver == nil {
			return nil, apperr.Configf("no rpc endpoint resolver configured")
		}
		endpoint, err := p.resolver.Endpoint(name, opts)
		if err != nil {
			return nil, err
		}
		clientOpts := p.client
		clientOpts.Network = name
		client, err := p.dial(ctx, endpoint, clientOpts)
		if err != nil {
			return nil, fmt.Errorf("create provider for %s: %w", name, err)
		}
		p.metrics.RPCClientsCreated.WithLabelValues(name).Inc()
		p.logger.Info("rpc client created", zap.String("network", name), zap.String("key", key))
		return client, nil
	})
}

// Reader is Acquire narrowed to the Reader interface.
func (p *Pool) Reader(ctx context.Context, network string, opts Options) (Reader, func(), error) {
	client, release, err := p.Acquire(ctx, network, opts)
	if err != nil {
		return nil, nil, err
	}
	return client, release, nil
}

// FeeReader is Acquire narrowed to the FeeReader interface.
func (p *Pool) FeeReader(ctx context.Context, network string, opts Options) (FeeReader, func(), error) {
	client, release, err := p.Acquire(ctx, network, opts)
	if err != nil {
		return nil, nil, err
	}
	return client, release, nil
}

// Invalidate drops every option variant of network. Clients still leased are
// closed on their last release.
func (p *Pool) Invalidate(network string) int {
	return p.cache.InvalidatePrefix(strings.ToLower(strings.TrimSpace(network)) + "|")
}

// Close drops every cached client.
func (p *Pool) Close() {
	p.cache.Purge()
}
