// Package networks holds the process-wide table of supported EVM networks:
// names, chain ids, stablecoin addresses and native-currency pricing pools.
package networks

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"chainLens/internal/apperr"
	"chainLens/internal/dex"
)

// MainnetID is the network whose ETH price anchors every ETH-denominated pool.
const MainnetID = "eth-mainnet"

//go:embed networks.yaml
var defaultNetworksYAML []byte

// Descriptor describes one network and how its native currency is priced.
type Descriptor struct {
	NetworkID     string
	ChainID       uint64
	NativeSymbol  string
	PoolAddress   *common.Address
	PoolType      dex.PoolType
	PoolInversed  bool
	PoolScale     *uint
	PoolNetworkID string

	NativeCurrencyToETHPool *common.Address
	NativeCurrencyToUSDPool *common.Address

	USDCAddress          *common.Address
	USDTAddress          *common.Address
	BlockExplorerBaseURL string
}

// PricingNetwork returns the network whose pools price this one.
func (d Descriptor) PricingNetwork() string {
	if d.PoolNetworkID != "" {
		return d.PoolNetworkID
	}
	return d.NetworkID
}

// ValidatePricing reports a descriptor that configures both pricing pools.
func (d Descriptor) ValidatePricing() error {
	if d.NativeCurrencyToETHPool != nil && d.NativeCurrencyToUSDPool != nil {
		return apperr.Configf("network %s has both nativeCurrencyToETHPool and nativeCurrencyToUSDPool", d.NetworkID)
	}
	return nil
}

type fileFormat struct {
	Networks []descriptorYAML `yaml:"networks"`
}

type descriptorYAML struct {
	NetworkID               string `yaml:"networkId"`
	ChainID                 uint64 `yaml:"chainId"`
	NativeSymbol            string `yaml:"nativeSymbol"`
	PoolAddress             string `yaml:"poolAddress"`
	PoolType                string `yaml:"poolType"`
	PoolInversed            bool   `yaml:"poolInversed"`
	PoolScale               *uint  `yaml:"poolScale"`
	PoolNetworkID           string `yaml:"poolNetworkId"`
	NativeCurrencyToETHPool string `yaml:"nativeCurrencyToETHPool"`
	NativeCurrencyToUSDPool string `yaml:"nativeCurrencyToUSDPool"`
	USDCAddress             string `yaml:"usdcAddress"`
	USDTAddress             string `yaml:"usdtAddress"`
	BlockExplorerBaseURL    string `yaml:"blockExplorerBaseUrl"`
}

// Registry is an immutable lookup table built once at start-up.
type Registry struct {
	byName    map[string]Descriptor
	byChainID map[uint64]string
}

// Default returns the registry built from the embedded network table.
func Default() (*Registry, error) {
	return Load(bytes.NewReader(defaultNetworksYAML))
}

// LoadFile reads a registry from a YAML file.
func LoadFile(path string) (*Registry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open networks file: %w", err)
	}
	defer file.Close()
	return Load(file)
}

// Load parses a YAML network table. Duplicate chain ids or names (case-insensitive)
// and malformed addresses are rejected here; the pricing-pool invariant is not,
// see Validate.
func Load(r io.Reader) (*Registry, error) {
	var raw fileFormat
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, apperr.Configf("decode networks: %v", err)
	}

	reg := &Registry{
		byName:    make(map[string]Descriptor, len(raw.Networks)),
		byChainID: make(map[uint64]string, len(raw.Networks)),
	}
	for i, item := range raw.Networks {
		desc, err := item.toDescriptor()
		if err != nil {
			return nil, fmt.Errorf("network #%d (%s): %w", i, item.NetworkID, err)
		}
		key := strings.ToLower(desc.NetworkID)
		if _, found := reg.byName[key]; found {
			return nil, apperr.Configf("network %q is defined twice", desc.NetworkID)
		}
		if other, found := reg.byChainID[desc.ChainID]; found {
			return nil, apperr.Configf("chain id %d is used by both %s and %s", desc.ChainID, other, desc.NetworkID)
		}
		reg.byName[key] = desc
		reg.byChainID[desc.ChainID] = desc.NetworkID
	}

	for _, desc := range reg.byName {
		if desc.PoolNetworkID == "" {
			continue
		}
		if _, found := reg.byName[strings.ToLower(desc.PoolNetworkID)]; !found {
			return nil, apperr.Configf("network %s prices through unknown network %s", desc.NetworkID, desc.PoolNetworkID)
		}
	}
	return reg, nil
}

func (d descriptorYAML) toDescriptor() (Descriptor, error) {
	if strings.TrimSpace(d.NetworkID) == "" {
		return Descriptor{}, apperr.Configf("networkId is required")
	}
	if d.ChainID == 0 {
		return Descriptor{}, apperr.Configf("chainId is required")
	}
	poolType, err := dex.ParsePoolType(d.PoolType)
	if err != nil {
		return Descriptor{}, err
	}

	desc := Descriptor{
		NetworkID:            strings.TrimSpace(d.NetworkID),
		ChainID:              d.ChainID,
		NativeSymbol:         d.NativeSymbol,
		PoolType:             poolType,
		PoolInversed:         d.PoolInversed,
		PoolScale:            d.PoolScale,
		PoolNetworkID:        strings.TrimSpace(d.PoolNetworkID),
		BlockExplorerBaseURL: strings.TrimRight(d.BlockExplorerBaseURL, "/"),
	}

	fields := []struct {
		name  string
		value string
		dst   **common.Address
	}{
		{"poolAddress", d.PoolAddress, &desc.PoolAddress},
		{"nativeCurrencyToETHPool", d.NativeCurrencyToETHPool, &desc.NativeCurrencyToETHPool},
		{"nativeCurrencyToUSDPool", d.NativeCurrencyToUSDPool, &desc.NativeCurrencyToUSDPool},
		{"usdcAddress", d.USDCAddress, &desc.USDCAddress},
		{"usdtAddress", d.USDTAddress, &desc.USDTAddress},
	}
	for _, f := range fields {
		addr, err := parseOptionalAddress(f.value)
		if err != nil {
			return Descriptor{}, apperr.Configf("%s: %v", f.name, err)
		}
		*f.dst = addr
	}
	return desc, nil
}

func parseOptionalAddress(input string) (*common.Address, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil
	}
	if !common.IsHexAddress(input) {
		return nil, fmt.Errorf("invalid address: %s", input)
	}
	addr := common.HexToAddress(input)
	return &addr, nil
}

// Validate checks the pricing-pool invariant of every descriptor. PriceOracle
// performs the same check lazily; calling Validate at start-up is the strict mode.
func (r *Registry) Validate() error {
	var errs []error
	for _, name := range r.Names() {
		if err := r.byName[strings.ToLower(name)].ValidatePricing(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ChainID returns the chain id of a network name (case-insensitive).
func (r *Registry) ChainID(name string) (uint64, error) {
	desc, err := r.Descriptor(name)
	if err != nil {
		return 0, err
	}
	return desc.ChainID, nil
}

// NetworkName returns the network name registered for a chain id.
func (r *Registry) NetworkName(chainID uint64) (string, error) {
	name, found := r.byChainID[chainID]
	if !found {
		return "", apperr.NotFoundf("chain id %d is not supported", chainID)
	}
	return name, nil
}

// Descriptor returns the full descriptor of a network.
func (r *Registry) Descriptor(name string) (Descriptor, error) {
	desc, found := r.byName[strings.ToLower(strings.TrimSpace(name))]
	if !found {
		return Descriptor{}, apperr.NotFoundf("network %q is not supported", name)
	}
	return desc, nil
}

// USDCAddress returns the USDC token of a network, if it has one.
func (r *Registry) USDCAddress(name string) (*common.Address, bool) {
	desc, err := r.Descriptor(name)
	if err != nil || desc.USDCAddress == nil {
		return nil, false
	}
	return desc.USDCAddress, true
}

// USDTAddress returns the USDT token of a network, if it has one.
func (r *Registry) USDTAddress(name string) (*common.Address, bool) {
	desc, err := r.Descriptor(name)
	if err != nil || desc.USDTAddress == nil {
		return nil, false
	}
	return desc.USDTAddress, true
}

// ExplorerURL returns the block explorer base URL of a network, possibly empty.
func (r *Registry) ExplorerURL(name string) (string, error) {
	desc, err := r.Descriptor(name)
	if err != nil {
		return "", err
	}
	return desc.BlockExplorerBaseURL, nil
}

// Names returns the registered network names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for _, desc := range r.byName {
		names = append(names, desc.NetworkID)
	}
	sort.Strings(names)
	return names
}

// All returns every descriptor ordered by network name.
func (r *Registry) All() []Descriptor {
	names := r.Names()
	out := make([]Descriptor, 0, len(names))
	for _, name := range names {
		out = append(out, r.byName[strings.ToLower(name)])
	}
	return out
}
