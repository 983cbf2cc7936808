package model

// NativePriceQuote is the USD-derived price of one unit of a network's native currency.
type NativePriceQuote struct {
	ChainID        uint64 `json:"chain_id"`
	NetworkName    string `json:"network_name"`
	BlockHeight    uint64 `json:"block_height"`
	Price          string `json:"price"`
	Currency       string `json:"currency"`
	CurrencySymbol string `json:"currency_symbol"`
	// Pinned is false when the pool was read at latest state instead of BlockHeight.
	Pinned bool `json:"pinned"`
}

// GasQuote is the current fee data of a network, optionally priced in fiat.
type GasQuote struct {
	ChainID     uint64 `json:"chain_id"`
	NetworkName string `json:"network_name"`
	BlockHeight uint64 `json:"block_height"`
	EventType   string `json:"event_type,omitempty"`
	GasRequired string `json:"gas_required"`

	GasCostWei  string `json:"gas_cost_wei"`
	GasCostGwei string `json:"gas_cost_gwei"`
	GasCostEth  string `json:"gas_cost_eth"`

	FeeWei  string `json:"fee_wei,omitempty"`
	FeeGwei string `json:"fee_gwei,omitempty"`
	FeeEth  string `json:"fee_eth,omitempty"`

	TipWei  string `json:"tip_wei,omitempty"`
	TipGwei string `json:"tip_gwei,omitempty"`
	TipEth  string `json:"tip_eth,omitempty"`

	Currency      string `json:"currency,omitempty"`
	GasCost       string `json:"gas_cost,omitempty"`
	ExecutionCost string `json:"execution_cost,omitempty"`
	TipCost       string `json:"tip_cost,omitempty"`
	FeeCost       string `json:"fee_cost,omitempty"`
	TotalCost     string `json:"total_cost,omitempty"`
}
