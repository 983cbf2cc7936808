package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ContractCaller performs eth_call at an optional block height (nil means latest).
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Quote is a pool price together with how it was obtained.
type Quote struct {
	PoolType PoolType
	Pool     common.Address
	Raw      decimal.Decimal
	Price    decimal.Decimal
	Inversed bool
	Scale    uint
	// Pinned is false when the read fell back from a historical block to latest state.
	Pinned bool
}

// ReadRawPrice calls the extractor's view method on pool and returns the unprocessed price.
func ReadRawPrice(ctx context.Context, caller ContractCaller, pool common.Address, extractor Extractor, block *big.Int) (decimal.Decimal, error) {
	if caller == nil {
		return decimal.Zero, fmt.Errorf("contract caller is nil")
	}
	poolABI, err := PoolABI()
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse pool abi: %w", err)
	}
	values, err := callPoolMethod(ctx, caller, pool, poolABI, extractor.Method(), block)
	if err != nil {
		return decimal.Zero, err
	}
	return extractor.Extract(values)
}

func callPoolMethod(ctx context.Context, caller ContractCaller, pool common.Address, poolABI abi.ABI, method string, block *big.Int) ([]interface{}, error) {
	data, err := poolABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &pool, Data: data}
	resp, err := caller.CallContract(ctx, msg, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := poolABI.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		if v == nil {
			return nil, fmt.Errorf("nil big int")
		}
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}
