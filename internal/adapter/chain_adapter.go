// Package adapter provides clients for the external collaborators of the
// reconciliation core: blockchain RPC nodes, chain explorers, the banking
// aggregation API, and the external pricing source.
package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/portfolio-reconciler/internal/types"
)

// ChainAdapter defines the interface for blockchain-specific adapters.
// Every call is bounded by the per-call timeout configured on the adapter;
// a timeout is a recoverable failure, never a retry trigger.
type ChainAdapter interface {
	// NativeBalance returns the native currency balance of a wallet,
	// scaled to a whole-unit float
	NativeBalance(ctx context.Context, wallet string) (float64, error)

	// TokenBalance returns the raw token balance of a wallet for a contract,
	// scaled by the given decimals
	TokenBalance(ctx context.Context, wallet, contract string, decimals int) (float64, error)

	// TokenSymbol reads the symbol of a token contract
	TokenSymbol(ctx context.Context, contract string) (string, error)

	// TokenName reads the name of a token contract
	TokenName(ctx context.Context, contract string) (string, error)

	// TokenDecimals reads the decimal precision of a token contract
	TokenDecimals(ctx context.Context, contract string) (int, error)

	// ValidateAddress returns true if the address format is valid for this chain
	ValidateAddress(address string) bool

	// GetChainID returns the chain this adapter serves
	GetChainID() types.ChainID
}

// Common error types for chain adapters
var (
	// ErrInvalidAddress indicates an address failed format validation
	ErrInvalidAddress = errors.New("invalid address format")
	// ErrContractRead indicates a contract read call failed
	ErrContractRead = errors.New("contract read failed")
)

// AdapterError wraps a chain-level failure with operation context
type AdapterError struct {
	Chain   types.ChainID
	Op      string
	Err     error
	Details map[string]interface{}
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Chain, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError creates a new adapter error
func NewAdapterError(chain types.ChainID, op string, err error, details map[string]interface{}) *AdapterError {
	return &AdapterError{
		Chain:   chain,
		Op:      op,
		Err:     err,
		Details: details,
	}
}
