package adapter

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/portfolio-reconciler/internal/types"
)

// ERC20 metadata and balance ABI
const erc20ABI = `[
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"}
]`

// EthereumAdapter implements ChainAdapter for Ethereum and EVM-compatible chains
type EthereumAdapter struct {
	chainID     types.ChainID
	client      *ethclient.Client
	provider    DataProvider
	parsedABI   abi.ABI
	callTimeout time.Duration
}

// EthereumAdapterConfig holds configuration for creating an EthereumAdapter
type EthereumAdapterConfig struct {
	// ChainID is the chain identifier. Required.
	ChainID types.ChainID

	// Provider is the data provider for RPC URLs. Required.
	Provider DataProvider

	// CallTimeout bounds every on-chain read. Default: 10s.
	CallTimeout time.Duration
}

// NewEthereumAdapter creates a new Ethereum chain adapter
func NewEthereumAdapter(cfg *EthereumAdapterConfig) (*EthereumAdapter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}

	rpcURL, err := cfg.Provider.GetPrimaryURL()
	if err != nil {
		return nil, fmt.Errorf("failed to get primary RPC URL: %w", err)
	}

	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, NewAdapterError(cfg.ChainID, "NewEthereumAdapter", err, map[string]interface{}{
			"rpcURL": rpcURL,
		})
	}

	parsedABI, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}

	callTimeout := cfg.CallTimeout
	if callTimeout == 0 {
		callTimeout = 10 * time.Second
	}

	return &EthereumAdapter{
		chainID:     cfg.ChainID,
		client:      client,
		provider:    cfg.Provider,
		parsedABI:   parsedABI,
		callTimeout: callTimeout,
	}, nil
}

// GetChainID returns the chain this adapter serves
func (a *EthereumAdapter) GetChainID() types.ChainID {
	return a.chainID
}

// ValidateAddress returns true if the address is a valid hex address
func (a *EthereumAdapter) ValidateAddress(address string) bool {
	return common.IsHexAddress(address)
}

// Close releases the underlying RPC connection
func (a *EthereumAdapter) Close() {
	if a.client != nil {
		a.client.Close()
	}
}

// NativeBalance returns the native currency balance of a wallet in whole units
func (a *EthereumAdapter) NativeBalance(ctx context.Context, wallet string) (float64, error) {
	if !a.ValidateAddress(wallet) {
		return 0, NewAdapterError(a.chainID, "NativeBalance", ErrInvalidAddress, map[string]interface{}{
			"address": wallet,
		})
	}

	ctx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	balance, err := a.client.BalanceAt(ctx, common.HexToAddress(wallet), nil)
	if err != nil {
		return 0, NewAdapterError(a.chainID, "NativeBalance", err, map[string]interface{}{
			"address": wallet,
		})
	}

	return scaleToFloat(balance, 18), nil
}

// TokenBalance returns the token balance of a wallet scaled by decimals
func (a *EthereumAdapter) TokenBalance(ctx context.Context, wallet, contract string, decimals int) (float64, error) {
	if !a.ValidateAddress(wallet) || !a.ValidateAddress(contract) {
		return 0, NewAdapterError(a.chainID, "TokenBalance", ErrInvalidAddress, map[string]interface{}{
			"wallet":   wallet,
			"contract": contract,
		})
	}

	data, err := a.parsedABI.Pack("balanceOf", common.HexToAddress(wallet))
	if err != nil {
		return 0, NewAdapterError(a.chainID, "TokenBalance", err, nil)
	}

	output, err := a.callContract(ctx, contract, data)
	if err != nil {
		return 0, err
	}

	results, err := a.parsedABI.Unpack("balanceOf", output)
	if err != nil || len(results) == 0 {
		return 0, NewAdapterError(a.chainID, "TokenBalance", ErrContractRead, map[string]interface{}{
			"contract": contract,
		})
	}

	balance, ok := results[0].(*big.Int)
	if !ok {
		return 0, NewAdapterError(a.chainID, "TokenBalance", ErrContractRead, map[string]interface{}{
			"contract": contract,
		})
	}

	return scaleToFloat(balance, decimals), nil
}

// TokenSymbol reads the symbol of a token contract
func (a *EthereumAdapter) TokenSymbol(ctx context.Context, contract string) (string, error) {
	return a.readString(ctx, contract, "symbol")
}

// TokenName reads the name of a token contract
func (a *EthereumAdapter) TokenName(ctx context.Context, contract string) (string, error) {
	return a.readString(ctx, contract, "name")
}

// TokenDecimals reads the decimal precision of a token contract
func (a *EthereumAdapter) TokenDecimals(ctx context.Context, contract string) (int, error) {
	data, err := a.parsedABI.Pack("decimals")
	if err != nil {
		return 0, NewAdapterError(a.chainID, "TokenDecimals", err, nil)
	}

	output, err := a.callContract(ctx, contract, data)
	if err != nil {
		return 0, err
	}

	results, err := a.parsedABI.Unpack("decimals", output)
	if err != nil || len(results) == 0 {
		return 0, NewAdapterError(a.chainID, "TokenDecimals", ErrContractRead, map[string]interface{}{
			"contract": contract,
		})
	}

	decimals, ok := results[0].(uint8)
	if !ok {
		return 0, NewAdapterError(a.chainID, "TokenDecimals", ErrContractRead, map[string]interface{}{
			"contract": contract,
		})
	}

	return int(decimals), nil
}

// readString executes a no-argument string read on a contract
func (a *EthereumAdapter) readString(ctx context.Context, contract, method string) (string, error) {
	data, err := a.parsedABI.Pack(method)
	if err != nil {
		return "", NewAdapterError(a.chainID, method, err, nil)
	}

	output, err := a.callContract(ctx, contract, data)
	if err != nil {
		return "", err
	}

	results, err := a.parsedABI.Unpack(method, output)
	if err != nil || len(results) == 0 {
		return "", NewAdapterError(a.chainID, method, ErrContractRead, map[string]interface{}{
			"contract": contract,
		})
	}

	value, ok := results[0].(string)
	if !ok {
		return "", NewAdapterError(a.chainID, method, ErrContractRead, map[string]interface{}{
			"contract": contract,
		})
	}

	return value, nil
}

// callContract performs a bounded eth_call against a contract
func (a *EthereumAdapter) callContract(ctx context.Context, contract string, data []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	to := common.HexToAddress(contract)
	output, err := a.client.CallContract(ctx, ethereum.CallMsg{
		To:   &to,
		Data: data,
	}, nil)
	if err != nil {
		return nil, NewAdapterError(a.chainID, "CallContract", err, map[string]interface{}{
			"contract": contract,
		})
	}

	return output, nil
}

// scaleToFloat converts a raw big.Int amount to a whole-unit float64
func scaleToFloat(raw *big.Int, decimals int) float64 {
	if raw == nil || raw.Sign() == 0 {
		return 0
	}

	divisor := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	value := new(big.Float).SetInt(raw)
	result, _ := new(big.Float).Quo(value, divisor).Float64()
	return result
}
