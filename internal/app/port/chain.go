package port

import (
	"context"
	"math/big"

	"github.com/detradefund/stack-mon-prime/internal/domain/entity"
)

// BalanceRequestType distinguishes native from ERC-20 balance reads.
type BalanceRequestType int

const (
	NativeBalanceRequest BalanceRequestType = iota
	TokenBalanceRequest
)

// BalanceRequestItem is one entry of a batched balance read.
type BalanceRequestItem struct {
	ID            string
	Type          BalanceRequestType
	WalletAddress string
	TokenAddress  string
	TokenSymbol   string
	TokenDecimals uint8
}

// BalanceResultItem is the outcome of one batched balance read.
// Per-item errors never fail the batch.
type BalanceResultItem struct {
	RequestID     string
	WalletAddress string
	TokenAddress  string
	TokenSymbol   string
	Decimals      uint8
	IsNative      bool
	Balance       *big.Int
	Error         error
}

// ChainClient issues read-only contract calls against one network.
type ChainClient interface {
	// BatchBalances fetches native and token balances in one JSON-RPC
	// batch round trip.
	BatchBalances(ctx context.Context, requests []BalanceRequestItem) ([]BalanceResultItem, error)

	// TokenBalance reads balanceOf(owner) on an ERC-20 contract.
	TokenBalance(ctx context.Context, tokenAddress, owner string) (*big.Int, error)

	// TotalSupply reads totalSupply() on an ERC-20 contract.
	TotalSupply(ctx context.Context, tokenAddress string) (*big.Int, error)

	// ConvertToAssets reads the ERC-4626 share-to-assets rate view.
	ConvertToAssets(ctx context.Context, vaultAddress string, shares *big.Int) (*big.Int, error)

	// PoolCoin reads coins(i) on a Curve-style pool.
	PoolCoin(ctx context.Context, poolAddress string, i int64) (string, error)

	// PoolBalance reads balances(i) on a Curve-style pool.
	PoolBalance(ctx context.Context, poolAddress string, i int64) (*big.Int, error)

	// Earned reads earned(account) on a staking rewards contract.
	Earned(ctx context.Context, rewardsAddress, account string) (*big.Int, error)

	// EarnedToken reads earned(account, rewardToken) on reward pools
	// that track multiple reward assets.
	EarnedToken(ctx context.Context, rewardsAddress, account, rewardToken string) (*big.Int, error)

	// Definition returns the network this client reads from.
	Definition() entity.Network
}

// ChainClientProvider hands out one client per network, dialing lazily
// and reusing connections across adapters.
type ChainClientProvider interface {
	Client(network string) (ChainClient, error)
}
