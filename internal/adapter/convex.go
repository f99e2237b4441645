package adapter

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"github.com/detradefund/stack-mon-prime/internal/app/port"
	"github.com/detradefund/stack-mon-prime/internal/config"
	"github.com/detradefund/stack-mon-prime/internal/domain/entity"
	"github.com/detradefund/stack-mon-prime/internal/pkg/utils"
)

const convexProtocol = "convex"

// ConvexAdapter reads Curve LP positions staked through Convex. The
// LP share is decomposed into pro-rata amounts of the pool's coins
// (read live from the pool, never assumed), and each leg is valued
// separately. Accrued but unclaimed rewards ride along as their own
// constituents.
type ConvexAdapter struct {
	pools     []config.ConvexPoolConfig
	registry  *config.Registry
	chains    port.ChainClientProvider
	converter Converter
	logger    *zap.Logger
}

var _ port.ProtocolAdapter = (*ConvexAdapter)(nil)

func NewConvexAdapter(pools []config.ConvexPoolConfig, registry *config.Registry, chains port.ChainClientProvider, converter Converter, logger *zap.Logger) *ConvexAdapter {
	return &ConvexAdapter{
		pools:     pools,
		registry:  registry,
		chains:    chains,
		converter: converter,
		logger:    logger.Named("convex_adapter"),
	}
}

func (a *ConvexAdapter) Name() string { return convexProtocol }

// GetPositions decomposes every staked pool with a non-zero balance.
func (a *ConvexAdapter) GetPositions(ctx context.Context, address string) ([]entity.Position, error) {
	var positions []entity.Position

	for _, pool := range a.pools {
		poolPositions, err := a.poolPositions(ctx, pool, address)
		if err != nil {
			return nil, fmt.Errorf("convex pool %s: %w", pool.Name, err)
		}
		positions = append(positions, poolPositions...)
	}
	return positions, nil
}

func (a *ConvexAdapter) poolPositions(ctx context.Context, pool config.ConvexPoolConfig, address string) ([]entity.Position, error) {
	chainClient, err := a.chains.Client(pool.Network)
	if err != nil {
		return nil, err
	}

	// Staked LP balance lives on the rewards contract.
	lpBalance, err := chainClient.TokenBalance(ctx, pool.RewardsContract, address)
	if err != nil {
		return nil, fmt.Errorf("staked balance: %w", err)
	}
	if lpBalance.Sign() == 0 {
		return nil, nil
	}

	totalSupply, err := chainClient.TotalSupply(ctx, pool.LPToken)
	if err != nil {
		return nil, fmt.Errorf("LP total supply: %w", err)
	}
	if totalSupply.Sign() == 0 {
		return nil, fmt.Errorf("LP token %s has zero total supply", pool.LPToken)
	}

	positions := make([]entity.Position, 0, pool.NCoins+len(pool.RewardSymbols))

	for i := 0; i < pool.NCoins; i++ {
		coinAddress, err := chainClient.PoolCoin(ctx, pool.LPToken, int64(i))
		if err != nil {
			return nil, fmt.Errorf("coins(%d): %w", i, err)
		}
		reserve, err := chainClient.PoolBalance(ctx, pool.LPToken, int64(i))
		if err != nil {
			return nil, fmt.Errorf("balances(%d): %w", i, err)
		}

		token, err := a.coinToken(pool, i, coinAddress)
		if err != nil {
			return nil, err
		}

		positions = append(positions, entity.Position{
			Protocol:     convexProtocol,
			Network:      pool.Network,
			Label:        pool.Name,
			Kind:         entity.KindLPLeg,
			Token:        token,
			RawAmount:    utils.ProRata(reserve, lpBalance, totalSupply),
			Decimals:     token.Decimals,
			ParentAmount: lpBalance,
		})
	}

	rewards, err := a.rewardPositions(ctx, chainClient, pool, address, lpBalance)
	if err != nil {
		return nil, err
	}
	return append(positions, rewards...), nil
}

func (a *ConvexAdapter) rewardPositions(ctx context.Context, chainClient port.ChainClient, pool config.ConvexPoolConfig, address string, lpBalance *big.Int) ([]entity.Position, error) {
	var positions []entity.Position

	for i, symbol := range pool.RewardSymbols {
		token, err := a.registry.Token(pool.Network, symbol)
		if err != nil {
			return nil, err
		}

		// The primary reward uses the single-argument view; extra reward
		// tokens are tracked per token.
		var earned *big.Int
		if i == 0 {
			earned, err = chainClient.Earned(ctx, pool.RewardsContract, address)
		} else {
			earned, err = chainClient.EarnedToken(ctx, pool.RewardsContract, address, token.Address)
		}
		if err != nil {
			return nil, fmt.Errorf("earned %s: %w", symbol, err)
		}
		if earned.Sign() == 0 {
			continue
		}

		positions = append(positions, entity.Position{
			Protocol:     convexProtocol,
			Network:      pool.Network,
			Label:        pool.Name,
			Kind:         entity.KindReward,
			Token:        token,
			RawAmount:    earned,
			Decimals:     token.Decimals,
			ParentAmount: lpBalance,
		})
	}
	return positions, nil
}

// coinToken resolves a pool coin against the registry, falling back to
// the configured symbol list when the coin is not separately tracked.
func (a *ConvexAdapter) coinToken(pool config.ConvexPoolConfig, i int, coinAddress string) (entity.Token, error) {
	if token, err := a.registry.TokenByAddress(pool.Network, coinAddress); err == nil {
		return token, nil
	}
	if i < len(pool.CoinSymbols) {
		if token, err := a.registry.Token(pool.Network, pool.CoinSymbols[i]); err == nil {
			return token, nil
		}
	}
	return entity.Token{}, fmt.Errorf("pool coin %s (index %d): %w", coinAddress, i, entity.ErrUnknownToken)
}

func (a *ConvexAdapter) ValuePositions(ctx context.Context, positions []entity.Position) []entity.ValuedPosition {
	return valueAll(ctx, a.converter, a.logger, positions)
}
