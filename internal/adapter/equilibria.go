package adapter

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/detradefund/stack-mon-prime/internal/app/port"
	"github.com/detradefund/stack-mon-prime/internal/client"
	"github.com/detradefund/stack-mon-prime/internal/config"
	"github.com/detradefund/stack-mon-prime/internal/domain/entity"
)

const equilibriaProtocol = "equilibria"

// EquilibriaAdapter reads Pendle LP positions staked through the
// Equilibria booster. The LP amount is the balance on the booster's
// reward pool; its value is a simulated remove-liquidity into the
// reference asset. Pending rewards are market-quoted individually.
type EquilibriaAdapter struct {
	pools     []config.EquilibriaPoolConfig
	registry  *config.Registry
	chains    port.ChainClientProvider
	converter Converter
	pendle    *client.PendleClient
	logger    *zap.Logger
}

var _ port.ProtocolAdapter = (*EquilibriaAdapter)(nil)

func NewEquilibriaAdapter(
	pools []config.EquilibriaPoolConfig,
	registry *config.Registry,
	chains port.ChainClientProvider,
	converter Converter,
	pendle *client.PendleClient,
	logger *zap.Logger,
) *EquilibriaAdapter {
	return &EquilibriaAdapter{
		pools:     pools,
		registry:  registry,
		chains:    chains,
		converter: converter,
		pendle:    pendle,
		logger:    logger.Named("equilibria_adapter"),
	}
}

func (a *EquilibriaAdapter) Name() string { return equilibriaProtocol }

// GetPositions lists staked LP balances plus pending rewards for every
// configured pool.
func (a *EquilibriaAdapter) GetPositions(ctx context.Context, address string) ([]entity.Position, error) {
	var positions []entity.Position

	for _, pool := range a.pools {
		chainClient, err := a.chains.Client(pool.Network)
		if err != nil {
			return nil, err
		}

		lpBalance, err := chainClient.TokenBalance(ctx, pool.RewardPool, address)
		if err != nil {
			return nil, fmt.Errorf("equilibria pool %s staked balance: %w", pool.Name, err)
		}
		if lpBalance.Sign() == 0 {
			continue
		}

		positions = append(positions, entity.Position{
			Protocol: equilibriaProtocol,
			Network:  pool.Network,
			Label:    pool.Name,
			Kind:     entity.KindBalance,
			Token: entity.Token{
				Address:  pool.Market,
				Symbol:   pool.Name,
				Decimals: pool.LPDecimals,
				Network:  pool.Network,
				Protocol: equilibriaProtocol,
				Market:   pool.Market,
			},
			RawAmount: lpBalance,
			Decimals:  pool.LPDecimals,
		})

		for _, symbol := range pool.RewardSymbols {
			token, err := a.registry.Token(pool.Network, symbol)
			if err != nil {
				return nil, err
			}
			earned, err := chainClient.EarnedToken(ctx, pool.RewardPool, address, token.Address)
			if err != nil {
				return nil, fmt.Errorf("equilibria pool %s earned %s: %w", pool.Name, symbol, err)
			}
			if earned.Sign() == 0 {
				continue
			}
			positions = append(positions, entity.Position{
				Protocol:     equilibriaProtocol,
				Network:      pool.Network,
				Label:        pool.Name,
				Kind:         entity.KindReward,
				Token:        token,
				RawAmount:    earned,
				Decimals:     token.Decimals,
				ParentAmount: lpBalance,
			})
		}
	}
	return positions, nil
}

// ValuePositions values LP balances through the Pendle remove-liquidity
// simulation and rewards through the standard conversion policy.
func (a *EquilibriaAdapter) ValuePositions(ctx context.Context, positions []entity.Position) []entity.ValuedPosition {
	valued := make([]entity.ValuedPosition, 0, len(positions))

	for _, position := range positions {
		if position.Kind != entity.KindBalance {
			valued = append(valued, valueAll(ctx, a.converter, a.logger, []entity.Position{position})...)
			continue
		}

		conversion, err := a.lpConversion(ctx, position)
		if err != nil {
			a.logger.Warn("Failed to value staked LP position",
				zap.String("pool", position.Label),
				zap.String("network", position.Network),
				zap.Error(err))
			conversion = entity.FailedConversion(position.RawAmount, position.Token.Symbol, err.Error())
		}
		valued = append(valued, entity.ValuedPosition{Position: position, Conversion: conversion})
	}
	return valued
}

func (a *EquilibriaAdapter) lpConversion(ctx context.Context, position entity.Position) (entity.ConversionResult, error) {
	network, err := a.registry.Network(position.Network)
	if err != nil {
		return entity.ConversionResult{}, err
	}
	return a.pendle.RemoveLiquidityQuote(ctx,
		network.ChainID,
		position.Token.Market,
		position.Token.Symbol,
		position.Decimals,
		network.ReferenceAddress,
		network.ReferenceDecimals,
		position.RawAmount,
	)
}
