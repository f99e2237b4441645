package adapter

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/detradefund/stack-mon-prime/internal/app/port"
	"github.com/detradefund/stack-mon-prime/internal/config"
	"github.com/detradefund/stack-mon-prime/internal/domain/entity"
)

const pendleProtocol = "pendle"

// PendleAdapter reads principal token (PT) holdings. Valuation is
// maturity-aware: live PTs are quoted through the Pendle market,
// matured ones redeem 1:1 into their underlying.
type PendleAdapter struct {
	registry  *config.Registry
	chains    port.ChainClientProvider
	converter Converter
	logger    *zap.Logger
}

var _ port.ProtocolAdapter = (*PendleAdapter)(nil)

func NewPendleAdapter(registry *config.Registry, chains port.ChainClientProvider, converter Converter, logger *zap.Logger) *PendleAdapter {
	return &PendleAdapter{
		registry:  registry,
		chains:    chains,
		converter: converter,
		logger:    logger.Named("pendle_adapter"),
	}
}

func (a *PendleAdapter) Name() string { return pendleProtocol }

// GetPositions reads every registered PT balance, skipping zeroes.
func (a *PendleAdapter) GetPositions(ctx context.Context, address string) ([]entity.Position, error) {
	var positions []entity.Position

	for _, token := range a.registry.TokensByProtocol(pendleProtocol) {
		chainClient, err := a.chains.Client(token.Network)
		if err != nil {
			return nil, err
		}

		balance, err := chainClient.TokenBalance(ctx, token.Address, address)
		if err != nil {
			return nil, fmt.Errorf("%s balance on %s: %w", token.Symbol, token.Network, err)
		}
		if balance.Sign() == 0 {
			continue
		}

		positions = append(positions, entity.Position{
			Protocol:  pendleProtocol,
			Network:   token.Network,
			Label:     token.Symbol,
			Kind:      entity.KindBalance,
			Token:     token,
			RawAmount: balance,
			Decimals:  token.Decimals,
		})
	}
	return positions, nil
}

func (a *PendleAdapter) ValuePositions(ctx context.Context, positions []entity.Position) []entity.ValuedPosition {
	return valueAll(ctx, a.converter, a.logger, positions)
}
