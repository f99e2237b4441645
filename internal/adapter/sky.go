package adapter

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/detradefund/stack-mon-prime/internal/app/port"
	"github.com/detradefund/stack-mon-prime/internal/config"
	"github.com/detradefund/stack-mon-prime/internal/domain/entity"
)

const skyProtocol = "sky"

// SkyAdapter reads Sky protocol savings positions (sUSDS). The token
// is an ERC-4626 wrapper, so valuation goes through the on-chain
// convertToAssets rate before the underlying is market-quoted.
type SkyAdapter struct {
	registry  *config.Registry
	chains    port.ChainClientProvider
	converter Converter
	logger    *zap.Logger
}

var _ port.ProtocolAdapter = (*SkyAdapter)(nil)

func NewSkyAdapter(registry *config.Registry, chains port.ChainClientProvider, converter Converter, logger *zap.Logger) *SkyAdapter {
	return &SkyAdapter{
		registry:  registry,
		chains:    chains,
		converter: converter,
		logger:    logger.Named("sky_adapter"),
	}
}

func (a *SkyAdapter) Name() string { return skyProtocol }

// GetPositions reads every registered Sky token balance, skipping
// zeroes.
func (a *SkyAdapter) GetPositions(ctx context.Context, address string) ([]entity.Position, error) {
	var positions []entity.Position

	for _, token := range a.registry.TokensByProtocol(skyProtocol) {
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
			Protocol:  skyProtocol,
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

func (a *SkyAdapter) ValuePositions(ctx context.Context, positions []entity.Position) []entity.ValuedPosition {
	return valueAll(ctx, a.converter, a.logger, positions)
}
