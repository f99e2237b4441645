package adapter

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/detradefund/stack-mon-prime/internal/app/port"
	"github.com/detradefund/stack-mon-prime/internal/config"
	"github.com/detradefund/stack-mon-prime/internal/domain/entity"
)

const spotProtocol = "spot"

// SpotAdapter reads plain wallet holdings: the native asset plus every
// untagged registry token, batched into one RPC round trip per
// network. The native asset is represented by its wrapped form so it
// prices like any ERC-20.
type SpotAdapter struct {
	registry  *config.Registry
	chains    port.ChainClientProvider
	converter Converter
	logger    *zap.Logger
}

var _ port.ProtocolAdapter = (*SpotAdapter)(nil)

func NewSpotAdapter(registry *config.Registry, chains port.ChainClientProvider, converter Converter, logger *zap.Logger) *SpotAdapter {
	return &SpotAdapter{
		registry:  registry,
		chains:    chains,
		converter: converter,
		logger:    logger.Named("spot_adapter"),
	}
}

func (a *SpotAdapter) Name() string { return spotProtocol }

// GetPositions lists non-zero spot balances across all networks.
func (a *SpotAdapter) GetPositions(ctx context.Context, address string) ([]entity.Position, error) {
	var positions []entity.Position

	for _, network := range a.registry.Networks() {
		chainClient, err := a.chains.Client(network.Name)
		if err != nil {
			return nil, err
		}

		tokens := a.registry.SpotTokens(network.Name)
		requests := make([]port.BalanceRequestItem, 0, len(tokens)+1)
		requests = append(requests, port.BalanceRequestItem{
			ID:            network.Name + "/native",
			Type:          port.NativeBalanceRequest,
			WalletAddress: address,
			TokenSymbol:   network.NativeSymbol,
			TokenDecimals: network.NativeDecimals,
		})
		for _, token := range tokens {
			requests = append(requests, port.BalanceRequestItem{
				ID:            network.Name + "/" + token.Symbol,
				Type:          port.TokenBalanceRequest,
				WalletAddress: address,
				TokenAddress:  token.Address,
				TokenSymbol:   token.Symbol,
				TokenDecimals: token.Decimals,
			})
		}

		results, err := chainClient.BatchBalances(ctx, requests)
		if err != nil {
			return nil, fmt.Errorf("spot balances on %s: %w", network.Name, err)
		}

		for _, result := range results {
			if result.Error != nil {
				a.logger.Warn("Unreadable spot balance",
					zap.String("network", network.Name),
					zap.String("token", result.TokenSymbol),
					zap.Error(result.Error))
				// Keep the constituent so the snapshot distinguishes
				// "read failed" from "zero position".
				positions = append(positions, entity.Position{
					Protocol: spotProtocol,
					Network:  network.Name,
					Label:    result.TokenSymbol,
					Kind:     entity.KindBalance,
					Token: entity.Token{
						Address:  result.TokenAddress,
						Symbol:   result.TokenSymbol,
						Decimals: result.Decimals,
						Network:  network.Name,
					},
					Decimals:  result.Decimals,
					ReadError: fmt.Sprintf("balance read failed: %v", result.Error),
				})
				continue
			}
			if result.Balance == nil || result.Balance.Sign() == 0 {
				continue
			}

			token := entity.Token{
				Address:  result.TokenAddress,
				Symbol:   result.TokenSymbol,
				Decimals: result.Decimals,
				Network:  network.Name,
			}
			if result.IsNative {
				// Native converts 1:1 to wrapped, which is what gets quoted.
				token.Address = network.WrappedNativeAddress
			} else if registered, lookupErr := a.registry.TokenByAddress(network.Name, result.TokenAddress); lookupErr == nil {
				token = registered
			}

			positions = append(positions, entity.Position{
				Protocol:  spotProtocol,
				Network:   network.Name,
				Label:     result.TokenSymbol,
				Kind:      entity.KindBalance,
				Token:     token,
				RawAmount: result.Balance,
				Decimals:  result.Decimals,
			})
		}
	}
	return positions, nil
}

// ValuePositions converts each spot balance to the reference asset.
func (a *SpotAdapter) ValuePositions(ctx context.Context, positions []entity.Position) []entity.ValuedPosition {
	return valueAll(ctx, a.converter, a.logger, positions)
}
