package service

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/detradefund/stack-mon-prime/internal/app/port"
	"github.com/detradefund/stack-mon-prime/internal/config"
	"github.com/detradefund/stack-mon-prime/internal/domain/entity"
)

const (
	fundAddress = "0xCCCC00000000000000000000000000000000000F"
	shareToken  = "0xCCCC000000000000000000000000000000000001"
)

type fakeAdapter struct {
	name      string
	positions []entity.Position
	err       error
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) GetPositions(ctx context.Context, address string) ([]entity.Position, error) {
	return f.positions, f.err
}

func (f *fakeAdapter) ValuePositions(ctx context.Context, positions []entity.Position) []entity.ValuedPosition {
	valued := make([]entity.ValuedPosition, 0, len(positions))
	for _, position := range positions {
		// Test positions use 6-decimal amounts valued at par; a nil
		// RawAmount marks a valuation failure.
		if position.RawAmount == nil {
			valued = append(valued, entity.ValuedPosition{
				Position:   position,
				Conversion: entity.FailedConversion(nil, position.Token.Symbol, "quote unavailable"),
			})
			continue
		}
		valued = append(valued, entity.ValuedPosition{
			Position: position,
			Conversion: entity.ConversionResult{
				SourceAmount: position.RawAmount.String(),
				SourceSymbol: position.Token.Symbol,
				TargetAmount: position.RawAmount.String(),
				Rate:         "1.000000",
				Source:       entity.SourceDirect,
				Target:       new(big.Int).Set(position.RawAmount),
			},
		})
	}
	return valued
}

type supplyChain struct {
	supply    *big.Int
	supplyErr error
}

func (s *supplyChain) BatchBalances(ctx context.Context, requests []port.BalanceRequestItem) ([]port.BalanceResultItem, error) {
	return nil, errors.New("not implemented")
}
func (s *supplyChain) TokenBalance(ctx context.Context, token, owner string) (*big.Int, error) {
	return nil, errors.New("not implemented")
}
func (s *supplyChain) TotalSupply(ctx context.Context, token string) (*big.Int, error) {
	return s.supply, s.supplyErr
}
func (s *supplyChain) ConvertToAssets(ctx context.Context, vault string, shares *big.Int) (*big.Int, error) {
	return nil, errors.New("not implemented")
}
func (s *supplyChain) PoolCoin(ctx context.Context, pool string, i int64) (string, error) {
	return "", errors.New("not implemented")
}
func (s *supplyChain) PoolBalance(ctx context.Context, pool string, i int64) (*big.Int, error) {
	return nil, errors.New("not implemented")
}
func (s *supplyChain) Earned(ctx context.Context, rewards, account string) (*big.Int, error) {
	return nil, errors.New("not implemented")
}
func (s *supplyChain) EarnedToken(ctx context.Context, rewards, account, token string) (*big.Int, error) {
	return nil, errors.New("not implemented")
}
func (s *supplyChain) Definition() entity.Network { return entity.Network{Name: "base"} }

type supplyProvider struct{ chain port.ChainClient }

func (s *supplyProvider) Client(network string) (port.ChainClient, error) { return s.chain, nil }

func aggregatorRegistry(t *testing.T) *config.Registry {
	t.Helper()
	registry, err := config.NewRegistry(&config.Config{
		Networks: []config.NetworkConfig{
			{Name: "ethereum", ChainID: 1, RPCURL: "http://localhost:8545", NativeSymbol: "ETH", NativeDecimals: 18, ReferenceDecimals: 6},
			{Name: "base", ChainID: 8453, RPCURL: "http://localhost:8546", NativeSymbol: "ETH", NativeDecimals: 18, ReferenceDecimals: 6},
		},
	})
	require.NoError(t, err)
	return registry
}

func newTestAggregator(t *testing.T, adapters []port.ProtocolAdapter, chain port.ChainClient) *Aggregator {
	t.Helper()
	return NewAggregator(
		adapters,
		&supplyProvider{chain: chain},
		aggregatorRegistry(t),
		config.FundConfig{Address: fundAddress, ShareToken: shareToken, ShareNetwork: "base", ShareDecimals: 18},
		config.RunnerConfig{MaxConcurrentAdapters: 2, AdapterTimeoutSeconds: 5, RunBudgetSeconds: 30},
		zap.NewNop(),
	)
}

func balancePosition(protocol, label string, amount int64) entity.Position {
	return entity.Position{
		Protocol:  protocol,
		Network:   "ethereum",
		Label:     label,
		Kind:      entity.KindBalance,
		Token:     entity.Token{Symbol: label, Decimals: 6, Network: "ethereum"},
		RawAmount: big.NewInt(amount),
		Decimals:  6,
	}
}

func TestBuildSnapshotMergesAdaptersAndTotalsAgree(t *testing.T) {
	lpBalance := big.NewInt(1000000)
	adapters := []port.ProtocolAdapter{
		&fakeAdapter{name: "spot", positions: []entity.Position{
			balancePosition("spot", "USDC", 2_000_000),
		}},
		&fakeAdapter{name: "convex", positions: []entity.Position{
			{
				Protocol: "convex", Network: "ethereum", Label: "crvUSD/USDC", Kind: entity.KindLPLeg,
				Token: entity.Token{Symbol: "USDC", Decimals: 6}, RawAmount: big.NewInt(600000), Decimals: 6,
				ParentAmount: lpBalance,
			},
			{
				Protocol: "convex", Network: "ethereum", Label: "crvUSD/USDC", Kind: entity.KindLPLeg,
				Token: entity.Token{Symbol: "crvUSD", Decimals: 6}, RawAmount: big.NewInt(400000), Decimals: 6,
				ParentAmount: lpBalance,
			},
		}},
	}

	supply, _ := new(big.Int).SetString("3000000000000000000", 10) // 3 shares
	aggregator := newTestAggregator(t, adapters, &supplyChain{supply: supply})

	snapshot, err := aggregator.BuildSnapshot(context.Background(), fundAddress)
	require.NoError(t, err)

	assert.Equal(t, fundAddress, snapshot.Address)
	assert.False(t, snapshot.CreatedAt.IsZero())
	assert.Empty(t, snapshot.Errors)

	// 2 USDC spot + 1 USDC of LP legs.
	assert.Equal(t, "3.000000", snapshot.NAV.USDC)
	assert.Equal(t, "3.000000", snapshot.Overview.TotalValue)

	// Tree totals agree with the overview.
	spotTotal := snapshot.Spot["ethereum"].Totals.Wei
	convexTotal := snapshot.Protocols["convex"].Totals.Wei
	assert.Equal(t, "2000000", spotTotal)
	assert.Equal(t, "1000000", convexTotal)

	// NAV of 3 USDC over 3 shares = 1 USDC per share.
	require.NotNil(t, snapshot.NAV.SharePrice)
	assert.Equal(t, "1.000000", *snapshot.NAV.SharePrice)

	// Overview is sorted descending.
	require.Len(t, snapshot.Overview.Positions, 2)
	assert.Equal(t, "ethereum.USDC", snapshot.Overview.Positions[0].Key)
}

func TestBuildSnapshotLPPositionHasEmptyRewardsSection(t *testing.T) {
	adapters := []port.ProtocolAdapter{
		&fakeAdapter{name: "convex", positions: []entity.Position{
			{
				Protocol: "convex", Network: "ethereum", Label: "crvUSD/USDC", Kind: entity.KindLPLeg,
				Token: entity.Token{Symbol: "USDC", Decimals: 6}, RawAmount: big.NewInt(500000), Decimals: 6,
				ParentAmount: big.NewInt(1),
			},
		}},
	}
	aggregator := newTestAggregator(t, adapters, &supplyChain{supply: big.NewInt(1)})

	snapshot, err := aggregator.BuildSnapshot(context.Background(), fundAddress)
	require.NoError(t, err)

	detail := snapshot.Protocols["convex"].Networks["ethereum"].Positions["crvUSD/USDC"]
	require.NotNil(t, detail.Rewards, "staked positions must carry a rewards section even when empty")
	assert.Empty(t, detail.Rewards)
	require.Len(t, detail.Legs, 1)
}

func TestBuildSnapshotZeroSupplyNullSharePrice(t *testing.T) {
	adapters := []port.ProtocolAdapter{
		&fakeAdapter{name: "spot", positions: []entity.Position{balancePosition("spot", "USDC", 1000000)}},
	}
	aggregator := newTestAggregator(t, adapters, &supplyChain{supply: big.NewInt(0)})

	snapshot, err := aggregator.BuildSnapshot(context.Background(), fundAddress)
	require.NoError(t, err)

	assert.Nil(t, snapshot.NAV.SharePrice)
	assert.Equal(t, "0", snapshot.NAV.TotalSupply)
	assert.Contains(t, strings.ToLower(snapshot.NAV.Note), "supply")
	assert.Equal(t, "1.000000", snapshot.NAV.USDC, "NAV itself is still reported")
}

func TestBuildSnapshotRecordsAdapterFailureAndContinues(t *testing.T) {
	adapters := []port.ProtocolAdapter{
		&fakeAdapter{name: "spot", positions: []entity.Position{balancePosition("spot", "USDC", 4000000)}},
		&fakeAdapter{name: "pendle", err: errors.New("rpc outage")},
	}
	aggregator := newTestAggregator(t, adapters, &supplyChain{supply: big.NewInt(1)})

	snapshot, err := aggregator.BuildSnapshot(context.Background(), fundAddress)
	require.NoError(t, err)

	require.Len(t, snapshot.Errors, 1)
	assert.Equal(t, "pendle", snapshot.Errors[0].Adapter)
	assert.Contains(t, snapshot.Errors[0].Message, "rpc outage")

	// Healthy adapters still contribute.
	assert.Equal(t, "4.000000", snapshot.NAV.USDC)
	_, hasPendle := snapshot.Protocols["pendle"]
	assert.False(t, hasPendle, "failed adapter leaves no partial tree")
}

func TestBuildSnapshotFailedLeafExcludedFromTotals(t *testing.T) {
	adapters := []port.ProtocolAdapter{
		&fakeAdapter{name: "spot", positions: []entity.Position{
			balancePosition("spot", "USDC", 2000000),
			{
				Protocol: "spot", Network: "ethereum", Label: "WETH", Kind: entity.KindBalance,
				Token: entity.Token{Symbol: "WETH", Decimals: 18, Network: "ethereum"},
				// nil RawAmount makes the fake adapter mark this leaf failed.
				RawAmount: nil, Decimals: 18,
			},
		}},
	}
	aggregator := newTestAggregator(t, adapters, &supplyChain{supply: big.NewInt(1)})

	snapshot, err := aggregator.BuildSnapshot(context.Background(), fundAddress)
	require.NoError(t, err)

	// The failed leaf stays visible with a Failed source...
	detail := snapshot.Spot["ethereum"].Positions["WETH"]
	assert.Equal(t, entity.SourceFailed, detail.Value.ConversionDetails.Source)
	// ...but contributes nothing.
	assert.Equal(t, "2.000000", snapshot.NAV.USDC)
}

func TestBuildSnapshotSupplyReadFailure(t *testing.T) {
	adapters := []port.ProtocolAdapter{
		&fakeAdapter{name: "spot", positions: []entity.Position{balancePosition("spot", "USDC", 1000000)}},
	}
	aggregator := newTestAggregator(t, adapters, &supplyChain{supplyErr: errors.New("rpc down")})

	snapshot, err := aggregator.BuildSnapshot(context.Background(), fundAddress)
	require.NoError(t, err)

	assert.Nil(t, snapshot.NAV.SharePrice)
	require.NotEmpty(t, snapshot.Errors)
	assert.Equal(t, "share_supply", snapshot.Errors[len(snapshot.Errors)-1].Adapter)
}
