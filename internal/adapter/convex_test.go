package adapter

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/detradefund/stack-mon-prime/internal/app/port"
	"github.com/detradefund/stack-mon-prime/internal/config"
	"github.com/detradefund/stack-mon-prime/internal/domain/entity"
	"github.com/detradefund/stack-mon-prime/internal/pkg/utils"
)

const (
	testRefAddr     = "0xBBBB000000000000000000000000000000000001"
	testCrvUSDAddr  = "0xBBBB000000000000000000000000000000000002"
	testCRVAddr     = "0xBBBB000000000000000000000000000000000003"
	testCVXAddr     = "0xBBBB000000000000000000000000000000000004"
	testLPAddr      = "0xBBBB000000000000000000000000000000000005"
	testRewardsAddr = "0xBBBB000000000000000000000000000000000006"
	testHolder      = "0xBBBB00000000000000000000000000000000000F"
)

// stubChain implements port.ChainClient with programmable responses.
type stubChain struct {
	balances     map[string]*big.Int // contract -> balanceOf(holder)
	totalSupply  map[string]*big.Int
	poolCoins    map[int64]string
	poolBalances map[int64]*big.Int
	earned       *big.Int
	earnedByTok  map[string]*big.Int
	batch        []port.BalanceResultItem
	batchErr     error
}

func (s *stubChain) BatchBalances(ctx context.Context, requests []port.BalanceRequestItem) ([]port.BalanceResultItem, error) {
	return s.batch, s.batchErr
}
func (s *stubChain) TokenBalance(ctx context.Context, token, owner string) (*big.Int, error) {
	if balance, ok := s.balances[token]; ok {
		return balance, nil
	}
	return big.NewInt(0), nil
}
func (s *stubChain) TotalSupply(ctx context.Context, token string) (*big.Int, error) {
	if supply, ok := s.totalSupply[token]; ok {
		return supply, nil
	}
	return nil, errors.New("unknown token")
}
func (s *stubChain) ConvertToAssets(ctx context.Context, vault string, shares *big.Int) (*big.Int, error) {
	return nil, errors.New("not implemented")
}
func (s *stubChain) PoolCoin(ctx context.Context, pool string, i int64) (string, error) {
	coin, ok := s.poolCoins[i]
	if !ok {
		return "", errors.New("index out of range")
	}
	return coin, nil
}
func (s *stubChain) PoolBalance(ctx context.Context, pool string, i int64) (*big.Int, error) {
	balance, ok := s.poolBalances[i]
	if !ok {
		return nil, errors.New("index out of range")
	}
	return balance, nil
}
func (s *stubChain) Earned(ctx context.Context, rewards, account string) (*big.Int, error) {
	return s.earned, nil
}
func (s *stubChain) EarnedToken(ctx context.Context, rewards, account, token string) (*big.Int, error) {
	if amount, ok := s.earnedByTok[token]; ok {
		return amount, nil
	}
	return big.NewInt(0), nil
}
func (s *stubChain) Definition() entity.Network { return entity.Network{Name: "ethereum"} }

type stubProvider struct{ chain port.ChainClient }

func (s *stubProvider) Client(network string) (port.ChainClient, error) { return s.chain, nil }

// directConverter values everything 1:1 after decimal rescale.
type directConverter struct{}

func (directConverter) ToReference(ctx context.Context, network string, token entity.Token, amount *big.Int) (entity.ConversionResult, error) {
	target := utils.RescaleAmount(amount, token.Decimals, 6)
	return entity.ConversionResult{
		SourceAmount: amount.String(),
		SourceSymbol: token.Symbol,
		TargetAmount: target.String(),
		Rate:         "1.000000",
		Source:       entity.SourceDirect,
		Target:       target,
	}, nil
}

func adapterRegistry(t *testing.T) *config.Registry {
	t.Helper()
	registry, err := config.NewRegistry(&config.Config{
		Networks: []config.NetworkConfig{
			{
				Name:              "ethereum",
				ChainID:           1,
				RPCURL:            "http://localhost:8545",
				NativeSymbol:      "ETH",
				NativeDecimals:    18,
				ReferenceAddress:  testRefAddr,
				ReferenceDecimals: 6,
			},
		},
		Tokens: []entity.Token{
			{Address: testRefAddr, Symbol: "USDC", Decimals: 6, Network: "ethereum", Stable: true},
			{Address: testCrvUSDAddr, Symbol: "crvUSD", Decimals: 18, Network: "ethereum", Stable: true, Protocol: "curve-coin"},
			{Address: testCRVAddr, Symbol: "CRV", Decimals: 18, Network: "ethereum", Protocol: "reward"},
			{Address: testCVXAddr, Symbol: "CVX", Decimals: 18, Network: "ethereum", Protocol: "reward"},
		},
	})
	require.NoError(t, err)
	return registry
}

func convexPool() config.ConvexPoolConfig {
	return config.ConvexPoolConfig{
		Name:            "crvUSD/USDC",
		Network:         "ethereum",
		LPToken:         testLPAddr,
		RewardsContract: testRewardsAddr,
		NCoins:          2,
		CoinSymbols:     []string{"USDC", "crvUSD"},
		RewardSymbols:   []string{"CRV", "CVX"},
	}
}

func TestConvexDecomposesLPProRata(t *testing.T) {
	lpBalance, _ := new(big.Int).SetString("250000000000000000000", 10)   // 250 LP
	totalSupply, _ := new(big.Int).SetString("1000000000000000000000", 10) // 1000 LP
	usdcReserve := big.NewInt(500000000001)                                // ~500k USDC, 6d
	crvUSDReserve, _ := new(big.Int).SetString("500000000000000000000001", 10)

	chain := &stubChain{
		balances:    map[string]*big.Int{testRewardsAddr: lpBalance},
		totalSupply: map[string]*big.Int{testLPAddr: totalSupply},
		poolCoins:   map[int64]string{0: testRefAddr, 1: testCrvUSDAddr},
		poolBalances: map[int64]*big.Int{
			0: usdcReserve,
			1: crvUSDReserve,
		},
		earned:      big.NewInt(0),
		earnedByTok: map[string]*big.Int{},
	}

	a := NewConvexAdapter([]config.ConvexPoolConfig{convexPool()}, adapterRegistry(t), &stubProvider{chain: chain}, directConverter{}, zap.NewNop())

	positions, err := a.GetPositions(context.Background(), testHolder)
	require.NoError(t, err)
	require.Len(t, positions, 2, "two legs, no rewards")

	// Each leg is reserve * lpBalance / totalSupply, within 1 base unit.
	for i, reserve := range []*big.Int{usdcReserve, crvUSDReserve} {
		expected := new(big.Int).Mul(reserve, lpBalance)
		expected.Quo(expected, totalSupply)
		diff := new(big.Int).Sub(expected, positions[i].RawAmount)
		assert.LessOrEqual(t, diff.CmpAbs(big.NewInt(1)), 0)
		assert.Equal(t, entity.KindLPLeg, positions[i].Kind)
		assert.Equal(t, "crvUSD/USDC", positions[i].Label)
		assert.Equal(t, lpBalance.String(), positions[i].ParentAmount.String())
	}
}

func TestConvexIncludesNonZeroRewards(t *testing.T) {
	lpBalance, _ := new(big.Int).SetString("1000000000000000000", 10)
	chain := &stubChain{
		balances:    map[string]*big.Int{testRewardsAddr: lpBalance},
		totalSupply: map[string]*big.Int{testLPAddr: new(big.Int).Mul(lpBalance, big.NewInt(10))},
		poolCoins:   map[int64]string{0: testRefAddr, 1: testCrvUSDAddr},
		poolBalances: map[int64]*big.Int{
			0: big.NewInt(1000000),
			1: big.NewInt(1000000),
		},
		earned: big.NewInt(777),
		earnedByTok: map[string]*big.Int{
			testCVXAddr: big.NewInt(0), // zero CVX accrued, skipped
		},
	}

	a := NewConvexAdapter([]config.ConvexPoolConfig{convexPool()}, adapterRegistry(t), &stubProvider{chain: chain}, directConverter{}, zap.NewNop())

	positions, err := a.GetPositions(context.Background(), testHolder)
	require.NoError(t, err)

	var rewards []entity.Position
	for _, position := range positions {
		if position.Kind == entity.KindReward {
			rewards = append(rewards, position)
		}
	}
	require.Len(t, rewards, 1)
	assert.Equal(t, "CRV", rewards[0].Token.Symbol)
	assert.Equal(t, "777", rewards[0].RawAmount.String())
}

func TestConvexSkipsPoolWithoutStake(t *testing.T) {
	chain := &stubChain{
		balances: map[string]*big.Int{}, // no staked balance
	}
	a := NewConvexAdapter([]config.ConvexPoolConfig{convexPool()}, adapterRegistry(t), &stubProvider{chain: chain}, directConverter{}, zap.NewNop())

	positions, err := a.GetPositions(context.Background(), testHolder)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestConvexGetPositionsIsIdempotent(t *testing.T) {
	lpBalance, _ := new(big.Int).SetString("250000000000000000000", 10)
	totalSupply, _ := new(big.Int).SetString("1000000000000000000000", 10)
	chain := &stubChain{
		balances:    map[string]*big.Int{testRewardsAddr: lpBalance},
		totalSupply: map[string]*big.Int{testLPAddr: totalSupply},
		poolCoins:   map[int64]string{0: testRefAddr, 1: testCrvUSDAddr},
		poolBalances: map[int64]*big.Int{
			0: big.NewInt(500000000000),
			1: big.NewInt(500000000000),
		},
		earned:      big.NewInt(123),
		earnedByTok: map[string]*big.Int{},
	}

	a := NewConvexAdapter([]config.ConvexPoolConfig{convexPool()}, adapterRegistry(t), &stubProvider{chain: chain}, directConverter{}, zap.NewNop())

	first, err := a.GetPositions(context.Background(), testHolder)
	require.NoError(t, err)
	second, err := a.GetPositions(context.Background(), testHolder)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].RawAmount.String(), second[i].RawAmount.String())
		assert.Equal(t, first[i].Token.Symbol, second[i].Token.Symbol)
	}
}
