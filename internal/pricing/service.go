// Package pricing converts arbitrary position amounts into the
// reference asset, choosing the cheapest trustworthy source for each
// token: a protocol peg, an on-chain redemption rate, maturity parity,
// or a live market quote.
package pricing

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/detradefund/stack-mon-prime/internal/app/port"
	"github.com/detradefund/stack-mon-prime/internal/client"
	"github.com/detradefund/stack-mon-prime/internal/config"
	"github.com/detradefund/stack-mon-prime/internal/domain/entity"
	"github.com/detradefund/stack-mon-prime/internal/pkg/metrics"
	"github.com/detradefund/stack-mon-prime/internal/pkg/utils"
)

const (
	quoteCacheTTL     = 5 * time.Minute
	quoteCacheCleanup = 10 * time.Minute
)

// Service applies the conversion policy. Safe for concurrent use.
type Service struct {
	registry *config.Registry
	chains   port.ChainClientProvider
	quoter   port.Quoter
	pendle   *client.PendleClient
	cache    *gocache.Cache
	logger   *zap.Logger
	now      func() int64
}

// NewService wires the conversion policy. pendle may be nil when no
// principal-token markets are configured.
func NewService(
	registry *config.Registry,
	chains port.ChainClientProvider,
	quoter port.Quoter,
	pendle *client.PendleClient,
	logger *zap.Logger,
) *Service {
	return &Service{
		registry: registry,
		chains:   chains,
		quoter:   quoter,
		pendle:   pendle,
		cache:    gocache.New(quoteCacheTTL, quoteCacheCleanup),
		logger:   logger.Named("pricing"),
		now:      func() int64 { return time.Now().UTC().Unix() },
	}
}

// ToReference converts an exact token amount into the network's
// reference asset. A returned error means the value is unknown; the
// caller must record the position as valuation-failed, never as zero.
func (s *Service) ToReference(ctx context.Context, networkName string, token entity.Token, amount *big.Int) (entity.ConversionResult, error) {
	network, err := s.registry.Network(networkName)
	if err != nil {
		return entity.ConversionResult{}, err
	}
	if amount == nil {
		amount = big.NewInt(0)
	}

	cacheKey := fmt.Sprintf("%s|%s|%s", networkName, strings.ToLower(token.Address), amount.String())
	if cached, found := s.cache.Get(cacheKey); found {
		return cached.(entity.ConversionResult), nil
	}

	result, err := s.convert(ctx, network, token, amount)
	if err != nil {
		metrics.QuoteRequests.WithLabelValues(entity.SourceFailed).Inc()
		return entity.ConversionResult{}, err
	}

	metrics.QuoteRequests.WithLabelValues(result.Source).Inc()
	s.cache.Set(cacheKey, result, gocache.DefaultExpiration)
	return result, nil
}

func (s *Service) convert(ctx context.Context, network entity.Network, token entity.Token, amount *big.Int) (entity.ConversionResult, error) {
	// Peg shortcut: the reference asset itself and protocol-pegged
	// stables convert 1:1, only decimals change.
	if strings.EqualFold(token.Address, network.ReferenceAddress) || token.Stable {
		return s.directResult(token, amount, network.ReferenceDecimals), nil
	}

	if token.YieldBearing && token.Underlying != nil {
		return s.onChainRateResult(ctx, network, token, amount)
	}

	if token.Expiry != 0 && token.Underlying != nil {
		if token.Expired(s.now()) {
			return s.maturedPTResult(ctx, network, token, amount)
		}
		if token.Market != "" && s.pendle != nil {
			result, err := s.pendleResult(ctx, network, token, amount)
			if err == nil {
				return result, nil
			}
			s.logger.Warn("Pendle quote failed, falling back to market quote",
				zap.String("token", token.Symbol),
				zap.Error(err))
		}
	}

	return s.marketQuote(ctx, network, token.Address, token.Symbol, token.Decimals, amount)
}

func (s *Service) directResult(token entity.Token, amount *big.Int, referenceDecimals uint8) entity.ConversionResult {
	target := utils.RescaleAmount(amount, token.Decimals, referenceDecimals)
	return entity.ConversionResult{
		SourceAmount:  amount.String(),
		SourceSymbol:  token.Symbol,
		TargetAmount:  target.String(),
		Rate:          "1.000000",
		PriceImpact:   "0.0000%",
		FeePercentage: "0.0000%",
		Source:        entity.SourceDirect,
		Fallback:      false,
		Note:          "Direct 1:1 conversion",
		Target:        target,
	}
}

// onChainRateResult reads the ERC-4626 redemption rate, converts the
// shares to underlying units, then converts the underlying.
func (s *Service) onChainRateResult(ctx context.Context, network entity.Network, token entity.Token, amount *big.Int) (entity.ConversionResult, error) {
	chainClient, err := s.chains.Client(network.Name)
	if err != nil {
		return entity.ConversionResult{}, err
	}

	assets, err := chainClient.ConvertToAssets(ctx, token.Address, amount)
	if err != nil {
		return entity.ConversionResult{}, fmt.Errorf("convertToAssets for %s: %w", token.Symbol, err)
	}

	underlying := s.underlyingToken(network, token)
	sub, err := s.convert(ctx, network, underlying, assets)
	if err != nil {
		return entity.ConversionResult{}, fmt.Errorf("underlying conversion for %s: %w", token.Symbol, err)
	}

	source := sub.Source
	if source == entity.SourceDirect {
		source = entity.SourceOnChainRate
	}

	target := sub.TargetInt()
	return entity.ConversionResult{
		SourceAmount:  amount.String(),
		SourceSymbol:  token.Symbol,
		TargetAmount:  target.String(),
		Rate:          utils.NormalizedRate(amount, token.Decimals, target, network.ReferenceDecimals, 6),
		PriceImpact:   sub.PriceImpact,
		FeePercentage: sub.FeePercentage,
		Source:        source,
		Fallback:      sub.Fallback,
		Note:          fmt.Sprintf("convertToAssets rate to %s, then %s", underlying.Symbol, sub.Source),
		Target:        target,
	}, nil
}

// maturedPTResult values an expired principal token at redemption
// parity: 1:1 into the underlying, then convert the underlying.
func (s *Service) maturedPTResult(ctx context.Context, network entity.Network, token entity.Token, amount *big.Int) (entity.ConversionResult, error) {
	underlying := s.underlyingToken(network, token)
	parityAmount := utils.RescaleAmount(amount, token.Decimals, underlying.Decimals)

	sub, err := s.convert(ctx, network, underlying, parityAmount)
	if err != nil {
		return entity.ConversionResult{}, fmt.Errorf("matured PT conversion for %s: %w", token.Symbol, err)
	}

	target := sub.TargetInt()
	return entity.ConversionResult{
		SourceAmount:  amount.String(),
		SourceSymbol:  token.Symbol,
		TargetAmount:  target.String(),
		Rate:          utils.NormalizedRate(amount, token.Decimals, target, network.ReferenceDecimals, 6),
		PriceImpact:   sub.PriceImpact,
		FeePercentage: sub.FeePercentage,
		Source:        entity.SourceMaturedPT,
		Fallback:      sub.Fallback,
		Note: fmt.Sprintf("PT token matured - Direct 1:1 conversion to %s, then %s quote",
			underlying.Symbol, sub.Source),
		Target: target,
	}, nil
}

func (s *Service) pendleResult(ctx context.Context, network entity.Network, token entity.Token, amount *big.Int) (entity.ConversionResult, error) {
	return s.pendle.SwapQuote(ctx,
		network.ChainID,
		token.Market,
		token.Address,
		token.Symbol,
		token.Decimals,
		network.ReferenceAddress,
		network.ReferenceDecimals,
		amount,
	)
}

func (s *Service) marketQuote(ctx context.Context, network entity.Network, sellAddress, sellSymbol string, sellDecimals uint8, amount *big.Int) (entity.ConversionResult, error) {
	// A zero amount has nothing to price; reporting a 1:1 rate here
	// would look like a peg assumption on a volatile token.
	if amount.Sign() == 0 {
		return zeroAmountResult(sellSymbol), nil
	}
	return s.quoter.Quote(ctx, port.QuoteRequest{
		Network:      network.Name,
		SellToken:    sellAddress,
		SellSymbol:   sellSymbol,
		SellDecimals: sellDecimals,
		BuyToken:     network.ReferenceAddress,
		BuyDecimals:  network.ReferenceDecimals,
		Amount:       amount,
	})
}

func zeroAmountResult(symbol string) entity.ConversionResult {
	return entity.ConversionResult{
		SourceAmount:  "0",
		SourceSymbol:  symbol,
		TargetAmount:  "0",
		Rate:          "0",
		PriceImpact:   "0.0000%",
		FeePercentage: "0.0000%",
		Source:        entity.SourceDirect,
		Fallback:      false,
		Note:          "Zero amount, market quote skipped",
		Target:        big.NewInt(0),
	}
}

// underlyingToken resolves the full registry entry for a token's
// underlying, falling back to the inline reference when the underlying
// is not separately registered.
func (s *Service) underlyingToken(network entity.Network, token entity.Token) entity.Token {
	if registered, err := s.registry.TokenByAddress(network.Name, token.Underlying.Address); err == nil {
		return registered
	}
	return entity.Token{
		Address:  token.Underlying.Address,
		Symbol:   token.Underlying.Symbol,
		Decimals: token.Underlying.Decimals,
		Network:  network.Name,
	}
}
