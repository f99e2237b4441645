package client

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/detradefund/stack-mon-prime/internal/config"
	"github.com/detradefund/stack-mon-prime/internal/domain/entity"
	"github.com/detradefund/stack-mon-prime/internal/pkg/utils"
)

type pendleSwapResponse struct {
	Data struct {
		AmountOut   string  `json:"amountOut"`
		PriceImpact float64 `json:"priceImpact"`
	} `json:"data"`
}

// pendleQuote is the shared shape of swap and remove-liquidity
// simulations: output amount plus price impact.
type pendleQuote struct {
	AmountOut   *big.Int
	PriceImpact float64
}

// PendleClient quotes PT and LP token conversions through the Pendle
// SDK API. Each market exposes a simulated swap endpoint that returns
// the output amount for an exact input.
type PendleClient struct {
	client   *fasthttp.Client
	baseURL  string
	timeout  time.Duration
	slippage string
	logger   *zap.Logger
}

// NewPendleClient creates a Pendle SDK API client.
func NewPendleClient(cfg config.PendleConfig, logger *zap.Logger) *PendleClient {
	return &PendleClient{
		client:   &fasthttp.Client{},
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		timeout:  time.Duration(cfg.RequestTimeoutMillis) * time.Millisecond,
		slippage: cfg.Slippage,
		logger:   logger.Named("PendleClient"),
	}
}

// SwapQuote simulates selling amountIn of tokenIn for tokenOut on the
// given market and returns the conversion. Both legs are assumed to
// use the decimals passed in; Pendle PTs and LPs are 18-decimal.
func (c *PendleClient) SwapQuote(
	ctx context.Context,
	chainID int64,
	market string,
	tokenIn string,
	tokenInSymbol string,
	tokenInDecimals uint8,
	tokenOut string,
	tokenOutDecimals uint8,
	amountIn *big.Int,
) (entity.ConversionResult, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return entity.ConversionResult{}, fmt.Errorf("swap amount must be positive for %s", tokenInSymbol)
	}

	requestURL := fmt.Sprintf(
		"%s/%d/markets/%s/swap?receiver=%s&slippage=%s&enableAggregator=true&tokenIn=%s&tokenOut=%s&amountIn=%s",
		c.baseURL, chainID, market, entity.ZeroAddress, c.slippage, tokenIn, tokenOut, amountIn.String(),
	)

	c.logger.Debug("Requesting Pendle swap quote",
		zap.String("market", market),
		zap.String("tokenIn", tokenInSymbol),
		zap.String("amountIn", amountIn.String()))

	quote, err := c.fetch(ctx, requestURL, tokenInSymbol)
	if err != nil {
		return entity.ConversionResult{}, err
	}

	return entity.ConversionResult{
		SourceAmount:  amountIn.String(),
		SourceSymbol:  tokenInSymbol,
		TargetAmount:  quote.AmountOut.String(),
		Rate:          utils.NormalizedRate(amountIn, tokenInDecimals, quote.AmountOut, tokenOutDecimals, 6),
		PriceImpact:   fmt.Sprintf("%.6f", quote.PriceImpact),
		FeePercentage: "0.0000%",
		Source:        entity.SourcePendleSDK,
		Fallback:      false,
		Note:          "Direct Conversion using Pendle SDK",
		Target:        quote.AmountOut,
	}, nil
}

// RemoveLiquidityQuote simulates burning LP tokens of a market for
// tokenOut, the valuation path for staked Pendle LP positions.
func (c *PendleClient) RemoveLiquidityQuote(
	ctx context.Context,
	chainID int64,
	market string,
	lpSymbol string,
	lpDecimals uint8,
	tokenOut string,
	tokenOutDecimals uint8,
	amountIn *big.Int,
) (entity.ConversionResult, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return entity.ConversionResult{}, fmt.Errorf("remove-liquidity amount must be positive for %s", lpSymbol)
	}

	requestURL := fmt.Sprintf(
		"%s/%d/markets/%s/remove-liquidity?receiver=%s&slippage=%s&enableAggregator=true&amountIn=%s&tokenOut=%s",
		c.baseURL, chainID, market, entity.ZeroAddress, c.slippage, amountIn.String(), tokenOut,
	)

	c.logger.Debug("Requesting Pendle remove-liquidity quote",
		zap.String("market", market),
		zap.String("amountIn", amountIn.String()))

	quote, err := c.fetch(ctx, requestURL, lpSymbol)
	if err != nil {
		return entity.ConversionResult{}, err
	}

	return entity.ConversionResult{
		SourceAmount:  amountIn.String(),
		SourceSymbol:  lpSymbol,
		TargetAmount:  quote.AmountOut.String(),
		Rate:          utils.NormalizedRate(amountIn, lpDecimals, quote.AmountOut, tokenOutDecimals, 6),
		PriceImpact:   fmt.Sprintf("%.6f", quote.PriceImpact),
		FeePercentage: "0.0000%",
		Source:        entity.SourcePendleSDK,
		Fallback:      false,
		Note:          "Remove liquidity simulation via Pendle SDK",
		Target:        quote.AmountOut,
	}, nil
}

func (c *PendleClient) fetch(ctx context.Context, requestURL, symbol string) (pendleQuote, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(requestURL)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.SetContentTypeBytes([]byte("application/json"))

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	var doErr error
	if deadline, ok := ctx.Deadline(); ok {
		doErr = c.client.DoDeadline(req, resp, deadline)
	} else {
		doErr = c.client.DoTimeout(req, resp, c.timeout)
	}
	if doErr != nil {
		return pendleQuote{}, fmt.Errorf("%w: Pendle quote for %s: %v",
			entity.ErrQuoteUnavailable, symbol, doErr)
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		c.logger.Warn("Pendle API request failed",
			zap.Int("statusCode", resp.StatusCode()),
			zap.ByteString("responseBody", resp.Body()))
		return pendleQuote{}, fmt.Errorf("%w: Pendle API returned status %d for %s",
			entity.ErrQuoteUnavailable, resp.StatusCode(), symbol)
	}

	var parsed pendleSwapResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return pendleQuote{}, fmt.Errorf("%w: failed to unmarshal Pendle response: %v",
			entity.ErrQuoteUnavailable, err)
	}
	if parsed.Data.AmountOut == "" {
		return pendleQuote{}, fmt.Errorf("%w: Pendle response missing amountOut for %s",
			entity.ErrQuoteUnavailable, symbol)
	}

	amountOut, ok := new(big.Int).SetString(parsed.Data.AmountOut, 10)
	if !ok {
		return pendleQuote{}, fmt.Errorf("%w: invalid Pendle amountOut %q",
			entity.ErrQuoteUnavailable, parsed.Data.AmountOut)
	}
	return pendleQuote{AmountOut: amountOut, PriceImpact: parsed.Data.PriceImpact}, nil
}

