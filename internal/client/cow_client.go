package client

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/detradefund/stack-mon-prime/internal/app/port"
	"github.com/detradefund/stack-mon-prime/internal/config"
	"github.com/detradefund/stack-mon-prime/internal/domain/entity"
	"github.com/detradefund/stack-mon-prime/internal/pkg/retry"
	"github.com/detradefund/stack-mon-prime/internal/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	sellAmountTooSmallMarker = "SellAmountDoesNotCoverFee"
	zeroAppData              = "0x0000000000000000000000000000000000000000000000000000000000000000"
	quoteValiditySeconds     = 3600
)

type cowQuoteParams struct {
	SellToken           string `json:"sellToken"`
	BuyToken            string `json:"buyToken"`
	From                string `json:"from"`
	Receiver            string `json:"receiver"`
	ValidTo             int64  `json:"validTo"`
	AppData             string `json:"appData"`
	PartiallyFillable   bool   `json:"partiallyFillable"`
	SellTokenBalance    string `json:"sellTokenBalance"`
	BuyTokenBalance     string `json:"buyTokenBalance"`
	Kind                string `json:"kind"`
	SellAmountBeforeFee string `json:"sellAmountBeforeFee"`
}

type cowQuoteResponse struct {
	Quote struct {
		SellAmount  string `json:"sellAmount"`
		BuyAmount   string `json:"buyAmount"`
		FeeAmount   string `json:"feeAmount"`
		PriceImpact string `json:"priceImpact"`
	} `json:"quote"`
}

// CoWClient fetches token conversion quotes from the CoW Protocol
// API. Amounts too small to cover the routing fee are re-quoted with a
// reference notional and the resulting rate is applied linearly.
type CoWClient struct {
	client        *fasthttp.Client
	baseURL       string
	timeout       time.Duration
	retryCfg      retry.Config
	fallbackUnits int64
	apiNetworks   map[string]string
	logger        *zap.Logger
}

var _ port.Quoter = (*CoWClient)(nil)

// NewCoWClient creates a quote client for every configured network.
func NewCoWClient(cfg config.QuoteServiceConfig, registry *config.Registry, logger *zap.Logger) *CoWClient {
	apiNetworks := make(map[string]string)
	for _, network := range registry.Networks() {
		apiNetworks[network.Name] = network.QuoteAPIName
	}
	return &CoWClient{
		client:        &fasthttp.Client{},
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		timeout:       time.Duration(cfg.RequestTimeoutMillis) * time.Millisecond,
		retryCfg:      retry.Config{MaxAttempts: cfg.MaxRetries, Delay: time.Duration(cfg.RetryDelayMs) * time.Millisecond},
		fallbackUnits: cfg.FallbackReferenceUnits,
		apiNetworks:   apiNetworks,
		logger:        logger.Named("CoWClient"),
	}
}

// Quote converts an exact sell amount into the buy token. It tries a
// direct quote first and falls back to a reference notional when the
// amount does not cover the fee. Transient API failures are retried a
// bounded number of times; exhaustion returns ErrQuoteUnavailable.
func (c *CoWClient) Quote(ctx context.Context, req port.QuoteRequest) (entity.ConversionResult, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return entity.ConversionResult{}, fmt.Errorf("quote amount must be positive for %s", req.SellSymbol)
	}

	apiNetwork, ok := c.apiNetworks[req.Network]
	if !ok {
		return entity.ConversionResult{}, fmt.Errorf("%w: %s", entity.ErrUnknownNetwork, req.Network)
	}
	requestURL := fmt.Sprintf("%s/%s/api/v1/quote", c.baseURL, apiNetwork)

	status, body, err := c.post(ctx, requestURL, c.buildParams(req, req.Amount))
	if err != nil {
		return entity.ConversionResult{}, fmt.Errorf("%w: %s quote on %s: %v",
			entity.ErrQuoteUnavailable, req.SellSymbol, req.Network, err)
	}

	if status == fasthttp.StatusOK {
		return c.directResult(req, body)
	}

	if strings.Contains(string(body), sellAmountTooSmallMarker) {
		c.logger.Debug("Sell amount below fee threshold, re-quoting with reference amount",
			zap.String("token", req.SellSymbol),
			zap.String("amount", req.Amount.String()))
		return c.fallbackResult(ctx, requestURL, req)
	}

	c.logger.Warn("Quote rejected by API",
		zap.String("token", req.SellSymbol),
		zap.String("network", req.Network),
		zap.Int("statusCode", status),
		zap.ByteString("responseBody", body))
	return entity.ConversionResult{}, fmt.Errorf("%w: %s/%s on %s (status %d)",
		entity.ErrUnsupportedPair, req.SellSymbol, req.BuyToken, req.Network, status)
}

func (c *CoWClient) buildParams(req port.QuoteRequest, amount *big.Int) cowQuoteParams {
	return cowQuoteParams{
		SellToken:           req.SellToken,
		BuyToken:            req.BuyToken,
		From:                entity.ZeroAddress,
		Receiver:            entity.ZeroAddress,
		ValidTo:             time.Now().UTC().Unix() + quoteValiditySeconds,
		AppData:             zeroAppData,
		PartiallyFillable:   false,
		SellTokenBalance:    "erc20",
		BuyTokenBalance:     "erc20",
		Kind:                "sell",
		SellAmountBeforeFee: amount.String(),
	}
}

// post sends one quote request, retrying transport errors and 5xx
// responses. A 4xx is a definitive answer and is returned as-is.
func (c *CoWClient) post(ctx context.Context, requestURL string, params cowQuoteParams) (int, []byte, error) {
	payload, err := json.Marshal(params)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal quote params: %w", err)
	}

	var status int
	var body []byte
	err = retry.Do(ctx, c.retryCfg, func(ctx context.Context) error {
		req := fasthttp.AcquireRequest()
		defer fasthttp.ReleaseRequest(req)
		req.SetRequestURI(requestURL)
		req.Header.SetMethod(fasthttp.MethodPost)
		req.Header.SetContentTypeBytes([]byte("application/json"))
		req.SetBody(payload)

		resp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseResponse(resp)

		if deadline, ok := ctx.Deadline(); ok {
			if doErr := c.client.DoDeadline(req, resp, deadline); doErr != nil {
				return fmt.Errorf("failed to execute request to %s: %w", requestURL, doErr)
			}
		} else {
			if doErr := c.client.DoTimeout(req, resp, c.timeout); doErr != nil {
				return fmt.Errorf("failed to execute request to %s: %w", requestURL, doErr)
			}
		}

		if resp.StatusCode() >= fasthttp.StatusInternalServerError {
			return fmt.Errorf("quote API returned status %d: %s", resp.StatusCode(), resp.Body())
		}

		status = resp.StatusCode()
		body = append([]byte(nil), resp.Body()...)
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return status, body, nil
}

func (c *CoWClient) directResult(req port.QuoteRequest, body []byte) (entity.ConversionResult, error) {
	var parsed cowQuoteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return entity.ConversionResult{}, fmt.Errorf("%w: failed to unmarshal quote response: %v",
			entity.ErrQuoteUnavailable, err)
	}

	sellAmount, ok := new(big.Int).SetString(parsed.Quote.SellAmount, 10)
	if !ok {
		return entity.ConversionResult{}, fmt.Errorf("%w: invalid sellAmount %q", entity.ErrQuoteUnavailable, parsed.Quote.SellAmount)
	}
	buyAmount, ok := new(big.Int).SetString(parsed.Quote.BuyAmount, 10)
	if !ok {
		return entity.ConversionResult{}, fmt.Errorf("%w: invalid buyAmount %q", entity.ErrQuoteUnavailable, parsed.Quote.BuyAmount)
	}

	priceImpact := parsed.Quote.PriceImpact
	if priceImpact == "" {
		priceImpact = "0"
	}

	return entity.ConversionResult{
		SourceAmount:  req.Amount.String(),
		SourceSymbol:  req.SellSymbol,
		TargetAmount:  buyAmount.String(),
		Rate:          utils.NormalizedRate(sellAmount, req.SellDecimals, buyAmount, req.BuyDecimals, 6),
		PriceImpact:   priceImpact,
		FeePercentage: feePercentage(parsed.Quote.FeeAmount, req.Amount),
		Source:        entity.SourceCoWSwap,
		Fallback:      false,
		Note:          "Direct CoWSwap quote",
		Target:        buyAmount,
	}, nil
}

func (c *CoWClient) fallbackResult(ctx context.Context, requestURL string, req port.QuoteRequest) (entity.ConversionResult, error) {
	referenceAmount := new(big.Int).Mul(
		big.NewInt(c.fallbackUnits),
		new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(req.SellDecimals)), nil),
	)

	status, body, err := c.post(ctx, requestURL, c.buildParams(req, referenceAmount))
	if err != nil {
		return entity.ConversionResult{}, fmt.Errorf("%w: reference quote for %s on %s: %v",
			entity.ErrQuoteUnavailable, req.SellSymbol, req.Network, err)
	}
	if status != fasthttp.StatusOK {
		return entity.ConversionResult{}, fmt.Errorf("%w: reference quote for %s on %s rejected (status %d): %s",
			entity.ErrAmountTooSmall, req.SellSymbol, req.Network, status, body)
	}

	var parsed cowQuoteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return entity.ConversionResult{}, fmt.Errorf("%w: failed to unmarshal reference quote response: %v",
			entity.ErrQuoteUnavailable, err)
	}

	referenceSell, ok := new(big.Int).SetString(parsed.Quote.SellAmount, 10)
	if !ok || referenceSell.Sign() == 0 {
		return entity.ConversionResult{}, fmt.Errorf("%w: invalid reference sellAmount %q", entity.ErrQuoteUnavailable, parsed.Quote.SellAmount)
	}
	referenceBuy, ok := new(big.Int).SetString(parsed.Quote.BuyAmount, 10)
	if !ok {
		return entity.ConversionResult{}, fmt.Errorf("%w: invalid reference buyAmount %q", entity.ErrQuoteUnavailable, parsed.Quote.BuyAmount)
	}

	// Scale the reference rate linearly onto the real amount.
	estimated := utils.ProRata(referenceBuy, req.Amount, referenceSell)

	return entity.ConversionResult{
		SourceAmount:  req.Amount.String(),
		SourceSymbol:  req.SellSymbol,
		TargetAmount:  estimated.String(),
		Rate:          utils.NormalizedRate(referenceSell, req.SellDecimals, referenceBuy, req.BuyDecimals, 6),
		PriceImpact:   "N/A",
		FeePercentage: "N/A",
		Source:        entity.SourceCoWFallback,
		Fallback:      true,
		Note:          fmt.Sprintf("Using reference amount of %d tokens for price discovery", c.fallbackUnits),
		Target:        estimated,
	}, nil
}

func feePercentage(feeAmount string, sellAmount *big.Int) string {
	fee, ok := new(big.Float).SetString(feeAmount)
	if !ok || sellAmount == nil || sellAmount.Sign() == 0 {
		return "0"
	}
	pct := new(big.Float).Quo(fee, new(big.Float).SetInt(sellAmount))
	pct.Mul(pct, big.NewFloat(100))
	return pct.Text('f', 4)
}
