package client

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/detradefund/stack-mon-prime/internal/app/port"
	"github.com/detradefund/stack-mon-prime/internal/config"
	"github.com/detradefund/stack-mon-prime/internal/domain/entity"
)

const (
	testSellToken = "0x1111111111111111111111111111111111111111"
	testBuyToken  = "0x2222222222222222222222222222222222222222"
)

func testRegistry(t *testing.T) *config.Registry {
	t.Helper()
	registry, err := config.NewRegistry(&config.Config{
		Networks: []config.NetworkConfig{
			{
				Name:              "ethereum",
				ChainID:           1,
				RPCURL:            "http://localhost:8545",
				QuoteAPIName:      "mainnet",
				NativeSymbol:      "ETH",
				NativeDecimals:    18,
				ReferenceAddress:  testBuyToken,
				ReferenceDecimals: 6,
			},
		},
	})
	require.NoError(t, err)
	return registry
}

func newTestCoWClient(t *testing.T, baseURL string) *CoWClient {
	t.Helper()
	return NewCoWClient(config.QuoteServiceConfig{
		BaseURL:                baseURL,
		RequestTimeoutMillis:   2000,
		MaxRetries:             2,
		RetryDelayMs:           1,
		FallbackReferenceUnits: 1000,
	}, testRegistry(t), zap.NewNop())
}

func quoteRequest(amount *big.Int) port.QuoteRequest {
	return port.QuoteRequest{
		Network:      "ethereum",
		SellToken:    testSellToken,
		SellSymbol:   "USDS",
		SellDecimals: 18,
		BuyToken:     testBuyToken,
		BuyDecimals:  6,
		Amount:       amount,
	}
}

func TestQuoteDirect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mainnet/api/v1/quote", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"quote":{"sellAmount":"10000000000000000000000","buyAmount":"9990000000","feeAmount":"1000000000000000000"}}`))
	}))
	defer server.Close()

	client := newTestCoWClient(t, server.URL)
	amount, _ := new(big.Int).SetString("10000000000000000000000", 10)

	result, err := client.Quote(context.Background(), quoteRequest(amount))
	require.NoError(t, err)

	assert.Equal(t, entity.SourceCoWSwap, result.Source)
	assert.False(t, result.Fallback)
	assert.Equal(t, "9990000000", result.TargetAmount)
	assert.Equal(t, "0.999000", result.Rate)
	assert.Equal(t, "9990000000", result.Target.String())
	// fee of 1 token out of 10000 sold.
	assert.Equal(t, "0.0100", result.FeePercentage)
}

func TestQuoteFallbackOnSmallAmount(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"errorType":"SellAmountDoesNotCoverFee","description":"order too small"}`))
			return
		}
		// Reference quote for 1000 tokens at a 0.999 rate.
		w.Write([]byte(`{"quote":{"sellAmount":"1000000000000000000000","buyAmount":"999000000","feeAmount":"0"}}`))
	}))
	defer server.Close()

	client := newTestCoWClient(t, server.URL)
	// 5 tokens: below the fee threshold.
	amount, _ := new(big.Int).SetString("5000000000000000000", 10)

	result, err := client.Quote(context.Background(), quoteRequest(amount))
	require.NoError(t, err)

	assert.Equal(t, entity.SourceCoWFallback, result.Source)
	assert.True(t, result.Fallback)
	assert.Contains(t, result.Note, "reference amount of 1000 tokens")
	assert.Equal(t, "0.999000", result.Rate)
	// 5 tokens at 0.999 = 4.995 USDC.
	assert.Equal(t, "4995000", result.TargetAmount)
	assert.Equal(t, int32(2), calls.Load())
}

func TestQuoteTransientFailureExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestCoWClient(t, server.URL)

	_, err := client.Quote(context.Background(), quoteRequest(big.NewInt(1000000)))
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrQuoteUnavailable)
	assert.Equal(t, int32(2), calls.Load())
}

func TestQuoteUnsupportedPair(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errorType":"NoLiquidity","description":"no route found"}`))
	}))
	defer server.Close()

	client := newTestCoWClient(t, server.URL)

	_, err := client.Quote(context.Background(), quoteRequest(big.NewInt(1000000)))
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrUnsupportedPair)
}

func TestQuoteRejectsNonPositiveAmount(t *testing.T) {
	client := newTestCoWClient(t, "http://localhost:1")
	_, err := client.Quote(context.Background(), quoteRequest(big.NewInt(0)))
	require.Error(t, err)
}

func TestQuoteHonoursContextDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := newTestCoWClient(t, server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Quote(ctx, quoteRequest(big.NewInt(1000000)))
	require.Error(t, err)
}
