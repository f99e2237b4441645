package port

import (
	"context"
	"math/big"

	"github.com/detradefund/stack-mon-prime/internal/domain/entity"
)

// QuoteRequest asks for the reference-asset value of an exact amount
// of a sell token. Amount is a positive integer in the sell token's
// smallest unit.
type QuoteRequest struct {
	Network      string
	SellToken    string
	SellSymbol   string
	SellDecimals uint8
	BuyToken     string
	BuyDecimals  uint8
	Amount       *big.Int
}

// Quoter obtains market conversions from the external price-discovery
// service. Implementations must retry transient failures a bounded
// number of times and fall back to a reference notional when the
// amount is too small to route; a failed conversion comes back as an
// error, never as a zero-valued result.
type Quoter interface {
	Quote(ctx context.Context, req QuoteRequest) (entity.ConversionResult, error)
}
