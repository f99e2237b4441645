package entity

import "math/big"

// Conversion sources recorded in snapshot leaves. Every valued leaf
// carries exactly one of these so downstream consumers can tell a peg
// assumption from a live market quote.
const (
	SourceDirect      = "Direct"
	SourceOnChainRate = "OnChainRate"
	SourceCoWSwap     = "CoWSwap"
	SourceCoWFallback = "CoWSwap-Fallback"
	SourcePendleSDK   = "Pendle SDK"
	SourceMaturedPT   = "Matured PT"
	SourceFailed      = "Failed"
)

// ConversionResult captures a single token-to-reference conversion,
// embedded verbatim into the snapshot. Immutable after creation.
type ConversionResult struct {
	SourceAmount string `json:"source_amount" bson:"source_amount"`
	SourceSymbol string `json:"source_token" bson:"source_token"`
	// TargetAmount is the value in base units of the reference asset.
	TargetAmount  string `json:"target_amount" bson:"target_amount"`
	Rate          string `json:"rate" bson:"rate"`
	PriceImpact   string `json:"price_impact" bson:"price_impact"`
	FeePercentage string `json:"fee_percentage" bson:"fee_percentage"`
	Source        string `json:"source" bson:"source"`
	Fallback      bool   `json:"fallback" bson:"fallback"`
	Note          string `json:"note,omitempty" bson:"note,omitempty"`

	// Target is the parsed TargetAmount kept for in-process arithmetic.
	// Never serialized.
	Target *big.Int `json:"-" bson:"-"`
}

// Failed reports whether this conversion produced no usable value.
// A failed conversion means "position value unknown", never zero.
func (c ConversionResult) Failed() bool {
	return c.Source == SourceFailed || c.Source == ""
}

// TargetInt returns the target amount as big.Int, parsing TargetAmount
// when the in-process value was not carried along (e.g. after a
// store round-trip).
func (c ConversionResult) TargetInt() *big.Int {
	if c.Target != nil {
		return c.Target
	}
	v, ok := new(big.Int).SetString(c.TargetAmount, 10)
	if !ok {
		return big.NewInt(0)
	}
	return v
}

// FailedConversion builds the marker recorded for a leaf whose
// valuation could not be obtained.
func FailedConversion(sourceAmount *big.Int, symbol, note string) ConversionResult {
	amt := "0"
	if sourceAmount != nil {
		amt = sourceAmount.String()
	}
	return ConversionResult{
		SourceAmount:  amt,
		SourceSymbol:  symbol,
		TargetAmount:  "0",
		Rate:          "0",
		PriceImpact:   "N/A",
		FeePercentage: "N/A",
		Source:        SourceFailed,
		Fallback:      true,
		Note:          note,
		Target:        big.NewInt(0),
	}
}
