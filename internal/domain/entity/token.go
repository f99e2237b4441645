package entity

// UnderlyingRef links a derivative token (yield-bearing wrapper,
// principal token) to the asset it redeems into.
type UnderlyingRef struct {
	Address  string `json:"address" yaml:"address"`
	Symbol   string `json:"symbol" yaml:"symbol"`
	Decimals uint8  `json:"decimals" yaml:"decimals"`
}

// Token is a registry entry for a tracked asset on one network.
type Token struct {
	Address  string `json:"address" yaml:"address"`
	Symbol   string `json:"symbol" yaml:"symbol"`
	Name     string `json:"name,omitempty" yaml:"name"`
	Decimals uint8  `json:"decimals" yaml:"decimals"`
	Network  string `json:"network" yaml:"network"`

	// Protocol tags the token as belonging to an integrated protocol
	// ("sky", "pendle", ...). Empty for plain spot holdings.
	Protocol string `json:"protocol,omitempty" yaml:"protocol"`

	// Stable marks tokens pegged 1:1 to the reference asset. Pegged
	// pairs convert directly, reflecting the protocol-level guarantee
	// rather than a market price.
	Stable bool `json:"stable,omitempty" yaml:"stable"`

	// YieldBearing marks ERC-4626 style wrappers exposing
	// convertToAssets. The on-chain rate is preferred over a market
	// quote whenever available.
	YieldBearing bool `json:"yield_bearing,omitempty" yaml:"yieldBearing"`

	Underlying *UnderlyingRef `json:"underlying,omitempty" yaml:"underlying"`

	// Expiry is the maturity timestamp for principal tokens, zero
	// otherwise. Past expiry a PT is valued at redemption parity.
	Expiry int64 `json:"expiry,omitempty" yaml:"expiry"`

	// Market is the Pendle market address used for swap quotes.
	Market string `json:"market,omitempty" yaml:"market"`
}

// Expired reports whether a principal token is past maturity at the
// given unix timestamp. Tokens without an expiry never expire.
func (t Token) Expired(now int64) bool {
	return t.Expiry != 0 && now > t.Expiry
}
