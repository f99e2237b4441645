package entity

import "math/big"

// PositionKind distinguishes how a constituent entered the portfolio
// tree. LP legs and rewards hang off their parent position in the
// snapshot; plain balances stand alone.
type PositionKind string

const (
	KindBalance PositionKind = "balance"
	KindLPLeg   PositionKind = "lp_leg"
	KindReward  PositionKind = "reward"
)

// Position is one on-chain holding constituent, constructed fresh each
// run from a chain read and never persisted standalone.
type Position struct {
	Protocol string
	Network  string
	// Label groups constituents of the same position in the snapshot,
	// e.g. the pool name "WETH/tacETH" or the token symbol for plain
	// balances.
	Label string
	Kind  PositionKind

	Token     Token
	RawAmount *big.Int
	Decimals  uint8

	// ReadError is set when the chain read for this constituent failed.
	// Such a position carries no amount and must surface as a
	// valuation-failed marker, never as a zero balance.
	ReadError string

	// ParentAmount carries the raw LP token balance for lp_leg and
	// reward constituents so the snapshot can show the position size
	// alongside its decomposition.
	ParentAmount *big.Int
}

// ValuedPosition pairs a position with its conversion into the
// reference asset. Failed valuations stay in the tree as explicit
// markers and are excluded from every total.
type ValuedPosition struct {
	Position
	Conversion ConversionResult
}

// Failed reports whether this constituent's valuation is unknown.
func (v ValuedPosition) Failed() bool { return v.Conversion.Failed() }

// Value returns the constituent's reference-asset value, zero for
// failed valuations.
func (v ValuedPosition) Value() *big.Int {
	if v.Failed() {
		return big.NewInt(0)
	}
	return v.Conversion.TargetInt()
}
