package entity

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NAV is the headline valuation of the fund at snapshot time.
// SharePrice is a pointer: when total supply is zero the share price
// is undefined and must be reported as null with a note, never as 0.
type NAV struct {
	USDC        string  `json:"usdc" bson:"usdc"`
	SharePrice  *string `json:"share_price" bson:"share_price"`
	TotalSupply string  `json:"total_supply" bson:"total_supply"`
	Note        string  `json:"note,omitempty" bson:"note,omitempty"`
}

// OverviewPosition is one line of the flattened position summary,
// keyed "protocol.network.label" (or "network.symbol" for spot).
type OverviewPosition struct {
	Key   string `json:"key" bson:"key"`
	Value string `json:"value" bson:"value"`
}

// Overview summarises every position by value, sorted descending.
type Overview struct {
	TotalValue string             `json:"total_value" bson:"total_value"`
	Positions  []OverviewPosition `json:"positions" bson:"positions"`
}

// Totals accumulates reference-asset value at any level of the tree.
// Wei holds base units as a decimal string (values exceed int64 and
// MongoDB has no big integer type).
type Totals struct {
	Wei       string `json:"wei" bson:"wei"`
	Formatted string `json:"formatted" bson:"formatted"`
}

// ValueLeaf is the reference-asset valuation of one constituent.
type ValueLeaf struct {
	Amount            string           `json:"amount" bson:"amount"`
	Decimals          uint8            `json:"decimals" bson:"decimals"`
	ConversionDetails ConversionResult `json:"conversion_details" bson:"conversion_details"`
}

// PositionDetail is one position in the snapshot tree. LP positions
// additionally carry their per-token decomposition in Legs and any
// accrued rewards in Rewards; Rewards is present (possibly empty) for
// every LP position so consumers can tell "no rewards" from "rewards
// not tracked".
type PositionDetail struct {
	Amount   string    `json:"amount" bson:"amount"`
	Decimals uint8     `json:"decimals" bson:"decimals"`
	Value    ValueLeaf `json:"value" bson:"value"`
	Totals   Totals    `json:"totals" bson:"totals"`

	Legs    map[string]PositionDetail `json:"legs,omitempty" bson:"legs,omitempty"`
	Rewards map[string]PositionDetail `json:"rewards,omitempty" bson:"rewards,omitempty"`
}

// NetworkSection groups positions of one protocol on one network.
type NetworkSection struct {
	Positions map[string]PositionDetail `json:"positions" bson:"positions"`
	Totals    Totals                    `json:"totals" bson:"totals"`
}

// ProtocolSection groups one protocol's positions across networks.
type ProtocolSection struct {
	Networks map[string]NetworkSection `json:"networks" bson:"networks"`
	Totals   Totals                    `json:"totals" bson:"totals"`
}

// AdapterFailure is the explicit marker left in a snapshot when an
// adapter (or one of its constituents) could not be read. Its value
// contribution is excluded, not zeroed.
type AdapterFailure struct {
	Adapter string `json:"adapter" bson:"adapter"`
	Network string `json:"network,omitempty" bson:"network,omitempty"`
	Message string `json:"message" bson:"message"`
}

// PortfolioSnapshot is the immutable per-run document pushed to the
// store. History is the ordered sequence of these documents; none is
// ever updated after insertion.
type PortfolioSnapshot struct {
	ID        primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	Address   string             `json:"address" bson:"address"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`

	NAV       NAV                        `json:"nav" bson:"nav"`
	Overview  Overview                   `json:"overview" bson:"overview"`
	Protocols map[string]ProtocolSection `json:"protocols" bson:"protocols"`
	Spot      map[string]NetworkSection  `json:"spot" bson:"spot"`

	Errors []AdapterFailure `json:"errors,omitempty" bson:"errors,omitempty"`
}
