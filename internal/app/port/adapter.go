package port

import (
	"context"

	"github.com/detradefund/stack-mon-prime/internal/domain/entity"
)

// ProtocolAdapter reads one protocol's positions for an address and
// values their constituents in the reference asset. Adapters are
// side-effect-free on shared state, so the aggregator may run them
// concurrently.
//
// A total failure (e.g. RPC outage for the adapter's chain) is
// returned as an error from GetPositions and recorded as an explicit
// marker in the snapshot; it never aborts the run. A partial failure
// inside ValuePositions degrades only that constituent.
type ProtocolAdapter interface {
	Name() string
	GetPositions(ctx context.Context, address string) ([]entity.Position, error)
	ValuePositions(ctx context.Context, positions []entity.Position) []entity.ValuedPosition
}
