package port

import (
	"context"

	"github.com/detradefund/stack-mon-prime/internal/domain/entity"
)

// SnapshotStore persists portfolio snapshots. Inserts are append-only;
// prior snapshots are never updated or deleted as part of a run.
type SnapshotStore interface {
	// Push validates and inserts one snapshot, returning its document
	// id. Snapshots missing address or NAV are rejected without a
	// write (entity.ErrInvalidSnapshot).
	Push(ctx context.Context, snap *entity.PortfolioSnapshot) (string, error)

	// List returns snapshots ordered by creation time descending.
	// Page is 1-based.
	List(ctx context.Context, page, limit int64) ([]entity.PortfolioSnapshot, int64, error)

	// Get fetches one snapshot by document id.
	Get(ctx context.Context, id string) (*entity.PortfolioSnapshot, error)

	// Latest returns the most recent snapshot, nil when none exist.
	Latest(ctx context.Context) (*entity.PortfolioSnapshot, error)
}
