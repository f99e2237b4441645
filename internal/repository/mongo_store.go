// Package repository persists snapshots to MongoDB. Documents are
// append-only; a snapshot is never mutated after insertion.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/detradefund/stack-mon-prime/internal/app/port"
	"github.com/detradefund/stack-mon-prime/internal/config"
	"github.com/detradefund/stack-mon-prime/internal/domain/entity"
	"github.com/detradefund/stack-mon-prime/internal/pkg/metrics"
	"github.com/detradefund/stack-mon-prime/internal/pkg/retry"
)

// MongoStore implements port.SnapshotStore on a MongoDB collection.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	timeout    time.Duration
	retryCfg   retry.Config
	logger     *zap.Logger
}

var _ port.SnapshotStore = (*MongoStore)(nil)

// NewMongoStore connects to MongoDB and pings it once so a bad URI
// fails at startup, not on the first push.
func NewMongoStore(ctx context.Context, uri string, cfg config.MongoConfig, logger *zap.Logger) (*MongoStore, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %v", entity.ErrStoreUnavailable, err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("%w: ping: %v", entity.ErrStoreUnavailable, err)
	}

	return &MongoStore{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		timeout:    timeout,
		retryCfg: retry.Config{
			MaxAttempts: cfg.MaxRetries,
			Delay:       time.Duration(cfg.RetryDelayMs) * time.Millisecond,
		},
		logger: logger.Named("mongo_store"),
	}, nil
}

// Push validates, inserts, and verifies one snapshot. Verification
// re-reads the inserted document by id so a silently dropped write is
// caught before the run reports success.
func (s *MongoStore) Push(ctx context.Context, snap *entity.PortfolioSnapshot) (string, error) {
	if err := validateSnapshot(snap); err != nil {
		metrics.SnapshotPushes.WithLabelValues("rejected").Inc()
		return "", err
	}

	var insertedID primitive.ObjectID
	err := retry.Do(ctx, s.retryCfg, func(ctx context.Context) error {
		opCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		result, insertErr := s.collection.InsertOne(opCtx, snap)
		if insertErr != nil {
			return insertErr
		}
		id, ok := result.InsertedID.(primitive.ObjectID)
		if !ok {
			return fmt.Errorf("unexpected inserted id type %T", result.InsertedID)
		}
		insertedID = id
		return nil
	})
	if err != nil {
		metrics.SnapshotPushes.WithLabelValues("failed").Inc()
		return "", fmt.Errorf("%w: insert: %v", entity.ErrStoreUnavailable, err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var stored entity.PortfolioSnapshot
	if err := s.collection.FindOne(verifyCtx, bson.M{"_id": insertedID}).Decode(&stored); err != nil {
		metrics.SnapshotPushes.WithLabelValues("failed").Inc()
		return "", fmt.Errorf("%w: inserted document %s not readable back: %v",
			entity.ErrStoreUnavailable, insertedID.Hex(), err)
	}

	metrics.SnapshotPushes.WithLabelValues("success").Inc()
	s.logger.Info("Snapshot pushed",
		zap.String("id", insertedID.Hex()),
		zap.String("address", snap.Address),
		zap.String("nav", snap.NAV.USDC))
	return insertedID.Hex(), nil
}

// List returns one page of history, newest first.
func (s *MongoStore) List(ctx context.Context, page, limit int64) ([]entity.PortfolioSnapshot, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	total, err := s.collection.CountDocuments(opCtx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("%w: count: %v", entity.ErrStoreUnavailable, err)
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip((page - 1) * limit).
		SetLimit(limit)

	cursor, err := s.collection.Find(opCtx, bson.M{}, findOpts)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: find: %v", entity.ErrStoreUnavailable, err)
	}
	defer cursor.Close(opCtx)

	snapshots := make([]entity.PortfolioSnapshot, 0, limit)
	if err := cursor.All(opCtx, &snapshots); err != nil {
		return nil, 0, fmt.Errorf("%w: decode: %v", entity.ErrStoreUnavailable, err)
	}
	return snapshots, total, nil
}

// Get fetches one snapshot by hex document id.
func (s *MongoStore) Get(ctx context.Context, id string) (*entity.PortfolioSnapshot, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid snapshot id %q: %w", id, err)
	}

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var snapshot entity.PortfolioSnapshot
	err = s.collection.FindOne(opCtx, bson.M{"_id": objectID}).Decode(&snapshot)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find: %v", entity.ErrStoreUnavailable, err)
	}
	return &snapshot, nil
}

// Latest returns the most recent snapshot, nil when the collection is
// empty.
func (s *MongoStore) Latest(ctx context.Context) (*entity.PortfolioSnapshot, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	findOpts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	var snapshot entity.PortfolioSnapshot
	err := s.collection.FindOne(opCtx, bson.M{}, findOpts).Decode(&snapshot)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find: %v", entity.ErrStoreUnavailable, err)
	}
	return &snapshot, nil
}

// Close disconnects the underlying client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// validateSnapshot rejects documents that would be useless in history:
// without an address or a NAV figure there is nothing to chart.
func validateSnapshot(snap *entity.PortfolioSnapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: nil snapshot", entity.ErrInvalidSnapshot)
	}
	if snap.Address == "" {
		return fmt.Errorf("%w: missing address", entity.ErrInvalidSnapshot)
	}
	if snap.NAV.USDC == "" {
		return fmt.Errorf("%w: missing NAV", entity.ErrInvalidSnapshot)
	}
	if snap.CreatedAt.IsZero() {
		return fmt.Errorf("%w: missing created_at", entity.ErrInvalidSnapshot)
	}
	return nil
}
