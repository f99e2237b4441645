package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/detradefund/stack-mon-prime/internal/app/port"
	"github.com/detradefund/stack-mon-prime/internal/config"
	"github.com/detradefund/stack-mon-prime/internal/pkg/metrics"
)

// ErrRunInFlight is returned when a run is requested while another one
// is still executing. Runs never overlap: concurrent snapshots of the
// same address would differ only by racing quotes.
var ErrRunInFlight = errors.New("an aggregation run is already in flight")

// pushTimeout bounds the snapshot push separately from the run budget.
const pushTimeout = 30 * time.Second

// RunOutcome reports one finished run.
type RunOutcome struct {
	RunID      string    `json:"run_id"`
	SnapshotID string    `json:"snapshot_id"`
	NAV        string    `json:"nav"`
	Failures   int       `json:"failures"`
	StartedAt  time.Time `json:"started_at"`
	Duration   string    `json:"duration"`
}

// Runner executes one full aggregation cycle: build the snapshot
// within the run budget, then push it. Partial snapshots (some
// adapters failed) are still pushed; a push failure fails the run.
type Runner struct {
	aggregator *Aggregator
	store      port.SnapshotStore
	fund       config.FundConfig
	budget     time.Duration
	logger     *zap.Logger

	mu       sync.Mutex
	inFlight bool
}

func NewRunner(aggregator *Aggregator, store port.SnapshotStore, fund config.FundConfig, runner config.RunnerConfig, logger *zap.Logger) *Runner {
	return &Runner{
		aggregator: aggregator,
		store:      store,
		fund:       fund,
		budget:     time.Duration(runner.RunBudgetSeconds) * time.Second,
		logger:     logger.Named("runner"),
	}
}

// Run performs one aggregation cycle. Returns ErrRunInFlight when
// another run holds the slot.
func (r *Runner) Run(ctx context.Context) (*RunOutcome, error) {
	if !r.acquire() {
		return nil, ErrRunInFlight
	}
	defer r.release()
	return r.execute(ctx, uuid.NewString())
}

// Dispatch starts a run in the background and returns its id right
// away. The caller learns the outcome from logs and metrics; the slot
// is held until the run finishes.
func (r *Runner) Dispatch(ctx context.Context) (string, error) {
	if !r.acquire() {
		return "", ErrRunInFlight
	}
	runID := uuid.NewString()
	go func() {
		defer r.release()
		if _, err := r.execute(ctx, runID); err != nil {
			r.logger.Error("Dispatched run failed",
				zap.String("run_id", runID),
				zap.Error(err))
		}
	}()
	return runID, nil
}

func (r *Runner) acquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight {
		return false
	}
	r.inFlight = true
	return true
}

func (r *Runner) release() {
	r.mu.Lock()
	r.inFlight = false
	r.mu.Unlock()
}

func (r *Runner) execute(ctx context.Context, runID string) (*RunOutcome, error) {
	started := time.Now().UTC()
	logger := r.logger.With(zap.String("run_id", runID))

	runCtx := ctx
	if r.budget > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.budget)
		defer cancel()
	}

	snapshot, err := r.aggregator.BuildSnapshot(runCtx, r.fund.Address)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		logger.Error("Run failed to build snapshot", zap.Error(err))
		return nil, err
	}

	// The push must outlive the run budget: when the budget expires
	// mid-run the partial snapshot is exactly what needs to be stored,
	// and an already-done context would make the store refuse it.
	pushCtx, cancelPush := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
	defer cancelPush()

	snapshotID, err := r.store.Push(pushCtx, snapshot)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		logger.Error("Run failed to push snapshot", zap.Error(err))
		return nil, err
	}

	status := "success"
	if len(snapshot.Errors) > 0 {
		status = "partial"
	}
	metrics.RunsTotal.WithLabelValues(status).Inc()

	outcome := &RunOutcome{
		RunID:      runID,
		SnapshotID: snapshotID,
		NAV:        snapshot.NAV.USDC,
		Failures:   len(snapshot.Errors),
		StartedAt:  started,
		Duration:   time.Since(started).String(),
	}
	logger.Info("Run finished",
		zap.String("status", status),
		zap.String("snapshot_id", snapshotID),
		zap.String("nav", snapshot.NAV.USDC),
		zap.Int("failures", outcome.Failures))
	return outcome, nil
}

// InFlight reports whether a run currently holds the slot.
func (r *Runner) InFlight() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inFlight
}
