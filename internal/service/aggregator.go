// Package service orchestrates aggregation runs: fan out over the
// protocol adapters, merge their valued positions into one immutable
// snapshot, and hand the result to the store.
package service

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/detradefund/stack-mon-prime/internal/app/port"
	"github.com/detradefund/stack-mon-prime/internal/config"
	"github.com/detradefund/stack-mon-prime/internal/domain/entity"
	"github.com/detradefund/stack-mon-prime/internal/pkg/metrics"
	"github.com/detradefund/stack-mon-prime/internal/pkg/utils"
)

// lpParentDecimals: Curve and Pendle LP tokens are 18-decimal; used
// when a decomposed position has no explicit LP balance constituent.
const lpParentDecimals = 18

// Aggregator builds portfolio snapshots by running every adapter and
// merging the results. Adapter failures degrade to explicit markers;
// the snapshot is produced regardless.
type Aggregator struct {
	adapters []port.ProtocolAdapter
	chains   port.ChainClientProvider
	registry *config.Registry
	fund     config.FundConfig
	runner   config.RunnerConfig
	logger   *zap.Logger
}

func NewAggregator(
	adapters []port.ProtocolAdapter,
	chains port.ChainClientProvider,
	registry *config.Registry,
	fund config.FundConfig,
	runner config.RunnerConfig,
	logger *zap.Logger,
) *Aggregator {
	return &Aggregator{
		adapters: adapters,
		chains:   chains,
		registry: registry,
		fund:     fund,
		runner:   runner,
		logger:   logger.Named("aggregator"),
	}
}

type adapterResult struct {
	name   string
	valued []entity.ValuedPosition
	err    error
}

// BuildSnapshot reads every position of the fund address and merges
// them into one snapshot. The timestamp is taken before any chain
// read, so it bounds the staleness of everything in the document.
func (a *Aggregator) BuildSnapshot(ctx context.Context, address string) (*entity.PortfolioSnapshot, error) {
	createdAt := time.Now().UTC()
	a.logger.Info("Starting aggregation run",
		zap.String("address", address),
		zap.Int("adapters", len(a.adapters)))

	results := make([]adapterResult, len(a.adapters))
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(a.runner.MaxConcurrentAdapters)

	for i, protocolAdapter := range a.adapters {
		i, protocolAdapter := i, protocolAdapter
		group.Go(func() error {
			result := a.runAdapter(groupCtx, protocolAdapter, address)
			mu.Lock()
			results[i] = result
			mu.Unlock()
			return nil
		})
	}
	// Adapter errors are captured per-result, never propagated.
	_ = group.Wait()

	snapshot := &entity.PortfolioSnapshot{
		Address:   address,
		CreatedAt: createdAt,
		Protocols: make(map[string]entity.ProtocolSection),
		Spot:      make(map[string]entity.NetworkSection),
	}

	var allValued []entity.ValuedPosition
	for _, result := range results {
		if result.err != nil {
			snapshot.Errors = append(snapshot.Errors, entity.AdapterFailure{
				Adapter: result.name,
				Message: result.err.Error(),
			})
			continue
		}
		allValued = append(allValued, result.valued...)
	}

	grandTotal := a.mergeTree(snapshot, allValued)
	a.buildOverview(snapshot, allValued, grandTotal)
	a.fillNAV(ctx, snapshot, grandTotal)

	a.logger.Info("Aggregation run complete",
		zap.String("nav", snapshot.NAV.USDC),
		zap.Int("positions", len(allValued)),
		zap.Int("failures", len(snapshot.Errors)),
		zap.Duration("elapsed", time.Since(createdAt)))
	return snapshot, nil
}

func (a *Aggregator) runAdapter(ctx context.Context, protocolAdapter port.ProtocolAdapter, address string) adapterResult {
	name := protocolAdapter.Name()
	started := time.Now()
	defer func() {
		metrics.AdapterDuration.WithLabelValues(name).Observe(time.Since(started).Seconds())
	}()

	adapterCtx := ctx
	if a.runner.AdapterTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		adapterCtx, cancel = context.WithTimeout(ctx, time.Duration(a.runner.AdapterTimeoutSeconds)*time.Second)
		defer cancel()
	}

	positions, err := protocolAdapter.GetPositions(adapterCtx, address)
	if err != nil {
		metrics.AdapterFailures.WithLabelValues(name).Inc()
		a.logger.Error("Adapter failed",
			zap.String("adapter", name),
			zap.Error(err))
		return adapterResult{name: name, err: err}
	}

	valued := protocolAdapter.ValuePositions(adapterCtx, positions)
	a.logger.Debug("Adapter finished",
		zap.String("adapter", name),
		zap.Int("positions", len(valued)),
		zap.Duration("elapsed", time.Since(started)))
	return adapterResult{name: name, valued: valued}
}

// mergeTree routes every valued constituent into the protocols/spot
// maps and returns the portfolio grand total in reference base units.
// Failed valuations stay visible in the tree but contribute nothing.
func (a *Aggregator) mergeTree(snapshot *entity.PortfolioSnapshot, valued []entity.ValuedPosition) *big.Int {
	type groupKey struct{ protocol, network, label string }
	groups := make(map[groupKey][]entity.ValuedPosition)
	var order []groupKey
	for _, vp := range valued {
		key := groupKey{vp.Protocol, vp.Network, vp.Label}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], vp)
	}

	grandTotal := big.NewInt(0)
	for _, key := range order {
		detail, groupTotal := buildPositionDetail(groups[key])
		grandTotal.Add(grandTotal, groupTotal)

		if key.protocol == "spot" {
			section := snapshot.Spot[key.network]
			if section.Positions == nil {
				section.Positions = make(map[string]entity.PositionDetail)
			}
			section.Positions[key.label] = detail
			section.Totals = addTotals(section.Totals, groupTotal)
			snapshot.Spot[key.network] = section
			continue
		}

		protocolSection := snapshot.Protocols[key.protocol]
		if protocolSection.Networks == nil {
			protocolSection.Networks = make(map[string]entity.NetworkSection)
		}
		networkSection := protocolSection.Networks[key.network]
		if networkSection.Positions == nil {
			networkSection.Positions = make(map[string]entity.PositionDetail)
		}
		networkSection.Positions[key.label] = detail
		networkSection.Totals = addTotals(networkSection.Totals, groupTotal)
		protocolSection.Networks[key.network] = networkSection
		protocolSection.Totals = addTotals(protocolSection.Totals, groupTotal)
		snapshot.Protocols[key.protocol] = protocolSection
	}
	return grandTotal
}

// buildPositionDetail assembles one snapshot position from its
// constituents: a plain balance, LP legs, rewards, or a mix.
func buildPositionDetail(constituents []entity.ValuedPosition) (entity.PositionDetail, *big.Int) {
	detail := entity.PositionDetail{}
	total := big.NewInt(0)
	isLP := false

	for _, vp := range constituents {
		leaf := entity.ValueLeaf{
			Amount:            rawAmountString(vp.RawAmount),
			Decimals:          vp.Decimals,
			ConversionDetails: vp.Conversion,
		}
		total.Add(total, vp.Value())

		switch vp.Kind {
		case entity.KindLPLeg:
			isLP = true
			if detail.Legs == nil {
				detail.Legs = make(map[string]entity.PositionDetail)
			}
			detail.Legs[vp.Token.Symbol] = leafDetail(vp, leaf)
			if detail.Amount == "" && vp.ParentAmount != nil {
				detail.Amount = vp.ParentAmount.String()
				detail.Decimals = lpParentDecimals
			}
		case entity.KindReward:
			isLP = true
			if detail.Rewards == nil {
				detail.Rewards = make(map[string]entity.PositionDetail)
			}
			detail.Rewards[vp.Token.Symbol] = leafDetail(vp, leaf)
		default:
			detail.Amount = rawAmountString(vp.RawAmount)
			detail.Decimals = vp.Decimals
			detail.Value = leaf
			if vp.Token.Market != "" {
				isLP = true
			}
		}
	}

	// Staked positions always show a rewards section; an empty map
	// means "no rewards accrued", absent means "not tracked".
	if isLP && detail.Rewards == nil {
		detail.Rewards = make(map[string]entity.PositionDetail)
	}

	detail.Totals = makeTotals(total)
	return detail, total
}

func leafDetail(vp entity.ValuedPosition, leaf entity.ValueLeaf) entity.PositionDetail {
	return entity.PositionDetail{
		Amount:   rawAmountString(vp.RawAmount),
		Decimals: vp.Decimals,
		Value:    leaf,
		Totals:   makeTotals(vp.Value()),
	}
}

func rawAmountString(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

func makeTotals(value *big.Int) entity.Totals {
	return entity.Totals{
		Wei:       value.String(),
		Formatted: utils.FormatUnits(value, referenceDecimals, 6),
	}
}

func addTotals(current entity.Totals, add *big.Int) entity.Totals {
	sum := new(big.Int).Set(add)
	if current.Wei != "" {
		if existing, ok := new(big.Int).SetString(current.Wei, 10); ok {
			sum.Add(sum, existing)
		}
	}
	return makeTotals(sum)
}

// referenceDecimals is fixed by the reference asset (USDC).
const referenceDecimals = 6

// buildOverview flattens positions by value, descending. The total is
// the same grand total used for NAV, so the two always agree.
func (a *Aggregator) buildOverview(snapshot *entity.PortfolioSnapshot, valued []entity.ValuedPosition, grandTotal *big.Int) {
	sums := make(map[string]*big.Int)
	var keys []string
	for _, vp := range valued {
		key := vp.Protocol + "." + vp.Network + "." + vp.Label
		if vp.Protocol == "spot" {
			key = vp.Network + "." + vp.Label
		}
		if _, seen := sums[key]; !seen {
			sums[key] = big.NewInt(0)
			keys = append(keys, key)
		}
		sums[key].Add(sums[key], vp.Value())
	}

	sort.Slice(keys, func(i, j int) bool {
		cmp := sums[keys[i]].Cmp(sums[keys[j]])
		if cmp != 0 {
			return cmp > 0
		}
		return keys[i] < keys[j]
	})

	positions := make([]entity.OverviewPosition, 0, len(keys))
	for _, key := range keys {
		positions = append(positions, entity.OverviewPosition{
			Key:   key,
			Value: utils.FormatUnits(sums[key], referenceDecimals, 6),
		})
	}

	snapshot.Overview = entity.Overview{
		TotalValue: utils.FormatUnits(grandTotal, referenceDecimals, 6),
		Positions:  positions,
	}
}

// fillNAV reads the share token supply and derives the share price.
// With zero supply the price is undefined and reported as null.
func (a *Aggregator) fillNAV(ctx context.Context, snapshot *entity.PortfolioSnapshot, grandTotal *big.Int) {
	nav := entity.NAV{
		USDC:        utils.FormatUnits(grandTotal, referenceDecimals, 6),
		TotalSupply: "0",
	}

	supply, err := a.readShareSupply(ctx)
	if err != nil {
		a.logger.Error("Failed to read share token supply", zap.Error(err))
		snapshot.Errors = append(snapshot.Errors, entity.AdapterFailure{
			Adapter: "share_supply",
			Network: a.fund.ShareNetwork,
			Message: err.Error(),
		})
		nav.Note = "Share price unavailable: supply read failed"
		snapshot.NAV = nav
		return
	}

	nav.TotalSupply = supply.String()
	if supply.Sign() == 0 {
		nav.SharePrice = nil
		nav.Note = "Share price undefined: total supply is zero"
		snapshot.NAV = nav
		return
	}

	navValue := new(big.Float).Quo(
		new(big.Float).SetInt(grandTotal),
		new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(referenceDecimals), nil)),
	)
	supplyValue := new(big.Float).Quo(
		new(big.Float).SetInt(supply),
		new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(a.fund.ShareDecimals)), nil)),
	)
	price := new(big.Float).Quo(navValue, supplyValue).Text('f', 6)
	nav.SharePrice = &price
	snapshot.NAV = nav
}

func (a *Aggregator) readShareSupply(ctx context.Context) (*big.Int, error) {
	chainClient, err := a.chains.Client(a.fund.ShareNetwork)
	if err != nil {
		return nil, err
	}
	supply, err := chainClient.TotalSupply(ctx, a.fund.ShareToken)
	if err != nil {
		return nil, fmt.Errorf("totalSupply of share token %s: %w", a.fund.ShareToken, err)
	}
	return supply, nil
}
