package detector

import (
	"context"
	"sort"
	"time"

	"github.com/you/arb-engine/internal/config"
	"github.com/you/arb-engine/internal/marketdata"
	"github.com/you/arb-engine/internal/metrics"
	"github.com/you/arb-engine/internal/types"
	"go.uber.org/zap"
)

const maxConfidence = 0.95

// Detect evaluates one cyclic path against a snapshot. Pure: identical
// inputs always produce identical outputs.
//
// A pair missing from the snapshot contributes a neutral 1.0 rate. That can
// never manufacture a profit on its own, but it degrades detection silently,
// so callers get the count of substituted legs back for observability.
func Detect(snap marketdata.Snapshot, path types.AssetPath, feePerLeg, profitThreshold float64) (types.Opportunity, int, error) {
	if err := path.Validate(); err != nil {
		return types.Opportunity{}, 0, err
	}

	gross := 1.0
	missing := 0
	for _, pair := range path.Pairs() {
		r, ok := snap.Rate(pair)
		if !ok {
			r = 1.0
			missing++
		}
		gross *= r
	}

	net := gross - 1 - feePerLeg*float64(path.LegCount())

	confidence := 0.0
	if net > 0 {
		confidence = net * 100
		if confidence > maxConfidence*100 {
			confidence = maxConfidence * 100
		}
		confidence /= 100
	}

	return types.Opportunity{
		Path:           path,
		GrossRate:      gross,
		NetProfitRatio: net,
		Confidence:     confidence,
		Actionable:     net > profitThreshold,
		Ts:             snap.Ts,
	}, missing, nil
}

// Rank orders opportunities best-first: highest net profit, then shorter
// paths on ties (fewer legs, less execution risk).
func Rank(opps []types.Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		if opps[i].NetProfitRatio != opps[j].NetProfitRatio {
			return opps[i].NetProfitRatio > opps[j].NetProfitRatio
		}
		return opps[i].Path.LegCount() < opps[j].Path.LegCount()
	})
}

// DetectAll runs Detect over every configured path and returns the ranked
// result. Invalid paths are skipped with a log line rather than aborting the
// cycle.
func DetectAll(snap marketdata.Snapshot, cfg config.DetectorConfig, log *zap.Logger) []types.Opportunity {
	opps := make([]types.Opportunity, 0, len(cfg.Paths))
	for _, raw := range cfg.Paths {
		path := types.AssetPath(raw)
		opp, missing, err := Detect(snap, path, cfg.FeePerLeg, cfg.ProfitThreshold)
		if err != nil {
			log.Error("detector: invalid path", zap.String("path", path.String()), zap.Error(err))
			continue
		}
		if missing > 0 {
			metrics.MissingPairs.Add(float64(missing))
			log.Warn("detector: missing pairs defaulted to 1.0",
				zap.String("path", path.String()),
				zap.Int("missing", missing),
			)
		}
		opps = append(opps, opp)
	}
	Rank(opps)
	metrics.OpportunitiesDetected.Add(float64(len(opps)))
	return opps
}

// Run is the streaming form of the detector: it consumes snapshots and emits
// ranked actionable opportunities on its own tick.
func Run(ctx context.Context, cfg *config.Config, in <-chan marketdata.Snapshot, out chan<- types.Opportunity, log *zap.Logger) {
	t := time.NewTicker(cfg.CycleTick())
	defer t.Stop()
	var last marketdata.Snapshot

	for {
		select {
		case <-ctx.Done():
			return
		case s := <-in:
			last = s
		case <-t.C:
			if last.Empty() {
				continue
			}
			for _, opp := range DetectAll(last, cfg.Detector, log) {
				if !opp.Actionable {
					continue
				}
				select {
				case out <- opp:
				default:
					log.Warn("detector: opportunity channel full; dropping")
				}
			}
		}
	}
}
