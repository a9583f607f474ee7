package marketdata

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Source supplies one fresh snapshot per decision cycle.
type Source interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// StaticSource replays a fixed rate table with a fresh timestamp each call.
// Used for paper trading and tests.
type StaticSource struct {
	rates map[string]float64
}

func NewStaticSource(rates map[string]float64) (*StaticSource, error) {
	s, err := NewSnapshot(rates, time.Now())
	if err != nil {
		return nil, err
	}
	return &StaticSource{rates: s.Rates}, nil
}

func (s *StaticSource) Snapshot(_ context.Context) (Snapshot, error) {
	return NewSnapshot(s.rates, time.Now())
}

// Pump polls a source on an interval and forwards snapshots downstream. A
// slow consumer loses snapshots, never blocks the poll loop.
func Pump(ctx context.Context, src Source, interval time.Duration, out chan<- Snapshot, log *zap.Logger) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s, err := src.Snapshot(ctx)
			if err != nil {
				log.Warn("snapshot poll failed", zap.Error(err))
				continue
			}
			select {
			case out <- s:
			default:
			}
		}
	}
}
