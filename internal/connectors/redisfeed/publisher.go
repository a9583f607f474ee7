package redisfeed

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/you/arb-engine/internal/config"
	"github.com/you/arb-engine/internal/portfolio"
	"github.com/you/arb-engine/internal/risk"
)

// Publisher pushes trade records and the latest risk snapshot into Redis for
// external monitoring collaborators (dashboards, alerting). The engine never
// reads any of this back.
type Publisher struct {
	rdb     *redis.Client
	stream  string
	riskKey string
}

// NewPublisher returns nil when no Redis address is configured; the cycle
// treats a nil publisher as "publishing disabled".
func NewPublisher(cfg config.RedisConfig) *Publisher {
	if cfg.Addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		DB:       cfg.DB,
		Username: cfg.Username,
		Password: cfg.Password,
	})
	return &Publisher{
		rdb:     rdb,
		stream:  cfg.Stream,
		riskKey: cfg.RiskKey,
	}
}

// PublishTrade appends a closed trade to the trade stream.
func (p *Publisher) PublishTrade(ctx context.Context, rec portfolio.TradeRecord) error {
	return p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"position_id": rec.PositionID,
			"value":       rec.Value.String(),
			"entry_price": rec.EntryPrice.String(),
			"exit_price":  rec.ExitPrice.String(),
			"profit":      rec.Profit.String(),
			"status":      string(rec.Status),
			"opened_ms":   rec.OpenedAt.UnixMilli(),
			"closed_ms":   rec.ClosedAt.UnixMilli(),
		},
	}).Err()
}

// PublishRisk overwrites the latest risk snapshot hash.
func (p *Publisher) PublishRisk(ctx context.Context, rs risk.Snapshot) error {
	return p.rdb.HSet(ctx, p.riskKey, map[string]interface{}{
		"total_exposure": rs.TotalExposure.String(),
		"exposure_ratio": rs.ExposureRatio,
		"level":          string(rs.Level),
		"reserve_intact": rs.ReserveIntact,
		"open_positions": rs.OpenPositions,
		"balance":        rs.Balance.String(),
		"daily_loss":     rs.DailyLoss.String(),
	}).Err()
}

func (p *Publisher) Close() error { return p.rdb.Close() }
