// Package feed streams check outcomes to Redis for downstream dashboards and
// alerting. The keeper works fine without it; the publisher is only wired
// when a Redis address is configured.
package feed

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/KalyCoinProject/kusd-keeper/internal/config"
	"github.com/KalyCoinProject/kusd-keeper/internal/types"
)

type CheckEvent struct {
	Ts           time.Time
	Price        float64
	DeviationPct float64
	Action       types.Action
	Executed     bool
	Profit       string // collateral base units, decimal string
}

type Publisher struct {
	rdb    *redis.Client
	stream string
}

func NewPublisher(cfg *config.Config) *Publisher {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
	})
	return &Publisher{rdb: rdb, stream: cfg.Redis.Stream}
}

func (p *Publisher) PublishCheck(ctx context.Context, ev CheckEvent) error {
	return p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"ts_ms":         ev.Ts.UnixMilli(),
			"price":         strconv.FormatFloat(ev.Price, 'f', -1, 64),
			"deviation_pct": strconv.FormatFloat(ev.DeviationPct, 'f', -1, 64),
			"action":        string(ev.Action),
			"executed":      strconv.FormatBool(ev.Executed),
			"profit":        ev.Profit,
		},
	}).Err()
}

func (p *Publisher) Close() error { return p.rdb.Close() }
