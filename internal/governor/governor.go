package governor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vultisig/trigger-plugin/internal/types"
)

// Counter is a windowed counter store, satisfied by storage.RedisStorage.
type Counter interface {
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

type Config struct {
	MaxExecutions int64 `mapstructure:"max_executions" json:"max_executions,omitempty"`
	WindowSeconds int64 `mapstructure:"window_seconds" json:"window_seconds,omitempty"`
}

// FixedWindow allows at most MaxExecutions fires per wallet per window.
type FixedWindow struct {
	counter Counter
	max     int64
	window  time.Duration
	logger  logrus.FieldLogger
	now     func() time.Time
}

func NewFixedWindow(counter Counter, cfg Config, logger logrus.FieldLogger) (*FixedWindow, error) {
	if counter == nil {
		return nil, fmt.Errorf("counter cannot be nil")
	}
	if cfg.MaxExecutions <= 0 {
		return nil, fmt.Errorf("max_executions must be positive")
	}
	if cfg.WindowSeconds <= 0 {
		return nil, fmt.Errorf("window_seconds must be positive")
	}
	return &FixedWindow{
		counter: counter,
		max:     cfg.MaxExecutions,
		window:  time.Duration(cfg.WindowSeconds) * time.Second,
		logger:  logger.WithField("component", "governor"),
		now:     time.Now,
	}, nil
}

func (g *FixedWindow) key(wallet string) string {
	bucket := g.now().Unix() / int64(g.window.Seconds())
	return fmt.Sprintf("governor:%s:%d", strings.ToLower(wallet), bucket)
}

func (g *FixedWindow) Allow(ctx context.Context, spec types.OrderSpec) (types.PolicyVerdict, error) {
	count, err := g.counter.IncrWithExpiry(ctx, g.key(spec.WalletAddress), g.window)
	if err != nil {
		return types.PolicyVerdict{}, fmt.Errorf("failed to increment execution counter: %w", err)
	}
	if count > g.max {
		g.logger.WithFields(logrus.Fields{
			"wallet": spec.WalletAddress,
			"count":  count,
		}).Warn("execution rate limit reached")
		return types.PolicyVerdict{
			Allowed: false,
			Reason:  fmt.Sprintf("wallet exceeded %d executions per %s", g.max, g.window),
		}, nil
	}
	return types.PolicyVerdict{Allowed: true}, nil
}
