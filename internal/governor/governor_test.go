package governor

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vultisig/trigger-plugin/internal/types"
)

type memCounter struct {
	counts map[string]int64
	ttls   map[string]time.Duration
}

func (m *memCounter) IncrWithExpiry(_ context.Context, key string, expiry time.Duration) (int64, error) {
	m.counts[key]++
	m.ttls[key] = expiry
	return m.counts[key], nil
}

func TestFixedWindow(t *testing.T) {
	counter := &memCounter{counts: map[string]int64{}, ttls: map[string]time.Duration{}}
	g, err := NewFixedWindow(counter, Config{MaxExecutions: 2, WindowSeconds: 3600}, logrus.New())
	if err != nil {
		t.Fatalf("NewFixedWindow failed: %v", err)
	}
	clock := time.Unix(1_760_000_000, 0)
	g.now = func() time.Time { return clock }

	upper := types.OrderSpec{WalletAddress: "0xABCDEF0000000000000000000000000000000001"}
	lower := types.OrderSpec{WalletAddress: "0xabcdef0000000000000000000000000000000001"}

	for i, spec := range []types.OrderSpec{upper, lower} {
		v, err := g.Allow(context.Background(), spec)
		if err != nil || !v.Allowed {
			t.Fatalf("call %d should be allowed: %+v %v", i, v, err)
		}
	}
	v, _ := g.Allow(context.Background(), upper)
	if v.Allowed || v.Reason == "" {
		t.Errorf("third call in window should be denied with a reason, got %+v", v)
	}

	clock = clock.Add(time.Hour)
	if v, _ := g.Allow(context.Background(), upper); !v.Allowed {
		t.Error("next window should reset the counter")
	}
	for _, ttl := range counter.ttls {
		if ttl != time.Hour {
			t.Errorf("ttl = %s, want 1h", ttl)
		}
	}
}

func TestNewFixedWindowRejectsBadConfig(t *testing.T) {
	counter := &memCounter{}
	for _, cfg := range []Config{{MaxExecutions: 0, WindowSeconds: 60}, {MaxExecutions: 1, WindowSeconds: 0}} {
		if _, err := NewFixedWindow(counter, cfg, logrus.New()); err == nil {
			t.Errorf("expected error for %+v", cfg)
		}
	}
}
