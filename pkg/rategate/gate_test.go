package rategate

import (
	"context"
	"testing"
	"time"

	"fieldnotes/pkg/kv"
)

func newTestGate(cfg Config) (*Gate, *kv.Memory, *time.Time) {
	m := kv.NewMemory()
	now := time.Date(2024, 7, 19, 10, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return now })
	g := New(m, cfg)
	g.SetClock(func() time.Time { return now })
	return g, m, &now
}

func TestAdmitUpToLimit(t *testing.T) {
	g, _, _ := newTestGate(Config{Category: "login", Limit: 20, Daily: true})
	ctx := context.Background()

	for i := 1; i < 20; i++ {
		d, err := g.Admit(ctx, "203.0.113.9")
		if err != nil {
			t.Fatalf("attempt %d errored: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("attempt %d should be admitted", i)
		}
		if want := 20 - i; d.Remaining != want {
			t.Fatalf("attempt %d remaining=%d want %d", i, d.Remaining, want)
		}
	}
	// the attempt that reaches the limit is rejected and pins the block
	d, err := g.Admit(ctx, "203.0.113.9")
	if err != nil || d.Allowed {
		t.Fatalf("limit-reaching attempt: %+v, %v", d, err)
	}
	// further attempts stay rejected without growing the counter
	for i := 0; i < 3; i++ {
		d, err = g.Admit(ctx, "203.0.113.9")
		if err != nil || d.Allowed || d.Remaining != 0 {
			t.Fatalf("post-block attempt: %+v, %v", d, err)
		}
	}
}

func TestSubjectsAreIndependent(t *testing.T) {
	g, _, _ := newTestGate(Config{Category: "login", Limit: 2, Daily: true})
	ctx := context.Background()

	g.Admit(ctx, "a")
	g.Admit(ctx, "a") // a is now blocked
	d, err := g.Admit(ctx, "b")
	if err != nil || !d.Allowed {
		t.Fatalf("unrelated subject affected: %+v, %v", d, err)
	}
}

func TestDailyBucketRollover(t *testing.T) {
	g, _, now := newTestGate(Config{Category: "login", Limit: 2, Daily: true})
	ctx := context.Background()

	g.Admit(ctx, "ip")
	g.Admit(ctx, "ip")
	if d, _ := g.Admit(ctx, "ip"); d.Allowed {
		t.Fatalf("expected block before rollover")
	}

	*now = now.Add(24 * time.Hour)
	d, err := g.Admit(ctx, "ip")
	if err != nil || !d.Allowed {
		t.Fatalf("fresh bucket should admit: %+v, %v", d, err)
	}
}

func TestWindowBucketRollover(t *testing.T) {
	g, _, now := newTestGate(Config{Category: "upload", Limit: 2, Window: time.Hour})
	ctx := context.Background()

	g.Admit(ctx, "owner")
	g.Admit(ctx, "owner")
	if d, _ := g.Admit(ctx, "owner"); d.Allowed {
		t.Fatalf("expected block within the window")
	}

	*now = now.Add(time.Hour)
	d, err := g.Admit(ctx, "owner")
	if err != nil || !d.Allowed {
		t.Fatalf("next window should admit: %+v, %v", d, err)
	}
}

func TestResetClearsPressure(t *testing.T) {
	g, _, _ := newTestGate(Config{Category: "login", Limit: 3, Daily: true})
	ctx := context.Background()

	g.Admit(ctx, "ip")
	g.Admit(ctx, "ip")
	if err := g.Reset(ctx, "ip"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	d, err := g.Admit(ctx, "ip")
	if err != nil || !d.Allowed || d.Remaining != 2 {
		t.Fatalf("counter should start over after reset: %+v, %v", d, err)
	}
}

func TestFailClosedByDefault(t *testing.T) {
	g, m, _ := newTestGate(Config{Category: "login", Limit: 20, Daily: true})
	ctx := context.Background()

	m.Fail = kv.ErrUnavailable
	d, err := g.Admit(ctx, "ip")
	if err == nil {
		t.Fatalf("store failure must surface as an error")
	}
	if d.Allowed {
		t.Fatalf("default policy must reject when the store is down")
	}
}

func TestFailOpenPolicy(t *testing.T) {
	g, m, _ := newTestGate(Config{Category: "upload", Limit: 20, Window: time.Hour, FailOpen: true})
	ctx := context.Background()

	m.Fail = kv.ErrUnavailable
	d, err := g.Admit(ctx, "owner")
	if err == nil {
		t.Fatalf("store failure must surface as an error")
	}
	if !d.Allowed {
		t.Fatalf("fail-open gate must admit when the store is down")
	}
}

func TestCorruptCounterStartsOver(t *testing.T) {
	g, m, _ := newTestGate(Config{Category: "login", Limit: 2, Daily: true})
	ctx := context.Background()

	g.Admit(ctx, "ip")
	// clobber the counter with garbage
	bucket, _ := g.bucket()
	m.Set(ctx, "ratelimit:login:ip:"+bucket, []byte("not json"), time.Hour)

	d, err := g.Admit(ctx, "ip")
	if err != nil || !d.Allowed || d.Remaining != 1 {
		t.Fatalf("corrupt counter should restart the bucket: %+v, %v", d, err)
	}
}

func TestCounterExpiresWithBucket(t *testing.T) {
	g, m, now := newTestGate(Config{Category: "login", Limit: 2, Daily: true})
	ctx := context.Background()

	g.Admit(ctx, "ip")
	bucket, _ := g.bucket()
	key := "ratelimit:login:ip:" + bucket
	if _, err := m.Get(ctx, key); err != nil {
		t.Fatalf("counter missing: %v", err)
	}
	// past the bucket boundary the counter itself is gone from the store
	*now = now.Add(24 * time.Hour)
	if _, err := m.Get(ctx, key); err == nil {
		t.Fatalf("counter should expire with its bucket")
	}
}

func TestDefaults(t *testing.T) {
	g := New(kv.NewMemory(), Config{})
	if g.cfg.Limit != 20 || g.cfg.Window != 24*time.Hour || g.cfg.Category != "default" {
		t.Fatalf("unexpected defaults: %+v", g.cfg)
	}
}
