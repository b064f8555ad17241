// Package rategate bounds abusive request volume with per-subject
// attempt counters that live and die with a time bucket. Both gated
// flows in the system (login, upload) share this one implementation,
// parameterized by limit, bucket shape and failure policy.
package rategate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"fieldnotes/pkg/keys"
	"fieldnotes/pkg/kv"
	"fieldnotes/pkg/logger"
)

// Config parameterizes one gate. The two call sites use different
// limits and bucket widths, so nothing here is hard-coded.
type Config struct {
	// Category namespaces the counters, e.g. "login" or "upload".
	Category string
	// Limit is the number of admitted attempts per subject per bucket.
	Limit int
	// Window is the fixed bucket width. Ignored when Daily is set.
	Window time.Duration
	// Daily switches to calendar-day buckets (UTC); counters die at
	// the next UTC midnight instead of a sliding deadline.
	Daily bool
	// FailOpen decides what Admit does when the counter store is
	// unreachable: admit (true) or reject (false). The policy is
	// explicit here so both call sites behave the same way.
	FailOpen bool
}

// Decision is the outcome of one Admit call.
type Decision struct {
	Allowed   bool
	Remaining int
}

// counter is the stored value for one (subject, bucket) pair. Attempts
// only ever grows within a bucket; the bucket ttl reclaims it.
type counter struct {
	Attempts int  `json:"attempts"`
	Blocked  bool `json:"blocked"`
}

// Gate admits or rejects gated operations for subjects.
type Gate struct {
	kv  kv.Store
	cfg Config
	now func() time.Time
}

// New returns a gate over the given counter store. A non-positive
// Limit defaults to 20 and a non-positive Window to 24h.
func New(store kv.Store, cfg Config) *Gate {
	if cfg.Limit <= 0 {
		cfg.Limit = 20
	}
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}
	if cfg.Category == "" {
		cfg.Category = "default"
	}
	return &Gate{kv: store, cfg: cfg, now: time.Now}
}

// SetClock replaces the gate's clock for tests.
func (g *Gate) SetClock(now func() time.Time) { g.now = now }

// bucket returns the current bucket label and the time left until the
// bucket ends. The ttl shrinks across writes in the same bucket so the
// counter's deadline stays pinned to the bucket boundary.
func (g *Gate) bucket() (string, time.Duration) {
	now := g.now().UTC()
	if g.cfg.Daily {
		midnight := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
		return now.Format("2006-01-02"), midnight.Sub(now)
	}
	idx := now.UnixNano() / int64(g.cfg.Window)
	end := time.Unix(0, (idx+1)*int64(g.cfg.Window))
	return strconv.FormatInt(idx, 10), end.Sub(now)
}

// Admit records one attempt for subject in the current bucket and
// decides whether to let it through. Once a subject is blocked the
// counter stops growing. When the counter store itself fails, Admit
// returns the configured policy decision together with the error so
// callers can distinguish "rate limited" from "store down".
func (g *Gate) Admit(ctx context.Context, subject string) (Decision, error) {
	bucket, ttl := g.bucket()
	key := keys.RateCounter(g.cfg.Category, subject, bucket)

	raw, err := g.kv.Get(ctx, key)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		logger.Error("rategate_store_failed", "category", g.cfg.Category, "subject", subject, "fail_open", g.cfg.FailOpen, "error", err)
		return Decision{Allowed: g.cfg.FailOpen}, fmt.Errorf("rate counter read failed: %w", err)
	}

	var c counter
	if err == nil {
		if uerr := json.Unmarshal(raw, &c); uerr != nil {
			// corrupt counter: start the bucket over rather than
			// locking the subject out on garbage
			logger.Warn("rategate_counter_corrupt", "key", key, "error", uerr)
			c = counter{}
		}
	}

	if c.Blocked || c.Attempts >= g.cfg.Limit {
		if !c.Blocked {
			// attempts hit the limit without the flag being set
			// (e.g. limit lowered between deploys); pin it
			c.Blocked = true
			g.write(ctx, key, c, ttl)
		}
		logger.Debug("rategate_rejected", "category", g.cfg.Category, "subject", subject, "attempts", c.Attempts)
		return Decision{Allowed: false, Remaining: 0}, nil
	}

	c.Attempts++
	if c.Attempts >= g.cfg.Limit {
		c.Blocked = true
	}
	if werr := g.write(ctx, key, c, ttl); werr != nil {
		logger.Error("rategate_store_failed", "category", g.cfg.Category, "subject", subject, "fail_open", g.cfg.FailOpen, "error", werr)
		return Decision{Allowed: g.cfg.FailOpen}, fmt.Errorf("rate counter write failed: %w", werr)
	}

	remaining := g.cfg.Limit - c.Attempts
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: !c.Blocked, Remaining: remaining}, nil
}

// Reset deletes the subject's counter for the current bucket. Called
// after a successful gated action, e.g. a correct login clears the
// failed-attempt pressure for that subject.
func (g *Gate) Reset(ctx context.Context, subject string) error {
	bucket, _ := g.bucket()
	key := keys.RateCounter(g.cfg.Category, subject, bucket)
	if err := g.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("rate counter reset failed: %w", err)
	}
	logger.Debug("rategate_reset", "category", g.cfg.Category, "subject", subject)
	return nil
}

func (g *Gate) write(ctx context.Context, key string, c counter, ttl time.Duration) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	return g.kv.Set(ctx, key, data, ttl)
}
