package radapter

import (
	"context"
	"time"
)

// HExpireResult is the four-valued outcome of a watchdog touch, per §6/§7: a logical
// failure and a disconnection are distinguished from the graceful HEXPIRE-unsupported
// downgrade so callers on old servers can keep running without field TTLs.
type HExpireResult int

const (
	HExpireOK HExpireResult = iota
	HExpireLogicalFailure
	HExpireDisconnected
	HExpireUnsupported
)

func (r HExpireResult) String() string {
	switch r {
	case HExpireOK:
		return "ok"
	case HExpireLogicalFailure:
		return "logical-failure"
	case HExpireDisconnected:
		return "disconnected"
	case HExpireUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Watchdog refreshes TTLs on the fields of a status hash (§10.5), so a consumer can tell a
// stale publisher from a live one that simply hasn't written a new value recently.
type Watchdog struct {
	a   *Adapter
	ttl time.Duration
}

// NewWatchdog constructs a watchdog applying ttl to every field Touch is called with.
func NewWatchdog(a *Adapter, ttl time.Duration) *Watchdog {
	return &Watchdog{a: a, ttl: ttl}
}

// Touch refreshes sub's status hash fields: an idempotent HSET (so the value itself does
// not need to change) followed by HEXPIRE. The cached "unsupported" fast path on the
// facade means repeat calls against an old server skip the round trip entirely.
func (w *Watchdog) Touch(ctx context.Context, sub string, fields ...string) HExpireResult {
	key := BuildKey(w.a.homeBase, StubStatus, sub)

	values := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		values[f] = "1"
	}
	_, status := w.a.driver.HSet(ctx, key, values)
	w.a.reconnector.Trigger(status)
	if status == StatusDisconnected {
		return HExpireDisconnected
	}

	_, status = w.a.driver.HExpire(ctx, key, w.ttl, fields...)
	w.a.reconnector.Trigger(status)
	switch status {
	case StatusOK:
		return HExpireOK
	case StatusUnsupported:
		return HExpireUnsupported
	case StatusLogicalFailure:
		return HExpireLogicalFailure
	default:
		return HExpireDisconnected
	}
}
