// Package alarmtable holds the active-alarm table: the set of currently
// firing alarms, each mapped to the alert last sent for it. It is the join
// point between the alarm stream and the outbound sink — every state
// transition here either stores a fresh fire or emits exactly one resolve.
package alarmtable

import (
	"context"
	"sync"
	"time"

	"github.com/opennms-forks/alertbridge/internal/mapper"
	"github.com/opennms-forks/alertbridge/internal/model"
)

// Sink is the narrow capability Table needs to emit alerts. It matches
// sink.AlertSink's Send method without importing the sink package, so the
// table's tests can supply a fake.
type Sink interface {
	Send(ctx context.Context, alerts []model.Alert)
}

// Metrics is the narrow capability Table needs to report filter drops.
type Metrics interface {
	FilterDrop()
}

// noopMetrics satisfies Metrics when the caller has nothing to wire in.
type noopMetrics struct{}

func (noopMetrics) FilterDrop() {}

// Table is the concurrent active-alarm table keyed by reduction key.
type Table struct {
	mu      sync.RWMutex
	entries map[string]*model.CachedAlarm

	// resolvedAt is a short-lived shadow of recently-resolved reduction
	// keys, kept for resolvedRetention so a duplicate clear/tombstone
	// arriving within the window is recognized as already-resolved and
	// does not trigger a second send. This is the resolvedRetention
	// behavior (config key otherwise read but historically unused
	// upstream); see DESIGN.md for the decision.
	resolvedAt map[string]time.Time
	retention  time.Duration

	mapper  *mapper.Mapper
	sink    Sink
	metrics Metrics
}

// New builds an empty table. m performs the alarm-to-alert translation; s
// receives every fire and resolve as a single-element batch. retention is
// alert.resolvedRetention; zero disables resolve deduplication.
func New(m *mapper.Mapper, s Sink, metrics Metrics, retention time.Duration) *Table {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Table{
		entries:    make(map[string]*model.CachedAlarm),
		resolvedAt: make(map[string]time.Time),
		retention:  retention,
		mapper:     m,
		sink:       s,
		metrics:    metrics,
	}
}

// Upsert applies the filter policy to alarm and, if accepted, stores it
// and sends one fire. A clear-severity or clear-type record short-circuits
// into Resolve instead of ever being stored (I3).
func (t *Table) Upsert(ctx context.Context, alarm model.Alarm) {
	if alarm.IsClear() {
		t.Resolve(ctx, alarm.ReductionKey, &alarm)
		return
	}

	now := time.Now()
	alert, accepted := t.mapper.Map(alarm, now)
	if !accepted {
		t.metrics.FilterDrop()
		return
	}

	t.mu.Lock()
	t.entries[alarm.ReductionKey] = &model.CachedAlarm{Alarm: alarm, Alert: alert, LastSent: now}
	delete(t.resolvedAt, alarm.ReductionKey)
	t.mu.Unlock()

	t.sink.Send(ctx, []model.Alert{alert})
}

// Resolve removes any entry for key and emits one resolve alert. When the
// same key was already resolved within the retention window, the entry is
// still removed but no second resolve is sent.
//
// When alarm is non-nil (a clear record was actually observed, whether or
// not a prior fire exists for its key), the resolve is built by re-mapping
// that alarm with endsAt=now, bypassing the filter — resolves are always
// emitted so the aggregator's view stays consistent even for alarms that
// would otherwise have been excluded.
//
// When alarm is nil (a tombstone with no accompanying record), the prior
// entry's cached alert is reused with endsAt=now, since the raw alarm is
// no longer available. If no entry existed either, a synthetic
// "opennms_alarm_deleted" alert is emitted instead — this is the only path
// with no real alarm data to draw from.
func (t *Table) Resolve(ctx context.Context, reductionKey string, alarm *model.Alarm) {
	now := time.Now()

	t.mu.Lock()
	cached, existed := t.entries[reductionKey]
	delete(t.entries, reductionKey)

	if resolvedSince, dup := t.resolvedAt[reductionKey]; dup && t.retention > 0 && now.Sub(resolvedSince) < t.retention {
		t.mu.Unlock()
		return
	}
	t.resolvedAt[reductionKey] = now
	t.mu.Unlock()

	var alert model.Alert
	switch {
	case alarm != nil:
		alert = t.mapper.MapResolve(*alarm, now)
	case existed:
		alert = cached.Alert
		alert.EndsAt = now.UTC().Format(time.RFC3339)
	default:
		alert = mapper.DeletedAlert(reductionKey, now)
	}

	t.sink.Send(ctx, []model.Alert{alert})
}

// Purge drops resolvedAt shadow entries older than the retention window.
// The resend scheduler calls this once per tick so the shadow table does
// not grow unbounded across a long-running process.
func (t *Table) Purge(now time.Time) {
	if t.retention <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, at := range t.resolvedAt {
		if now.Sub(at) >= t.retention {
			delete(t.resolvedAt, key)
		}
	}
}

// OnTombstone removes the entry for key (if any) and emits a resolve
// derived from the previously cached alert, or a synthetic deleted alert
// if the key was never seen.
func (t *Table) OnTombstone(ctx context.Context, reductionKey string) {
	t.Resolve(ctx, reductionKey, nil)
}

// Iterate returns a snapshot of all currently active entries, keyed by
// reduction key. Each entry and its alert's label and annotation maps are
// copied, so writes to them do not reach the table; the Alarm's own slice
// and pointer fields are still shared, and callers (the resend scheduler,
// the admin surface) must not mutate those in place.
func (t *Table) Iterate() map[string]*model.CachedAlarm {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]*model.CachedAlarm, len(t.entries))
	for k, v := range t.entries {
		cp := *v
		cp.Alert.Labels = copyStringMap(v.Alert.Labels)
		cp.Alert.Annotations = copyStringMap(v.Alert.Annotations)
		out[k] = &cp
	}
	return out
}

func copyStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Touch updates the LastSent timestamp for key after a resend, and swaps
// in the freshly re-mapped alert so the next resend reflects it too.
func (t *Table) Touch(key string, alert model.Alert, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cached, ok := t.entries[key]; ok {
		cached.Alert = alert
		cached.LastSent = at
	}
}

// Size returns the number of active entries.
func (t *Table) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Clear empties the table without emitting resolves — used by the admin
// cache-clear endpoint, which is an operator-triggered reset, not a
// modeled alarm-lifecycle transition.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]*model.CachedAlarm)
}
