// Package scheduler periodically re-sends every currently active alert so
// Alertmanager's own view survives restarts, missed deliveries, and its own
// resolved-alert GC, without the bridge needing a persistent queue of its
// own.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/opennms-forks/alertbridge/internal/mapper"
	"github.com/opennms-forks/alertbridge/internal/model"
)

// Table is the narrow capability Resend needs from alarmtable.Table.
type Table interface {
	Iterate() map[string]*model.CachedAlarm
	Touch(key string, alert model.Alert, at time.Time)
	Purge(now time.Time)
}

// Sink is the narrow capability Resend needs to deliver a batch.
type Sink interface {
	Send(ctx context.Context, alerts []model.Alert)
}

// Resend re-maps and re-sends every active entry on a fixed cadence,
// matching the teacher's ticker/select daemon event-loop shape
// (cmd/bd/daemon_event_loop.go) rather than a bespoke timer.
type Resend struct {
	table    Table
	sink     Sink
	mapper   *mapper.Mapper
	interval time.Duration
	log      *slog.Logger
}

// New builds a Resend scheduler. interval is alert.resendInterval.
func New(table Table, sink Sink, m *mapper.Mapper, interval time.Duration, log *slog.Logger) *Resend {
	return &Resend{table: table, sink: sink, mapper: m, interval: interval, log: log}
}

// Run blocks, firing Tick every interval until ctx is canceled. It also
// accepts manual ticks on the trigger channel, so the admin "resend now"
// endpoint can force an out-of-band cycle — a manual trigger and a
// scheduled tick arriving close together are not coalesced; each runs its
// own Tick, one after the other on this goroutine.
func (r *Resend) Run(ctx context.Context, trigger <-chan struct{}) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Tick(ctx)
		case <-trigger:
			r.Tick(ctx)
		}
	}
}

// Tick snapshots the active-alarm table, re-maps every entry against the
// current node cache (picking up any node enrichment that arrived after the
// alarm fired), batches the results into one POST, and touches each entry's
// LastSent. It also purges window-expired entries from the resolved-alarm
// shadow table so that table does not grow without bound.
func (r *Resend) Tick(ctx context.Context) {
	now := time.Now()
	r.table.Purge(now)

	entries := r.table.Iterate()
	if len(entries) == 0 {
		return
	}

	alerts := make([]model.Alert, 0, len(entries))
	for key, cached := range entries {
		alert, ok := r.mapper.Map(cached.Alarm, now)
		if !ok {
			// The alarm no longer passes the filter (e.g. config reloaded
			// with a narrower severity set) — resend its last-known alert
			// rather than dropping it silently.
			alert = cached.Alert
		}
		alerts = append(alerts, alert)
		r.table.Touch(key, alert, now)
	}

	if r.log != nil {
		r.log.Debug("scheduler: resending active alerts", "count", len(alerts))
	}
	r.sink.Send(ctx, alerts)
}
