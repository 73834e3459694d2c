// Package metrics defines the bridge's OTel instruments and exposes them
// to the rest of the module through small capability interfaces, following
// the teacher's doltMetrics pattern of a package-level instrument struct
// registered against the global meter provider at construction time.
package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Bridge holds every metric instrument the bridge reports. Callers depend
// on the narrow Metrics interfaces declared in their own packages
// (alarmtable, sink, stream) rather than this concrete type, so tests can
// supply no-op or recording fakes.
type Bridge struct {
	alarmsReceived   metric.Int64Counter
	nodesReceived    metric.Int64Counter
	parseErrors      metric.Int64Counter
	tombstones       metric.Int64Counter
	filterDrops      metric.Int64Counter
	alertsSent       metric.Int64Counter
	alertsFailed     metric.Int64Counter
	sendLatency      metric.Float64Histogram
	activeAlarmGauge metric.Int64ObservableGauge
	nodeCacheGauge   metric.Int64ObservableGauge

	activeAlarms func() int64
	nodeCacheLen func() int64
}

const meterName = "github.com/opennms-forks/alertbridge"

// New registers every instrument against the global meter provider. The
// two size functions back the observable gauges and are polled whenever the
// Prometheus exporter is scraped, not on a timer of their own.
func New(activeAlarms, nodeCacheLen func() int64) (*Bridge, error) {
	return newFromMeter(otel.Meter(meterName), activeAlarms, nodeCacheLen)
}

// NewExporter builds a Prometheus pull exporter and registers it on a
// fresh SDK MeterProvider, returning the provider so callers can set it as
// the global provider before calling New. This mirrors the
// teacher's preference for a local scrape endpoint over a push pipeline.
func NewExporter() (*sdkmetric.MeterProvider, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("metrics: building prometheus exporter: %w", err)
	}
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)), nil
}

func newFromMeter(m metric.Meter, activeAlarms, nodeCacheLen func() int64) (*Bridge, error) {
	b := &Bridge{activeAlarms: activeAlarms, nodeCacheLen: nodeCacheLen}

	var err error
	b.alarmsReceived, err = m.Int64Counter("alertbridge.alarms.received",
		metric.WithDescription("alarm records consumed from the alarm stream"))
	if err != nil {
		return nil, err
	}
	b.nodesReceived, err = m.Int64Counter("alertbridge.nodes.received",
		metric.WithDescription("node records consumed from the node stream"))
	if err != nil {
		return nil, err
	}
	b.parseErrors, err = m.Int64Counter("alertbridge.decode.errors",
		metric.WithDescription("records that failed to decode"))
	if err != nil {
		return nil, err
	}
	b.tombstones, err = m.Int64Counter("alertbridge.tombstones.received",
		metric.WithDescription("tombstone (empty-payload) records observed"))
	if err != nil {
		return nil, err
	}
	b.filterDrops, err = m.Int64Counter("alertbridge.alarms.filtered",
		metric.WithDescription("alarms dropped by the inclusion/exclusion filter"))
	if err != nil {
		return nil, err
	}
	b.alertsSent, err = m.Int64Counter("alertbridge.alerts.sent",
		metric.WithDescription("alerts successfully POSTed to Alertmanager"))
	if err != nil {
		return nil, err
	}
	b.alertsFailed, err = m.Int64Counter("alertbridge.alerts.failed",
		metric.WithDescription("alert batches dropped after retry exhaustion"))
	if err != nil {
		return nil, err
	}
	b.sendLatency, err = m.Float64Histogram("alertbridge.alerts.send_latency_ms",
		metric.WithDescription("latency of a single Alertmanager POST, including retries"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	b.activeAlarmGauge, err = m.Int64ObservableGauge("alertbridge.alarms.active",
		metric.WithDescription("entries currently held in the active-alarm table"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			if b.activeAlarms != nil {
				o.Observe(b.activeAlarms())
			}
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}
	b.nodeCacheGauge, err = m.Int64ObservableGauge("alertbridge.nodes.cached",
		metric.WithDescription("entries currently held in the node cache"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			if b.nodeCacheLen != nil {
				o.Observe(b.nodeCacheLen())
			}
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return b, nil
}

// AlarmReceived records one alarm-stream record consumed, successfully
// decoded or not.
func (b *Bridge) AlarmReceived(ctx context.Context) { b.alarmsReceived.Add(ctx, 1) }

// NodeReceived records one node-stream record consumed.
func (b *Bridge) NodeReceived(ctx context.Context) { b.nodesReceived.Add(ctx, 1) }

// DecodeError records a record that failed to decode.
func (b *Bridge) DecodeError(ctx context.Context) { b.parseErrors.Add(ctx, 1) }

// Tombstone records an empty-payload (tombstone) record.
func (b *Bridge) Tombstone(ctx context.Context) { b.tombstones.Add(ctx, 1) }

// FilterDrop records an alarm rejected by the inclusion/exclusion filter.
func (b *Bridge) FilterDrop() { b.filterDrops.Add(context.Background(), 1) }

// AlertsSent records n alerts successfully delivered in one batch.
func (b *Bridge) AlertsSent(ctx context.Context, n int) { b.alertsSent.Add(ctx, int64(n)) }

// AlertsFailed records n alerts dropped after retry exhaustion.
func (b *Bridge) AlertsFailed(ctx context.Context, n int) { b.alertsFailed.Add(ctx, int64(n)) }

// SendLatency records the duration of one Alertmanager POST, in milliseconds.
func (b *Bridge) SendLatency(ctx context.Context, ms float64) { b.sendLatency.Record(ctx, ms) }
