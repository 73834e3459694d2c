// Package bridge wires every component together and runs the bridge's
// supervised goroutine set: one consumer per input stream, the resend
// scheduler, and the admin HTTP server, all under a single errgroup so any
// one of them exiting tears the rest down.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/opennms-forks/alertbridge/internal/admin"
	"github.com/opennms-forks/alertbridge/internal/alarmtable"
	"github.com/opennms-forks/alertbridge/internal/config"
	"github.com/opennms-forks/alertbridge/internal/mapper"
	"github.com/opennms-forks/alertbridge/internal/metrics"
	"github.com/opennms-forks/alertbridge/internal/model"
	"github.com/opennms-forks/alertbridge/internal/nodecache"
	"github.com/opennms-forks/alertbridge/internal/scheduler"
	"github.com/opennms-forks/alertbridge/internal/sink"
	"github.com/opennms-forks/alertbridge/internal/stream"
)

// Bridge holds every long-lived component and supervises their goroutines.
type Bridge struct {
	cfg    *config.Config
	log    *slog.Logger
	nodes  *nodecache.Cache
	alarms *alarmtable.Table
	am     *sink.AlertSink
	mapper *mapper.Mapper

	alarmConsumer *stream.AlarmConsumer
	nodeConsumer  *stream.NodeConsumer
	resend        *scheduler.Resend
	resendCh      chan struct{}

	ready int32
}

// New constructs every component from cfg. nc is a pre-established
// JetStream context — connecting to NATS is the caller's responsibility so
// main can retry or fail fast on its own terms.
func New(cfg *config.Config, nc nats.JetStreamContext, log *slog.Logger) (*Bridge, error) {
	if log == nil {
		log = slog.Default()
	}

	nodes := nodecache.New()
	m := mapper.New(cfg.Alert, cfg.OpenNMSBaseURL, nodes)

	// alarmSize is read by the metrics gauge callback; it is wired to the
	// real table's Size method once alarms is constructed below, since the
	// table's own constructor needs the metrics instance first.
	var alarms *alarmtable.Table
	alarmSize := func() int64 {
		if alarms == nil {
			return 0
		}
		return int64(alarms.Size())
	}

	met, err := metrics.New(alarmSize, func() int64 { return int64(nodes.Size()) })
	if err != nil {
		return nil, fmt.Errorf("bridge: building metrics: %w", err)
	}

	am := sink.New(cfg.Alertmanager, met, log)
	alarms = alarmtable.New(m, am, met, cfg.Alert.ResolvedRetention)

	if err := stream.EnsureStreams(nc, cfg.Topics.Alarms, cfg.Topics.Nodes); err != nil {
		return nil, fmt.Errorf("bridge: ensuring streams: %w", err)
	}

	b := &Bridge{
		cfg:           cfg,
		log:           log,
		nodes:         nodes,
		alarms:        alarms,
		am:            am,
		mapper:        m,
		resendCh:      make(chan struct{}, 1),
		alarmConsumer: stream.NewAlarmConsumer(nc, cfg.Topics.Alarms, stream.JSONCodec{}, met, log),
		nodeConsumer:  stream.NewNodeConsumer(nc, cfg.Topics.Nodes, stream.JSONCodec{}, met, log),
		resend:        scheduler.New(alarms, am, m, cfg.Alert.ResendInterval, log),
	}

	return b, nil
}

// Run starts every goroutine under an errgroup and blocks until ctx is
// canceled or one of them exits with an error. On cancellation, each
// component's own ctx-select loop unwinds it; Run returns once every
// goroutine has stopped, bounding shutdown to however long an in-flight
// alert send takes.
func (b *Bridge) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := b.alarmConsumer.Run(gctx, "alertbridge-alarms", b.onAlarm, b.onAlarmTombstone)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	g.Go(func() error {
		err := b.nodeConsumer.Run(gctx, "alertbridge-nodes", b.onNode, b.onNodeTombstone)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	g.Go(func() error {
		err := b.resend.Run(gctx, b.resendCh)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	g.Go(func() error {
		srv := admin.New(b.alarms, b.nodes, b.am, b.resendCh, b.Ready, b.cfg.Alertmanager.URL, b.cfg.Alertmanager.Enabled)
		return admin.ListenAndServe(gctx, b.cfg.AdminAddr, srv)
	})

	atomic.StoreInt32(&b.ready, 1)

	return g.Wait()
}

// Ready reports whether startup has completed and every consumer goroutine
// has been launched. Used by the admin surface's /readyz probe.
func (b *Bridge) Ready() bool {
	return atomic.LoadInt32(&b.ready) == 1
}

func (b *Bridge) onAlarm(alarm model.Alarm) {
	b.alarms.Upsert(context.Background(), alarm)
}

func (b *Bridge) onAlarmTombstone(reductionKey string) {
	b.alarms.OnTombstone(context.Background(), reductionKey)
}

func (b *Bridge) onNode(node model.Node) {
	b.nodes.Put(&node)
}

func (b *Bridge) onNodeTombstone(key string) {
	b.nodes.Remove(key)
}
