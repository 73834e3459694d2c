// Package stream consumes the alarm and node log streams over NATS
// JetStream, decoding each message and handing it to the caller's sink
// functions in arrival order. Stream setup follows the teacher's
// eventbus.EnsureStreams idiom: durable, file-backed, idempotently
// (re)declared at startup rather than assumed to already exist.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/opennms-forks/alertbridge/internal/model"
)

// pollInterval bounds how long a single Fetch call blocks waiting for new
// messages before the consumer loop re-checks ctx for cancellation.
const pollInterval = 2 * time.Second

// AlarmDecoder turns a raw message payload into an Alarm. The default is
// JSON, but the interface lets an alternative wire format be substituted
// without touching the consumer loop.
type AlarmDecoder interface {
	DecodeAlarm(payload []byte) (model.Alarm, error)
}

// NodeDecoder mirrors AlarmDecoder for the node-inventory stream.
type NodeDecoder interface {
	DecodeNode(payload []byte) (model.Node, error)
}

// JSONCodec is the default decoder for both streams: the wire format the
// bridge is specified against.
type JSONCodec struct{}

func (JSONCodec) DecodeAlarm(payload []byte) (model.Alarm, error) {
	var a model.Alarm
	if err := json.Unmarshal(payload, &a); err != nil {
		return model.Alarm{}, fmt.Errorf("stream: decoding alarm: %w", err)
	}
	return a, nil
}

func (JSONCodec) DecodeNode(payload []byte) (model.Node, error) {
	var n model.Node
	if err := json.Unmarshal(payload, &n); err != nil {
		return model.Node{}, fmt.Errorf("stream: decoding node: %w", err)
	}
	n.Flatten()
	return n, nil
}

// Metrics is the narrow capability the consumers need for stream-level
// observability.
type Metrics interface {
	AlarmReceived(ctx context.Context)
	NodeReceived(ctx context.Context)
	DecodeError(ctx context.Context)
	Tombstone(ctx context.Context)
}

// EnsureStreams idempotently declares the two partitioned, compacted log
// streams the bridge reads from. alarmsPrefix/nodesPrefix are subject
// prefixes (e.g. "opennms.alarms"), not literal subjects: each stream is
// declared over the wildcarded subject "<prefix>.>", the same
// prefix-plus-">" convention the teacher's own eventbus.EnsureStreams uses
// (SubjectHookPrefix + ">"), so that per-reduction-key publishes like
// "opennms.alarms.<key>" are captured and a tombstone's key can be
// recovered from the subject. It is safe to call on every startup.
func EnsureStreams(js nats.JetStreamContext, alarmsPrefix, nodesPrefix string) error {
	alarmsSubject := wildcardSubject(alarmsPrefix)
	if _, err := js.StreamInfo(streamName(alarmsPrefix)); err != nil {
		if _, err := js.AddStream(&nats.StreamConfig{
			Name:      streamName(alarmsPrefix),
			Subjects:  []string{alarmsSubject},
			Storage:   nats.FileStorage,
			Retention: nats.LimitsPolicy,
		}); err != nil {
			return fmt.Errorf("stream: declaring alarms stream: %w", err)
		}
	}
	nodesSubject := wildcardSubject(nodesPrefix)
	if _, err := js.StreamInfo(streamName(nodesPrefix)); err != nil {
		if _, err := js.AddStream(&nats.StreamConfig{
			Name:      streamName(nodesPrefix),
			Subjects:  []string{nodesSubject},
			Storage:   nats.FileStorage,
			Retention: nats.LimitsPolicy,
		}); err != nil {
			return fmt.Errorf("stream: declaring nodes stream: %w", err)
		}
	}
	return nil
}

// wildcardSubject turns a configured subject prefix into the wildcarded
// subject filter used for stream declaration and pull-subscription, so
// every per-key publish under that prefix is captured.
func wildcardSubject(prefix string) string {
	return strings.TrimSuffix(prefix, ".") + ".>"
}

func streamName(prefix string) string {
	out := make([]byte, 0, len(prefix))
	for i := 0; i < len(prefix); i++ {
		c := prefix[i]
		if c == '.' {
			out = append(out, '_')
			continue
		}
		out = append(out, c)
	}
	return string(out)
}

// AlarmConsumer reads the alarm stream with a single durable ordered pull
// consumer, guaranteeing per-subject ordering: one alarm reduction key is
// always processed by the same goroutine, in arrival order. subject is a
// prefix (e.g. "opennms.alarms"); the consumer subscribes to the
// wildcarded "<prefix>.>" so each reduction key's individual subject is
// captured and recoverable from msg.Subject.
type AlarmConsumer struct {
	js      nats.JetStreamContext
	subject string
	decoder AlarmDecoder
	metrics Metrics
	log     *slog.Logger
}

// NewAlarmConsumer builds a consumer bound to subject (the alarms topic
// prefix).
func NewAlarmConsumer(js nats.JetStreamContext, subject string, decoder AlarmDecoder, metrics Metrics, log *slog.Logger) *AlarmConsumer {
	if decoder == nil {
		decoder = JSONCodec{}
	}
	return &AlarmConsumer{js: js, subject: subject, decoder: decoder, metrics: metrics, log: log}
}

// Run subscribes durably and invokes handle for each decoded alarm, or
// onTombstone(reductionKey) for an empty-payload record, until ctx is
// canceled. A decode error is counted and the message is still acked — a
// bad record must never wedge the partition.
func (c *AlarmConsumer) Run(ctx context.Context, durable string, handle func(model.Alarm), onTombstone func(reductionKey string)) error {
	wildcard := wildcardSubject(c.subject)
	sub, err := c.js.PullSubscribe(wildcard, durable, nats.ManualAck(), nats.AckExplicit())
	if err != nil {
		return fmt.Errorf("stream: subscribing to %s: %w", wildcard, err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgs, err := sub.Fetch(32, nats.MaxWait(pollInterval))
		if err != nil {
			if err == nats.ErrTimeout {
				continue
			}
			return fmt.Errorf("stream: fetching from %s: %w", c.subject, err)
		}

		for _, msg := range msgs {
			c.handleMessage(ctx, msg, handle, onTombstone)
		}
	}
}

func (c *AlarmConsumer) handleMessage(ctx context.Context, msg *nats.Msg, handle func(model.Alarm), onTombstone func(string)) {
	defer msg.Ack()

	if c.metrics != nil {
		c.metrics.AlarmReceived(ctx)
	}

	if len(msg.Data) == 0 {
		if c.metrics != nil {
			c.metrics.Tombstone(ctx)
		}
		onTombstone(reductionKeyFromSubject(c.subject, msg.Subject))
		return
	}

	alarm, err := c.decoder.DecodeAlarm(msg.Data)
	if err != nil {
		if c.metrics != nil {
			c.metrics.DecodeError(ctx)
		}
		if c.log != nil {
			c.log.Error("stream: dropping undecodable alarm record", "subject", msg.Subject, "error", err)
		}
		return
	}
	handle(alarm)
}

// NodeConsumer mirrors AlarmConsumer for the node-inventory stream.
type NodeConsumer struct {
	js      nats.JetStreamContext
	subject string
	decoder NodeDecoder
	metrics Metrics
	log     *slog.Logger
}

// NewNodeConsumer builds a consumer bound to subject (the nodes topic
// prefix).
func NewNodeConsumer(js nats.JetStreamContext, subject string, decoder NodeDecoder, metrics Metrics, log *slog.Logger) *NodeConsumer {
	if decoder == nil {
		decoder = JSONCodec{}
	}
	return &NodeConsumer{js: js, subject: subject, decoder: decoder, metrics: metrics, log: log}
}

// Run subscribes durably and invokes handle for each decoded node, or
// onTombstone(key) for an empty-payload record (a node deletion).
func (c *NodeConsumer) Run(ctx context.Context, durable string, handle func(model.Node), onTombstone func(key string)) error {
	wildcard := wildcardSubject(c.subject)
	sub, err := c.js.PullSubscribe(wildcard, durable, nats.ManualAck(), nats.AckExplicit())
	if err != nil {
		return fmt.Errorf("stream: subscribing to %s: %w", wildcard, err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgs, err := sub.Fetch(32, nats.MaxWait(pollInterval))
		if err != nil {
			if err == nats.ErrTimeout {
				continue
			}
			return fmt.Errorf("stream: fetching from %s: %w", c.subject, err)
		}

		for _, msg := range msgs {
			c.handleMessage(ctx, msg, handle, onTombstone)
		}
	}
}

func (c *NodeConsumer) handleMessage(ctx context.Context, msg *nats.Msg, handle func(model.Node), onTombstone func(string)) {
	defer msg.Ack()

	if c.metrics != nil {
		c.metrics.NodeReceived(ctx)
	}

	if len(msg.Data) == 0 {
		if c.metrics != nil {
			c.metrics.Tombstone(ctx)
		}
		onTombstone(reductionKeyFromSubject(c.subject, msg.Subject))
		return
	}

	node, err := c.decoder.DecodeNode(msg.Data)
	if err != nil {
		if c.metrics != nil {
			c.metrics.DecodeError(ctx)
		}
		if c.log != nil {
			c.log.Error("stream: dropping undecodable node record", "subject", msg.Subject, "error", err)
		}
		return
	}
	handle(node)
}

// reductionKeyFromSubject extracts the compaction key from a subject of the
// form "<prefix>.<key>", the convention the source streams use for their
// per-key tombstones. Everything after the prefix is the key, so keys that
// themselves contain dots are returned whole.
func reductionKeyFromSubject(prefix, subject string) string {
	return strings.TrimPrefix(subject, strings.TrimSuffix(prefix, ".")+".")
}
