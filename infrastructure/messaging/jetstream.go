// Package messaging provides the durable cross-instance fanout on top of
// NATS JetStream. One stream captures every room's traffic under the
// room.* subject space; each relay instance attaches its own explicit-ack
// consumer so every instance sees every message and filters locally.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chat-relay/contract"
	"chat-relay/domain/chat"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	// StreamName is the JetStream stream holding chat messages.
	StreamName = "CHAT_MESSAGES"
	// SubjectWildcard binds every room's messages into the stream.
	SubjectWildcard = "room.*"
)

// SubjectForRoom maps a room id to its publish subject.
func SubjectForRoom(roomID string) string {
	return fmt.Sprintf("room.%s", roomID)
}

// Config holds the broker connection and delivery policy. Reconnection,
// publish timeout and redelivery bounds are deliberate settings here, not
// broker-side defaults.
type Config struct {
	URL            string
	PublishTimeout time.Duration
	AckWait        time.Duration
	MaxDeliver     int
	ReconnectWait  time.Duration
	MaxReconnects  int
	MaxAge         time.Duration
}

// JetStreamBroker implements contract.Broker. The connection is established
// lazily on first use and cached for the process lifetime.
type JetStreamBroker struct {
	mu     sync.Mutex
	cfg    Config
	log    *slog.Logger
	nc     *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream
}

var _ contract.Broker = (*JetStreamBroker)(nil)

func NewJetStreamBroker(cfg Config, log *slog.Logger) *JetStreamBroker {
	return &JetStreamBroker{cfg: cfg, log: log}
}

// ensure connects and provisions the stream on first use.
func (b *JetStreamBroker) ensure(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stream != nil {
		return nil
	}

	nc, err := nats.Connect(b.cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(b.cfg.MaxReconnects),
		nats.ReconnectWait(b.cfg.ReconnectWait),
	)
	if err != nil {
		return fmt.Errorf("broker connection failed: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return fmt.Errorf("jetstream context failed: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Chat message fanout",
		Subjects:    []string{SubjectWildcard},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      b.cfg.MaxAge,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		nc.Close()
		return fmt.Errorf("stream provisioning failed: %w", err)
	}

	b.nc = nc
	b.js = js
	b.stream = stream
	b.log.Info("broker connected", "url", b.cfg.URL, "stream", StreamName)
	return nil
}

// Publish writes the envelope to the room's subject, bounded by the
// configured publish timeout so a stalled broker cannot hold a connection's
// command processing forever.
func (b *JetStreamBroker) Publish(ctx context.Context, env chat.Envelope) error {
	if err := b.ensure(ctx); err != nil {
		return err
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("envelope encoding failed: %w", err)
	}

	if b.cfg.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.PublishTimeout)
		defer cancel()
	}

	if _, err := b.js.Publish(ctx, SubjectForRoom(env.RoomID), data); err != nil {
		return fmt.Errorf("publish to %s failed: %w", SubjectForRoom(env.RoomID), err)
	}
	return nil
}

// Subscribe attaches this instance's consumer and pumps deliveries into the
// handler. The consumer is ephemeral and starts at new messages only, so a
// restarted instance does not replay old traffic to fresh connections.
// A handler failure negatively acknowledges that one delivery; redelivery is
// bounded by MaxDeliver.
func (b *JetStreamBroker) Subscribe(ctx context.Context, handler contract.DeliveryHandler) error {
	if err := b.ensure(ctx); err != nil {
		return err
	}

	consumer, err := b.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       b.cfg.AckWait,
		MaxDeliver:    b.cfg.MaxDeliver,
		DeliverPolicy: jetstream.DeliverNewPolicy,
		FilterSubject: SubjectWildcard,
	})
	if err != nil {
		return fmt.Errorf("consumer provisioning failed: %w", err)
	}

	_, err = consumer.Consume(func(msg jetstream.Msg) {
		var env chat.Envelope
		if err := json.Unmarshal(msg.Data(), &env); err != nil {
			b.log.Error("discarding undecodable delivery", "subject", msg.Subject(), "error", err)
			_ = msg.Nak()
			return
		}
		if err := handler(env); err != nil {
			b.log.Error("delivery handling failed", "subject", msg.Subject(), "error", err)
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("consume start failed: %w", err)
	}

	b.log.Info("broker subscription active", "subject", SubjectWildcard)
	return nil
}

// Close drains the connection. Safe to call before any use.
func (b *JetStreamBroker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nc != nil {
		b.nc.Close()
		b.nc = nil
		b.stream = nil
	}
}
