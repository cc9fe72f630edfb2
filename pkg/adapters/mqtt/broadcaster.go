// Package mqtt fans accepted patches out to other editors over an MQTT
// broker. Each tree has its own topic: <prefix>/<tree id>/patches.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/thicket/internal/logging"
	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/ports"
	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	// DefaultPrefix is the topic root.
	DefaultPrefix = "thicket/trees"
	// DefaultTimeout bounds how long a publish or subscribe waits for the broker.
	DefaultTimeout = 10 * time.Second
)

// ErrTimeout is returned when the broker does not acknowledge in time.
var ErrTimeout = errors.New("mqtt timeout")

// Client is the subset of paho.Client used here.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Unsubscribe(topics ...string) paho.Token
}

// Envelope is the message body published for each accepted submission.
type Envelope struct {
	Tree    string         `json:"tree"`
	Origin  string         `json:"origin,omitempty"`
	Patches []domain.Patch `json:"patches"`
	SentAt  time.Time      `json:"sent_at"`
}

// Broadcaster implements ports.Broadcaster over MQTT.
type Broadcaster struct {
	client  Client
	prefix  string
	origin  string
	qos     byte
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithPrefix sets the topic root.
func WithPrefix(prefix string) Option {
	return func(b *Broadcaster) {
		b.prefix = strings.TrimSuffix(prefix, "/")
	}
}

// WithOrigin tags published envelopes. Subscribers skip envelopes carrying
// their own origin.
func WithOrigin(origin string) Option {
	return func(b *Broadcaster) {
		b.origin = origin
	}
}

// WithQoS sets the MQTT quality of service level.
func WithQoS(qos byte) Option {
	return func(b *Broadcaster) {
		b.qos = qos
	}
}

// WithTimeout sets the broker acknowledgement timeout.
func WithTimeout(d time.Duration) Option {
	return func(b *Broadcaster) {
		b.timeout = d
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broadcaster) {
		b.logger = l
	}
}

// NewBroadcaster wraps a connected client.
func NewBroadcaster(client Client, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		client:  client,
		prefix:  DefaultPrefix,
		qos:     1,
		timeout: DefaultTimeout,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Dial connects a paho client to brokerURL.
func Dial(ctx context.Context, brokerURL, clientID string) (paho.Client, error) {
	opts := paho.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second)

	client := paho.NewClient(opts)
	if err := wait(ctx, client.Connect(), DefaultTimeout); err != nil {
		return nil, fmt.Errorf("connect %s: %w", brokerURL, err)
	}
	return client, nil
}

// Topic returns the patch topic of treeID.
func (b *Broadcaster) Topic(treeID string) string {
	return b.prefix + "/" + treeID + "/patches"
}

// Publish sends the accepted patches of one submission.
func (b *Broadcaster) Publish(ctx context.Context, treeID string, patches []domain.Patch) error {
	payload, err := json.Marshal(Envelope{
		Tree:    treeID,
		Origin:  b.origin,
		Patches: patches,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode patches for %s: %w", treeID, err)
	}
	if err := wait(ctx, b.client.Publish(b.Topic(treeID), b.qos, false, payload), b.timeout); err != nil {
		return fmt.Errorf("publish %s: %w", treeID, err)
	}
	b.logger.Debug("Patches published", "tree_id", treeID, "count", len(patches))
	return nil
}

// Subscribe delivers envelopes for treeID, or for every tree when treeID is
// empty. Envelopes from this broadcaster's own origin are skipped.
func (b *Broadcaster) Subscribe(ctx context.Context, treeID string, fn func(Envelope)) error {
	topic := b.Topic(treeID)
	if treeID == "" {
		topic = b.prefix + "/+/patches"
	}
	handler := func(_ paho.Client, msg paho.Message) {
		var env Envelope
		if err := json.Unmarshal(msg.Payload(), &env); err != nil {
			b.logger.Warn("Dropping malformed patch message", "topic", msg.Topic(), "error", err)
			return
		}
		if b.origin != "" && env.Origin == b.origin {
			return
		}
		fn(env)
	}
	if err := wait(ctx, b.client.Subscribe(topic, b.qos, handler), b.timeout); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// Unsubscribe stops deliveries for treeID.
func (b *Broadcaster) Unsubscribe(ctx context.Context, treeID string) error {
	topic := b.Topic(treeID)
	if treeID == "" {
		topic = b.prefix + "/+/patches"
	}
	return wait(ctx, b.client.Unsubscribe(topic), b.timeout)
}

func wait(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTimeout
	}
}

var _ ports.Broadcaster = (*Broadcaster)(nil)
