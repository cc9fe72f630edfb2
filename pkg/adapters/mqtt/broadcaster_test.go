package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/thicket/pkg/domain"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockToken struct {
	done chan struct{}
	err  error
}

func doneToken(err error) *mockToken {
	t := &mockToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *mockToken) Wait() bool                     { <-t.done; return true }
func (t *mockToken) WaitTimeout(time.Duration) bool { return true }
func (t *mockToken) Done() <-chan struct{}          { return t.done }
func (t *mockToken) Error() error                   { return t.err }

type mockMessage struct {
	topic   string
	payload []byte
}

func (m *mockMessage) Duplicate() bool   { return false }
func (m *mockMessage) Qos() byte         { return 1 }
func (m *mockMessage) Retained() bool    { return false }
func (m *mockMessage) Topic() string     { return m.topic }
func (m *mockMessage) MessageID() uint16 { return 0 }
func (m *mockMessage) Payload() []byte   { return m.payload }
func (m *mockMessage) Ack()              {}

// loopback routes published payloads to subscribers of the same topic.
type loopback struct {
	mu       sync.Mutex
	subs     map[string]paho.MessageHandler
	pubErr   error
	hang     bool
	messages []string
}

func newLoopback() *loopback {
	return &loopback{subs: make(map[string]paho.MessageHandler)}
}

func (l *loopback) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	if l.hang {
		return &mockToken{done: make(chan struct{})}
	}
	if l.pubErr != nil {
		return doneToken(l.pubErr)
	}
	l.mu.Lock()
	l.messages = append(l.messages, topic)
	var handlers []paho.MessageHandler
	for filter, h := range l.subs {
		if filter == topic || filter == DefaultPrefix+"/+/patches" {
			handlers = append(handlers, h)
		}
	}
	l.mu.Unlock()
	for _, h := range handlers {
		h(nil, &mockMessage{topic: topic, payload: payload.([]byte)})
	}
	return doneToken(nil)
}

func (l *loopback) Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs[topic] = callback
	return doneToken(nil)
}

func (l *loopback) Unsubscribe(topics ...string) paho.Token {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range topics {
		delete(l.subs, t)
	}
	return doneToken(nil)
}

func TestBroadcaster_PublishSubscribe(t *testing.T) {
	ctx := context.Background()
	bus := newLoopback()
	sender := NewBroadcaster(bus, WithOrigin("editor-1"))
	receiver := NewBroadcaster(bus, WithOrigin("editor-2"))

	var got []Envelope
	require.NoError(t, receiver.Subscribe(ctx, "A", func(e Envelope) { got = append(got, e) }))

	patch := domain.ReplacePatch("A", "m1", "variable", "gold", "silver")
	require.NoError(t, sender.Publish(ctx, "A", []domain.Patch{patch}))

	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].Tree)
	assert.Equal(t, "editor-1", got[0].Origin)
	require.Len(t, got[0].Patches, 1)
	assert.Equal(t, "silver", got[0].Patches[0].Value)
	assert.Equal(t, []string{"thicket/trees/A/patches"}, bus.messages)
}

func TestBroadcaster_SkipsOwnOrigin(t *testing.T) {
	ctx := context.Background()
	bus := newLoopback()
	b := NewBroadcaster(bus, WithOrigin("me"))

	calls := 0
	require.NoError(t, b.Subscribe(ctx, "", func(Envelope) { calls++ }))
	require.NoError(t, b.Publish(ctx, "A", nil))
	assert.Zero(t, calls)

	other := NewBroadcaster(bus, WithOrigin("you"))
	require.NoError(t, other.Publish(ctx, "B", nil))
	assert.Equal(t, 1, calls, "wildcard subscription sees every tree")
}

func TestBroadcaster_MalformedPayloadDropped(t *testing.T) {
	ctx := context.Background()
	bus := newLoopback()
	b := NewBroadcaster(bus)

	calls := 0
	require.NoError(t, b.Subscribe(ctx, "A", func(Envelope) { calls++ }))
	bus.subs[b.Topic("A")](nil, &mockMessage{topic: b.Topic("A"), payload: []byte("{")})
	assert.Zero(t, calls)

	raw, err := json.Marshal(Envelope{Tree: "A"})
	require.NoError(t, err)
	bus.subs[b.Topic("A")](nil, &mockMessage{topic: b.Topic("A"), payload: raw})
	assert.Equal(t, 1, calls)
}

func TestBroadcaster_Errors(t *testing.T) {
	ctx := context.Background()

	failing := newLoopback()
	failing.pubErr = errors.New("not connected")
	assert.ErrorContains(t, NewBroadcaster(failing).Publish(ctx, "A", nil), "not connected")

	hanging := newLoopback()
	hanging.hang = true
	err := NewBroadcaster(hanging, WithTimeout(10*time.Millisecond)).Publish(ctx, "A", nil)
	assert.ErrorIs(t, err, ErrTimeout)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = NewBroadcaster(hanging).Publish(cancelled, "A", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	bus := newLoopback()
	b := NewBroadcaster(bus, WithPrefix("custom/"))

	require.NoError(t, b.Subscribe(ctx, "A", func(Envelope) {}))
	assert.Contains(t, bus.subs, "custom/A/patches")
	require.NoError(t, b.Unsubscribe(ctx, "A"))
	assert.NotContains(t, bus.subs, "custom/A/patches")
}
