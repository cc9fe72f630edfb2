package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/thicket/internal/logging"
	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/ports"
)

// Event is one batch of accepted patches pushed to stream subscribers.
type Event struct {
	Tree    string         `json:"tree"`
	Patches []domain.Patch `json:"patches"`
	SentAt  time.Time      `json:"sent_at"`
}

// StreamManager fans accepted patches out to SSE subscribers, keyed by the
// tree they watch. It is the Broadcaster given to an authority so that
// every accepted submission reaches connected editors.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan string]struct{}
	buffer      int
	logger      *slog.Logger
}

// NewStreamManager creates an empty stream manager.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan string]struct{}),
		buffer:      16,
		logger:      logger,
	}
}

// Subscribe registers a listener for treeID. The returned function removes
// the listener and closes the channel.
func (sm *StreamManager) Subscribe(treeID string) (<-chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, sm.buffer)
	if _, ok := sm.subscribers[treeID]; !ok {
		sm.subscribers[treeID] = make(map[chan string]struct{})
	}
	sm.subscribers[treeID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[treeID]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(sm.subscribers, treeID)
				}
			}
			close(ch)
		})
	}
}

// Subscribers returns the number of listeners on treeID.
func (sm *StreamManager) Subscribers(treeID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[treeID])
}

// Broadcast delivers msg to every listener of treeID. Slow listeners with a
// full buffer miss the message.
func (sm *StreamManager) Broadcast(treeID, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[treeID] {
		select {
		case ch <- msg:
		default:
			sm.logger.Warn("SSE client buffer full, dropping message", "tree_id", treeID)
		}
	}
}

// Publish encodes the accepted patches as an Event and broadcasts it.
func (sm *StreamManager) Publish(_ context.Context, treeID string, patches []domain.Patch) error {
	body, err := json.Marshal(Event{Tree: treeID, Patches: patches, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode event for %s: %w", treeID, err)
	}
	sm.logger.Debug("Broadcasting patches", "tree_id", treeID, "patches", len(patches), "payload_size", len(body))
	sm.Broadcast(treeID, string(body))
	return nil
}

var _ ports.Broadcaster = (*StreamManager)(nil)
