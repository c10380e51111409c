package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/chore-dispute-api/internal/models"
)

const subscriberBuffer = 16

// EventPublisher forwards resolution events to an external broker.
type EventPublisher interface {
	Publish(ctx context.Context, eventType, key string, value interface{}) error
}

// EventTypeDisputeResolved names resolution events on every channel.
const EventTypeDisputeResolved = "dispute.resolved"

// ResolutionHub fans resolution events out to in-process subscribers and an
// optional broker. Slow subscribers miss events rather than block resolution.
type ResolutionHub struct {
	mu          sync.RWMutex
	nextID      int
	subscribers map[int]chan models.DisputeResolvedEvent
	publisher   EventPublisher
	logger      *zap.Logger
}

// NewResolutionHub constructs a hub. publisher may be nil.
func NewResolutionHub(publisher EventPublisher, logger *zap.Logger) *ResolutionHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResolutionHub{
		subscribers: make(map[int]chan models.DisputeResolvedEvent),
		publisher:   publisher,
		logger:      logger,
	}
}

// Subscribe registers a listener. The returned cancel func closes the channel.
func (h *ResolutionHub) Subscribe() (<-chan models.DisputeResolvedEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan models.DisputeResolvedEvent, subscriberBuffer)
	h.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers reports the number of active listeners.
func (h *ResolutionHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Notify delivers evt to subscribers and the broker. Only broker failures are returned.
func (h *ResolutionHub) Notify(ctx context.Context, evt models.DisputeResolvedEvent) error {
	h.mu.RLock()
	for id, ch := range h.subscribers {
		select {
		case ch <- evt:
		default:
			h.logger.Warn("dropping resolution event for slow subscriber", zap.Int("subscriber", id), zap.String("dispute_id", evt.DisputeID))
		}
	}
	h.mu.RUnlock()

	if h.publisher == nil {
		return nil
	}
	return h.publisher.Publish(ctx, EventTypeDisputeResolved, evt.DisputeID, evt)
}
