// -----------------------------------------------------------------------
// Broadcast Hub - fans lifecycle events out to live subscribers
// -----------------------------------------------------------------------

package broadcast

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/common"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/models"
)

// Subscriber receives encoded events
type Subscriber interface {
	Send(message []byte) error
}

// Handshaker is implemented by subscribers that need setup before they are registered
type Handshaker interface {
	Handshake() error
}

// Subscription is the handle returned by Connect and passed to Disconnect
type Subscription struct {
	ID         string
	subscriber Subscriber
}

// Hub keeps the subscriber registry. A failed delivery is logged and skipped;
// the subscriber stays registered until Disconnect is called for it.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]Subscriber
	logger      arbor.ILogger
}

func NewHub(logger arbor.ILogger) *Hub {
	return &Hub{
		subscribers: make(map[string]Subscriber),
		logger:      logger,
	}
}

// Connect completes the subscriber's handshake and then registers it
func (h *Hub) Connect(sub Subscriber) (*Subscription, error) {
	if sub == nil {
		return nil, fmt.Errorf("subscriber is nil")
	}
	if hs, ok := sub.(Handshaker); ok {
		if err := hs.Handshake(); err != nil {
			return nil, fmt.Errorf("subscriber handshake failed: %w", err)
		}
	}

	subscription := &Subscription{ID: common.NewSubscriberID(), subscriber: sub}

	h.mu.Lock()
	h.subscribers[subscription.ID] = sub
	count := len(h.subscribers)
	h.mu.Unlock()

	h.logger.Debug().
		Str("subscriber_id", subscription.ID).
		Int("total", count).
		Msg("Subscriber connected")

	return subscription, nil
}

// Disconnect removes the subscription. It returns false if it was not registered.
func (h *Hub) Disconnect(subscription *Subscription) bool {
	if subscription == nil {
		return false
	}

	h.mu.Lock()
	_, exists := h.subscribers[subscription.ID]
	delete(h.subscribers, subscription.ID)
	count := len(h.subscribers)
	h.mu.Unlock()

	if exists {
		h.logger.Debug().
			Str("subscriber_id", subscription.ID).
			Int("remaining", count).
			Msg("Subscriber disconnected")
	}
	return exists
}

// Count returns the number of registered subscribers
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Broadcast encodes event once and delivers it to every registered subscriber.
// It never fails: per-subscriber errors and panics are logged and the loop continues.
func (h *Hub) Broadcast(event models.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("type", string(event.EventType())).Msg("Failed to marshal broadcast event")
		return
	}

	h.mu.RLock()
	ids := make([]string, 0, len(h.subscribers))
	subs := make([]Subscriber, 0, len(h.subscribers))
	for id, sub := range h.subscribers {
		ids = append(ids, id)
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for i, sub := range subs {
		if err := h.deliver(sub, data); err != nil {
			h.logger.Warn().
				Err(err).
				Str("subscriber_id", ids[i]).
				Str("type", string(event.EventType())).
				Msg("Failed to deliver event to subscriber")
		}
	}
}

func (h *Hub) deliver(sub Subscriber, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panicked: %v", r)
		}
	}()
	return sub.Send(data)
}
