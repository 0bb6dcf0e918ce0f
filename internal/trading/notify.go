package trading

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Notification envelopes the two downstream shapes. Exactly one of Order and
// Balance is set, matching Type.
type Notification struct {
	Type    string               `json:"type"`
	Order   *OrderNotification   `json:"order,omitempty"`
	Balance *BalanceNotification `json:"balance,omitempty"`
}

// Notification types.
const (
	NotifyOrderStatusChanged = "order_status_changed"
	NotifyBalanceUpdated     = "balance_updated"
)

// Notifier fans notifications out to subscribers fire-and-forget: publishing
// never blocks, and a subscriber that stops draining its buffer loses
// notifications rather than stalling the execution listener.
type Notifier struct {
	mu     sync.RWMutex
	subs   map[int]chan Notification
	nextID int
	logger zerolog.Logger
}

// NewNotifier creates a notifier with no subscribers.
func NewNotifier() *Notifier {
	return &Notifier{
		subs:   make(map[int]chan Notification),
		logger: log.With().Str("component", "notifier").Logger(),
	}
}

// Subscribe registers a subscriber with the given buffer size and returns
// its channel plus an unsubscribe func. The channel is closed on
// unsubscribe.
func (n *Notifier) Subscribe(buffer int) (<-chan Notification, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Notification, buffer)

	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = ch
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if sub, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// OrderStatusChanged publishes an order_status_changed notification.
func (n *Notifier) OrderStatusChanged(o OrderNotification) {
	n.publish(Notification{Type: NotifyOrderStatusChanged, Order: &o})
}

// BalanceUpdated publishes a balance_updated notification.
func (n *Notifier) BalanceUpdated(b BalanceNotification) {
	n.publish(Notification{Type: NotifyBalanceUpdated, Balance: &b})
}

func (n *Notifier) publish(msg Notification) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for id, ch := range n.subs {
		select {
		case ch <- msg:
		default:
			n.logger.Debug().
				Int("subscriber", id).
				Str("type", msg.Type).
				Msg("subscriber buffer full, notification dropped")
		}
	}
}
