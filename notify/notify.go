package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Update types published to subscribers.
const (
	TypeState          = "state"
	TypeChannelStatus  = "channel_status"
	TypeContentChanged = "content_changed"
)

// subscriberBuffer bounds each subscriber's queue; a subscriber that falls
// this far behind starts losing updates rather than stalling the publisher.
const subscriberBuffer = 64

// Update is one notification delivered to subscribers and, when enabled,
// published to NATS.
type Update struct {
	ID      string     `json:"id"`
	Type    string     `json:"type"`
	Time    time.Time  `json:"time"`
	Channel string     `json:"channel,omitempty"`
	Status  string     `json:"status,omitempty"`
	Detail  string     `json:"detail,omitempty"`
	Path    string     `json:"path,omitempty"`
	State   *StateView `json:"state,omitempty"`
}

// NewUpdate stamps an update with a fresh ID and the current time.
func NewUpdate(updateType string) Update {
	return Update{
		ID:   uuid.NewString(),
		Type: updateType,
		Time: time.Now().UTC(),
	}
}

// Notifier fans updates out to any number of subscribers. Delivery is
// best-effort: a full subscriber queue drops the update for that subscriber
// only, so one slow websocket cannot stall state publication.
type Notifier struct {
	mu     sync.Mutex
	subs   map[int]chan Update
	nextID int
	closed bool

	logger  *slog.Logger
	dropped int
}

// NewNotifier creates an empty notifier.
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		subs:   make(map[int]chan Update),
		logger: logger.With("component", "notifier"),
	}
}

// Subscribe registers a new subscriber. The returned cancel function must be
// called to release the subscription; the channel is closed afterwards.
func (n *Notifier) Subscribe() (<-chan Update, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan Update, subscriberBuffer)
	if n.closed {
		close(ch)
		return ch, func() {}
	}

	id := n.nextID
	n.nextID++
	n.subs[id] = ch

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

// Publish delivers u to every subscriber without blocking.
func (n *Notifier) Publish(u Update) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	for _, ch := range n.subs {
		select {
		case ch <- u:
		default:
			n.dropped++
			if n.dropped%100 == 1 {
				n.logger.Warn("dropping updates for slow subscriber", "dropped_total", n.dropped)
			}
		}
	}
}

// SubscriberCount reports the number of active subscribers.
func (n *Notifier) SubscriberCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

// Close closes every subscriber channel and rejects further publishes.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	n.closed = true
	for id, ch := range n.subs {
		delete(n.subs, id)
		close(ch)
	}
}
