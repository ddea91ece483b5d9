package gateway

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
)

// Subscriber receives serialized status snapshots. Implementations must be
// comparable (pointer receivers) so they can be removed again.
type Subscriber interface {
	Write(text string) error
}

// SubscriberFunc adapts a function to a Subscriber. Only a pointer to a
// SubscriberFunc is comparable, so register &fn.
type SubscriberFunc func(text string) error

func (f *SubscriberFunc) Write(text string) error {
	return (*f)(text)
}

// Broadcaster fans status snapshots out to subscribers
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]struct{}
	logger      logrus.FieldLogger
}

func NewBroadcaster(logger logrus.FieldLogger) *Broadcaster {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Broadcaster{
		subscribers: make(map[Subscriber]struct{}),
		logger:      logger,
	}
}

// Add registers sub; adding it twice is a no-op
func (b *Broadcaster) Add(sub Subscriber) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[sub] = struct{}{}
}

// Remove unregisters sub; removing an unknown subscriber is a no-op
func (b *Broadcaster) Remove(sub Subscriber) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, sub)
}

func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Broadcast serializes status once and writes it to every subscriber.
// A subscriber that fails to accept the write is logged and kept.
func (b *Broadcaster) Broadcast(status Status) {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.subscribers))
	for sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	if len(subs) == 0 {
		return
	}

	data, err := json.Marshal(status)
	if err != nil {
		b.logger.WithError(err).Error("Failed to serialize status snapshot")
		return
	}
	text := string(data)

	for _, sub := range subs {
		if err := sub.Write(text); err != nil {
			b.logger.WithError(err).WithField("state", status.State).Warn("Failed to push status to subscriber")
		}
	}
}
