// Package events provides an in-process publish/subscribe broker used to
// surface operational events — auto-repairs, derivation completion,
// segmented changelog replication — to whatever is watching (a log
// tailer, an admin endpoint, a test) without coupling the components that
// raise them to a concrete sink.
package events

import (
	"sync"
	"time"

	"github.com/facebook/sapling-sub046/pkg/types"
)

// EventType names a kind of operational event.
type EventType string

const (
	EventBlobstoreRepaired        EventType = "blobstore.repaired"
	EventIndexedLogRepaired       EventType = "indexedlog.repaired"
	EventIndexedLogCorruptionFound EventType = "indexedlog.corruption_found"
	EventDerivationStarted        EventType = "derivation.started"
	EventDerivationCompleted      EventType = "derivation.completed"
	EventDerivationFailed         EventType = "derivation.failed"
	EventSegmentedChangelogRebuilt EventType = "segmented_changelog.rebuilt"
	EventSegmentedChangelogVersionApplied EventType = "segmented_changelog.version_applied"
)

// Event is a single operational event.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	RepoID    types.RepoID
	Message   string
	Metadata  map[string]string
}

// Subscriber is a channel that receives events.
type Subscriber chan *Event

// Broker manages event subscriptions and distribution. Publish never
// blocks on a slow subscriber: a subscriber with a full buffer simply
// misses events rather than stalling the publisher.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes an event to all subscribers.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
