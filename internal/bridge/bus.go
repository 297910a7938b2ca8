// Package bridge relays activity events from isolated window contexts to the
// supervising process and fans them out to notification sinks and the
// dashboard push channel.
package bridge

import (
	"sync"

	"github.com/google/uuid"
	"github.com/hbeckert/concierge/internal/models"
	"github.com/rs/zerolog"
)

// ActivityEvent is the message crossing the process boundary. It carries a
// count delta only, never message content.
type ActivityEvent struct {
	AccountID   string          `json:"account_id"`
	Platform    models.Platform `json:"platform"`
	DisplayName string          `json:"display_name"`
	Delta       int             `json:"delta"`
	Source      string          `json:"source"` // models.SourceWindow or models.SourceBackend
}

// Sink receives every relayed event. Implementations handle their own
// failures; a broken sink must not block the others.
type Sink interface {
	Deliver(ev ActivityEvent)
}

// Bus is the single-writer-per-window, multi-subscriber event bus. Sinks are
// invoked synchronously under the bus lock, so events published from one
// goroutine (one window's watcher) arrive everywhere in emission order. No
// ordering holds across windows.
type Bus struct {
	log zerolog.Logger

	mu       sync.Mutex
	sinks    []Sink
	activity map[string]chan ActivityEvent
	tabs     map[string]chan struct{}
}

// New creates an empty bus.
func New(log zerolog.Logger) *Bus {
	return &Bus{
		log:      log,
		activity: make(map[string]chan ActivityEvent),
		tabs:     make(map[string]chan struct{}),
	}
}

// AddSink registers a fan-out sink for activity events.
func (b *Bus) AddSink(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

// PublishActivity relays one event to every sink and subscriber. Subscriber
// channels are never blocked on; a slow consumer misses events rather than
// stalling the bus.
func (b *Bus) PublishActivity(ev ActivityEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.sinks {
		s.Deliver(ev)
	}
	for id, ch := range b.activity {
		select {
		case ch <- ev:
		default:
			b.log.Debug().Str("subscriber", id).Msg("activity subscriber lagging, event dropped")
		}
	}
}

// SubscribeActivity returns a subscriber id and a channel of future events.
func (b *Bus) SubscribeActivity() (string, <-chan ActivityEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := uuid.NewString()
	ch := make(chan ActivityEvent, 16)
	b.activity[id] = ch
	return id, ch
}

// UnsubscribeActivity drops a subscriber.
func (b *Bus) UnsubscribeActivity(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.activity[id]; ok {
		delete(b.activity, id)
		close(ch)
	}
}

// PublishTabsChanged tells subscribers to re-pull the open-tab list. Purely
// advisory, so coalescing is fine.
func (b *Bus) PublishTabsChanged() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.tabs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// SubscribeTabs returns a subscriber id and an advisory change channel.
func (b *Bus) SubscribeTabs() (string, <-chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := uuid.NewString()
	ch := make(chan struct{}, 1)
	b.tabs[id] = ch
	return id, ch
}

// UnsubscribeTabs drops a tabs subscriber.
func (b *Bus) UnsubscribeTabs(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.tabs[id]; ok {
		delete(b.tabs, id)
		close(ch)
	}
}
