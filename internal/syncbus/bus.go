// Package syncbus carries query-sync intents between producers (agent tools,
// deep links, filter widgets) and the page consumers that re-derive their
// query state from them.
package syncbus

import (
	"log/slog"
	"sync"

	"github.com/ankitchouhan119/SkyObserv/internal/models"
)

// Handler consumes one bus event. Handlers run synchronously on the
// publishing goroutine and must not block.
type Handler func(models.SyncEvent)

// Bus is a process-wide publish/subscribe channel for sync events. The last
// query-update is retained and replayed to new subscribers, so a consumer
// that subscribes after a navigation still receives the filters it was
// navigated with. Replay replaces the mount-race delay a timing-based design
// would need.
type Bus struct {
	logger *slog.Logger

	mu          sync.Mutex
	nextID      int
	subscribers map[int]Handler
	lastUpdate  *models.SyncEvent
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		logger:      logger,
		subscribers: make(map[int]Handler),
	}
}

// Subscribe registers a handler and returns its unsubscribe function. If a
// query-update was already published, the handler receives it immediately
// before Subscribe returns.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = h
	replay := b.lastUpdate
	b.mu.Unlock()

	if replay != nil {
		h(*replay)
	}
	return func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
	}
}

// Navigate broadcasts a navigation intent: first the route change to path,
// then the filters as a query-update. Both events reach every subscriber in
// that order before Navigate returns. Concurrent Navigate calls are not
// ordered against each other; the later one's query-update wins the replay
// slot.
func (b *Bus) Navigate(path string, filters models.FilterSet) {
	b.logger.Info("navigate", "path", path, "filters", filters)
	b.publish(models.SyncEvent{Type: models.SyncRouteChange, Path: path, Filters: filters})
	b.publish(models.SyncEvent{Type: models.SyncQueryUpdate, Filters: filters})
}

// PublishUpdate broadcasts a bare query-update without a route change, for
// producers that adjust filters on the current page.
func (b *Bus) PublishUpdate(filters models.FilterSet) {
	b.publish(models.SyncEvent{Type: models.SyncQueryUpdate, Filters: filters})
}

// LastUpdate returns the retained query-update, if any.
func (b *Bus) LastUpdate() (models.SyncEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lastUpdate == nil {
		return models.SyncEvent{}, false
	}
	return *b.lastUpdate, true
}

func (b *Bus) publish(event models.SyncEvent) {
	b.mu.Lock()
	if event.Type == models.SyncQueryUpdate {
		retained := event
		b.lastUpdate = &retained
	}
	handlers := make([]Handler, 0, len(b.subscribers))
	for _, h := range b.subscribers {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
}
