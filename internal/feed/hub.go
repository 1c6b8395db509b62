// Package feed turns the append-only events table into live notifications:
// an in-process fan-out hub for streaming clients and a webhook dispatcher.
package feed

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"teamdesk/internal/domain"
)

const defaultBatch = 100

// Source reads events by ascending id.
type Source interface {
	EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error)
	LatestEventID(ctx context.Context) (int64, error)
}

// Hub polls the event log and fans new events out to subscribers. Slow
// subscribers miss events rather than stall the hub.
type Hub struct {
	src Source
	log *zap.Logger

	mu     sync.Mutex
	cursor int64
	primed bool
	nextID int
	subs   map[int]chan domain.Event
}

func NewHub(src Source, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{src: src, log: log, subs: map[int]chan domain.Event{}}
}

// Subscribe registers a listener. The returned cancel func unregisters it and
// closes the channel; calling it twice is safe.
func (h *Hub) Subscribe(buffer int) (<-chan domain.Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan domain.Event, buffer)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Poll delivers every event appended since the previous call. The first call
// only records the current end of the log.
func (h *Hub) Poll(ctx context.Context) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.primed {
		id, err := h.src.LatestEventID(ctx)
		if err != nil {
			return 0, err
		}
		h.cursor, h.primed = id, true
		return 0, nil
	}
	delivered := 0
	for {
		evts, err := h.src.EventsAfter(ctx, defaultBatch, h.cursor)
		if err != nil {
			return delivered, err
		}
		for _, evt := range evts {
			h.broadcast(evt)
			h.cursor = evt.ID
			delivered++
		}
		if len(evts) < defaultBatch {
			return delivered, nil
		}
	}
}

func (h *Hub) broadcast(evt domain.Event) {
	for id, ch := range h.subs {
		select {
		case ch <- evt:
		default:
			h.log.Debug("feed subscriber lagging, event dropped", zap.Int("subscriber", id), zap.Int64("event", evt.ID))
		}
	}
}
