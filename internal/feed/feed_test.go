package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamdesk/internal/config"
	"teamdesk/internal/domain"
)

type memSource struct {
	mu   sync.Mutex
	evts []domain.Event
}

func (s *memSource) add(types ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range types {
		s.evts = append(s.evts, domain.Event{ID: int64(len(s.evts) + 1), Type: t, EntityKind: "task"})
	}
}

func (s *memSource) EventsAfter(_ context.Context, limit int, cursor int64) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Event
	for _, e := range s.evts {
		if e.ID > cursor && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memSource) LatestEventID(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.evts)), nil
}

func TestHubDeliversOnlyNewEvents(t *testing.T) {
	src := &memSource{}
	src.add("task.created")
	hub := NewHub(src, nil)
	ctx := context.Background()

	ch, cancel := hub.Subscribe(4)
	defer cancel()

	n, err := hub.Poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	src.add("task.status.changed", "task.deleted")
	n, err = hub.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "task.status.changed", (<-ch).Type)
	assert.Equal(t, "task.deleted", (<-ch).Type)

	n, err = hub.Poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHubDropsForSlowSubscribers(t *testing.T) {
	src := &memSource{}
	hub := NewHub(src, nil)
	ctx := context.Background()
	_, err := hub.Poll(ctx)
	require.NoError(t, err)

	slow, cancelSlow := hub.Subscribe(1)
	fast, cancelFast := hub.Subscribe(8)
	defer cancelFast()

	src.add("a.x", "b.x", "c.x")
	n, err := hub.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, fast, 3)
	assert.Len(t, slow, 1)

	cancelSlow()
	cancelSlow()
	assert.Equal(t, 1, hub.Subscribers())
	_, open := <-slow
	assert.True(t, open, "buffered event still readable")
	_, open = <-slow
	assert.False(t, open)
}

func TestHubPagesThroughLargeBacklog(t *testing.T) {
	src := &memSource{}
	hub := NewHub(src, nil)
	_, err := hub.Poll(context.Background())
	require.NoError(t, err)
	for i := 0; i < defaultBatch+5; i++ {
		src.add("task.created")
	}
	n, err := hub.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, defaultBatch+5, n)
}

func TestEventFilter(t *testing.T) {
	all := newEventFilter(nil)
	assert.True(t, all.match("anything"))
	assert.True(t, newEventFilter([]string{" "}).match("x.y"))

	f := newEventFilter([]string{"task.*", "user.created"})
	assert.True(t, f.match("task.deleted"))
	assert.True(t, f.match("user.created"))
	assert.False(t, f.match("user.role.changed"))
	assert.False(t, f.match("milestone"))
}

func TestDispatcherDeliversFilteredEventsWithRetry(t *testing.T) {
	var mu sync.Mutex
	var got []string
	fail := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "s3cret", r.Header.Get("X-Teamdesk-Secret"))
		var evt domain.Event
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&evt))
		assert.Equal(t, evt.Type, r.Header.Get("X-Teamdesk-Event"))
		if fail {
			fail = false
			http.Error(w, "try later", http.StatusServiceUnavailable)
			return
		}
		got = append(got, evt.Type)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	disabled := false
	src := &memSource{}
	src.add("task.created")
	d := NewDispatcher(src, []config.Webhook{
		{URL: srv.URL, Events: []string{"task.*"}, Secret: "s3cret"},
		{URL: "http://127.0.0.1:1/never", Enabled: &disabled},
	}, nil)
	defer d.Close()
	require.True(t, d.Enabled())
	ctx := context.Background()

	d.DispatchAll(ctx) // primes the cursor past existing events
	src.add("user.created", "task.status.changed", "task.deleted")
	d.DispatchAll(ctx) // first delivery fails and stops the batch
	d.DispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"task.status.changed", "task.deleted"}, got)
}

func TestDispatcherDisabled(t *testing.T) {
	off := false
	d := NewDispatcher(&memSource{}, []config.Webhook{{URL: "http://x", Enabled: &off}}, nil)
	assert.False(t, d.Enabled())
	assert.False(t, NewDispatcher(&memSource{}, nil, nil).Enabled())
}
