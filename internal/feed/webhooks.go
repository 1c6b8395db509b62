package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"teamdesk/internal/config"
	"teamdesk/internal/domain"
)

const defaultWebhookTimeout = 5 * time.Second

// Dispatcher posts events to the configured webhooks. Each hook keeps its own
// cursor so a failing endpoint is retried from the first undelivered event
// without holding back the others.
type Dispatcher struct {
	src    Source
	hooks  []config.Webhook
	client *http.Client
	log    *zap.Logger
	pool   *ants.Pool

	mu      sync.Mutex
	cursors map[int]int64
}

func NewDispatcher(src Source, hooks []config.Webhook, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{
		src:     src,
		hooks:   hooks,
		client:  &http.Client{Timeout: defaultWebhookTimeout},
		log:     log,
		cursors: map[int]int64{},
	}
	// one worker per hook; a slow endpoint only delays itself
	pool, err := ants.NewPool(max(len(hooks), 1))
	if err != nil {
		log.Warn("webhook pool unavailable, delivering sequentially", zap.Error(err))
	} else {
		d.pool = pool
	}
	return d
}

// Close releases the delivery workers.
func (d *Dispatcher) Close() {
	if d.pool != nil {
		d.pool.Release()
	}
}

// Enabled reports whether any hook would receive deliveries.
func (d *Dispatcher) Enabled() bool {
	for _, h := range d.hooks {
		if h.IsEnabled() && strings.TrimSpace(h.URL) != "" {
			return true
		}
	}
	return false
}

func (d *Dispatcher) DispatchAll(ctx context.Context) {
	var wg sync.WaitGroup
	for i, hook := range d.hooks {
		if !hook.IsEnabled() || strings.TrimSpace(hook.URL) == "" {
			continue
		}
		if d.pool == nil {
			d.dispatch(ctx, i, hook)
			continue
		}
		wg.Add(1)
		if err := d.pool.Submit(func() {
			defer wg.Done()
			d.dispatch(ctx, i, hook)
		}); err != nil {
			wg.Done()
			d.log.Warn("webhook submit failed", zap.String("url", hook.URL), zap.Error(err))
		}
	}
	wg.Wait()
}

func (d *Dispatcher) dispatch(ctx context.Context, idx int, hook config.Webhook) {
	cursor, err := d.cursorFor(ctx, idx)
	if err != nil {
		d.log.Warn("webhook cursor init failed", zap.String("url", hook.URL), zap.Error(err))
		return
	}
	evts, err := d.src.EventsAfter(ctx, defaultBatch, cursor)
	if err != nil {
		d.log.Warn("webhook fetch events failed", zap.Error(err))
		return
	}
	filter := newEventFilter(hook.Events)
	for _, evt := range evts {
		if filter.match(evt.Type) {
			if err := d.post(ctx, hook, evt); err != nil {
				d.log.Warn("webhook delivery failed", zap.String("url", hook.URL), zap.Int64("event", evt.ID), zap.Error(err))
				return
			}
		}
		d.setCursor(idx, evt.ID)
	}
}

func (d *Dispatcher) cursorFor(ctx context.Context, idx int) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur, nil
	}
	cur, err := d.src.LatestEventID(ctx)
	if err != nil {
		return 0, err
	}
	d.cursors[idx] = cur
	return cur, nil
}

func (d *Dispatcher) setCursor(idx int, id int64) {
	d.mu.Lock()
	d.cursors[idx] = id
	d.mu.Unlock()
}

func (d *Dispatcher) post(ctx context.Context, hook config.Webhook, evt domain.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Teamdesk-Event", evt.Type)
	req.Header.Set("X-Teamdesk-Delivery", strconv.FormatInt(evt.ID, 10))
	if s := strings.TrimSpace(hook.Secret); s != "" {
		req.Header.Set("X-Teamdesk-Secret", s)
	}
	res, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

// newEventFilter matches exact types, or a whole family with a trailing
// ".*" such as "task.*". An empty list matches everything.
func newEventFilter(types []string) eventFilter {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		if t = strings.TrimSpace(t); t != "" {
			set[t] = struct{}{}
		}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evtType string) bool {
	if f.all {
		return true
	}
	if _, ok := f.set[evtType]; ok {
		return true
	}
	if i := strings.IndexByte(evtType, '.'); i > 0 {
		_, ok := f.set[evtType[:i]+".*"]
		return ok
	}
	return false
}
