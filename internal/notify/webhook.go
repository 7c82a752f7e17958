package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"
)

// DefaultWebhookQueue is the number of events buffered for delivery. Events
// published while the queue is full are dropped.
const DefaultWebhookQueue = 256

// WebhookConfig configures a WebhookSink.
type WebhookConfig struct {
	URL     string
	Timeout time.Duration
	Breaker BreakerConfig
	Queue   int
}

// WebhookSink POSTs every event as JSON to a configured URL. Deliveries run on
// a single background goroutine so Publish never waits on the network.
type WebhookSink struct {
	url     string
	client  *http.Client
	breaker *Breaker
	logger  *log.Logger

	queue chan Event
	once  sync.Once
	done  chan struct{}

	mu        sync.Mutex
	delivered int
	dropped   int
	failed    int
}

// WebhookStats reports delivery outcomes.
type WebhookStats struct {
	Delivered int    `json:"delivered"`
	Dropped   int    `json:"dropped"`
	Failed    int    `json:"failed"`
	Breaker   string `json:"breaker"`
}

// NewWebhookSink creates a sink. Call Run to start delivering.
func NewWebhookSink(cfg WebhookConfig, logger *log.Logger) *WebhookSink {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Queue <= 0 {
		cfg.Queue = DefaultWebhookQueue
	}
	return &WebhookSink{
		url:     cfg.URL,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: NewBreaker("webhook", cfg.Breaker, logger),
		logger:  logger,
		queue:   make(chan Event, cfg.Queue),
		done:    make(chan struct{}),
	}
}

// Enqueue is a Subscriber. It never blocks.
func (w *WebhookSink) Enqueue(e Event) {
	select {
	case w.queue <- e:
	default:
		w.mu.Lock()
		w.dropped++
		w.mu.Unlock()
		w.logf("webhook queue full, dropped %s %s", e.Type, e.ID)
	}
}

// Run delivers queued events until ctx is cancelled.
func (w *WebhookSink) Run(ctx context.Context) {
	defer w.once.Do(func() { close(w.done) })
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-w.queue:
			err := w.breaker.Execute(ctx, func(ctx context.Context) error {
				return w.deliver(ctx, e)
			})
			w.mu.Lock()
			if err != nil {
				w.failed++
			} else {
				w.delivered++
			}
			w.mu.Unlock()
			if err != nil {
				w.logf("webhook delivery %s failed: %v", e.ID, err)
			}
		}
	}
}

// Done is closed once Run returns.
func (w *WebhookSink) Done() <-chan struct{} {
	return w.done
}

// Stats returns a snapshot of delivery counters.
func (w *WebhookSink) Stats() WebhookStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WebhookStats{
		Delivered: w.delivered,
		Dropped:   w.dropped,
		Failed:    w.failed,
		Breaker:   w.breaker.State(),
	}
}

func (w *WebhookSink) deliver(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Simple-Memory-Event", string(e.Type))
	req.Header.Set("X-Simple-Memory-Delivery", e.ID)

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}

func (w *WebhookSink) logf(format string, args ...interface{}) {
	if w.logger != nil {
		w.logger.Printf(format, args...)
	}
}
