package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/simple-memory/internal/notify"
	"github.com/scrypster/simple-memory/internal/storage/memory"
	"github.com/scrypster/simple-memory/pkg/types"
)

// recorder collects published events.
type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) record(e notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []notify.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func TestBus_FanOutAndUnsubscribe(t *testing.T) {
	bus := notify.NewBus()
	var a, b recorder
	bus.Subscribe(a.record)
	unsubscribe := bus.Subscribe(b.record)

	bus.Publish(notify.NewEvent(notify.SessionCreated, "s1", ""))
	unsubscribe()
	bus.Publish(notify.NewEvent(notify.SessionDeleted, "s1", ""))

	assert.Equal(t, []notify.EventType{notify.SessionCreated, notify.SessionDeleted}, a.kinds())
	assert.Equal(t, []notify.EventType{notify.SessionCreated}, b.kinds())
}

func TestNewEvent_UniqueIDs(t *testing.T) {
	e1 := notify.NewEvent(notify.MemoryAdded, "s", "m")
	e2 := notify.NewEvent(notify.MemoryAdded, "s", "m")
	assert.NotEmpty(t, e1.ID)
	assert.NotEqual(t, e1.ID, e2.ID)
	assert.False(t, e1.Time.IsZero())
}

func TestRepository_PublishesSuccessfulMutations(t *testing.T) {
	ctx := context.Background()
	bus := notify.NewBus()
	var rec recorder
	bus.Subscribe(rec.record)

	repo := notify.NewRepository(memory.NewRepository(), bus)
	t.Cleanup(func() { _ = repo.Close() })

	s, err := repo.CreateSession(ctx, "work")
	require.NoError(t, err)
	m, err := repo.AddMemory(ctx, s.ID, "first", nil)
	require.NoError(t, err)
	_, err = repo.AddMemory(ctx, s.ID, "second", nil)
	require.NoError(t, err)
	_, err = repo.RemoveMemory(ctx, m.ID)
	require.NoError(t, err)
	_, cleared, err := repo.ClearSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, cleared)
	_, _, err = repo.DeleteSession(ctx, s.ID)
	require.NoError(t, err)

	assert.Equal(t, []notify.EventType{
		notify.SessionCreated,
		notify.MemoryAdded,
		notify.MemoryAdded,
		notify.MemoryRemoved,
		notify.SessionCleared,
		notify.SessionDeleted,
	}, rec.kinds())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, m.ID, rec.events[1].MemoryID)
	assert.Equal(t, s.ID, rec.events[1].SessionID)
	assert.Equal(t, 1, rec.events[4].Count)
}

func TestRepository_FailedMutationsPublishNothing(t *testing.T) {
	ctx := context.Background()
	bus := notify.NewBus()
	var rec recorder
	bus.Subscribe(rec.record)

	repo := notify.NewRepository(memory.NewRepository(), bus)

	_, err := repo.CreateSession(ctx, "   ")
	assert.ErrorIs(t, err, types.ErrEmptyName)
	_, err = repo.AddMemory(ctx, "missing", "content", nil)
	assert.Error(t, err)
	_, err = repo.RemoveMemory(ctx, "missing")
	assert.Error(t, err)
	_, _, err = repo.DeleteSession(ctx, "missing")
	assert.Error(t, err)
	_, _, err = repo.ClearSession(ctx, "missing")
	assert.Error(t, err)

	assert.Empty(t, rec.kinds())
}

func TestRepository_EventsFollowMutationOrder(t *testing.T) {
	ctx := context.Background()
	bus := notify.NewBus()
	var rec recorder
	bus.Subscribe(rec.record)

	repo := notify.NewRepository(memory.NewRepository(), bus)
	t.Cleanup(func() { _ = repo.Close() })

	for round := 0; round < 20; round++ {
		s, err := repo.CreateSession(ctx, "racy")
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 10; j++ {
					_, _ = repo.AddMemory(ctx, s.ID, "content", nil)
				}
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = repo.DeleteSession(ctx, s.ID)
		}()
		wg.Wait()
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	deleted := make(map[string]bool)
	for i, e := range rec.events {
		assert.Equal(t, uint64(i+1), e.Seq, "event %d", i)
		switch e.Type {
		case notify.SessionDeleted:
			deleted[e.SessionID] = true
		case notify.MemoryAdded:
			assert.False(t, deleted[e.SessionID], "memory.added seq %d after its session was deleted", e.Seq)
		}
	}
	assert.Len(t, deleted, 20)
}

func TestWebhookSink_DeliversEvents(t *testing.T) {
	received := make(chan notify.Event, 4)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var e notify.Event
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&e)) {
			assert.Equal(t, e.ID, r.Header.Get("X-Simple-Memory-Delivery"))
			assert.Equal(t, string(e.Type), r.Header.Get("X-Simple-Memory-Event"))
			received <- e
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	sink := notify.NewWebhookSink(notify.WebhookConfig{URL: ts.URL, Timeout: time.Second}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go sink.Run(ctx)
	defer func() {
		cancel()
		<-sink.Done()
	}()

	sent := notify.NewEvent(notify.MemoryAdded, "s1", "m1")
	sink.Enqueue(sent)

	select {
	case got := <-received:
		assert.Equal(t, sent.ID, got.ID)
		assert.Equal(t, notify.MemoryAdded, got.Type)
		assert.Equal(t, "m1", got.MemoryID)
	case <-time.After(3 * time.Second):
		t.Fatal("webhook was not called")
	}

	assert.Eventually(t, func() bool { return sink.Stats().Delivered == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebhookSink_BreakerOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	sink := notify.NewWebhookSink(notify.WebhookConfig{
		URL:     ts.URL,
		Timeout: time.Second,
		Breaker: notify.BreakerConfig{MaxFailures: 2, Timeout: time.Hour},
	}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go sink.Run(ctx)
	defer func() {
		cancel()
		<-sink.Done()
	}()

	for i := 0; i < 5; i++ {
		sink.Enqueue(notify.NewEvent(notify.SessionCreated, "s", ""))
	}

	assert.Eventually(t, func() bool { return sink.Stats().Failed == 5 }, 3*time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 2, calls.Load(), "open breaker must short-circuit deliveries")
	assert.Equal(t, "open", sink.Stats().Breaker)
}

func TestWebhookSink_EnqueueNeverBlocks(t *testing.T) {
	sink := notify.NewWebhookSink(notify.WebhookConfig{URL: "http://127.0.0.1:1", Queue: 1}, nil)

	// Run is never started, so the second event overflows the queue.
	sink.Enqueue(notify.NewEvent(notify.SessionCreated, "s", ""))
	sink.Enqueue(notify.NewEvent(notify.SessionCreated, "s", ""))

	assert.Equal(t, 1, sink.Stats().Dropped)
}

func TestBreaker_ReportsOpenState(t *testing.T) {
	b := notify.NewBreaker("test", notify.BreakerConfig{MaxFailures: 1, Timeout: time.Hour}, nil)
	ctx := context.Background()

	errBoom := assert.AnError
	assert.ErrorIs(t, b.Execute(ctx, func(context.Context) error { return errBoom }), errBoom)
	assert.Equal(t, "open", b.State())

	called := false
	err := b.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, notify.ErrCircuitOpen)
	assert.False(t, called)
}
