package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// waitStats 轮询直到 cond 成立或超时。
func waitStats(t *testing.T, q *EventQueue, cond func(QueueStats) bool) QueueStats {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		s := q.Stats()
		if cond(s) {
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for queue stats, last %+v", s)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEventQueue_SerialProcessing(t *testing.T) {
	var mu sync.Mutex
	var order []EventType
	var inFlight int32

	handler := func(ctx context.Context, msg *ClientMessage) error {
		if atomic.AddInt32(&inFlight, 1) != 1 {
			t.Errorf("handler ran concurrently")
		}
		defer atomic.AddInt32(&inFlight, -1)
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		order = append(order, msg.Type)
		mu.Unlock()
		return nil
	}

	q := NewEventQueue("conn-serial", handler, QueueOptions{}, quietLogger())
	defer q.Close()

	types := []EventType{EventTypeSendMessage, EventTypeRequestHint, EventTypeToggleFeedback, EventTypeDismissNotice, EventTypeReset}
	for _, typ := range types {
		if err := q.Enqueue(&ClientMessage{Type: typ}); err != nil {
			t.Fatalf("enqueue %s: %v", typ, err)
		}
	}
	waitStats(t, q, func(s QueueStats) bool { return s.Processed == int64(len(types)) })

	mu.Lock()
	defer mu.Unlock()
	for i, typ := range types {
		if order[i] != typ {
			t.Fatalf("order mismatch at %d: want %s got %s", i, typ, order[i])
		}
	}
}

func TestEventQueue_ConcurrentEnqueue(t *testing.T) {
	var handled int64
	handler := func(ctx context.Context, msg *ClientMessage) error {
		atomic.AddInt64(&handled, 1)
		return nil
	}
	q := NewEventQueue("conn-concurrent", handler, QueueOptions{Capacity: 200}, quietLogger())
	defer q.Close()

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				if err := q.Enqueue(&ClientMessage{Type: EventTypeRequestHint, EventID: fmt.Sprintf("g%d-%d", g, i)}); err != nil {
					t.Errorf("enqueue: %v", err)
				}
			}
		}(g)
	}
	wg.Wait()

	s := waitStats(t, q, func(s QueueStats) bool { return s.Processed == 100 })
	if s.Accepted != 100 || atomic.LoadInt64(&handled) != 100 {
		t.Fatalf("expected 100 handled, got stats %+v handled=%d", s, handled)
	}
}

func TestEventQueue_BackPressure(t *testing.T) {
	release := make(chan struct{})
	handler := func(ctx context.Context, msg *ClientMessage) error {
		<-release
		return nil
	}
	q := NewEventQueue("conn-full", handler, QueueOptions{Capacity: 2}, quietLogger())
	defer func() {
		close(release)
		q.Close()
	}()

	// 第一条被取走阻塞在处理器里，之后两条占满缓冲
	if err := q.Enqueue(&ClientMessage{Type: EventTypeSendMessage}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitStats(t, q, func(s QueueStats) bool { return s.Pending == 0 })
	for i := 0; i < 2; i++ {
		if err := q.Enqueue(&ClientMessage{Type: EventTypeRequestHint}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	if err := q.Enqueue(&ClientMessage{Type: EventTypeReset}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if s := q.Stats(); s.Dropped != 1 || s.Pending != 2 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestEventQueue_HandlerErrorsCounted(t *testing.T) {
	handler := func(ctx context.Context, msg *ClientMessage) error {
		if msg.Type == EventTypeSendMessage {
			return errors.New("reply failed")
		}
		return nil
	}
	q := NewEventQueue("conn-errors", handler, QueueOptions{}, quietLogger())
	defer q.Close()

	_ = q.Enqueue(&ClientMessage{Type: EventTypeSendMessage})
	_ = q.Enqueue(&ClientMessage{Type: EventTypeReset})

	s := waitStats(t, q, func(s QueueStats) bool { return s.Processed == 2 })
	if s.Failed != 1 {
		t.Fatalf("expected 1 failure, got %+v", s)
	}
}

func TestEventQueue_HandlerTimeout(t *testing.T) {
	got := make(chan error, 1)
	handler := func(ctx context.Context, msg *ClientMessage) error {
		<-ctx.Done()
		got <- ctx.Err()
		return ctx.Err()
	}
	q := NewEventQueue("conn-timeout", handler, QueueOptions{Timeout: 20 * time.Millisecond}, quietLogger())
	defer q.Close()

	if err := q.Enqueue(&ClientMessage{Type: EventTypeSendMessage}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	select {
	case err := <-got:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("handler never timed out")
	}
}

func TestEventQueue_CloseCancelsInFlight(t *testing.T) {
	started := make(chan struct{})
	handler := func(ctx context.Context, msg *ClientMessage) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}
	q := NewEventQueue("conn-close", handler, QueueOptions{}, quietLogger())

	_ = q.Enqueue(&ClientMessage{Type: EventTypeSendMessage})
	<-started

	closed := make(chan struct{})
	go func() {
		q.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("close did not cancel the running handler")
	}

	if err := q.Enqueue(&ClientMessage{Type: EventTypeReset}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed after close, got %v", err)
	}
	q.Close() // 可重复调用
}

func TestEventQueue_DeduplicatesEventID(t *testing.T) {
	var handled int64
	handler := func(ctx context.Context, msg *ClientMessage) error {
		atomic.AddInt64(&handled, 1)
		return nil
	}
	q := NewEventQueue("conn-dedupe", handler, QueueOptions{}, quietLogger())
	defer q.Close()

	for i := 0; i < 3; i++ {
		if err := q.Enqueue(&ClientMessage{Type: EventTypeSendMessage, EventID: "m1", Text: "hi"}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	_ = q.Enqueue(&ClientMessage{Type: EventTypeSendMessage, EventID: "m2", Text: "hi"})

	s := waitStats(t, q, func(s QueueStats) bool { return s.Processed == 2 })
	if s.Duplicates != 2 || atomic.LoadInt64(&handled) != 2 {
		t.Fatalf("expected 2 handled and 2 duplicates, got %+v", s)
	}
}

func TestEventQueue_DedupeWindowForgetsOldIDs(t *testing.T) {
	q := NewEventQueue("conn-window", func(context.Context, *ClientMessage) error { return nil }, QueueOptions{Capacity: seenWindow + 10}, quietLogger())
	defer q.Close()

	for i := 0; i <= seenWindow; i++ {
		_ = q.Enqueue(&ClientMessage{Type: EventTypeRequestHint, EventID: fmt.Sprintf("e%d", i)})
	}
	// e0 已滑出窗口，再次出现时按新消息处理
	_ = q.Enqueue(&ClientMessage{Type: EventTypeRequestHint, EventID: "e0"})
	if s := q.Stats(); s.Duplicates != 0 {
		t.Fatalf("expected no duplicates, got %+v", s)
	}
}

func BenchmarkEventQueue_Enqueue(b *testing.B) {
	q := NewEventQueue("bench", func(context.Context, *ClientMessage) error { return nil }, QueueOptions{Capacity: 10000}, quietLogger())
	defer q.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = q.Enqueue(&ClientMessage{Type: EventTypeRequestHint})
	}
}
