package gateway

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// EventHandler 处理来自客户端的消息（由 API 层注入，转给 Orchestrator）。
// 返回 error 表示处理失败，网关会回传给该客户端，但连接继续运行。
type EventHandler func(ctx context.Context, event *ClientMessage) error

var (
	ErrQueueClosed = errors.New("event queue closed")
	ErrQueueFull   = errors.New("event queue full")
)

// QueueOptions 队列参数，零值使用默认值。
type QueueOptions struct {
	Capacity int
	// Timeout 单条消息的处理时限，需覆盖一次完整的 AI 回复。
	Timeout time.Duration
	// SlowThreshold 超过该耗时的处理会记录警告。
	SlowThreshold time.Duration
}

const (
	defaultQueueCapacity = 100
	defaultEventTimeout  = 60 * time.Second
	defaultSlowThreshold = 5 * time.Second
	// 去重窗口：记住最近这么多个 EventID
	seenWindow = 256
)

// QueueStats 队列计数快照。
type QueueStats struct {
	ConnID     string `json:"conn_id"`
	Accepted   int64  `json:"accepted"`
	Processed  int64  `json:"processed"`
	Failed     int64  `json:"failed"`
	Dropped    int64  `json:"dropped"`
	Duplicates int64  `json:"duplicates"`
	Pending    int    `json:"pending"`
}

// EventQueue 为单个连接串行处理上行消息：
// 同一客户端的操作按到达顺序执行（send_message 之后的 request_hint 不会抢先），
// 读循环也不会被等待 AI 回复的处理阻塞。
type EventQueue struct {
	connID  string
	handler EventHandler
	opts    QueueOptions
	logger  *log.Logger

	events chan queued
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	stats QueueStats
	seen  map[string]struct{}
	order []string
}

type queued struct {
	msg *ClientMessage
	at  time.Time
}

// NewEventQueue 创建队列并启动处理协程。
func NewEventQueue(connID string, handler EventHandler, opts QueueOptions, logger *log.Logger) *EventQueue {
	if logger == nil {
		logger = log.Default()
	}
	if opts.Capacity <= 0 {
		opts.Capacity = defaultQueueCapacity
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultEventTimeout
	}
	if opts.SlowThreshold <= 0 {
		opts.SlowThreshold = defaultSlowThreshold
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &EventQueue{
		connID:  connID,
		handler: handler,
		opts:    opts,
		logger:  logger,
		events:  make(chan queued, opts.Capacity),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		stats:   QueueStats{ConnID: connID},
		seen:    make(map[string]struct{}),
	}
	go q.run()
	return q
}

// Enqueue 非阻塞入队。窗口内重复的 EventID 直接忽略并返回 nil；队列满时返回 ErrQueueFull。
func (q *EventQueue) Enqueue(msg *ClientMessage) error {
	if q.ctx.Err() != nil {
		return ErrQueueClosed
	}
	if q.duplicate(msg.EventID) {
		q.logger.Printf("[EventQueue] duplicate event skipped: conn=%s type=%s event_id=%s", q.connID, msg.Type, msg.EventID)
		return nil
	}

	select {
	case q.events <- queued{msg: msg, at: time.Now()}:
		q.count(func(s *QueueStats) { s.Accepted++ })
		return nil
	default:
		q.count(func(s *QueueStats) { s.Dropped++ })
		q.logger.Printf("[EventQueue] ⚠️ queue full, dropping event: conn=%s type=%s", q.connID, msg.Type)
		return ErrQueueFull
	}
}

func (q *EventQueue) run() {
	defer close(q.done)
	for {
		select {
		case <-q.ctx.Done():
			return
		case ev := <-q.events:
			q.process(ev)
		}
	}
}

func (q *EventQueue) process(ev queued) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(q.ctx, q.opts.Timeout)
	err := q.handler(ctx, ev.msg)
	cancel()
	elapsed := time.Since(start)

	q.count(func(s *QueueStats) {
		s.Processed++
		if err != nil {
			s.Failed++
		}
	})
	if err != nil {
		q.logger.Printf("[EventQueue] ❌ %s failed after %v: %v", ev.msg.Type, elapsed, err)
	}
	if elapsed > q.opts.SlowThreshold {
		q.logger.Printf("[EventQueue] ⚠️ slow event: type=%s waited=%v took=%v", ev.msg.Type, start.Sub(ev.at), elapsed)
	}
}

// duplicate 记录 EventID，窗口内已出现过则返回 true。空 EventID 不去重。
func (q *EventQueue) duplicate(id string) bool {
	if id == "" {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.seen[id]; ok {
		q.stats.Duplicates++
		return true
	}
	q.seen[id] = struct{}{}
	q.order = append(q.order, id)
	if len(q.order) > seenWindow {
		delete(q.seen, q.order[0])
		q.order = q.order[1:]
	}
	return false
}

func (q *EventQueue) count(fn func(*QueueStats)) {
	q.mu.Lock()
	fn(&q.stats)
	q.mu.Unlock()
}

// Close 停止处理并等待当前消息结束，未处理的消息被丢弃。可重复调用。
// events 不关闭：并发的 Enqueue 依靠 ctx 判断队列已关闭。
func (q *EventQueue) Close() {
	q.cancel()
	<-q.done
	s := q.Stats()
	q.logger.Printf("[EventQueue] closed conn=%s accepted=%d processed=%d failed=%d dropped=%d pending=%d",
		s.ConnID, s.Accepted, s.Processed, s.Failed, s.Dropped, s.Pending)
}

// Stats 返回计数快照。
func (q *EventQueue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.stats
	s.Pending = len(q.events)
	return s
}
