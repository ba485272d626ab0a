package timeline

import (
	"context"
	"sort"
	"sync"

	"socialsim/server/internal/model"
)

// DefaultRetention 每个 session 默认保留的事件条数。
const DefaultRetention = 1000

// MaxFeeds 同时保留的事件流个数，超出时淘汰最久没有写入的那个。
const MaxFeeds = 32

type sessionLog struct {
	seq      int64
	events   []model.Event
	eventIDs map[string]int64
	// touched 最近一次写入时的全局计数
	touched uint64
}

// InMemoryStore 基于内存的事件流。超过保留条数时丢弃最旧的事件，seq 不回退。
type InMemoryStore struct {
	mu        sync.RWMutex
	retention int
	logs      map[string]*sessionLog
	clock     uint64
}

// NewInMemoryStore retention <= 0 时使用 DefaultRetention。
func NewInMemoryStore(retention int) *InMemoryStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &InMemoryStore{
		retention: retention,
		logs:      make(map[string]*sessionLog),
	}
}

func (s *InMemoryStore) Append(_ context.Context, sessionID string, evt *model.Event) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.logs[sessionID]
	if l == nil {
		if len(s.logs) >= MaxFeeds {
			s.evictLocked()
		}
		l = &sessionLog{eventIDs: make(map[string]int64)}
		s.logs[sessionID] = l
	}
	s.clock++
	l.touched = s.clock

	if evt.EventID != "" {
		if seq, ok := l.eventIDs[evt.EventID]; ok {
			return seq, nil
		}
	}

	l.seq++
	eventCopy := *evt
	eventCopy.Seq = l.seq
	eventCopy.SessionID = sessionID
	l.events = append(l.events, eventCopy)
	if evt.EventID != "" {
		l.eventIDs[evt.EventID] = l.seq
	}

	if over := len(l.events) - s.retention; over > 0 {
		for _, old := range l.events[:over] {
			if old.EventID != "" {
				delete(l.eventIDs, old.EventID)
			}
		}
		l.events = append([]model.Event(nil), l.events[over:]...)
	}

	return l.seq, nil
}

// evictLocked 删除最久没有写入的事件流。被删的会话再次写入时 seq 从 1 开始。
func (s *InMemoryStore) evictLocked() {
	var oldest string
	var min uint64
	for id, l := range s.logs {
		if oldest == "" || l.touched < min {
			oldest, min = id, l.touched
		}
	}
	delete(s.logs, oldest)
}

// List 返回切片副本，调用方可随意修改。
func (s *InMemoryStore) List(ctx context.Context, sessionID string) ([]model.Event, error) {
	return s.ListAfter(ctx, sessionID, 0)
}

func (s *InMemoryStore) ListAfter(_ context.Context, sessionID string, after int64) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l := s.logs[sessionID]
	if l == nil {
		return []model.Event{}, nil
	}
	i := sort.Search(len(l.events), func(i int) bool { return l.events[i].Seq > after })
	out := make([]model.Event, len(l.events)-i)
	copy(out, l.events[i:])
	return out, nil
}
