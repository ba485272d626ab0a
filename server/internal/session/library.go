// Package session 管理用户主动保存的会话存档。
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"socialsim/server/internal/model"
)

var ErrNotFound = errors.New("saved session not found")

// Library 在内存中维护按时间倒序排列的存档列表，每次 Save/Delete 后整体持久化。
type Library struct {
	mu     sync.RWMutex
	store  Persister
	logger *log.Logger

	loaded bool
	list   []model.SavedSession
}

func NewLibrary(store Persister, logger *log.Logger) *Library {
	if logger == nil {
		logger = log.Default()
	}
	return &Library{store: store, logger: logger}
}

// ensureLoaded 首次访问时从持久层读取，之后只以内存为准。调用方需持有写锁。
func (l *Library) ensureLoaded(ctx context.Context) {
	if l.loaded {
		return
	}
	l.list = l.store.LoadSessions(ctx)
	l.loaded = true
	l.logger.Printf("[Session] loaded %d saved sessions", len(l.list))
}

// List 返回存档副本，最新的在前。
func (l *Library) List(ctx context.Context) []model.SavedSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ensureLoaded(ctx)
	return cloneList(l.list)
}

// Get 按 id 获取存档。
func (l *Library) Get(ctx context.Context, id string) (model.SavedSession, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ensureLoaded(ctx)
	for _, s := range l.list {
		if s.ID == id {
			return cloneSaved(s), nil
		}
	}
	return model.SavedSession{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Save 把存档插到列表最前并持久化。
// 持久化失败时内存列表仍然更新，错误返回给调用方记录。
func (l *Library) Save(ctx context.Context, s model.SavedSession) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ensureLoaded(ctx)

	next := make([]model.SavedSession, 0, len(l.list)+1)
	next = append(next, cloneSaved(s))
	next = append(next, l.list...)
	l.list = next
	return l.persist(ctx)
}

// Delete 删除指定存档并持久化；id 不存在时返回 ErrNotFound。
func (l *Library) Delete(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ensureLoaded(ctx)

	next := make([]model.SavedSession, 0, len(l.list))
	for _, s := range l.list {
		if s.ID != id {
			next = append(next, s)
		}
	}
	if len(next) == len(l.list) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	l.list = next
	return l.persist(ctx)
}

func (l *Library) persist(ctx context.Context) error {
	if err := l.store.SaveSessions(ctx, cloneList(l.list)); err != nil {
		return fmt.Errorf("persist saved sessions: %w", err)
	}
	return nil
}

func cloneList(in []model.SavedSession) []model.SavedSession {
	out := make([]model.SavedSession, len(in))
	for i, s := range in {
		out[i] = cloneSaved(s)
	}
	return out
}

func cloneSaved(s model.SavedSession) model.SavedSession {
	s.Messages = model.CloneMessages(s.Messages)
	return s
}
