package session

import (
	"context"

	"socialsim/server/internal/model"
)

// Persister 是存档列表的持久化接口，由 storage.Gateway 实现。
// 约定：LoadSessions 在数据缺失或损坏时返回空列表而不是错误。
type Persister interface {
	SaveSessions(ctx context.Context, list []model.SavedSession) error
	LoadSessions(ctx context.Context) []model.SavedSession
}
