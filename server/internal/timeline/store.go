// Package timeline 是按会话划分的事件流：只追加、序号单调，供 websocket 推送与轮询回放。
package timeline

import (
	"context"

	"socialsim/server/internal/model"
)

type Store interface {
	// Append 写入事件并返回分配的 seq。
	// 约定：同一 session 的 seq 单调递增；相同 EventID 幂等返回同一 seq。
	Append(ctx context.Context, sessionID string, evt *model.Event) (int64, error)
	// List 返回该 session 保留的全部事件。
	List(ctx context.Context, sessionID string) ([]model.Event, error)
	// ListAfter 返回 seq 大于 after 的事件，客户端断线重连后据此补齐。
	ListAfter(ctx context.Context, sessionID string, after int64) ([]model.Event, error)
}
