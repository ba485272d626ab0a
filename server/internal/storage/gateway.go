package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"socialsim/server/internal/model"
	"socialsim/server/internal/progress"
)

// Gateway 负责成长记录与会话存档的序列化。
// 读取时数据缺失或损坏一律回退到默认值；写入失败返回错误，由调用方记录日志。
type Gateway struct {
	kv     KV
	logger *log.Logger
}

func NewGateway(kv KV, logger *log.Logger) *Gateway {
	if logger == nil {
		logger = log.Default()
	}
	return &Gateway{kv: kv, logger: logger}
}

// SaveProgress 持久化成长记录。
func (g *Gateway) SaveProgress(ctx context.Context, p model.UserProgress) error {
	return g.put(ctx, KeyProgress, p)
}

// LoadProgress 读取成长记录，缺失或无法解析时返回默认记录。
func (g *Gateway) LoadProgress(ctx context.Context) model.UserProgress {
	var p model.UserProgress
	if !g.get(ctx, KeyProgress, &p) {
		return progress.Default()
	}
	return progress.Normalize(p)
}

// SaveSessions 持久化会话存档列表（新的在前）。
func (g *Gateway) SaveSessions(ctx context.Context, list []model.SavedSession) error {
	if list == nil {
		list = []model.SavedSession{}
	}
	return g.put(ctx, KeySaves, list)
}

// LoadSessions 读取会话存档，缺失或无法解析时返回空列表。
func (g *Gateway) LoadSessions(ctx context.Context) []model.SavedSession {
	var list []model.SavedSession
	if !g.get(ctx, KeySaves, &list) || list == nil {
		return []model.SavedSession{}
	}
	return list
}

// Close 关闭底层后端。
func (g *Gateway) Close() error {
	return g.kv.Close()
}

func (g *Gateway) put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := g.kv.Set(ctx, key, data); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

func (g *Gateway) get(ctx context.Context, key string, out any) bool {
	data, err := g.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			g.logger.Printf("[Storage] ⚠️ read %s failed, using default: %v", key, err)
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		g.logger.Printf("[Storage] ⚠️ %s is malformed, using default: %v", key, err)
		return false
	}
	return true
}
