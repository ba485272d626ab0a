// Package storage 是持久化网关：在可替换的 KV 后端之上读写用户成长记录与会话存档。
package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound key 不存在。
var ErrNotFound = errors.New("key not found")

// 与原始客户端本地存储保持一致的 key。
const (
	KeyProgress = "socialsim_progress"
	KeySaves    = "socialsim_saves"
)

// KV 是最小的键值存储接口，值为 JSON 文本。
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// 后端名称。
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Options 选择并配置 KV 后端。
type Options struct {
	Backend string
	// Path 对 file 后端是目录，对 sqlite 后端是数据库文件。
	Path string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// Open 按 Options 创建 KV 后端。
func Open(opts Options) (KV, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendFile:
		return NewFile(opts.Path)
	case BackendRedis:
		return NewRedis(RedisConfig{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
			Prefix:   opts.RedisPrefix,
		})
	case BackendSQLite:
		return NewSQLite(opts.Path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
