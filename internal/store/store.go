// Package store 提供简单的键值持久化能力，播放列表、当前歌曲、播放进度以及
// 歌曲信息缓存都通过它读写。
package store

import (
	"context"
	"errors"
	"fmt"
)

var ErrInvalidKey = errors.New("invalid key")

// Store 键值存储接口，Get 的 bool 返回值为 false 表示键不存在
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Config 选择并配置存储后端
type Config struct {
	Backend   string
	FilePath  string
	Redis     RedisOptions
	KeyPrefix string
}

// Open 根据配置创建存储
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendFile:
		return OpenFile(cfg.FilePath)
	case BackendRedis:
		opts := cfg.Redis
		if opts.Prefix == "" {
			opts.Prefix = cfg.KeyPrefix
		}
		return NewRedis(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}
}
