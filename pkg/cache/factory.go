package cache

import (
	"context"
	"fmt"

	"barcache/pkg/config"
)

// NewFromConfig 按配置创建缓存后端
func NewFromConfig(ctx context.Context, cfg config.CacheConfig) (Cache, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryCache(MemoryCacheConfig{
			MaxSize:         cfg.MaxSize,
			DefaultTTL:      cfg.DefaultTTL,
			CleanupInterval: cfg.CleanupInterval,
		}), nil

	case "disk":
		return NewDiskCache(DiskCacheConfig{
			BaseDir:         cfg.BaseDir,
			MaxSize:         cfg.MaxSize,
			DefaultTTL:      cfg.DefaultTTL,
			CleanupInterval: cfg.CleanupInterval,
		})

	case "redis":
		return NewRedisCache(ctx, RedisCacheConfig{
			Addr:       cfg.RedisAddr,
			Password:   cfg.RedisPassword,
			DB:         cfg.RedisDB,
			KeyPrefix:  cfg.KeyPrefix,
			DefaultTTL: cfg.DefaultTTL,
		})

	default:
		return nil, fmt.Errorf("未知的缓存后端: %q", cfg.Backend)
	}
}
