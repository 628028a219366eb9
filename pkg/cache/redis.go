package cache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"barcache/pkg/dataset"
)

// RedisCacheConfig Redis缓存配置
type RedisCacheConfig struct {
	Addr       string        `yaml:"addr"`        // Redis 地址 host:port
	Password   string        `yaml:"password"`    // 密码
	DB         int           `yaml:"db"`          // 数据库编号
	KeyPrefix  string        `yaml:"key_prefix"`  // 键前缀，用于多实例隔离
	DefaultTTL time.Duration `yaml:"default_ttl"` // 默认生存时间
}

// RedisCache 基于 Redis 的缓存实现，RowGroup 以 JSON 存储。
// 供多进程共享同一份按日缓存时使用。
type RedisCache struct {
	client     *redis.Client
	keyPrefix  string
	defaultTTL time.Duration
	hitCount   int64
	missCount  int64
}

// NewRedisCache 创建Redis缓存实例并验证连通性
func NewRedisCache(ctx context.Context, config RedisCacheConfig) (*RedisCache, error) {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "barcache:"
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = DefaultTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, WrapCacheError(ErrCacheIO, "连接Redis失败", err)
	}

	return &RedisCache{
		client:     client,
		keyPrefix:  config.KeyPrefix,
		defaultTTL: config.DefaultTTL,
	}, nil
}

// Get 从Redis获取一个交易日的数据
func (rc *RedisCache) Get(ctx context.Context, key string) (dataset.RowGroup, error) {
	data, err := rc.client.Get(ctx, rc.keyPrefix+key).Bytes()
	if err == redis.Nil {
		atomic.AddInt64(&rc.missCount, 1)
		return nil, NewCacheError(ErrCacheMiss, "cache miss")
	}
	if err != nil {
		atomic.AddInt64(&rc.missCount, 1)
		return nil, WrapCacheError(ErrCacheIO, "读取Redis失败", err)
	}

	var group dataset.RowGroup
	if err := json.Unmarshal(data, &group); err != nil {
		atomic.AddInt64(&rc.missCount, 1)
		return nil, WrapCacheError(ErrCacheCorrupted, "反序列化缓存数据失败", err)
	}

	atomic.AddInt64(&rc.hitCount, 1)
	return group, nil
}

// Set 向Redis写入一个交易日的数据
func (rc *RedisCache) Set(ctx context.Context, key string, group dataset.RowGroup, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = rc.defaultTTL
	}

	data, err := json.Marshal(group)
	if err != nil {
		return WrapCacheError(ErrCacheIO, "序列化数据失败", err)
	}

	if err := rc.client.Set(ctx, rc.keyPrefix+key, data, ttl).Err(); err != nil {
		return WrapCacheError(ErrCacheIO, "写入Redis失败", err)
	}
	return nil
}

// Delete 删除一个键
func (rc *RedisCache) Delete(ctx context.Context, key string) error {
	if err := rc.client.Del(ctx, rc.keyPrefix+key).Err(); err != nil {
		return WrapCacheError(ErrCacheIO, "删除Redis键失败", err)
	}
	return nil
}

// Clear 清空本实例前缀下的所有键
func (rc *RedisCache) Clear(ctx context.Context) error {
	iter := rc.client.Scan(ctx, 0, rc.keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := rc.client.Del(ctx, iter.Val()).Err(); err != nil {
			return WrapCacheError(ErrCacheIO, "删除Redis键失败", err)
		}
	}
	if err := iter.Err(); err != nil {
		return WrapCacheError(ErrCacheIO, "扫描Redis键失败", err)
	}

	atomic.StoreInt64(&rc.hitCount, 0)
	atomic.StoreInt64(&rc.missCount, 0)
	return nil
}

// Stats 获取缓存统计信息（条目数需扫描，只统计本地命中计数）
func (rc *RedisCache) Stats() CacheStats {
	hitCount := atomic.LoadInt64(&rc.hitCount)
	missCount := atomic.LoadInt64(&rc.missCount)

	var hitRate float64
	if total := hitCount + missCount; total > 0 {
		hitRate = float64(hitCount) / float64(total)
	}

	return CacheStats{
		HitCount:  hitCount,
		MissCount: missCount,
		HitRate:   hitRate,
		TTL:       rc.defaultTTL,
	}
}

// Close 关闭Redis连接
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

var _ Cache = (*RedisCache)(nil)
