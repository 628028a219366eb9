package cache

import (
	"context"
	"errors"
	"time"

	"barcache/pkg/dataset"
)

// DefaultTTL 日线数据默认的缓存保存期。
// 历史数据不会变化，给一个接近永久的保存期。
const DefaultTTL = 80 * 365 * 24 * time.Hour

// Cache 定义了按日缓存的行为接口。
// 所有缓存实现（MemoryCache、DiskCache、RedisCache）都遵循此接口，
// 值的单位固定为一个交易日的 RowGroup。
type Cache interface {
	// Get 按键获取一个交易日的数据，未命中返回 ErrCacheMiss 类错误。
	Get(ctx context.Context, key string) (dataset.RowGroup, error)
	// Set 写入一个交易日的数据，ttl <= 0 时使用实现的默认TTL。
	Set(ctx context.Context, key string, group dataset.RowGroup, ttl time.Duration) error
	// Delete 删除一个键。
	Delete(ctx context.Context, key string) error
	// Clear 清空所有缓存条目。
	Clear(ctx context.Context) error
	// Stats 获取缓存的统计信息。
	Stats() CacheStats
	// Close 关闭缓存并释放资源。
	Close() error
}

// CacheStats 包含了缓存的详细统计信息。
type CacheStats struct {
	Size        int64         `json:"size"`         // 当前缓存中的条目数
	MaxSize     int64         `json:"max_size"`     // 缓存最大容量
	HitCount    int64         `json:"hit_count"`    // 命中次数
	MissCount   int64         `json:"miss_count"`   // 未命中次数
	HitRate     float64       `json:"hit_rate"`     // 命中率
	TTL         time.Duration `json:"ttl"`          // 默认的生存时间
	LastCleanup time.Time     `json:"last_cleanup"` // 最后一次清理过期条目的时间
}

// IsMiss 判断错误是否为缓存未命中
func IsMiss(err error) bool {
	var cacheErr *CacheError
	if errors.As(err, &cacheErr) {
		return cacheErr.Code == ErrCacheMiss
	}
	return false
}
