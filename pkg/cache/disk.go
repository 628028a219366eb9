package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"barcache/pkg/dataset"
)

// DiskCacheConfig 磁盘缓存配置
type DiskCacheConfig struct {
	BaseDir         string        `yaml:"base_dir"`         // 缓存文件基础目录
	MaxSize         int64         `yaml:"max_size"`         // 最大缓存条目数
	DefaultTTL      time.Duration `yaml:"default_ttl"`      // 默认生存时间
	CleanupInterval time.Duration `yaml:"cleanup_interval"` // 清理间隔
	FilePrefix      string        `yaml:"file_prefix"`      // 缓存目录前缀
}

// diskEntry 磁盘缓存条目元数据
type diskEntry struct {
	Key        string    `json:"key"`         // 缓存键
	Filepath   string    `json:"filepath"`    // 磁盘文件路径
	ExpireTime time.Time `json:"expire_time"` // 过期时间
	AccessTime time.Time `json:"access_time"` // 最后访问时间
	CreateTime time.Time `json:"create_time"` // 创建时间
	Size       int64     `json:"size"`        // 数据大小（字节）
}

// DiskCache 磁盘缓存实现。
// 每个交易日的 RowGroup 存为一个 JSON 文件，元数据单独落盘，
// 进程重启后缓存内容仍然可用。
type DiskCache struct {
	mu        sync.RWMutex
	config    DiskCacheConfig
	stats     CacheStats
	entries   map[string]diskEntry
	cacheDir  string
	closeChan chan struct{}
	closed    bool
}

// NewDiskCache 创建磁盘缓存实例
func NewDiskCache(config DiskCacheConfig) (*DiskCache, error) {
	if config.BaseDir == "" {
		config.BaseDir = os.TempDir()
	}
	if config.FilePrefix == "" {
		config.FilePrefix = "barcache_disk"
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = DefaultTTL
	}

	cacheDir := filepath.Join(config.BaseDir, config.FilePrefix)
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("创建缓存目录失败: %w", err)
	}

	dc := &DiskCache{
		config:    config,
		entries:   make(map[string]diskEntry),
		cacheDir:  cacheDir,
		closeChan: make(chan struct{}),
		stats: CacheStats{
			MaxSize: config.MaxSize,
			TTL:     config.DefaultTTL,
		},
	}

	if err := dc.loadMetadata(); err != nil {
		return nil, fmt.Errorf("加载缓存元数据失败: %w", err)
	}

	// 启动定期清理协程
	if config.CleanupInterval > 0 {
		go dc.cleanupWorker()
	}

	return dc, nil
}

// Get 从磁盘缓存获取数据
func (dc *DiskCache) Get(ctx context.Context, key string) (dataset.RowGroup, error) {
	dc.mu.RLock()
	if dc.closed {
		dc.mu.RUnlock()
		return nil, NewCacheError(ErrCacheClosed, "cache is closed")
	}
	entry, exists := dc.entries[key]
	dc.mu.RUnlock()

	if !exists {
		dc.countMiss()
		return nil, NewCacheError(ErrCacheMiss, "cache miss")
	}

	// 检查是否过期
	if time.Now().After(entry.ExpireTime) {
		dc.mu.Lock()
		delete(dc.entries, key)
		dc.stats.MissCount++
		dc.stats.Size--
		dc.mu.Unlock()

		go os.Remove(entry.Filepath)
		return nil, NewCacheError(ErrCacheMiss, "cache expired")
	}

	data, err := os.ReadFile(entry.Filepath)
	if err != nil {
		dc.countMiss()
		return nil, WrapCacheError(ErrCacheIO, "读取缓存文件失败", err)
	}

	var group dataset.RowGroup
	if err := json.Unmarshal(data, &group); err != nil {
		dc.countMiss()
		return nil, WrapCacheError(ErrCacheCorrupted, "反序列化缓存数据失败", err)
	}

	dc.mu.Lock()
	entry.AccessTime = time.Now()
	dc.entries[key] = entry
	dc.stats.HitCount++
	dc.mu.Unlock()

	return group, nil
}

// Set 向磁盘缓存设置数据
func (dc *DiskCache) Set(ctx context.Context, key string, group dataset.RowGroup, ttl time.Duration) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if dc.closed {
		return NewCacheError(ErrCacheClosed, "cache is closed")
	}

	if ttl <= 0 {
		ttl = dc.config.DefaultTTL
	}

	dataBytes, err := json.Marshal(group)
	if err != nil {
		return WrapCacheError(ErrCacheIO, "序列化数据失败", err)
	}

	// 文件名由键确定，同键覆盖写
	path := filepath.Join(dc.cacheDir, keyFilename(key))
	if err := writeFileAtomic(path, dataBytes); err != nil {
		return WrapCacheError(ErrCacheIO, "写入磁盘失败", err)
	}

	if _, exists := dc.entries[key]; !exists {
		if dc.config.MaxSize > 0 && int64(len(dc.entries)) >= dc.config.MaxSize {
			dc.evictOldestLocked()
		}
		dc.stats.Size++
	}

	now := time.Now()
	dc.entries[key] = diskEntry{
		Key:        key,
		Filepath:   path,
		ExpireTime: now.Add(ttl),
		AccessTime: now,
		CreateTime: now,
		Size:       int64(len(dataBytes)),
	}

	return nil
}

// Delete 从磁盘缓存删除数据
func (dc *DiskCache) Delete(ctx context.Context, key string) error {
	dc.mu.Lock()
	if dc.closed {
		dc.mu.Unlock()
		return NewCacheError(ErrCacheClosed, "cache is closed")
	}
	entry, exists := dc.entries[key]
	if exists {
		delete(dc.entries, key)
		dc.stats.Size--
	}
	dc.mu.Unlock()

	if exists {
		go os.Remove(entry.Filepath)
	}
	return nil
}

// Clear 清空磁盘缓存
func (dc *DiskCache) Clear(ctx context.Context) error {
	dc.mu.Lock()
	if dc.closed {
		dc.mu.Unlock()
		return NewCacheError(ErrCacheClosed, "cache is closed")
	}
	entries := make([]diskEntry, 0, len(dc.entries))
	for _, entry := range dc.entries {
		entries = append(entries, entry)
	}
	dc.entries = make(map[string]diskEntry)
	dc.stats.Size = 0
	dc.stats.HitCount = 0
	dc.stats.MissCount = 0
	dc.mu.Unlock()

	go func() {
		for _, entry := range entries {
			os.Remove(entry.Filepath)
		}
	}()
	return nil
}

// Stats 获取缓存统计信息
func (dc *DiskCache) Stats() CacheStats {
	dc.mu.RLock()
	defer dc.mu.RUnlock()

	stats := dc.stats
	total := stats.HitCount + stats.MissCount
	if total > 0 {
		stats.HitRate = float64(stats.HitCount) / float64(total)
	}
	return stats
}

// Close 关闭磁盘缓存并保存元数据
func (dc *DiskCache) Close() error {
	dc.mu.Lock()
	if dc.closed {
		dc.mu.Unlock()
		return nil
	}
	dc.closed = true
	close(dc.closeChan)
	dc.mu.Unlock()

	if err := dc.saveMetadata(); err != nil {
		return fmt.Errorf("保存元数据失败: %w", err)
	}
	return nil
}

func (dc *DiskCache) countMiss() {
	dc.mu.Lock()
	dc.stats.MissCount++
	dc.mu.Unlock()
}

// evictOldestLocked 淘汰最久未访问的条目，调用方需持有写锁
func (dc *DiskCache) evictOldestLocked() {
	var oldestKey string
	var oldestTime time.Time
	for k, e := range dc.entries {
		if oldestTime.IsZero() || e.AccessTime.Before(oldestTime) {
			oldestKey = k
			oldestTime = e.AccessTime
		}
	}
	if oldestKey != "" {
		oldEntry := dc.entries[oldestKey]
		delete(dc.entries, oldestKey)
		dc.stats.Size--
		os.Remove(oldEntry.Filepath)
	}
}

// cleanupWorker 定期清理过期条目
func (dc *DiskCache) cleanupWorker() {
	ticker := time.NewTicker(dc.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			dc.cleanup()
		case <-dc.closeChan:
			return
		}
	}
}

func (dc *DiskCache) cleanup() {
	now := time.Now()
	expired := make([]diskEntry, 0)

	dc.mu.Lock()
	for key, entry := range dc.entries {
		if now.After(entry.ExpireTime) {
			expired = append(expired, entry)
			delete(dc.entries, key)
			dc.stats.Size--
		}
	}
	dc.stats.LastCleanup = now
	dc.mu.Unlock()

	for _, entry := range expired {
		os.Remove(entry.Filepath)
	}
}

// loadMetadata 加载缓存元数据，过期条目直接丢弃
func (dc *DiskCache) loadMetadata() error {
	metadataFile := filepath.Join(dc.cacheDir, "metadata.json")
	data, err := os.ReadFile(metadataFile)
	if os.IsNotExist(err) {
		return nil // 元数据不存在是正常的
	}
	if err != nil {
		return fmt.Errorf("读取元数据文件失败: %w", err)
	}

	var entries map[string]diskEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("反序列化元数据失败: %w", err)
	}

	now := time.Now()
	for key, entry := range entries {
		if now.After(entry.ExpireTime) {
			os.Remove(entry.Filepath)
			continue
		}
		dc.entries[key] = entry
	}
	dc.stats.Size = int64(len(dc.entries))
	return nil
}

// saveMetadata 保存缓存元数据
func (dc *DiskCache) saveMetadata() error {
	dc.mu.RLock()
	data, err := json.Marshal(dc.entries)
	dc.mu.RUnlock()
	if err != nil {
		return err
	}

	metadataFile := filepath.Join(dc.cacheDir, "metadata.json")
	return writeFileAtomic(metadataFile, data)
}

// keyFilename 将缓存键映射为确定的文件名
func keyFilename(key string) string {
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:]) + ".json"
}

// writeFileAtomic 先写临时文件再改名，避免半截文件
func writeFileAtomic(path string, data []byte) error {
	tempFile := path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := os.Rename(tempFile, path); err != nil {
		return fmt.Errorf("重命名文件失败: %w", err)
	}
	return nil
}

var _ Cache = (*DiskCache)(nil)
