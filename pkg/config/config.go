package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config 主配置结构
type Config struct {
	// 缓存配置
	Cache CacheConfig `mapstructure:"cache"`

	// 引擎配置
	Engine EngineConfig `mapstructure:"engine"`

	// 提供商配置
	Provider ProviderConfig `mapstructure:"provider"`

	// 日志配置
	Logger LoggerConfig `mapstructure:"logger"`
}

// CacheConfig 缓存后端配置
type CacheConfig struct {
	Backend         string        `mapstructure:"backend"`          // 后端类型 (memory, disk, redis)
	BaseDir         string        `mapstructure:"base_dir"`         // disk 后端的缓存目录
	MaxSize         int64         `mapstructure:"max_size"`         // 最大条目数
	DefaultTTL      time.Duration `mapstructure:"default_ttl"`      // 默认TTL
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"` // 清理间隔
	RedisAddr       string        `mapstructure:"redis_addr"`       // redis 后端地址
	RedisPassword   string        `mapstructure:"redis_password"`   // redis 密码
	RedisDB         int           `mapstructure:"redis_db"`         // redis 数据库编号
	KeyPrefix       string        `mapstructure:"key_prefix"`       // redis 键前缀
}

// EngineConfig 缓存引擎配置
type EngineConfig struct {
	SplitYear bool `mapstructure:"split_year"` // 是否按自然年拆分区间
	Parallel  int  `mapstructure:"parallel"`   // 缺口并发拉取数
	CacheEnd  bool `mapstructure:"cache_end"`  // 是否缓存查询末日
}

// ProviderConfig 数据提供商配置
type ProviderConfig struct {
	Name       string        `mapstructure:"name"`        // 提供商名称 ("tencent")
	Timeout    time.Duration `mapstructure:"timeout"`     // 请求超时时间
	MaxRetries int           `mapstructure:"max_retries"` // 最大重试次数
	RateLimit  time.Duration `mapstructure:"rate_limit"`  // 请求间隔限制
	UserAgent  string        `mapstructure:"user_agent"`  // 用户代理
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别 (debug, info, warn, error)
	Format string `mapstructure:"format"` // 日志格式 (text, json)
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Cache: CacheConfig{
			Backend:         "disk",
			MaxSize:         0, // 不限制
			DefaultTTL:      80 * 365 * 24 * time.Hour,
			CleanupInterval: time.Hour,
			RedisAddr:       "localhost:6379",
			KeyPrefix:       "barcache:",
		},
		Engine: EngineConfig{
			SplitYear: true,
			Parallel:  1,
			CacheEnd:  false,
		},
		Provider: ProviderConfig{
			Name:       "tencent",
			Timeout:    15 * time.Second,
			MaxRetries: 3,
			RateLimit:  200 * time.Millisecond,
			UserAgent:  "barcache/1.0",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case "memory", "disk", "redis":
	default:
		return fmt.Errorf("unknown cache backend: %q", c.Cache.Backend)
	}

	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		return errors.New("redis backend requires redis_addr")
	}

	if c.Cache.DefaultTTL <= 0 {
		return errors.New("cache default_ttl must be positive")
	}

	if c.Engine.Parallel < 0 {
		return errors.New("engine parallel cannot be negative")
	}

	if c.Provider.Name == "" {
		return errors.New("provider name cannot be empty")
	}

	if c.Provider.Timeout <= 0 {
		return errors.New("provider timeout must be positive")
	}

	if c.Provider.MaxRetries < 0 {
		return errors.New("provider max_retries cannot be negative")
	}

	if c.Provider.RateLimit < 0 {
		return errors.New("provider rate_limit cannot be negative")
	}

	return nil
}

// LoadFromFile 从配置文件加载配置，文件中未出现的项保持默认值
func LoadFromFile(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("配置文件不存在: %s", configPath)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
