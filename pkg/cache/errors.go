package cache

import (
	"barcache/pkg/error"
)

type CacheError struct {
	error.BaseError
}

const (
	// ErrCacheTimeout 表示缓存操作超时。
	ErrCacheTimeout error.ErrorCode = "CACHE_TIMEOUT"
	// ErrCacheMiss 表示在缓存中未找到请求的条目。
	ErrCacheMiss error.ErrorCode = "CACHE_MISS"
	// ErrCacheIO 表示缓存后端读写失败。
	ErrCacheIO error.ErrorCode = "CACHE_IO"
	// ErrCacheCorrupted 表示缓存数据已损坏。
	ErrCacheCorrupted error.ErrorCode = "CACHE_CORRUPTED"
	// ErrCacheClosed 表示缓存已关闭。
	ErrCacheClosed error.ErrorCode = "CACHE_CLOSED"
)

func NewCacheError(code error.ErrorCode, message string) *CacheError {
	return &CacheError{
		BaseError: *error.NewError(code, message),
	}
}

func WrapCacheError(code error.ErrorCode, message string, cause interface{ Error() string }) *CacheError {
	return &CacheError{
		BaseError: *error.WrapError(code, message, cause),
	}
}
