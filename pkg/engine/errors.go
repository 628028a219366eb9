package engine

import (
	"errors"
	"fmt"
)

// 定义引擎错误
var (
	// ErrInvalidRange 无效的日期范围（结束早于开始）
	ErrInvalidRange = errors.New("invalid date range")

	// ErrNoFetchFunc 未提供上游拉取回调
	ErrNoFetchFunc = errors.New("fetch callback is nil")
)

// FetchError 某个缺口的上游拉取失败。
// 携带失败缺口的边界，便于调用方定位；缺口内的数据不会被部分落盘。
type FetchError struct {
	Gap Gap
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("拉取缺口 %s 失败: %v", e.Gap, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
