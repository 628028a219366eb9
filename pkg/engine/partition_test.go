package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestSplitYears_同一年内不拆分(t *testing.T) {
	r, err := NewDateRange(day("2024-03-01"), day("2024-09-30"))
	require.NoError(t, err)

	spans := SplitYears(r, true)
	require.Len(t, spans, 1)
	assert.Equal(t, r.Start, spans[0].Start)
	assert.Equal(t, r.End, spans[0].End)
}

func TestSplitYears_相邻两年只产生一段(t *testing.T) {
	// 切分点是严格位于首尾年份之间的1月1日，相邻年份没有切分点
	r, err := NewDateRange(day("2023-11-15"), day("2024-02-20"))
	require.NoError(t, err)

	spans := SplitYears(r, true)
	require.Len(t, spans, 1)
	assert.Equal(t, day("2023-11-15"), spans[0].Start)
	assert.Equal(t, day("2024-02-20"), spans[0].End)
}

func TestSplitYears_跨多年按自然年切分(t *testing.T) {
	r, err := NewDateRange(day("2020-06-15"), day("2023-03-10"))
	require.NoError(t, err)

	spans := SplitYears(r, true)
	require.Len(t, spans, 3)

	assert.Equal(t, day("2020-06-15"), spans[0].Start)
	assert.Equal(t, day("2020-12-31"), spans[0].End)

	assert.Equal(t, day("2021-01-01"), spans[1].Start)
	assert.Equal(t, day("2021-12-31"), spans[1].End)

	// 最后一段止于区间末尾，允许跨一个年度边界
	assert.Equal(t, day("2022-01-01"), spans[2].Start)
	assert.Equal(t, day("2023-03-10"), spans[2].End)
}

func TestSplitYears_子区间并集等于原区间(t *testing.T) {
	r, err := NewDateRange(day("2019-05-03"), day("2024-08-08"))
	require.NoError(t, err)

	spans := SplitYears(r, true)
	require.NotEmpty(t, spans)

	assert.Equal(t, r.Start, spans[0].Start)
	assert.Equal(t, r.End, spans[len(spans)-1].End)
	for i := 1; i < len(spans); i++ {
		// 相邻子区间首尾衔接，既不重叠也无遗漏
		assert.Equal(t, spans[i-1].End.AddDate(0, 0, 1), spans[i].Start)
	}
}

func TestSplitYears_关闭拆分返回原区间(t *testing.T) {
	r, err := NewDateRange(day("2018-01-10"), day("2024-06-01"))
	require.NoError(t, err)

	spans := SplitYears(r, false)
	require.Len(t, spans, 1)
	assert.Equal(t, r, spans[0])
}

func TestNewDateRange_起始晚于结束报错(t *testing.T) {
	_, err := NewDateRange(day("2024-05-01"), day("2024-04-01"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestNewDateRange_时刻归一化到零点(t *testing.T) {
	start := time.Date(2024, 3, 5, 14, 30, 0, 0, time.Local)
	end := time.Date(2024, 3, 7, 9, 15, 0, 0, time.Local)

	r, err := NewDateRange(start, end)
	require.NoError(t, err)
	assert.Equal(t, day("2024-03-05"), r.Start)
	assert.Equal(t, day("2024-03-07"), r.End)
}
