package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barcache/pkg/dataset"
)

func testGroup(symbol string, date string) dataset.RowGroup {
	d, _ := time.Parse(dataset.DateFormat, date)
	return dataset.RowGroup{{
		Symbol: symbol,
		Date:   d,
		Fields: map[string]float64{"close": 10.5, "volume": 12345},
	}}
}

func TestMemoryCache_基本读写(t *testing.T) {
	c := NewMemoryCache(MemoryCacheConfig{})
	defer c.Close()
	ctx := context.Background()

	group := testGroup("600000.s", "2024-01-08")
	require.NoError(t, c.Set(ctx, "daily_2024-01-08_pre", group, 0))

	got, err := c.Get(ctx, "daily_2024-01-08_pre")
	require.NoError(t, err)
	assert.Equal(t, group, got)
}

func TestMemoryCache_未命中返回Miss错误(t *testing.T) {
	c := NewMemoryCache(MemoryCacheConfig{})
	defer c.Close()

	_, err := c.Get(context.Background(), "不存在的键")
	require.Error(t, err)
	assert.True(t, IsMiss(err))
}

func TestMemoryCache_过期条目视为未命中(t *testing.T) {
	c := NewMemoryCache(MemoryCacheConfig{})
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", testGroup("600000.s", "2024-01-08"), time.Millisecond))
	time.Sleep(10 * time.Millisecond)

	_, err := c.Get(ctx, "k")
	require.Error(t, err)
	assert.True(t, IsMiss(err))
}

func TestMemoryCache_删除与清空(t *testing.T) {
	c := NewMemoryCache(MemoryCacheConfig{})
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", testGroup("600000.s", "2024-01-08"), 0))
	require.NoError(t, c.Set(ctx, "b", testGroup("600001.s", "2024-01-08"), 0))

	require.NoError(t, c.Delete(ctx, "a"))
	_, err := c.Get(ctx, "a")
	assert.True(t, IsMiss(err))

	require.NoError(t, c.Clear(ctx))
	_, err = c.Get(ctx, "b")
	assert.True(t, IsMiss(err))
}

func TestMemoryCache_容量上限触发淘汰(t *testing.T) {
	c := NewMemoryCache(MemoryCacheConfig{MaxSize: 2})
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", testGroup("600000.s", "2024-01-08"), 0))
	time.Sleep(time.Millisecond)
	require.NoError(t, c.Set(ctx, "k2", testGroup("600000.s", "2024-01-09"), 0))
	time.Sleep(time.Millisecond)
	require.NoError(t, c.Set(ctx, "k3", testGroup("600000.s", "2024-01-10"), 0))

	// 最早写入的条目被淘汰
	_, err := c.Get(ctx, "k1")
	assert.True(t, IsMiss(err))

	_, err = c.Get(ctx, "k3")
	assert.NoError(t, err)
}

func TestMemoryCache_并发读写安全(t *testing.T) {
	c := NewMemoryCache(MemoryCacheConfig{})
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", testGroup("600000.s", "2024-01-08"), 0))

	// -race 下并发 Get 同一条目，访问时间更新不得与其他读者竞争
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				got, err := c.Get(ctx, "k")
				assert.NoError(t, err)
				assert.Len(t, got, 1)
			}
		}()
	}
	wg.Wait()

	stats := c.Stats()
	assert.EqualValues(t, 8*200, stats.HitCount)
}

func TestMemoryCache_统计信息(t *testing.T) {
	c := NewMemoryCache(MemoryCacheConfig{})
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", testGroup("600000.s", "2024-01-08"), 0))
	_, _ = c.Get(ctx, "k")
	_, _ = c.Get(ctx, "不存在")

	stats := c.Stats()
	assert.EqualValues(t, 1, stats.Size)
	assert.EqualValues(t, 1, stats.HitCount)
	assert.EqualValues(t, 1, stats.MissCount)
	assert.InDelta(t, 0.5, stats.HitRate, 0.001)
}
