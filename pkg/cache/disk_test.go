package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDiskCache(t *testing.T) *DiskCache {
	t.Helper()
	c, err := NewDiskCache(DiskCacheConfig{
		BaseDir:    t.TempDir(),
		FilePrefix: "barcache_test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestDiskCache_基本读写(t *testing.T) {
	c := newTestDiskCache(t)
	ctx := context.Background()

	group := testGroup("600000.s", "2024-01-08")
	require.NoError(t, c.Set(ctx, "daily_2024-01-08_pre", group, 0))

	got, err := c.Get(ctx, "daily_2024-01-08_pre")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "600000.s", got[0].Symbol)
	assert.Equal(t, 10.5, got[0].Fields["close"])
}

func TestDiskCache_未命中(t *testing.T) {
	c := newTestDiskCache(t)

	_, err := c.Get(context.Background(), "不存在的键")
	require.Error(t, err)
	assert.True(t, IsMiss(err))
}

func TestDiskCache_重启后数据保留(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	c1, err := NewDiskCache(DiskCacheConfig{BaseDir: dir, FilePrefix: "persist"})
	require.NoError(t, err)
	require.NoError(t, c1.Set(ctx, "daily_2024-01-08_pre", testGroup("600000.s", "2024-01-08"), 0))
	require.NoError(t, c1.Close())

	// 以同一目录重新打开，元数据和数据文件都应恢复
	c2, err := NewDiskCache(DiskCacheConfig{BaseDir: dir, FilePrefix: "persist"})
	require.NoError(t, err)
	defer c2.Close()

	got, err := c2.Get(ctx, "daily_2024-01-08_pre")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestDiskCache_过期条目未命中(t *testing.T) {
	c := newTestDiskCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", testGroup("600000.s", "2024-01-08"), time.Millisecond))
	time.Sleep(10 * time.Millisecond)

	_, err := c.Get(ctx, "k")
	require.Error(t, err)
	assert.True(t, IsMiss(err))
}

func TestDiskCache_删除与清空(t *testing.T) {
	c := newTestDiskCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", testGroup("600000.s", "2024-01-08"), 0))
	require.NoError(t, c.Set(ctx, "b", testGroup("600001.s", "2024-01-08"), 0))

	require.NoError(t, c.Delete(ctx, "a"))
	_, err := c.Get(ctx, "a")
	assert.True(t, IsMiss(err))

	require.NoError(t, c.Clear(ctx))
	_, err = c.Get(ctx, "b")
	assert.True(t, IsMiss(err))
	assert.EqualValues(t, 0, c.Stats().Size)
}

func TestDiskCache_关闭后拒绝访问(t *testing.T) {
	c, err := NewDiskCache(DiskCacheConfig{BaseDir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	_, err = c.Get(context.Background(), "k")
	require.Error(t, err)
	assert.False(t, IsMiss(err))
}
