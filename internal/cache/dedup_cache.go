package cache

import (
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
)

// ExecKind 执行类型
type ExecKind string

const (
	KindEntry ExecKind = "entry" // 入场执行
	KindExit  ExecKind = "exit"  // 止损/止盈出场
)

// DedupCache 执行去重缓存，使用 go-cache 实现 TTL 自动过期
// 同一 (kind, tradeId) 在窗口期内只允许一次链上提交，
// 防止行情连续触发时对尚未确认的交易重复下单
type DedupCache struct {
	cache  *cache.Cache
	window time.Duration
}

// NewDedupCache 创建执行去重缓存
// window: 去重窗口（默认建议 15 秒）
// 清理间隔自动设为 2×window
func NewDedupCache(window time.Duration) *DedupCache {
	if window <= 0 {
		window = 15 * time.Second
	}
	return &DedupCache{
		cache:  cache.New(window, window*2),
		window: window,
	}
}

// IsSeen 检查该执行是否在窗口期内已提交过
func (c *DedupCache) IsSeen(kind ExecKind, tradeID int64) bool {
	_, exists := c.cache.Get(c.dedupKey(kind, tradeID))
	return exists
}

// Mark 记录最近一次提交时间
func (c *DedupCache) Mark(kind ExecKind, tradeID int64) {
	c.cache.Set(c.dedupKey(kind, tradeID), time.Now(), cache.DefaultExpiration)
}

// TryMark 原子占位：键不存在时写入并返回 true，已存在返回 false
// 并发尝试同一 (kind, tradeId) 时恰好一个成功
func (c *DedupCache) TryMark(kind ExecKind, tradeID int64) bool {
	err := c.cache.Add(c.dedupKey(kind, tradeID), time.Now(), cache.DefaultExpiration)
	return err == nil
}

// dedupKey 生成去重键
// 格式: "kind-tradeId"
func (c *DedupCache) dedupKey(kind ExecKind, tradeID int64) string {
	return fmt.Sprintf("%s-%d", kind, tradeID)
}

// Window 去重窗口长度
func (c *DedupCache) Window() time.Duration {
	return c.window
}

// Stats 统计信息
func (c *DedupCache) Stats() map[string]any {
	return map[string]any{
		"item_count": c.cache.ItemCount(),
		"window_ms":  c.window.Milliseconds(),
	}
}
