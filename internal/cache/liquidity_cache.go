package cache

import (
	"context"
	"math/big"
	"time"

	"github.com/patrickmn/go-cache"
)

const freeCapitalKey = "free_capital"

// FreeCapitalFetcher 从账本读取流动性池可用资金
type FreeCapitalFetcher func(ctx context.Context) (*big.Int, error)

// LiquidityCache 流动性池可用资金缓存
// 入场准入检查每个 tick 都会读，短 TTL 把账本读压降到常数级
type LiquidityCache struct {
	cache *cache.Cache
	fetch FreeCapitalFetcher
}

// NewLiquidityCache 创建流动性缓存
// ttl: 数值新鲜度上界（默认 1.5 秒）
func NewLiquidityCache(ttl time.Duration, fetch FreeCapitalFetcher) *LiquidityCache {
	if ttl <= 0 {
		ttl = 1500 * time.Millisecond
	}
	return &LiquidityCache{
		cache: cache.New(ttl, ttl*2),
		fetch: fetch,
	}
}

// FreeCapital 获取可用资金，过期时从账本刷新
func (c *LiquidityCache) FreeCapital(ctx context.Context) (*big.Int, error) {
	if v, ok := c.cache.Get(freeCapitalKey); ok {
		return v.(*big.Int), nil
	}

	fresh, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.Set(freeCapitalKey, fresh, cache.DefaultExpiration)
	return fresh, nil
}

// Invalidate 主动失效（测试与提交成功后使用）
func (c *LiquidityCache) Invalidate() {
	c.cache.Delete(freeCapitalKey)
}
