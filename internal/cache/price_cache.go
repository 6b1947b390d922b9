package cache

import (
	"time"

	"github.com/perpflow/perpflow-keeper/pkg/concurrent"
)

// PricePoint 某资产最近一次行情
type PricePoint struct {
	PriceE6    int64
	ReceivedAt time.Time
}

// PriceCache 各资产最新价格缓存（状态页与指标用，不在执行路径上）
type PriceCache struct {
	prices concurrent.Map[int64, PricePoint]
}

// NewPriceCache 创建价格缓存
func NewPriceCache() *PriceCache {
	return &PriceCache{}
}

// Set 记录资产最新价
func (c *PriceCache) Set(assetID, priceE6 int64) {
	c.prices.Store(assetID, PricePoint{PriceE6: priceE6, ReceivedAt: time.Now()})
}

// Get 获取资产最新价
func (c *PriceCache) Get(assetID int64) (PricePoint, bool) {
	return c.prices.Load(assetID)
}

// Stats 统计信息
func (c *PriceCache) Stats() map[string]any {
	return map[string]any{
		"asset_count": c.prices.Len(),
	}
}
