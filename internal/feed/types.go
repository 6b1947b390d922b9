package feed

import "time"

// MarketTick 一条实时行情
// 瞬态数据，不落库：价格保留原始字符串，定点换算在编排器里做
type MarketTick struct {
	AssetID    int64
	RawPrice   string
	ReceivedAt time.Time
}

// TickHandler 行情回调
type TickHandler func(tick MarketTick)
