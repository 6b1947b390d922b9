package models

import (
	"time"
)

// TradeState 交易生命周期状态
// 合法路径 Order → Open → {Closed, Cancelled}，终态不可再变
type TradeState int8

const (
	StateOrder     TradeState = 0 // 挂单等待入场
	StateOpen      TradeState = 1 // 持仓中
	StateClosed    TradeState = 2 // 已平仓（终态）
	StateCancelled TradeState = 3 // 已取消（终态）
)

// Valid 校验状态值是否在合法范围内
func (s TradeState) Valid() bool {
	return s >= StateOrder && s <= StateCancelled
}

// Terminal 是否为终态
func (s TradeState) Terminal() bool {
	return s == StateClosed || s == StateCancelled
}

// Trade 本地撮合索引中的交易记录
// 链上状态为权威，本表只是缓存：写入要么是权威全量覆盖，
// 要么是与状态无关字段（止损/止盈）的窄补丁
type Trade struct {
	ID      int64  `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"`
	Trader  string `gorm:"column:trader;type:varchar(66);not null;index:idx_trader;comment:链上地址（小写）" json:"trader"`
	AssetID int64  `gorm:"column:asset_id;not null;index:idx_asset_state,priority:1;comment:标的资产索引" json:"asset_id"`
	IsLong  bool   `gorm:"column:is_long;not null;index:idx_asset_state,priority:3" json:"is_long"`
	IsLimit bool   `gorm:"column:is_limit;not null;comment:仅 state=Order 时有意义" json:"is_limit"`

	Leverage      int64 `gorm:"column:leverage;not null;default:0" json:"leverage"`
	LotSize       int64 `gorm:"column:lot_size;not null;default:0" json:"lot_size"`
	ClosedLotSize int64 `gorm:"column:closed_lot_size;not null;default:0" json:"closed_lot_size"`

	// E6 定点价格，止损/止盈为 0 表示未启用
	OpenPrice  int64 `gorm:"column:open_price;not null;default:0;index:idx_open_price" json:"open_price"`
	ClosePrice int64 `gorm:"column:close_price;not null;default:0" json:"close_price"`
	StopLoss   int64 `gorm:"column:stop_loss;not null;default:0;index:idx_stop_loss" json:"stop_loss"`
	TakeProfit int64 `gorm:"column:take_profit;not null;default:0;index:idx_take_profit" json:"take_profit"`

	State TradeState `gorm:"column:state;not null;default:0;index:idx_asset_state,priority:2" json:"state"`

	// 超出原生整型范围，十进制字符串存储
	FundingIndex    string `gorm:"column:funding_index;type:varchar(78);not null;default:'0'" json:"funding_index"`
	LpLockedCapital string `gorm:"column:lp_locked_capital;type:varchar(78);not null;default:'0';comment:LP 锁定资金" json:"lp_locked_capital"`
	MarginUsdc      string `gorm:"column:margin_usdc;type:varchar(78);not null;default:'0'" json:"margin_usdc"`

	OpenTimestamp int64 `gorm:"column:open_timestamp;not null;default:0" json:"open_timestamp"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;index:idx_updated" json:"updated_at"`
}

// TableName 指定表名
func (Trade) TableName() string {
	return "trades"
}

// StatePatch 状态补丁（批量接口使用）
type StatePatch struct {
	ID            int64      `json:"id"`
	State         TradeState `json:"state"`
	ClosePrice    int64      `json:"close_price"`
	ClosedLotSize int64      `json:"closed_lot_size"`
}

// SLTPPatch 止损/止盈补丁
type SLTPPatch struct {
	ID         int64 `json:"id"`
	StopLoss   int64 `json:"stop_loss"`
	TakeProfit int64 `json:"take_profit"`
}
