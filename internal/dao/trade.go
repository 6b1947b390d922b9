package dao

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/perpflow/perpflow-keeper/internal/models"
)

const (
	// MaxBatchUpsert 批量 upsert 上限
	MaxBatchUpsert = 2000
	// MaxBatchPatch 批量补丁上限
	MaxBatchPatch = 5000
)

type TradeDAO struct {
	db *gorm.DB
}

var _trade = &TradeDAO{}

// Trade 获取 TradeDAO 单例
func Trade() *TradeDAO {
	return _trade
}

// InitTradeDAO 绑定数据库连接
func InitTradeDAO(db *gorm.DB) {
	_trade.db = db
}

// Get 根据 id 获取交易
func (d *TradeDAO) Get(id int64) (*models.Trade, error) {
	var t models.Trade
	if err := d.db.Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// ListIDsByTrader 按地址查询交易 id 列表（id 降序）
// state 为 nil 表示不过滤状态
func (d *TradeDAO) ListIDsByTrader(trader string, state *models.TradeState) ([]int64, error) {
	ids := make([]int64, 0, 16)
	q := d.db.Model(&models.Trade{}).Where("trader = ?", trader)
	if state != nil {
		q = q.Where("state = ?", *state)
	}
	err := q.Order("id DESC").Pluck("id", &ids).Error
	return ids, err
}

// MatchEntry 入场匹配：state=Order 且价格条件满足的交易 id
// 返回限价单与停损入场单两组
//
//	isLimit && isLong:  market <= open_price
//	isLimit && !isLong: market >= open_price
//	!isLimit && isLong: market >= open_price
//	!isLimit && !isLong: market <= open_price
func (d *TradeDAO) MatchEntry(assetID, marketE6 int64) (limitIDs, stopIDs []int64, err error) {
	limitIDs = make([]int64, 0, 8)
	stopIDs = make([]int64, 0, 8)

	err = d.db.Model(&models.Trade{}).
		Where("asset_id = ? AND state = ? AND is_limit = ?", assetID, models.StateOrder, true).
		Where("(is_long = ? AND open_price >= ?) OR (is_long = ? AND open_price <= ?)",
			true, marketE6, false, marketE6).
		Order("id").
		Pluck("id", &limitIDs).Error
	if err != nil {
		return nil, nil, err
	}

	err = d.db.Model(&models.Trade{}).
		Where("asset_id = ? AND state = ? AND is_limit = ?", assetID, models.StateOrder, false).
		Where("(is_long = ? AND open_price <= ?) OR (is_long = ? AND open_price >= ?)",
			true, marketE6, false, marketE6).
		Order("id").
		Pluck("id", &stopIDs).Error
	if err != nil {
		return nil, nil, err
	}

	return limitIDs, stopIDs, nil
}

// MatchExits 出场匹配：state=Open 且触发止损/止盈的交易 id
// 同一笔交易两个条件同时满足时，止损优先
// stop_loss/take_profit 为 0 视为未启用，永不触发
func (d *TradeDAO) MatchExits(assetID, marketE6 int64) (slIDs, tpIDs []int64, err error) {
	slIDs = make([]int64, 0, 8)
	tpIDs = make([]int64, 0, 8)

	err = d.db.Model(&models.Trade{}).
		Where("asset_id = ? AND state = ? AND stop_loss > 0", assetID, models.StateOpen).
		Where("(is_long = ? AND stop_loss >= ?) OR (is_long = ? AND stop_loss <= ?)",
			true, marketE6, false, marketE6).
		Order("id").
		Pluck("id", &slIDs).Error
	if err != nil {
		return nil, nil, err
	}

	rawTP := make([]int64, 0, 8)
	err = d.db.Model(&models.Trade{}).
		Where("asset_id = ? AND state = ? AND take_profit > 0", assetID, models.StateOpen).
		Where("(is_long = ? AND take_profit <= ?) OR (is_long = ? AND take_profit >= ?)",
			true, marketE6, false, marketE6).
		Order("id").
		Pluck("id", &rawTP).Error
	if err != nil {
		return nil, nil, err
	}

	// 止损优先：剔除已在止损集合中的 id
	inSL := make(map[int64]struct{}, len(slIDs))
	for _, id := range slIDs {
		inSL[id] = struct{}{}
	}
	for _, id := range rawTP {
		if _, ok := inSL[id]; !ok {
			tpIDs = append(tpIDs, id)
		}
	}

	return slIDs, tpIDs, nil
}

// LockedCapital 读取交易的 LP 锁定资金（十进制字符串）
func (d *TradeDAO) LockedCapital(id int64) (string, error) {
	var t models.Trade
	err := d.db.Select("lp_locked_capital").Where("id = ?", id).First(&t).Error
	if err != nil {
		return "", err
	}
	return t.LpLockedCapital, nil
}

// Upsert 全量写入（存在则整条覆盖）
// Closed 状态必须携带非零 close_price
func (d *TradeDAO) Upsert(t *models.Trade) error {
	if t.State == models.StateClosed && t.ClosePrice == 0 {
		return ErrCloseWithoutPrice
	}
	return d.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(t).Error
}

// TradePatch 部分字段补丁，nil 表示不修改
type TradePatch struct {
	State           *models.TradeState
	ClosePrice      *int64
	StopLoss        *int64
	TakeProfit      *int64
	ClosedLotSize   *int64
	MarginUsdc      *string
	LpLockedCapital *string
	FundingIndex    *string
}

// Patch 部分更新
// 全量平仓且未提供 closed_lot_size 时自动回填存量 lot_size
func (d *TradeDAO) Patch(id int64, p *TradePatch) error {
	stored, err := d.Get(id)
	if err != nil {
		return err
	}

	updates := map[string]any{}
	if p.State != nil {
		if !p.State.Valid() {
			return fmt.Errorf("invalid state %d", *p.State)
		}
		updates["state"] = *p.State
	}
	if p.ClosePrice != nil {
		updates["close_price"] = *p.ClosePrice
	}
	if p.StopLoss != nil {
		updates["stop_loss"] = *p.StopLoss
	}
	if p.TakeProfit != nil {
		updates["take_profit"] = *p.TakeProfit
	}
	if p.ClosedLotSize != nil {
		updates["closed_lot_size"] = *p.ClosedLotSize
	}
	if p.MarginUsdc != nil {
		updates["margin_usdc"] = *p.MarginUsdc
	}
	if p.LpLockedCapital != nil {
		updates["lp_locked_capital"] = *p.LpLockedCapital
	}
	if p.FundingIndex != nil {
		updates["funding_index"] = *p.FundingIndex
	}
	if len(updates) == 0 {
		return nil
	}

	// 平仓约束：落库后的 close_price 不能为零
	if p.State != nil && *p.State == models.StateClosed {
		finalClose := stored.ClosePrice
		if p.ClosePrice != nil {
			finalClose = *p.ClosePrice
		}
		if finalClose == 0 {
			return ErrCloseWithoutPrice
		}
		if p.ClosedLotSize == nil && stored.ClosedLotSize == 0 {
			updates["closed_lot_size"] = stored.LotSize
		}
	}

	return d.db.Model(&models.Trade{}).Where("id = ?", id).Updates(updates).Error
}

// BatchUpsert 批量全量写入，单事务原子提交
func (d *TradeDAO) BatchUpsert(trades []*models.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	if len(trades) > MaxBatchUpsert {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(trades), MaxBatchUpsert)
	}
	for _, t := range trades {
		if t.State == models.StateClosed && t.ClosePrice == 0 {
			return fmt.Errorf("trade %d: %w", t.ID, ErrCloseWithoutPrice)
		}
	}

	return d.db.Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).CreateInBatches(trades, 200).Error
	})
}

// BatchPatchStates 批量状态补丁，返回实际变更行数
func (d *TradeDAO) BatchPatchStates(patches []models.StatePatch) (int64, error) {
	if len(patches) == 0 {
		return 0, nil
	}
	if len(patches) > MaxBatchPatch {
		return 0, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(patches), MaxBatchPatch)
	}

	var changed int64
	err := d.db.Transaction(func(tx *gorm.DB) error {
		for _, p := range patches {
			if !p.State.Valid() {
				return fmt.Errorf("trade %d: invalid state %d", p.ID, p.State)
			}
			if p.State == models.StateClosed && p.ClosePrice == 0 {
				return fmt.Errorf("trade %d: %w", p.ID, ErrCloseWithoutPrice)
			}
			res := tx.Model(&models.Trade{}).
				Where("id = ? AND (state <> ? OR close_price <> ? OR closed_lot_size <> ?)",
					p.ID, p.State, p.ClosePrice, p.ClosedLotSize).
				Updates(map[string]any{
					"state":           p.State,
					"close_price":     p.ClosePrice,
					"closed_lot_size": p.ClosedLotSize,
				})
			if res.Error != nil {
				return res.Error
			}
			changed += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

// BatchPatchSLTP 批量止损/止盈补丁，返回实际变更行数
// 仅对值确实变化的行生效
func (d *TradeDAO) BatchPatchSLTP(patches []models.SLTPPatch) (int64, error) {
	if len(patches) == 0 {
		return 0, nil
	}
	if len(patches) > MaxBatchPatch {
		return 0, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(patches), MaxBatchPatch)
	}

	var changed int64
	err := d.db.Transaction(func(tx *gorm.DB) error {
		for _, p := range patches {
			res := tx.Model(&models.Trade{}).
				Where("id = ? AND (stop_loss <> ? OR take_profit <> ?)", p.ID, p.StopLoss, p.TakeProfit).
				Updates(map[string]any{
					"stop_loss":   p.StopLoss,
					"take_profit": p.TakeProfit,
				})
			if res.Error != nil {
				return res.Error
			}
			changed += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

// ExistingIDs 返回给定 id 集合中本地已存在的部分
func (d *TradeDAO) ExistingIDs(ids []int64) (map[int64]struct{}, error) {
	found := make([]int64, 0, len(ids))
	err := d.db.Model(&models.Trade{}).
		Where("id IN ?", ids).
		Pluck("id", &found).Error
	if err != nil {
		return nil, err
	}
	set := make(map[int64]struct{}, len(found))
	for _, id := range found {
		set[id] = struct{}{}
	}
	return set, nil
}

// GetStates 批量读取本地状态
func (d *TradeDAO) GetStates(ids []int64) (map[int64]models.TradeState, error) {
	type row struct {
		ID    int64
		State models.TradeState
	}
	rows := make([]row, 0, len(ids))
	err := d.db.Model(&models.Trade{}).
		Select("id", "state").
		Where("id IN ?", ids).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[int64]models.TradeState, len(rows))
	for _, r := range rows {
		out[r.ID] = r.State
	}
	return out, nil
}

// GetSLTP 批量读取本地止损/止盈
func (d *TradeDAO) GetSLTP(ids []int64) (map[int64]models.SLTPPatch, error) {
	type row struct {
		ID         int64
		StopLoss   int64
		TakeProfit int64
	}
	rows := make([]row, 0, len(ids))
	err := d.db.Model(&models.Trade{}).
		Select("id", "stop_loss", "take_profit").
		Where("id IN ?", ids).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[int64]models.SLTPPatch, len(rows))
	for _, r := range rows {
		out[r.ID] = models.SLTPPatch{ID: r.ID, StopLoss: r.StopLoss, TakeProfit: r.TakeProfit}
	}
	return out, nil
}

// DeleteTerminalBefore 清理早于指定时间的终态交易，返回删除行数
func (d *TradeDAO) DeleteTerminalBefore(before time.Time) (int64, error) {
	res := d.db.Where("state IN ? AND updated_at < ?",
		[]models.TradeState{models.StateClosed, models.StateCancelled}, before).
		Delete(&models.Trade{})
	return res.RowsAffected, res.Error
}
