package dao

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/perpflow/perpflow-keeper/internal/models"
)

var dbSeq atomic.Int64

// setupTestDB 每个测试独立的内存库，避免用例间串数据
func setupTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:trade_test_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&models.Trade{}))
	return db
}

func setupTestDAO(t *testing.T) *TradeDAO {
	InitDAO(setupTestDB(t))
	return Trade()
}

func mkTrade(id int64, mut ...func(*models.Trade)) *models.Trade {
	t := &models.Trade{
		ID:              id,
		Trader:          "0xabc0000000000000000000000000000000000001",
		AssetID:         1,
		IsLong:          true,
		IsLimit:         true,
		Leverage:        10,
		LotSize:         100,
		OpenPrice:       69_000_000_000, // 69000 E6
		State:           models.StateOrder,
		FundingIndex:    "0",
		LpLockedCapital: "1000000000",
		MarginUsdc:      "500000000",
		OpenTimestamp:   time.Now().Unix(),
	}
	for _, m := range mut {
		m(t)
	}
	return t
}

func TestUpsertAndGet(t *testing.T) {
	d := setupTestDAO(t)

	require.NoError(t, d.Upsert(mkTrade(1)))

	got, err := d.Get(1)
	require.NoError(t, err)
	assert.Equal(t, int64(69_000_000_000), got.OpenPrice)
	assert.Equal(t, models.StateOrder, got.State)

	// 二次写入整条覆盖
	require.NoError(t, d.Upsert(mkTrade(1, func(tr *models.Trade) {
		tr.State = models.StateOpen
		tr.StopLoss = 68_000_000_000
	})))

	got, err = d.Get(1)
	require.NoError(t, err)
	assert.Equal(t, models.StateOpen, got.State)
	assert.Equal(t, int64(68_000_000_000), got.StopLoss)
}

func TestGet_NotFound(t *testing.T) {
	d := setupTestDAO(t)

	_, err := d.Get(999)
	assert.True(t, IsNotFound(err))
}

func TestUpsert_ClosedWithoutPrice(t *testing.T) {
	d := setupTestDAO(t)

	err := d.Upsert(mkTrade(1, func(tr *models.Trade) {
		tr.State = models.StateClosed
		tr.ClosePrice = 0
	}))
	assert.ErrorIs(t, err, ErrCloseWithoutPrice)
}

func TestMatchEntry_LimitBoundary(t *testing.T) {
	d := setupTestDAO(t)

	// 多头限价单：market <= open_price 触发
	require.NoError(t, d.Upsert(mkTrade(1)))
	// 空头限价单：market >= open_price 触发
	require.NoError(t, d.Upsert(mkTrade(2, func(tr *models.Trade) {
		tr.Trader = "0xabc0000000000000000000000000000000000002"
		tr.IsLong = false
	})))

	// 恰好等于挂单价，两边都触发
	limitIDs, stopIDs, err := d.MatchEntry(1, 69_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, limitIDs)
	assert.Empty(t, stopIDs)

	// 高一个最小刻度：只有空头触发
	limitIDs, _, err = d.MatchEntry(1, 69_000_000_001)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, limitIDs)

	// 低一个最小刻度：只有多头触发
	limitIDs, _, err = d.MatchEntry(1, 68_999_999_999)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, limitIDs)
}

func TestMatchEntry_StopOrders(t *testing.T) {
	d := setupTestDAO(t)

	// 停损入场方向与限价相反
	require.NoError(t, d.Upsert(mkTrade(1, func(tr *models.Trade) {
		tr.IsLimit = false // 多头突破单：market >= open_price
	})))

	limitIDs, stopIDs, err := d.MatchEntry(1, 69_000_000_001)
	require.NoError(t, err)
	assert.Empty(t, limitIDs)
	assert.Equal(t, []int64{1}, stopIDs)

	_, stopIDs, err = d.MatchEntry(1, 68_999_999_999)
	require.NoError(t, err)
	assert.Empty(t, stopIDs)
}

func TestMatchEntry_IgnoresOtherStatesAndAssets(t *testing.T) {
	d := setupTestDAO(t)

	require.NoError(t, d.Upsert(mkTrade(1, func(tr *models.Trade) {
		tr.State = models.StateOpen
	})))
	require.NoError(t, d.Upsert(mkTrade(2, func(tr *models.Trade) {
		tr.AssetID = 2
	})))

	limitIDs, stopIDs, err := d.MatchEntry(1, 69_000_000_000)
	require.NoError(t, err)
	assert.Empty(t, limitIDs)
	assert.Empty(t, stopIDs)
}

func TestMatchExits_StopLossPriority(t *testing.T) {
	d := setupTestDAO(t)

	// 多头持仓：SL 69000、TP 68000，市价 68500 同时满足两者
	require.NoError(t, d.Upsert(mkTrade(1, func(tr *models.Trade) {
		tr.State = models.StateOpen
		tr.StopLoss = 69_000_000_000
		tr.TakeProfit = 68_000_000_000
	})))

	slIDs, tpIDs, err := d.MatchExits(1, 68_500_000_000)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, slIDs)
	assert.Empty(t, tpIDs, "止损优先时不应再出现在止盈集合")
}

func TestMatchExits_ZeroDisabled(t *testing.T) {
	d := setupTestDAO(t)

	require.NoError(t, d.Upsert(mkTrade(1, func(tr *models.Trade) {
		tr.State = models.StateOpen
		tr.StopLoss = 0
		tr.TakeProfit = 0
	})))

	slIDs, tpIDs, err := d.MatchExits(1, 1)
	require.NoError(t, err)
	assert.Empty(t, slIDs)
	assert.Empty(t, tpIDs)
}

func TestMatchExits_Directions(t *testing.T) {
	d := setupTestDAO(t)

	// 多头止损：market <= stop_loss
	require.NoError(t, d.Upsert(mkTrade(1, func(tr *models.Trade) {
		tr.State = models.StateOpen
		tr.StopLoss = 68_000_000_000
	})))
	// 空头止盈：market <= take_profit 触发（价格下跌获利）
	require.NoError(t, d.Upsert(mkTrade(2, func(tr *models.Trade) {
		tr.Trader = "0xabc0000000000000000000000000000000000002"
		tr.State = models.StateOpen
		tr.IsLong = false
		tr.TakeProfit = 68_500_000_000
	})))

	slIDs, tpIDs, err := d.MatchExits(1, 68_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, slIDs)
	assert.Equal(t, []int64{2}, tpIDs)

	slIDs, tpIDs, err = d.MatchExits(1, 68_600_000_000)
	require.NoError(t, err)
	assert.Empty(t, slIDs)
	assert.Empty(t, tpIDs)
}

func TestPatch_SLTP(t *testing.T) {
	d := setupTestDAO(t)

	require.NoError(t, d.Upsert(mkTrade(1, func(tr *models.Trade) {
		tr.State = models.StateOpen
	})))

	sl := int64(67_000_000_000)
	tp := int64(72_000_000_000)
	require.NoError(t, d.Patch(1, &TradePatch{StopLoss: &sl, TakeProfit: &tp}))

	got, err := d.Get(1)
	require.NoError(t, err)
	assert.Equal(t, sl, got.StopLoss)
	assert.Equal(t, tp, got.TakeProfit)
	assert.Equal(t, models.StateOpen, got.State, "状态不应被波及")
}

func TestPatch_CloseAutoFillsLotSize(t *testing.T) {
	d := setupTestDAO(t)

	require.NoError(t, d.Upsert(mkTrade(1, func(tr *models.Trade) {
		tr.State = models.StateOpen
		tr.LotSize = 100
	})))

	closed := models.StateClosed
	price := int64(70_000_000_000)
	require.NoError(t, d.Patch(1, &TradePatch{State: &closed, ClosePrice: &price}))

	got, err := d.Get(1)
	require.NoError(t, err)
	assert.Equal(t, models.StateClosed, got.State)
	assert.Equal(t, int64(100), got.ClosedLotSize, "全量平仓回填 lot_size")
}

func TestPatch_CloseWithoutPrice(t *testing.T) {
	d := setupTestDAO(t)

	require.NoError(t, d.Upsert(mkTrade(1, func(tr *models.Trade) {
		tr.State = models.StateOpen
	})))

	closed := models.StateClosed
	err := d.Patch(1, &TradePatch{State: &closed})
	assert.ErrorIs(t, err, ErrCloseWithoutPrice)
}

func TestBatchUpsert_TooLarge(t *testing.T) {
	d := setupTestDAO(t)

	trades := make([]*models.Trade, MaxBatchUpsert+1)
	for i := range trades {
		trades[i] = mkTrade(int64(i + 1))
	}
	assert.ErrorIs(t, d.BatchUpsert(trades), ErrBatchTooLarge)
}

func TestBatchPatchStates_ChangedCount(t *testing.T) {
	d := setupTestDAO(t)

	require.NoError(t, d.Upsert(mkTrade(1)))
	require.NoError(t, d.Upsert(mkTrade(2)))

	// 一条真实变更 + 一条无变化
	changed, err := d.BatchPatchStates([]models.StatePatch{
		{ID: 1, State: models.StateOpen},
		{ID: 2, State: models.StateOrder},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)

	// 重放同一批：全部已是目标值，变更数为 0
	changed, err = d.BatchPatchStates([]models.StatePatch{
		{ID: 1, State: models.StateOpen},
		{ID: 2, State: models.StateOrder},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), changed)
}

func TestBatchPatchStates_CloseWithoutPrice(t *testing.T) {
	d := setupTestDAO(t)

	require.NoError(t, d.Upsert(mkTrade(1, func(tr *models.Trade) {
		tr.State = models.StateOpen
	})))

	_, err := d.BatchPatchStates([]models.StatePatch{
		{ID: 1, State: models.StateClosed, ClosePrice: 0},
	})
	assert.ErrorIs(t, err, ErrCloseWithoutPrice)
}

func TestBatchPatchSLTP_ChangedCount(t *testing.T) {
	d := setupTestDAO(t)

	require.NoError(t, d.Upsert(mkTrade(1, func(tr *models.Trade) {
		tr.State = models.StateOpen
		tr.StopLoss = 67_000_000_000
	})))
	require.NoError(t, d.Upsert(mkTrade(2, func(tr *models.Trade) {
		tr.Trader = "0xabc0000000000000000000000000000000000002"
		tr.State = models.StateOpen
	})))

	changed, err := d.BatchPatchSLTP([]models.SLTPPatch{
		{ID: 1, StopLoss: 67_000_000_000, TakeProfit: 0}, // 无变化
		{ID: 2, StopLoss: 66_000_000_000, TakeProfit: 71_000_000_000},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)

	got, err := d.Get(2)
	require.NoError(t, err)
	assert.Equal(t, int64(66_000_000_000), got.StopLoss)
	assert.Equal(t, int64(71_000_000_000), got.TakeProfit)
}

func TestListIDsByTrader(t *testing.T) {
	d := setupTestDAO(t)

	trader := "0xabc0000000000000000000000000000000000001"
	require.NoError(t, d.Upsert(mkTrade(1)))
	require.NoError(t, d.Upsert(mkTrade(3, func(tr *models.Trade) {
		tr.State = models.StateOpen
	})))
	require.NoError(t, d.Upsert(mkTrade(2, func(tr *models.Trade) {
		tr.Trader = "0xabc0000000000000000000000000000000000002"
	})))

	ids, err := d.ListIDsByTrader(trader, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1}, ids, "id 降序")

	open := models.StateOpen
	ids, err = d.ListIDsByTrader(trader, &open)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, ids)
}

func TestExistingIDsAndSnapshots(t *testing.T) {
	d := setupTestDAO(t)

	require.NoError(t, d.Upsert(mkTrade(1, func(tr *models.Trade) {
		tr.State = models.StateOpen
		tr.StopLoss = 67_000_000_000
	})))

	existing, err := d.ExistingIDs([]int64{1, 2, 3})
	require.NoError(t, err)
	assert.Len(t, existing, 1)
	assert.Contains(t, existing, int64(1))

	states, err := d.GetStates([]int64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, map[int64]models.TradeState{1: models.StateOpen}, states)

	sltp, err := d.GetSLTP([]int64{1})
	require.NoError(t, err)
	assert.Equal(t, int64(67_000_000_000), sltp[1].StopLoss)
}

func TestDeleteTerminalBefore(t *testing.T) {
	d := setupTestDAO(t)

	require.NoError(t, d.Upsert(mkTrade(1, func(tr *models.Trade) {
		tr.State = models.StateClosed
		tr.ClosePrice = 70_000_000_000
	})))
	require.NoError(t, d.Upsert(mkTrade(2, func(tr *models.Trade) {
		tr.State = models.StateOpen
	})))

	deleted, err := d.DeleteTerminalBefore(time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	// 活跃交易不清理
	_, err = d.Get(2)
	assert.NoError(t, err)
	_, err = d.Get(1)
	assert.True(t, IsNotFound(err))
}
