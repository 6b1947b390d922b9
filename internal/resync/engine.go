package resync

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/perpflow/perpflow-keeper/internal/dao"
	"github.com/perpflow/perpflow-keeper/internal/ledger"
	"github.com/perpflow/perpflow-keeper/internal/models"
	"github.com/perpflow/perpflow-keeper/pkg/logger"
)

// LedgerReader 对账所需的账本读路径
type LedgerReader interface {
	MaxTradeID(ctx context.Context) (int64, error)
	FetchTrades(ctx context.Context, ids []int64) ([]*models.Trade, error)
	FetchSLTP(ctx context.Context, ids []int64) (map[int64]ledger.SLTPValue, error)
	FetchStates(ctx context.Context, ids []int64) (map[int64]models.TradeState, error)
}

// Engine 对账引擎
// 链上状态是权威：full 模式整条覆盖本地；sltp/states 模式对本地
// 缺失但 id 在有效范围内的记录一律升级 full（链上必然存在，缺失
// 属于正确性缺口）；状态有出入时也升级 full，绝不单独补状态——
// 状态变化与 close_price 等字段强相关，单补会留下脏数据
type Engine struct {
	reader      LedgerReader
	tradeDAO    *dao.TradeDAO
	batchSize   int
	concurrency int
}

// NewEngine 创建对账引擎
// batchSize: 单批 id 数（默认 50）
// concurrency: 同时处理的批次数（默认 20）
func NewEngine(reader LedgerReader, tradeDAO *dao.TradeDAO, batchSize, concurrency int) *Engine {
	if batchSize <= 0 {
		batchSize = 50
	}
	if concurrency <= 0 {
		concurrency = 20
	}
	return &Engine{
		reader:      reader,
		tradeDAO:    tradeDAO,
		batchSize:   batchSize,
		concurrency: concurrency,
	}
}

// SyncFull 全量模式：拉取完整记录并无条件覆盖本地（不存在则插入）
func (e *Engine) SyncFull(ctx context.Context, ids []int64) error {
	return e.run(ctx, ids, e.fullBatch)
}

// SyncSLTP 止损/止盈模式：本地缺失或状态已变的升级 full，其余只补差异值
func (e *Engine) SyncSLTP(ctx context.Context, ids []int64) error {
	return e.run(ctx, ids, e.sltpBatch)
}

// SyncStates 状态模式：本地缺失或状态有出入的整条重拉
func (e *Engine) SyncStates(ctx context.Context, ids []int64) error {
	return e.run(ctx, ids, e.statesBatch)
}

// MissingScan 扫描 [start, end] 内本地缺失的 id 并 full 补齐
func (e *Engine) MissingScan(ctx context.Context, start, end int64) error {
	if start <= 0 || end < start {
		return fmt.Errorf("invalid scan range [%d, %d]", start, end)
	}
	ids := make([]int64, 0, end-start+1)
	for id := start; id <= end; id++ {
		ids = append(ids, id)
	}

	return e.run(ctx, ids, func(ctx context.Context, batch []int64, bound int64) error {
		existing, err := e.tradeDAO.ExistingIDs(batch)
		if err != nil {
			return err
		}
		missing := make([]int64, 0, len(batch))
		for _, id := range batch {
			if _, ok := existing[id]; !ok {
				missing = append(missing, id)
			}
		}
		if len(missing) == 0 {
			return nil
		}
		return e.fullBatch(ctx, missing, bound)
	})
}

type batchFunc func(ctx context.Context, batch []int64, bound int64) error

// run 公共骨架：取权威上界、裁掉不可能存在的 id、
// 固定批量 + 有界并发处理
func (e *Engine) run(ctx context.Context, ids []int64, fn batchFunc) error {
	if len(ids) == 0 {
		return nil
	}

	bound, err := e.reader.MaxTradeID(ctx)
	if err != nil {
		return fmt.Errorf("read max trade id: %w", err)
	}

	// 超过上界的 id 链上尚不存在，裁掉
	valid := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if id > bound {
			logger.Warn().Int64("id", id).Int64("bound", bound).
				Msg("trade id beyond ledger bound, skipped")
			continue
		}
		valid = append(valid, id)
	}
	if len(valid) == 0 {
		return nil
	}

	pool, err := ants.NewPool(e.concurrency)
	if err != nil {
		return err
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)

	for start := 0; start < len(valid); start += e.batchSize {
		end := start + e.batchSize
		if end > len(valid) {
			end = len(valid)
		}
		batch := valid[start:end]

		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if err := fn(ctx, batch, bound); err != nil {
				logger.Error().Err(err).Ints64("batch_head", batch[:min(3, len(batch))]).
					Msg("resync batch failed")
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
			}
		})
		if submitErr != nil {
			wg.Done()
			errMu.Lock()
			if firstErr == nil {
				firstErr = submitErr
			}
			errMu.Unlock()
		}
	}

	wg.Wait()
	return firstErr
}

// fullBatch 整条覆盖
func (e *Engine) fullBatch(ctx context.Context, batch []int64, _ int64) error {
	trades, err := e.reader.FetchTrades(ctx, batch)
	if err != nil {
		return err
	}
	if len(trades) == 0 {
		return nil
	}
	return e.tradeDAO.BatchUpsert(trades)
}

// sltpBatch 止损/止盈窄补丁
func (e *Engine) sltpBatch(ctx context.Context, batch []int64, bound int64) error {
	existing, err := e.tradeDAO.ExistingIDs(batch)
	if err != nil {
		return err
	}

	present := make([]int64, 0, len(batch))
	escalate := make([]int64, 0)
	for _, id := range batch {
		if _, ok := existing[id]; ok {
			present = append(present, id)
		} else {
			// 本地缺失但链上必然存在，升级 full
			escalate = append(escalate, id)
		}
	}

	// 状态已变的行不做窄补丁：止损/止盈只对仍处于原状态的
	// 记录有意义，状态漂移说明整条记录都可能失真，升级 full
	stable := present
	if len(present) > 0 {
		ocStates, err := e.reader.FetchStates(ctx, present)
		if err != nil {
			return err
		}
		locStates, err := e.tradeDAO.GetStates(present)
		if err != nil {
			return err
		}
		stable = make([]int64, 0, len(present))
		for _, id := range present {
			ocState, ok := ocStates[id]
			if ok && ocState != locStates[id] {
				escalate = append(escalate, id)
				continue
			}
			stable = append(stable, id)
		}
	}

	if len(escalate) > 0 {
		logger.Info().Int("count", len(escalate)).Msg("missing or drifted trades escalated to full resync")
		if err = e.fullBatch(ctx, escalate, bound); err != nil {
			return err
		}
	}
	if len(stable) == 0 {
		return nil
	}

	onchain, err := e.reader.FetchSLTP(ctx, stable)
	if err != nil {
		return err
	}
	local, err := e.tradeDAO.GetSLTP(stable)
	if err != nil {
		return err
	}

	patches := make([]models.SLTPPatch, 0, len(stable))
	for _, id := range stable {
		oc, ok := onchain[id]
		if !ok {
			continue
		}
		lc := local[id]
		if oc.StopLoss != lc.StopLoss || oc.TakeProfit != lc.TakeProfit {
			patches = append(patches, models.SLTPPatch{
				ID:         id,
				StopLoss:   oc.StopLoss,
				TakeProfit: oc.TakeProfit,
			})
		}
	}
	if len(patches) == 0 {
		return nil
	}

	changed, err := e.tradeDAO.BatchPatchSLTP(patches)
	if err != nil {
		return err
	}
	logger.Info().Int("patches", len(patches)).Int64("changed", changed).Msg("sltp resync applied")
	return nil
}

// statesBatch 状态核对：任何出入整条重拉
func (e *Engine) statesBatch(ctx context.Context, batch []int64, bound int64) error {
	existing, err := e.tradeDAO.ExistingIDs(batch)
	if err != nil {
		return err
	}

	present := make([]int64, 0, len(batch))
	escalate := make([]int64, 0)
	for _, id := range batch {
		if _, ok := existing[id]; ok {
			present = append(present, id)
		} else {
			escalate = append(escalate, id)
		}
	}

	if len(present) > 0 {
		onchain, err := e.reader.FetchStates(ctx, present)
		if err != nil {
			return err
		}
		local, err := e.tradeDAO.GetStates(present)
		if err != nil {
			return err
		}

		for _, id := range present {
			ocState, ok := onchain[id]
			if !ok {
				continue
			}
			if ocState != local[id] {
				escalate = append(escalate, id)
			}
		}
	}

	if len(escalate) == 0 {
		return nil
	}
	logger.Info().Int("count", len(escalate)).Msg("state drift escalated to full resync")
	return e.fullBatch(ctx, escalate, bound)
}
