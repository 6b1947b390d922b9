package executor

import (
	"context"
	"math/big"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/perpflow/perpflow-keeper/internal/cache"
	"github.com/perpflow/perpflow-keeper/internal/dao"
	"github.com/perpflow/perpflow-keeper/internal/feed"
	"github.com/perpflow/perpflow-keeper/internal/monitor"
	"github.com/perpflow/perpflow-keeper/pkg/fixedpoint"
	"github.com/perpflow/perpflow-keeper/pkg/logger"
)

// ProofProvider 价格证明提供方
type ProofProvider interface {
	GetProof(ctx context.Context, assetIndexes []int64) (string, error)
}

// LedgerExecutor 账本提交路径
type LedgerExecutor interface {
	ExecuteOrder(ctx context.Context, tradeID int64, proof, signer string) (string, error)
	ExecuteStopClose(ctx context.Context, tradeID int64, proof, signer string) (string, error)
}

// WalletProvider 签名钱包取用
type WalletProvider interface {
	Acquire(ctx context.Context) (string, error)
}

// Enqueuer 对账入队
type Enqueuer interface {
	Enqueue(id int64)
}

// Config 编排器配置
type Config struct {
	DedupWindow     time.Duration // 去重窗口（默认 15s）
	DispatchStagger time.Duration // 同一 tick 内候选分发间隔（默认 5ms）
	PoolSize        int           // 执行协程池大小
}

// Orchestrator 执行编排器
// 行情 tick → 撮合查询 → 去重/准入 → 钱包 → 证明 → 链上提交；
// 失败的尝试只入队对账，不原地重试——下一个满足条件的 tick
// 或修复后的本地状态决定是否再试。
// 各尝试相互独立，单笔失败不影响同 tick 的其他候选
type Orchestrator struct {
	tradeDAO  *dao.TradeDAO
	wallets   WalletProvider
	proofs    ProofProvider
	ledger    LedgerExecutor
	liquidity *cache.LiquidityCache
	dedup     *cache.DedupCache
	prices    *cache.PriceCache
	queue     Enqueuer
	pool      *ants.Pool
	stagger   time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewOrchestrator 创建执行编排器
func NewOrchestrator(
	tradeDAO *dao.TradeDAO,
	wallets WalletProvider,
	proofs ProofProvider,
	ledgerExec LedgerExecutor,
	liquidity *cache.LiquidityCache,
	queue Enqueuer,
	cfg Config,
) (*Orchestrator, error) {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 256
	}
	if cfg.DispatchStagger <= 0 {
		cfg.DispatchStagger = 5 * time.Millisecond
	}

	pool, err := ants.NewPool(cfg.PoolSize)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		tradeDAO:  tradeDAO,
		wallets:   wallets,
		proofs:    proofs,
		ledger:    ledgerExec,
		liquidity: liquidity,
		dedup:     cache.NewDedupCache(cfg.DedupWindow),
		prices:    cache.NewPriceCache(),
		queue:     queue,
		pool:      pool,
		stagger:   cfg.DispatchStagger,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// OnTick 处理一条行情
// 价格解析失败直接丢弃该 tick
func (o *Orchestrator) OnTick(tick feed.MarketTick) {
	priceE6, err := fixedpoint.ToE6(tick.RawPrice)
	if err != nil {
		monitor.IncTickParseError()
		logger.Debug().Err(err).Int64("asset", tick.AssetID).Str("raw", tick.RawPrice).
			Msg("tick price parse failed, dropped")
		return
	}

	o.prices.Set(tick.AssetID, priceE6)

	limitIDs, stopIDs, err := o.tradeDAO.MatchEntry(tick.AssetID, priceE6)
	if err != nil {
		logger.Error().Err(err).Int64("asset", tick.AssetID).Msg("entry match query failed")
		return
	}
	slIDs, tpIDs, err := o.tradeDAO.MatchExits(tick.AssetID, priceE6)
	if err != nil {
		logger.Error().Err(err).Int64("asset", tick.AssetID).Msg("exit match query failed")
		return
	}

	if n := len(limitIDs); n > 0 {
		monitor.GetMetrics().IncMatch("limit")
	}
	if n := len(stopIDs); n > 0 {
		monitor.GetMetrics().IncMatch("stop")
	}
	if n := len(slIDs); n > 0 {
		monitor.GetMetrics().IncMatch("stop_loss")
	}
	if n := len(tpIDs); n > 0 {
		monitor.GetMetrics().IncMatch("take_profit")
	}

	// 分发间隔 5ms，避免同一 tick 的候选挤爆钱包调度与下游服务
	for _, id := range append(limitIDs, stopIDs...) {
		o.dispatch(cache.KindEntry, id, tick.AssetID)
		time.Sleep(o.stagger)
	}
	for _, id := range append(slIDs, tpIDs...) {
		o.dispatch(cache.KindExit, id, tick.AssetID)
		time.Sleep(o.stagger)
	}
}

// dispatch 异步派发一次执行尝试，错误在尝试内部消化
func (o *Orchestrator) dispatch(kind cache.ExecKind, tradeID, assetID int64) {
	err := o.pool.Submit(func() {
		o.attempt(kind, tradeID, assetID)
	})
	if err != nil {
		logger.Error().Err(err).Int64("trade", tradeID).Msg("attempt dispatch failed")
	}
}

// attempt 单次执行尝试
func (o *Orchestrator) attempt(kind cache.ExecKind, tradeID, assetID int64) {
	// 1. 去重：原子占位，窗口期内已占位过则静默跳过
	// 并发尝试同一 (kind, tradeId) 时只有一个能占到位
	if !o.dedup.TryMark(kind, tradeID) {
		monitor.IncExecutionSkip("dedup")
		return
	}

	// 2. 准入检查（仅入场）
	if kind == cache.KindEntry && !o.admit(tradeID) {
		return
	}

	// 3. 取签名钱包（可能挂起）
	waitStart := time.Now()
	signer, err := o.wallets.Acquire(o.ctx)
	if err != nil {
		o.fail(kind, tradeID, err, "wallet acquire failed")
		return
	}
	monitor.ObserveWalletWait(time.Since(waitStart).Seconds())

	// 4. 取价格证明
	proof, err := o.proofs.GetProof(o.ctx, []int64{assetID})
	if err != nil {
		o.fail(kind, tradeID, err, "proof fetch failed")
		return
	}

	// 5. 链上提交并等待确认
	var hash string
	if kind == cache.KindEntry {
		hash, err = o.ledger.ExecuteOrder(o.ctx, tradeID, proof, signer)
	} else {
		hash, err = o.ledger.ExecuteStopClose(o.ctx, tradeID, proof, signer)
	}
	if err != nil {
		o.fail(kind, tradeID, err, "ledger submit failed")
		return
	}

	monitor.IncExecution(string(kind), "confirmed")
	if kind == cache.KindEntry {
		// 入场占用了池内资金，缓存值已失真，下次准入强制重读
		o.liquidity.Invalidate()
	}
	logger.Info().
		Str("kind", string(kind)).
		Int64("trade", tradeID).
		Str("tx", hash).
		Msg("execution confirmed")
}

// admit 入场准入：锁定资金为零说明本地记录已过期，
// 入队对账；池内可用资金不足属正常的可恢复状态，静默跳过
func (o *Orchestrator) admit(tradeID int64) bool {
	locked, err := o.tradeDAO.LockedCapital(tradeID)
	if err != nil {
		logger.Warn().Err(err).Int64("trade", tradeID).Msg("locked capital read failed")
		monitor.IncExecutionSkip("stale_capital")
		o.queue.Enqueue(tradeID)
		return false
	}

	lockedBig, ok := new(big.Int).SetString(locked, 10)
	if !ok || lockedBig.Sign() == 0 {
		monitor.IncExecutionSkip("stale_capital")
		o.queue.Enqueue(tradeID)
		return false
	}

	free, err := o.liquidity.FreeCapital(o.ctx)
	if err != nil {
		// 瞬时读失败交给下一个 tick，不入队也不紧循环重试
		logger.Warn().Err(err).Msg("free capital read failed, attempt skipped")
		monitor.IncExecutionSkip("liquidity_unavailable")
		return false
	}

	if free.Cmp(lockedBig) < 0 {
		monitor.IncExecutionSkip("insufficient_liquidity")
		return false
	}

	return true
}

// fail 失败统一处理：记日志 + 入队对账，不原地重试
func (o *Orchestrator) fail(kind cache.ExecKind, tradeID int64, err error, msg string) {
	monitor.IncExecution(string(kind), "failed")
	logger.Error().Err(err).Str("kind", string(kind)).Int64("trade", tradeID).Msg(msg)
	o.queue.Enqueue(tradeID)
}

// PriceCache 暴露给状态页
func (o *Orchestrator) PriceCache() *cache.PriceCache {
	return o.prices
}

// GetStats 统计信息
func (o *Orchestrator) GetStats() map[string]any {
	return map[string]any{
		"dedup":        o.dedup.Stats(),
		"prices":       o.prices.Stats(),
		"pool_running": o.pool.Running(),
		"pool_free":    o.pool.Free(),
	}
}

// Close 关闭编排器
func (o *Orchestrator) Close() {
	o.cancel()
	o.pool.Release()
}
