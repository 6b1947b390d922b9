package monitor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 指标收集器
type Metrics struct {
	ticksReceived   prometheus.Counter
	tickParseErrors prometheus.Counter
	matchesTotal    *prometheus.CounterVec
	executionsTotal *prometheus.CounterVec
	executionSkips  *prometheus.CounterVec
	walletWaitSecs  prometheus.Histogram
	proofRequests   *prometheus.CounterVec
	ledgerCalls     *prometheus.CounterVec
	resyncEnqueued  prometheus.Counter
	resyncFlushes   prometheus.Counter
	resyncBatchSize prometheus.Histogram
	cacheHitTotal   *prometheus.CounterVec
	cacheMissTotal  *prometheus.CounterVec
	wsConnected     prometheus.Gauge
	natsConnected   prometheus.Gauge
}

// NewMetrics 创建指标收集器
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		ticksReceived: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ticks_received_total",
				Help:      "Total number of price ticks received",
			},
		),
		tickParseErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tick_parse_errors_total",
				Help:      "Total number of ticks dropped due to price parse failure",
			},
		),
		matchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "matches_total",
				Help:      "Total number of matched trade candidates",
			},
			[]string{"kind"}, // limit, stop, stop_loss, take_profit
		),
		executionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_total",
				Help:      "Total number of execution attempts",
			},
			[]string{"kind", "status"}, // entry/exit, confirmed/failed
		),
		executionSkips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "execution_skips_total",
				Help:      "Total number of skipped attempts",
			},
			[]string{"reason"}, // dedup, stale_capital, insufficient_liquidity
		),
		walletWaitSecs: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "wallet_wait_seconds",
				Help:      "签名钱包取用等待耗时分布（秒）",
				Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
		),
		proofRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "proof_requests_total",
				Help:      "证明服务请求总数（按形态与结果）",
			},
			[]string{"shape", "status"},
		),
		ledgerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_calls_total",
				Help:      "账本调用总数（按方法与结果）",
			},
			[]string{"method", "status"},
		),
		resyncEnqueued: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resync_enqueued_total",
				Help:      "进入对账队列的交易 id 总数",
			},
		),
		resyncFlushes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resync_flushes_total",
				Help:      "对账队列 flush 总次数",
			},
		),
		resyncBatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resync_batch_size",
				Help:      "单次 flush 覆盖的 id 数量分布",
				Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
			},
		),
		cacheHitTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hit_total",
				Help:      "缓存命中总数（按缓存类型）",
			},
			[]string{"cache_type"}, // proof, liquidity, dedup
		),
		cacheMissTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_miss_total",
				Help:      "缓存未命中总数（按缓存类型）",
			},
			[]string{"cache_type"},
		),
		wsConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_connected",
				Help:      "Price feed connection status (1=connected, 0=disconnected)",
			},
		),
		natsConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "nats_connected",
				Help:      "NATS connection status (1=connected, 0=disconnected)",
			},
		),
	}

	prometheus.MustRegister(
		m.ticksReceived,
		m.tickParseErrors,
		m.matchesTotal,
		m.executionsTotal,
		m.executionSkips,
		m.walletWaitSecs,
		m.proofRequests,
		m.ledgerCalls,
		m.resyncEnqueued,
		m.resyncFlushes,
		m.resyncBatchSize,
		m.cacheHitTotal,
		m.cacheMissTotal,
		m.wsConnected,
		m.natsConnected,
	)

	return m
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetMetrics 获取全局指标实例
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = NewMetrics("perpflow_keeper")
	})
	return metricsInstance
}

// InitMetrics 初始化全局指标（应用启动时调用）
func InitMetrics() {
	GetMetrics()
}

func (m *Metrics) IncTickReceived()          { m.ticksReceived.Inc() }
func (m *Metrics) IncTickParseError()        { m.tickParseErrors.Inc() }
func (m *Metrics) IncMatch(kind string)      { m.matchesTotal.WithLabelValues(kind).Inc() }
func (m *Metrics) ObserveWalletWait(s float64) { m.walletWaitSecs.Observe(s) }
func (m *Metrics) IncResyncEnqueued()        { m.resyncEnqueued.Inc() }
func (m *Metrics) IncResyncFlush()           { m.resyncFlushes.Inc() }
func (m *Metrics) ObserveResyncBatchSize(n int) { m.resyncBatchSize.Observe(float64(n)) }

func (m *Metrics) IncExecution(kind, status string) {
	m.executionsTotal.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) IncExecutionSkip(reason string) {
	m.executionSkips.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncProofRequest(shape, status string) {
	m.proofRequests.WithLabelValues(shape, status).Inc()
}

func (m *Metrics) IncLedgerCall(method, status string) {
	m.ledgerCalls.WithLabelValues(method, status).Inc()
}

func (m *Metrics) IncCacheHit(cacheType string) {
	m.cacheHitTotal.WithLabelValues(cacheType).Inc()
}

func (m *Metrics) IncCacheMiss(cacheType string) {
	m.cacheMissTotal.WithLabelValues(cacheType).Inc()
}

func (m *Metrics) SetWSConnected(up bool) {
	if up {
		m.wsConnected.Set(1)
	} else {
		m.wsConnected.Set(0)
	}
}

func (m *Metrics) SetNATSConnected(up bool) {
	if up {
		m.natsConnected.Set(1)
	} else {
		m.natsConnected.Set(0)
	}
}
