package monitor

// 便捷函数供外部调用，无需访问 Metrics 实例

// IncTickReceived 增加行情接收计数
func IncTickReceived() {
	GetMetrics().IncTickReceived()
}

// IncTickParseError 增加行情解析失败计数
func IncTickParseError() {
	GetMetrics().IncTickParseError()
}

// IncMatch 增加匹配候选计数
func IncMatch(kind string) {
	GetMetrics().IncMatch(kind)
}

// IncExecution 增加执行计数
func IncExecution(kind, status string) {
	GetMetrics().IncExecution(kind, status)
}

// IncExecutionSkip 增加执行跳过计数
func IncExecutionSkip(reason string) {
	GetMetrics().IncExecutionSkip(reason)
}

// ObserveWalletWait 观察钱包取用等待耗时
func ObserveWalletWait(seconds float64) {
	GetMetrics().ObserveWalletWait(seconds)
}

// IncProofRequest 增加证明请求计数
func IncProofRequest(shape, status string) {
	GetMetrics().IncProofRequest(shape, status)
}

// IncLedgerCall 增加账本调用计数
func IncLedgerCall(method, status string) {
	GetMetrics().IncLedgerCall(method, status)
}

// IncResyncEnqueued 增加对账入队计数
func IncResyncEnqueued() {
	GetMetrics().IncResyncEnqueued()
}

// IncResyncFlush 增加对账 flush 计数
func IncResyncFlush() {
	GetMetrics().IncResyncFlush()
}

// ObserveResyncBatchSize 观察对账批量大小
func ObserveResyncBatchSize(n int) {
	GetMetrics().ObserveResyncBatchSize(n)
}

// IncCacheHit 增加缓存命中计数
func IncCacheHit(cacheType string) {
	GetMetrics().IncCacheHit(cacheType)
}

// IncCacheMiss 增加缓存未命中计数
func IncCacheMiss(cacheType string) {
	GetMetrics().IncCacheMiss(cacheType)
}

// SetWSConnected 设置行情连接状态
func SetWSConnected(up bool) {
	GetMetrics().SetWSConnected(up)
}

// SetNATSConnected 设置 NATS 连接状态
func SetNATSConnected(up bool) {
	GetMetrics().SetNATSConnected(up)
}
