package resync

import (
	"sync"
	"time"

	"github.com/perpflow/perpflow-keeper/internal/monitor"
	"github.com/perpflow/perpflow-keeper/pkg/goplus"
	"github.com/perpflow/perpflow-keeper/pkg/logger"
)

// FlushFunc 批量对账回调，入参为本次排空的全部交易 id
type FlushFunc func(ids []int64)

// Queue 防抖批量对账队列
// 入队只进待处理集合，首个 id 启动一次防抖定时器；
// 许多 id 在短窗口内涌入时合并为一次 flush，摊薄修复成本。
// flush 单飞：上一次未结束时到期则顺延，绝不并发重叠。
// 队列不持久化——对账幂等，崩溃丢失的 id 会被后续 tick/事件重新入队
type Queue struct {
	mu       sync.Mutex
	pending  map[int64]struct{}
	timer    *time.Timer
	inFlight bool
	delay    time.Duration
	flush    FlushFunc
}

// NewQueue 创建对账队列
// delay: 防抖延迟（默认 1 秒）
func NewQueue(delay time.Duration, flush FlushFunc) *Queue {
	if delay <= 0 {
		delay = time.Second
	}
	return &Queue{
		pending: make(map[int64]struct{}),
		delay:   delay,
		flush:   flush,
	}
}

// Enqueue 将交易 id 加入待对账集合
func (q *Queue) Enqueue(id int64) {
	if id <= 0 {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending[id] = struct{}{}
	monitor.IncResyncEnqueued()

	if q.timer == nil {
		q.timer = time.AfterFunc(q.delay, q.fire)
	}
}

// PendingCount 当前待处理 id 数量
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// fire 定时器到期触发
func (q *Queue) fire() {
	q.mu.Lock()

	// flush 进行中则顺延，保持单飞
	if q.inFlight {
		q.timer = time.AfterFunc(q.delay, q.fire)
		q.mu.Unlock()
		return
	}

	ids := make([]int64, 0, len(q.pending))
	for id := range q.pending {
		ids = append(ids, id)
	}
	q.pending = make(map[int64]struct{})
	q.timer = nil
	q.inFlight = true
	q.mu.Unlock()

	if len(ids) == 0 {
		q.mu.Lock()
		q.inFlight = false
		q.mu.Unlock()
		return
	}

	goplus.Go(func() {
		monitor.IncResyncFlush()
		monitor.ObserveResyncBatchSize(len(ids))
		logger.Info().Int("count", len(ids)).Msg("resync flush started")

		q.flush(ids)

		q.mu.Lock()
		q.inFlight = false
		// flush 期间又有新 id 到达，立即再排一次
		if len(q.pending) > 0 && q.timer == nil {
			q.timer = time.AfterFunc(0, q.fire)
		}
		q.mu.Unlock()
	})
}
