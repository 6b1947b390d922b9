package cleaner

import (
	"time"

	"github.com/perpflow/perpflow-keeper/internal/dao"
	"github.com/perpflow/perpflow-keeper/pkg/logger"
)

// Cleaner 数据清理器，定时清理历史数据
// 只删终态（Closed/Cancelled）交易，活跃交易永不清理
type Cleaner struct {
	retention time.Duration // 终态交易保留时长
	interval  time.Duration // 清理间隔
	done      chan struct{} // 停止信号
}

// NewCleaner 创建清理器
func NewCleaner(retention time.Duration) *Cleaner {
	return &Cleaner{
		retention: retention,
		interval:  1 * time.Hour, // 固定 1 小时
		done:      make(chan struct{}),
	}
}

// Start 启动清理任务
func (c *Cleaner) Start() {
	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		logger.Info().Dur("retention", c.retention).Msg("cleaner started")

		// 启动时立即执行一次
		c.clean()

		for {
			select {
			case <-ticker.C:
				c.clean()
			case <-c.done:
				logger.Info().Msg("cleaner stopped")
				return
			}
		}
	}()
}

// Stop 停止清理器
func (c *Cleaner) Stop() {
	close(c.done)
}

// clean 执行清理任务
func (c *Cleaner) clean() {
	cutoff := time.Now().Add(-c.retention)
	deleted, err := dao.Trade().DeleteTerminalBefore(cutoff)
	if err != nil {
		logger.Error().Err(err).Msg("clean terminal trades failed")
		return
	}

	if deleted > 0 {
		logger.Info().
			Int64("deleted", deleted).
			Time("cutoff", cutoff).
			Msg("cleaned terminal trades")
	}
}
