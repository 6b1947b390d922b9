package wallet

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/perpflow/perpflow-keeper/pkg/logger"
)

// ErrNoSigners 未配置签名钱包，启动期致命错误
var ErrNoSigners = errors.New("no signer wallets configured")

// 全员占用时的最小等待，避免零间隔空转
const minWait = 10 * time.Millisecond

// lease 单个签名身份的占用状态
type lease struct {
	address     string
	availableAt time.Time
}

// Scheduler 签名钱包调度器
// 轮询游标保证公平，同一钱包两次取用间隔不小于 perWalletDelay，
// 从而串行化该签名者的链上提交顺序
type Scheduler struct {
	mu     sync.Mutex
	leases []*lease
	cursor int
	delay  time.Duration
}

// NewScheduler 创建调度器
// signers 为空时返回 ErrNoSigners（不可重试，应终止启动）
func NewScheduler(signers []string, perWalletDelay time.Duration) (*Scheduler, error) {
	if len(signers) == 0 {
		return nil, ErrNoSigners
	}
	if perWalletDelay <= 0 {
		perWalletDelay = time.Second
	}

	leases := make([]*lease, 0, len(signers))
	for _, s := range signers {
		leases = append(leases, &lease{address: s})
	}

	logger.Info().
		Int("signers", len(signers)).
		Dur("per_wallet_delay", perWalletDelay).
		Msg("wallet scheduler initialized")

	return &Scheduler{
		leases: leases,
		delay:  perWalletDelay,
	}, nil
}

// Acquire 取用一个可用签名钱包，全部被占用时挂起等待
// 返回钱包地址；ctx 取消时返回其错误
func (s *Scheduler) Acquire(ctx context.Context) (string, error) {
	for {
		addr, wait := s.tryAcquire()
		if addr != "" {
			return addr, nil
		}

		if wait < minWait {
			wait = minWait
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		}
	}
}

// tryAcquire 从游标位置轮询一圈，取第一个已到可用时间的钱包
// 无可用钱包时返回距最早可用的等待时长
func (s *Scheduler) tryAcquire() (string, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	n := len(s.leases)

	earliest := time.Duration(0)
	for i := 0; i < n; i++ {
		l := s.leases[(s.cursor+i)%n]
		if !l.availableAt.After(now) {
			l.availableAt = now.Add(s.delay)
			s.cursor = (s.cursor + i + 1) % n
			return l.address, 0
		}
		if d := l.availableAt.Sub(now); earliest == 0 || d < earliest {
			earliest = d
		}
	}

	return "", earliest
}

// Size 钱包数量
func (s *Scheduler) Size() int {
	return len(s.leases)
}

// Stats 统计信息
func (s *Scheduler) Stats() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	busy := 0
	for _, l := range s.leases {
		if l.availableAt.After(now) {
			busy++
		}
	}
	return map[string]any{
		"signers": len(s.leases),
		"busy":    busy,
	}
}
