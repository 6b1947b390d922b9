package ledger

import (
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/tidwall/gjson"

	"github.com/perpflow/perpflow-keeper/internal/monitor"
	"github.com/perpflow/perpflow-keeper/pkg/logger"
)

// TradeEventHandler 链上交易事件回调
type TradeEventHandler func(tradeID int64, code int64)

// EventSubscriber 链上交易事件订阅器
// 事件桥把核心合约事件（tradeId + code）转发到 NATS，
// 用于独立于行情触发对账
type EventSubscriber struct {
	*nats.Conn
	sub    *nats.Subscription
	mu     sync.RWMutex
	closed bool
}

// NewEventSubscriber 创建事件订阅器
func NewEventSubscriber(url string) (*EventSubscriber, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}

	s := &EventSubscriber{
		Conn: conn,
	}

	// 更新指标
	monitor.GetMetrics().SetNATSConnected(true)

	return s, nil
}

// Subscribe 订阅交易事件主题
func (s *EventSubscriber) Subscribe(subject string, handler TradeEventHandler) error {
	sub, err := s.Conn.Subscribe(subject, func(msg *nats.Msg) {
		tradeID := gjson.GetBytes(msg.Data, "trade_id").Int()
		code := gjson.GetBytes(msg.Data, "code").Int()
		if tradeID <= 0 {
			logger.Warn().Str("subject", subject).Str("data", string(msg.Data)).
				Msg("trade event without valid trade_id, dropped")
			return
		}
		handler(tradeID, code)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()

	logger.Info().Str("subject", subject).Msg("trade event subscription started")
	return nil
}

// IsConnected 检查订阅器是否已连接
func (s *EventSubscriber) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed && s.Conn != nil && !s.Conn.IsClosed()
}

// Close 关闭连接
func (s *EventSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true

	// 更新指标
	monitor.GetMetrics().SetNATSConnected(false)

	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	if s.Conn != nil {
		s.Conn.Close()
	}
	return nil
}
