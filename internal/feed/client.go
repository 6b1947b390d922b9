package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cast"
	"github.com/tidwall/gjson"

	"github.com/perpflow/perpflow-keeper/internal/monitor"
	"github.com/perpflow/perpflow-keeper/pkg/goplus"
	"github.com/perpflow/perpflow-keeper/pkg/logger"
)

const (
	writeWait      = 10 * time.Second // 写入超时
	pongWait       = 60 * time.Second // 读取超时（应大于心跳间隔）
	pingPeriod     = 50 * time.Second // 心跳间隔
	maxMessageSize = 1024 * 1024 * 2  // 最大消息限制 2MB

	reconnectBase = time.Second      // 重连退避起点
	reconnectMax  = 30 * time.Second // 重连退避上限
)

// Client 行情 WebSocket 客户端
// 断线自动重连，收到的价格消息解析为 MarketTick 后回调
type Client struct {
	url     string
	conn    *websocket.Conn
	mu      sync.RWMutex
	writeMu sync.Mutex

	// 状态控制
	done         chan struct{}
	closeOnce    sync.Once
	reconnecting bool

	onTick TickHandler
}

// NewClient 创建行情客户端
func NewClient(url string, onTick TickHandler) *Client {
	if url == "" {
		panic("feed: URL cannot be empty")
	}
	return &Client{
		url:    url,
		done:   make(chan struct{}),
		onTick: onTick,
	}
}

// Start 建立连接并维持重连循环
func (c *Client) Start(ctx context.Context) error {
	if err := c.connect(ctx); err != nil {
		return err
	}

	goplus.Go(func() {
		c.reconnectLoop(ctx)
	})

	return nil
}

func (c *Client) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial error: %w", err)
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c.mu.Lock()
	c.conn = conn
	c.reconnecting = false
	c.mu.Unlock()

	monitor.SetWSConnected(true)

	// 监控 ctx 与 done，主动关闭连接解除 ReadMessage 阻塞
	goplus.Go(func() {
		select {
		case <-ctx.Done():
		case <-c.done:
		}
		c.internalClose()
	})

	goplus.Go(func() { c.readPump() })
	goplus.Go(func() { c.pingPump() })

	// 订阅全部资产价格频道
	if err = c.subscribePrices(); err != nil {
		c.internalClose()
		return err
	}

	logger.Info().Str("url", c.url).Msg("price feed connected")
	return nil
}

// reconnectLoop 断线后指数退避重连
func (c *Client) reconnectLoop(ctx context.Context) {
	backoff := reconnectBase
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.IsConnected() {
				backoff = reconnectBase
				continue
			}

			c.mu.Lock()
			c.reconnecting = true
			c.mu.Unlock()

			logger.Warn().Dur("backoff", backoff).Msg("price feed disconnected, reconnecting")
			time.Sleep(backoff)
			if err := c.connect(ctx); err != nil {
				logger.Error().Err(err).Msg("price feed reconnect failed")
				backoff *= 2
				if backoff > reconnectMax {
					backoff = reconnectMax
				}
			}
		}
	}
}

// internalClose 内部关闭方法，不触发通知逻辑
func (c *Client) internalClose() {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
	monitor.SetWSConnected(false)
}

// Close 关闭客户端
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.internalClose()
	})
	return nil
}

// IsConnected 是否已连接
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// IsReconnecting 是否正在重连
func (c *Client) IsReconnecting() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reconnecting
}

func (c *Client) readPump() {
	defer c.internalClose()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		if conn == nil {
			return
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error().Err(err).Msg("feed read error")
			}
			return
		}

		// 每次读取成功，刷新 ReadDeadline
		conn.SetReadDeadline(time.Now().Add(pongWait))

		c.handleMessage(msg)
	}
}

// handleMessage 解析价格消息
// 形如 {"channel":"prices","data":{"asset_id":1,"price":"69000.5"}}
func (c *Client) handleMessage(msg []byte) {
	if gjson.GetBytes(msg, "channel").String() != "prices" {
		return
	}

	data := gjson.GetBytes(msg, "data")
	assetID := data.Get("asset_id").Int()
	price := data.Get("price")
	if assetID <= 0 || !price.Exists() {
		logger.Warn().Str("msg", string(msg)).Msg("malformed price message, dropped")
		return
	}

	monitor.IncTickReceived()

	if c.onTick != nil {
		c.onTick(MarketTick{
			AssetID:    assetID,
			RawPrice:   cast.ToString(price.Value()),
			ReceivedAt: time.Now(),
		})
	}
}

func (c *Client) pingPump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

func (c *Client) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("connection closed")
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))

	// 标准 Ping 帧 + 业务层 Ping
	if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		return err
	}
	return conn.WriteJSON(map[string]string{"method": "ping"})
}

func (c *Client) subscribePrices() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("connection closed")
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(map[string]any{
		"method":       "subscribe",
		"subscription": map[string]string{"channel": "prices"},
	})
}
