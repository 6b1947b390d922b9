package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/perpflow/perpflow-keeper/internal/models"
	"github.com/perpflow/perpflow-keeper/internal/monitor"
	"github.com/perpflow/perpflow-keeper/pkg/logger"
)

// 核心合约入口函数名
const (
	fnMaxTradeID    = "trading::max_trade_id"
	fnFreeCapital   = "vault::free_capital"
	fnAssetExposure = "vault::asset_exposure"
	fnGetTrades     = "trading::get_trades"
	fnGetSLTP       = "trading::get_trades_sltp"
	fnGetStates     = "trading::get_trades_state"
	fnExecuteOrder  = "trading::execute_limit_order"
	fnExecuteClose  = "trading::execute_trade_close"
)

// Client 账本节点客户端
// 视图调用走 /v1/view，交易提交走 /v1/transactions，
// 提交后轮询确认，确认等待有界（confirmTimeout）
type Client struct {
	nodeURL        string
	coreAddress    string
	httpClient     *http.Client
	requestTimeout time.Duration
	confirmTimeout time.Duration
}

// NewClient 创建账本客户端
func NewClient(nodeURL, coreAddress string, requestTimeout, confirmTimeout time.Duration) *Client {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	if confirmTimeout <= 0 {
		confirmTimeout = 30 * time.Second
	}
	return &Client{
		nodeURL:        strings.TrimRight(nodeURL, "/"),
		coreAddress:    coreAddress,
		httpClient:     new(http.Client),
		requestTimeout: requestTimeout,
		confirmTimeout: confirmTimeout,
	}
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.nodeURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("node status %d: %s", resp.StatusCode, body)
	}
	return body, nil
}

// view 调用合约只读函数
func (c *Client) view(ctx context.Context, fn string, args ...any) (gjson.Result, error) {
	if args == nil {
		args = []any{}
	}
	body, err := c.post(ctx, "/v1/view", map[string]any{
		"function":  c.coreAddress + "::" + fn,
		"arguments": args,
	})
	if err != nil {
		monitor.IncLedgerCall(fn, "error")
		return gjson.Result{}, err
	}
	monitor.IncLedgerCall(fn, "ok")
	return gjson.GetBytes(body, "result"), nil
}

// MaxTradeID 读取已分配的最大交易 id（单调递增计数器）
func (c *Client) MaxTradeID(ctx context.Context) (int64, error) {
	res, err := c.view(ctx, fnMaxTradeID)
	if err != nil {
		return 0, err
	}
	return res.Int(), nil
}

// FreeCapital 读取流动性池当前可用资金
func (c *Client) FreeCapital(ctx context.Context) (*big.Int, error) {
	res, err := c.view(ctx, fnFreeCapital)
	if err != nil {
		return nil, err
	}
	v, ok := new(big.Int).SetString(res.String(), 10)
	if !ok {
		return nil, fmt.Errorf("invalid free capital %q", res.String())
	}
	return v, nil
}

// AssetExposure 读取单资产敞口/锁定资金聚合
func (c *Client) AssetExposure(ctx context.Context, assetID int64) (*big.Int, error) {
	res, err := c.view(ctx, fnAssetExposure, assetID)
	if err != nil {
		return nil, err
	}
	v, ok := new(big.Int).SetString(res.String(), 10)
	if !ok {
		return nil, fmt.Errorf("invalid exposure %q", res.String())
	}
	return v, nil
}

// FetchTrades 拉取完整交易记录（权威数据）
func (c *Client) FetchTrades(ctx context.Context, ids []int64) ([]*models.Trade, error) {
	res, err := c.view(ctx, fnGetTrades, ids)
	if err != nil {
		return nil, err
	}

	trades := make([]*models.Trade, 0, len(ids))
	for _, item := range res.Array() {
		trades = append(trades, parseTrade(item))
	}
	return trades, nil
}

// SLTPValue 链上止损/止盈
type SLTPValue struct {
	ID         int64
	StopLoss   int64
	TakeProfit int64
}

// FetchSLTP 拉取止损/止盈当前值
func (c *Client) FetchSLTP(ctx context.Context, ids []int64) (map[int64]SLTPValue, error) {
	res, err := c.view(ctx, fnGetSLTP, ids)
	if err != nil {
		return nil, err
	}

	out := make(map[int64]SLTPValue, len(ids))
	for _, item := range res.Array() {
		id := item.Get("id").Int()
		out[id] = SLTPValue{
			ID:         id,
			StopLoss:   item.Get("stop_loss").Int(),
			TakeProfit: item.Get("take_profit").Int(),
		}
	}
	return out, nil
}

// FetchStates 拉取生命周期状态
func (c *Client) FetchStates(ctx context.Context, ids []int64) (map[int64]models.TradeState, error) {
	res, err := c.view(ctx, fnGetStates, ids)
	if err != nil {
		return nil, err
	}

	out := make(map[int64]models.TradeState, len(ids))
	for _, item := range res.Array() {
		out[item.Get("id").Int()] = models.TradeState(item.Get("state").Int())
	}
	return out, nil
}

// ExecuteOrder 提交入场执行交易并等待一次确认
func (c *Client) ExecuteOrder(ctx context.Context, tradeID int64, proof, signer string) (string, error) {
	return c.submit(ctx, fnExecuteOrder, tradeID, proof, signer)
}

// ExecuteStopClose 提交止损/止盈平仓交易并等待一次确认
func (c *Client) ExecuteStopClose(ctx context.Context, tradeID int64, proof, signer string) (string, error) {
	return c.submit(ctx, fnExecuteClose, tradeID, proof, signer)
}

func (c *Client) submit(ctx context.Context, fn string, tradeID int64, proof, signer string) (string, error) {
	body, err := c.post(ctx, "/v1/transactions", map[string]any{
		"function":  c.coreAddress + "::" + fn,
		"arguments": []any{tradeID, proof},
		"signer":    signer,
	})
	if err != nil {
		monitor.IncLedgerCall(fn, "error")
		return "", err
	}

	hash := gjson.GetBytes(body, "hash").String()
	if hash == "" {
		monitor.IncLedgerCall(fn, "error")
		return "", fmt.Errorf("submit response missing hash: %s", body)
	}

	if err = c.waitConfirmed(ctx, hash); err != nil {
		monitor.IncLedgerCall(fn, "unconfirmed")
		return hash, err
	}

	monitor.IncLedgerCall(fn, "ok")
	return hash, nil
}

// waitConfirmed 轮询交易状态直到确认
// 确认等待有界：悬挂的节点连接只会拖住本次尝试，不会无限期占用
func (c *Client) waitConfirmed(ctx context.Context, hash string) error {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("confirmation wait for %s: %w", hash, ctx.Err())
		case <-ticker.C:
			body, err := c.post(ctx, "/v1/transactions/status", map[string]any{"hash": hash})
			if err != nil {
				logger.Debug().Err(err).Str("hash", hash).Msg("tx status poll failed")
				continue
			}
			switch gjson.GetBytes(body, "status").String() {
			case "confirmed", "success":
				return nil
			case "failed", "aborted":
				return fmt.Errorf("transaction %s failed on ledger: %s",
					hash, gjson.GetBytes(body, "vm_status").String())
			}
		}
	}
}

// parseTrade 解析链上交易记录
func parseTrade(item gjson.Result) *models.Trade {
	return &models.Trade{
		ID:              item.Get("id").Int(),
		Trader:          strings.ToLower(item.Get("trader").String()),
		AssetID:         item.Get("asset_id").Int(),
		IsLong:          item.Get("is_long").Bool(),
		IsLimit:         item.Get("is_limit").Bool(),
		Leverage:        item.Get("leverage").Int(),
		LotSize:         item.Get("lot_size").Int(),
		ClosedLotSize:   item.Get("closed_lot_size").Int(),
		OpenPrice:       item.Get("open_price").Int(),
		ClosePrice:      item.Get("close_price").Int(),
		StopLoss:        item.Get("stop_loss").Int(),
		TakeProfit:      item.Get("take_profit").Int(),
		State:           models.TradeState(item.Get("state").Int()),
		FundingIndex:    defaultZero(item.Get("funding_index").String()),
		LpLockedCapital: defaultZero(item.Get("lp_locked_capital").String()),
		MarginUsdc:      defaultZero(item.Get("margin_usdc").String()),
		OpenTimestamp:   item.Get("open_timestamp").Int(),
	}
}

func defaultZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
