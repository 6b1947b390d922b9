package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"

	"github.com/perpflow/perpflow-keeper/internal/dao"
	"github.com/perpflow/perpflow-keeper/internal/models"
)

// handleUpsertTrade PUT /trade/:id
// 全量覆盖写入，路径 id 为准
func handleUpsertTrade(c *gin.Context) {
	id, err := cast.ToInt64E(c.Param("id"))
	if err != nil || id <= 0 {
		abortError(c, http.StatusBadRequest, "invalid trade id")
		return
	}

	var t models.Trade
	if err := c.ShouldBindJSON(&t); err != nil {
		abortError(c, http.StatusBadRequest, "malformed body: "+err.Error())
		return
	}
	if t.ID != 0 && t.ID != id {
		abortError(c, http.StatusBadRequest, "body id does not match path id")
		return
	}
	t.ID = id
	t.Trader = strings.ToLower(t.Trader)

	if !t.State.Valid() {
		abortError(c, http.StatusBadRequest, "invalid state")
		return
	}

	if err := dao.Trade().Upsert(&t); err != nil {
		writeDAOError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id})
}

// patchRequest PATCH 请求体，缺省字段不修改
type patchRequest struct {
	State           *models.TradeState `json:"state"`
	ClosePrice      *int64             `json:"close_price"`
	StopLoss        *int64             `json:"stop_loss"`
	TakeProfit      *int64             `json:"take_profit"`
	ClosedLotSize   *int64             `json:"closed_lot_size"`
	MarginUsdc      *string            `json:"margin_usdc"`
	LpLockedCapital *string            `json:"lp_locked_capital"`
	FundingIndex    *string            `json:"funding_index"`
}

// handlePatchTrade PATCH /trade/:id
func handlePatchTrade(c *gin.Context) {
	id, err := cast.ToInt64E(c.Param("id"))
	if err != nil || id <= 0 {
		abortError(c, http.StatusBadRequest, "invalid trade id")
		return
	}

	var req patchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "malformed body: "+err.Error())
		return
	}

	patch := &dao.TradePatch{
		State:           req.State,
		ClosePrice:      req.ClosePrice,
		StopLoss:        req.StopLoss,
		TakeProfit:      req.TakeProfit,
		ClosedLotSize:   req.ClosedLotSize,
		MarginUsdc:      req.MarginUsdc,
		LpLockedCapital: req.LpLockedCapital,
		FundingIndex:    req.FundingIndex,
	}

	if err := dao.Trade().Patch(id, patch); err != nil {
		writeDAOError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id})
}

// handleBatchUpsert POST /trades/batchUpsert
// 请求体 {"trades": [...]}
func handleBatchUpsert(c *gin.Context) {
	var req struct {
		Trades []*models.Trade `json:"trades"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "malformed body: "+err.Error())
		return
	}
	if len(req.Trades) == 0 {
		abortError(c, http.StatusBadRequest, "missing trades")
		return
	}

	for _, t := range req.Trades {
		if t.ID <= 0 {
			abortError(c, http.StatusBadRequest, "trade with missing id")
			return
		}
		if !t.State.Valid() {
			abortError(c, http.StatusBadRequest, "invalid state")
			return
		}
		t.Trader = strings.ToLower(t.Trader)
	}

	if err := dao.Trade().BatchUpsert(req.Trades); err != nil {
		writeDAOError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": len(req.Trades)})
}

// handleBatchPatchStates POST /trades/batchPatchStates
// 请求体 {"patches": [...]}，返回实际发生变更的行数
func handleBatchPatchStates(c *gin.Context) {
	var req struct {
		Patches []models.StatePatch `json:"patches"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "malformed body: "+err.Error())
		return
	}
	if len(req.Patches) == 0 {
		abortError(c, http.StatusBadRequest, "missing patches")
		return
	}

	changed, err := dao.Trade().BatchPatchStates(req.Patches)
	if err != nil {
		writeDAOError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"changed": changed})
}

// handleBatchPatchSLTP POST /trades/batchPatchSLTP
// 请求体 {"patches": [...]}
func handleBatchPatchSLTP(c *gin.Context) {
	var req struct {
		Patches []models.SLTPPatch `json:"patches"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "malformed body: "+err.Error())
		return
	}
	if len(req.Patches) == 0 {
		abortError(c, http.StatusBadRequest, "missing patches")
		return
	}

	changed, err := dao.Trade().BatchPatchSLTP(req.Patches)
	if err != nil {
		writeDAOError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"changed": changed})
}

// writeDAOError 按错误类型映射 HTTP 状态码
func writeDAOError(c *gin.Context, err error) {
	switch {
	case dao.IsNotFound(err):
		abortError(c, http.StatusNotFound, "trade not found")
	case errors.Is(err, dao.ErrCloseWithoutPrice),
		errors.Is(err, dao.ErrBatchTooLarge):
		abortError(c, http.StatusBadRequest, err.Error())
	default:
		abortError(c, http.StatusInternalServerError, err.Error())
	}
}
