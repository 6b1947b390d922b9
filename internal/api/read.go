package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"

	"github.com/perpflow/perpflow-keeper/internal/dao"
	"github.com/perpflow/perpflow-keeper/internal/models"
	"github.com/perpflow/perpflow-keeper/pkg/fixedpoint"
)

// handleGetTrade GET /trade/:id
func handleGetTrade(c *gin.Context) {
	id, err := cast.ToInt64E(c.Param("id"))
	if err != nil || id <= 0 {
		abortError(c, http.StatusBadRequest, "invalid trade id")
		return
	}

	t, err := dao.Trade().Get(id)
	if err != nil {
		if dao.IsNotFound(err) {
			abortError(c, http.StatusNotFound, "trade not found")
			return
		}
		abortError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, t)
}

// handleTraderIDs GET /trader/:address/ids?state=
func handleTraderIDs(c *gin.Context) {
	address := strings.ToLower(c.Param("address"))
	if address == "" {
		abortError(c, http.StatusBadRequest, "empty trader address")
		return
	}

	// state=all 与缺省等价：不过滤
	var state *models.TradeState
	if raw := c.Query("state"); raw != "" && raw != "all" {
		v, err := cast.ToInt8E(raw)
		if err != nil || !models.TradeState(v).Valid() {
			abortError(c, http.StatusBadRequest, "invalid state filter")
			return
		}
		s := models.TradeState(v)
		state = &s
	}

	ids, err := dao.Trade().ListIDsByTrader(address, state)
	if err != nil {
		abortError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"trader": address, "ids": ids})
}

// parseMatchQuery 解析撮合查询公共参数
// unit=human（默认）按十进制字符串解析，unit=e6 按定点整数解析
func parseMatchQuery(c *gin.Context) (assetID, marketE6 int64, ok bool) {
	assetID, err := cast.ToInt64E(c.Query("assetId"))
	if err != nil || assetID < 0 {
		abortError(c, http.StatusBadRequest, "invalid assetId")
		return 0, 0, false
	}

	raw := c.Query("market")
	if raw == "" {
		abortError(c, http.StatusBadRequest, "missing market")
		return 0, 0, false
	}

	switch c.DefaultQuery("unit", "human") {
	case "human":
		marketE6, err = fixedpoint.ToE6(raw)
	case "e6":
		marketE6, err = cast.ToInt64E(raw)
	default:
		abortError(c, http.StatusBadRequest, "unit must be human or e6")
		return 0, 0, false
	}
	if err != nil || marketE6 <= 0 {
		abortError(c, http.StatusBadRequest, "invalid market price")
		return 0, 0, false
	}

	return assetID, marketE6, true
}

// handleMatchEntry GET /match/entry?assetId=&market=&unit=
func handleMatchEntry(c *gin.Context) {
	assetID, marketE6, ok := parseMatchQuery(c)
	if !ok {
		return
	}

	limitIDs, stopIDs, err := dao.Trade().MatchEntry(assetID, marketE6)
	if err != nil {
		abortError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"limit": limitIDs,
		"stop":  stopIDs,
	})
}

// handleMatchExits GET /match/exits?assetId=&market=&unit=
func handleMatchExits(c *gin.Context) {
	assetID, marketE6, ok := parseMatchQuery(c)
	if !ok {
		return
	}

	slIDs, tpIDs, err := dao.Trade().MatchExits(assetID, marketE6)
	if err != nil {
		abortError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stopLoss":   slIDs,
		"takeProfit": tpIDs,
	})
}
