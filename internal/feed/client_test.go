package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T) (*Client, *[]MarketTick) {
	ticks := &[]MarketTick{}
	c := NewClient("wss://example.invalid/ws", func(tick MarketTick) {
		*ticks = append(*ticks, tick)
	})
	return c, ticks
}

func TestHandleMessage_StringPrice(t *testing.T) {
	c, ticks := collect(t)

	c.handleMessage([]byte(`{"channel":"prices","data":{"asset_id":1,"price":"69000.5"}}`))

	require.Len(t, *ticks, 1)
	assert.Equal(t, int64(1), (*ticks)[0].AssetID)
	assert.Equal(t, "69000.5", (*ticks)[0].RawPrice)
}

func TestHandleMessage_NumericPrice(t *testing.T) {
	c, ticks := collect(t)

	// 行情源偶尔给数值类型
	c.handleMessage([]byte(`{"channel":"prices","data":{"asset_id":2,"price":1250.25}}`))

	require.Len(t, *ticks, 1)
	assert.Equal(t, "1250.25", (*ticks)[0].RawPrice)
}

func TestHandleMessage_Ignored(t *testing.T) {
	c, ticks := collect(t)

	// 其他频道
	c.handleMessage([]byte(`{"channel":"orders","data":{"asset_id":1,"price":"1"}}`))
	// 缺 asset_id
	c.handleMessage([]byte(`{"channel":"prices","data":{"price":"1"}}`))
	// 缺 price
	c.handleMessage([]byte(`{"channel":"prices","data":{"asset_id":1}}`))
	// 非 JSON
	c.handleMessage([]byte(`garbage`))

	assert.Empty(t, *ticks)
}

func TestNewClient_EmptyURL(t *testing.T) {
	assert.Panics(t, func() {
		NewClient("", nil)
	})
}
