package proof

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestGetProof_FirstShapeOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/", r.URL.Path)
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"proof_bytes":"0xdeadbeef"}}`))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, "evm", time.Second, time.Second)
	p, err := f.GetProof(context.Background(), []int64{1})
	require.NoError(t, err)
	assert.Equal(t, "0xdeadbeef", p)
}

func TestGetProof_CascadesToRest(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/get_proof":
			// REST 变体：无 0x 前缀，应被规范化
			w.Write([]byte(`{"proof_bytes":"cafebabe"}`))
		default:
			// JSON-RPC 形态不可用
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, "evm", time.Second, time.Second)
	p, err := f.GetProof(context.Background(), []int64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, "0xcafebabe", p)
	assert.Equal(t, int64(3), hits.Load(), "两个 JSON-RPC 形态失败后命中第三个")
}

func TestGetProof_RequestPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := make([]byte, r.ContentLength)
		r.Body.Read(body)
		assert.Equal(t, "get_proof", gjson.GetBytes(body, "method").String())
		assert.Equal(t, "evm", gjson.GetBytes(body, "params.chain_type").String())
		assert.Equal(t, int64(7), gjson.GetBytes(body, "params.pair_indexes.0").Int())
		w.Write([]byte(`{"result":{"proof":"0xaa"}}`))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, "evm", time.Second, time.Second)
	_, err := f.GetProof(context.Background(), []int64{7})
	require.NoError(t, err)
}

func TestGetProof_Cached(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"result":{"proof_bytes":"0x01"}}`))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, "evm", time.Second, time.Minute)

	ctx := context.Background()
	_, err := f.GetProof(ctx, []int64{2, 1})
	require.NoError(t, err)
	// 同一索引集合（顺序、重复无关）命中缓存
	_, err = f.GetProof(ctx, []int64{1, 2, 2})
	require.NoError(t, err)

	assert.Equal(t, int64(1), hits.Load())
}

func TestGetProof_AllShapesFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, "evm", time.Second, time.Second)
	_, err := f.GetProof(context.Background(), []int64{1})
	assert.Error(t, err)
}

func TestGetProof_EmptyIndexes(t *testing.T) {
	f := NewFetcher("http://127.0.0.1:1", "evm", time.Second, time.Second)
	_, err := f.GetProof(context.Background(), nil)
	assert.Error(t, err)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "1,2,3", cacheKey([]int64{3, 1, 2, 2}))
}

func TestNormalizeProof(t *testing.T) {
	assert.Equal(t, "0xabc", normalizeProof("abc"))
	assert.Equal(t, "0xabc", normalizeProof("0xabc"))
	assert.Equal(t, "0xABC", normalizeProof("0XABC"))
}
