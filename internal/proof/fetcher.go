package proof

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/tidwall/gjson"

	"github.com/perpflow/perpflow-keeper/internal/monitor"
	"github.com/perpflow/perpflow-keeper/pkg/logger"
)

// endpointShape 一种候选的证明服务调用形态
// 证明服务的接口约定并不稳定，按固定顺序逐个尝试，
// 用少量延迟换取对端点漂移的韧性
type endpointShape struct {
	name   string
	path   string
	build  func(indexes []int64, chainType string) any
	fields []string // 响应中按序尝试的 gjson 提取路径
}

func jsonRPCBody(indexes []int64, chainType string) any {
	return map[string]any{
		"id":      1,
		"jsonrpc": "2.0",
		"method":  "get_proof",
		"params": map[string]any{
			"pair_indexes": indexes,
			"chain_type":   chainType,
		},
	}
}

func restBody(indexes []int64, chainType string) any {
	return map[string]any{
		"pair_indexes": indexes,
		"chain_type":   chainType,
	}
}

// 形态固定顺序：JSON-RPC（根路径、/rpc），再三种 REST 变体
var shapes = []endpointShape{
	{name: "jsonrpc_root", path: "", build: jsonRPCBody, fields: []string{"result.proof_bytes", "result.proof"}},
	{name: "jsonrpc_rpc", path: "/rpc", build: jsonRPCBody, fields: []string{"result.proof_bytes", "result.proof"}},
	{name: "rest_get_proof", path: "/get_proof", build: restBody, fields: []string{"proof_bytes"}},
	{name: "rest_proof", path: "/proof", build: restBody, fields: []string{"proof"}},
	{name: "rest_api", path: "/api/get_proof", build: restBody, fields: []string{"data.proof_bytes", "data.proof"}},
}

// Fetcher 价格证明客户端
// 结果按资产索引集合键缓存（TTL 默认 1 秒，惰性过期）
type Fetcher struct {
	baseURL    string
	chainType  string
	timeout    time.Duration
	httpClient *http.Client
	cache      *cache.Cache
}

// NewFetcher 创建证明客户端
func NewFetcher(baseURL, chainType string, timeout, cacheTTL time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Second
	}
	return &Fetcher{
		baseURL:    strings.TrimRight(baseURL, "/"),
		chainType:  chainType,
		timeout:    timeout,
		httpClient: new(http.Client),
		cache:      cache.New(cacheTTL, cacheTTL*2),
	}
}

// GetProof 获取一组资产索引的价格证明（0x 前缀十六进制串）
// 命中 1 秒内的缓存时不发起网络请求；全部形态失败时返回最后一个错误
func (f *Fetcher) GetProof(ctx context.Context, assetIndexes []int64) (string, error) {
	if len(assetIndexes) == 0 {
		return "", fmt.Errorf("empty asset index set")
	}

	key := cacheKey(assetIndexes)
	if v, ok := f.cache.Get(key); ok {
		monitor.IncCacheHit("proof")
		return v.(string), nil
	}
	monitor.IncCacheMiss("proof")

	var lastErr error
	for _, s := range shapes {
		p, err := f.tryShape(ctx, s, assetIndexes)
		if err != nil {
			monitor.IncProofRequest(s.name, "error")
			logger.Debug().Err(err).Str("shape", s.name).Msg("proof shape failed")
			lastErr = err
			continue
		}
		monitor.IncProofRequest(s.name, "ok")

		p = normalizeProof(p)
		f.cache.Set(key, p, cache.DefaultExpiration)
		return p, nil
	}

	return "", fmt.Errorf("all proof endpoints failed: %w", lastErr)
}

// tryShape 按单个形态请求一次，每次尝试独立超时
func (f *Fetcher) tryShape(ctx context.Context, s endpointShape, indexes []int64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	payload, err := json.Marshal(s.build(indexes, f.chainType))
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+s.path, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("proof service status %d: %s", resp.StatusCode, body)
	}

	for _, field := range s.fields {
		if v := gjson.GetBytes(body, field).String(); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("no proof field in response (shape %s)", s.name)
}

// cacheKey 规范化键：排序去重后逗号连接
func cacheKey(indexes []int64) string {
	uniq := make(map[int64]struct{}, len(indexes))
	for _, i := range indexes {
		uniq[i] = struct{}{}
	}
	sorted := make([]int64, 0, len(uniq))
	for i := range uniq {
		sorted = append(sorted, i)
	}
	sort.Slice(sorted, func(a, b int) bool { return sorted[a] < sorted[b] })

	parts := make([]string, 0, len(sorted))
	for _, i := range sorted {
		parts = append(parts, strconv.FormatInt(i, 10))
	}
	return strings.Join(parts, ",")
}

// normalizeProof 统一补上 0x 前缀
func normalizeProof(p string) string {
	if strings.HasPrefix(p, "0x") || strings.HasPrefix(p, "0X") {
		return "0x" + p[2:]
	}
	return "0x" + p
}
