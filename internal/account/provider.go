// Package account 提供风控所需的账户快照。
package account

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/betbot/signalbot/internal/domain"
	"github.com/betbot/signalbot/pkg/cache"
)

// Static 固定快照（告警 profile 或 dry-run 时使用），可在运行时更新
type Static struct {
	mu     sync.RWMutex
	states map[string]domain.AccountState
	def    domain.AccountState
}

// NewStatic def 为未单独配置的交易对使用的快照
func NewStatic(def domain.AccountState) *Static {
	return &Static{states: make(map[string]domain.AccountState), def: def}
}

// Set 更新某个交易对的快照
func (s *Static) Set(symbol string, st domain.AccountState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[strings.ToUpper(symbol)] = st
}

func (s *Static) AccountState(_ context.Context, symbol string) (domain.AccountState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.states[strings.ToUpper(symbol)]; ok {
		return st, nil
	}
	return s.def, nil
}

// HTTP 从账户服务拉取快照：GET {base}/v1/account?symbol=BTCUSDT
type HTTP struct {
	client *resty.Client
	token  string
}

// NewHTTP 创建账户服务客户端
func NewHTTP(baseURL, token string, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	c := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(1).
		SetRetryWaitTime(100 * time.Millisecond).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "signalbot/1.0")
	return &HTTP{client: c, token: token}
}

func (h *HTTP) AccountState(ctx context.Context, symbol string) (domain.AccountState, error) {
	var out domain.AccountState
	req := h.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&out)
	if h.token != "" {
		req.SetAuthToken(h.token)
	}
	resp, err := req.Get("/v1/account")
	if err != nil {
		return domain.AccountState{}, errors.Wrap(err, "fetch account state")
	}
	if !resp.IsSuccess() {
		return domain.AccountState{}, errors.Errorf("fetch account state: http %d", resp.StatusCode())
	}
	return out, nil
}

// Cached 在上游 Provider 前加一层短 TTL 缓存；失败结果不缓存
type Cached struct {
	next  Provider
	cache *cache.InMemoryCache[string, domain.AccountState]
	ttl   time.Duration
}

// Provider 账户快照来源
type Provider interface {
	AccountState(ctx context.Context, symbol string) (domain.AccountState, error)
}

// NewCached ttl <= 0 时不缓存，直接返回 next
func NewCached(next Provider, ttl time.Duration) Provider {
	if ttl <= 0 {
		return next
	}
	return &Cached{next: next, cache: cache.NewInMemoryCache[string, domain.AccountState](ttl, time.Minute), ttl: ttl}
}

func (c *Cached) AccountState(ctx context.Context, symbol string) (domain.AccountState, error) {
	key := strings.ToUpper(symbol)
	if st, ok := c.cache.Get(key); ok {
		return st, nil
	}
	st, err := c.next.AccountState(ctx, symbol)
	if err != nil {
		return domain.AccountState{}, err
	}
	c.cache.Set(key, st, c.ttl)
	return st, nil
}

// Invalidate 丢弃某个交易对的缓存（例如下单后）
func (c *Cached) Invalidate(symbol string) {
	c.cache.Delete(strings.ToUpper(symbol))
}

// Close 停止缓存清理
func (c *Cached) Close() {
	c.cache.Close()
}
