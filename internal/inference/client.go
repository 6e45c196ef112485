// Package inference 调用外部推理服务（OpenAI 兼容 chat 接口）获取交易决策。
package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/signalbot/internal/domain"
	"github.com/betbot/signalbot/internal/metrics"
	"github.com/betbot/signalbot/pkg/logger"
	"github.com/betbot/signalbot/pkg/ratelimit"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 120 * time.Second

	// SystemPrompt 固定的系统角色
	SystemPrompt = "You are a professional trading assistant. Respond in strict JSON only, " +
		`with the shape {"action":"LONG|SHORT|NO_TRADE","confidence":0.0-1.0,"reason":"..."}.`

	maxErrorBody = 512
)

// Config 推理客户端配置
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration // 推理延迟远高于普通 API，默认 120s
}

// Client 决策客户端：每个 Signal 发起一次请求，失败一律转为 NO_TRADE 兜底决策
type Client struct {
	http   *resty.Client
	cfg    Config
	budget ratelimit.Budget
}

// NewClient 创建决策客户端；budget 可为 nil（不做预算记账）
func NewClient(cfg Config, budget ratelimit.Budget) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	// 不做自动重试：一次信号只发起一次调用
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetRetryCount(0).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "signalbot/1.0")

	return &Client{http: client, cfg: cfg, budget: budget}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// Decide 为单个信号获取决策，从不返回错误
func (c *Client) Decide(ctx context.Context, sig domain.Signal, prompt string) (decision domain.Decision) {
	if ctx == nil {
		ctx = context.Background()
	}
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	log := logger.WithFields(logrus.Fields{"signal_id": sig.ID, "symbol": sig.Symbol})
	metrics.InferenceCalls.Add(1)
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			decision = c.fail(callCtx, log, sig, prompt, &CallError{Kind: domain.ErrorKindUnknown, Err: fmt.Errorf("panic: %v", r)})
		}
	}()

	action, confidence, reason, err := c.call(callCtx, prompt)
	if err != nil {
		return c.fail(callCtx, log, sig, prompt, err)
	}

	if c.budget != nil {
		c.budget.MarkUsed(ratelimit.TicketFrom(ctx))
	}
	log.WithFields(logrus.Fields{
		"action":     action,
		"confidence": confidence,
		"latency_ms": time.Since(started).Milliseconds(),
	}).Info("decision received")

	return domain.Decision{
		Action:     action,
		Confidence: confidence,
		Reason:     reason,
		Symbol:     sig.Symbol,
		RawPrompt:  prompt,
	}
}

func (c *Client) fail(ctx context.Context, log *logrus.Entry, sig domain.Signal, prompt string, err error) domain.Decision {
	kind := Classify(ctx, err)
	// 只归还本次调用自己的预占；超额调用没有预占可还
	if ticket := ratelimit.TicketFrom(ctx); c.budget != nil && ticket != 0 {
		c.budget.Release(ticket)
	}
	metrics.InferenceFailures.Add(string(kind), 1)
	log.WithField("kind", kind).WithError(err).Warn("inference failed, falling back to NO_TRADE")
	return domain.FallbackDecision(sig, prompt, kind, err.Error())
}

func (c *Client) call(ctx context.Context, prompt string) (domain.TradeAction, float64, string, error) {
	body := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0,
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post("/chat/completions")
	if err != nil {
		return "", 0, "", errors.Wrap(err, "inference request")
	}

	raw := resp.Body()
	if !resp.IsSuccess() {
		return "", 0, "", apiError("inference http %d: %s", resp.StatusCode(), truncate(string(raw)))
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", 0, "", parseError(err, "decode inference response")
	}
	if out.Error != nil {
		return "", 0, "", apiError("inference error %s: %s", out.Error.Type, out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", 0, "", parseError(errors.New("no choices"), "decode inference response")
	}

	action, confidence, reason, err := ParseDecision(out.Choices[0].Message.Content)
	if err != nil {
		return "", 0, "", parseError(err, "parse decision")
	}
	return action, confidence, reason, nil
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
