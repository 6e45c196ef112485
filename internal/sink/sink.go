// Package sink 把放行的 Action 投递到下游（日志、告警 webhook、下单执行器）。
package sink

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/signalbot/internal/domain"
	"github.com/betbot/signalbot/pkg/logger"
)

// Sink 下游投递接口
type Sink interface {
	Dispatch(ctx context.Context, action domain.Action) error
}

// Payload 下游 JSON 载荷
type Payload struct {
	SignalID   string             `json:"signal_id"`
	Symbol     string             `json:"symbol"`
	Timeframe  string             `json:"timeframe"`
	Action     domain.TradeAction `json:"action"`
	Confidence float64            `json:"confidence"`
	Reason     string             `json:"reason"`
	Bias       domain.Bias        `json:"bias"`
	Momentum   domain.Momentum    `json:"momentum"`
	Volatility domain.Volatility  `json:"volatility"`
	Context    string             `json:"context"`
	SentAt     time.Time          `json:"sent_at"`
}

// NewPayload 从 Action 构造载荷
func NewPayload(a domain.Action) Payload {
	return Payload{
		SignalID:   a.Signal.ID,
		Symbol:     a.Signal.Symbol,
		Timeframe:  a.Signal.Timeframe,
		Action:     a.Decision.Action,
		Confidence: a.Decision.Confidence,
		Reason:     a.Decision.Reason,
		Bias:       a.Signal.Bias,
		Momentum:   a.Signal.Momentum,
		Volatility: a.Signal.Volatility,
		Context:    a.Signal.Context,
		SentAt:     time.Now().UTC(),
	}
}

// LogSink 只记日志（dry-run）
type LogSink struct{}

func (LogSink) Dispatch(_ context.Context, a domain.Action) error {
	logger.WithFields(logrus.Fields{
		"signal_id":  a.Signal.ID,
		"symbol":     a.Signal.Symbol,
		"action":     a.Decision.Action,
		"confidence": a.Decision.Confidence,
	}).Infof("[dry-run] %s %s: %s", a.Decision.Action, a.Signal.Symbol, a.Decision.Reason)
	return nil
}

// Multi 依次投递到全部下游，汇总错误
type Multi []Sink

func (m Multi) Dispatch(ctx context.Context, a domain.Action) error {
	var failed []string
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Dispatch(ctx, a); err != nil {
			failed = append(failed, err.Error())
		}
	}
	if len(failed) > 0 {
		return errors.Errorf("%d sink(s) failed: %s", len(failed), strings.Join(failed, "; "))
	}
	return nil
}

// newRESTClient 下游 HTTP 客户端：对 5xx 与 429 有限重试
func newRESTClient(baseURL string, timeout time.Duration, retries int) *resty.Client {
	return resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return false
			}
			return r.StatusCode() == 429 || r.StatusCode() >= 500
		}).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "signalbot/1.0")
}

func postJSON(ctx context.Context, c *resty.Client, path string, body any, headers map[string]string) error {
	resp, err := c.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(path)
	if err != nil {
		return errors.Wrapf(err, "post %s", path)
	}
	if !resp.IsSuccess() {
		return errors.Errorf("post %s: http %d: %s", path, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return nil
}
