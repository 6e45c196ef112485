package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/betbot/signalbot/internal/domain"
	"github.com/betbot/signalbot/pkg/logger"
)

// AlertSink 把放行的决策推送到告警 webhook（通知类 profile 使用）
type AlertSink struct {
	client *resty.Client
	url    string
}

// NewAlertSink url 为完整 webhook 地址
func NewAlertSink(url string, timeout time.Duration) *AlertSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AlertSink{client: newRESTClient("", timeout, 2), url: url}
}

type alertBody struct {
	Text    string  `json:"text"`
	Payload Payload `json:"payload"`
}

func (s *AlertSink) Dispatch(ctx context.Context, a domain.Action) error {
	text := fmt.Sprintf("%s %s %s (confidence %.2f, %s/%s): %s",
		a.Signal.Symbol, a.Signal.Timeframe, a.Decision.Action, a.Decision.Confidence,
		a.Signal.Bias, a.Signal.Momentum, a.Decision.Reason)
	return postJSON(ctx, s.client, s.url, alertBody{Text: text, Payload: NewPayload(a)}, nil)
}

// OrderSink 把放行的决策提交给下单执行器
type OrderSink struct {
	client *resty.Client
	token  string
}

// NewOrderSink baseURL 为执行器地址；token 非空时作为 Bearer 认证
func NewOrderSink(baseURL, token string, timeout time.Duration) *OrderSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	// 下单请求不重试，避免重复下单
	return &OrderSink{client: newRESTClient(baseURL, timeout, 0), token: token}
}

// Dispatch 只提交有方向的决策；NO_TRADE 即使被放行也不下单
func (s *OrderSink) Dispatch(ctx context.Context, a domain.Action) error {
	if !a.Decision.Action.IsDirectional() {
		logger.WithFields(logrus.Fields{
			"signal_id": a.Signal.ID,
			"symbol":    a.Signal.Symbol,
			"action":    a.Decision.Action,
		}).Info("non-directional action, order skipped")
		return nil
	}
	headers := map[string]string{"Idempotency-Key": a.Signal.ID}
	if s.token != "" {
		headers["Authorization"] = "Bearer " + s.token
	}
	return postJSON(ctx, s.client, "/v1/orders", NewPayload(a), headers)
}
