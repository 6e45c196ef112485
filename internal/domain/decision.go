package domain

import "strings"

// TradeAction 推理服务给出的交易动作
type TradeAction string

const (
	ActionLong    TradeAction = "LONG"
	ActionShort   TradeAction = "SHORT"
	ActionNoTrade TradeAction = "NO_TRADE"
)

// ParseTradeAction 严格解析动作字符串（大小写不敏感）
func ParseTradeAction(s string) (TradeAction, bool) {
	switch a := TradeAction(strings.ToUpper(strings.TrimSpace(s))); a {
	case ActionLong, ActionShort, ActionNoTrade:
		return a, true
	}
	return ActionNoTrade, false
}

// IsDirectional LONG 或 SHORT
func (a TradeAction) IsDirectional() bool {
	return a == ActionLong || a == ActionShort
}

// ErrorKind 推理调用失败分类（互斥）
type ErrorKind string

const (
	ErrorKindTimeout ErrorKind = "Timeout"
	ErrorKindNetwork ErrorKind = "NetworkError"
	ErrorKindAPI     ErrorKind = "APIError"
	ErrorKindUnknown ErrorKind = "Unknown"
)

// Decision 每个 Signal 对应一个 Decision，失败时也保持结构合法
type Decision struct {
	Action     TradeAction
	Confidence float64 // [0,1]
	Reason     string
	Symbol     string
	RawPrompt  string
	Failure    ErrorKind // 成功时为空
}

// Failed 是否为失败兜底决策
func (d Decision) Failed() bool { return d.Failure != "" }

// FallbackDecision 构造失败兜底决策：NO_TRADE、置信度 0，reason 以错误类型开头
func FallbackDecision(sig Signal, prompt string, kind ErrorKind, detail string) Decision {
	reason := string(kind)
	if detail != "" {
		reason += ": " + detail
	}
	return Decision{
		Action:     ActionNoTrade,
		Confidence: 0,
		Reason:     reason,
		Symbol:     sig.Symbol,
		RawPrompt:  prompt,
		Failure:    kind,
	}
}
