package pipeline

import (
	"fmt"
	"strings"

	"github.com/betbot/signalbot/internal/domain"
)

// PromptBuilder 由信号渲染发给推理服务的用户提示词
type PromptBuilder func(sig domain.Signal) string

// DefaultPrompt 默认提示词
func DefaultPrompt(sig domain.Signal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Market signal for %s", sig.Symbol)
	if sig.Timeframe != "" {
		fmt.Fprintf(&b, " on the %s timeframe", sig.Timeframe)
	}
	b.WriteString(":\n")
	fmt.Fprintf(&b, "- trend bias: %s\n", sig.Bias)
	fmt.Fprintf(&b, "- momentum: %s\n", sig.Momentum)
	fmt.Fprintf(&b, "- volatility: %s\n", sig.Volatility)
	fmt.Fprintf(&b, "- pattern: %s\n", sig.Context)
	b.WriteString("\nDecide whether to open a LONG, a SHORT, or NO_TRADE. ")
	b.WriteString(`Reply with JSON only: {"action":"LONG|SHORT|NO_TRADE","confidence":<0..1>,"reason":"<one sentence>"}`)
	return b.String()
}
