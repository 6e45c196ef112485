// Package risk 风控闸门：把 (Decision, AccountState) 映射为放行/拒绝。
//
// 每个策略都是无副作用的纯函数，按部署 profile 选择，而不是在同一个函数里分支。
package risk

import (
	"fmt"
	"sort"
	"strings"

	"github.com/betbot/signalbot/internal/domain"
)

// 拒绝原因（对应失败的规则）
const (
	RuleLowConfidence  = "low_confidence"
	RuleOpenPosition   = "open_position"
	RuleDailyLossLimit = "daily_loss_limit"
	RuleNoTradeAction  = "no_trade_action"
)

// Verdict 闸门结论
type Verdict struct {
	Permit bool
	Rule   string // 拒绝时为第一个失败的规则
}

func permit() Verdict          { return Verdict{Permit: true} }
func deny(rule string) Verdict { return Verdict{Rule: rule} }

// Gate 风控策略
type Gate interface {
	Name() string
	// NeedsAccount 为 false 时 Evaluate 不读取账户快照，调用方无需获取
	NeedsAccount() bool
	Evaluate(d domain.Decision, acct domain.AccountState) Verdict
}

// ExecutionPolicy 用于可能触发真实下单的部署
//
// 放行条件：confidence >= MinConfidence 且无持仓 且 当日亏损 <= MaxDailyLossPercent（含边界）。
// 与 action 取值无关。
type ExecutionPolicy struct {
	MinConfidence       float64
	MaxDailyLossPercent float64
}

// DefaultExecutionPolicy 参考部署参数
func DefaultExecutionPolicy() ExecutionPolicy {
	return ExecutionPolicy{MinConfidence: 0.65, MaxDailyLossPercent: 3.0}
}

func (ExecutionPolicy) Name() string { return "execution" }

func (ExecutionPolicy) NeedsAccount() bool { return true }

func (p ExecutionPolicy) Evaluate(d domain.Decision, acct domain.AccountState) Verdict {
	// 取反写法让 NaN 也被拒绝
	if !(d.Confidence >= p.MinConfidence) {
		return deny(RuleLowConfidence)
	}
	if acct.HasOpenPosition {
		return deny(RuleOpenPosition)
	}
	if !(acct.DailyLossPercent <= p.MaxDailyLossPercent) {
		return deny(RuleDailyLossLimit)
	}
	return permit()
}

// AlertingPolicy 只触发通知、不下单的部署
//
// 放行条件：action 为 LONG/SHORT（NO_TRADE 即使高置信也拒绝，避免噪音）且 confidence >= MinConfidence。
type AlertingPolicy struct {
	MinConfidence float64
}

// DefaultAlertingPolicy 参考部署参数
func DefaultAlertingPolicy() AlertingPolicy {
	return AlertingPolicy{MinConfidence: 0.70}
}

func (AlertingPolicy) Name() string { return "alerting" }

func (AlertingPolicy) NeedsAccount() bool { return false }

func (p AlertingPolicy) Evaluate(d domain.Decision, _ domain.AccountState) Verdict {
	if !d.Action.IsDirectional() {
		return deny(RuleNoTradeAction)
	}
	if !(d.Confidence >= p.MinConfidence) {
		return deny(RuleLowConfidence)
	}
	return permit()
}

// Profile 部署 profile 名称
type Profile string

const (
	ProfileScalp Profile = "scalp" // 执行策略
	ProfileAlert Profile = "alert" // 告警策略
)

var profiles = map[Profile]func() Gate{
	ProfileScalp: func() Gate { return DefaultExecutionPolicy() },
	ProfileAlert: func() Gate { return DefaultAlertingPolicy() },
}

// aliases 兼容常见写法
var aliases = map[string]Profile{
	"execution":  ProfileScalp,
	"alert-only": ProfileAlert,
	"alerting":   ProfileAlert,
}

// ForProfile 按 profile 名称选择策略
func ForProfile(name string) (Gate, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	p := Profile(key)
	if alias, ok := aliases[key]; ok {
		p = alias
	}
	newGate, ok := profiles[p]
	if !ok {
		return nil, fmt.Errorf("unknown risk profile %q (known: %s)", name, strings.Join(Profiles(), ", "))
	}
	return newGate(), nil
}

// Profiles 已注册的 profile 名称
func Profiles() []string {
	out := make([]string, 0, len(profiles))
	for p := range profiles {
		out = append(out, string(p))
	}
	sort.Strings(out)
	return out
}
