package domain

import "fmt"

// Outcome 管道最终结果类型
type Outcome string

const (
	OutcomeExecute    Outcome = "execute"
	OutcomeSuppressed Outcome = "suppressed"
)

// CauseKind 抑制原因类别：风控拒绝与推理失败必须可区分
type CauseKind string

const (
	CauseRisk      CauseKind = "risk"
	CauseInference CauseKind = "inference"
)

// Cause 抑制原因
type Cause struct {
	Kind CauseKind
	Code string // 风控规则名或推理错误类型
}

func (c Cause) String() string {
	return fmt.Sprintf("%s:%s", c.Kind, c.Code)
}

// Action 管道输出：Execute{decision} 或 Suppressed{decision, cause}
type Action struct {
	Outcome  Outcome
	Signal   Signal
	Decision Decision
	Cause    *Cause // 仅 Suppressed 时非空
}

// Execute 构造放行结果
func Execute(sig Signal, d Decision) Action {
	return Action{Outcome: OutcomeExecute, Signal: sig, Decision: d}
}

// Suppressed 构造抑制结果
func Suppressed(sig Signal, d Decision, cause Cause) Action {
	return Action{Outcome: OutcomeSuppressed, Signal: sig, Decision: d, Cause: &cause}
}

// Executed 是否放行
func (a Action) Executed() bool { return a.Outcome == OutcomeExecute }
