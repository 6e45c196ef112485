// Package pipeline 编排 Signal → 限流推理 → 风控闸门 → Action 的单信号流程。
package pipeline

import (
	"context"

	"github.com/betbot/signalbot/internal/domain"
)

// Decider 决策客户端（inference.Client 实现）
type Decider interface {
	Decide(ctx context.Context, sig domain.Signal, prompt string) domain.Decision
}

// AccountProvider 账户快照提供方
type AccountProvider interface {
	AccountState(ctx context.Context, symbol string) (domain.AccountState, error)
}

// Sink 下游动作接收方（下单执行器或告警通知），只接收 Execute
type Sink interface {
	Dispatch(ctx context.Context, action domain.Action) error
}

// Journal 结果审计记录（可选）
type Journal interface {
	Record(ctx context.Context, action domain.Action) error
}
