package pipeline

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/signalbot/internal/domain"
	"github.com/betbot/signalbot/internal/indicators"
	"github.com/betbot/signalbot/internal/metrics"
	"github.com/betbot/signalbot/internal/risk"
	"github.com/betbot/signalbot/pkg/logger"
	"github.com/betbot/signalbot/pkg/ratelimit"
	"github.com/betbot/signalbot/pkg/syncgroup"
)

// Stage 单信号状态机的阶段
type Stage string

const (
	StageReceived      Stage = "RECEIVED"
	StageNormalized    Stage = "NORMALIZED"
	StageBudgetChecked Stage = "BUDGET_CHECKED"
	StageDecided       Stage = "DECIDED"
	StageGated         Stage = "GATED"
	StageExecuted      Stage = "EXECUTED"
	StageSuppressed    Stage = "SUPPRESSED"
)

// RuleAccountUnavailable 账户快照获取失败时的拒绝原因
const RuleAccountUnavailable = "account_unavailable"

const (
	DefaultBudgetWait      = time.Second
	DefaultDispatchTimeout = 30 * time.Second
)

// Options 编排器可选参数
type Options struct {
	BudgetWait      time.Duration // 预算耗尽时的一次性等待
	DispatchTimeout time.Duration // 单次下游投递的超时
	Prompt          PromptBuilder
	Journal         Journal
}

// Orchestrator 组合各组件处理单个信号。可被多个 goroutine 并发调用。
type Orchestrator struct {
	normalizer *indicators.Normalizer
	budget     ratelimit.Budget
	decider    Decider
	gate       risk.Gate
	accounts   AccountProvider
	sink       Sink
	opts       Options

	dispatches *syncgroup.SyncGroup
	sleep      func(ctx context.Context, d time.Duration)
}

// NewOrchestrator 创建编排器
func NewOrchestrator(
	normalizer *indicators.Normalizer,
	budget ratelimit.Budget,
	decider Decider,
	gate risk.Gate,
	accounts AccountProvider,
	sink Sink,
	opts Options,
) *Orchestrator {
	if opts.BudgetWait <= 0 {
		opts.BudgetWait = DefaultBudgetWait
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = DefaultDispatchTimeout
	}
	if opts.Prompt == nil {
		opts.Prompt = DefaultPrompt
	}
	return &Orchestrator{
		normalizer: normalizer,
		budget:     budget,
		decider:    decider,
		gate:       gate,
		accounts:   accounts,
		sink:       sink,
		opts:       opts,
		dispatches: syncgroup.NewSyncGroup(),
		sleep:      sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Process 处理一条原始读数，总是返回一个 Action，不返回错误
func (o *Orchestrator) Process(ctx context.Context, reading indicators.Reading) domain.Action {
	metrics.SignalsReceived.Add(1)

	// RECEIVED → NORMALIZED
	sig := o.normalizer.Normalize(reading)
	log := logger.WithFields(logrus.Fields{
		"signal_id": sig.ID,
		"symbol":    sig.Symbol,
		"timeframe": sig.Timeframe,
	})
	log.WithFields(logrus.Fields{
		"stage":      StageNormalized,
		"bias":       sig.Bias,
		"momentum":   sig.Momentum,
		"volatility": sig.Volatility,
	}).Debug("signal normalized")

	// NORMALIZED → BUDGET_CHECKED：建议式限流，等待一次后无论结果都继续
	ticket := o.checkBudget(ctx, log)

	// BUDGET_CHECKED → DECIDED；预占凭据随 ctx 交给决策方确认或归还
	prompt := o.opts.Prompt(sig)
	decision := o.decider.Decide(ratelimit.WithTicket(ctx, ticket), sig, prompt)
	log.WithFields(logrus.Fields{
		"stage":      StageDecided,
		"action":     decision.Action,
		"confidence": decision.Confidence,
	}).Debug("decision ready")

	// DECIDED → GATED
	action := o.gateDecision(ctx, log, sig, decision)

	o.record(ctx, log, action)
	if action.Executed() {
		o.dispatch(ctx, log, action)
	}
	return action
}

// checkBudget 返回本次预占的凭据；超额继续时返回 0
func (o *Orchestrator) checkBudget(ctx context.Context, log *logrus.Entry) ratelimit.Ticket {
	if o.budget == nil {
		return 0
	}
	if ticket, ok := o.budget.TryAcquire(); ok {
		return ticket
	}
	metrics.BudgetWaits.Add(1)
	log.WithFields(logrus.Fields{
		"stage": StageBudgetChecked,
		"wait":  o.opts.BudgetWait,
		"reset": o.budget.ResetTime(),
	}).Info("call budget exhausted, waiting once")

	o.sleep(ctx, o.opts.BudgetWait)
	ticket, ok := o.budget.TryAcquire()
	if !ok {
		metrics.BudgetOverruns.Add(1)
		log.WithField("stage", StageBudgetChecked).Warn("call budget still exhausted, proceeding anyway")
	}
	return ticket
}

func (o *Orchestrator) gateDecision(ctx context.Context, log *logrus.Entry, sig domain.Signal, d domain.Decision) domain.Action {
	// 兜底决策不可能被放行，直接归因于推理失败，不再查询账户
	if d.Failed() {
		return o.suppress(log, sig, d, domain.Cause{Kind: domain.CauseInference, Code: string(d.Failure)})
	}

	var acct domain.AccountState
	if o.gate.NeedsAccount() {
		var err error
		if acct, err = o.accountState(ctx, sig.Symbol); err != nil {
			log.WithError(err).Warn("account state unavailable")
			return o.suppress(log, sig, d, domain.Cause{Kind: domain.CauseRisk, Code: RuleAccountUnavailable})
		}
	}

	v := o.gate.Evaluate(d, acct)
	if v.Permit {
		metrics.ActionsExecuted.Add(1)
		log.WithFields(logrus.Fields{
			"stage":      StageExecuted,
			"gate":       o.gate.Name(),
			"action":     d.Action,
			"confidence": d.Confidence,
		}).Info("decision permitted")
		return domain.Execute(sig, d)
	}

	return o.suppress(log, sig, d, domain.Cause{Kind: domain.CauseRisk, Code: v.Rule})
}

func (o *Orchestrator) accountState(ctx context.Context, symbol string) (domain.AccountState, error) {
	if o.accounts == nil {
		return domain.AccountState{}, nil
	}
	acct, err := o.accounts.AccountState(ctx, symbol)
	if err != nil {
		return domain.AccountState{}, errors.Wrap(err, "load account state")
	}
	return acct, nil
}

func (o *Orchestrator) suppress(log *logrus.Entry, sig domain.Signal, d domain.Decision, cause domain.Cause) domain.Action {
	metrics.ActionsSuppressed.Add(cause.String(), 1)
	log.WithFields(logrus.Fields{
		"stage":      StageSuppressed,
		"gate":       o.gate.Name(),
		"cause":      cause.String(),
		"action":     d.Action,
		"confidence": d.Confidence,
		"reason":     d.Reason,
	}).Info("decision suppressed")
	return domain.Suppressed(sig, d, cause)
}

func (o *Orchestrator) record(ctx context.Context, log *logrus.Entry, action domain.Action) {
	if o.opts.Journal == nil {
		return
	}
	if err := o.opts.Journal.Record(ctx, action); err != nil {
		metrics.JournalErrors.Add(1)
		log.WithError(err).Warn("journal write failed")
	}
}

// dispatch 异步投递；管道不等待、也不依赖下游结果
func (o *Orchestrator) dispatch(ctx context.Context, log *logrus.Entry, action domain.Action) {
	if o.sink == nil {
		return
	}
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.DispatchTimeout)
	started := o.dispatches.Go(func() {
		defer cancel()
		if err := o.sink.Dispatch(dctx, action); err != nil {
			metrics.SinkErrors.Add(1)
			log.WithError(err).Error("action dispatch failed")
		}
	})
	if !started {
		cancel()
		metrics.SinkErrors.Add(1)
		log.Warn("orchestrator closed, action not dispatched")
	}
}

// Close 停止接收新的投递并等待在途投递完成
func (o *Orchestrator) Close(ctx context.Context) error {
	o.dispatches.Close()
	return o.dispatches.WaitContext(ctx)
}
