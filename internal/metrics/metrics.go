package metrics

import "expvar"

// 管道计数器。风控抑制与推理失败分开统计，便于运维区分两类"未下单"。
var (
	SignalsReceived       = expvar.NewInt("signals_received")
	SignalsIgnored        = expvar.NewInt("signals_ignored") // 不在监控列表内
	NormalizationDefaults = expvar.NewMap("normalization_defaults")
	BudgetWaits           = expvar.NewInt("budget_waits")
	BudgetOverruns        = expvar.NewInt("budget_overruns") // 等待后仍无预算、照常调用
	InferenceCalls        = expvar.NewInt("inference_calls")
	InferenceFailures     = expvar.NewMap("inference_failures") // key: 错误类型
	ActionsExecuted       = expvar.NewInt("actions_executed")
	ActionsSuppressed     = expvar.NewMap("actions_suppressed") // key: risk:<rule> / inference:<kind>
	SinkErrors            = expvar.NewInt("sink_errors")
	JournalErrors         = expvar.NewInt("journal_errors")
)
