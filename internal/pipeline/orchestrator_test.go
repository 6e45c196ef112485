package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/signalbot/internal/domain"
	"github.com/betbot/signalbot/internal/indicators"
	"github.com/betbot/signalbot/internal/inference"
	"github.com/betbot/signalbot/internal/risk"
	"github.com/betbot/signalbot/pkg/ratelimit"
)

type recordingSink struct {
	mu      sync.Mutex
	actions []domain.Action
	err     error
}

func (s *recordingSink) Dispatch(_ context.Context, a domain.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, a)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.actions)
}

type staticAccount struct {
	state domain.AccountState
	err   error
}

func (a staticAccount) AccountState(context.Context, string) (domain.AccountState, error) {
	return a.state, a.err
}

// countingAccount 记录被查询的次数
type countingAccount struct {
	calls atomic.Int32
	err   error
}

func (a *countingAccount) AccountState(context.Context, string) (domain.AccountState, error) {
	a.calls.Add(1)
	return domain.AccountState{}, a.err
}

type fixedDecider struct {
	mu       sync.Mutex
	decision domain.Decision
	calls    int
	prompts  []string
}

func (d *fixedDecider) Decide(_ context.Context, sig domain.Signal, prompt string) domain.Decision {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.prompts = append(d.prompts, prompt)
	out := d.decision
	out.Symbol = sig.Symbol
	out.RawPrompt = prompt
	return out
}

type failingJournal struct{ calls int }

func (j *failingJournal) Record(context.Context, domain.Action) error {
	j.calls++
	return errors.New("disk full")
}

func inferenceServer(t *testing.T, content string, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if delay > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(delay):
			}
		}
		body, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
		})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func mustGate(t *testing.T, profile string) risk.Gate {
	t.Helper()
	g, err := risk.ForProfile(profile)
	require.NoError(t, err)
	return g
}

var bullishStrong = indicators.Reading{Symbol: "BTCUSDT", Timeframe: "15m", Trend: "BULLISH", RSI: indicators.Float(72)}

func newOrchestrator(t *testing.T, decider Decider, profile string, acct AccountProvider, sink Sink, opts Options) *Orchestrator {
	t.Helper()
	budget := ratelimit.NewSlidingWindow(5, time.Minute)
	return NewOrchestrator(indicators.NewNormalizer(indicators.DefaultPolicy()), budget, decider, mustGate(t, profile), acct, sink, opts)
}

func TestScenarioA_ConfidentLongIsExecuted(t *testing.T) {
	srv := inferenceServer(t, "```json\n{\"action\":\"LONG\",\"confidence\":0.9,\"reason\":\"pullback in uptrend\"}\n```", 0)
	budget := ratelimit.NewSlidingWindow(5, time.Minute)
	client := inference.NewClient(inference.Config{BaseURL: srv.URL, APIKey: "k"}, budget)
	sink := &recordingSink{}

	o := NewOrchestrator(indicators.NewNormalizer(indicators.DefaultPolicy()), budget, client,
		mustGate(t, "scalp"), staticAccount{}, sink, Options{})
	action := o.Process(context.Background(), bullishStrong)
	require.NoError(t, o.Close(context.Background()))

	require.True(t, action.Executed())
	assert.Equal(t, domain.ActionLong, action.Decision.Action)
	assert.Equal(t, 0.9, action.Decision.Confidence)
	assert.Equal(t, domain.BiasBullish, action.Signal.Bias)
	assert.Equal(t, domain.MomentumStrong, action.Signal.Momentum)
	assert.Nil(t, action.Cause)
	assert.Equal(t, 1, sink.count())
	assert.Equal(t, 4, budget.Remaining(), "one successful call consumes one slot")
}

func TestScenarioB_TimeoutIsSuppressedAsInferenceFailure(t *testing.T) {
	srv := inferenceServer(t, `{"action":"LONG","confidence":0.9}`, 2*time.Second)
	budget := ratelimit.NewSlidingWindow(5, time.Minute)
	client := inference.NewClient(inference.Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, budget)
	sink := &recordingSink{}

	o := NewOrchestrator(indicators.NewNormalizer(indicators.DefaultPolicy()), budget, client,
		mustGate(t, "scalp"), staticAccount{}, sink, Options{})
	action := o.Process(context.Background(), bullishStrong)
	require.NoError(t, o.Close(context.Background()))

	assert.False(t, action.Executed())
	assert.Equal(t, domain.ActionNoTrade, action.Decision.Action)
	assert.Equal(t, 0.0, action.Decision.Confidence)
	assert.Contains(t, action.Decision.Reason, "Timeout")
	require.NotNil(t, action.Cause)
	assert.Equal(t, domain.CauseInference, action.Cause.Kind)
	assert.Equal(t, "Timeout", action.Cause.Code)
	assert.Equal(t, 0, sink.count())
	assert.Equal(t, 5, budget.Remaining(), "failed call does not consume budget")
}

func TestScenarioC_ShortUnderBothProfiles(t *testing.T) {
	srv := inferenceServer(t, `{"action":"SHORT","confidence":0.95}`, 0)
	reading := indicators.Reading{Symbol: "ETHUSDT", Trend: "BEARISH", RSI: indicators.Float(40)}

	alertSink := &recordingSink{}
	alert := newOrchestrator(t, inference.NewClient(inference.Config{BaseURL: srv.URL}, nil), "alert", staticAccount{}, alertSink, Options{})
	got := alert.Process(context.Background(), reading)
	require.NoError(t, alert.Close(context.Background()))
	require.True(t, got.Executed())
	assert.Equal(t, domain.ActionShort, got.Decision.Action)
	assert.Equal(t, 0.95, got.Decision.Confidence)
	assert.Equal(t, 1, alertSink.count())

	execSink := &recordingSink{}
	exec := newOrchestrator(t, inference.NewClient(inference.Config{BaseURL: srv.URL}, nil), "scalp",
		staticAccount{state: domain.AccountState{HasOpenPosition: true}}, execSink, Options{})
	got = exec.Process(context.Background(), reading)
	require.NoError(t, exec.Close(context.Background()))
	assert.False(t, got.Executed())
	require.NotNil(t, got.Cause)
	assert.Equal(t, domain.CauseRisk, got.Cause.Kind)
	assert.Equal(t, risk.RuleOpenPosition, got.Cause.Code)
	assert.Equal(t, 0, execSink.count())
}

func TestProcess_ExhaustedBudgetWaitsOnceThenProceeds(t *testing.T) {
	decider := &fixedDecider{decision: domain.Decision{Action: domain.ActionLong, Confidence: 0.8}}
	budget := ratelimit.NewSlidingWindow(1, time.Hour)
	o := NewOrchestrator(indicators.NewNormalizer(indicators.DefaultPolicy()), budget, decider,
		mustGate(t, "scalp"), staticAccount{}, &recordingSink{}, Options{BudgetWait: 250 * time.Millisecond})

	var waits []time.Duration
	o.sleep = func(_ context.Context, d time.Duration) { waits = append(waits, d) }

	first := o.Process(context.Background(), bullishStrong)
	second := o.Process(context.Background(), bullishStrong)
	require.NoError(t, o.Close(context.Background()))

	assert.True(t, first.Executed())
	assert.True(t, second.Executed(), "rate pressure alone never drops a signal")
	assert.Equal(t, 2, decider.calls)
	assert.Equal(t, []time.Duration{250 * time.Millisecond}, waits)
}

func TestProcess_RiskDenialIsLabelledAsRisk(t *testing.T) {
	decider := &fixedDecider{decision: domain.Decision{Action: domain.ActionLong, Confidence: 0.5}}
	o := newOrchestrator(t, decider, "scalp", staticAccount{}, &recordingSink{}, Options{})

	action := o.Process(context.Background(), bullishStrong)

	require.NotNil(t, action.Cause)
	assert.Equal(t, "risk:low_confidence", action.Cause.String())
}

func TestProcess_AccountFailureSuppresses(t *testing.T) {
	decider := &fixedDecider{decision: domain.Decision{Action: domain.ActionLong, Confidence: 0.99}}
	sink := &recordingSink{}
	o := newOrchestrator(t, decider, "scalp", staticAccount{err: errors.New("provider down")}, sink, Options{})

	action := o.Process(context.Background(), bullishStrong)
	require.NoError(t, o.Close(context.Background()))

	require.NotNil(t, action.Cause)
	assert.Equal(t, domain.CauseRisk, action.Cause.Kind)
	assert.Equal(t, RuleAccountUnavailable, action.Cause.Code)
	assert.Equal(t, 0, sink.count())
}

func TestProcess_AlertingNeverLoadsAccount(t *testing.T) {
	decider := &fixedDecider{decision: domain.Decision{Action: domain.ActionShort, Confidence: 0.95}}
	accounts := &countingAccount{err: errors.New("provider down")}
	sink := &recordingSink{}
	o := newOrchestrator(t, decider, "alert", accounts, sink, Options{})

	action := o.Process(context.Background(), bullishStrong)
	require.NoError(t, o.Close(context.Background()))

	assert.True(t, action.Executed(), "an account outage cannot suppress a gate that ignores account state")
	assert.Equal(t, int32(0), accounts.calls.Load())
	assert.Equal(t, 1, sink.count())
}

func TestProcess_InferenceFailureWinsOverAccountOutage(t *testing.T) {
	fallback := domain.FallbackDecision(domain.Signal{}, "", domain.ErrorKindTimeout, "deadline exceeded")
	decider := &fixedDecider{decision: fallback}
	accounts := &countingAccount{err: errors.New("provider down")}
	o := newOrchestrator(t, decider, "scalp", accounts, &recordingSink{}, Options{})

	action := o.Process(context.Background(), bullishStrong)

	require.NotNil(t, action.Cause)
	assert.Equal(t, "inference:Timeout", action.Cause.String())
	assert.Equal(t, int32(0), accounts.calls.Load(), "a fallback decision never reaches the account provider")
}

func TestProcess_OverrunFailureKeepsInFlightReservation(t *testing.T) {
	arrived := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) == 0 || !strings.Contains(req.Messages[len(req.Messages)-1].Content, "BTCUSDT") {
			http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
			return
		}
		close(arrived)
		select {
		case <-r.Context().Done():
			return
		case <-release:
		}
		body, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": `{"action":"LONG","confidence":0.9}`}}},
		})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	budget := ratelimit.NewSlidingWindow(1, time.Hour)
	client := inference.NewClient(inference.Config{BaseURL: srv.URL}, budget)
	o := NewOrchestrator(indicators.NewNormalizer(indicators.DefaultPolicy()), budget, client,
		mustGate(t, "alert"), nil, &recordingSink{}, Options{})
	o.sleep = func(context.Context, time.Duration) {}

	// A 预占唯一的槽位并停在推理调用中
	inFlight := make(chan domain.Action, 1)
	go func() { inFlight <- o.Process(context.Background(), bullishStrong) }()
	select {
	case <-arrived:
	case <-time.After(2 * time.Second):
		t.Fatal("first call never reached inference")
	}

	// B 超额调用并失败
	overrun := o.Process(context.Background(), indicators.Reading{Symbol: "ETHUSDT", Trend: "BEARISH"})
	require.NotNil(t, overrun.Cause)
	assert.Equal(t, domain.CauseInference, overrun.Cause.Kind)

	assert.Equal(t, 0, budget.Remaining(), "the failed overrun must not free the in-flight reservation")
	_, ok := budget.TryAcquire()
	assert.False(t, ok, "a third call must not be admitted")

	close(release)
	first := <-inFlight
	require.NoError(t, o.Close(context.Background()))
	assert.True(t, first.Executed())
	assert.Equal(t, 0, budget.Remaining())
}

func TestProcess_JournalAndSinkErrorsDoNotChangeOutcome(t *testing.T) {
	decider := &fixedDecider{decision: domain.Decision{Action: domain.ActionShort, Confidence: 0.9}}
	journal := &failingJournal{}
	sink := &recordingSink{err: errors.New("executor unreachable")}
	o := newOrchestrator(t, decider, "alert", nil, sink, Options{Journal: journal})

	action := o.Process(context.Background(), bullishStrong)
	require.NoError(t, o.Close(context.Background()))

	assert.True(t, action.Executed())
	assert.Equal(t, 1, journal.calls)
	assert.Equal(t, 1, sink.count())
}

func TestProcess_UsesPromptBuilder(t *testing.T) {
	decider := &fixedDecider{decision: domain.Decision{Action: domain.ActionNoTrade}}
	o := newOrchestrator(t, decider, "alert", nil, nil, Options{
		Prompt: func(sig domain.Signal) string { return "custom:" + sig.Symbol },
	})

	action := o.Process(context.Background(), bullishStrong)

	assert.Equal(t, []string{"custom:BTCUSDT"}, decider.prompts)
	assert.Equal(t, "custom:BTCUSDT", action.Decision.RawPrompt)
	assert.Equal(t, "risk:no_trade_action", action.Cause.String())
}

func TestDefaultPrompt_DescribesSignal(t *testing.T) {
	p := DefaultPrompt(domain.Signal{Symbol: "BTCUSDT", Timeframe: "1h", Bias: domain.BiasBearish,
		Momentum: domain.MomentumWeak, Volatility: domain.VolatilityHigh, Context: "breakdown"})

	for _, want := range []string{"BTCUSDT", "1h", "BEARISH", "WEAK", "HIGH", "breakdown", `"action"`} {
		assert.Contains(t, p, want)
	}
}

func TestClose_RejectsLateDispatch(t *testing.T) {
	decider := &fixedDecider{decision: domain.Decision{Action: domain.ActionLong, Confidence: 0.9}}
	sink := &recordingSink{}
	o := newOrchestrator(t, decider, "alert", nil, sink, Options{})
	require.NoError(t, o.Close(context.Background()))

	action := o.Process(context.Background(), bullishStrong)

	assert.True(t, action.Executed())
	assert.Equal(t, 0, sink.count())
}
