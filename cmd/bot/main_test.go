package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/signalbot/internal/account"
	"github.com/betbot/signalbot/internal/domain"
	"github.com/betbot/signalbot/internal/risk"
	"github.com/betbot/signalbot/internal/sink"
	"github.com/betbot/signalbot/pkg/config"
)

func TestBuildPolicy(t *testing.T) {
	p := buildPolicy(config.PolicyConfig{
		StrongMomentumRSI: 55,
		DefaultVolatility: "HIGH",
		Symbols:           map[string]config.SymbolPolicyConfig{"ethusdt": {Volatility: "LOW", Context: "range"}},
	})

	assert.Equal(t, 55.0, p.StrongMomentumRSI)
	assert.Equal(t, domain.VolatilityHigh, p.DefaultVolatility)
	assert.Equal(t, "range", p.Symbols["ethusdt"].Context)
}

func TestBuildSink(t *testing.T) {
	dry := buildSink(&config.Config{DryRun: true, ExecutorURL: "http://x"})
	assert.Len(t, dry, 1)

	live := buildSink(&config.Config{AlertWebhook: "http://a", ExecutorURL: "http://x"})
	require.IsType(t, sink.Multi{}, live)
	assert.Len(t, live.(sink.Multi), 3)
}

func TestBuildAccounts(t *testing.T) {
	execution := risk.ExecutionPolicy{}
	assert.IsType(t, &account.Static{}, buildAccounts(&config.Config{}, execution))
	assert.IsType(t, &account.HTTP{}, buildAccounts(&config.Config{AccountURL: "http://acct"}, execution))

	// alerting 不读取账户，即使配置了账户服务也不接入
	assert.Nil(t, buildAccounts(&config.Config{AccountURL: "http://acct"}, risk.AlertingPolicy{}))

	cached := buildAccounts(&config.Config{AccountURL: "http://acct", AccountCacheTTL: time.Second}, execution)
	require.IsType(t, &account.Cached{}, cached)
	cached.(*account.Cached).Close()
}

func TestBuildStreams(t *testing.T) {
	got := buildStreams([]config.StreamConfig{{Symbol: "BTCUSDT", Timeframe: "15m"}})
	require.Len(t, got, 1)
	assert.Equal(t, "15m", got[0].Timeframe)
}
