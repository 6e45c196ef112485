package journal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/signalbot/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(OpenOptions{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var n int
	s.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	return s
}

func action(id, symbol string, exec bool) domain.Action {
	sig := domain.Signal{ID: id, Symbol: symbol, Timeframe: "15m", Bias: domain.BiasBullish}
	d := domain.Decision{Action: domain.ActionLong, Confidence: 0.8, Symbol: symbol, RawPrompt: "prompt " + id}
	if exec {
		return domain.Execute(sig, d)
	}
	return domain.Suppressed(sig, d, domain.Cause{Kind: domain.CauseRisk, Code: "open_position"})
}

func TestStore_RecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, action("a", "BTCUSDT", true)))
	require.NoError(t, s.Record(ctx, action("b", "ETHUSDT", false)))
	require.NoError(t, s.Record(ctx, action("c", "BTCUSDT", false)))

	all, err := s.Recent(10, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	// 最新的在前
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].SignalID, all[1].SignalID, all[2].SignalID})

	assert.Equal(t, domain.OutcomeSuppressed, all[1].Outcome)
	assert.Equal(t, "risk:open_position", all[1].Cause)
	assert.Equal(t, "prompt b", all[1].RawPrompt)
	assert.Empty(t, all[2].Cause)

	btc, err := s.Recent(1, "btcusdt")
	require.NoError(t, err)
	require.Len(t, btc, 1)
	assert.Equal(t, "c", btc[0].SignalID)
}

func TestStore_RecordHonorsCanceledContext(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, s.Record(ctx, action("a", "BTCUSDT", true)))
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(OpenOptions{})
	assert.Error(t, err)

	mem, err := Open(OpenOptions{InMemory: true})
	require.NoError(t, err)
	assert.NoError(t, mem.Close())
}
