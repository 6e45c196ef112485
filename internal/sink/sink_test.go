package sink

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/signalbot/internal/domain"
)

var longAction = domain.Execute(
	domain.Signal{ID: "sig-9", Symbol: "BTCUSDT", Timeframe: "15m", Bias: domain.BiasBullish, Momentum: domain.MomentumStrong},
	domain.Decision{Action: domain.ActionLong, Confidence: 0.9, Reason: "pullback"},
)

func TestAlertSink_PostsPayload(t *testing.T) {
	var body alertBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewAlertSink(srv.URL+"/hook", time.Second).Dispatch(context.Background(), longAction))

	assert.Contains(t, body.Text, "BTCUSDT 15m LONG")
	assert.Equal(t, "sig-9", body.Payload.SignalID)
	assert.Equal(t, 0.9, body.Payload.Confidence)
}

func TestAlertSink_RetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, NewAlertSink(srv.URL, time.Second).Dispatch(context.Background(), longAction))
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestOrderSink(t *testing.T) {
	var hits int32
	var auth, idem string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		auth = r.Header.Get("Authorization")
		idem = r.Header.Get("Idempotency-Key")
		assert.Equal(t, "/v1/orders", r.URL.Path)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewOrderSink(srv.URL, "tok", time.Second).Dispatch(context.Background(), longAction)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "orders are never retried")
	assert.Equal(t, "Bearer tok", auth)
	assert.Equal(t, "sig-9", idem)
}

func TestOrderSink_SkipsNonDirectionalAction(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	noTrade := domain.Execute(
		domain.Signal{ID: "sig-10", Symbol: "ETHUSDT"},
		domain.Decision{Action: domain.ActionNoTrade, Confidence: 0.8},
	)
	require.NoError(t, NewOrderSink(srv.URL, "", time.Second).Dispatch(context.Background(), noTrade))
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits), "NO_TRADE is never sent to the executor")
}

type errSink struct{ err error }

func (s errSink) Dispatch(context.Context, domain.Action) error { return s.err }

func TestMulti(t *testing.T) {
	assert.NoError(t, Multi{LogSink{}, nil}.Dispatch(context.Background(), longAction))

	err := Multi{LogSink{}, errSink{errors.New("a")}, errSink{errors.New("b")}}.Dispatch(context.Background(), longAction)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 sink(s) failed")
}
