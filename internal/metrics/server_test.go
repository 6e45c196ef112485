package metrics

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMux_ExposesCounters(t *testing.T) {
	ActionsSuppressed.Add("risk:low_confidence", 1)
	InferenceFailures.Add("Timeout", 1)

	srv := httptest.NewServer(newMux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/debug/vars")
	require.NoError(t, err)
	defer resp.Body.Close()

	var vars map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&vars))
	assert.Contains(t, string(vars["actions_suppressed"]), "risk:low_confidence")
	assert.Contains(t, string(vars["inference_failures"]), "Timeout")
}

func TestStartAsync_HealthzAndShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s, err := StartAsync(ctx, "127.0.0.1:0")
	require.NoError(t, err)

	resp, err := http.Get("http://" + s.Addr + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	cancel()
}
