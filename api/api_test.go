package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"argus/audit"
	"argus/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testSensitivityIndex() *core.SensitivityIndex {
	return core.NewSensitivityIndex(&core.SensitivityPolicy{
		Actions:   []string{"delete_user"},
		Resources: []string{"credentials"},
	})
}

func newTestAPI(t *testing.T, rlConfig APIRateLimiterConfig) (*API, *audit.Pipeline) {
	t.Helper()
	logger := zap.NewNop().Sugar()
	tracker := audit.NewBaselineTracker(nil, 0, logger)
	pipeline := audit.NewPipeline(audit.DefaultConfig(), tracker, nil, testSensitivityIndex(), logger)

	a := NewAPI(pipeline, rlConfig, nil, logger)
	t.Cleanup(func() { a.limiter.Close() })
	return a, pipeline
}

func generousLimit() APIRateLimiterConfig {
	return APIRateLimiterConfig{Limit: 1000, Window: time.Minute, Burst: 1000}
}

func doRequest(a *API, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	a, _ := newTestAPI(t, generousLimit())

	rec := doRequest(a, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestIngestEvent(t *testing.T) {
	a, pipeline := newTestAPI(t, generousLimit())

	payload, _ := json.Marshal(map[string]interface{}{
		"type":     "auth-failure",
		"actor_id": "user-1",
		"action":   "auth_failure",
	})
	rec := doRequest(a, http.MethodPost, "/api/v1/events", payload)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["event_id"])
	assert.Equal(t, "low", body["severity"])

	assert.Len(t, pipeline.EventsForActor("user-1", 0), 1)
}

func TestIngestEventRejectsBadInput(t *testing.T) {
	a, _ := newTestAPI(t, generousLimit())

	rec := doRequest(a, http.MethodPost, "/api/v1/events", []byte("{not json"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	payload, _ := json.Marshal(map[string]interface{}{"type": "no-such-type"})
	rec = doRequest(a, http.MethodPost, "/api/v1/events", payload)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryEndpoints(t *testing.T) {
	a, pipeline := newTestAPI(t, generousLimit())

	pipeline.LogAuthFailure("user-1", "10.0.0.1", "cli/1.0", "bad password")
	pipeline.LogImpersonationAttempt("user-2", "admin", "10.0.0.9")

	rec := doRequest(a, http.MethodGet, "/api/v1/events/actor/user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var actorBody struct {
		Count  int                   `json:"count"`
		Events []*core.SecurityEvent `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &actorBody))
	assert.Equal(t, 1, actorBody.Count)

	rec = doRequest(a, http.MethodGet, "/api/v1/events/type/impersonation-attempt", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(a, http.MethodGet, "/api/v1/events/type/nonsense", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(a, http.MethodGet, "/api/v1/events/high-severity", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var highBody struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &highBody))
	assert.Equal(t, 1, highBody.Count, "only the impersonation attempt is high severity")

	rec = doRequest(a, http.MethodGet, "/api/v1/actors/stranger/risk", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var riskBody struct {
		RiskScore float64 `json:"risk_score"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &riskBody))
	assert.InDelta(t, core.UnknownActorRiskScore, riskBody.RiskScore, 0.01)
}

func TestStatusEndpoint(t *testing.T) {
	a, pipeline := newTestAPI(t, generousLimit())
	pipeline.LogAuthSuccess("user-1", "10.0.0.1", "cli/1.0", nil)

	rec := doRequest(a, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["buffered_events"])
}

func TestRateLimitMiddleware(t *testing.T) {
	a, _ := newTestAPI(t, APIRateLimiterConfig{Limit: 2, Window: time.Minute, Burst: 2})

	for i := 0; i < 2; i++ {
		rec := doRequest(a, http.MethodGet, "/api/v1/status", nil)
		require.Equal(t, http.StatusOK, rec.Code, "request %d should pass", i+1)
	}

	rec := doRequest(a, http.MethodGet, "/api/v1/status", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Health and metrics sit outside the limited subrouter.
	rec = doRequest(a, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitIsPerClient(t *testing.T) {
	a, _ := newTestAPI(t, APIRateLimiterConfig{Limit: 1, Window: time.Minute, Burst: 1})

	for i, addr := range []string{"192.0.2.1:1", "192.0.2.2:1", "192.0.2.3:1"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		a.Router().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, "client %d has its own budget", i)
	}
}

func TestExtractClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:9999"
	assert.Equal(t, "192.0.2.1", extractClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "203.0.113.5", extractClientIP(req))
}

func TestQueryLimitParsing(t *testing.T) {
	tests := []struct {
		raw      string
		expected int
	}{
		{"", defaultQueryLimit},
		{"10", 10},
		{"0", defaultQueryLimit},
		{"-5", defaultQueryLimit},
		{"junk", defaultQueryLimit},
		{fmt.Sprintf("%d", defaultQueryLimit+1), defaultQueryLimit},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/?limit="+tt.raw, nil)
		assert.Equal(t, tt.expected, queryLimit(req), "limit=%q", tt.raw)
	}
}
