package audit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"argus/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// captureSink records sink calls for assertions.
type captureSink struct {
	mu      sync.Mutex
	alerts  []*core.SecurityEvent
	batches [][]*core.SecurityEvent
}

func (s *captureSink) DispatchAlert(_ context.Context, e *core.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, e)
	return nil
}

func (s *captureSink) FlushEvents(_ context.Context, events []*core.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := make([]*core.SecurityEvent, len(events))
	copy(batch, events)
	s.batches = append(s.batches, batch)
	return nil
}

func (s *captureSink) alertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

func (s *captureSink) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func newTestPipeline(t *testing.T, cfg Config) (*Pipeline, *captureSink) {
	t.Helper()
	logger := zap.NewNop().Sugar()
	tracker := NewBaselineTracker(nil, 0, logger)
	sink := &captureSink{}
	return NewPipeline(cfg, tracker, sink, testSensitivityIndex(), logger), sink
}

func TestPipelineVerificationFallback(t *testing.T) {
	p, _ := newTestPipelineDefault(t)

	e := core.NewSecurityEvent(core.EventResourceAccess)
	e.ActorID = "user-1"
	e.Action = "delete_user"
	p.Log(e)

	require.NotNil(t, e.Verification, "the original event should carry an unverified marker")
	assert.False(t, e.Verification.Verified)

	secondaries := p.EventsByType(core.EventActionVerification, 0)
	require.Len(t, secondaries, 1, "exactly one verification-failure event should be recorded")
	sec := secondaries[0]
	assert.Equal(t, core.OutcomeFailure, sec.Outcome)
	assert.Equal(t, "user-1", sec.ActorID)
	assert.Equal(t, e.EventID, sec.Details["original_event_id"])
	require.NotNil(t, sec.Verification)
	assert.True(t, sec.Verification.Verified, "the secondary must not trigger further synthesis")

	// Both the original and the secondary land in the buffer.
	assert.Equal(t, 2, p.BufferLen())
}

func TestPipelineNoFallbackWhenVerified(t *testing.T) {
	p, _ := newTestPipelineDefault(t)

	e := core.NewSecurityEvent(core.EventResourceAccess)
	e.ActorID = "user-1"
	e.Action = "delete_user"
	e.Verification = &core.Verification{Verified: true}
	p.Log(e)

	assert.Empty(t, p.EventsByType(core.EventActionVerification, 0))
	assert.Equal(t, 1, p.BufferLen())
}

func TestPipelineNoFallbackForRoutineActions(t *testing.T) {
	p, _ := newTestPipelineDefault(t)

	e := core.NewSecurityEvent(core.EventResourceAccess)
	e.ActorID = "user-1"
	e.Action = "read_document"
	p.Log(e)

	assert.Nil(t, e.Verification)
	assert.Empty(t, p.EventsByType(core.EventActionVerification, 0))
}

func TestPipelineVerificationDisabledByConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ActionVerificationRequired = false
	p, _ := newTestPipeline(t, cfg)

	e := core.NewSecurityEvent(core.EventResourceAccess)
	e.ActorID = "user-1"
	e.Action = "delete_user"
	p.Log(e)

	assert.Nil(t, e.Verification)
	assert.Empty(t, p.EventsByType(core.EventActionVerification, 0))
}

func TestPipelineDisabledTypesAreDropped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnabledEventTypes = []core.EventType{core.EventAuthSuccess}
	p, _ := newTestPipeline(t, cfg)

	p.LogAuthFailure("user-1", "10.0.0.1", "cli/1.0", "bad password")
	assert.Equal(t, 0, p.BufferLen())

	p.LogAuthSuccess("user-1", "10.0.0.1", "cli/1.0", nil)
	assert.Equal(t, 1, p.BufferLen())
}

func TestPipelineBruteForceEscalation(t *testing.T) {
	p, _ := newTestPipelineDefault(t)

	for i := 0; i < 6; i++ {
		p.LogAuthFailure("attacker", "10.0.0.1", "cli/1.0", "bad password")
	}

	failures := p.EventsForActor("attacker", 0)
	var latest *core.SecurityEvent
	for _, e := range failures {
		if e.Type == core.EventAuthFailure {
			latest = e
			break
		}
	}
	require.NotNil(t, latest)
	assert.Equal(t, core.SeverityHigh, latest.Severity,
		"the sixth failure inside the window should classify high")

	// The sixth call also trips the auth_failure rate limit.
	limited := p.EventsByType(core.EventRateLimitExceeded, 0)
	require.NotEmpty(t, limited)
	assert.Equal(t, core.OutcomeBlocked, limited[0].Outcome)
	assert.Equal(t, "attacker", limited[0].ActorID)
}

func TestPipelineStorageThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSeverityStorage = core.SeverityMedium
	p, _ := newTestPipeline(t, cfg)

	p.LogAuthSuccess("user-1", "10.0.0.1", "cli/1.0", nil)
	assert.Equal(t, 0, p.BufferLen(), "info events fall below the storage threshold")

	p.LogImpersonationAttempt("user-2", "admin", "10.0.0.9")
	assert.Equal(t, 1, p.BufferLen())
}

func TestPipelineAlertDispatch(t *testing.T) {
	p, sink := newTestPipelineDefault(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.Start(ctx)
	defer p.Stop()

	var hooked []*core.SecurityEvent
	var hookMu sync.Mutex
	p.AddAlertHook(func(e *core.SecurityEvent) {
		hookMu.Lock()
		hooked = append(hooked, e)
		hookMu.Unlock()
	})

	p.LogImpersonationAttempt("user-1", "admin", "10.0.0.9")
	p.LogAuthSuccess("user-2", "10.0.0.1", "cli/1.0", nil)

	require.Eventually(t, func() bool {
		return sink.alertCount() == 1
	}, 2*time.Second, 10*time.Millisecond, "only the critical event should be dispatched")

	hookMu.Lock()
	defer hookMu.Unlock()
	require.Len(t, hooked, 1)
	assert.Equal(t, core.EventImpersonationAttempt, hooked[0].Type)
}

func TestPipelineFlushWatermark(t *testing.T) {
	p, sink := newTestPipelineDefault(t)
	ctx := context.Background()

	p.LogAuthSuccess("user-1", "10.0.0.1", "cli/1.0", nil)
	p.LogAuthSuccess("user-2", "10.0.0.2", "cli/1.0", nil)

	p.FlushNow(ctx)
	require.Equal(t, 1, sink.batchCount())
	assert.Len(t, sink.batches[0], 2)
	assert.Equal(t, 2, p.BufferLen(), "flushing must not clear the buffer")

	// Nothing new: no second batch.
	p.FlushNow(ctx)
	assert.Equal(t, 1, sink.batchCount())

	p.LogAuthSuccess("user-3", "10.0.0.3", "cli/1.0", nil)
	p.FlushNow(ctx)
	require.Equal(t, 2, sink.batchCount())
	assert.Len(t, sink.batches[1], 1, "only events newer than the watermark are resent")
}

func TestPipelineQueries(t *testing.T) {
	p, _ := newTestPipelineDefault(t)

	p.LogAuthSuccess("user-1", "10.0.0.1", "cli/1.0", nil)
	p.LogAuthFailure("user-1", "10.0.0.1", "cli/1.0", "bad password")
	p.LogImpersonationAttempt("user-2", "admin", "10.0.0.9")

	assert.Len(t, p.EventsForActor("user-1", 0), 2)
	assert.Len(t, p.EventsByType(core.EventAuthFailure, 0), 1)

	high := p.HighSeverityEvents(0)
	require.Len(t, high, 1)
	assert.Equal(t, core.SeverityCritical, high[0].Severity)

	assert.InDelta(t, core.UnknownActorRiskScore, p.ActorRiskScore("stranger"), 0.01)
	score := p.ActorRiskScore("user-1")
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 100.0)
}

func TestPipelineInvalidEventsAreDropped(t *testing.T) {
	p, _ := newTestPipelineDefault(t)

	p.Log(nil)
	assert.Equal(t, 0, p.BufferLen())
}

func TestPipelineConcurrentLogging(t *testing.T) {
	p, _ := newTestPipelineDefault(t)

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			// Stay under the per-action rate limit so no synthetic
			// rate-limit events are added to the count.
			for i := 0; i < 15; i++ {
				p.LogResourceAccess(fmt.Sprintf("user-%d", g), "doc-1", "document", "read", core.OutcomeSuccess)
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, 150, p.BufferLen())
}

func newTestPipelineDefault(t *testing.T) (*Pipeline, *captureSink) {
	return newTestPipeline(t, DefaultConfig())
}
