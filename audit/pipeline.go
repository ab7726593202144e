package audit

import (
	"context"
	"sync"
	"time"

	"argus/core"
	"argus/metrics"
	"argus/util/goroutine"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AlertSink receives events that cross the alert threshold and periodic
// audit batches. Implementations talk to external systems; all calls are
// made from background goroutines, never from the ingestion path.
type AlertSink interface {
	DispatchAlert(ctx context.Context, e *core.SecurityEvent) error
	FlushEvents(ctx context.Context, events []*core.SecurityEvent) error
}

// alertQueueSize bounds the alert dispatch queue. Overflow drops the alert
// with a metric rather than blocking Log.
const alertQueueSize = 256

// Config holds the pipeline's processing thresholds and intervals.
type Config struct {
	// EnabledEventTypes restricts processing. Empty means all types.
	EnabledEventTypes []core.EventType

	MinSeverityStorage core.Severity
	MinSeverityAlert   core.Severity
	MaxEventsInMemory  int

	ActionVerificationRequired bool
	AnomalyDetectionEnabled    bool
	BehaviorBaselineEnabled    bool

	FlushInterval          time.Duration
	RateLimitSweepInterval time.Duration
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		MinSeverityStorage:         core.SeverityInfo,
		MinSeverityAlert:           core.SeverityHigh,
		MaxEventsInMemory:          core.DefaultBufferCapacity,
		ActionVerificationRequired: true,
		AnomalyDetectionEnabled:    true,
		BehaviorBaselineEnabled:    true,
		FlushInterval:              60 * time.Second,
		RateLimitSweepInterval:     time.Hour,
	}
}

// Pipeline is the event processing core: it rate-checks, baselines, scores
// and classifies each event, retains it in the bounded buffer, and hands
// alert-worthy events to the dispatch queue. Log is safe to call from many
// goroutines and never blocks on network I/O.
type Pipeline struct {
	cfg        Config
	enabled    map[core.EventType]struct{} // nil means all types
	buffer     *core.EventBuffer
	limiter    *RateLimiter
	tracker    *BaselineTracker
	scorer     *AnomalyScorer
	classifier *SeverityClassifier
	sensitive  *core.SensitivityIndex
	sink       AlertSink
	alertCh    chan *core.SecurityEvent
	logger     *zap.SugaredLogger

	hooksMu    sync.RWMutex
	alertHooks []func(*core.SecurityEvent)

	flushMu     sync.Mutex
	lastFlushed time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewPipeline creates a pipeline. sink may be nil when no external sinks
// are configured; tracker must not be nil.
func NewPipeline(cfg Config, tracker *BaselineTracker, sink AlertSink, sensitive *core.SensitivityIndex, logger *zap.SugaredLogger) *Pipeline {
	var enabled map[core.EventType]struct{}
	if len(cfg.EnabledEventTypes) > 0 {
		enabled = make(map[core.EventType]struct{}, len(cfg.EnabledEventTypes))
		for _, t := range cfg.EnabledEventTypes {
			enabled[t] = struct{}{}
		}
	}

	return &Pipeline{
		cfg:        cfg,
		enabled:    enabled,
		buffer:     core.NewEventBuffer(cfg.MaxEventsInMemory),
		limiter:    NewRateLimiter(sensitive, logger),
		tracker:    tracker,
		scorer:     NewAnomalyScorer(tracker, sensitive),
		classifier: NewSeverityClassifier(sensitive),
		sensitive:  sensitive,
		sink:       sink,
		alertCh:    make(chan *core.SecurityEvent, alertQueueSize),
		logger:     logger,
	}
}

// RateLimiter exposes the pipeline's limiter for configuration overrides.
func (p *Pipeline) RateLimiter() *RateLimiter {
	return p.limiter
}

// AddAlertHook registers an in-process observer for dispatched alerts,
// such as a websocket broadcaster. Hooks run on the dispatch goroutine.
func (p *Pipeline) AddAlertHook(hook func(*core.SecurityEvent)) {
	p.hooksMu.Lock()
	defer p.hooksMu.Unlock()
	p.alertHooks = append(p.alertHooks, hook)
}

// Log processes one security event through the full pipeline. It never
// returns an error to the caller: observability code must not become a new
// source of outages for the systems it watches. Events of disabled types
// are dropped silently.
func (p *Pipeline) Log(e *core.SecurityEvent) {
	if e == nil {
		return
	}
	if !e.Type.IsValid() {
		// Missing or unknown discriminant is a programmer error; fail
		// loudly in development builds, drop in production.
		p.logger.DPanicf("dropping event with invalid type %q", e.Type)
		metrics.EventsDropped.WithLabelValues("invalid_type").Inc()
		return
	}
	if !p.typeEnabled(e.Type) {
		metrics.EventsDropped.WithLabelValues("disabled_type").Inc()
		return
	}

	if e.EventID == "" {
		e.EventID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}

	p.process(e, 0)
}

func (p *Pipeline) typeEnabled(t core.EventType) bool {
	if p.enabled == nil {
		return true
	}
	_, ok := p.enabled[t]
	return ok
}

// process runs one event through steps (a)-(h). depth guards the two
// self-emission paths (rate-limit events and verification fallbacks) so
// recursion is fixed at one level.
func (p *Pipeline) process(e *core.SecurityEvent, depth int) {
	if depth == 0 && e.ActorID != "" && e.Action != "" && e.Type != core.EventRateLimitExceeded {
		if p.limiter.CheckAndRecord(e.Action, e.ActorID, e.Timestamp) {
			p.emitRateLimitExceeded(e, depth+1)
		}
	}

	// Bounded scan of the retained buffer; the event itself is not yet
	// appended, so this counts prior occurrences only.
	recentFailures := 0
	if e.ActorID != "" {
		recentFailures = p.buffer.CountRecent(e.ActorID, e.Type, core.RecentFailureWindow, e.Timestamp)
	}

	if depth == 0 && p.cfg.ActionVerificationRequired && e.Verification == nil && p.needsVerification(e) {
		e.Verification = &core.Verification{
			Verified: false,
			Stem:     "audit",
			Action:   e.Action,
		}
		p.emitVerificationFailure(e, depth+1)
	}

	// The score is computed against the baseline as it stood before this
	// event, then the event is folded in. Updating first would mask the
	// event's own novelty.
	var anomalyScore float64
	if e.ActorID != "" {
		if p.cfg.AnomalyDetectionEnabled {
			anomalyScore = p.scorer.Score(e.ActorID, e)
			metrics.AnomalyScores.Observe(anomalyScore)
		}
		if p.cfg.BehaviorBaselineEnabled {
			p.tracker.Update(e.ActorID, e)
			if p.cfg.AnomalyDetectionEnabled {
				p.tracker.RecordRiskScore(e.ActorID, anomalyScore)
			}
		}
	}

	e.Severity = p.classifier.Classify(e, recentFailures, anomalyScore)
	metrics.EventsProcessed.WithLabelValues(string(e.Type), string(e.Severity)).Inc()

	if e.Severity.AtLeast(p.cfg.MinSeverityStorage) {
		p.buffer.Append(e)
		metrics.BufferSize.Set(float64(p.buffer.Len()))
	}

	if e.Severity.AtLeast(p.cfg.MinSeverityAlert) {
		select {
		case p.alertCh <- e:
		default:
			metrics.AlertQueueDropped.Inc()
			p.logger.Warnw("Alert queue full, dropping alert",
				"event_id", e.EventID, "type", e.Type, "severity", e.Severity)
		}
	}
}

// needsVerification reports whether the event touches a sensitive action
// or resource and therefore requires an attached verification record.
func (p *Pipeline) needsVerification(e *core.SecurityEvent) bool {
	if p.sensitive == nil {
		return false
	}
	if e.Action != "" && p.sensitive.SensitiveAction(e.Action) {
		return true
	}
	if e.ResourceType != "" && p.sensitive.SensitiveResource(e.ResourceType) {
		return true
	}
	return false
}

// emitRateLimitExceeded records the violation as its own event. The
// limiter itself never recurses into the pipeline.
func (p *Pipeline) emitRateLimitExceeded(original *core.SecurityEvent, depth int) {
	if !p.typeEnabled(core.EventRateLimitExceeded) {
		return
	}
	rle := core.NewSecurityEvent(core.EventRateLimitExceeded)
	rle.Timestamp = original.Timestamp
	rle.ActorID = original.ActorID
	rle.SourceAddress = original.SourceAddress
	rle.SourceAgent = original.SourceAgent
	rle.Action = original.Action
	rle.Outcome = core.OutcomeBlocked
	rle.Details["limited_action"] = original.Action
	rle.Details["original_event_id"] = original.EventID
	p.process(rle, depth)
}

// emitVerificationFailure records that a sensitive operation arrived
// without verification. The secondary event carries a verified marker for
// the verification system's own action, which stops further synthesis.
func (p *Pipeline) emitVerificationFailure(original *core.SecurityEvent, depth int) {
	if !p.typeEnabled(core.EventActionVerification) {
		return
	}
	secondary := core.NewSecurityEvent(core.EventActionVerification)
	secondary.Timestamp = original.Timestamp
	secondary.ActorID = original.ActorID
	secondary.SourceAddress = original.SourceAddress
	secondary.SourceAgent = original.SourceAgent
	secondary.Action = original.Action
	secondary.ResourceID = original.ResourceID
	secondary.ResourceType = original.ResourceType
	secondary.Outcome = core.OutcomeFailure
	secondary.Details["original_event_id"] = original.EventID
	secondary.Details["reason"] = "missing verification"
	secondary.Verification = &core.Verification{
		Verified: true,
		Stem:     "audit",
		Action:   string(core.EventActionVerification),
	}
	p.process(secondary, depth)
}

// Start launches the background dispatch, flush and sweep loops.
func (p *Pipeline) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		p.cancel = cancel

		p.tracker.Start(runCtx)

		p.wg.Add(3)
		go p.dispatchLoop(runCtx)
		go p.flushLoop(runCtx)
		go p.sweepLoop(runCtx)

		p.logger.Infow("Audit pipeline started",
			"flush_interval", p.cfg.FlushInterval,
			"sweep_interval", p.cfg.RateLimitSweepInterval,
			"buffer_capacity", p.buffer.Capacity())
	})
}

// Stop cancels the background loops and waits for them to finish. In-flight
// Log calls are fast and local, so no hard cancellation is needed.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			p.logger.Warn("Audit pipeline shutdown timed out")
		}

		p.tracker.Stop()
		p.logger.Info("Audit pipeline stopped")
	})
}

// dispatchLoop drains the alert queue into the sink and any registered
// hooks. Sink failures are logged and swallowed: a dropped alert does not
// affect the buffer or the pipeline.
func (p *Pipeline) dispatchLoop(ctx context.Context) {
	defer p.wg.Done()
	defer goroutine.Recover("alert-dispatch", p.logger)

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-p.alertCh:
			p.dispatchAlert(ctx, e)
		}
	}
}

func (p *Pipeline) dispatchAlert(ctx context.Context, e *core.SecurityEvent) {
	metrics.AlertsDispatched.WithLabelValues(string(e.Severity)).Inc()

	p.hooksMu.RLock()
	hooks := p.alertHooks
	p.hooksMu.RUnlock()
	for _, hook := range hooks {
		hook(e)
	}

	if p.sink == nil {
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, core.HTTPClientTimeout)
	defer cancel()
	if err := p.sink.DispatchAlert(sendCtx, e); err != nil {
		metrics.AlertSinkFailures.Inc()
		p.logger.Errorf("Failed to dispatch alert %s: %v", e.EventID, err)
	}
}

// flushLoop batches buffer contents to durable storage on a fixed tick.
func (p *Pipeline) flushLoop(ctx context.Context) {
	defer p.wg.Done()
	defer goroutine.Recover("audit-flush", p.logger)

	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.flushOnce(ctx)
		}
	}
}

// flushOnce sends every retained event newer than the last successful
// flush. On failure the watermark is left untouched: the buffer keeps the
// data until the next successful flush or eviction.
func (p *Pipeline) flushOnce(ctx context.Context) {
	if p.sink == nil {
		return
	}

	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	var pending []*core.SecurityEvent
	var newest time.Time
	for _, e := range p.buffer.Snapshot() {
		if e.Timestamp.After(p.lastFlushed) {
			pending = append(pending, e)
			if e.Timestamp.After(newest) {
				newest = e.Timestamp
			}
		}
	}
	if len(pending) == 0 {
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, core.HTTPClientTimeout)
	defer cancel()
	if err := p.sink.FlushEvents(sendCtx, pending); err != nil {
		metrics.FlushFailures.Inc()
		p.logger.Errorf("Failed to flush %d events: %v", len(pending), err)
		return
	}
	p.lastFlushed = newest
	metrics.FlushBatches.Inc()
	p.logger.Debugf("Flushed %d events", len(pending))
}

// FlushNow immediately flushes unsent retained events, bypassing the
// flush tick. Used on shutdown.
func (p *Pipeline) FlushNow(ctx context.Context) {
	p.flushOnce(ctx)
}

// sweepLoop prunes the rate-limit table on a fixed tick.
func (p *Pipeline) sweepLoop(ctx context.Context) {
	defer p.wg.Done()
	defer goroutine.Recover("ratelimit-sweep", p.logger)

	ticker := time.NewTicker(p.cfg.RateLimitSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.limiter.Sweep(time.Now())
		}
	}
}

// EventsForActor returns retained events for the actor, most recent first.
func (p *Pipeline) EventsForActor(actorID string, limit int) []*core.SecurityEvent {
	return p.buffer.ForActor(actorID, limit)
}

// EventsByType returns retained events of the given type, most recent
// first.
func (p *Pipeline) EventsByType(eventType core.EventType, limit int) []*core.SecurityEvent {
	return p.buffer.ByType(eventType, limit)
}

// HighSeverityEvents returns retained events at high or critical severity,
// most recent first.
func (p *Pipeline) HighSeverityEvents(limit int) []*core.SecurityEvent {
	return p.buffer.ByMinSeverity(core.SeverityHigh, limit)
}

// ActorRiskScore returns the actor's current risk score, defaulting to 50
// for unknown actors.
func (p *Pipeline) ActorRiskScore(actorID string) float64 {
	return p.tracker.RiskScore(actorID)
}

// BufferLen returns the number of retained events.
func (p *Pipeline) BufferLen() int {
	return p.buffer.Len()
}
