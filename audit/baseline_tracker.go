package audit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"argus/core"
	"argus/metrics"
	"argus/util/goroutine"

	"go.uber.org/zap"
)

// BaselineStore persists behavior baselines. Implementations must be safe
// for concurrent use. The tracker treats all store failures as best-effort:
// they are logged and swallowed, never surfaced to the ingestion path.
type BaselineStore interface {
	Load(ctx context.Context) (map[string]*core.UserBehaviorBaseline, error)
	Save(ctx context.Context, baseline *core.UserBehaviorBaseline) error
}

// persistQueueSize bounds the number of pending baseline writes.
const persistQueueSize = 64

// BaselineTracker maintains the per-actor behavior baselines. Persistence
// is sampled (roughly one update in ten by default) and handed to a
// background writer so Update never blocks on I/O.
type BaselineTracker struct {
	mu         sync.RWMutex
	baselines  map[string]*core.UserBehaviorBaseline
	store      BaselineStore
	sampleRate float64
	persistCh  chan *core.UserBehaviorBaseline
	logger     *zap.SugaredLogger

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewBaselineTracker creates a tracker. store may be nil, in which case
// baselines live only in memory.
func NewBaselineTracker(store BaselineStore, sampleRate float64, logger *zap.SugaredLogger) *BaselineTracker {
	return &BaselineTracker{
		baselines:  make(map[string]*core.UserBehaviorBaseline),
		store:      store,
		sampleRate: sampleRate,
		persistCh:  make(chan *core.UserBehaviorBaseline, persistQueueSize),
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Restore loads persisted baselines from the store. Failures leave the
// tracker empty; baselines rebuild from live traffic.
func (bt *BaselineTracker) Restore(ctx context.Context) error {
	if bt.store == nil {
		return nil
	}
	loaded, err := bt.store.Load(ctx)
	if err != nil {
		return err
	}
	bt.mu.Lock()
	defer bt.mu.Unlock()
	for actorID, b := range loaded {
		bt.baselines[actorID] = b
	}
	bt.logger.Infof("Restored %d behavior baselines", len(loaded))
	return nil
}

// Start launches the background persistence writer.
func (bt *BaselineTracker) Start(ctx context.Context) {
	bt.startOnce.Do(func() {
		writerCtx, cancel := context.WithCancel(ctx)
		bt.cancel = cancel
		go bt.persistLoop(writerCtx)
	})
}

// Stop shuts down the persistence writer and waits for it to drain.
func (bt *BaselineTracker) Stop() {
	if bt.cancel != nil {
		bt.cancel()
		<-bt.done
	}
}

func (bt *BaselineTracker) persistLoop(ctx context.Context) {
	defer close(bt.done)
	defer goroutine.Recover("baseline-persist", bt.logger)

	for {
		select {
		case <-ctx.Done():
			return
		case b := <-bt.persistCh:
			saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := bt.store.Save(saveCtx, b); err != nil {
				metrics.BaselinePersistFailures.Inc()
				bt.logger.Warnf("Failed to persist baseline for actor %s: %v", b.ActorID, err)
			}
			cancel()
		}
	}
}

// Update folds an event into the actor's baseline, creating it on first
// sight, and schedules a sampled persistence write.
func (bt *BaselineTracker) Update(actorID string, e *core.SecurityEvent) {
	bt.mu.Lock()
	b, ok := bt.baselines[actorID]
	if !ok {
		b = core.NewUserBehaviorBaseline(actorID)
		bt.baselines[actorID] = b
	}

	if e.SourceAddress != "" {
		b.RecordAddress(e.SourceAddress)
	}
	if e.GeoLocation != "" {
		b.RecordLocation(e.GeoLocation)
	}
	if e.SourceAgent != "" {
		b.RecordAgent(e.SourceAgent)
	}
	b.HourOfDay[e.Timestamp.Hour()]++
	b.DayOfWeek[int(e.Timestamp.Weekday())]++
	if e.Action != "" {
		b.ActionFrequency[e.Action]++
	}
	if e.ResourceType != "" {
		b.ResourceFrequency[e.ResourceType]++
	}
	b.LastActivityAt = e.Timestamp
	if e.ActorTrustLevel != "" {
		b.TrustLevel = e.ActorTrustLevel
	}

	var snapshot *core.UserBehaviorBaseline
	if bt.store != nil && rand.Float64() < bt.sampleRate {
		snapshot = b.Clone()
	}
	bt.mu.Unlock()

	if snapshot != nil {
		select {
		case bt.persistCh <- snapshot:
		default:
			// Queue full: skip this sample. The next sampled update will
			// carry the newer state anyway.
		}
	}
}

// Get returns a snapshot of the actor's baseline, if one exists.
func (bt *BaselineTracker) Get(actorID string) (*core.UserBehaviorBaseline, bool) {
	bt.mu.RLock()
	defer bt.mu.RUnlock()
	b, ok := bt.baselines[actorID]
	if !ok {
		return nil, false
	}
	return b.Clone(), true
}

// RecordRiskScore stores the most recent anomaly score on the baseline.
func (bt *BaselineTracker) RecordRiskScore(actorID string, score float64) {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	if b, ok := bt.baselines[actorID]; ok {
		b.RiskScore = score
	}
}

// RiskScore returns the actor's current risk score, or the unknown-actor
// default when no baseline exists.
func (bt *BaselineTracker) RiskScore(actorID string) float64 {
	bt.mu.RLock()
	defer bt.mu.RUnlock()
	if b, ok := bt.baselines[actorID]; ok {
		return b.RiskScore
	}
	return core.UnknownActorRiskScore
}
