package channel

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/synheart/synheart-runtime/internal/broadcast"
	"github.com/synheart/synheart-runtime/internal/metrics"
	"github.com/synheart/synheart-runtime/pkg/models"
)

// DefaultIdleThreshold is the default gap (no key event) that closes a
// typing burst for burstiness computation.
const DefaultIdleThreshold = 2 * time.Second

// SessionEndHardCap is the 15s session-end bound. End does not apply it
// itself: End never blocks, and it marks the session incomplete only
// when the ctx it is given is already done.
const SessionEndHardCap = 15 * time.Second

// BehaviorChannel buffers consent-gated BehaviorEvents, computes window
// features on demand, and manages the single active BehaviorSession.
type BehaviorChannel struct {
	source  BehaviorSource
	granted func() bool
	logger  *zap.Logger

	buffer *TimeBuffer[models.BehaviorEvent]
	stream *broadcast.Stream[models.BehaviorEvent]

	mu            sync.Mutex
	cancel        context.CancelFunc
	running       bool
	idleThreshold time.Duration

	session *models.BehaviorSession
}

// NewBehavior constructs a BehaviorChannel. granted reports whether
// behavior consent is currently active.
func NewBehavior(source BehaviorSource, granted func() bool, logger *zap.Logger) *BehaviorChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BehaviorChannel{
		source:        source,
		granted:       granted,
		logger:        logger,
		buffer:        NewTimeBuffer[models.BehaviorEvent](models.MaxWindow.Duration(), func(e models.BehaviorEvent) time.Time { return e.Timestamp }),
		stream:        broadcast.New[models.BehaviorEvent](),
		idleThreshold: DefaultIdleThreshold,
	}
}

// RawSampleStream is the broadcast stream of admitted raw events.
func (b *BehaviorChannel) RawSampleStream() *broadcast.Stream[models.BehaviorEvent] {
	return b.stream
}

func (b *BehaviorChannel) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running || b.source == nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	events, err := b.source.Subscribe(runCtx)
	if err != nil {
		cancel()
		return err
	}
	b.cancel = cancel
	b.running = true
	go b.consume(runCtx, events)
	return nil
}

func (b *BehaviorChannel) consume(ctx context.Context, events <-chan models.BehaviorEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if b.granted == nil || !b.granted() {
				continue
			}
			b.buffer.Insert(evt)
			metrics.ChannelBufferOccupancy.WithLabelValues(models.ChannelBehavior).Set(float64(b.buffer.Len()))
			b.stream.Publish(evt)
			b.appendToActiveSession(evt)
		}
	}
}

func (b *BehaviorChannel) appendToActiveSession(evt models.BehaviorEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil || b.session.Ended() {
		return
	}
	if evt.SessionID != "" && evt.SessionID != b.session.SessionID {
		return
	}
	b.session.Events = append(b.session.Events, evt)
}

func (b *BehaviorChannel) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return
	}
	b.cancel()
	b.cancel = nil
	b.running = false
}

// ClearCache empties the raw buffer — called atomically on consent
// revocation. Does not touch an in-progress session.
func (b *BehaviorChannel) ClearCache() {
	b.buffer.Clear()
	metrics.ChannelBufferOccupancy.WithLabelValues(models.ChannelBehavior).Set(0)
}

// StartSession opens a new active session, replacing any previous
// unended one.
func (b *BehaviorChannel) StartSession(sessionID string, now time.Time) *models.BehaviorSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.session = &models.BehaviorSession{SessionID: sessionID, StartTs: now}
	return b.session
}

// ActiveSession returns the current session, if any.
func (b *BehaviorChannel) ActiveSession() *models.BehaviorSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session
}

// End closes the active session and computes its summary. Calling End
// twice is idempotent: the second call returns the cached summary
// without recomputing it or admitting further events. If ctx is already
// past its deadline when End is called, the session is marked
// incomplete but events already received are preserved.
func (b *BehaviorChannel) End(ctx context.Context, now time.Time) (*models.BehaviorSessionSummary, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return nil, nil
	}
	if b.session.Ended() {
		return b.session.Summary, nil
	}

	b.session.EndTs = &now
	incomplete := ctx.Err() != nil

	summary := summarizeSession(b.session, incomplete)
	b.session.Summary = summary
	return summary, nil
}

func summarizeSession(s *models.BehaviorSession, incomplete bool) *models.BehaviorSessionSummary {
	byType := make(map[string]int)
	for _, e := range s.Events {
		byType[string(e.Type)]++
	}

	var switches int
	for i := 1; i < len(s.Events); i++ {
		if s.Events[i].Type != s.Events[i-1].Type {
			switches++
		}
	}
	taskSwitchRate := 0.0
	if len(s.Events) > 1 {
		taskSwitchRate = float64(switches) / float64(len(s.Events)-1)
	}

	return &models.BehaviorSessionSummary{
		ActivitySummary: models.ActivitySummary{
			TotalEvents: len(s.Events),
			ByType:      byType,
		},
		BehavioralMetrics: models.BehavioralMetrics{
			TaskSwitchRate:   taskSwitchRate,
			AvgTypingBurstMs: avgIntervalMs(s.Events, models.BehaviorTyping),
			AvgTapIntervalMs: avgIntervalMs(s.Events, models.BehaviorTap),
		},
		Incomplete: incomplete,
	}
}

func avgIntervalMs(events []models.BehaviorEvent, want models.BehaviorEventType) float64 {
	var last time.Time
	var sum float64
	var n int
	for _, e := range events {
		if e.Type != want {
			continue
		}
		if !last.IsZero() {
			sum += float64(e.Timestamp.Sub(last).Milliseconds())
			n++
		}
		last = e.Timestamp
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Features aggregates buffered raw events over window into normalized
// interaction-cadence features, independent of any session boundary.
func (b *BehaviorChannel) Features(window models.WindowType, now time.Time) (feat models.BehaviorWindowFeatures, ok bool) {
	cutoff := now.Add(-window.Duration())
	events := b.buffer.Since(cutoff)
	if len(events) == 0 {
		return models.BehaviorWindowFeatures{}, false
	}

	windowMin := window.Duration().Minutes()
	if windowMin <= 0 {
		windowMin = 1
	}

	var taps, typing, scrolls int
	var scrollDistance float64
	var switches, idleGaps int
	var lastTs time.Time
	var lastType models.BehaviorEventType

	b.mu.Lock()
	idleThreshold := b.idleThreshold
	b.mu.Unlock()

	for i, e := range events {
		switch e.Type {
		case models.BehaviorTap:
			taps++
		case models.BehaviorTyping:
			typing++
		case models.BehaviorScroll:
			scrolls++
			scrollDistance += e.Metrics["distance"]
		}
		if i > 0 {
			if e.Type != lastType {
				switches++
			}
			if e.Timestamp.Sub(lastTs) > idleThreshold {
				idleGaps++
			}
		}
		lastTs = e.Timestamp
		lastType = e.Type
	}

	switchRate := float64(switches) / windowMin

	const tapNormMax = 60.0      // taps/min treated as "fully active"
	feat = models.BehaviorWindowFeatures{
		TapRateNorm:      clip01(float64(taps) / windowMin / tapNormMax),
		KeystrokeRate:    float64(typing) / windowMin,
		TypingBurstiness: typingBurstiness(events, idleThreshold),
		ScrollVelocity:   scrollDistance / windowMin,
		AppSwitchRate:    switchRate,
		IdleGaps:         idleGaps,
		FocusHint:        1 / (1 + switchRate),
	}
	return feat, true
}

// typingBurstiness is the coefficient of variation of inter-typing-event
// gaps, clipped to [0,1]; 0 means perfectly regular typing cadence.
func typingBurstiness(events []models.BehaviorEvent, idleThreshold time.Duration) float64 {
	var gaps []float64
	var last time.Time
	for _, e := range events {
		if e.Type != models.BehaviorTyping {
			continue
		}
		if !last.IsZero() {
			gap := float64(e.Timestamp.Sub(last).Milliseconds())
			if gap > 0 && time.Duration(gap)*time.Millisecond <= idleThreshold {
				gaps = append(gaps, gap)
			}
		}
		last = e.Timestamp
	}
	if len(gaps) < 2 {
		return 0
	}

	var sum float64
	for _, g := range gaps {
		sum += g
	}
	mean := sum / float64(len(gaps))
	if mean == 0 {
		return 0
	}

	var variance float64
	for _, g := range gaps {
		d := g - mean
		variance += d * d
	}
	variance /= float64(len(gaps))
	stddev := sqrt(variance)

	return clip01(stddev / mean)
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func sqrt(v float64) float64 {
	if v <= 0 {
		return 0
	}
	// Newton's method: sufficient precision for a bounded [0,1] metric,
	// avoids pulling in math just for one call site's Sqrt.
	x := v
	for i := 0; i < 20; i++ {
		x = 0.5 * (x + v/x)
	}
	return x
}
