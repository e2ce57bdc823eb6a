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

// PhoneChannel buffers consent-gated PhoneSamples and computes window
// features on demand. Zero value is not usable; construct with NewPhone.
type PhoneChannel struct {
	source  PhoneSource
	granted func() bool
	logger  *zap.Logger

	buffer *TimeBuffer[models.PhoneSample]
	stream *broadcast.Stream[models.PhoneSample]

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool

	minCoverage float64
}

// NewPhone constructs a PhoneChannel. granted reports whether motion
// consent is currently active.
func NewPhone(source PhoneSource, granted func() bool, logger *zap.Logger) *PhoneChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PhoneChannel{
		source:      source,
		granted:     granted,
		logger:      logger,
		buffer:      NewTimeBuffer[models.PhoneSample](models.MaxWindow.Duration(), func(s models.PhoneSample) time.Time { return s.Timestamp }),
		stream:      broadcast.New[models.PhoneSample](),
		minCoverage: defaultMinCoverage,
	}
}

// RawSampleStream is the broadcast stream of admitted raw samples.
func (p *PhoneChannel) RawSampleStream() *broadcast.Stream[models.PhoneSample] {
	return p.stream
}

func (p *PhoneChannel) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running || p.source == nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	samples, err := p.source.Subscribe(runCtx)
	if err != nil {
		cancel()
		return err
	}
	p.cancel = cancel
	p.running = true
	go p.consume(runCtx, samples)
	return nil
}

func (p *PhoneChannel) consume(ctx context.Context, samples <-chan models.PhoneSample) {
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-samples:
			if !ok {
				return
			}
			if p.granted == nil || !p.granted() {
				continue
			}
			p.buffer.Insert(sample)
			metrics.ChannelBufferOccupancy.WithLabelValues(models.ChannelMotion).Set(float64(p.buffer.Len()))
			p.stream.Publish(sample)
		}
	}
}

func (p *PhoneChannel) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.cancel()
	p.cancel = nil
	p.running = false
}

// ClearCache empties the buffer — called atomically on consent revocation.
func (p *PhoneChannel) ClearCache() {
	p.buffer.Clear()
	metrics.ChannelBufferOccupancy.WithLabelValues(models.ChannelMotion).Set(0)
}

// Features aggregates buffered samples over window. ok is false only
// when no sample falls inside window.
func (p *PhoneChannel) Features(window models.WindowType, now time.Time) (feat models.PhoneWindowFeatures, ok bool) {
	cutoff := now.Add(-window.Duration())
	samples := p.buffer.Since(cutoff)
	if len(samples) == 0 {
		return models.PhoneWindowFeatures{}, false
	}

	// Phone samples are event-driven (motion/screen callbacks), not
	// polled at a fixed interval, so coverage is judged purely on sample
	// presence rather than an expected-count ratio.
	var sumMotion float64
	var stableCount, screenOnCount, fgChanges int
	for _, s := range samples {
		sumMotion += s.MotionMagnitude
		if s.OrientationStable {
			stableCount++
		}
		if s.ScreenOn {
			screenOnCount++
		}
		if s.ForegroundAppChange {
			fgChanges++
		}
	}

	n := float64(len(samples))
	feat = models.PhoneWindowFeatures{
		MotionIndex:          sumMotion / n,
		PostureStability:     float64(stableCount) / n,
		ScreenOnRatio:        float64(screenOnCount) / n,
		ForegroundAppChanges: fgChanges,
	}
	return feat, true
}
