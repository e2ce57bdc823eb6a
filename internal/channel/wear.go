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

// Adaptive wear polling intervals (§4.4): 5s baseline, 1s while an
// interpretation head needing HRV stability (focus or emotion) is active.
const (
	WearIntervalBaseline = 5 * time.Second
	WearIntervalActive   = 1 * time.Second

	defaultMinCoverage = 0.5
)

// WearChannel buffers consent-gated WearSamples and computes window
// features on demand. Zero value is not usable; construct with NewWear.
type WearChannel struct {
	source  WearSource
	granted func() bool
	logger  *zap.Logger

	buffer *TimeBuffer[models.WearSample]
	stream *broadcast.Stream[models.WearSample]

	mu       sync.Mutex
	cancel   context.CancelFunc
	interval time.Duration
	running  bool

	minCoverage float64
}

// NewWear constructs a WearChannel. granted reports whether biosignals
// consent is currently active; it is consulted per-sample at receipt
// time, not once at Start.
func NewWear(source WearSource, granted func() bool, logger *zap.Logger) *WearChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WearChannel{
		source:      source,
		granted:     granted,
		logger:      logger,
		buffer:      NewTimeBuffer[models.WearSample](models.MaxWindow.Duration(), func(s models.WearSample) time.Time { return s.Timestamp }),
		stream:      broadcast.New[models.WearSample](),
		interval:    WearIntervalBaseline,
		minCoverage: defaultMinCoverage,
	}
}

// RawSampleStream is the broadcast stream of admitted (consent-gated)
// raw samples.
func (w *WearChannel) RawSampleStream() *broadcast.Stream[models.WearSample] {
	return w.stream
}

// Start attaches to the source adapter at the current collection interval.
func (w *WearChannel) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.startLocked(ctx)
}

func (w *WearChannel) startLocked(ctx context.Context) error {
	if w.running {
		return nil
	}
	if w.source == nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	samples, err := w.source.Subscribe(runCtx, w.interval)
	if err != nil {
		cancel()
		return err
	}
	w.cancel = cancel
	w.running = true
	go w.consume(runCtx, samples)
	return nil
}

func (w *WearChannel) consume(ctx context.Context, samples <-chan models.WearSample) {
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-samples:
			if !ok {
				return
			}
			if w.granted == nil || !w.granted() {
				continue
			}
			w.buffer.Insert(sample)
			metrics.ChannelBufferOccupancy.WithLabelValues(models.ChannelBiosignals).Set(float64(w.buffer.Len()))
			w.stream.Publish(sample)
		}
	}
}

// Stop detaches from the source adapter. The buffer is left intact;
// callers wanting to discard data call ClearCache explicitly (consent
// revocation does both).
func (w *WearChannel) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopLocked()
}

func (w *WearChannel) stopLocked() {
	if !w.running {
		return
	}
	w.cancel()
	w.cancel = nil
	w.running = false
}

// ClearCache empties the buffer — called atomically on consent revocation.
func (w *WearChannel) ClearCache() {
	w.buffer.Clear()
	metrics.ChannelBufferOccupancy.WithLabelValues(models.ChannelBiosignals).Set(0)
}

// UpdateCollectionInterval cancels and re-subscribes to the source at a
// new polling cadence. Used by the facade to drop to WearIntervalActive
// while an HRV-dependent head is enabled.
func (w *WearChannel) UpdateCollectionInterval(ctx context.Context, interval time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.interval == interval {
		return nil
	}
	w.interval = interval
	wasRunning := w.running
	w.stopLocked()
	if wasRunning {
		return w.startLocked(ctx)
	}
	return nil
}

// Features aggregates buffered samples over window. ok is false if the
// coverage ratio falls below the aggregator's minimum for this window —
// callers should treat the channel as "no data" for this tick.
func (w *WearChannel) Features(window models.WindowType, now time.Time) (feat models.WearWindowFeatures, ok bool) {
	cutoff := now.Add(-window.Duration())
	samples := w.buffer.Since(cutoff)
	if len(samples) == 0 {
		return models.WearWindowFeatures{}, false
	}

	w.mu.Lock()
	interval := w.interval
	w.mu.Unlock()

	expected := window.Duration().Seconds() / interval.Seconds()
	coverage := float64(len(samples)) / expected
	if coverage > 1 {
		coverage = 1
	}

	var sumHR, sumRMSSD, sumResp, sumMotion float64
	var nHR, nRMSSD, nResp, nMotion int
	for _, s := range samples {
		if s.HR != nil {
			sumHR += *s.HR
			nHR++
		}
		if s.HRVRmssd != nil {
			sumRMSSD += *s.HRVRmssd
			nRMSSD++
		}
		if s.RespRate != nil {
			sumResp += *s.RespRate
			nResp++
		}
		if s.MotionLevel != nil {
			sumMotion += *s.MotionLevel
			nMotion++
		}
	}

	feat = models.WearWindowFeatures{
		HRAvg:          avgOrZero(sumHR, nHR),
		HRVRmssdAvg:    avgOrZero(sumRMSSD, nRMSSD),
		RespRateAvg:    avgOrZero(sumResp, nResp),
		MotionLevelAvg: avgOrZero(sumMotion, nMotion),
		SampleCount:    len(samples),
		CoverageRatio:  coverage,
	}

	return feat, coverage >= w.minCoverage
}

func avgOrZero(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// PhysioStats computes the named HRV sub-channel the emotion head
// consumes directly (hr_mean, rmssd, sdnn, pnn50, mean_rr), derived from
// the buffered samples' rr-interval series rather than the plain
// per-tick averages Features returns. With fewer than two rr-interval
// readings in window only HRMean is filled (rmssd/sdnn/pnn50 are
// undefined on a single interval) and ok is true only if some sample
// carried a heart rate; ok is false when window holds no sample.
func (w *WearChannel) PhysioStats(window models.WindowType, now time.Time) (stats models.PhysioSubchannel, ok bool) {
	cutoff := now.Add(-window.Duration())
	samples := w.buffer.Since(cutoff)
	if len(samples) == 0 {
		return models.PhysioSubchannel{}, false
	}

	var sumHR float64
	var nHR int
	var rr []float64
	for _, s := range samples {
		if s.HR != nil {
			sumHR += *s.HR
			nHR++
		}
		rr = append(rr, s.RRIntervals...)
	}
	stats.HRMean = avgOrZero(sumHR, nHR)

	if len(rr) < 2 {
		return stats, nHR > 0
	}

	var sumRR float64
	for _, v := range rr {
		sumRR += v
	}
	meanRR := sumRR / float64(len(rr))
	stats.MeanRR = meanRR

	var sumSqDev float64
	for _, v := range rr {
		d := v - meanRR
		sumSqDev += d * d
	}
	stats.SDNN = sqrtWear(sumSqDev / float64(len(rr)))

	var sumSqDiff float64
	var nn50 int
	for i := 1; i < len(rr); i++ {
		diff := rr[i] - rr[i-1]
		sumSqDiff += diff * diff
		if diff < 0 {
			diff = -diff
		}
		if diff > 50 {
			nn50++
		}
	}
	stats.RMSSD = sqrtWear(sumSqDiff / float64(len(rr)-1))
	stats.PNN50 = float64(nn50) / float64(len(rr)-1)

	return stats, true
}

func sqrtWear(v float64) float64 {
	if v <= 0 {
		return 0
	}
	x := v
	for i := 0; i < 20; i++ {
		x = 0.5 * (x + v/x)
	}
	return x
}
