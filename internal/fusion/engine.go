// Package fusion implements the Fusion Engine: a fixed-cadence ticker
// that pulls window features from the channel aggregators, imputes
// whatever is missing, computes the axis bundles and 64-D embedding,
// and publishes one HumanStateVector per tick on a last-value-wins
// broadcast stream.
package fusion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/synheart/synheart-runtime/internal/broadcast"
	"github.com/synheart/synheart-runtime/internal/channel"
	"github.com/synheart/synheart-runtime/internal/metrics"
	"github.com/synheart/synheart-runtime/pkg/models"
	"github.com/synheart/synheart-runtime/pkg/module"
)

// DefaultTickInterval is the fusion ticker's default cadence (2 Hz).
const DefaultTickInterval = 500 * time.Millisecond

// featureWindow is the lookback window fusion queries from each channel
// aggregator every tick.
const featureWindow = models.Window30s

// Engine is the fusion Module: resolves the channel module, ticks at
// DefaultTickInterval, and publishes HumanStateVectors.
type Engine struct {
	mu     sync.Mutex
	status module.Status
	logger *zap.Logger

	channels *channel.Module
	imputer  *Imputer
	stream   *broadcast.Stream[models.HumanStateVector]

	sessionID    string
	device       string
	tickInterval time.Duration

	lastValence          float64
	lastValenceStability float64

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs an uninitialized fusion Engine.
func New() *Engine {
	return &Engine{
		status:       module.StatusUninitialized,
		imputer:      NewImputer(),
		stream:       broadcast.New[models.HumanStateVector](),
		tickInterval: DefaultTickInterval,
	}
}

func (e *Engine) Info() module.Info {
	return module.Info{
		Name:         "fusion",
		Version:      "1.0.0",
		Description:  "fixed-cadence channel-feature fusion into HumanStateVector ticks",
		Dependencies: []string{"channel"},
		Required:     true,
	}
}

// Stream is the last-value-wins broadcast of HumanStateVectors.
func (e *Engine) Stream() *broadcast.Stream[models.HumanStateVector] {
	return e.stream
}

func (e *Engine) Status() module.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Engine) setStatus(s module.Status) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

// Init resolves the channel module. Re-entrant from StatusError, per
// the fusion state machine's Error -> Initialized re-init transition.
func (e *Engine) Init(ctx context.Context, deps module.Dependencies) error {
	status := e.Status()
	if status != module.StatusUninitialized && status != module.StatusError {
		return fmt.Errorf("fusion: init called in state %s", status)
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	e.logger = logger
	e.imputer.Reset()

	if deps.Modules != nil {
		if found, ok := deps.Modules.Resolve("channel"); ok {
			if c, ok := found.(*channel.Module); ok {
				e.channels = c
			}
		}
	}

	e.device = "unknown"
	if deps.Config != nil {
		if d := deps.Config.GetString("device"); d != "" {
			e.device = d
		}
		if iv := deps.Config.GetDuration("tick_interval"); iv > 0 {
			e.tickInterval = iv
		}
	}
	e.sessionID = uuid.NewString()

	e.setStatus(module.StatusInitialized)
	return nil
}

// Start begins ticking in a background goroutine.
func (e *Engine) Start(ctx context.Context) error {
	status := e.Status()
	if status != module.StatusInitialized && status != module.StatusStopped {
		return fmt.Errorf("fusion: start called in state %s", status)
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.run(runCtx)

	e.setStatus(module.StatusRunning)
	return nil
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := e.tick(now); err != nil {
				e.logger.Error("fusion fault, transitioning to error", zap.Error(err))
				e.setStatus(module.StatusError)
				return
			}
		}
	}
}

// tick queries every channel's window features, imputes whatever is
// missing (no consent, channel stopped, or insufficient coverage),
// computes the axis bundles and embedding, and publishes one HSV.
// Returns an error — transitioning the engine to Error — only on a
// Fatal (non-finite) invariant violation.
func (e *Engine) tick(now time.Time) error {
	start := time.Now()
	defer func() { metrics.ObserveTickDuration(time.Since(start)) }()

	wear, wearOK := e.queryWear(now)
	phone, phoneOK := e.queryPhone(now)
	behavior, behaviorOK := e.queryBehavior(now)

	imputedWear := e.imputeWear(wear, wearOK)
	imputedPhone := e.imputePhone(phone, phoneOK)
	imputedBehavior := e.imputeBehavior(behavior, behaviorOK)

	e.mu.Lock()
	prevValence, prevStability := e.lastValence, e.lastValenceStability
	e.mu.Unlock()
	axes := computeAxes(imputedWear, imputedPhone, imputedBehavior, prevValence, prevStability)
	physio := e.queryPhysio(now)
	features := featureVector(imputedWear, imputedPhone, imputedBehavior, axes)
	embedding := computeEmbedding(physio, features)

	hsv := models.HumanStateVector{
		Version:   models.HSVVersion,
		Timestamp: now.UTC(),
		Behavior: models.BehaviorFeatures{
			TypingCadence:  imputedBehavior.KeystrokeRate,
			TapRate:        imputedBehavior.TapRateNorm,
			ScrollVelocity: imputedBehavior.ScrollVelocity,
		},
		Context: models.ContextFeatures{
			ScreenActiveRatio: imputedPhone.ScreenOnRatio,
		},
		Meta: models.Meta{
			SessionID:      e.sessionID,
			Device:         e.device,
			SamplingRateHz: 1 / e.tickInterval.Seconds(),
			Embedding:      embedding,
			Axes:           axes,
			Physio:         physio,
		},
	}

	if !hsv.Finite() {
		metrics.FusionTicksTotal.WithLabelValues("nonfinite").Inc()
		return fmt.Errorf("fusion: non-finite HSV at tick %s", now)
	}

	metrics.FusionTicksTotal.WithLabelValues("ok").Inc()
	e.stream.Publish(hsv)
	return nil
}

func (e *Engine) queryWear(now time.Time) (models.WearWindowFeatures, bool) {
	if e.channels == nil || e.channels.Wear == nil {
		return models.WearWindowFeatures{}, false
	}
	return e.channels.Wear.Features(featureWindow, now)
}

func (e *Engine) queryPhone(now time.Time) (models.PhoneWindowFeatures, bool) {
	if e.channels == nil || e.channels.Phone == nil {
		return models.PhoneWindowFeatures{}, false
	}
	return e.channels.Phone.Features(featureWindow, now)
}

func (e *Engine) queryBehavior(now time.Time) (models.BehaviorWindowFeatures, bool) {
	if e.channels == nil || e.channels.Behavior == nil {
		return models.BehaviorWindowFeatures{}, false
	}
	return e.channels.Behavior.Features(featureWindow, now)
}

func (e *Engine) queryPhysio(now time.Time) models.PhysioSubchannel {
	if e.channels == nil || e.channels.Wear == nil {
		return models.PhysioSubchannel{}
	}
	stats, ok := e.channels.Wear.PhysioStats(featureWindow, now)
	if !ok {
		return models.PhysioSubchannel{}
	}
	return stats
}

func (e *Engine) imputeWear(f models.WearWindowFeatures, ok bool) models.WearWindowFeatures {
	return models.WearWindowFeatures{
		HRAvg:          e.imputer.Value("wear.hr_avg", f.HRAvg, ok),
		HRVRmssdAvg:    e.imputer.Value("wear.hrv_rmssd_avg", f.HRVRmssdAvg, ok),
		RespRateAvg:    e.imputer.Value("wear.resp_rate_avg", f.RespRateAvg, ok),
		MotionLevelAvg: e.imputer.Value("wear.motion_level_avg", f.MotionLevelAvg, ok),
		SampleCount:    f.SampleCount,
		CoverageRatio:  f.CoverageRatio,
	}
}

func (e *Engine) imputePhone(f models.PhoneWindowFeatures, ok bool) models.PhoneWindowFeatures {
	return models.PhoneWindowFeatures{
		MotionIndex:          e.imputer.Value("phone.motion_index", f.MotionIndex, ok),
		PostureStability:     e.imputer.Value("phone.posture_stability", f.PostureStability, ok),
		ScreenOnRatio:        e.imputer.Value("phone.screen_on_ratio", f.ScreenOnRatio, ok),
		ForegroundAppChanges: int(e.imputer.Value("phone.foreground_app_changes", float64(f.ForegroundAppChanges), ok)),
	}
}

func (e *Engine) imputeBehavior(f models.BehaviorWindowFeatures, ok bool) models.BehaviorWindowFeatures {
	return models.BehaviorWindowFeatures{
		TapRateNorm:      e.imputer.Value("behavior.tap_rate_norm", f.TapRateNorm, ok),
		KeystrokeRate:    e.imputer.Value("behavior.keystroke_rate", f.KeystrokeRate, ok),
		TypingBurstiness: e.imputer.Value("behavior.typing_burstiness", f.TypingBurstiness, ok),
		ScrollVelocity:   e.imputer.Value("behavior.scroll_velocity", f.ScrollVelocity, ok),
		AppSwitchRate:    e.imputer.Value("behavior.app_switch_rate", f.AppSwitchRate, ok),
		IdleGaps:         int(e.imputer.Value("behavior.idle_gaps", float64(f.IdleGaps), ok)),
		FocusHint:        e.imputer.Value("behavior.focus_hint", f.FocusHint, ok),
	}
}

// SetValence lets an interpretation head feed its affect output back
// into the next tick's axis computation — fusion never computes valence
// itself (spec.md §4.5).
func (e *Engine) SetValence(valence, stability float64) {
	e.mu.Lock()
	e.lastValence = valence
	e.lastValenceStability = stability
	e.mu.Unlock()
}

// Stop halts the ticker. The engine can be Start-ed again afterward.
func (e *Engine) Stop(ctx context.Context) error {
	if e.Status() != module.StatusRunning {
		e.setStatus(module.StatusStopped)
		return nil
	}
	e.cancel()
	<-e.done
	e.setStatus(module.StatusStopped)
	return nil
}

// Dispose stops the engine if still running. Idempotent.
func (e *Engine) Dispose(ctx context.Context) error {
	if e.Status() == module.StatusDisposed {
		return nil
	}
	if e.Status() == module.StatusRunning {
		_ = e.Stop(ctx)
	}
	e.setStatus(module.StatusDisposed)
	return nil
}
