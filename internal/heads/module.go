package heads

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/synheart/synheart-runtime/internal/broadcast"
	"github.com/synheart/synheart-runtime/internal/fusion"
	"github.com/synheart/synheart-runtime/pkg/models"
	"github.com/synheart/synheart-runtime/pkg/module"
)

// Module subscribes to the fusion HSV stream and runs the enabled
// interpretation heads over each tick, republishing the enriched HSV
// plus per-head streams the facade exposes as emotionUpdates /
// focusUpdates.
type Module struct {
	mu     sync.Mutex
	status module.Status
	logger *zap.Logger

	fusionMod *fusion.Engine

	emotion *Runner
	focus   *Runner

	emotionEnabled atomic.Bool
	focusEnabled   atomic.Bool

	enrichedStream *broadcast.Stream[models.HumanStateVector]
	emotionStream  *broadcast.Stream[models.EmotionState]
	focusStream    *broadcast.Stream[models.FocusState]

	unsubscribe func()
	cancel      context.CancelFunc
}

// New constructs the heads module with both heads registered but
// disabled; the facade's enableEmotion/enableFocus toggle them on.
func New() *Module {
	return &Module{
		status:         module.StatusUninitialized,
		emotion:        NewRunner(NewEmotionHead(), nil),
		focus:          NewRunner(NewFocusHead(), nil),
		enrichedStream: broadcast.New[models.HumanStateVector](),
		emotionStream:  broadcast.New[models.EmotionState](),
		focusStream:    broadcast.New[models.FocusState](),
	}
}

func (m *Module) Info() module.Info {
	return module.Info{
		Name:         "heads",
		Version:      "1.0.0",
		Description:  "emotion and focus interpretation heads over the fusion HSV stream",
		Dependencies: []string{"fusion"},
		Required:     false,
	}
}

func (m *Module) Status() module.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Module) setStatus(s module.Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

// EnrichedStream returns the broadcast of HSVs run through whichever
// heads are currently enabled.
func (m *Module) EnrichedStream() *broadcast.Stream[models.HumanStateVector] { return m.enrichedStream }

// EmotionStream returns the broadcast of emotion enrichments alone.
func (m *Module) EmotionStream() *broadcast.Stream[models.EmotionState] { return m.emotionStream }

// FocusStream returns the broadcast of focus enrichments alone.
func (m *Module) FocusStream() *broadcast.Stream[models.FocusState] { return m.focusStream }

// EnableEmotion toggles the emotion head on or off, resetting its
// failure counter on re-enable.
func (m *Module) EnableEmotion(on bool) {
	m.emotionEnabled.Store(on)
	if on {
		m.emotion.Reset()
	}
}

// EnableFocus toggles the focus head on or off, resetting its failure
// counter on re-enable.
func (m *Module) EnableFocus(on bool) {
	m.focusEnabled.Store(on)
	if on {
		m.focus.Reset()
	}
}

func (m *Module) Init(ctx context.Context, deps module.Dependencies) error {
	status := m.Status()
	if status != module.StatusUninitialized && status != module.StatusError {
		return nil
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m.logger = logger
	m.emotion = NewRunner(NewEmotionHead(), logger.Named("emotion"))
	m.focus = NewRunner(NewFocusHead(), logger.Named("focus"))

	if deps.Modules != nil {
		if fm, ok := deps.Modules.Resolve("fusion"); ok {
			if engine, ok := fm.(*fusion.Engine); ok {
				m.fusionMod = engine
			}
		}
	}

	m.setStatus(module.StatusInitialized)
	return nil
}

func (m *Module) Start(ctx context.Context) error {
	if m.fusionMod == nil {
		m.setStatus(module.StatusRunning)
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	ch, unsubscribe := m.fusionMod.Stream().Subscribe(8)
	m.unsubscribe = unsubscribe

	go m.run(runCtx, ch)

	m.setStatus(module.StatusRunning)
	return nil
}

func (m *Module) run(ctx context.Context, ch <-chan models.HumanStateVector) {
	for {
		select {
		case <-ctx.Done():
			return
		case hsv, ok := <-ch:
			if !ok {
				return
			}
			m.process(ctx, hsv)
		}
	}
}

func (m *Module) process(ctx context.Context, hsv models.HumanStateVector) {
	out := hsv
	if m.emotionEnabled.Load() {
		enriched, err := m.emotion.Process(ctx, out)
		if err == nil {
			out = enriched
		} else {
			m.logger.Debug("emotion head tick failed", zap.Error(err))
		}
	}
	if m.focusEnabled.Load() {
		enriched, err := m.focus.Process(ctx, out)
		if err == nil {
			out = enriched
		} else {
			m.logger.Debug("focus head tick failed", zap.Error(err))
		}
	}

	m.enrichedStream.Publish(out)
	if out.Emotion != nil {
		m.emotionStream.Publish(*out.Emotion)
	}
	if out.Focus != nil {
		m.focusStream.Publish(*out.Focus)
	}
}

func (m *Module) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	m.setStatus(module.StatusStopped)
	return nil
}

func (m *Module) Dispose(ctx context.Context) error {
	if m.Status() == module.StatusDisposed {
		return nil
	}
	if m.Status() == module.StatusRunning {
		_ = m.Stop(ctx)
	}
	m.setStatus(module.StatusDisposed)
	return nil
}
