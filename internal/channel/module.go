package channel

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/synheart/synheart-runtime/internal/consent"
	synevent "github.com/synheart/synheart-runtime/internal/event"
	"github.com/synheart/synheart-runtime/pkg/models"
	"github.com/synheart/synheart-runtime/pkg/module"
)

// Module composes the three channel aggregators (wear, phone, behavior)
// into the runtime's lifecycle, gating each on the consent module's
// live snapshot and clearing buffers the moment a channel is revoked.
type Module struct {
	mu     sync.Mutex
	status module.Status
	logger *zap.Logger

	Wear     *WearChannel
	Phone    *PhoneChannel
	Behavior *BehaviorChannel

	wearSource     WearSource
	phoneSource    PhoneSource
	behaviorSource BehaviorSource

	unsubscribeRevoked func()
}

// New constructs an uninitialized channel Module. Any source may be nil
// — the corresponding aggregator simply never produces samples, which
// mirrors how a device without that sensor behaves.
func New(wearSource WearSource, phoneSource PhoneSource, behaviorSource BehaviorSource) *Module {
	return &Module{
		status:         module.StatusUninitialized,
		wearSource:     wearSource,
		phoneSource:    phoneSource,
		behaviorSource: behaviorSource,
	}
}

func (m *Module) Info() module.Info {
	return module.Info{
		Name:         "channel",
		Version:      "1.0.0",
		Description:  "wear, phone, and behavior channel aggregators: consent-gated raw buffering and window feature computation",
		Dependencies: []string{"consent"},
		Required:     true,
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

// Init resolves the consent module and wires each aggregator's granted
// callback to its corresponding channel flag in the live snapshot.
func (m *Module) Init(ctx context.Context, deps module.Dependencies) error {
	if m.Status() != module.StatusUninitialized {
		return fmt.Errorf("channel: init called in state %s", m.Status())
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m.logger = logger

	var consentMod *consent.Module
	if deps.Modules != nil {
		if found, ok := deps.Modules.Resolve("consent"); ok {
			if c, ok := found.(*consent.Module); ok {
				consentMod = c
			}
		}
	}

	granted := func(channel string) func() bool {
		return func() bool {
			if consentMod == nil || consentMod.Store == nil {
				return false
			}
			return consentMod.Store.Granted(channel)
		}
	}

	m.Wear = NewWear(m.wearSource, granted(models.ChannelBiosignals), logger.Named("wear"))
	m.Phone = NewPhone(m.phoneSource, granted(models.ChannelMotion), logger.Named("phone"))
	m.Behavior = NewBehavior(m.behaviorSource, granted(models.ChannelBehavior), logger.Named("behavior"))

	if deps.Bus != nil {
		m.unsubscribeRevoked = deps.Bus.Subscribe(synevent.TopicConsentRevoked, m.onConsentRevoked)
	}

	m.setStatus(module.StatusInitialized)
	return nil
}

func (m *Module) onConsentRevoked(ctx context.Context, evt module.Event) {
	transition, ok := evt.Payload.(models.ConsentTransition)
	if !ok {
		return
	}
	switch transition.Channel {
	case models.ChannelBiosignals:
		m.Wear.Stop()
		m.Wear.ClearCache()
	case models.ChannelMotion:
		m.Phone.Stop()
		m.Phone.ClearCache()
	case models.ChannelBehavior:
		m.Behavior.Stop()
		m.Behavior.ClearCache()
	}
	m.logger.Info("channel revoked, buffers cleared", zap.String("channel", transition.Channel))
}

// Start attaches every aggregator to its source adapter. A nil source is
// a no-op — the aggregator simply never receives samples.
func (m *Module) Start(ctx context.Context) error {
	if m.Status() != module.StatusInitialized && m.Status() != module.StatusStopped {
		return fmt.Errorf("channel: start called in state %s", m.Status())
	}

	if err := m.Wear.Start(ctx); err != nil {
		m.setStatus(module.StatusError)
		return fmt.Errorf("channel: start wear: %w", err)
	}
	if err := m.Phone.Start(ctx); err != nil {
		m.setStatus(module.StatusError)
		return fmt.Errorf("channel: start phone: %w", err)
	}
	if err := m.Behavior.Start(ctx); err != nil {
		m.setStatus(module.StatusError)
		return fmt.Errorf("channel: start behavior: %w", err)
	}

	m.setStatus(module.StatusRunning)
	return nil
}

// Stop detaches every aggregator from its source adapter. Buffers are
// left intact; only a consent revocation (or ClearCache) discards them.
func (m *Module) Stop(ctx context.Context) error {
	if m.Wear != nil {
		m.Wear.Stop()
	}
	if m.Phone != nil {
		m.Phone.Stop()
	}
	if m.Behavior != nil {
		m.Behavior.Stop()
	}
	m.setStatus(module.StatusStopped)
	return nil
}

// Dispose unsubscribes from the event bus. Idempotent.
func (m *Module) Dispose(ctx context.Context) error {
	if m.Status() == module.StatusDisposed {
		return nil
	}
	if m.Status() == module.StatusRunning {
		_ = m.Stop(ctx)
	}
	if m.unsubscribeRevoked != nil {
		m.unsubscribeRevoked()
		m.unsubscribeRevoked = nil
	}
	m.setStatus(module.StatusDisposed)
	return nil
}
