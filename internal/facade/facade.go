// Package facade is the process-wide orchestrator: it constructs and
// wires the consent, channel, fusion, heads, and upload modules into
// the module registry, drives the shared lifecycle
// {uninitialized -> initialized -> running -> stopped -> disposed}, and
// re-exposes their observable streams and mutating operations as a
// single library surface. Everything below is a thin, re-entrant-safe
// wrapper over already-lifecycle-managed modules; the Engine itself
// holds no domain state of its own.
package facade

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/synheart/synheart-runtime/internal/broadcast"
	"github.com/synheart/synheart-runtime/internal/channel"
	"github.com/synheart/synheart-runtime/internal/consent"
	synevent "github.com/synheart/synheart-runtime/internal/event"
	"github.com/synheart/synheart-runtime/internal/fusion"
	"github.com/synheart/synheart-runtime/internal/heads"
	"github.com/synheart/synheart-runtime/internal/registry"
	"github.com/synheart/synheart-runtime/internal/synerr"
	"github.com/synheart/synheart-runtime/internal/upload"
	"github.com/synheart/synheart-runtime/pkg/models"
	"github.com/synheart/synheart-runtime/pkg/module"
)

// Sources bundles the external boundary adapters the channel
// aggregators attach to. Any field may be nil — the corresponding
// channel simply never produces samples, as if the device lacked that
// sensor.
type Sources struct {
	Wear     channel.WearSource
	Phone    channel.PhoneSource
	Behavior channel.BehaviorSource
}

// Engine is the injectable backing value behind the process-wide
// facade singleton (see singleton.go). It is not itself a
// module.Module: it is the thing that constructs, wires, and drives
// the five runtime modules through the registry.
type Engine struct {
	mu     sync.Mutex
	status module.Status
	logger *zap.Logger

	store   module.Store
	secure  module.SecureStore
	sources Sources

	cfg    module.Config
	userID string

	reg *registry.Registry
	bus *synevent.Bus

	consentMod *consent.Module
	channelMod *channel.Module
	fusionMod  *fusion.Engine
	headsMod   *heads.Module
	uploadMod  *upload.Module
}

// New constructs an uninitialized Engine. store and secure may be nil —
// every wired module degrades to in-memory-only persistence rather than
// failing, exactly as each module's own Init already tolerates.
func New(sources Sources, store module.Store, secure module.SecureStore, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		status:  module.StatusUninitialized,
		logger:  logger,
		store:   store,
		secure:  secure,
		sources: sources,
	}
}

// Status reports the facade's current lifecycle state.
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

// Initialize constructs, registers, and initializes every module in
// dependency order (consent -> channel -> fusion -> heads, upload).
// cfg is threaded into every module's Dependencies.Config unscoped, the
// way each module's own Init already expects (e.g. consent and fusion
// both read top-level keys like "cloud" and "device" directly off it).
// autoStart additionally starts data collection before returning.
func (e *Engine) Initialize(ctx context.Context, userID string, cfg module.Config, autoStart bool) error {
	if e.Status() != module.StatusUninitialized {
		return synerr.ErrAlreadyInitialized
	}

	e.bus = synevent.NewBus(e.logger.Named("bus"))
	e.reg = registry.New(e.logger.Named("registry"))

	e.consentMod = consent.New()
	e.channelMod = channel.New(e.sources.Wear, e.sources.Phone, e.sources.Behavior)
	e.fusionMod = fusion.New()
	e.headsMod = heads.New()
	e.uploadMod = upload.New()

	for _, m := range []module.Module{e.consentMod, e.channelMod, e.fusionMod, e.headsMod, e.uploadMod} {
		if err := e.reg.Register(m); err != nil {
			return fmt.Errorf("facade: register %s: %w", m.Info().Name, err)
		}
	}
	if err := e.reg.Validate(); err != nil {
		return fmt.Errorf("facade: validate dependency graph: %w", err)
	}

	e.cfg = cfg
	e.userID = userID

	depsFn := func(name string) module.Dependencies {
		return module.Dependencies{
			Config:  cfg,
			Logger:  e.logger.Named(name),
			Bus:     e.bus,
			Modules: e.reg,
			Store:   e.store,
			Secure:  e.secure,
		}
	}
	if err := e.reg.InitAll(ctx, depsFn); err != nil {
		return fmt.Errorf("facade: init modules: %w", err)
	}

	e.setStatus(module.StatusInitialized)

	if autoStart {
		return e.StartDataCollection(ctx)
	}
	return nil
}

// StartDataCollection starts every registered module. Safe to call
// again after StopDataCollection, and a no-op if already running.
func (e *Engine) StartDataCollection(ctx context.Context) error {
	status := e.Status()
	if status == module.StatusRunning {
		return nil
	}
	if status != module.StatusInitialized && status != module.StatusStopped {
		return synerr.ErrNotInitialized
	}
	if err := e.reg.StartAll(ctx); err != nil {
		return fmt.Errorf("facade: start modules: %w", err)
	}
	e.setStatus(module.StatusRunning)
	return nil
}

// StopDataCollection stops every registered module, leaving persisted
// state (consent, queue) untouched. A no-op if not currently running.
func (e *Engine) StopDataCollection(ctx context.Context) error {
	if e.Status() != module.StatusRunning {
		return nil
	}
	e.reg.StopAll(ctx)
	e.setStatus(module.StatusStopped)
	return nil
}

// StartChannel attaches one channel aggregator to its source adapter
// independently of the others. channelName is one of
// models.ChannelBiosignals / ChannelMotion / ChannelBehavior.
func (e *Engine) StartChannel(ctx context.Context, channelName string) error {
	switch channelName {
	case models.ChannelBiosignals:
		return e.channelMod.Wear.Start(ctx)
	case models.ChannelMotion:
		return e.channelMod.Phone.Start(ctx)
	case models.ChannelBehavior:
		return e.channelMod.Behavior.Start(ctx)
	default:
		return fmt.Errorf("facade: unknown channel %q", channelName)
	}
}

// StopChannel detaches one channel aggregator from its source adapter.
// Buffers are left intact; pair with DeleteModuleData("channel") to
// also clear them.
func (e *Engine) StopChannel(channelName string) error {
	switch channelName {
	case models.ChannelBiosignals:
		e.channelMod.Wear.Stop()
	case models.ChannelMotion:
		e.channelMod.Phone.Stop()
	case models.ChannelBehavior:
		e.channelMod.Behavior.Stop()
	default:
		return fmt.Errorf("facade: unknown channel %q", channelName)
	}
	return nil
}

// EnableEmotion toggles the emotion interpretation head.
func (e *Engine) EnableEmotion(on bool) { e.headsMod.EnableEmotion(on) }

// EnableFocus toggles the focus interpretation head.
func (e *Engine) EnableFocus(on bool) { e.headsMod.EnableFocus(on) }

// EnableCloud toggles cloud_upload consent. Enabling requires a cloud
// config (base_url/tenant_id/tenant_secret) to already have been
// supplied to Initialize — the §7 InvalidConfig kind otherwise.
func (e *Engine) EnableCloud(ctx context.Context, on bool) error {
	if !on {
		return e.DenyConsent(ctx, models.ChannelCloudUpload)
	}
	if err := e.requireCloudConfig(); err != nil {
		return err
	}
	return e.GrantConsent(ctx, models.ChannelCloudUpload)
}

func (e *Engine) requireCloudConfig() error {
	if e.cfg == nil {
		return synerr.NewInvalidConfig("cloud upload requires cloud.base_url, cloud.tenant_id, cloud.tenant_secret")
	}
	cloud := e.cfg.Sub("cloud")
	if cloud == nil || cloud.GetString("base_url") == "" || cloud.GetString("tenant_id") == "" || cloud.GetString("tenant_secret") == "" {
		return synerr.NewInvalidConfig("cloud upload requires cloud.base_url, cloud.tenant_id, cloud.tenant_secret")
	}
	return nil
}

// UpdateConsent replaces the entire consent snapshot. Callers typically
// prefer GrantConsent/DenyConsent/RevokeConsent for single-channel
// changes; this is the bulk form.
func (e *Engine) UpdateConsent(ctx context.Context, next models.ConsentSnapshot) error {
	return e.consentMod.Store.Update(ctx, next)
}

// GrantConsent grants a single channel, leaving the others untouched.
func (e *Engine) GrantConsent(ctx context.Context, channelName string) error {
	next := e.consentMod.Store.Current()
	if err := setChannel(&next, channelName, true); err != nil {
		return err
	}
	return e.consentMod.Store.Update(ctx, next)
}

// DenyConsent denies a single channel, leaving the others untouched.
func (e *Engine) DenyConsent(ctx context.Context, channelName string) error {
	next := e.consentMod.Store.Current()
	if err := setChannel(&next, channelName, false); err != nil {
		return err
	}
	return e.consentMod.Store.Update(ctx, next)
}

// RevokeConsent denies the channel locally (authoritative, takes effect
// immediately) and best-effort notifies the consent service. A failure
// to reach the consent service does not undo the local denial.
func (e *Engine) RevokeConsent(ctx context.Context, channelName string) error {
	if err := e.DenyConsent(ctx, channelName); err != nil {
		return err
	}
	tok, ok := e.consentMod.Tokens.Current()
	if !ok {
		return nil
	}
	deviceID, err := e.consentMod.Tokens.DeviceID(ctx)
	if err != nil {
		return nil
	}
	_ = e.consentMod.Tokens.RevokeConsent(ctx, deviceID, tok.ProfileID)
	return nil
}

// GetConsentStatus returns the current consent snapshot.
func (e *Engine) GetConsentStatus() models.ConsentSnapshot {
	return e.consentMod.Store.Current()
}

func setChannel(s *models.ConsentSnapshot, channelName string, v bool) error {
	switch channelName {
	case models.ChannelBiosignals:
		s.Biosignals = v
	case models.ChannelBehavior:
		s.Behavior = v
	case models.ChannelMotion:
		s.Motion = v
	case models.ChannelCloudUpload:
		s.CloudUpload = v
	default:
		return fmt.Errorf("facade: unknown consent channel %q", channelName)
	}
	return nil
}

// UploadNow forces an immediate flush of whatever is currently queued.
func (e *Engine) UploadNow(ctx context.Context) error { return e.uploadMod.UploadNow(ctx) }

// FlushUploadQueue drains the upload queue entirely.
func (e *Engine) FlushUploadQueue(ctx context.Context) error { return e.uploadMod.FlushQueue(ctx) }

// DeleteLocalData wipes every module's locally persisted state: the
// consent snapshot and token, channel raw-sample buffers, and the
// upload queue. It never reaches the network; pair with DeleteCloudData
// to also purge already-uploaded data.
func (e *Engine) DeleteLocalData(ctx context.Context) error {
	if err := e.consentMod.Store.Reset(ctx); err != nil {
		return fmt.Errorf("facade: reset consent snapshot: %w", err)
	}
	if err := e.consentMod.Tokens.Forget(ctx); err != nil {
		return fmt.Errorf("facade: forget consent token: %w", err)
	}
	e.clearChannelBuffers()
	if err := e.uploadMod.ClearQueue(ctx); err != nil {
		return fmt.Errorf("facade: clear upload queue: %w", err)
	}
	return nil
}

// DeleteModuleData wipes the named module's persisted state only.
// moduleName is one of "consent", "channel", "upload".
func (e *Engine) DeleteModuleData(ctx context.Context, moduleName string) error {
	switch moduleName {
	case "consent":
		if err := e.consentMod.Store.Reset(ctx); err != nil {
			return err
		}
		return e.consentMod.Tokens.Forget(ctx)
	case "channel":
		e.clearChannelBuffers()
		return nil
	case "upload":
		return e.uploadMod.ClearQueue(ctx)
	default:
		return fmt.Errorf("facade: unknown module %q", moduleName)
	}
}

func (e *Engine) clearChannelBuffers() {
	if e.channelMod.Wear != nil {
		e.channelMod.Wear.ClearCache()
	}
	if e.channelMod.Phone != nil {
		e.channelMod.Phone.ClearCache()
	}
	if e.channelMod.Behavior != nil {
		e.channelMod.Behavior.ClearCache()
	}
}

// DeleteCloudData issues a best-effort request to purge everything
// already uploaded for this tenant, then clears the local queue.
func (e *Engine) DeleteCloudData(ctx context.Context) error {
	return e.uploadMod.DeleteCloudData(ctx)
}

// HSVUpdates is the main HSV broadcast, merged with whatever heads are
// currently enabled: late subscribers see the enriched form, the heads
// module's own tick-by-tick republish of the fusion stream.
func (e *Engine) HSVUpdates() *broadcast.Stream[models.HumanStateVector] {
	return e.headsMod.EnrichedStream()
}

// EmotionUpdates is the broadcast of emotion-head enrichments alone.
func (e *Engine) EmotionUpdates() *broadcast.Stream[models.EmotionState] {
	return e.headsMod.EmotionStream()
}

// FocusUpdates is the broadcast of focus-head enrichments alone.
func (e *Engine) FocusUpdates() *broadcast.Stream[models.FocusState] {
	return e.headsMod.FocusStream()
}

// WearSampleStream is the raw wearable sample broadcast.
func (e *Engine) WearSampleStream() *broadcast.Stream[models.WearSample] {
	return e.channelMod.Wear.RawSampleStream()
}

// BehaviorEventStream is the raw behavior-event broadcast.
func (e *Engine) BehaviorEventStream() *broadcast.Stream[models.BehaviorEvent] {
	return e.channelMod.Behavior.RawSampleStream()
}

// StartBehaviorSession starts a new behavior session, delegating to the
// behavior channel aggregator.
func (e *Engine) StartBehaviorSession(sessionID string, now time.Time) *models.BehaviorSession {
	return e.channelMod.Behavior.StartSession(sessionID, now)
}

// EndBehaviorSession ends the active behavior session, if any, and
// returns its summary. Idempotent: calling it again after a session has
// already ended returns the same summary.
func (e *Engine) EndBehaviorSession(ctx context.Context, now time.Time) (*models.BehaviorSessionSummary, error) {
	return e.channelMod.Behavior.End(ctx, now)
}

// Dispose cancels every module's tasks and awaits quiescence, per §5's
// "dispose cancels all tasks and awaits quiescence". Idempotent.
func (e *Engine) Dispose(ctx context.Context) error {
	if e.Status() == module.StatusDisposed {
		return nil
	}
	if e.reg != nil {
		if e.Status() == module.StatusRunning {
			e.reg.StopAll(ctx)
		}
		e.reg.DisposeAll(ctx)
	}
	e.setStatus(module.StatusDisposed)
	return nil
}
