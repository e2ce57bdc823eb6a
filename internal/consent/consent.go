// Package consent implements the consent subsystem: the local
// ConsentSnapshot store gating every data channel, the cloud Consent
// Token Service that issues and refreshes bearer tokens, and the
// Capability Registry derived from those tokens' scopes. It is the
// single source of truth every other module consults before collecting,
// computing, or exporting anything.
package consent

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/synheart/synheart-runtime/pkg/models"
	"github.com/synheart/synheart-runtime/pkg/module"
)

// Module wires Store, TokenService, and CapabilityRegistry into the
// runtime's lifecycle and dependency graph. It has no dependencies of
// its own: every other module depends on "consent".
type Module struct {
	mu     sync.Mutex
	status module.Status
	logger *zap.Logger

	Store        *Store
	Tokens       *TokenService
	Capabilities *CapabilityRegistry

	platform string
}

// New constructs an uninitialized consent Module.
func New() *Module {
	return &Module{
		status:       module.StatusUninitialized,
		Capabilities: NewCapabilityRegistry(),
	}
}

func (m *Module) Info() module.Info {
	return module.Info{
		Name:        "consent",
		Version:     "1.0.0",
		Description: "local consent snapshot store, cloud token service, and capability registry",
		Required:    true,
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

// Init wires the Store and TokenService to the injected dependencies.
// deps.Secure and deps.Bus may be nil; both sub-components degrade to
// in-memory-only operation rather than failing Init.
func (m *Module) Init(ctx context.Context, deps module.Dependencies) error {
	if m.Status() != module.StatusUninitialized {
		return fmt.Errorf("consent: init called in state %s", m.Status())
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m.logger = logger

	m.Store = NewStore(deps.Secure, deps.Bus, logger.Named("store"))
	m.Tokens = NewTokenService(deps.Secure, deps.Bus, logger.Named("tokens"))

	m.platform = "unknown"
	var cfg CloudConfig
	if deps.Config != nil {
		cloudSection := deps.Config.Sub("cloud")
		if cloudSection != nil {
			cfg = CloudConfig{
				BaseURL:   cloudSection.GetString("base_url"),
				AppID:     cloudSection.GetString("app_id"),
				AppAPIKey: cloudSection.GetString("app_api_key"),
				Platform:  cloudSection.GetString("platform"),
				UserID:    cloudSection.GetString("user_id"),
				Region:    cloudSection.GetString("region"),
			}
		}
		if p := deps.Config.GetString("platform"); p != "" {
			m.platform = p
		}
	}
	if cfg.Platform != "" {
		m.platform = cfg.Platform
	}
	m.Tokens.Configure(cfg)

	m.setStatus(module.StatusInitialized)
	return nil
}

// Start loads the persisted snapshot and token, rebuilds the capability
// table from whatever token was restored, and — if a token was restored
// and the device id resolves — starts the token refresh loop.
func (m *Module) Start(ctx context.Context) error {
	if m.Status() != module.StatusInitialized && m.Status() != module.StatusStopped {
		return fmt.Errorf("consent: start called in state %s", m.Status())
	}

	if err := m.Store.Load(ctx); err != nil {
		m.setStatus(module.StatusError)
		return fmt.Errorf("consent: load snapshot: %w", err)
	}
	if err := m.Tokens.Load(ctx); err != nil {
		m.setStatus(module.StatusError)
		return fmt.Errorf("consent: load token: %w", err)
	}

	if tok, ok := m.Tokens.Current(); ok {
		m.refreshCapabilitiesFromToken(tok)
		deviceID, err := m.Tokens.DeviceID(ctx)
		if err == nil {
			m.Tokens.StartRefreshLoop(ctx, deviceID, m.platform)
		}
	}

	m.setStatus(module.StatusRunning)
	return nil
}

func (m *Module) refreshCapabilitiesFromToken(tok models.ConsentToken) {
	// Without a fetched profile the flags default to whatever scopes the
	// token itself carries; GrantProfile (called by the facade after a
	// successful IssueToken) supplies the authoritative flags.
	flags := models.ConsentProfileFlags{
		Vitals:         tok.HasScope("vitals"),
		Sleep:          tok.HasScope("sleep"),
		Motion:         tok.HasScope("motion"),
		ScreenState:    tok.HasScope("screen_state"),
		Behavior:       tok.HasScope("behavior"),
		Interpretation: tok.HasScope("interpretation"),
	}
	m.Capabilities.UpdateFromProfile(flags, tok.Scopes)
}

// GrantProfile recomputes the capability table from an authoritative
// ConsentProfile fetched from the catalog, paired with the active
// token's scopes. Called by the facade after IssueToken resolves a
// profile.
func (m *Module) GrantProfile(profile models.ConsentProfile, scopes []string) {
	m.Capabilities.UpdateFromProfile(profile.Flags, scopes)
}

// Stop cancels the token refresh loop. The consent snapshot and token
// remain persisted and readable; Stop does not clear them.
func (m *Module) Stop(ctx context.Context) error {
	if m.Status() != module.StatusRunning {
		m.setStatus(module.StatusStopped)
		return nil
	}
	m.Tokens.StopRefreshLoop()
	m.setStatus(module.StatusStopped)
	return nil
}

// Dispose releases the HTTP client. Idempotent.
func (m *Module) Dispose(ctx context.Context) error {
	if m.Status() == module.StatusDisposed {
		return nil
	}
	if m.Status() == module.StatusRunning {
		_ = m.Stop(ctx)
	}
	if m.Tokens != nil {
		m.Tokens.Close()
	}
	m.setStatus(module.StatusDisposed)
	return nil
}
