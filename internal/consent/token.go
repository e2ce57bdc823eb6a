package consent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	synevent "github.com/synheart/synheart-runtime/internal/event"
	"github.com/synheart/synheart-runtime/internal/synerr"
	"github.com/synheart/synheart-runtime/pkg/models"
	"github.com/synheart/synheart-runtime/pkg/module"
)

const (
	keyToken           = "synheart_consent_token"
	keyProfilesCache   = "synheart_consent_profiles_cache"
	keyProfilesCacheTS = "synheart_consent_profiles_cache_ts"
	keyDeviceID        = "synheart_device_id"

	profilesCacheTTL  = 24 * time.Hour
	refreshWindow     = 5 * time.Minute
	refreshPollPeriod = 1 * time.Minute
	refreshMaxBackoff = 1 * time.Hour
	requestTimeout    = 15 * time.Second
)

// CloudConfig holds the consent service connection parameters. BaseURL,
// AppID, and AppAPIKey are required before any operation that calls out
// to the network; DeviceID is resolved (and persisted) lazily if empty.
type CloudConfig struct {
	BaseURL   string
	AppID     string
	AppAPIKey string
	DeviceID  string
	Platform  string
	UserID    string
	Region    string
}

func (c CloudConfig) validate() error {
	if c.BaseURL == "" || c.AppID == "" || c.AppAPIKey == "" {
		return synerr.NewInvalidConfig("cloud config requires baseUrl, appId, and appApiKey")
	}
	return nil
}

// TokenService fetches remote consent profiles and issues/refreshes
// ConsentTokens against the consent service. It owns a single pooled
// HTTP client for its lifetime; Close releases idle connections.
type TokenService struct {
	secure module.SecureStore
	bus    module.Publisher
	logger *zap.Logger

	httpClient *http.Client

	mu              sync.Mutex
	cfg             CloudConfig
	token           models.ConsentToken
	hasToken        bool
	profiles        []models.ConsentProfile
	profilesCacheAt time.Time

	refreshCancel context.CancelFunc
	refreshDone   chan struct{}
}

// NewTokenService constructs a TokenService. secure and bus may be nil,
// in which case the token and device id are not persisted across
// restarts and refresh events are not published on the bus.
func NewTokenService(secure module.SecureStore, bus module.Publisher, logger *zap.Logger) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenService{
		secure:     secure,
		bus:        bus,
		logger:     logger,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// Configure installs the cloud connection parameters. Safe to call again
// later (e.g. once config becomes available after Init).
func (s *TokenService) Configure(cfg CloudConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

// Load restores a persisted token, if any. Safe to call once during Start.
func (s *TokenService) Load(ctx context.Context) error {
	if s.secure == nil {
		return nil
	}
	raw, ok, err := s.secure.Get(ctx, keyToken)
	if err != nil {
		return fmt.Errorf("load consent token: %w", err)
	}
	if !ok {
		return nil
	}
	var tok models.ConsentToken
	if err := json.Unmarshal(raw, &tok); err != nil {
		return synerr.Wrap(synerr.ErrDeviceStorageFailed, fmt.Errorf("decode consent token: %w", err))
	}
	s.mu.Lock()
	s.token = tok
	s.hasToken = true
	s.mu.Unlock()
	return nil
}

// Current returns the cached token and whether one has been issued.
func (s *TokenService) Current() (models.ConsentToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.hasToken
}

// DeviceID returns the persisted device id, generating and persisting a
// fresh UUID v4 on first use.
func (s *TokenService) DeviceID(ctx context.Context) (string, error) {
	if s.secure != nil {
		if raw, ok, err := s.secure.Get(ctx, keyDeviceID); err != nil {
			return "", fmt.Errorf("load device id: %w", err)
		} else if ok {
			return string(raw), nil
		}
	}

	id := uuid.NewString()
	if s.secure != nil {
		if err := s.secure.Put(ctx, keyDeviceID, []byte(id)); err != nil {
			s.logger.Warn("persist device id failed", zap.Error(err))
		}
	}
	return id, nil
}

// GetAvailableProfiles returns the consent profile catalog, serving from
// the 24h cache when fresh.
func (s *TokenService) GetAvailableProfiles(ctx context.Context, activeOnly bool) ([]models.ConsentProfile, error) {
	s.mu.Lock()
	cfg := s.cfg
	cached := s.profiles
	cacheAge := time.Since(s.profilesCacheAt)
	s.mu.Unlock()

	if cached != nil && cacheAge < profilesCacheTTL {
		return filterActive(cached, activeOnly), nil
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/api/v1/apps/%s/consent-profiles?active_only=%t", cfg.AppID, activeOnly)
	var resp struct {
		Profiles []models.ConsentProfile `json:"profiles"`
	}
	if err := s.doJSON(ctx, cfg, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	now := time.Now()
	s.mu.Lock()
	s.profiles = resp.Profiles
	s.profilesCacheAt = now
	s.mu.Unlock()

	if s.secure != nil {
		if raw, err := json.Marshal(resp.Profiles); err == nil {
			_ = s.secure.Put(ctx, keyProfilesCache, raw)
			_ = s.secure.Put(ctx, keyProfilesCacheTS, []byte(now.UTC().Format(time.RFC3339)))
		}
	}

	return filterActive(resp.Profiles, activeOnly), nil
}

func filterActive(profiles []models.ConsentProfile, activeOnly bool) []models.ConsentProfile {
	if !activeOnly {
		return profiles
	}
	out := make([]models.ConsentProfile, 0, len(profiles))
	for _, p := range profiles {
		if p.Active {
			out = append(out, p)
		}
	}
	return out
}

// issueTokenResponse covers both wire shapes §4.3 documents.
type issueTokenResponse struct {
	Token       string   `json:"token"`
	ExpiresAt   string   `json:"expires_at"`
	AccessToken string   `json:"access_token"`
	ExpiresIn   int64    `json:"expires_in"`
	ProfileID   string   `json:"consent_profile_id"`
	ProfileID2  string   `json:"profile_id"`
	TokenType   string   `json:"token_type"`
	Scopes      []string `json:"scopes"`
}

// IssueToken requests a new ConsentToken for the given device/profile,
// decodes (without signature verification) the JWT payload to recover
// scopes and profile id, persists it, and caches it as current.
func (s *TokenService) IssueToken(ctx context.Context, deviceID, profileID, platform string) (models.ConsentToken, error) {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	if err := cfg.validate(); err != nil {
		return models.ConsentToken{}, err
	}

	body := map[string]string{
		"app_id":             cfg.AppID,
		"device_id":          deviceID,
		"platform":           platform,
		"consent_profile_id": profileID,
	}
	if cfg.UserID != "" {
		body["user_id"] = cfg.UserID
	}
	if cfg.Region != "" {
		body["region"] = cfg.Region
	}

	var resp issueTokenResponse
	if err := s.doJSON(ctx, cfg, http.MethodPost, "/api/v1/sdk/consent-token", body, &resp); err != nil {
		return models.ConsentToken{}, err
	}

	jwtStr := resp.Token
	var expiresAt time.Time
	if jwtStr != "" {
		if t, err := time.Parse(time.RFC3339, resp.ExpiresAt); err == nil {
			expiresAt = t
		}
	} else {
		jwtStr = resp.AccessToken
		expiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	if jwtStr == "" {
		return models.ConsentToken{}, synerr.Wrap(synerr.ErrPayloadInvalid, fmt.Errorf("consent-token response carried no token"))
	}

	resolvedProfile := profileID
	if resp.ProfileID != "" {
		resolvedProfile = resp.ProfileID
	} else if resp.ProfileID2 != "" {
		resolvedProfile = resp.ProfileID2
	}

	claims, scopes, claimProfile := decodeClaims(jwtStr)
	if claimProfile != "" {
		resolvedProfile = claimProfile
	}
	if len(resp.Scopes) > 0 {
		scopes = resp.Scopes
	}
	if expiresAt.IsZero() {
		if exp, ok := claims["exp"].(float64); ok {
			expiresAt = time.Unix(int64(exp), 0)
		}
	}

	tok := models.ConsentToken{
		JWT:       jwtStr,
		ExpiresAt: expiresAt.UTC(),
		ProfileID: resolvedProfile,
		Scopes:    scopes,
		Claims:    claims,
	}

	s.mu.Lock()
	s.token = tok
	s.hasToken = true
	s.mu.Unlock()

	if s.secure != nil {
		if raw, err := json.Marshal(tok); err == nil {
			if err := s.secure.Put(ctx, keyToken, raw); err != nil {
				s.logger.Warn("persist consent token failed", zap.Error(err))
			}
		}
	}

	if s.bus != nil {
		_ = s.bus.Publish(ctx, module.Event{
			Topic:     synevent.TopicTokenRefreshed,
			Source:    "consent",
			Timestamp: time.Now().UTC(),
			Payload:   tok,
		})
	}

	return tok, nil
}

// decodeClaims parses the JWT payload without verifying its signature —
// the on-device runtime has no way to hold the issuer's signing key, so
// it trusts the transport (TLS + app api key) instead.
func decodeClaims(tokenStr string) (claims map[string]any, scopes []string, profileID string) {
	parser := jwt.NewParser()
	mapClaims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(tokenStr, mapClaims); err != nil {
		return map[string]any{}, nil, ""
	}

	claims = map[string]any(mapClaims)
	if pid, ok := claims["profile_id"].(string); ok {
		profileID = pid
	}
	switch v := claims["scopes"].(type) {
	case []any:
		for _, s := range v {
			if str, ok := s.(string); ok {
				scopes = append(scopes, str)
			}
		}
	case string:
		scopes = strings.Fields(v)
	}
	return claims, scopes, profileID
}

// RevokeConsent notifies the consent service that a device/profile's
// consent has been withdrawn. Transport errors are logged and also
// returned; the authoritative revocation already happened locally via
// Store.Update, so the facade treats this call as best-effort.
func (s *TokenService) RevokeConsent(ctx context.Context, deviceID, profileID string) error {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()
	if err := cfg.validate(); err != nil {
		return err
	}

	body := map[string]string{
		"app_id":     cfg.AppID,
		"device_id":  deviceID,
		"profile_id": profileID,
	}
	if err := s.doJSON(ctx, cfg, http.MethodPost, "/api/v1/sdk/consent-revoke", body, nil); err != nil {
		s.logger.Warn("consent revoke request failed", zap.Error(err))
		return err
	}
	return nil
}

// StartRefreshLoop runs the self-adaptive refresh timer described in
// §4.3: inside the 5-minute expiry window it polls every minute;
// otherwise it sleeps until 5 minutes before expiry, capped at 1h.
// Returns immediately if no token has been issued yet; the loop picks up
// a token once IssueToken is called.
func (s *TokenService) StartRefreshLoop(ctx context.Context, deviceID, platform string) {
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	s.refreshCancel = cancel
	s.refreshDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		for {
			wait := s.nextRefreshDelay()
			timer := time.NewTimer(wait)
			select {
			case <-loopCtx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			tok, ok := s.Current()
			if !ok {
				continue
			}
			if !tok.WithinRefreshWindow(time.Now(), refreshWindow) {
				continue
			}
			if _, err := s.IssueToken(loopCtx, deviceID, tok.ProfileID, platform); err != nil {
				s.logger.Warn("consent token refresh failed", zap.Error(err))
			}
		}
	}()
}

func (s *TokenService) nextRefreshDelay() time.Duration {
	tok, ok := s.Current()
	if !ok {
		return refreshPollPeriod
	}
	untilExpiry := time.Until(tok.ExpiresAt)
	if untilExpiry <= refreshWindow {
		return refreshPollPeriod
	}
	delay := untilExpiry - refreshWindow
	if delay > refreshMaxBackoff {
		delay = refreshMaxBackoff
	}
	return delay
}

// StopRefreshLoop cancels the refresh goroutine and waits for it to exit.
func (s *TokenService) StopRefreshLoop() {
	s.mu.Lock()
	cancel := s.refreshCancel
	done := s.refreshDone
	s.refreshCancel = nil
	s.refreshDone = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}
}

// Forget discards the cached token, device id, and profile catalog
// cache, both in-memory and in secure storage. Used by the facade's
// local-data deletion surface; it does not notify the consent service —
// that is RevokeConsent's job.
func (s *TokenService) Forget(ctx context.Context) error {
	s.mu.Lock()
	s.token = models.ConsentToken{}
	s.hasToken = false
	s.profiles = nil
	s.profilesCacheAt = time.Time{}
	s.mu.Unlock()

	if s.secure == nil {
		return nil
	}
	for _, key := range []string{keyToken, keyDeviceID, keyProfilesCache, keyProfilesCacheTS} {
		if err := s.secure.Delete(ctx, key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return nil
}

// Close releases the pooled HTTP client's idle connections.
func (s *TokenService) Close() {
	s.httpClient.CloseIdleConnections()
}

func (s *TokenService) doJSON(ctx context.Context, cfg CloudConfig, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	url := strings.TrimRight(cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.AppAPIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return synerr.Wrap(synerr.ErrNetworkTransient, fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return synerr.Wrap(synerr.ErrNetworkTransient, fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return synerr.Wrap(synerr.ErrAuthFailure, fmt.Errorf("%s %s: %s", method, path, string(respBody)))
	case resp.StatusCode == http.StatusNotFound:
		return synerr.Wrap(synerr.ErrProfileNotFound, fmt.Errorf("%s %s: %s", method, path, string(respBody)))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return synerr.Wrap(synerr.ErrPayloadInvalid, fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, string(respBody)))
	case resp.StatusCode >= 500:
		return synerr.Wrap(synerr.ErrNetworkTransient, fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, string(respBody)))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return synerr.Wrap(synerr.ErrPayloadInvalid, fmt.Errorf("unmarshal response: %w", err))
		}
	}
	return nil
}
