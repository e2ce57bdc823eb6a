package consent

import (
	"sync"

	"github.com/synheart/synheart-runtime/pkg/models"
)

// Capability names recognized by the registry.
const (
	CapabilityVitals         = "vitals"
	CapabilitySleep          = "sleep"
	CapabilityMotion         = "motion"
	CapabilityScreenState    = "screen_state"
	CapabilityBehavior       = "behavior"
	CapabilityInterpretation = "interpretation"
	CapabilityCloudUpload    = "cloud_upload"
)

// CapabilityRegistry maps feature names to an enabled flag plus an
// opaque level string, derived from the active token's scopes and the
// matching consent profile's flags. Safe for concurrent use.
type CapabilityRegistry struct {
	mu    sync.RWMutex
	table map[string]Capability
}

// Capability is one feature's resolved entitlement.
type Capability struct {
	Enabled bool
	Level   string
}

// NewCapabilityRegistry returns an empty registry; every feature is
// disabled until Update is called.
func NewCapabilityRegistry() *CapabilityRegistry {
	return &CapabilityRegistry{table: make(map[string]Capability)}
}

// Enabled reports whether the named feature is currently enabled.
func (r *CapabilityRegistry) Enabled(feature string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table[feature].Enabled
}

// Level returns the named feature's level, or "" if disabled/unknown.
func (r *CapabilityRegistry) Level(feature string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table[feature].Level
}

// Snapshot returns a copy of the full capability table.
func (r *CapabilityRegistry) Snapshot() map[string]Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Capability, len(r.table))
	for k, v := range r.table {
		out[k] = v
	}
	return out
}

// UpdateFromProfile recomputes the table from a consent profile's flags
// and the issuing token's scopes. A scope named "<feature>:<level>" sets
// that feature's level; bare scopes default to level "standard".
func (r *CapabilityRegistry) UpdateFromProfile(flags models.ConsentProfileFlags, scopes []string) {
	levels := make(map[string]string, len(scopes))
	for _, scope := range scopes {
		feature, level, ok := splitScope(scope)
		if ok {
			levels[feature] = level
		}
	}

	next := map[string]Capability{
		CapabilityVitals:         capabilityFor(flags.Vitals, CapabilityVitals, levels),
		CapabilitySleep:          capabilityFor(flags.Sleep, CapabilitySleep, levels),
		CapabilityMotion:         capabilityFor(flags.Motion, CapabilityMotion, levels),
		CapabilityScreenState:    capabilityFor(flags.ScreenState, CapabilityScreenState, levels),
		CapabilityBehavior:       capabilityFor(flags.Behavior, CapabilityBehavior, levels),
		CapabilityInterpretation: capabilityFor(flags.Interpretation, CapabilityInterpretation, levels),
	}

	r.mu.Lock()
	r.table = next
	r.mu.Unlock()
}

func capabilityFor(granted bool, feature string, levels map[string]string) Capability {
	if !granted {
		return Capability{}
	}
	level := levels[feature]
	if level == "" {
		level = "standard"
	}
	return Capability{Enabled: true, Level: level}
}

func splitScope(scope string) (feature, level string, ok bool) {
	for i := 0; i < len(scope); i++ {
		if scope[i] == ':' {
			return scope[:i], scope[i+1:], true
		}
	}
	return scope, "", scope != ""
}
