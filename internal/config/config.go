// Package config provides a Viper-backed implementation of the module.Config interface.
package config

import (
	"sync"
	"time"

	"github.com/spf13/viper"
	"github.com/synheart/synheart-runtime/pkg/module"
)

// Compile-time interface guard.
var _ module.Config = (*ViperConfig)(nil)

// ViperConfig adapts a *viper.Viper to module.Config. Sub-sections handed
// out by Sub are memoized: two callers asking for the same key (a module's
// Init reading its own section, then a later reload picking it up again)
// share one wrapper rather than allocating a fresh one per call.
type ViperConfig struct {
	mu   sync.Mutex
	v    *viper.Viper
	subs map[string]*ViperConfig
}

// New creates a Config backed by the given Viper instance. A nil v is
// replaced with an empty one so zero-value use never panics.
func New(v *viper.Viper) *ViperConfig {
	if v == nil {
		v = viper.New()
	}
	return &ViperConfig{v: v}
}

func (c *ViperConfig) Unmarshal(target any) error {
	return c.v.Unmarshal(target)
}

func (c *ViperConfig) Get(key string) any {
	return c.v.Get(key)
}

func (c *ViperConfig) GetString(key string) string {
	return c.v.GetString(key)
}

func (c *ViperConfig) GetInt(key string) int {
	return c.v.GetInt(key)
}

func (c *ViperConfig) GetBool(key string) bool {
	return c.v.GetBool(key)
}

func (c *ViperConfig) GetDuration(key string) time.Duration {
	return c.v.GetDuration(key)
}

func (c *ViperConfig) IsSet(key string) bool {
	return c.v.IsSet(key)
}

// Sub returns a Config scoped to key, reusing a previously handed-out
// instance for the same key rather than rewrapping Viper's sub-tree every
// call.
func (c *ViperConfig) Sub(key string) module.Config {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, ok := c.subs[key]; ok {
		return cached
	}

	wrapped := New(c.v.Sub(key))
	if c.subs == nil {
		c.subs = make(map[string]*ViperConfig)
	}
	c.subs[key] = wrapped
	return wrapped
}

// Viper returns the underlying Viper instance for direct access
// (e.g., by the server for top-level config like server.port).
func (c *ViperConfig) Viper() *viper.Viper {
	return c.v
}
