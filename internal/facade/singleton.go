package facade

import (
	"sync"

	"go.uber.org/zap"

	"github.com/synheart/synheart-runtime/pkg/module"
)

var (
	singletonOnce   sync.Once
	singletonEngine *Engine
)

// Singleton returns the process-wide Engine, constructing it on first
// call with the given sources/store/secure/logger. Subsequent calls
// ignore their arguments and return the already-constructed instance —
// this mirrors §9's "process-wide singleton facade... backed by an
// explicit engine value that can be constructed, injected, and
// disposed"; the singleton itself is just a thin global pointer over
// that value.
func Singleton(sources Sources, store module.Store, secure module.SecureStore, logger *zap.Logger) *Engine {
	singletonOnce.Do(func() {
		singletonEngine = New(sources, store, secure, logger)
	})
	return singletonEngine
}

// ResetSingleton discards the process-wide Engine so a subsequent
// Singleton call constructs a fresh one. Intended for tests only; a
// running process should never need this.
func ResetSingleton() {
	singletonOnce = sync.Once{}
	singletonEngine = nil
}
