// Package module provides the public contract every Synheart runtime
// component implements: a small lifecycle capability set plus a
// dependency descriptor consumed by the module manager (internal/registry).
package module

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Status is a module's position in its lifecycle state machine.
type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusInitialized   Status = "initialized"
	StatusRunning       Status = "running"
	StatusStopped       Status = "stopped"
	StatusError         Status = "error"
	StatusDisposed      Status = "disposed"
)

// Module is the interface every Synheart component implements. The
// registry drives Init/Start/Stop/Dispose in dependency order; Status
// lets the registry and the facade introspect a module without
// depending on its concrete type.
type Module interface {
	Info() Info
	Init(ctx context.Context, deps Dependencies) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Dispose(ctx context.Context) error
	Status() Status
}

// Info describes a module's identity and its position in the
// dependency graph the registry topologically sorts.
type Info struct {
	Name         string   // unique identifier: "consent", "fusion", "upload", ...
	Version      string   // semantic version string
	Description  string   // human-readable summary
	Dependencies []string // module names that must start first
	Required     bool     // if true, the runtime refuses to start without this module
}

// Dependencies is injected by the registry during Init. It gives a
// module controlled access to the shared runtime services, never a
// concrete reference to another module's internals.
type Dependencies struct {
	Config  Config         // the root config; every module receives the same one
	Logger  *zap.Logger    // named logger for this module
	Bus     EventBus       // fan-out event bus for inter-module signals
	Modules Resolver       // lookup of sibling modules by name
	Store   Store          // shared SQLite-backed persistence
	Secure  SecureStore    // encrypted key-value storage
}

// Config abstracts configuration access. Wraps Viper today; replaceable
// without touching module code.
type Config interface {
	Unmarshal(target any) error
	Get(key string) any
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
	GetDuration(key string) time.Duration
	IsSet(key string) bool
	Sub(key string) Config
}

// Event is a typed message on the inter-module event bus.
type Event struct {
	Topic     string
	Source    string
	Timestamp time.Time
	Payload   any
}

// EventHandler processes events delivered by the bus.
type EventHandler func(ctx context.Context, event Event)

// Publisher sends events to the bus.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Subscriber receives events from the bus.
type Subscriber interface {
	Subscribe(topic string, handler EventHandler) (unsubscribe func())
}

// EventBus composes Publisher and Subscriber with async and wildcard
// extensions. Used for control-plane signals (consent revoked, token
// refreshed); bulk data streams use broadcast.Stream instead.
type EventBus interface {
	Publisher
	Subscriber
	PublishAsync(ctx context.Context, event Event)
	SubscribeAll(handler EventHandler) (unsubscribe func())
}

// Resolver allows a module to locate sibling modules by name.
type Resolver interface {
	Resolve(name string) (Module, bool)
}

// Route represents an HTTP route a module wants mounted on the debug
// ops server (internal/server). Most modules expose none.
type Route struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// HTTPProvider is implemented by modules that expose debug routes.
type HTTPProvider interface {
	Routes() []Route
}

// HealthStatus is a module's self-reported health.
type HealthStatus struct {
	Status  string            `json:"status"` // "healthy", "degraded", "unhealthy"
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// HealthReporter is implemented by modules with a meaningful health
// signal beyond their lifecycle Status.
type HealthReporter interface {
	Health(ctx context.Context) HealthStatus
}
