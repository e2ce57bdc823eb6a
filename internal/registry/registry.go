// Package registry manages module lifecycle: registration, dependency
// resolution, initialization, and shutdown of Synheart runtime modules.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/synheart/synheart-runtime/pkg/module"
	"go.uber.org/zap"
)

// Registry owns every registered module and drives it through the
// Init/Start/Stop/Dispose lifecycle in dependency order.
type Registry struct {
	mu    sync.RWMutex
	byName map[string]module.Module
	info   map[string]module.Info
	seq    []string // registration order, for deterministic traversal
	off    map[string]bool
	boot   []string // start order, populated by Validate
	log    *zap.Logger
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		byName: make(map[string]module.Module),
		info:   make(map[string]module.Info),
		off:    make(map[string]bool),
		log:    logger,
	}
}

// Register adds a module. Must be called before Validate.
func (r *Registry) Register(m module.Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	info := m.Info()
	if info.Name == "" {
		return fmt.Errorf("registry: module has empty name")
	}
	if _, exists := r.byName[info.Name]; exists {
		return fmt.Errorf("registry: module %q already registered", info.Name)
	}

	r.byName[info.Name] = m
	r.info[info.Name] = info
	r.seq = append(r.seq, info.Name)
	r.log.Info("module registered", zap.String("module", info.Name), zap.String("version", info.Version))
	return nil
}

// Validate checks dependency references, cascades disablement through any
// module that cannot run, and fixes a start order for the surviving set.
// A required module that cannot resolve its dependencies fails the whole
// call; an optional one is disabled instead so the rest of the runtime
// still comes up.
func (r *Registry) Validate() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.disableUnresolvable(); err != nil {
		return err
	}
	if err := r.propagateDisablement(); err != nil {
		return err
	}

	order, err := r.orderByDependency()
	if err != nil {
		return err
	}
	r.boot = order

	r.log.Info("dependency resolution finished",
		zap.Strings("order", r.boot),
		zap.Int("enabled", len(r.boot)),
		zap.Int("disabled", len(r.off)),
	)
	return nil
}

// disableUnresolvable walks every registered module once and disables (or,
// for required modules, errors on) any whose direct dependency is absent
// or already disabled.
func (r *Registry) disableUnresolvable() error {
	for _, name := range r.seq {
		info := r.info[name]
		for _, dep := range info.Dependencies {
			_, registered := r.byName[dep]
			switch {
			case !registered && info.Required:
				return fmt.Errorf("registry: required module %q needs %q, which is not registered", name, dep)
			case !registered:
				r.log.Warn("module disabled: dependency not registered", zap.String("module", name), zap.String("dependency", dep))
				r.off[name] = true
			case r.off[dep] && info.Required:
				return fmt.Errorf("registry: required module %q depends on disabled module %q", name, dep)
			case r.off[dep]:
				r.log.Warn("module disabled: dependency already disabled", zap.String("module", name), zap.String("dependency", dep))
				r.off[name] = true
			}
			if r.off[name] {
				break
			}
		}
	}
	return nil
}

// propagateDisablement pushes disablement outward along the dependency
// graph using a worklist rather than re-scanning everything to a fixed
// point: each time a module is newly disabled, only its direct dependents
// are re-examined.
func (r *Registry) propagateDisablement() error {
	dependents := make(map[string][]string, len(r.info))
	for name, info := range r.info {
		for _, dep := range info.Dependencies {
			dependents[dep] = append(dependents[dep], name)
		}
	}

	work := make([]string, 0, len(r.off))
	for name := range r.off {
		work = append(work, name)
	}

	for len(work) > 0 {
		dep := work[len(work)-1]
		work = work[:len(work)-1]

		for _, name := range dependents[dep] {
			if r.off[name] {
				continue
			}
			info := r.info[name]
			if info.Required {
				return fmt.Errorf("registry: required module %q cannot run without disabled dependency %q", name, dep)
			}
			r.log.Warn("module disabled by dependency chain", zap.String("module", name), zap.String("via", dep))
			r.off[name] = true
			work = append(work, name)
		}
	}
	return nil
}

// orderByDependency returns enabled module names such that every module
// appears after everything it depends on. Built via recursive postorder
// DFS over the registration-order roots, with a three-state visit marker
// to catch cycles; dependencies finish before their dependents, so the
// result is the finish order itself.
func (r *Registry) orderByDependency() ([]string, error) {
	const (
		unseen = iota
		active
		done
	)
	state := make(map[string]int, len(r.seq))
	var finished []string

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		if r.off[name] {
			return nil
		}
		switch state[name] {
		case done:
			return nil
		case active:
			return fmt.Errorf("registry: dependency cycle detected: %v", append(path, name))
		}
		state[name] = active
		for _, dep := range r.info[name].Dependencies {
			if _, ok := r.byName[dep]; !ok || r.off[dep] {
				continue
			}
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = done
		finished = append(finished, name)
		return nil
	}

	for _, name := range r.seq {
		if err := visit(name, nil); err != nil {
			return nil, err
		}
	}
	return finished, nil
}

// InitAll initializes enabled modules in dependency order.
func (r *Registry) InitAll(ctx context.Context, depsFn func(name string) module.Dependencies) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.boot {
		if r.off[name] {
			continue
		}
		r.log.Info("module init", zap.String("module", name))
		if err := r.byName[name].Init(ctx, depsFn(name)); err != nil {
			if r.info[name].Required {
				return fmt.Errorf("registry: required module %q failed to init: %w", name, err)
			}
			r.log.Error("optional module init failed, disabling", zap.String("module", name), zap.Error(err))
			r.off[name] = true
		}
	}
	return nil
}

// StartAll starts enabled, initialized modules in dependency order.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.boot {
		if r.off[name] {
			continue
		}
		r.log.Info("module start", zap.String("module", name))
		if err := r.byName[name].Start(ctx); err != nil {
			if r.info[name].Required {
				return fmt.Errorf("registry: required module %q failed to start: %w", name, err)
			}
			r.log.Error("optional module start failed, disabling", zap.String("module", name), zap.Error(err))
			r.off[name] = true
		}
	}
	return nil
}

// StopAll stops enabled modules in reverse dependency order. Failures are
// logged and do not stop the sweep; one module's shutdown bug should never
// prevent the rest from tearing down.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.boot) - 1; i >= 0; i-- {
		name := r.boot[i]
		if r.off[name] {
			continue
		}
		r.log.Info("module stop", zap.String("module", name))
		if err := r.byName[name].Stop(ctx); err != nil {
			r.log.Error("module stop failed", zap.String("module", name), zap.Error(err))
		}
	}
}

// DisposeAll releases the resources of every module in the start order,
// in reverse, including modules that InitAll or StartAll disabled along
// the way: Dispose must be safe to call from any reachable lifecycle
// state. Modules disabled by Validate never enter the start order and
// are not disposed. Failures are logged, not propagated.
func (r *Registry) DisposeAll(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.boot) - 1; i >= 0; i-- {
		name := r.boot[i]
		if err := r.byName[name].Dispose(ctx); err != nil {
			r.log.Error("module dispose failed", zap.String("module", name), zap.Error(err))
		}
	}
}

// Get returns a module by name; disabled modules are hidden.
func (r *Registry) Get(name string) (module.Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byName[name]
	if ok && r.off[name] {
		return nil, false
	}
	return m, ok
}

// All returns enabled modules in dependency (start) order.
func (r *Registry) All() []module.Module {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]module.Module, 0, len(r.boot))
	for _, name := range r.boot {
		if !r.off[name] {
			out = append(out, r.byName[name])
		}
	}
	return out
}

// AllRoutes collects HTTP routes from every enabled module that implements
// module.HTTPProvider, keyed by module name.
func (r *Registry) AllRoutes() map[string][]module.Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]module.Route)
	for _, name := range r.boot {
		if r.off[name] {
			continue
		}
		if hp, ok := r.byName[name].(module.HTTPProvider); ok {
			if routes := hp.Routes(); len(routes) > 0 {
				out[name] = routes
			}
		}
	}
	return out
}

// Resolve implements module.Resolver.
func (r *Registry) Resolve(name string) (module.Module, bool) {
	return r.Get(name)
}

// IsDisabled reports whether Validate disabled the named module.
func (r *Registry) IsDisabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.off[name]
}
