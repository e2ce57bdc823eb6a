package registry

import (
	"context"
	"testing"

	"github.com/synheart/synheart-runtime/pkg/module"
	"go.uber.org/zap"
)

type testModule struct {
	info       module.Info
	initErr    error
	startErr   error
	stopErr    error
	initCount  int
	startCount int
	stopCount  int
	disposeN   int
	status     module.Status
	routes     []module.Route
}

func newTestModule(name string, deps ...string) *testModule {
	return &testModule{
		info: module.Info{
			Name:         name,
			Version:      "0.1.0",
			Description:  "test module " + name,
			Dependencies: deps,
		},
		status: module.StatusUninitialized,
	}
}

func (m *testModule) Info() module.Info { return m.info }

func (m *testModule) Init(_ context.Context, _ module.Dependencies) error {
	m.initCount++
	if m.initErr != nil {
		return m.initErr
	}
	m.status = module.StatusInitialized
	return nil
}

func (m *testModule) Start(_ context.Context) error {
	m.startCount++
	if m.startErr != nil {
		return m.startErr
	}
	m.status = module.StatusRunning
	return nil
}

func (m *testModule) Stop(_ context.Context) error {
	m.stopCount++
	if m.stopErr != nil {
		return m.stopErr
	}
	m.status = module.StatusStopped
	return nil
}

func (m *testModule) Dispose(_ context.Context) error {
	m.disposeN++
	m.status = module.StatusDisposed
	return nil
}

func (m *testModule) Status() module.Status { return m.status }

func (m *testModule) Routes() []module.Route { return m.routes }

func testDepsFn() func(string) module.Dependencies {
	return func(name string) module.Dependencies {
		return module.Dependencies{}
	}
}

func TestRegister_duplicateNameRejected(t *testing.T) {
	reg := New(zap.NewNop())
	if err := reg.Register(newTestModule("a")); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	if err := reg.Register(newTestModule("a")); err == nil {
		t.Fatal("expected error registering duplicate module name")
	}
}

func TestRegister_emptyNameRejected(t *testing.T) {
	reg := New(zap.NewNop())
	m := &testModule{info: module.Info{Name: ""}}
	if err := reg.Register(m); err == nil {
		t.Fatal("expected error registering module with empty name")
	}
}

func TestValidate_missingOptionalDependencyDisables(t *testing.T) {
	reg := New(zap.NewNop())
	_ = reg.Register(newTestModule("a", "ghost"))

	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}
	if !reg.IsDisabled("a") {
		t.Error("expected module 'a' to be disabled due to missing dependency")
	}
}

func TestValidate_missingRequiredDependencyErrors(t *testing.T) {
	reg := New(zap.NewNop())
	a := newTestModule("a", "ghost")
	a.info.Required = true
	_ = reg.Register(a)

	if err := reg.Validate(); err == nil {
		t.Fatal("Validate() expected error for required module with missing dependency")
	}
}

func TestValidate_cascadeDisable(t *testing.T) {
	reg := New(zap.NewNop())
	_ = reg.Register(newTestModule("a", "ghost"))
	_ = reg.Register(newTestModule("b", "a"))

	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !reg.IsDisabled("a") {
		t.Error("expected 'a' disabled (missing dep)")
	}
	if !reg.IsDisabled("b") {
		t.Error("expected 'b' cascade disabled (depends on disabled 'a')")
	}
}

func TestValidate_requiredDependentOfDisabledErrors(t *testing.T) {
	reg := New(zap.NewNop())
	_ = reg.Register(newTestModule("a", "ghost"))
	b := newTestModule("b", "a")
	b.info.Required = true
	_ = reg.Register(b)

	if err := reg.Validate(); err == nil {
		t.Fatal("Validate() expected error: required module depends on a disabled module")
	}
}

func TestValidate_detectsCycle(t *testing.T) {
	reg := New(zap.NewNop())
	_ = reg.Register(newTestModule("a", "b"))
	_ = reg.Register(newTestModule("b", "a"))

	if err := reg.Validate(); err == nil {
		t.Fatal("Validate() expected cycle error")
	}
}

func TestValidate_topologicalOrder(t *testing.T) {
	reg := New(zap.NewNop())
	_ = reg.Register(newTestModule("consent"))
	_ = reg.Register(newTestModule("channel", "consent"))
	_ = reg.Register(newTestModule("fusion", "channel", "consent"))

	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	all := reg.All()
	if len(all) != 3 {
		t.Fatalf("All() returned %d modules, want 3", len(all))
	}

	pos := make(map[string]int)
	for i, m := range all {
		pos[m.Info().Name] = i
	}
	if pos["consent"] > pos["channel"] {
		t.Error("'consent' must start before 'channel'")
	}
	if pos["channel"] > pos["fusion"] {
		t.Error("'channel' must start before 'fusion'")
	}
}

func TestFullLifecycle_initStartStopDispose(t *testing.T) {
	reg := New(zap.NewNop())
	a := newTestModule("a")
	b := newTestModule("b", "a")
	_ = reg.Register(a)
	_ = reg.Register(b)

	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	ctx := context.Background()
	if err := reg.InitAll(ctx, testDepsFn()); err != nil {
		t.Fatalf("InitAll() error = %v", err)
	}
	if a.initCount != 1 || b.initCount != 1 {
		t.Fatalf("init counts = %d, %d; want 1, 1", a.initCount, b.initCount)
	}

	if err := reg.StartAll(ctx); err != nil {
		t.Fatalf("StartAll() error = %v", err)
	}
	if a.status != module.StatusRunning || b.status != module.StatusRunning {
		t.Fatal("expected both modules running after StartAll")
	}

	reg.StopAll(ctx)
	if a.stopCount != 1 || b.stopCount != 1 {
		t.Fatal("expected both modules stopped once")
	}

	reg.DisposeAll(ctx)
	if a.disposeN != 1 || b.disposeN != 1 {
		t.Fatal("expected both modules disposed once")
	}
}

func TestInitAll_requiredModuleFailurePropagates(t *testing.T) {
	reg := New(zap.NewNop())
	a := newTestModule("a")
	a.info.Required = true
	a.initErr = context.DeadlineExceeded
	_ = reg.Register(a)

	_ = reg.Validate()
	if err := reg.InitAll(context.Background(), testDepsFn()); err == nil {
		t.Fatal("InitAll() expected error for required module failure, got nil")
	}
}

func TestInitAll_optionalModuleFailureDisables(t *testing.T) {
	reg := New(zap.NewNop())
	a := newTestModule("a")
	a.initErr = context.DeadlineExceeded
	_ = reg.Register(a)

	_ = reg.Validate()
	if err := reg.InitAll(context.Background(), testDepsFn()); err != nil {
		t.Fatalf("InitAll() error = %v, want nil (optional failure should disable, not propagate)", err)
	}
	if !reg.IsDisabled("a") {
		t.Error("expected optional module 'a' to be disabled after init failure")
	}
}

func TestStopAll_continuesDespiteError(t *testing.T) {
	reg := New(zap.NewNop())
	a := newTestModule("a")
	b := newTestModule("b")
	a.stopErr = context.DeadlineExceeded
	_ = reg.Register(a)
	_ = reg.Register(b)
	_ = reg.Validate()

	ctx := context.Background()
	_ = reg.InitAll(ctx, testDepsFn())
	_ = reg.StartAll(ctx)
	reg.StopAll(ctx)

	if a.stopCount != 1 || b.stopCount != 1 {
		t.Fatal("expected both modules to have Stop() called despite a's error")
	}
}

func TestAllRoutes_collectsFromHTTPProviders(t *testing.T) {
	reg := New(zap.NewNop())
	a := newTestModule("a")
	a.routes = []module.Route{{Method: "GET", Path: "/a/status"}}
	_ = reg.Register(a)
	_ = reg.Register(newTestModule("b"))
	_ = reg.Validate()

	routes := reg.AllRoutes()
	if len(routes) != 1 {
		t.Fatalf("AllRoutes() returned %d module route sets, want 1", len(routes))
	}
	if len(routes["a"]) != 1 || routes["a"][0].Path != "/a/status" {
		t.Fatalf("unexpected routes for 'a': %+v", routes["a"])
	}
}

func TestGet_hidesDisabledModules(t *testing.T) {
	reg := New(zap.NewNop())
	_ = reg.Register(newTestModule("a", "ghost"))
	_ = reg.Validate()

	if _, ok := reg.Get("a"); ok {
		t.Error("expected Get() to hide a disabled module")
	}
}

func TestResolve_delegatesToGet(t *testing.T) {
	reg := New(zap.NewNop())
	_ = reg.Register(newTestModule("consent"))
	_ = reg.Validate()

	m, ok := reg.Resolve("consent")
	if !ok {
		t.Fatal("Resolve() expected to find 'consent'")
	}
	if m.Info().Name != "consent" {
		t.Fatalf("Resolve() returned module %q, want 'consent'", m.Info().Name)
	}
}
