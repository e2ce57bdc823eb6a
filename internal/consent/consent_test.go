package consent

import (
	"context"
	"testing"

	"github.com/synheart/synheart-runtime/pkg/models"
	"github.com/synheart/synheart-runtime/pkg/module"
	"github.com/synheart/synheart-runtime/pkg/module/moduletest"
)

func TestContract(t *testing.T) {
	moduletest.TestModuleContract(t, func() module.Module { return New() })
}

func TestModule_infoDeclaresNoDependencies(t *testing.T) {
	m := New()
	info := m.Info()
	if info.Name != "consent" {
		t.Errorf("Name = %q, want consent", info.Name)
	}
	if !info.Required {
		t.Error("consent must be a required module: every other module depends on it")
	}
	if len(info.Dependencies) != 0 {
		t.Errorf("consent should have no dependencies, got %v", info.Dependencies)
	}
}

func TestModule_initStartExposesDegradedStoreWithoutSecure(t *testing.T) {
	m := New()
	ctx := context.Background()

	if err := m.Init(ctx, module.Dependencies{}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Dispose(ctx)

	if !m.Store.Degraded() {
		t.Error("expected degraded in-memory store when no Secure dependency is injected")
	}
	if err := m.Store.Update(ctx, models.ConsentSnapshot{Biosignals: true}); err != nil {
		t.Errorf("Update in degraded mode should still apply in-memory: %v", err)
	}
	if !m.Store.Current().Biosignals {
		t.Error("expected the update to be visible via Current() even while degraded")
	}
}

func TestModule_grantProfileUpdatesCapabilities(t *testing.T) {
	m := New()
	ctx := context.Background()
	if err := m.Init(ctx, module.Dependencies{}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Dispose(ctx)

	profile := models.ConsentProfile{
		ID:     "profile-a",
		Active: true,
		Flags:  models.ConsentProfileFlags{Vitals: true, Behavior: true},
	}
	m.GrantProfile(profile, []string{"vitals", "behavior"})

	if !m.Capabilities.Enabled(CapabilityVitals) {
		t.Error("expected vitals capability enabled after GrantProfile")
	}
	if !m.Capabilities.Enabled(CapabilityBehavior) {
		t.Error("expected behavior capability enabled after GrantProfile")
	}
	if m.Capabilities.Enabled(CapabilityMotion) {
		t.Error("expected motion capability to remain disabled")
	}
}
