package channel

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/synheart/synheart-runtime/internal/consent"
	synevent "github.com/synheart/synheart-runtime/internal/event"
	"github.com/synheart/synheart-runtime/pkg/models"
	"github.com/synheart/synheart-runtime/pkg/module"
	"github.com/synheart/synheart-runtime/pkg/module/moduletest"
)

func TestContract(t *testing.T) {
	moduletest.TestModuleContract(t, func() module.Module { return New(nil, nil, nil) })
}

func TestModule_infoDependsOnConsent(t *testing.T) {
	m := New(nil, nil, nil)
	deps := m.Info().Dependencies
	if len(deps) != 1 || deps[0] != "consent" {
		t.Errorf("expected Dependencies [\"consent\"], got %v", deps)
	}
}

type fakeResolver struct {
	mods map[string]module.Module
}

func (r fakeResolver) Resolve(name string) (module.Module, bool) {
	m, ok := r.mods[name]
	return m, ok
}

func TestModule_consentRevocationClearsWearBuffer(t *testing.T) {
	bus := synevent.NewBus(zap.NewNop())
	consentMod := consent.New()
	if err := consentMod.Init(context.Background(), module.Dependencies{Logger: zap.NewNop(), Bus: bus}); err != nil {
		t.Fatalf("consent init: %v", err)
	}
	if err := consentMod.Start(context.Background()); err != nil {
		t.Fatalf("consent start: %v", err)
	}

	chMod := New(nil, nil, nil)
	deps := module.Dependencies{
		Logger:  zap.NewNop(),
		Bus:     bus,
		Modules: fakeResolver{mods: map[string]module.Module{"consent": consentMod}},
	}
	if err := chMod.Init(context.Background(), deps); err != nil {
		t.Fatalf("channel init: %v", err)
	}
	if err := chMod.Start(context.Background()); err != nil {
		t.Fatalf("channel start: %v", err)
	}

	chMod.Wear.buffer.Insert(models.WearSample{Timestamp: time.Now(), HR: fp(70)})
	if chMod.Wear.buffer.Len() != 1 {
		t.Fatal("expected sample buffered before revocation")
	}

	if err := consentMod.Store.Update(context.Background(), models.ConsentSnapshot{Biosignals: true}); err != nil {
		t.Fatalf("grant biosignals: %v", err)
	}
	if err := consentMod.Store.Update(context.Background(), models.ConsentSnapshot{Biosignals: false}); err != nil {
		t.Fatalf("revoke biosignals: %v", err)
	}

	if chMod.Wear.buffer.Len() != 0 {
		t.Errorf("expected wear buffer cleared on revocation, got len %d", chMod.Wear.buffer.Len())
	}
}

func TestModule_grantedReflectsConsentStore(t *testing.T) {
	consentMod := consent.New()
	if err := consentMod.Init(context.Background(), module.Dependencies{Logger: zap.NewNop()}); err != nil {
		t.Fatalf("consent init: %v", err)
	}
	if err := consentMod.Start(context.Background()); err != nil {
		t.Fatalf("consent start: %v", err)
	}

	chMod := New(nil, nil, nil)
	deps := module.Dependencies{
		Logger:  zap.NewNop(),
		Modules: fakeResolver{mods: map[string]module.Module{"consent": consentMod}},
	}
	if err := chMod.Init(context.Background(), deps); err != nil {
		t.Fatalf("channel init: %v", err)
	}

	if chMod.Wear.granted() {
		t.Error("expected wear not granted by default (all-denied snapshot)")
	}

	if err := consentMod.Store.Update(context.Background(), models.ConsentSnapshot{Biosignals: true}); err != nil {
		t.Fatalf("grant biosignals: %v", err)
	}
	if !chMod.Wear.granted() {
		t.Error("expected wear granted after consent update")
	}
}
