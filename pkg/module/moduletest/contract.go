// Package moduletest provides a shared behavioral contract test that
// verifies any module.Module implementation obeys the lifecycle state
// machine. Every module's test file should call TestModuleContract.
package moduletest

import (
	"context"
	"testing"

	"github.com/synheart/synheart-runtime/pkg/module"
	"go.uber.org/zap"
)

// TestModuleContract runs lifecycle contract tests against any
// module.Module implementation. Call from each module's _test.go:
//
//	func TestContract(t *testing.T) {
//	    moduletest.TestModuleContract(t, func() module.Module { return fusion.New() })
//	}
func TestModuleContract(t *testing.T, factory func() module.Module) {
	t.Helper()

	t.Run("Info_returns_valid_metadata", func(t *testing.T) {
		m := factory()
		info := m.Info()
		if info.Name == "" {
			t.Error("Info().Name must not be empty")
		}
		if info.Version == "" {
			t.Error("Info().Version must not be empty")
		}
	})

	t.Run("starts_uninitialized", func(t *testing.T) {
		m := factory()
		if got := m.Status(); got != module.StatusUninitialized {
			t.Errorf("Status() before Init = %v, want %v", got, module.StatusUninitialized)
		}
	})

	t.Run("Init_then_Start_transitions_to_running", func(t *testing.T) {
		m := factory()
		deps := testDeps(m.Info().Name)
		if err := m.Init(context.Background(), deps); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		if got := m.Status(); got != module.StatusInitialized {
			t.Errorf("Status() after Init = %v, want %v", got, module.StatusInitialized)
		}
		if err := m.Start(context.Background()); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if got := m.Status(); got != module.StatusRunning {
			t.Errorf("Status() after Start = %v, want %v", got, module.StatusRunning)
		}
		if err := m.Stop(context.Background()); err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
		_ = m.Dispose(context.Background())
	})

	t.Run("Stop_without_Start_does_not_panic", func(t *testing.T) {
		m := factory()
		deps := testDeps(m.Info().Name)
		_ = m.Init(context.Background(), deps)
		if err := m.Stop(context.Background()); err != nil {
			t.Fatalf("Stop() without Start error = %v", err)
		}
	})

	t.Run("Dispose_is_idempotent", func(t *testing.T) {
		m := factory()
		deps := testDeps(m.Info().Name)
		_ = m.Init(context.Background(), deps)
		if err := m.Dispose(context.Background()); err != nil {
			t.Fatalf("first Dispose() error = %v", err)
		}
		if err := m.Dispose(context.Background()); err != nil {
			t.Fatalf("second Dispose() error = %v, want nil (idempotent)", err)
		}
		if got := m.Status(); got != module.StatusDisposed {
			t.Errorf("Status() after Dispose = %v, want %v", got, module.StatusDisposed)
		}
	})
}

func testDeps(name string) module.Dependencies {
	logger, _ := zap.NewDevelopment()
	return module.Dependencies{
		Logger: logger.Named(name),
	}
}
