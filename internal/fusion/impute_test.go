package fusion

import "testing"

func TestImputer_neverObservedReturnsZero(t *testing.T) {
	im := NewImputer()
	if v := im.Value("unseen", 0, false); v != 0 {
		t.Errorf("expected 0 for never-observed key, got %v", v)
	}
}

func TestImputer_observedValuePassesThrough(t *testing.T) {
	im := NewImputer()
	if v := im.Value("hr", 72, true); v != 72 {
		t.Errorf("expected fresh observation to pass through unchanged, got %v", v)
	}
}

func TestImputer_missingReturnsLastKnownEWMA(t *testing.T) {
	im := NewImputer()
	im.Value("hr", 70, true)
	im.Value("hr", 80, true)

	got := im.Value("hr", 0, false)
	if got <= 70 || got >= 80 {
		t.Errorf("expected imputed value between the two observations, got %v", got)
	}
}

func TestImputer_resetClearsLearnedState(t *testing.T) {
	im := NewImputer()
	im.Value("hr", 70, true)
	im.Reset()
	if v := im.Value("hr", 0, false); v != 0 {
		t.Errorf("expected reset to clear learned EWMA, got %v", v)
	}
}
