package heads

import (
	"context"
	"testing"

	"github.com/synheart/synheart-runtime/pkg/models"
)

func TestFocusHead_stableLowSwitchingScreenActiveYieldsHighFocus(t *testing.T) {
	h := NewFocusHead()
	hsv := models.HumanStateVector{
		Meta: models.Meta{
			Axes: models.Axes{
				Engagement: models.EngagementAxis{Stability: 1},
				Context:    models.ContextAxis{AppSwitchIndex: 0, ScreenActiveRatio: 1},
			},
		},
	}

	out, err := h.Process(context.Background(), hsv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Focus == nil {
		t.Fatal("expected focus enrichment")
	}
	if out.Focus.FocusIndex < 0.9 {
		t.Errorf("expected near-maximal focus index, got %v", out.Focus.FocusIndex)
	}
	if out.Focus.Distracted {
		t.Error("expected not distracted at high focus index")
	}
}

func TestFocusHead_highAppSwitchingYieldsDistracted(t *testing.T) {
	h := NewFocusHead()
	hsv := models.HumanStateVector{
		Meta: models.Meta{
			Axes: models.Axes{
				Engagement: models.EngagementAxis{Stability: 0},
				Context:    models.ContextAxis{AppSwitchIndex: 1, ScreenActiveRatio: 0},
			},
		},
	}

	out, err := h.Process(context.Background(), hsv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Focus.Distracted {
		t.Errorf("expected distracted at minimal focus index, got index=%v", out.Focus.FocusIndex)
	}
}

func TestFocusHead_focusIndexAlwaysWithinUnitRange(t *testing.T) {
	h := NewFocusHead()
	hsv := models.HumanStateVector{
		Meta: models.Meta{
			Axes: models.Axes{
				Engagement: models.EngagementAxis{Stability: 5},
				Context:    models.ContextAxis{AppSwitchIndex: -5, ScreenActiveRatio: 5},
			},
		},
	}
	out, _ := h.Process(context.Background(), hsv)
	if out.Focus.FocusIndex < 0 || out.Focus.FocusIndex > 1 {
		t.Errorf("focus index out of [0,1]: %v", out.Focus.FocusIndex)
	}
}
