package heads

import (
	"context"

	"github.com/synheart/synheart-runtime/pkg/models"
)

// distractedThreshold marks a tick as Distracted once the focus index
// drops below it.
const distractedThreshold = 0.4

// FocusHead derives a FocusState from the engagement/context axes:
// stable, low-app-switching, screen-active ticks score a high focus
// index; frequent foreground-app changes or an idle screen pull it
// down.
type FocusHead struct{}

// NewFocusHead constructs the focus interpretation head.
func NewFocusHead() *FocusHead { return &FocusHead{} }

func (h *FocusHead) Name() string { return "focus" }

func (h *FocusHead) Process(ctx context.Context, hsv models.HumanStateVector) (models.HumanStateVector, error) {
	axes := hsv.Meta.Axes
	stability := clip01(axes.Engagement.Stability)
	settled := clip01(1 - axes.Context.AppSwitchIndex)
	screenActive := clip01(axes.Context.ScreenActiveRatio)

	focusIndex := clip01(stability*0.5 + settled*0.3 + screenActive*0.2)

	hsv.Focus = &models.FocusState{
		FocusIndex: focusIndex,
		Distracted: focusIndex < distractedThreshold,
	}
	return hsv, nil
}
