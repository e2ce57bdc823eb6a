package heads

import (
	"context"
	"testing"

	"github.com/synheart/synheart-runtime/pkg/models"
)

func TestEmotionHead_zeroHRMeanSkipsTick(t *testing.T) {
	h := NewEmotionHead()
	hsv := models.HumanStateVector{Meta: models.Meta{Physio: models.PhysioSubchannel{HRMean: 0}}}

	out, err := h.Process(context.Background(), hsv)
	if err != ErrSkip {
		t.Fatalf("expected ErrSkip for hr_mean<=0, got %v", err)
	}
	if out.Emotion != nil {
		t.Error("expected no emotion enrichment on skipped tick")
	}
}

func TestEmotionHead_negativeHRMeanSkipsTick(t *testing.T) {
	h := NewEmotionHead()
	hsv := models.HumanStateVector{Meta: models.Meta{Physio: models.PhysioSubchannel{HRMean: -5}}}

	if _, err := h.Process(context.Background(), hsv); err != ErrSkip {
		t.Fatalf("expected ErrSkip for negative hr_mean, got %v", err)
	}
}

func TestEmotionHead_highArousalLowHRVYieldsStressed(t *testing.T) {
	h := NewEmotionHead()
	hsv := models.HumanStateVector{
		Meta: models.Meta{
			Physio: models.PhysioSubchannel{HRMean: 110, RMSSD: 8},
			Axes:   models.Axes{Affect: models.AffectAxis{ArousalIndex: 0.9}},
		},
	}

	out, err := h.Process(context.Background(), hsv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Emotion == nil {
		t.Fatal("expected emotion enrichment")
	}
	if out.Emotion.Stressed <= out.Emotion.Calm {
		t.Errorf("expected stressed > calm for high arousal + low HRV, got stressed=%v calm=%v",
			out.Emotion.Stressed, out.Emotion.Calm)
	}
	if out.Emotion.Valence >= 0 {
		t.Errorf("expected negative valence for a stressed tick, got %v", out.Emotion.Valence)
	}
}

func TestEmotionHead_lowArousalHighHRVYieldsCalm(t *testing.T) {
	h := NewEmotionHead()
	hsv := models.HumanStateVector{
		Meta: models.Meta{
			Physio: models.PhysioSubchannel{HRMean: 58, RMSSD: 140},
			Axes:   models.Axes{Affect: models.AffectAxis{ArousalIndex: 0.05}},
		},
	}

	out, err := h.Process(context.Background(), hsv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Emotion.Calm <= out.Emotion.Stressed {
		t.Errorf("expected calm > stressed for low arousal + high HRV, got calm=%v stressed=%v",
			out.Emotion.Calm, out.Emotion.Stressed)
	}
}

func TestEmotionHead_valenceAlwaysWithinRange(t *testing.T) {
	h := NewEmotionHead()
	hsv := models.HumanStateVector{
		Meta: models.Meta{
			Physio: models.PhysioSubchannel{HRMean: 70, RMSSD: 500},
			Axes:   models.Axes{Affect: models.AffectAxis{ArousalIndex: 1}, Engagement: models.EngagementAxis{InteractionCadence: 1}},
		},
	}
	out, err := h.Process(context.Background(), hsv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Emotion.Valence < -1 || out.Emotion.Valence > 1 {
		t.Errorf("valence out of [-1,1]: %v", out.Emotion.Valence)
	}
}
