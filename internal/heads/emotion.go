package heads

import (
	"context"

	"github.com/synheart/synheart-runtime/pkg/models"
)

// rmssdFloor/rmssdCeil bound the RMSSD normalization range used to
// derive the calm/stressed/amused probabilities; same range the
// fusion engine uses to normalize hrv_rmssd_avg into the arousal axis.
const (
	rmssdFloor = 5.0
	rmssdCeil  = 150.0
)

// EmotionHead derives an EmotionState from the physiological
// sub-channel carried on Meta.Physio. Ticks with a non-positive mean
// heart rate are unreliable (sensor dropout, no contact) and are
// skipped rather than enriched.
type EmotionHead struct{}

// NewEmotionHead constructs the emotion interpretation head.
func NewEmotionHead() *EmotionHead { return &EmotionHead{} }

func (h *EmotionHead) Name() string { return "emotion" }

// Process computes {calm, stressed, amused, valence} from the arousal
// axis and HRV. hr_mean <= 0 means the wear channel had no usable
// reading this tick; emit no enrichment rather than a fabricated one.
func (h *EmotionHead) Process(ctx context.Context, hsv models.HumanStateVector) (models.HumanStateVector, error) {
	physio := hsv.Meta.Physio
	if physio.HRMean <= 0 {
		return hsv, ErrSkip
	}

	arousal := clip01(hsv.Meta.Axes.Affect.ArousalIndex)
	hrvCalm := clip01(norm(physio.RMSSD, rmssdFloor, rmssdCeil))
	cadence := clip01(hsv.Meta.Axes.Engagement.InteractionCadence)

	stressed := clip01(arousal * (1 - hrvCalm))
	calm := clip01(hrvCalm * (1 - arousal))
	amused := clip01(cadence * hrvCalm)
	valence := clip(calm+amused-stressed, -1, 1)

	hsv.Emotion = &models.EmotionState{
		Calm:     calm,
		Stressed: stressed,
		Amused:   amused,
		Valence:  valence,
	}
	return hsv, nil
}

func clip01(v float64) float64 { return clip(v, 0, 1) }

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func norm(x, lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	return clip01((x - lo) / (hi - lo))
}
