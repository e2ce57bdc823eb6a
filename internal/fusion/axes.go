package fusion

import "github.com/synheart/synheart-runtime/pkg/models"

// clip01 bounds v to [0,1].
func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// clip bounds v to [lo,hi].
func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// norm rescales x from [lo,hi] to [0,1], clipped at both ends.
func norm(x, lo, hi float64) float64 {
	if hi == lo {
		return 0
	}
	return clip01((x - lo) / (hi - lo))
}

// computeAxes derives the four axis bundles from one tick's imputed
// window features. valence/valenceStability are carried over from the
// previous tick (or left at the neutral zero default) — only a running
// emotion head sets them; fusion never computes affect beyond
// arousalIndex.
func computeAxes(wear models.WearWindowFeatures, phone models.PhoneWindowFeatures, behavior models.BehaviorWindowFeatures, prevValence, prevValenceStability float64) models.Axes {
	arousal := clip01(0.6*norm(wear.HRAvg, 50, 120) + 0.4*(1-norm(wear.HRVRmssdAvg, 5, 150)))
	interactionCadence := clip01(norm(behavior.TapRateNorm, 0, 1)*0.5 + norm(behavior.KeystrokeRate, 0, 120)*0.5)
	stability := clip01(1 - norm(behavior.TypingBurstiness, 0, 1))
	motionIndex := clip01(norm(wear.MotionLevelAvg, 0, 1)*0.5 + norm(phone.MotionIndex, 0, 1)*0.5)
	appSwitchIndex := norm(float64(phone.ForegroundAppChanges), 0, 20)

	return models.Axes{
		Affect: models.AffectAxis{
			ArousalIndex:     arousal,
			Valence:          clip(prevValence, -1, 1),
			ValenceStability: clip(prevValenceStability, -1, 1),
		},
		Engagement: models.EngagementAxis{
			InteractionCadence: interactionCadence,
			Stability:          stability,
		},
		Activity: models.ActivityAxis{
			MotionIndex:      motionIndex,
			PostureStability: clip01(phone.PostureStability),
		},
		Context: models.ContextAxis{
			ScreenActiveRatio: clip01(phone.ScreenOnRatio),
			AppSwitchIndex:    appSwitchIndex,
		},
	}
}
