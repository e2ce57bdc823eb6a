package models

import (
	"math"
	"time"
)

// HSVVersion is the "HSI 1.0" wire format version stamped on every
// emitted HumanStateVector.
const HSVVersion = "1.0"

// EmbeddingDim is the fixed length of the HSV embedding vector. The
// producer never emits a vector of any other length.
const EmbeddingDim = 64

// AffectAxis groups normalized emotional-arousal proxies. Valence and
// ValenceStability live in [-1,1]; ArousalIndex lives in [0,1].
type AffectAxis struct {
	ArousalIndex     float64 `json:"arousal_index"`
	Valence          float64 `json:"valence"`
	ValenceStability float64 `json:"valence_stability"`
}

// EngagementAxis groups normalized interaction-cadence proxies, all in [0,1].
type EngagementAxis struct {
	InteractionCadence float64 `json:"interaction_cadence"`
	Stability          float64 `json:"stability"`
}

// ActivityAxis groups normalized motion proxies, all in [0,1].
type ActivityAxis struct {
	MotionIndex      float64 `json:"motion_index"`
	PostureStability float64 `json:"posture_stability"`
}

// ContextAxis groups normalized screen/foreground proxies, all in [0,1].
type ContextAxis struct {
	ScreenActiveRatio float64 `json:"screen_active_ratio"`
	AppSwitchIndex    float64 `json:"app_switch_index"`
}

// Axes bundles the four pre-computed index groups.
type Axes struct {
	Affect     AffectAxis     `json:"affect"`
	Engagement EngagementAxis `json:"engagement"`
	Activity   ActivityAxis   `json:"activity"`
	Context    ContextAxis    `json:"context"`
}

// PhysioSubchannel carries the named physiological features the
// emotion head consumes, replacing the brittle "first five embedding
// slots" coupling of the original contract with an explicit struct.
type PhysioSubchannel struct {
	HRMean float64 `json:"hr_mean"`
	RMSSD  float64 `json:"rmssd"`
	SDNN   float64 `json:"sdnn"`
	PNN50  float64 `json:"pnn50"`
	MeanRR float64 `json:"mean_rr"`
}

// Embedding is the tick's fixed-length embedding: slots 0-4 carry the
// physio values (hr_mean, rmssd, sdnn, pnn50, mean_rr) unnormalized, and
// slots 5-63 hold an L2-normalized projection of the tick's normalized
// feature vector.
type Embedding struct {
	Vector [EmbeddingDim]float64 `json:"vector"`
}

// Finite reports whether every component of the embedding is finite.
func (e Embedding) Finite() bool {
	for _, v := range e.Vector {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Meta carries identifying and auxiliary information stamped onto
// every HSV: session/device identity, sampling rate, the embedding,
// the axis bundles, and the emotion head's named sub-channel.
type Meta struct {
	SessionID      string    `json:"session_id"`
	Device         string    `json:"device"`
	SamplingRateHz float64   `json:"sampling_rate_hz"`
	Embedding      Embedding `json:"embedding"`
	Axes           Axes      `json:"axes"`
	Physio         PhysioSubchannel `json:"physio"`
}

// EmotionState is the optional output of the emotion interpretation head.
type EmotionState struct {
	Calm     float64 `json:"calm"`
	Stressed float64 `json:"stressed"`
	Amused   float64 `json:"amused"`
	Valence  float64 `json:"valence"` // clip(calm + amused - stressed, -1, 1)
}

// FocusState is the optional output of the focus interpretation head.
type FocusState struct {
	FocusIndex float64 `json:"focus_index"` // [0,1]
	Distracted bool    `json:"distracted"`
}

// BehaviorFeatures is the behavior-channel slice of an HSV tick,
// imputed to zero when behavior consent is absent or the channel has
// no coverage.
type BehaviorFeatures struct {
	TypingCadence  float64 `json:"typing_cadence"`
	TapRate        float64 `json:"tap_rate"`
	ScrollVelocity float64 `json:"scroll_velocity"`
}

// ContextFeatures is the context-channel slice of an HSV tick.
type ContextFeatures struct {
	ScreenActiveRatio float64 `json:"screen_active_ratio"`
}

// HumanStateVector is the versioned, immutable-once-created record
// produced by one fusion tick. Every numeric field must be finite;
// Meta.Embedding.Vector has exactly EmbeddingDim entries.
type HumanStateVector struct {
	Version   string        `json:"version"`
	Timestamp time.Time     `json:"timestamp"`
	Emotion   *EmotionState `json:"emotion,omitempty"`
	Focus     *FocusState   `json:"focus,omitempty"`
	Behavior  BehaviorFeatures `json:"behavior"`
	Context   ContextFeatures  `json:"context"`
	Meta      Meta          `json:"meta"`
}

// Finite reports whether every numeric field of the HSV is finite,
// satisfying the Fatal-error invariant checked by the fusion engine
// before publish.
func (h HumanStateVector) Finite() bool {
	if !h.Meta.Embedding.Finite() {
		return false
	}
	vals := []float64{
		h.Behavior.TypingCadence, h.Behavior.TapRate, h.Behavior.ScrollVelocity,
		h.Context.ScreenActiveRatio,
		h.Meta.Axes.Affect.ArousalIndex, h.Meta.Axes.Affect.Valence, h.Meta.Axes.Affect.ValenceStability,
		h.Meta.Axes.Engagement.InteractionCadence, h.Meta.Axes.Engagement.Stability,
		h.Meta.Axes.Activity.MotionIndex, h.Meta.Axes.Activity.PostureStability,
		h.Meta.Axes.Context.ScreenActiveRatio, h.Meta.Axes.Context.AppSwitchIndex,
		h.Meta.SamplingRateHz,
	}
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
