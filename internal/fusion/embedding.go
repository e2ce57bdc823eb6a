package fusion

import (
	"math"
	"math/rand"

	"github.com/synheart/synheart-runtime/pkg/models"
)

// embeddingInputDim is the length of the normalized feature vector fed
// into the projection; see featureVector below for its exact layout.
const embeddingInputDim = 16

// embeddingProjectedDim is the span of embedding slots the projection
// fills — everything after the 5 reserved physio slots.
const embeddingProjectedDim = models.EmbeddingDim - 5

// embeddingSeed is a fixed, arbitrary constant. The projection matrix
// must be reproducible across processes and versions (two runs over the
// same feature history must embed identically), so it is derived from
// this seed rather than crypto/rand.
const embeddingSeed = 0x53796e68656172

var projectionMatrix [embeddingProjectedDim][embeddingInputDim]float64

func init() {
	r := rand.New(rand.NewSource(embeddingSeed))
	for i := range projectionMatrix {
		for j := range projectionMatrix[i] {
			projectionMatrix[i][j] = r.NormFloat64()
		}
	}
}

// featureVector concatenates the tick's normalized (imputed) channel
// features in a fixed order for projection. hr/hrv/resp/motion come
// from wear, tap/keystroke/typing/scroll/switch/focus from behavior,
// and motion/posture/screen/foreground from phone; the two arousal/
// cadence axis values close out the vector so the embedding also
// reflects the higher-level axis bundle, not just raw channel features.
func featureVector(wear models.WearWindowFeatures, phone models.PhoneWindowFeatures, behavior models.BehaviorWindowFeatures, axes models.Axes) [embeddingInputDim]float64 {
	return [embeddingInputDim]float64{
		norm(wear.HRAvg, 50, 120),
		norm(wear.HRVRmssdAvg, 5, 150),
		norm(wear.RespRateAvg, 8, 30),
		norm(wear.MotionLevelAvg, 0, 1),
		behavior.TapRateNorm,
		norm(behavior.KeystrokeRate, 0, 120),
		clip01(behavior.TypingBurstiness),
		norm(behavior.ScrollVelocity, 0, 500),
		norm(behavior.AppSwitchRate, 0, 20),
		clip01(behavior.FocusHint),
		clip01(phone.MotionIndex),
		clip01(phone.PostureStability),
		clip01(phone.ScreenOnRatio),
		norm(float64(phone.ForegroundAppChanges), 0, 20),
		axes.Affect.ArousalIndex,
		axes.Engagement.InteractionCadence,
	}
}

// computeEmbedding fills slots [0:5] directly from the named physio
// sub-channel (kept in sync with Meta.Physio for HSI 1.0 wire
// compatibility) and slots [5:64] from the linear projection of
// features, L2-normalized so the projected portion has unit length
// independent of how many axes contributed energy to it.
func computeEmbedding(physio models.PhysioSubchannel, features [embeddingInputDim]float64) models.Embedding {
	var emb models.Embedding
	emb.Vector[0] = physio.HRMean
	emb.Vector[1] = physio.RMSSD
	emb.Vector[2] = physio.SDNN
	emb.Vector[3] = physio.PNN50
	emb.Vector[4] = physio.MeanRR

	projected := emb.Vector[5:]
	for i := 0; i < embeddingProjectedDim; i++ {
		var sum float64
		for j := 0; j < embeddingInputDim; j++ {
			sum += projectionMatrix[i][j] * features[j]
		}
		projected[i] = sum
	}
	l2Normalize(projected)

	return emb
}

func l2Normalize(v []float64) {
	var sumSq float64
	for _, x := range v {
		sumSq += x * x
	}
	if sumSq == 0 {
		return
	}
	n := math.Sqrt(sumSq)
	for i := range v {
		v[i] /= n
	}
}
