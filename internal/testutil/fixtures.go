// Package testutil holds fixture builders shared by this module's test
// suites: small functional-options constructors for the domain structs
// that would otherwise be repeated as long literal builds in every
// package's _test.go files.
package testutil

import (
	"time"

	"github.com/synheart/synheart-runtime/pkg/models"
)

// Float64 returns a pointer to v, for WearSample's optional fields.
func Float64(v float64) *float64 { return &v }

// String returns a pointer to v, for WearSample's optional fields.
func String(v string) *string { return &v }

// WearSampleOption mutates a WearSample under construction.
type WearSampleOption func(*models.WearSample)

// NewWearSample builds a WearSample with a sane default reading,
// overridden field-by-field by opts.
func NewWearSample(ts time.Time, opts ...WearSampleOption) models.WearSample {
	s := models.WearSample{
		Timestamp:   ts,
		HR:          Float64(70),
		HRVRmssd:    Float64(45),
		RespRate:    Float64(14),
		MotionLevel: Float64(0.1),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithHR overrides the heart rate reading.
func WithHR(hr float64) WearSampleOption {
	return func(s *models.WearSample) { s.HR = Float64(hr) }
}

// WithHRVRmssd overrides the HRV RMSSD reading.
func WithHRVRmssd(v float64) WearSampleOption {
	return func(s *models.WearSample) { s.HRVRmssd = Float64(v) }
}

// WithRRIntervals sets the raw RR interval series.
func WithRRIntervals(rr ...float64) WearSampleOption {
	return func(s *models.WearSample) { s.RRIntervals = rr }
}

// WithSleepStage sets the reported sleep stage.
func WithSleepStage(stage string) WearSampleOption {
	return func(s *models.WearSample) { s.SleepStage = String(stage) }
}

// BehaviorEventOption mutates a BehaviorEvent under construction.
type BehaviorEventOption func(*models.BehaviorEvent)

// NewBehaviorEvent builds a BehaviorEvent of the given type for
// sessionID at ts, with an empty metrics map overridden by opts.
func NewBehaviorEvent(sessionID string, typ models.BehaviorEventType, ts time.Time, opts ...BehaviorEventOption) models.BehaviorEvent {
	e := models.BehaviorEvent{
		SessionID: sessionID,
		Type:      typ,
		Timestamp: ts,
		Metrics:   map[string]float64{},
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// WithMetric sets a single metric key on the event.
func WithMetric(key string, value float64) BehaviorEventOption {
	return func(e *models.BehaviorEvent) { e.Metrics[key] = value }
}

// HSVOption mutates a HumanStateVector under construction.
type HSVOption func(*models.HumanStateVector)

// NewHSV builds a finite, well-formed HumanStateVector with zeroed axes
// and an all-zero embedding, overridden by opts. Useful wherever a test
// needs a valid HSV to feed a head or the upload queue without running
// the fusion engine.
func NewHSV(ts time.Time, opts ...HSVOption) models.HumanStateVector {
	h := models.HumanStateVector{
		Version:   models.HSVVersion,
		Timestamp: ts,
		Meta: models.Meta{
			SessionID:      "test-session",
			Device:         "test-device",
			SamplingRateHz: 1,
		},
	}
	for _, opt := range opts {
		opt(&h)
	}
	return h
}

// WithArousal sets the affect arousal index.
func WithArousal(v float64) HSVOption {
	return func(h *models.HumanStateVector) { h.Meta.Axes.Affect.ArousalIndex = v }
}

// WithEmotion attaches an EmotionState.
func WithEmotion(e models.EmotionState) HSVOption {
	return func(h *models.HumanStateVector) { h.Emotion = &e }
}

// WithFocus attaches a FocusState.
func WithFocus(f models.FocusState) HSVOption {
	return func(h *models.HumanStateVector) { h.Focus = &f }
}
