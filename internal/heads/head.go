// Package heads implements the interpretation heads that enrich a base
// HumanStateVector with an optional Emotion or Focus reading: small,
// stateless transforms attached to the fusion HSV stream. A head never
// blocks fusion — a transient failure just drops that tick's
// enrichment; a run of consecutive failures disables the head until a
// facade-driven restart.
package heads

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/synheart/synheart-runtime/internal/metrics"
	"github.com/synheart/synheart-runtime/pkg/models"
)

// ErrSkip signals a transient per-tick condition (e.g. low-quality
// input) that is not a head failure: the tick is dropped without
// incrementing the head's failure counter and without emitting an
// enriched HSV.
var ErrSkip = errors.New("heads: tick skipped")

// maxConsecutiveFailures is the number of consecutive non-ErrSkip
// errors a head tolerates before transitioning itself to an error
// state and refusing further ticks until Reset.
const maxConsecutiveFailures = 5

// Head transforms a base HSV into an enriched one. Implementations are
// pure and stateless with respect to the HSV itself; Runner supplies
// the failure-counting and disable/re-enable behavior around them.
type Head interface {
	Name() string
	Process(ctx context.Context, hsv models.HumanStateVector) (models.HumanStateVector, error)
}

// Runner wraps a Head with the consecutive-failure counter the spec
// describes: transient errors (ErrSkip) pass the base HSV through
// untouched; persistent errors disable the head after
// maxConsecutiveFailures in a row until Reset is called.
type Runner struct {
	mu       sync.Mutex
	head     Head
	logger   *zap.Logger
	failures int
	disabled bool
}

// NewRunner wraps head with failure tracking. logger may be nil.
func NewRunner(head Head, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{head: head, logger: logger}
}

// Name returns the wrapped head's name.
func (r *Runner) Name() string { return r.head.Name() }

// Disabled reports whether the head has exceeded its consecutive
// failure budget and is refusing ticks.
func (r *Runner) Disabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disabled
}

// Reset clears the failure counter and re-enables a disabled head.
func (r *Runner) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = 0
	r.disabled = false
}

// Process runs the wrapped head, tracking consecutive failures. A
// disabled head returns hsv unchanged. ErrSkip from the head is not
// counted as a failure: the base HSV passes through untouched and the
// failure counter is left alone.
func (r *Runner) Process(ctx context.Context, hsv models.HumanStateVector) (models.HumanStateVector, error) {
	r.mu.Lock()
	if r.disabled {
		r.mu.Unlock()
		return hsv, nil
	}
	r.mu.Unlock()

	enriched, err := r.head.Process(ctx, hsv)
	if err != nil {
		if errors.Is(err, ErrSkip) {
			return hsv, nil
		}
		metrics.HeadFailuresTotal.WithLabelValues(r.head.Name()).Inc()
		r.mu.Lock()
		r.failures++
		if r.failures >= maxConsecutiveFailures {
			r.disabled = true
			r.logger.Warn("head disabled after consecutive failures",
				zap.String("head", r.head.Name()),
				zap.Int("failures", r.failures),
				zap.Error(err))
		}
		r.mu.Unlock()
		return hsv, fmt.Errorf("head %s: %w", r.head.Name(), err)
	}

	r.mu.Lock()
	r.failures = 0
	r.mu.Unlock()
	return enriched, nil
}
