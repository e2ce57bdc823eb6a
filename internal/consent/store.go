package consent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/synheart/synheart-runtime/internal/broadcast"
	synevent "github.com/synheart/synheart-runtime/internal/event"
	"github.com/synheart/synheart-runtime/internal/metrics"
	"github.com/synheart/synheart-runtime/internal/synerr"
	"github.com/synheart/synheart-runtime/pkg/models"
	"github.com/synheart/synheart-runtime/pkg/module"
)

// Persistent key names, matched against the spec's named storage slots.
const (
	keySnapshot = "synheart_consent_snapshot"
)

// Store is the single source of truth for ConsentSnapshot: it persists
// to encrypted storage, exposes the current value and an observable
// stream, and diffs every update to synthesize per-channel transitions.
// Zero value is not usable; construct with NewStore.
type Store struct {
	secure module.SecureStore // nil is valid: degrades to in-memory only
	bus    module.Publisher   // nil is valid: transitions are not published
	logger *zap.Logger

	mu      sync.Mutex
	current models.ConsentSnapshot
	stream  *broadcast.Stream[models.ConsentSnapshot]

	degraded bool
}

// NewStore constructs a Store. secure and bus may be nil, in which case
// the store runs in degraded in-memory-only mode (no persistence across
// restarts, no inter-module event fan-out) rather than failing outright —
// mirroring the DeviceStorageFailure recovery policy of "surfaced on
// first attempt, degraded mode afterward".
func NewStore(secure module.SecureStore, bus module.Publisher, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		secure: secure,
		bus:    bus,
		logger: logger,
		stream: broadcast.New[models.ConsentSnapshot](),
	}
}

// Load reads the persisted snapshot, if any, defaulting to the
// all-denied zero value on first run. Safe to call once during Start.
func (s *Store) Load(ctx context.Context) error {
	snap := models.ConsentSnapshot{Timestamp: time.Now().UTC()}

	if s.secure == nil {
		s.logger.Warn("consent store running without secure storage: in-memory only")
		s.degraded = true
	} else {
		raw, ok, err := s.secure.Get(ctx, keySnapshot)
		if err != nil {
			s.logger.Error("load consent snapshot failed, degrading to in-memory", zap.Error(err))
			s.degraded = true
		} else if ok {
			if err := json.Unmarshal(raw, &snap); err != nil {
				return synerr.Wrap(synerr.ErrDeviceStorageFailed, fmt.Errorf("decode consent snapshot: %w", err))
			}
		}
	}

	s.mu.Lock()
	s.current = snap
	s.mu.Unlock()
	s.stream.Publish(snap)
	return nil
}

// Current returns the most recently applied snapshot.
func (s *Store) Current() models.ConsentSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Observe returns the broadcast stream of snapshots. A new subscriber
// receives the current value immediately, then every subsequent update.
func (s *Store) Observe() *broadcast.Stream[models.ConsentSnapshot] {
	return s.stream
}

// Update validates, persists, publishes, and diffs next against the
// current snapshot, firing TopicConsentUpdated for every changed channel
// and TopicConsentRevoked for every revocation. next.Timestamp and
// next.Version are stamped by Update; callers supply only the grant
// fields.
func (s *Store) Update(ctx context.Context, next models.ConsentSnapshot) error {
	if err := next.Validate(); err != nil {
		return synerr.NewInvalidConfig(err.Error())
	}

	s.mu.Lock()
	prev := s.current
	next.Timestamp = time.Now().UTC()
	next.Version = prev.Version + 1
	s.current = next
	s.mu.Unlock()

	if s.secure != nil {
		raw, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal consent snapshot: %w", err)
		}
		if err := s.secure.Put(ctx, keySnapshot, raw); err != nil {
			s.logger.Error("persist consent snapshot failed, degrading to in-memory", zap.Error(err))
			s.degraded = true
		}
	}

	s.stream.Publish(next)
	s.publishTransitions(ctx, prev, next)
	return nil
}

func (s *Store) publishTransitions(ctx context.Context, prev, next models.ConsentSnapshot) {
	transitions := models.DiffConsent(prev, next)
	if len(transitions) == 0 || s.bus == nil {
		return
	}
	for _, t := range transitions {
		if err := s.bus.Publish(ctx, module.Event{
			Topic:     synevent.TopicConsentUpdated,
			Source:    "consent",
			Timestamp: next.Timestamp,
			Payload:   t,
		}); err != nil {
			s.logger.Warn("publish consent.updated failed", zap.Error(err))
		}
		if t.Revoked() {
			metrics.ConsentTransitionsTotal.WithLabelValues(t.Channel, "revoked").Inc()
			if err := s.bus.Publish(ctx, module.Event{
				Topic:     synevent.TopicConsentRevoked,
				Source:    "consent",
				Timestamp: next.Timestamp,
				Payload:   t,
			}); err != nil {
				s.logger.Warn("publish consent.revoked failed", zap.Error(err))
			}
		} else if t.Now {
			metrics.ConsentTransitionsTotal.WithLabelValues(t.Channel, "granted").Inc()
		}
	}
}

// Reset clears the snapshot back to the all-denied zero value, both
// in-memory and in secure storage. Used by the facade's local-data
// deletion surface; unlike Update, it does not synthesize or publish
// per-channel transitions, since deletion is not a consent decision.
func (s *Store) Reset(ctx context.Context) error {
	zero := models.ConsentSnapshot{Timestamp: time.Now().UTC()}
	s.mu.Lock()
	s.current = zero
	s.mu.Unlock()

	if s.secure != nil {
		if err := s.secure.Delete(ctx, keySnapshot); err != nil {
			return fmt.Errorf("delete consent snapshot: %w", err)
		}
	}
	s.stream.Publish(zero)
	return nil
}

// Degraded reports whether the store fell back to in-memory-only
// operation after a storage failure (or because no secure store was
// configured).
func (s *Store) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// Granted reports whether the given channel is currently granted.
func (s *Store) Granted(channel string) bool {
	snap := s.Current()
	switch channel {
	case models.ChannelBiosignals:
		return snap.Biosignals
	case models.ChannelBehavior:
		return snap.Behavior
	case models.ChannelMotion:
		return snap.Motion
	case models.ChannelCloudUpload:
		return snap.CloudUpload
	default:
		return false
	}
}
