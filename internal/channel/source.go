package channel

import (
	"context"
	"time"

	"github.com/synheart/synheart-runtime/pkg/models"
)

// WearSource is the external boundary interface for the wearable
// biosignal source adapter (platform-specific, out of scope here). The
// returned channel is closed when ctx is cancelled or the adapter
// detaches.
type WearSource interface {
	Subscribe(ctx context.Context, interval time.Duration) (<-chan models.WearSample, error)
}

// PhoneSource is the external boundary interface for the phone
// motion/screen source adapter.
type PhoneSource interface {
	Subscribe(ctx context.Context) (<-chan models.PhoneSample, error)
}

// BehaviorSource is the external boundary interface for the raw
// interaction-event source adapter (tap/scroll/swipe/typing/
// notification/call).
type BehaviorSource interface {
	Subscribe(ctx context.Context) (<-chan models.BehaviorEvent, error)
}
