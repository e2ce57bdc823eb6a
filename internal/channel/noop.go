package channel

import (
	"context"
	"time"

	"github.com/synheart/synheart-runtime/pkg/models"
)

// NoopWearSource is a WearSource that never emits a sample. Platform
// wearable integration is out of scope for this runtime (see source.go);
// this lets synheartd start and run the fusion/upload pipeline end to
// end against whichever channels a real deployment does wire in.
type NoopWearSource struct{}

// Subscribe returns a channel that is closed immediately when ctx ends
// and otherwise never receives a value.
func (NoopWearSource) Subscribe(ctx context.Context, _ time.Duration) (<-chan models.WearSample, error) {
	ch := make(chan models.WearSample)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

// NoopPhoneSource is a PhoneSource that never emits a sample.
type NoopPhoneSource struct{}

func (NoopPhoneSource) Subscribe(ctx context.Context) (<-chan models.PhoneSample, error) {
	ch := make(chan models.PhoneSample)
	go func() {
		<-ctx.Done()
	}()
	return ch, nil
}

// NoopBehaviorSource is a BehaviorSource that never emits an event.
type NoopBehaviorSource struct{}

func (NoopBehaviorSource) Subscribe(ctx context.Context) (<-chan models.BehaviorEvent, error) {
	ch := make(chan models.BehaviorEvent)
	go func() {
		<-ctx.Done()
	}()
	return ch, nil
}
