// Package event provides an in-memory implementation of module.EventBus,
// used for control-plane signals between runtime modules (consent
// revoked, token refreshed, channel disabled). Bulk data streams use
// internal/broadcast instead.
package event

import (
	"context"
	"sync"

	"github.com/synheart/synheart-runtime/pkg/module"
	"go.uber.org/zap"
)

// Compile-time interface guard.
var _ module.EventBus = (*Bus)(nil)

// Bus is an in-memory event bus. Publish is synchronous (handlers run
// in the caller's goroutine); PublishAsync dispatches handlers in
// separate goroutines.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]handlerEntry
	allSubs  []handlerEntry
	nextID   uint64
	logger   *zap.Logger
}

type handlerEntry struct {
	id      uint64
	handler module.EventHandler
}

// NewBus creates a new in-memory event bus.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		handlers: make(map[string][]handlerEntry),
		logger:   logger,
	}
}

// Publish dispatches an event synchronously to all matching handlers.
func (b *Bus) Publish(ctx context.Context, evt module.Event) error {
	topicHandlers, allHandlers := b.snapshot(evt.Topic)
	for _, h := range topicHandlers {
		b.safeCall(ctx, h.handler, evt)
	}
	for _, h := range allHandlers {
		b.safeCall(ctx, h.handler, evt)
	}
	return nil
}

// PublishAsync dispatches an event asynchronously to all matching handlers.
func (b *Bus) PublishAsync(ctx context.Context, evt module.Event) {
	topicHandlers, allHandlers := b.snapshot(evt.Topic)
	for _, h := range topicHandlers {
		go b.safeCall(ctx, h.handler, evt)
	}
	for _, h := range allHandlers {
		go b.safeCall(ctx, h.handler, evt)
	}
}

// Subscribe registers a handler for a specific topic. Returns an unsubscribe function.
func (b *Bus) Subscribe(topic string, handler module.EventHandler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[topic] = append(b.handlers[topic], handlerEntry{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		entries := b.handlers[topic]
		for i, e := range entries {
			if e.id == id {
				b.handlers[topic] = append(entries[:i], entries[i+1:]...)
				return
			}
		}
	}
}

// SubscribeAll registers a handler for all topics. Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler module.EventHandler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.allSubs = append(b.allSubs, handlerEntry{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, e := range b.allSubs {
			if e.id == id {
				b.allSubs = append(b.allSubs[:i], b.allSubs[i+1:]...)
				return
			}
		}
	}
}

func (b *Bus) snapshot(topic string) (topicHandlers, allHandlers []handlerEntry) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	topicHandlers = append(topicHandlers, b.handlers[topic]...)
	allHandlers = append(allHandlers, b.allSubs...)
	return
}

func (b *Bus) safeCall(ctx context.Context, handler module.EventHandler, evt module.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("topic", evt.Topic),
				zap.String("source", evt.Source),
				zap.Any("panic", r),
			)
		}
	}()
	handler(ctx, evt)
}

// Topics used for control-plane signaling between runtime modules.
const (
	TopicConsentUpdated  = "consent.updated"
	TopicConsentRevoked  = "consent.revoked"
	TopicTokenRefreshed  = "token.refreshed"
	TopicChannelDisabled = "channel.disabled"
	TopicFusionFault     = "fusion.fault"
	TopicHeadError       = "head.error"
)
