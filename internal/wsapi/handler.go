package wsapi

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/synheart/synheart-runtime/internal/broadcast"
	"github.com/synheart/synheart-runtime/pkg/models"
)

// Source is the subset of facade.Engine's stream surface this bridge
// mirrors. Defined consumer-side so wsapi never imports internal/facade.
type Source interface {
	HSVUpdates() *broadcast.Stream[models.HumanStateVector]
	EmotionUpdates() *broadcast.Stream[models.EmotionState]
	FocusUpdates() *broadcast.Stream[models.FocusState]
}

const subscriberBuffer = 32

// Handler provides a debug WebSocket endpoint that mirrors a facade's
// HSV/emotion/focus streams to any connected inspector.
type Handler struct {
	hub    *Hub
	source Source
	logger *zap.Logger

	cancel context.CancelFunc
}

// NewHandler creates a Handler and starts forwarding source's streams to
// the hub. Call Close to stop forwarding.
func NewHandler(source Source, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handler{
		hub:    NewHub(logger),
		source: source,
		logger: logger,
		cancel: cancel,
	}
	h.forward(ctx)
	return h
}

// RegisterRoutes registers the inspector WebSocket route on the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/ws/inspect", h.handleInspectStream)
}

// Close stops forwarding facade events to connected inspectors. Does not
// close existing client connections; those end when their read loop
// observes a closed context via readPump's next read error, or when the
// client disconnects on its own.
func (h *Handler) Close() {
	h.cancel()
}

func (h *Handler) handleInspectStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan Message, 256), logger: h.logger}
	h.hub.register(c)

	ctx := r.Context()
	done := make(chan struct{})
	go func() {
		c.writePump(ctx)
		close(done)
	}()

	c.readPump(ctx)

	h.hub.unregister(c)
	conn.Close(websocket.StatusNormalClosure, "")
	<-done
}

// forward subscribes to each stream and relays every published value to
// the hub until ctx is cancelled.
func (h *Handler) forward(ctx context.Context) {
	hsvCh, hsvUnsub := h.source.HSVUpdates().Subscribe(subscriberBuffer)
	emotionCh, emotionUnsub := h.source.EmotionUpdates().Subscribe(subscriberBuffer)
	focusCh, focusUnsub := h.source.FocusUpdates().Subscribe(subscriberBuffer)

	go func() {
		defer hsvUnsub()
		defer emotionUnsub()
		defer focusUnsub()
		for {
			select {
			case <-ctx.Done():
				return
			case hsv, ok := <-hsvCh:
				if !ok {
					return
				}
				h.hub.Broadcast(hsvMessage(hsv))
			case e, ok := <-emotionCh:
				if !ok {
					return
				}
				h.hub.Broadcast(emotionMessage(e, time.Now().UTC()))
			case f, ok := <-focusCh:
				if !ok {
					return
				}
				h.hub.Broadcast(focusMessage(f, time.Now().UTC()))
			}
		}
	}()
}
