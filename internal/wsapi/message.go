package wsapi

import (
	"time"

	"github.com/synheart/synheart-runtime/pkg/models"
)

// MessageType discriminates WebSocket messages sent to an inspector.
type MessageType string

const (
	MessageHSV     MessageType = "hsv.tick"
	MessageEmotion MessageType = "emotion.updated"
	MessageFocus   MessageType = "focus.updated"
)

// Message is the envelope for all WebSocket messages this bridge sends.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data"`
}

// hsvMessage wraps a HumanStateVector as message data.
func hsvMessage(hsv models.HumanStateVector) Message {
	return Message{Type: MessageHSV, Timestamp: hsv.Timestamp, Data: hsv}
}

// emotionMessage wraps an EmotionState as message data.
func emotionMessage(e models.EmotionState, at time.Time) Message {
	return Message{Type: MessageEmotion, Timestamp: at, Data: e}
}

// focusMessage wraps a FocusState as message data.
func focusMessage(f models.FocusState, at time.Time) Message {
	return Message{Type: MessageFocus, Timestamp: at, Data: f}
}
