package protocol

import (
	"encoding/json"
	"errors"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeTurnCompleted MessageType = "turn_completed"
	TypeErrorEvent    MessageType = "error_event"
)

var ErrMissingType = errors.New("envelope missing type field")

type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TurnCompleted announces a finished exchange. AudioURL is absent when
// synthesis was unavailable; the reply text always wins over voice.
type TurnCompleted struct {
	TurnID   string `json:"turn_id"`
	Message  string `json:"message"`
	AudioURL string `json:"audio_url,omitempty"`
	TSMs     int64  `json:"ts_ms"`
}

type ErrorEvent struct {
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}
