package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPayload is returned when a payload cannot be decoded.
var ErrInvalidPayload = errors.New("invalid payload")

// RawEvent is an event as received from a game client. Payload is decoded
// according to Type by the caller.
type RawEvent struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	DeviceID  string          `json:"deviceId"`
	SessionID string          `json:"sessionId"`
	UserID    string          `json:"userId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// AnswerPayload is the payload of a quiz answer event.
type AnswerPayload struct {
	QuestionID int `json:"questionId"`
	AnswerID   int `json:"answerId"`
}

// DecodeAnswer decodes the event payload as a quiz answer.
func (e *RawEvent) DecodeAnswer() (*AnswerPayload, error) {
	var payload AnswerPayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return &payload, nil
}

// DecodeGameInit decodes the event payload as a game-init payload.
func (e *RawEvent) DecodeGameInit() (GameInitPayload, error) {
	return DecodeGameInitPayload(e.Payload)
}
