package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ent0n29/soundboard/internal/speech"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeSpeak     MessageType = "speak"
	TypeDialogue  MessageType = "dialogue"
	TypeInterrupt MessageType = "interrupt"

	TypeJobStarted       MessageType = "job_started"
	TypeChunkSynthesized MessageType = "chunk_synthesized"
	TypeSpeechResult     MessageType = "speech_result"
	TypeInterruptResult  MessageType = "interrupt_result"
	TypeErrorEvent       MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type SpeakMessage struct {
	Type      MessageType         `json:"type"`
	RequestID string              `json:"request_id,omitempty"`
	Text      string              `json:"text"`
	Mode      string              `json:"mode,omitempty"`
	Voice     string              `json:"voice,omitempty"`
	Speed     float64             `json:"speed,omitempty"`
	Delivery  speech.DeliveryMode `json:"delivery,omitempty"`
	Concat    *bool               `json:"concat,omitempty"`
}

type DialogueMessage struct {
	Type      MessageType         `json:"type"`
	RequestID string              `json:"request_id,omitempty"`
	Script    string              `json:"script"`
	Cast      map[string]string   `json:"cast,omitempty"`
	Speed     float64             `json:"speed,omitempty"`
	Delivery  speech.DeliveryMode `json:"delivery,omitempty"`
	Concat    *bool               `json:"concat,omitempty"`
}

type InterruptMessage struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	JobID     string      `json:"job_id"`
}

type JobStarted struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	JobID     string      `json:"job_id"`
}

type ChunkSynthesized struct {
	Type      MessageType          `json:"type"`
	RequestID string               `json:"request_id,omitempty"`
	JobID     string               `json:"job_id"`
	Index     int                  `json:"index"`
	Planned   int                  `json:"planned"`
	Text      string               `json:"text"`
	Artifact  speech.ChunkArtifact `json:"artifact"`
}

// SpeechResult carries either a speech.SpeechResult or a dialogue result.
type SpeechResult struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	JobID     string      `json:"job_id"`
	Result    any         `json:"result"`
}

type InterruptResult struct {
	Type        MessageType `json:"type"`
	RequestID   string      `json:"request_id,omitempty"`
	JobID       string      `json:"job_id"`
	Interrupted bool        `json:"interrupted"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	JobID     string      `json:"job_id,omitempty"`
	Code      string      `json:"code"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeSpeak:
		var msg SpeakMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, errors.New("invalid speak: text is required")
		}
		return msg, nil
	case TypeDialogue:
		var msg DialogueMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.Script) == "" {
			return nil, errors.New("invalid dialogue: script is required")
		}
		return msg, nil
	case TypeInterrupt:
		var msg InterruptMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.JobID) == "" {
			return nil, errors.New("invalid interrupt: job_id is required")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// TypeOf reports the type tag of a client or server message value.
func TypeOf(v any) (MessageType, bool) {
	switch m := v.(type) {
	case SpeakMessage:
		return m.Type, true
	case DialogueMessage:
		return m.Type, true
	case InterruptMessage:
		return m.Type, true
	case JobStarted:
		return m.Type, true
	case ChunkSynthesized:
		return m.Type, true
	case SpeechResult:
		return m.Type, true
	case InterruptResult:
		return m.Type, true
	case ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
