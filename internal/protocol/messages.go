package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmaggi/voiceloop/internal/telemetry"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeSpeechStart        MessageType = "speech_start"
	TypeTranscriptFinal    MessageType = "transcript_final"
	TypeClientControl      MessageType = "client_control"
	TypeAssistantTextDelta MessageType = "assistant_text_delta"
	TypeSpeechUnit         MessageType = "speech_unit"
	TypeAssistantAudio     MessageType = "assistant_audio_chunk"
	TypeAssistantTurnEnd   MessageType = "assistant_turn_end"
	TypeSystemEvent        MessageType = "system_event"
	TypeErrorEvent         MessageType = "error_event"
	TypeSessionSummary     MessageType = "session_summary"
)

// Speech unit tags distinguish filler phrases from real response speech.
const (
	SpeechTagFiller   = "filler"
	SpeechTagResponse = "response"
)

// Client control actions.
const (
	ActionBargeIn    = "barge_in"
	ActionEndSession = "end_session"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// SpeechStart signals the user has started speaking. Arriving while the
// assistant is speaking it doubles as a barge-in.
type SpeechStart struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	TSMs      int64       `json:"ts_ms"`
}

// TranscriptFinal carries one finalized user utterance from the client-side
// STT, with the measured audio duration for cost accounting.
type TranscriptFinal struct {
	Type         MessageType `json:"type"`
	SessionID    string      `json:"session_id"`
	Text         string      `json:"text"`
	AudioSeconds float64     `json:"audio_seconds"`
	TSMs         int64       `json:"ts_ms"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
}

type AssistantTextDelta struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	TurnID    string      `json:"turn_id"`
	TextDelta string      `json:"text_delta"`
}

// SpeechUnit is one ordered utterance handed to the client for TTS playback.
type SpeechUnit struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	TurnID    string      `json:"turn_id"`
	Seq       int         `json:"seq"`
	Tag       string      `json:"tag"`
	Text      string      `json:"text"`
}

// AssistantAudioChunk carries synthesized audio when server-side TTS is on.
type AssistantAudioChunk struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	TurnID      string      `json:"turn_id"`
	Seq         int         `json:"seq"`
	Format      string      `json:"format"`
	AudioBase64 string      `json:"audio_base64"`
}

type AssistantTurnEnd struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	TurnID    string      `json:"turn_id"`
	Reason    string      `json:"reason"`
}

type SystemEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

type SessionSummary struct {
	Type      MessageType       `json:"type"`
	SessionID string            `json:"session_id"`
	Summary   telemetry.Summary `json:"summary"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeSpeechStart:
		var msg SpeechStart
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid speech_start")
		}
		return msg, nil
	case TypeTranscriptFinal:
		var msg TranscriptFinal
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.Text == "" {
			return nil, errors.New("invalid transcript_final")
		}
		if msg.AudioSeconds < 0 {
			return nil, errors.New("invalid transcript_final: negative audio duration")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.Action == "" {
			return nil, errors.New("invalid client_control")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
