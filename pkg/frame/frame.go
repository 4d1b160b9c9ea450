// Package frame implements the gateway wire protocol's JSON message
// envelope: encoding and decoding of the tagged frames exchanged over the
// device↔gateway WebSocket connection.
package frame

import (
	"encoding/json"
	"fmt"

	"github.com/snugbit/toygateway/pkg/jsontime"
)

// Type is the wire-level message discriminator.
type Type string

const (
	TypeHandshake     Type = "handshake"
	TypeHandshakeAck  Type = "handshake_ack"
	TypePing          Type = "ping"
	TypePong          Type = "pong"
	TypeControl       Type = "control"
	TypeControlAck    Type = "control_ack"
	TypeAudioChunk    Type = "audio_chunk"
	TypeStatus        Type = "status"
	TypeTextResponse  Type = "text_response"
	TypeAudioResponse Type = "audio_response"
	TypeConfigUpdate  Type = "config_update"
	TypeToyState      Type = "toy_state"
	TypeError         Type = "error"
)

// ErrCodeInvalidJSON is the decode failure wire code for non-JSON input or a
// missing "type" field; an unrecognized type uses UnknownTypeError (§4.1).
const (
	ErrCodeInvalidJSON = "invalid_json"
)

// UnknownTypeError formats the "unknown_message_type:<t>" wire error code
// for a frame whose type discriminator was not recognized.
func UnknownTypeError(t string) string {
	return "unknown_message_type:" + t
}

// Capabilities describes a device's reported capabilities in a handshake
// frame.
type Capabilities struct {
	Audio        bool `json:"audio"`
	WakeWord     bool `json:"wakeWord"`
	OfflineMode  bool `json:"offlineMode"`
	Opus         bool `json:"opus"`
	SampleRate   int  `json:"sampleRate"`
}

// AudioMetadata is the sibling metadata object carried alongside hex audio
// payloads.
type AudioMetadata struct {
	IsFinal    bool   `json:"isFinal"`
	Format     string `json:"format"`
	SampleRate int    `json:"sampleRate,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
}

// ResponseAudioMetadata is the metadata shape used on audio_response frames,
// which additionally carry endianness, channel count, and the producing
// provider id.
type ResponseAudioMetadata struct {
	Format     string `json:"format"`
	Endian     string `json:"endian"`
	Channels   int    `json:"channels"`
	Provider   string `json:"provider,omitempty"`
	SampleRate int    `json:"sampleRate"`
	IsFinal    bool   `json:"isFinal"`
}

// TextPayload is the payload of a text_response frame.
type TextPayload struct {
	Text      string       `json:"text"`
	Timestamp jsontime.Unix `json:"timestamp"`
}

// AudioResponsePayload is the payload of an audio_response frame.
type AudioResponsePayload struct {
	Data     string                `json:"data"`
	Metadata ResponseAudioMetadata `json:"metadata"`
}

// Frame is the decoded representation of one wire message. Only the fields
// relevant to Type are populated; the zero value of the others is ignored.
type Frame struct {
	Type      Type           `json:"type"`
	Timestamp *jsontime.Unix `json:"timestamp,omitempty"`

	// handshake
	DeviceID     string        `json:"deviceId,omitempty"`
	ToyID        string        `json:"toyId,omitempty"`
	Capabilities *Capabilities `json:"capabilities,omitempty"`

	// handshake_ack
	Status    string `json:"status,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	// control / control_ack
	Command string `json:"command,omitempty"`
	OK      bool   `json:"ok,omitempty"`

	// audio_chunk (C→S)
	Data     string         `json:"data,omitempty"`
	Metadata *AudioMetadata `json:"metadata,omitempty"`

	// status
	Message string `json:"message,omitempty"`

	// text_response
	TextPayload *TextPayload `json:"payload,omitempty"`

	// audio_response — note this shares the json "payload" tag with
	// TextPayload; only one of the two is ever non-nil for a given Type, so
	// a custom (Un)MarshalJSON resolves the payload shape by Type.
	AudioPayload *AudioResponsePayload `json:"-"`

	// config_update
	Config map[string]any `json:"config,omitempty"`

	// toy_state
	State string `json:"state,omitempty"`

	// error
	Error string `json:"error,omitempty"`
}

// wireFrame mirrors Frame but with a raw payload field, used to resolve the
// polymorphic "payload" key during (un)marshaling.
type wireFrame struct {
	Type         Type            `json:"type"`
	Timestamp    *jsontime.Unix  `json:"timestamp,omitempty"`
	DeviceID     string          `json:"deviceId,omitempty"`
	ToyID        string          `json:"toyId,omitempty"`
	Capabilities *Capabilities   `json:"capabilities,omitempty"`
	Status       string          `json:"status,omitempty"`
	SessionID    string          `json:"session_id,omitempty"`
	Command      string          `json:"command,omitempty"`
	OK           bool            `json:"ok,omitempty"`
	Data         string          `json:"data,omitempty"`
	Metadata     *AudioMetadata  `json:"metadata,omitempty"`
	Message      string          `json:"message,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Config       map[string]any  `json:"config,omitempty"`
	State        string          `json:"state,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// MarshalJSON implements json.Marshaler, resolving TextPayload/AudioPayload
// into the shared "payload" wire key.
func (f Frame) MarshalJSON() ([]byte, error) {
	w := wireFrame{
		Type:         f.Type,
		Timestamp:    f.Timestamp,
		DeviceID:     f.DeviceID,
		ToyID:        f.ToyID,
		Capabilities: f.Capabilities,
		Status:       f.Status,
		SessionID:    f.SessionID,
		Command:      f.Command,
		OK:           f.OK,
		Data:         f.Data,
		Metadata:     f.Metadata,
		Message:      f.Message,
		Config:       f.Config,
		State:        f.State,
		Error:        f.Error,
	}
	switch {
	case f.TextPayload != nil:
		b, err := json.Marshal(f.TextPayload)
		if err != nil {
			return nil, err
		}
		w.Payload = b
	case f.AudioPayload != nil:
		b, err := json.Marshal(f.AudioPayload)
		if err != nil {
			return nil, err
		}
		w.Payload = b
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler, resolving the shared "payload"
// wire key into TextPayload or AudioPayload based on Type.
func (f *Frame) UnmarshalJSON(b []byte) error {
	var w wireFrame
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*f = Frame{
		Type:         w.Type,
		Timestamp:    w.Timestamp,
		DeviceID:     w.DeviceID,
		ToyID:        w.ToyID,
		Capabilities: w.Capabilities,
		Status:       w.Status,
		SessionID:    w.SessionID,
		Command:      w.Command,
		OK:           w.OK,
		Data:         w.Data,
		Metadata:     w.Metadata,
		Message:      w.Message,
		Config:       w.Config,
		State:        w.State,
		Error:        w.Error,
	}
	if len(w.Payload) == 0 {
		return nil
	}
	switch f.Type {
	case TypeTextResponse:
		var p TextPayload
		if err := json.Unmarshal(w.Payload, &p); err != nil {
			return fmt.Errorf("frame: decode text_response payload: %w", err)
		}
		f.TextPayload = &p
	case TypeAudioResponse:
		var p AudioResponsePayload
		if err := json.Unmarshal(w.Payload, &p); err != nil {
			return fmt.Errorf("frame: decode audio_response payload: %w", err)
		}
		f.AudioPayload = &p
	}
	return nil
}

// Encode serializes a Frame to its wire form.
func Encode(f Frame) ([]byte, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("frame: encode: %w", err)
	}
	return b, nil
}

// Decode parses a raw wire message into a Frame. It rejects non-JSON input,
// JSON lacking a "type" field, and an unrecognized type; each case is a
// decode error the caller should answer with an error frame built by
// ErrorFrame, without terminating the session.
func Decode(b []byte) (Frame, error) {
	var probe struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(b, &probe); err != nil {
		return Frame{}, fmt.Errorf("%s", ErrCodeInvalidJSON)
	}
	if probe.Type == "" {
		return Frame{}, fmt.Errorf("%s", ErrCodeInvalidJSON)
	}
	if !validType(probe.Type) {
		return Frame{}, fmt.Errorf("%s", UnknownTypeError(string(probe.Type)))
	}
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return Frame{}, fmt.Errorf("%s", ErrCodeInvalidJSON)
	}
	return f, nil
}

func validType(t Type) bool {
	switch t {
	case TypeHandshake, TypeHandshakeAck, TypePing, TypePong, TypeControl, TypeControlAck,
		TypeAudioChunk, TypeStatus, TypeTextResponse, TypeAudioResponse, TypeConfigUpdate,
		TypeToyState, TypeError:
		return true
	default:
		return false
	}
}

// ErrorFrame builds the {type:"error", error:code} reply frame sent to a
// peer in response to a decode failure or dispatch failure.
func ErrorFrame(code string, message string) Frame {
	return Frame{Type: TypeError, Error: code, Message: message}
}
