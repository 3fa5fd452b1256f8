// Package protocol defines the WebSocket frames exchanged between chat
// clients and the server. Every frame, in both directions, is a JSON
// envelope {"type": string, "payload": any}; the payload shape depends on
// the type.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeJoin          = "join"
	TypeLeave         = "leave"
	TypeMessage       = "message"
	TypeClearChat     = "clearChat"
	TypeReportMessage = "reportMessage"
	TypePing          = "ping"
)

// Server -> Client message types. TypeMessage is used in both directions.
const (
	TypeUsersList           = "usersList"
	TypeUserJoined          = "userJoined"
	TypeUserLeft            = "userLeft"
	TypeUpdateToxicityScore = "updateToxicityScore"
	TypeError               = "error"
	TypeChatCleared         = "chatCleared"
	TypePong                = "pong"
)

// ErrUnknownType is returned by ParseClientMessage for a well-formed
// envelope whose type is not a client message type.
var ErrUnknownType = errors.New("protocol: unknown message type")

// ---------------------------------------------------------------------------
// Envelope
// ---------------------------------------------------------------------------

// Envelope is the outer frame. Payload is kept raw so it can be decoded
// once the type is known.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ---------------------------------------------------------------------------
// Client -> Server payloads
// ---------------------------------------------------------------------------

// JoinMsg asks to enter a room under a username.
type JoinMsg struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

// LeaveMsg asks to leave the current room. Username is set only when the
// client passed it explicitly as a string payload.
type LeaveMsg struct {
	Username string
}

// ChatMsg carries a chat line. IsString is false when the payload was
// absent or not a JSON string; such frames are ignored by the pipeline.
type ChatMsg struct {
	Text     string
	IsString bool
}

// ClearChatMsg asks to clear a room's view. Room is empty when the payload
// was absent or not a string.
type ClearChatMsg struct {
	Room string
}

// ReportMsg flags a message. MessageID is 0 when the client sent something
// that is not an integer.
type ReportMsg struct {
	MessageID int64
	Reason    string
}

// PingMsg is an application-level keepalive.
type PingMsg struct{}

// ---------------------------------------------------------------------------
// Server -> Client payloads
// ---------------------------------------------------------------------------

// ErrorPayload is the payload of an error frame. Report confirmations use
// it too.
type ErrorPayload struct {
	Message string `json:"message"`
}

// ScorePayload is the payload of an updateToxicityScore frame.
type ScorePayload struct {
	Username string `json:"username"`
	Score    int    `json:"score"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage decodes raw WebSocket bytes into a typed client
// message. It fails for non-JSON input, a missing type, an unknown type
// (wrapping ErrUnknownType) and a join payload that is not an object.
func ParseClientMessage(data []byte) (string, any, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse envelope: %w", err)
	}
	if env.Type == "" {
		return "", nil, errors.New("protocol: missing or empty \"type\" field")
	}

	switch env.Type {
	case TypeJoin:
		var m JoinMsg
		if !isNull(env.Payload) {
			if err := json.Unmarshal(env.Payload, &m); err != nil {
				return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
			}
		}
		return env.Type, m, nil

	case TypeLeave:
		name, _ := decodeString(env.Payload)
		return env.Type, LeaveMsg{Username: name}, nil

	case TypeMessage:
		text, ok := decodeString(env.Payload)
		return env.Type, ChatMsg{Text: text, IsString: ok}, nil

	case TypeClearChat:
		room, _ := decodeString(env.Payload)
		return env.Type, ClearChatMsg{Room: room}, nil

	case TypeReportMessage:
		var raw struct {
			MessageID json.RawMessage `json:"messageId"`
			Reason    any             `json:"reason"`
		}
		if !isNull(env.Payload) {
			// A payload that is not an object leaves MessageID at 0, which
			// the pipeline rejects as an invalid ID.
			_ = json.Unmarshal(env.Payload, &raw)
		}
		reason, _ := raw.Reason.(string)
		return env.Type, ReportMsg{MessageID: decodeID(raw.MessageID), Reason: reason}, nil

	case TypePing:
		return env.Type, PingMsg{}, nil

	default:
		return env.Type, nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// NewServerMessage encodes an outbound frame.
func NewServerMessage(msgType string, payload any) ([]byte, error) {
	out, err := json.Marshal(struct {
		Type    string `json:"type"`
		Payload any    `json:"payload"`
	}{msgType, payload})
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal %q message: %w", msgType, err)
	}
	return out, nil
}

// NewErrorMessage encodes an error frame carrying text.
func NewErrorMessage(text string) []byte {
	// ErrorPayload always marshals.
	out, _ := NewServerMessage(TypeError, ErrorPayload{Message: text})
	return out
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func decodeString(raw json.RawMessage) (string, bool) {
	if isNull(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// decodeID accepts a JSON integer or a string holding one.
func decodeID(raw json.RawMessage) int64 {
	if isNull(raw) {
		return 0
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if id, err := n.Int64(); err == nil {
			return id
		}
		return 0
	}
	if s, ok := decodeString(raw); ok {
		if id, err := strconv.ParseInt(s, 10, 64); err == nil {
			return id
		}
	}
	return 0
}
