package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

// ---------------------------------------------------------------------------
// Test: Parsing join
// ---------------------------------------------------------------------------

func TestParseClientMessage_Join(t *testing.T) {
	input := []byte(`{"type":"join","payload":{"username":"alice","room":"general"}}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeJoin {
		t.Fatalf("expected type %q, got %q", TypeJoin, msgType)
	}

	jm, ok := msg.(JoinMsg)
	if !ok {
		t.Fatalf("expected JoinMsg, got %T", msg)
	}
	if jm.Username != "alice" || jm.Room != "general" {
		t.Errorf("unexpected join payload: %+v", jm)
	}
}

func TestParseClientMessage_JoinWithoutPayload(t *testing.T) {
	_, msg, err := ParseClientMessage([]byte(`{"type":"join"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if jm := msg.(JoinMsg); jm != (JoinMsg{}) {
		t.Errorf("expected empty JoinMsg, got %+v", jm)
	}
}

func TestParseClientMessage_JoinBadPayload(t *testing.T) {
	if _, _, err := ParseClientMessage([]byte(`{"type":"join","payload":"alice"}`)); err == nil {
		t.Fatal("expected error for non-object join payload")
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing message / leave / clearChat payloads
// ---------------------------------------------------------------------------

func TestParseClientMessage_StringPayloads(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  any
	}{
		{"chat text", `{"type":"message","payload":"Hello!"}`, ChatMsg{Text: "Hello!", IsString: true}},
		{"chat empty string", `{"type":"message","payload":""}`, ChatMsg{IsString: true}},
		{"chat number", `{"type":"message","payload":42}`, ChatMsg{}},
		{"chat object", `{"type":"message","payload":{"text":"hi"}}`, ChatMsg{}},
		{"chat missing", `{"type":"message"}`, ChatMsg{}},
		{"leave implicit", `{"type":"leave"}`, LeaveMsg{}},
		{"leave explicit", `{"type":"leave","payload":"alice"}`, LeaveMsg{Username: "alice"}},
		{"clear room", `{"type":"clearChat","payload":"general"}`, ClearChatMsg{Room: "general"}},
		{"clear missing", `{"type":"clearChat"}`, ClearChatMsg{}},
		{"ping", `{"type":"ping"}`, PingMsg{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, msg, err := ParseClientMessage([]byte(tt.input))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msg != tt.want {
				t.Errorf("got %#v, want %#v", msg, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing reportMessage
// ---------------------------------------------------------------------------

func TestParseClientMessage_Report(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		id     int64
		reason string
	}{
		{"numeric id", `{"type":"reportMessage","payload":{"messageId":17,"reason":"hate speech"}}`, 17, "hate speech"},
		{"string id", `{"type":"reportMessage","payload":{"messageId":"17"}}`, 17, ""},
		{"fractional id", `{"type":"reportMessage","payload":{"messageId":1.5}}`, 0, ""},
		{"garbage id", `{"type":"reportMessage","payload":{"messageId":"abc"}}`, 0, ""},
		{"missing id", `{"type":"reportMessage","payload":{"reason":"spam"}}`, 0, "spam"},
		{"non-string reason", `{"type":"reportMessage","payload":{"messageId":3,"reason":7}}`, 3, ""},
		{"no payload", `{"type":"reportMessage"}`, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, msg, err := ParseClientMessage([]byte(tt.input))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			rm, ok := msg.(ReportMsg)
			if !ok {
				t.Fatalf("expected ReportMsg, got %T", msg)
			}
			if rm.MessageID != tt.id || rm.Reason != tt.reason {
				t.Errorf("got %+v, want id=%d reason=%q", rm, tt.id, tt.reason)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Test: Rejected frames
// ---------------------------------------------------------------------------

func TestParseClientMessage_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		unknown bool
	}{
		{"not json", `hello`, false},
		{"missing type", `{"payload":"x"}`, false},
		{"empty type", `{"type":""}`, false},
		{"type not a string", `{"type":5}`, false},
		{"unknown type", `{"type":"dance"}`, true},
		{"server-only type", `{"type":"usersList"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseClientMessage([]byte(tt.input))
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrUnknownType); got != tt.unknown {
				t.Errorf("errors.Is(err, ErrUnknownType) = %v, want %v (err=%v)", got, tt.unknown, err)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Test: Server messages
// ---------------------------------------------------------------------------

func TestNewServerMessage_Envelope(t *testing.T) {
	data, err := NewServerMessage(TypeUpdateToxicityScore, ScorePayload{Username: "bob", Score: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got struct {
		Type    string       `json:"type"`
		Payload ScorePayload `json:"payload"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if got.Type != TypeUpdateToxicityScore {
		t.Errorf("type = %q", got.Type)
	}
	if got.Payload != (ScorePayload{Username: "bob", Score: 10}) {
		t.Errorf("payload = %+v", got.Payload)
	}
}

func TestNewServerMessage_StringPayload(t *testing.T) {
	data, err := NewServerMessage(TypeUserLeft, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"type":"userLeft","payload":"alice"}` {
		t.Errorf("unexpected frame: %s", data)
	}
}

func TestNewServerMessage_Unmarshalable(t *testing.T) {
	if _, err := NewServerMessage(TypeMessage, make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}
}

func TestNewErrorMessage(t *testing.T) {
	data := NewErrorMessage("Username is already taken")
	if string(data) != `{"type":"error","payload":{"message":"Username is already taken"}}` {
		t.Errorf("unexpected frame: %s", data)
	}
}
