package chat_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/gorilla/mux"

	"github.com/mridulmehra/CyberGaurd-Backend/internal/chat"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/directory"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/moderation"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/protocol"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/session"
	internalws "github.com/mridulmehra/CyberGaurd-Backend/internal/ws"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type gateway struct {
	url  string
	dir  *directory.Memory
	stub *moderation.Stub
}

// startGateway serves the chat pipeline behind a real WebSocket server, the
// way cmd/chatserver wires it.
func startGateway(t *testing.T) *gateway {
	t.Helper()

	cfg := internalws.DefaultServerConfig()
	cfg.WorkerPoolSize = 8
	cfg.ReadTimeout = time.Second
	cfg.WriteTimeout = time.Second
	cfg.Heartbeat = internalws.HeartbeatConfig{}

	dispatcher := internalws.NewMessageDispatcher()
	server := internalws.NewServer(cfg, dispatcher.Dispatch)

	g := &gateway{dir: directory.NewMemory(), stub: moderation.NewStub()}
	pipeline := chat.NewPipeline(chat.Options{
		Directory: g.dir,
		Registry:  session.NewRegistry(),
		Moderator: moderation.NewClient(g.stub, time.Second),
		Sender:    server,
	})
	chat.Routes(dispatcher, pipeline)
	server.SetOnDisconnect(pipeline.Disconnect)

	if err := server.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	r := mux.NewRouter()
	server.Routes(r)
	hs := httptest.NewServer(r)
	g.url = "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws"

	t.Cleanup(func() {
		server.Shutdown()
		hs.Close()
	})
	return g
}

type wireFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type peer struct {
	t    *testing.T
	conn net.Conn
}

func (g *gateway) connect(t *testing.T) *peer {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, _, err := ws.Dial(ctx, g.url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &peer{t: t, conn: conn}
}

func (p *peer) send(msgType string, payload any) {
	p.t.Helper()
	data, err := json.Marshal(map[string]any{"type": msgType, "payload": payload})
	if err != nil {
		p.t.Fatal(err)
	}
	if err := wsutil.WriteClientText(p.conn, data); err != nil {
		p.t.Fatalf("write %s: %v", msgType, err)
	}
}

func (p *peer) read() wireFrame {
	p.t.Helper()
	p.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	data, err := wsutil.ReadServerText(p.conn)
	if err != nil {
		p.t.Fatalf("read: %v", err)
	}
	var f wireFrame
	if err := json.Unmarshal(data, &f); err != nil {
		p.t.Fatalf("bad frame %q: %v", data, err)
	}
	return f
}

// expect reads the next frame and requires its type.
func (p *peer) expect(msgType string) wireFrame {
	p.t.Helper()
	f := p.read()
	if f.Type != msgType {
		p.t.Fatalf("frame type = %s (%s), want %s", f.Type, f.Payload, msgType)
	}
	return f
}

// skipTo discards frames until one of msgType arrives.
func (p *peer) skipTo(msgType string) wireFrame {
	p.t.Helper()
	for {
		if f := p.read(); f.Type == msgType {
			return f
		}
	}
}

func decode[T any](t *testing.T, f wireFrame) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(f.Payload, &v); err != nil {
		t.Fatalf("decode %s payload %s: %v", f.Type, f.Payload, err)
	}
	return v
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestGateway_JoinMessageAndClose(t *testing.T) {
	g := startGateway(t)
	g.stub.Set("you idiot", moderation.Verdict{IsToxic: true, Rewrite: "I disagree"})

	bob := g.connect(t)
	bob.send(protocol.TypeJoin, map[string]string{"username": "bob", "room": "lobby"})
	bob.expect(protocol.TypeUsersList)

	alice := g.connect(t)
	alice.send(protocol.TypeJoin, map[string]string{"username": "alice", "room": "lobby"})
	users := decode[[]directory.User](t, alice.expect(protocol.TypeUsersList))
	if len(users) != 2 {
		t.Errorf("usersList = %+v, want alice and bob", users)
	}
	if joined := decode[directory.User](t, bob.expect(protocol.TypeUserJoined)); joined.Username != "alice" {
		t.Errorf("userJoined = %+v", joined)
	}

	// Clean message: score stays at the floor and the text is unchanged.
	alice.send(protocol.TypeMessage, "hello bob")
	if s := decode[protocol.ScorePayload](t, bob.expect(protocol.TypeUpdateToxicityScore)); s.Username != "alice" || s.Score != 0 {
		t.Errorf("score update = %+v, want alice at 0", s)
	}
	msg := decode[directory.Message](t, bob.expect(protocol.TypeMessage))
	if msg.Text != "hello bob" || msg.Username != "alice" || msg.Room != "lobby" || msg.ID == 0 || msg.IsModified {
		t.Errorf("message = %+v", msg)
	}
	if echo := decode[directory.Message](t, alice.skipTo(protocol.TypeMessage)); echo.ID != msg.ID {
		t.Errorf("sender echo id = %d, want %d", echo.ID, msg.ID)
	}

	// Toxic message: the room sees the rewrite and a raised score.
	alice.send(protocol.TypeMessage, "you idiot")
	if s := decode[protocol.ScorePayload](t, bob.expect(protocol.TypeUpdateToxicityScore)); s.Score <= 0 {
		t.Errorf("score after toxic message = %d, want > 0", s.Score)
	}
	if m := decode[directory.Message](t, bob.expect(protocol.TypeMessage)); m.Text != "I disagree" || !m.IsModified {
		t.Errorf("rewritten message = %+v", m)
	}

	// Closing the socket tears the identity down through the disconnect hook.
	alice.conn.Close()
	var left string
	if f := bob.expect(protocol.TypeUserLeft); json.Unmarshal(f.Payload, &left) != nil || left != "alice" {
		t.Errorf("userLeft payload = %s, want \"alice\"", f.Payload)
	}
	if _, err := g.dir.GetUser(context.Background(), "alice"); !errors.Is(err, directory.ErrNotFound) {
		t.Errorf("alice still stored after disconnect: %v", err)
	}

	// The name is free for a new connection.
	again := g.connect(t)
	again.send(protocol.TypeJoin, map[string]string{"username": "alice", "room": "lobby"})
	again.expect(protocol.TypeUsersList)
}

func TestGateway_UnjoinedConnection(t *testing.T) {
	g := startGateway(t)

	c := g.connect(t)
	// Events before a join are dropped; frames are handled in order, so the
	// pong is the first reply.
	c.send(protocol.TypeMessage, "before joining")
	c.send(protocol.TypeClearChat, "lobby")
	c.send(protocol.TypePing, nil)
	c.expect(protocol.TypePong)

	c.send(protocol.TypeJoin, map[string]string{"username": "", "room": "lobby"})
	c.expect(protocol.TypeError)
	if g.stub.Calls() != 0 {
		t.Errorf("classifier called %d times", g.stub.Calls())
	}
}
