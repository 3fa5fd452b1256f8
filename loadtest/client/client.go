// Package client provides a WebSocket load test client for the CyberGuard
// chat server. It connects using gobwas/ws (the same library the server
// uses), wraps outgoing frames in the {type, payload} envelope and tracks
// per-connection counters.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

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

// ErrClosed is returned by blocking calls once the connection is gone.
var ErrClosed = errors.New("connection closed")

// Envelope is a decoded server frame.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ChatMessage is the payload of a server "message" frame.
type ChatMessage struct {
	ID         int64  `json:"id"`
	Text       string `json:"text"`
	Username   string `json:"username"`
	Room       string `json:"room"`
	IsModified bool   `json:"isModified"`
	Timestamp  string `json:"timestamp"`
}

// Metrics is a snapshot of per-connection counters.
type Metrics struct {
	ConnectLatency   time.Duration
	MessagesReceived int64
	MessagesSent     int64
	Errors           int64
}

// Client is a single simulated user connection.
type Client struct {
	conn    net.Conn
	writeMu sync.Mutex

	connectLatency time.Duration
	sent           atomic.Int64
	received       atomic.Int64
	errors         atomic.Int64

	handlersMu sync.RWMutex
	handlers   map[string]func(Envelope)
	pong       chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// New dials url and starts the background read loop.
func New(ctx context.Context, url string) (*Client, error) {
	start := time.Now()
	conn, _, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	c := &Client{
		conn:           conn,
		connectLatency: time.Since(start),
		handlers:       make(map[string]func(Envelope)),
		pong:           make(chan struct{}, 1),
		done:           make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Send writes a {type, payload} frame. It is goroutine-safe.
func (c *Client) Send(msgType string, payload any) error {
	data, err := json.Marshal(struct {
		Type    string `json:"type"`
		Payload any    `json:"payload,omitempty"`
	}{msgType, payload})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := wsutil.WriteClientMessage(c.conn, ws.OpText, data); err != nil {
		c.errors.Add(1)
		return err
	}
	c.sent.Add(1)
	return nil
}

// Join sends a join frame and waits for the usersList reply.
func (c *Client) Join(ctx context.Context, username, room string) error {
	joined := make(chan struct{}, 1)
	failed := make(chan string, 1)
	c.On(TypeUsersList, func(Envelope) {
		select {
		case joined <- struct{}{}:
		default:
		}
	})
	c.On(TypeError, func(env Envelope) {
		var p struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(env.Payload, &p)
		select {
		case failed <- p.Message:
		default:
		}
	})
	defer c.On(TypeError, nil)

	if err := c.Send(TypeJoin, map[string]string{"username": username, "room": room}); err != nil {
		return err
	}
	select {
	case <-joined:
		return nil
	case msg := <-failed:
		return fmt.Errorf("join rejected: %s", msg)
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ping sends a ping frame and waits for the pong.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.Send(TypePing, nil); err != nil {
		return err
	}
	select {
	case <-c.pong:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// On registers the handler for a server message type, replacing any earlier
// one. A nil handler removes it. Handlers run on the read loop goroutine.
func (c *Client) On(msgType string, handler func(Envelope)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	if handler == nil {
		delete(c.handlers, msgType)
		return
	}
	c.handlers[msgType] = handler
}

// Alive reports whether the read loop is still running.
func (c *Client) Alive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Close closes the connection. It is safe to call multiple times.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// GetMetrics returns a snapshot of the client's counters.
func (c *Client) GetMetrics() Metrics {
	return Metrics{
		ConnectLatency:   c.connectLatency,
		MessagesReceived: c.received.Load(),
		MessagesSent:     c.sent.Load(),
		Errors:           c.errors.Load(),
	}
}

func (c *Client) readLoop() {
	defer c.Close()
	for {
		data, err := wsutil.ReadServerText(c.conn)
		if err != nil {
			select {
			case <-c.done:
			default:
				c.errors.Add(1)
			}
			return
		}
		c.received.Add(1)

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		if env.Type == TypePong {
			select {
			case c.pong <- struct{}{}:
			default:
			}
		}

		c.handlersMu.RLock()
		handler := c.handlers[env.Type]
		c.handlersMu.RUnlock()
		if handler != nil {
			handler(env)
		}
	}
}
