package ws

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/rs/zerolog"

	"github.com/mridulmehra/CyberGaurd-Backend/internal/logging"
)

// Connection represents a single WebSocket client connection with its
// associated metadata and a write mutex for serializing outbound frames.
type Connection struct {
	ID        string    // connection ID (UUID)
	Conn      net.Conn  // underlying TCP connection
	RemoteIP  string    // client IP as seen by the upgrade request
	CreatedAt time.Time // when the connection was established

	lastSeen     atomic.Int64 // unix nanos of the last frame received
	writeMu      sync.Mutex   // serializes writes to this connection
	writeTimeout time.Duration
	ctx          context.Context

	stateMu sync.Mutex // held while a message is handled and during teardown
	closed  bool
}

func newConnection(id string, conn net.Conn, remoteIP string, writeTimeout time.Duration) *Connection {
	now := time.Now()
	logger := logging.L().With().
		Str(logging.FieldConnID, id).
		Str(logging.FieldClientIP, remoteIP).
		Logger()

	c := &Connection{
		ID:           id,
		Conn:         conn,
		RemoteIP:     remoteIP,
		CreatedAt:    now,
		writeTimeout: writeTimeout,
		ctx:          logging.WithLogger(context.Background(), logger),
	}
	c.lastSeen.Store(now.UnixNano())
	return c
}

// Context returns a context carrying the connection's logger.
func (c *Connection) Context() context.Context {
	return c.ctx
}

// Logger returns the connection's logger.
func (c *Connection) Logger() *zerolog.Logger {
	return logging.Ctx(c.ctx)
}

// LastSeen returns when the last frame arrived from the client.
func (c *Connection) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

func (c *Connection) touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

// WriteMessage sends a WebSocket text frame to this connection. The write
// mutex ensures that concurrent goroutines do not interleave frame bytes.
func (c *Connection) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	defer c.armWriteDeadline()()
	return wsutil.WriteServerMessage(c.Conn, ws.OpText, data)
}

// WritePing sends a protocol-level ping frame (opcode 0x9).
func (c *Connection) WritePing() error {
	return c.writeFrame(ws.NewPingFrame(nil))
}

func (c *Connection) writeFrame(f ws.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	defer c.armWriteDeadline()()
	return ws.WriteFrame(c.Conn, f)
}

// armWriteDeadline sets the write deadline and returns the function that
// clears it. Callers hold writeMu.
func (c *Connection) armWriteDeadline() func() {
	if c.writeTimeout <= 0 {
		return func() {}
	}
	_ = c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return func() { _ = c.Conn.SetWriteDeadline(time.Time{}) }
}

// Close closes the underlying network connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// ConnectionManager is a thread-safe registry that maps connection IDs and
// network connections to their Connection objects.
type ConnectionManager struct {
	mu     sync.RWMutex
	byID   map[string]*Connection   // conn_id -> Connection
	byConn map[net.Conn]*Connection // net.Conn -> Connection
}

// NewConnectionManager creates an empty ConnectionManager ready for use.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		byID:   make(map[string]*Connection),
		byConn: make(map[net.Conn]*Connection),
	}
}

// Add registers a new connection in both lookup maps.
func (cm *ConnectionManager) Add(conn *Connection) {
	cm.mu.Lock()
	cm.byID[conn.ID] = conn
	cm.byConn[conn.Conn] = conn
	cm.mu.Unlock()
}

// Remove removes a connection by ID and closes the underlying network
// connection. It returns true only for the call that actually removed it.
func (cm *ConnectionManager) Remove(id string) bool {
	cm.mu.Lock()
	conn, ok := cm.byID[id]
	if ok {
		delete(cm.byID, id)
		delete(cm.byConn, conn.Conn)
	}
	cm.mu.Unlock()

	if ok {
		conn.Close()
	}
	return ok
}

// Get returns the connection for the given ID, or nil if not found.
func (cm *ConnectionManager) Get(id string) *Connection {
	cm.mu.RLock()
	conn := cm.byID[id]
	cm.mu.RUnlock()
	return conn
}

// GetByConn returns the connection wrapping c, or nil if not found.
func (cm *ConnectionManager) GetByConn(c net.Conn) *Connection {
	cm.mu.RLock()
	conn := cm.byConn[c]
	cm.mu.RUnlock()
	return conn
}

// Count returns the current number of active connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	n := len(cm.byID)
	cm.mu.RUnlock()
	return n
}

// All returns a snapshot of all current connections. The returned slice is
// safe to iterate without holding the lock.
func (cm *ConnectionManager) All() []*Connection {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.byID))
	for _, conn := range cm.byID {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()
	return conns
}
