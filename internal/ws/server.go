// Package ws handles WebSocket connection management: upgrading HTTP
// connections, watching them with epoll, reading frames on a bounded worker
// pool, and dispatching complete messages to the application.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/mridulmehra/CyberGaurd-Backend/internal/logging"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/metrics"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/ratelimit"
)

// ErrConnectionNotFound is returned by SendMessage for an unknown or closed
// connection.
var ErrConnectionNotFound = errors.New("ws: connection not found")

// ServerConfig holds tunable parameters for the WebSocket server.
type ServerConfig struct {
	ListenAddr     string        // address to listen on, e.g. ":8080"
	WorkerPoolSize int           // max concurrent read-worker goroutines
	MaxConnections int           // hard cap on total connections
	ReadTimeout    time.Duration // bound on reading one frame once data is ready
	WriteTimeout   time.Duration // bound on writing one frame
	MaxFrameBytes  int64         // largest accepted message payload
	Heartbeat      HeartbeatConfig
	TrustedProxies logging.TrustedProxies // proxies allowed to set the client IP
}

// DefaultServerConfig returns a ServerConfig with sensible production defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:     ":8080",
		WorkerPoolSize: 256,
		MaxConnections: 100000,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxFrameBytes:  64 * 1024,
		Heartbeat:      DefaultHeartbeatConfig(),
	}
}

// RateLimiter throttles upgrades per client IP.
type RateLimiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
}

// retryAfterer is implemented by limiters that know when a window closes.
type retryAfterer interface {
	RetryAfter(ctx context.Context, identifier string, rule ratelimit.Rule) (time.Duration, error)
}

// Server is the WebSocket server built on gobwas/ws and epoll. It upgrades
// HTTP connections, registers them with epoll for readiness notifications,
// and hands ready connections to a bounded worker pool. Each connection is
// armed one-shot, so its frames are read and handled strictly in order.
type Server struct {
	config       ServerConfig
	epoll        *Epoll
	conns        *ConnectionManager
	limiter      RateLimiter
	workerPool   chan struct{}                       // semaphore limiting concurrent read workers
	onMessage    func(conn *Connection, data []byte) // message handler callback
	onDisconnect func(connID string)                 // called once per removed connection
	httpServer   *http.Server
	log          zerolog.Logger
	done         chan struct{}
	opened       atomic.Bool
	closing      atomic.Bool
	shutdownOnce sync.Once
	startedAt    time.Time // server start time for uptime calculation
}

// NewServer creates a Server. onMessage is called from a worker goroutine
// for every complete text message received from a client.
func NewServer(config ServerConfig, onMessage func(conn *Connection, data []byte)) *Server {
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 1
	}
	if config.MaxFrameBytes <= 0 {
		config.MaxFrameBytes = DefaultServerConfig().MaxFrameBytes
	}
	return &Server{
		config:     config,
		conns:      NewConnectionManager(),
		workerPool: make(chan struct{}, config.WorkerPoolSize),
		onMessage:  onMessage,
		log:        logging.Component("ws"),
		done:       make(chan struct{}),
	}
}

// SetOnDisconnect registers a callback invoked exactly once for every
// connection that is removed (read error, client close, heartbeat eviction
// or shutdown). It runs after any in-flight message for that connection has
// been handled, and no message is handled after it.
func (s *Server) SetOnDisconnect(fn func(connID string)) {
	s.onDisconnect = fn
}

// SetRateLimiter enables per-IP throttling of upgrades.
func (s *Server) SetRateLimiter(l RateLimiter) {
	s.limiter = l
}

// Open creates the epoll instance and starts the event loop and heartbeat.
// Start calls it; tests that serve Routes through httptest call it
// directly.
func (s *Server) Open() error {
	if !s.opened.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	s.epoll, err = NewEpoll()
	if err != nil {
		s.opened.Store(false)
		return fmt.Errorf("ws: failed to create epoll: %w", err)
	}

	s.startedAt = time.Now()
	go s.startEventLoop()
	s.startHeartbeat(s.config.Heartbeat)
	return nil
}

// Routes registers the upgrade and health endpoints on r.
func (s *Server) Routes(r *mux.Router) {
	r.HandleFunc("/ws", s.handleUpgrade).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
}

// Start opens the server and blocks serving handler on ListenAddr. A nil
// handler serves only Routes.
func (s *Server) Start(handler http.Handler) error {
	if err := s.Open(); err != nil {
		return err
	}

	if handler == nil {
		r := mux.NewRouter()
		s.Routes(r)
		handler = r
	}

	s.httpServer = &http.Server{
		Addr:              s.config.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info().
		Str("addr", s.config.ListenAddr).
		Int("workers", s.config.WorkerPoolSize).
		Int("max_conns", s.config.MaxConnections).
		Msg("server listening")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ws: http server error: %w", err)
	}
	return nil
}

// handleUpgrade upgrades an HTTP request to a WebSocket connection using
// the gobwas/ws zero-copy upgrader and registers it with epoll.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.closing.Load() || !s.opened.Load() {
		http.Error(w, "server is not accepting connections", http.StatusServiceUnavailable)
		return
	}

	ip := s.config.TrustedProxies.ClientIP(r)

	if s.conns.Count() >= s.config.MaxConnections {
		metrics.ConnectRejected.WithLabelValues("capacity").Inc()
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(r.Context(), ip, ratelimit.RuleConnect)
		if err != nil {
			s.log.Debug().Err(err).Msg("connect rate limit check failed")
		}
		if !allowed {
			metrics.ConnectRejected.WithLabelValues("rate_limited").Inc()
			w.Header().Set("Retry-After", strconv.Itoa(s.retryAfterSeconds(r.Context(), ip)))
			http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
			return
		}
	}

	conn, rw, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.log.Debug().Err(err).Str(logging.FieldClientIP, ip).Msg("upgrade failed")
		return
	}

	// Bytes already buffered past the handshake would never raise an
	// epoll event.
	if rw != nil && rw.Reader.Buffered() > 0 {
		s.log.Warn().Str(logging.FieldClientIP, ip).Msg("client sent data before handshake completed")
		conn.Close()
		return
	}

	c := newConnection(uuid.New().String(), conn, ip, s.config.WriteTimeout)

	s.conns.Add(c)
	if err := s.epoll.Add(conn); err != nil {
		c.Logger().Error().Err(err).Msg("epoll add failed")
		s.conns.Remove(c.ID)
		return
	}
	metrics.ConnectionsTotal.Inc()

	c.Logger().Info().Int("total", s.conns.Count()).Msg("connection opened")
}

// retryAfterSeconds is the whole number of seconds until ip's connect
// window closes, or the full window when the limiter cannot tell.
func (s *Server) retryAfterSeconds(ctx context.Context, ip string) int {
	wait := ratelimit.RuleConnect.Window
	if ra, ok := s.limiter.(retryAfterer); ok {
		d, err := ra.RetryAfter(ctx, ip, ratelimit.RuleConnect)
		if err != nil {
			s.log.Debug().Err(err).Msg("connect retry-after lookup failed")
		}
		wait = d
	}
	return max(1, int(math.Ceil(wait.Seconds())))
}

// handleHealth responds with the server's health status as JSON, including
// the current connection count and uptime.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	resp := struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
		Uptime      string `json:"uptime"`
	}{
		Status:      "ok",
		Connections: s.conns.Count(),
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
	}

	_ = json.NewEncoder(w).Encode(resp)
}

// startEventLoop runs the epoll wait loop. Each ready connection is handed
// to a worker goroutine, bounded by the worker pool semaphore.
func (s *Server) startEventLoop() {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		conns, err := s.epoll.Wait()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if isEINTR(err) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Error().Err(err).Msg("epoll wait error")
			time.Sleep(10 * time.Millisecond)
			continue
		}

		for _, conn := range conns {
			s.workerPool <- struct{}{}

			go func() {
				defer func() { <-s.workerPool }()
				s.handleConn(conn)
			}()
		}
	}
}

// handleConn reads and handles one frame, then re-arms the connection.
func (s *Server) handleConn(netConn net.Conn) {
	c := s.conns.GetByConn(netConn)
	if c == nil {
		return
	}

	if !s.readFrame(c) {
		return
	}

	if err := s.epoll.Resume(netConn); err != nil && !errors.Is(err, net.ErrClosed) {
		c.Logger().Warn().Err(err).Msg("epoll re-arm failed")
		s.RemoveConnection(c)
	}
}

// readFrame reads one frame from c. It returns false when the connection
// has been removed.
func (s *Server) readFrame(c *Connection) bool {
	src := &countingReader{r: s.epoll.Reader(c.Conn)}

	if s.config.ReadTimeout > 0 {
		_ = c.Conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	}

	rd := &wsutil.Reader{
		Source:       src,
		State:        ws.StateServerSide,
		MaxFrameSize: s.config.MaxFrameBytes,
	}

	hdr, err := rd.NextFrame()
	if err != nil {
		// A timeout before any byte arrived is a spurious wakeup.
		if isTimeout(err) && src.n == 0 {
			_ = c.Conn.SetReadDeadline(time.Time{})
			return true
		}
		if errors.Is(err, wsutil.ErrFrameTooLarge) {
			s.closeWith(c, ws.StatusMessageTooBig, "message too big")
		}
		s.dropAfterReadError(c, err)
		return false
	}

	// Any frame proves the connection is alive.
	c.touch()

	if hdr.OpCode.IsControl() {
		return s.handleControl(c, hdr, rd)
	}

	if hdr.OpCode != ws.OpText {
		if err := rd.Discard(); err != nil {
			s.dropAfterReadError(c, err)
			return false
		}
		_ = c.Conn.SetReadDeadline(time.Time{})
		return true
	}

	data, err := io.ReadAll(io.LimitReader(rd, s.config.MaxFrameBytes+1))
	if err != nil {
		s.dropAfterReadError(c, err)
		return false
	}
	if int64(len(data)) > s.config.MaxFrameBytes {
		s.closeWith(c, ws.StatusMessageTooBig, "message too big")
		s.RemoveConnection(c)
		return false
	}

	_ = c.Conn.SetReadDeadline(time.Time{})

	if len(data) == 0 || s.onMessage == nil {
		return true
	}
	return s.deliver(c, data)
}

// deliver runs onMessage unless the connection has already been torn down.
func (s *Server) deliver(c *Connection, data []byte) bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.closed {
		return false
	}
	s.onMessage(c, data)
	return true
}

// handleControl answers ping and close frames. Pongs only refresh
// LastSeen, which already happened.
func (s *Server) handleControl(c *Connection, hdr ws.Header, rd io.Reader) bool {
	payload := make([]byte, hdr.Length)
	if _, err := io.ReadFull(rd, payload); err != nil {
		s.dropAfterReadError(c, err)
		return false
	}
	_ = c.Conn.SetReadDeadline(time.Time{})

	switch hdr.OpCode {
	case ws.OpPing:
		if err := c.writeFrame(ws.NewPongFrame(payload)); err != nil {
			s.dropAfterReadError(c, err)
			return false
		}
	case ws.OpClose:
		s.closeWith(c, ws.StatusNormalClosure, "")
		s.RemoveConnection(c)
		return false
	}
	return true
}

func (s *Server) closeWith(c *Connection, code ws.StatusCode, reason string) {
	_ = c.writeFrame(ws.NewCloseFrame(ws.NewCloseFrameBody(code, reason)))
}

func (s *Server) dropAfterReadError(c *Connection, err error) {
	if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
		c.Logger().Debug().Err(err).Msg("read failed")
	}
	s.RemoveConnection(c)
}

// RemoveConnection unregisters c from epoll and the connection manager,
// closes it and fires onDisconnect. Only the first call for a connection
// has any effect.
func (s *Server) RemoveConnection(c *Connection) {
	if s.epoll != nil {
		_ = s.epoll.Remove(c.Conn)
	}

	if !s.conns.Remove(c.ID) {
		return
	}
	metrics.ConnectionsTotal.Dec()

	// Wait for an in-flight message to finish, then bar further ones.
	c.stateMu.Lock()
	c.closed = true
	if s.onDisconnect != nil {
		s.onDisconnect(c.ID)
	}
	c.stateMu.Unlock()

	c.Logger().Info().Int("total", s.conns.Count()).Msg("connection closed")
}

// SendMessage writes a WebSocket text frame to the connection identified by
// connID. It is goroutine-safe thanks to the per-connection write mutex.
func (s *Server) SendMessage(connID string, data []byte) error {
	c := s.conns.Get(connID)
	if c == nil {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, connID)
	}
	return c.WriteMessage(data)
}

// Send implements the pipeline's Sender.
func (s *Server) Send(connID string, data []byte) error {
	return s.SendMessage(connID, data)
}

// Connections returns the ConnectionManager.
func (s *Server) Connections() *ConnectionManager {
	return s.conns
}

// Shutdown stops the HTTP listener and the event loop, then removes every
// connection so each one goes through onDisconnect. It is safe to call
// more than once.
func (s *Server) Shutdown() error {
	s.shutdownOnce.Do(func() {
		s.log.Info().Msg("shutting down server")
		s.closing.Store(true)

		if s.httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.httpServer.Shutdown(ctx); err != nil {
				s.log.Warn().Err(err).Msg("http shutdown error")
			}
			cancel()
		}

		close(s.done)

		for _, c := range s.conns.All() {
			s.closeWith(c, ws.StatusGoingAway, "server shutting down")
			s.RemoveConnection(c)
		}

		if s.epoll != nil {
			_ = s.epoll.Close()
		}

		s.log.Info().Msg("server stopped, all connections closed")
	})
	return nil
}

// countingReader records how many bytes a frame read consumed.
type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
