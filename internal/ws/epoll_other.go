//go:build !linux

package ws

import (
	"bufio"
	"io"
	"net"
	"sync"
)

// Epoll provides a goroutine-per-connection fallback for non-Linux
// platforms. Each connection gets a monitor goroutine that peeks one byte
// through a bufio.Reader (consuming nothing), reports the connection ready,
// and then waits for Resume before peeking again. Frames are read through
// the same bufio.Reader.
type Epoll struct {
	mu      sync.RWMutex
	watches map[net.Conn]*watch
	readyCh chan net.Conn // channel that receives connections with pending data
	done    chan struct{}
	once    sync.Once
}

type watch struct {
	br     *bufio.Reader
	resume chan struct{}
	stop   chan struct{}
}

// NewEpoll creates a new fallback epoll instance.
func NewEpoll() (*Epoll, error) {
	return &Epoll{
		watches: make(map[net.Conn]*watch),
		readyCh: make(chan net.Conn, 128),
		done:    make(chan struct{}),
	}, nil
}

// Add registers a connection and starts its monitor.
func (e *Epoll) Add(conn net.Conn) error {
	w := &watch{
		br:     bufio.NewReader(conn),
		resume: make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}

	e.mu.Lock()
	e.watches[conn] = w
	e.mu.Unlock()

	go e.monitor(conn, w)
	return nil
}

// monitor signals readiness once per Resume. A peek error is reported too,
// so the server's read path observes the closure.
func (e *Epoll) monitor(conn net.Conn, w *watch) {
	for {
		_, err := w.br.Peek(1)

		select {
		case e.readyCh <- conn:
		case <-w.stop:
			return
		case <-e.done:
			return
		}
		if err != nil {
			return
		}

		select {
		case <-w.resume:
		case <-w.stop:
			return
		case <-e.done:
			return
		}
	}
}

// Resume lets the monitor report the connection again.
func (e *Epoll) Resume(conn net.Conn) error {
	e.mu.RLock()
	w, ok := e.watches[conn]
	e.mu.RUnlock()
	if !ok {
		return net.ErrClosed
	}
	select {
	case w.resume <- struct{}{}:
	default:
	}
	return nil
}

// Remove unregisters a connection and stops its monitor.
func (e *Epoll) Remove(conn net.Conn) error {
	e.mu.Lock()
	w, ok := e.watches[conn]
	delete(e.watches, conn)
	e.mu.Unlock()
	if ok {
		close(w.stop)
	}
	return nil
}

// Reader returns the buffered reader the monitor peeks through.
func (e *Epoll) Reader(conn net.Conn) io.Reader {
	e.mu.RLock()
	w, ok := e.watches[conn]
	e.mu.RUnlock()
	if !ok {
		return conn
	}
	return w.br
}

// Wait blocks until at least one connection is ready for reading. It
// collects all currently ready connections from the channel and returns them.
func (e *Epoll) Wait() ([]net.Conn, error) {
	var first net.Conn
	select {
	case first = <-e.readyCh:
	case <-e.done:
		return nil, net.ErrClosed
	}

	conns := []net.Conn{first}

	// Drain any additional ready connections without blocking.
	for {
		select {
		case conn := <-e.readyCh:
			conns = append(conns, conn)
		default:
			return conns, nil
		}
	}
}

// Close shuts down the fallback epoll instance and every monitor.
func (e *Epoll) Close() error {
	e.once.Do(func() { close(e.done) })
	e.mu.Lock()
	e.watches = make(map[net.Conn]*watch)
	e.mu.Unlock()
	return nil
}

func isEINTR(error) bool { return false }
