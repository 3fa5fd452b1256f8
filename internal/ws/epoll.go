//go:build linux

package ws

import (
	"errors"
	"io"
	"net"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// waitTimeoutMs bounds each epoll_wait so the event loop notices shutdown.
const waitTimeoutMs = 200

// armEvents is registered for every connection. EPOLLONESHOT disarms the fd
// after one notification; Resume re-arms it once the frame has been
// handled, so at most one worker reads a connection at any time.
const armEvents = unix.EPOLLIN | unix.EPOLLHUP | unix.EPOLLRDHUP | unix.EPOLLONESHOT

// Epoll wraps Linux epoll syscalls for efficient WebSocket I/O multiplexing.
// Instead of spawning a goroutine per connection, we register file descriptors
// with the kernel and get notified only when data is ready to read.
type Epoll struct {
	fd          int               // epoll file descriptor
	connections map[int]net.Conn  // fd -> net.Conn mapping
	fds         map[net.Conn]int  // net.Conn -> fd, valid after the conn is closed
	mu          sync.RWMutex      // protects both maps
	events      []unix.EpollEvent // reusable event buffer for Wait
}

// NewEpoll creates a new epoll instance using epoll_create1.
func NewEpoll() (*Epoll, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &Epoll{
		fd:          fd,
		connections: make(map[int]net.Conn),
		fds:         make(map[net.Conn]int),
		events:      make([]unix.EpollEvent, 128),
	}, nil
}

// Add registers a network connection and arms it for one read notification.
func (e *Epoll) Add(conn net.Conn) error {
	fd := socketFD(conn)
	if fd < 0 {
		return errors.New("ws: connection has no file descriptor")
	}

	e.mu.Lock()
	e.connections[fd] = conn
	e.fds[conn] = fd
	e.mu.Unlock()

	if err := unix.EpollCtl(e.fd, syscall.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: armEvents,
		Fd:     int32(fd),
	}); err != nil {
		e.forget(conn)
		return err
	}
	return nil
}

// Resume re-arms a connection after its frame has been handled.
func (e *Epoll) Resume(conn net.Conn) error {
	e.mu.RLock()
	fd, ok := e.fds[conn]
	e.mu.RUnlock()
	if !ok {
		return net.ErrClosed
	}
	return unix.EpollCtl(e.fd, syscall.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: armEvents,
		Fd:     int32(fd),
	})
}

// Remove unregisters a network connection from epoll. It must run before
// the connection is closed so the fd is not reused underneath it.
func (e *Epoll) Remove(conn net.Conn) error {
	fd, ok := e.forget(conn)
	if !ok {
		return nil
	}
	return unix.EpollCtl(e.fd, syscall.EPOLL_CTL_DEL, fd, nil)
}

func (e *Epoll) forget(conn net.Conn) (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fd, ok := e.fds[conn]
	if !ok {
		return 0, false
	}
	delete(e.fds, conn)
	if e.connections[fd] == conn {
		delete(e.connections, fd)
	}
	return fd, true
}

// Reader returns the source frames are read from. On Linux this is the
// connection itself so unread bytes stay in the kernel and keep the fd
// readable.
func (e *Epoll) Reader(conn net.Conn) io.Reader {
	return conn
}

// Wait blocks until one or more registered connections are ready for
// reading, or until the wait timeout passes, in which case it returns an
// empty slice. Connections removed between epoll_wait returning and the
// lookup are silently skipped.
func (e *Epoll) Wait() ([]net.Conn, error) {
	n, err := unix.EpollWait(e.fd, e.events, waitTimeoutMs)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	conns := make([]net.Conn, 0, n)
	for i := 0; i < n; i++ {
		conn, ok := e.connections[int(e.events[i].Fd)]
		if ok {
			conns = append(conns, conn)
		}
	}
	e.mu.RUnlock()
	return conns, nil
}

// Close closes the epoll file descriptor.
func (e *Epoll) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connections = make(map[int]net.Conn)
	e.fds = make(map[net.Conn]int)
	return unix.Close(e.fd)
}

// socketFD extracts the file descriptor from a net.Conn using the
// SyscallConn interface. This avoids duplicating the file descriptor
// (which File() does), keeping the original fd valid for epoll registration.
func socketFD(conn net.Conn) int {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return -1
	}

	raw, err := sc.SyscallConn()
	if err != nil {
		return -1
	}

	fd := -1
	_ = raw.Control(func(sfd uintptr) {
		fd = int(sfd)
	})
	return fd
}

// isEINTR reports an epoll_wait interrupted by a signal.
func isEINTR(err error) bool {
	return errors.Is(err, unix.EINTR)
}
