// Package chat implements the room chat pipeline: joining and leaving
// rooms, moderating and broadcasting messages, clearing a room's view and
// reporting messages. Handlers are invoked per connection by the WebSocket
// dispatcher; each runs to completion before the next frame of the same
// connection is handled.
package chat

import (
	"context"
	"sync"
	"time"

	"github.com/mridulmehra/CyberGaurd-Backend/internal/directory"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/logging"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/moderation"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/protocol"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/ratelimit"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/session"
)

// DefaultHandlerTimeout bounds the store and classifier work of one event.
const DefaultHandlerTimeout = 15 * time.Second

// deleteAttemptTimeout bounds one DeleteUser call during teardown.
const deleteAttemptTimeout = 5 * time.Second

// defaultDeleteBackoff is the wait before each DeleteUser retry in teardown.
var defaultDeleteBackoff = []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, 2 * time.Second}

// Sender delivers one frame to one connection.
type Sender interface {
	Send(connID string, frame []byte) error
}

// Moderator classifies message text. *moderation.Client never fails, so
// neither does Check.
type Moderator interface {
	Check(ctx context.Context, text string) moderation.Verdict
}

// Auditor receives flagged messages and accepted reports.
type Auditor interface {
	Flagged(ctx context.Context, rec directory.ToxicMessageRecord, source string) error
	Reported(ctx context.Context, r directory.Report, msg directory.Message, severity int) error
}

// RateLimiter throttles join attempts per connection.
type RateLimiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
}

// Options configures a Pipeline. Directory, Registry, Moderator and Sender
// are required; Audit and Limiter are optional.
type Options struct {
	Directory directory.Directory
	Registry  *session.Registry
	Moderator Moderator
	Sender    Sender
	Audit     Auditor
	Limiter   RateLimiter

	// HistoryLimit is how many messages are replayed on join.
	HistoryLimit int
	// ClearDeletesHistory makes clearChat delete the room's stored
	// messages before announcing the clear.
	ClearDeletesHistory bool
	// HandlerTimeout bounds one event; zero means DefaultHandlerTimeout.
	HandlerTimeout time.Duration
}

// Pipeline holds the handlers for every client event.
type Pipeline struct {
	dir       directory.Directory
	registry  *session.Registry
	moderator Moderator
	sender    Sender
	audit     Auditor
	limiter   RateLimiter
	heuristic *moderation.Filter

	historyLimit        int
	clearDeletesHistory bool
	timeout             time.Duration

	locks connLocks
	now   func() time.Time

	// deleteBackoff paces teardown's DeleteUser retries. Usernames whose
	// row outlived every retry are kept in orphans until a join reclaims
	// them.
	deleteBackoff []time.Duration
	orphanMu      sync.Mutex
	orphans       map[string]struct{}
}

// NewPipeline builds a Pipeline from opts.
func NewPipeline(opts Options) *Pipeline {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = directory.DefaultListLimit
	}
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = DefaultHandlerTimeout
	}
	return &Pipeline{
		dir:                 opts.Directory,
		registry:            opts.Registry,
		moderator:           opts.Moderator,
		sender:              opts.Sender,
		audit:               opts.Audit,
		limiter:             opts.Limiter,
		heuristic:           moderation.NewHeuristicFilter(),
		historyLimit:        opts.HistoryLimit,
		clearDeletesHistory: opts.ClearDeletesHistory,
		timeout:             opts.HandlerTimeout,
		locks:               connLocks{m: make(map[string]*connLock)},
		now:                 time.Now,
		deleteBackoff:       defaultDeleteBackoff,
		orphans:             make(map[string]struct{}),
	}
}

// begin serializes work on connID and bounds it with the handler timeout.
// The returned function releases both.
func (p *Pipeline) begin(ctx context.Context, connID string) (context.Context, func()) {
	unlock := p.locks.acquire(connID)
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	return ctx, func() {
		cancel()
		unlock()
	}
}

// ---------------------------------------------------------------------------
// Delivery helpers
// ---------------------------------------------------------------------------

func (p *Pipeline) send(ctx context.Context, connID, msgType string, payload any) {
	frame, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("type", msgType).Msg("encode frame")
		return
	}
	if err := p.sender.Send(connID, frame); err != nil {
		logging.Ctx(ctx).Debug().Err(err).Str("to", connID).Str("type", msgType).Msg("send failed")
	}
}

func (p *Pipeline) sendError(ctx context.Context, connID, text string) {
	if err := p.sender.Send(connID, protocol.NewErrorMessage(text)); err != nil {
		logging.Ctx(ctx).Debug().Err(err).Msg("send error notice failed")
	}
}

// broadcast sends one frame to every current member of room except
// exclude. Per-member failures are logged and skipped.
func (p *Pipeline) broadcast(ctx context.Context, room, exclude, msgType string, payload any) {
	frame, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("type", msgType).Msg("encode frame")
		return
	}
	for _, member := range p.registry.MembersOf(room) {
		if member == exclude {
			continue
		}
		if err := p.sender.Send(member, frame); err != nil {
			logging.Ctx(ctx).Debug().Err(err).Str("to", member).Str("type", msgType).Msg("broadcast send failed")
		}
	}
}

func (p *Pipeline) timestamp() string {
	return directory.FormatTimestamp(p.now())
}

// ---------------------------------------------------------------------------
// Per-connection locks
// ---------------------------------------------------------------------------

// connLocks hands out one mutex per connection ID. Entries are reference
// counted and dropped when no handler holds or waits on them.
type connLocks struct {
	mu sync.Mutex
	m  map[string]*connLock
}

type connLock struct {
	mu   sync.Mutex
	refs int
}

func (l *connLocks) acquire(connID string) func() {
	l.mu.Lock()
	cl, ok := l.m[connID]
	if !ok {
		cl = &connLock{}
		l.m[connID] = cl
	}
	cl.refs++
	l.mu.Unlock()

	cl.mu.Lock()
	return func() {
		cl.mu.Unlock()
		l.mu.Lock()
		cl.refs--
		if cl.refs == 0 {
			delete(l.m, connID)
		}
		l.mu.Unlock()
	}
}

func (l *connLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
