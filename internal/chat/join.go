package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mridulmehra/CyberGaurd-Backend/internal/directory"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/logging"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/metrics"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/protocol"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/ratelimit"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/session"
)

// Notices sent on the error channel by Join.
const (
	noticeJoinFieldsRequired = "Username and room are required"
	noticeUsernameReserved   = "That username is reserved"
	noticeAlreadyJoined      = "You have already joined a room"
	noticeUsernameTaken      = "Username is already taken"
	noticeJoinRateLimited    = "Too many join attempts. Please wait a moment."
	noticeJoinFailed         = "There was an error joining the room. Please try again."
)

// Join binds a username and room to connID, announces the user to the room
// and replays the room's history to the joiner.
func (p *Pipeline) Join(ctx context.Context, connID string, m protocol.JoinMsg) {
	ctx, done := p.begin(ctx, connID)
	defer done()

	username := strings.TrimSpace(m.Username)
	room := strings.TrimSpace(m.Room)
	switch {
	case username == "" || room == "":
		p.sendError(ctx, connID, noticeJoinFieldsRequired)
		return
	case strings.EqualFold(username, directory.SystemUsername):
		p.sendError(ctx, connID, noticeUsernameReserved)
		return
	}
	if _, ok := p.registry.IdentityOf(connID); ok {
		p.sendError(ctx, connID, noticeAlreadyJoined)
		return
	}
	if p.limiter != nil {
		allowed, err := p.limiter.Allow(ctx, connID, ratelimit.RuleJoin)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("join rate limit check failed, allowing")
		}
		if !allowed {
			p.sendError(ctx, connID, noticeJoinRateLimited)
			return
		}
	}

	log := logging.Ctx(ctx).With().Str(logging.FieldUsername, username).Str(logging.FieldRoom, room).Logger()

	user, err := p.dir.CreateUser(ctx, username, room)
	if errors.Is(err, directory.ErrUserExists) && p.reclaim(ctx, username) {
		user, err = p.dir.CreateUser(ctx, username, room)
	}
	if err != nil {
		if errors.Is(err, directory.ErrUserExists) {
			p.sendError(ctx, connID, noticeUsernameTaken)
			return
		}
		log.Error().Err(err).Msg("create user")
		p.sendError(ctx, connID, noticeJoinFailed)
		return
	}

	if err := p.registry.Register(connID, session.Identity{Username: username, Room: room}); err != nil {
		// Unreachable while the connection lock is held; undo the row.
		log.Error().Err(err).Msg("register identity")
		_ = p.dir.DeleteUser(context.WithoutCancel(ctx), username)
		p.sendError(ctx, connID, noticeAlreadyJoined)
		return
	}
	metrics.ActiveUsers.Inc()

	users, err := p.dir.ListUsersInRoom(ctx, room)
	if err != nil {
		log.Warn().Err(err).Msg("list users in room")
		users = []directory.User{*user}
	}
	p.send(ctx, connID, protocol.TypeUsersList, users)
	p.broadcast(ctx, room, connID, protocol.TypeUserJoined, user)

	history, err := p.dir.ListMessages(ctx, room, p.historyLimit)
	if err != nil {
		log.Warn().Err(err).Msg("load room history")
	}
	for _, msg := range history {
		p.send(ctx, connID, protocol.TypeMessage, msg)
	}

	log.Info().Int("history", len(history)).Msg("user joined")
}

// Leave removes the connection's identity from its room. The transport
// stays open and the connection may join again.
func (p *Pipeline) Leave(ctx context.Context, connID string, _ protocol.LeaveMsg) {
	ctx, done := p.begin(ctx, connID)
	defer done()

	p.teardown(ctx, connID)
}

// Disconnect is the transport-close hook. It waits for any handler of the
// same connection to finish and then tears the identity down.
func (p *Pipeline) Disconnect(connID string) {
	ctx, done := p.begin(context.Background(), connID)
	defer done()

	p.teardown(ctx, connID)
}

// teardown runs at most once per join: Unregister hands the identity to
// exactly one caller.
func (p *Pipeline) teardown(ctx context.Context, connID string) {
	id, ok := p.registry.Unregister(connID)
	if !ok {
		return
	}
	metrics.ActiveUsers.Dec()

	log := logging.Ctx(ctx).With().Str(logging.FieldUsername, id.Username).Str(logging.FieldRoom, id.Room).Logger()
	if err := p.deleteUser(ctx, id.Username); err != nil {
		// No connection holds the identity any more, so the row is stale.
		log.Error().Err(err).Msg("delete user failed, username held until reclaimed")
		p.orphanMu.Lock()
		p.orphans[id.Username] = struct{}{}
		p.orphanMu.Unlock()
	}
	p.broadcast(ctx, id.Room, connID, protocol.TypeUserLeft, id.Username)
	log.Info().Msg("user left")
}

// deleteUser removes the User row, retrying with backoff on a context
// detached from the handler so a timed out event still frees the username.
func (p *Pipeline) deleteUser(ctx context.Context, username string) error {
	ctx = context.WithoutCancel(ctx)
	for attempt := 0; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, deleteAttemptTimeout)
		err := p.dir.DeleteUser(attemptCtx, username)
		cancel()
		if err == nil || attempt >= len(p.deleteBackoff) {
			return err
		}
		logging.Ctx(ctx).Warn().Err(err).Int("attempt", attempt+1).Str(logging.FieldUsername, username).Msg("delete user, retrying")
		time.Sleep(p.deleteBackoff[attempt])
	}
}

// reclaim deletes the row of username if an earlier teardown failed to.
// It reports whether the username is free again.
func (p *Pipeline) reclaim(ctx context.Context, username string) bool {
	p.orphanMu.Lock()
	defer p.orphanMu.Unlock()

	if _, ok := p.orphans[username]; !ok {
		return false
	}
	if err := p.dir.DeleteUser(ctx, username); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str(logging.FieldUsername, username).Msg("reclaim stale user")
		return false
	}
	delete(p.orphans, username)
	return true
}
