package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mridulmehra/CyberGaurd-Backend/internal/directory"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/logging"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/messaging"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/metrics"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/protocol"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/session"
)

const (
	noticeMessageFailed = "There was an error processing your message. Please try again."
	noticeRewritten     = "Your message was detected as potentially harmful and has been modified for civility. The modified version has been sent instead."
)

// fallbackTimeout bounds the failure path, which runs on a context detached
// from the handler's deadline.
const fallbackTimeout = 5 * time.Second

// messageState tracks how far a message got, for the failure path.
type messageState struct {
	score     int
	delivered bool
}

// Message runs one chat message through moderation, scoring, persistence
// and room broadcast. User content is never dropped: on any failure before
// delivery the original text is broadcast unmodified.
func (p *Pipeline) Message(ctx context.Context, connID string, m protocol.ChatMsg) {
	ctx, done := p.begin(ctx, connID)
	defer done()

	if !m.IsString || strings.TrimSpace(m.Text) == "" {
		return
	}
	id, ok := p.registry.IdentityOf(connID)
	if !ok {
		return
	}
	log := logging.Ctx(ctx).With().Str(logging.FieldUsername, id.Username).Str(logging.FieldRoom, id.Room).Logger()
	ctx = logging.WithLogger(ctx, log)

	if err := ValidateMessage(m.Text); err != nil {
		log.Debug().Err(err).Msg("message rejected")
		metrics.MessagesTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		p.sendError(ctx, connID, validationNotice(err))
		return
	}

	start := time.Now()
	defer func() { metrics.MessageLatency.Observe(time.Since(start).Seconds()) }()

	var st messageState
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("message pipeline panicked")
			if !st.delivered {
				p.deliverUnmoderated(ctx, connID, id, m.Text, st.score)
			}
		}
	}()

	if err := p.moderateAndDeliver(ctx, connID, id, m.Text, &st); err != nil {
		log.Error().Err(err).Msg("message pipeline failed")
		if !st.delivered {
			p.deliverUnmoderated(ctx, connID, id, m.Text, st.score)
		}
	}
}

func (p *Pipeline) moderateAndDeliver(ctx context.Context, connID string, id session.Identity, text string, st *messageState) error {
	user, err := p.dir.GetUser(ctx, id.Username)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	st.score = user.ToxicityScore

	verdict := p.moderator.Check(ctx, text)
	if verdict.IsToxic && strings.TrimSpace(verdict.Rewrite) != "" {
		p.sendError(ctx, connID, noticeRewritten)
	}

	updated, err := p.dir.SetToxicityScore(ctx, id.Username, AdjustScore(user.ToxicityScore, verdict.IsToxic))
	if err != nil {
		return fmt.Errorf("persist score: %w", err)
	}
	st.score = updated.ToxicityScore
	p.broadcast(ctx, id.Room, "", protocol.TypeUpdateToxicityScore, protocol.ScorePayload{
		Username: id.Username,
		Score:    updated.ToxicityScore,
	})

	final := verdict.FinalText(text)
	saved, err := p.dir.CreateMessage(ctx, directory.Message{
		Text:       final,
		Username:   id.Username,
		Room:       id.Room,
		IsModified: verdict.IsToxic,
	})
	if err != nil {
		return fmt.Errorf("persist message: %w", err)
	}

	outcome := metrics.OutcomeSent
	if verdict.IsToxic {
		outcome = metrics.OutcomeFlagged
		p.recordToxic(ctx, directory.ToxicMessageRecord{
			OriginalText:  text,
			ModifiedText:  &final,
			ToxicityScore: FlaggedSeverity(updated.ToxicityScore),
			MessageID:     &saved.ID,
			Username:      id.Username,
			Room:          id.Room,
		}, messaging.SourceClassifier)
	}

	p.broadcast(ctx, id.Room, "", protocol.TypeMessage, saved)
	st.delivered = true
	metrics.MessagesTotal.WithLabelValues(outcome).Inc()

	logging.Ctx(ctx).Debug().
		Int64(logging.FieldMessageID, saved.ID).
		Bool("toxic", verdict.IsToxic).
		Int("score", updated.ToxicityScore).
		Msg("message delivered")
	return nil
}

// deliverUnmoderated is the failure path: the sender is told once, the
// original text is persisted and broadcast, and the heuristic filter decides
// whether an audit record is kept. If the message cannot be persisted it is
// broadcast with ID 0.
func (p *Pipeline) deliverUnmoderated(ctx context.Context, connID string, id session.Identity, text string, score int) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fallbackTimeout)
	defer cancel()
	log := logging.Ctx(ctx)

	p.sendError(ctx, connID, noticeMessageFailed)

	msg := directory.Message{
		Text:     text,
		Username: id.Username,
		Room:     id.Room,
	}
	var msgID *int64
	if saved, err := p.dir.CreateMessage(ctx, msg); err != nil {
		log.Error().Err(err).Msg("persist unmoderated message")
		msg.Timestamp = p.timestamp()
	} else {
		msg = *saved
		msgID = &saved.ID
	}

	if res := p.heuristic.CheckKeywords(text); res.Blocked {
		raw := text
		p.recordToxic(ctx, directory.ToxicMessageRecord{
			OriginalText:  text,
			ModifiedText:  &raw,
			ToxicityScore: FallbackSeverity(score),
			MessageID:     msgID,
			Username:      id.Username,
			Room:          id.Room,
		}, messaging.SourceFallback)
	}

	p.broadcast(ctx, id.Room, "", protocol.TypeMessage, msg)
	metrics.MessagesTotal.WithLabelValues(metrics.OutcomeFallback).Inc()
}

// recordToxic persists an audit record and publishes it. Failures are
// logged only.
func (p *Pipeline) recordToxic(ctx context.Context, rec directory.ToxicMessageRecord, source string) {
	saved, err := p.dir.CreateToxicMessageRecord(ctx, rec)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("source", source).Msg("persist toxic message record")
		return
	}
	if p.audit == nil {
		return
	}
	if err := p.audit.Flagged(ctx, *saved, source); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("source", source).Msg("publish flagged event")
	}
}
