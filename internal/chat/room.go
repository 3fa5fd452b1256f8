package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mridulmehra/CyberGaurd-Backend/internal/directory"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/logging"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/messaging"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/metrics"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/protocol"
)

const (
	noticeClearOtherRoom   = "You can only clear your current room"
	noticeClearFailed      = "There was an error clearing the chat view. Please try again."
	noticeInvalidMessageID = "Invalid message ID"
	noticeMessageNotFound  = "Message not found"
	noticeSelfReport       = "You cannot report your own messages"
	noticeReportFailed     = "There was an error submitting your report. Please try again."
	noticeReportSubmitted  = "Report submitted. Thank you for helping keep the community safe."

	// DefaultReportReason is stored when a report carries no reason.
	DefaultReportReason = "Inappropriate content"
)

// clearedNotice is the system message text logged by a clear.
func clearedNotice(username string) string {
	return fmt.Sprintf("Chat view has been cleared by %s", username)
}

// ClearChat resets every member's view of the requester's room. History is
// kept unless the pipeline was built with ClearDeletesHistory.
func (p *Pipeline) ClearChat(ctx context.Context, connID string, m protocol.ClearChatMsg) {
	ctx, done := p.begin(ctx, connID)
	defer done()

	id, ok := p.registry.IdentityOf(connID)
	if !ok {
		return
	}
	if room := strings.TrimSpace(m.Room); room != "" && room != id.Room {
		p.sendError(ctx, connID, noticeClearOtherRoom)
		return
	}
	log := logging.Ctx(ctx).With().Str(logging.FieldUsername, id.Username).Str(logging.FieldRoom, id.Room).Logger()

	if p.clearDeletesHistory {
		n, err := p.dir.DeleteMessagesInRoom(ctx, id.Room)
		if err != nil {
			log.Error().Err(err).Msg("delete room history")
			p.sendError(ctx, connID, noticeClearFailed)
			return
		}
		log.Info().Int64("deleted", n).Msg("room history deleted")
	}

	notice, err := p.dir.CreateMessage(ctx, directory.Message{
		Text:     clearedNotice(id.Username),
		Username: directory.SystemUsername,
		Room:     id.Room,
	})
	if err != nil {
		log.Error().Err(err).Msg("persist clear notice")
		p.sendError(ctx, connID, noticeClearFailed)
		return
	}

	p.broadcast(ctx, id.Room, "", protocol.TypeChatCleared, id.Room)
	p.broadcast(ctx, id.Room, "", protocol.TypeMessage, notice)
	log.Info().Msg("chat view cleared")
}

// ReportMessage files a complaint against a message in the reporter's room.
func (p *Pipeline) ReportMessage(ctx context.Context, connID string, m protocol.ReportMsg) {
	ctx, done := p.begin(ctx, connID)
	defer done()

	id, ok := p.registry.IdentityOf(connID)
	if !ok {
		return
	}
	if m.MessageID <= 0 {
		p.sendError(ctx, connID, noticeInvalidMessageID)
		return
	}
	log := logging.Ctx(ctx).With().
		Str(logging.FieldUsername, id.Username).
		Str(logging.FieldRoom, id.Room).
		Int64(logging.FieldMessageID, m.MessageID).
		Logger()

	msg, err := p.dir.GetMessage(ctx, m.MessageID)
	switch {
	case errors.Is(err, directory.ErrNotFound):
		p.sendError(ctx, connID, noticeMessageNotFound)
		return
	case err != nil:
		log.Error().Err(err).Msg("load reported message")
		p.sendError(ctx, connID, noticeReportFailed)
		return
	case msg.Room != id.Room:
		p.sendError(ctx, connID, noticeMessageNotFound)
		return
	case msg.Username == id.Username:
		p.sendError(ctx, connID, noticeSelfReport)
		return
	}

	reason := strings.TrimSpace(m.Reason)
	if reason == "" {
		reason = DefaultReportReason
	}
	report, err := p.dir.CreateReport(ctx, directory.Report{
		MessageID:  msg.ID,
		ReportedBy: id.Username,
		Reason:     reason,
		Status:     directory.ReportPending,
	})
	if err != nil {
		log.Error().Err(err).Msg("create report")
		p.sendError(ctx, connID, noticeReportFailed)
		return
	}
	metrics.ReportsTotal.Inc()

	severity := ReportSeverity(reason)
	text := msg.Text
	p.recordToxic(ctx, directory.ToxicMessageRecord{
		OriginalText:  msg.Text,
		ModifiedText:  &text,
		ToxicityScore: severity,
		MessageID:     &msg.ID,
		Username:      msg.Username,
		Room:          msg.Room,
	}, messaging.SourceReport)

	if p.audit != nil {
		if err := p.audit.Reported(ctx, *report, *msg, severity); err != nil {
			log.Warn().Err(err).Msg("publish report event")
		}
	}

	p.sendError(ctx, connID, noticeReportSubmitted)
	log.Info().Int64("report_id", report.ID).Int("severity", severity).Msg("message reported")
}
