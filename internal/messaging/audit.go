package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mridulmehra/CyberGaurd-Backend/internal/directory"
)

// Sources of a flagged-message event.
const (
	SourceClassifier = "classifier"
	SourceFallback   = "fallback"
	SourceReport     = "report"
)

// FlaggedEvent is published on moderation.flagged.<room> for every
// toxic-message record the chat server writes.
type FlaggedEvent struct {
	RecordID      int64     `json:"recordId"`
	MessageID     *int64    `json:"messageId"`
	Username      string    `json:"username"`
	Room          string    `json:"room"`
	OriginalText  string    `json:"originalText"`
	ModifiedText  *string   `json:"modifiedText"`
	ToxicityScore int       `json:"toxicityScore"`
	Source        string    `json:"source"`
	Timestamp     time.Time `json:"timestamp"`
}

// ReportEvent is published on reports.created.<room> when a user report is
// accepted.
type ReportEvent struct {
	ReportID   int64     `json:"reportId"`
	MessageID  int64     `json:"messageId"`
	ReportedBy string    `json:"reportedBy"`
	Author     string    `json:"author"`
	Room       string    `json:"room"`
	Reason     string    `json:"reason"`
	Severity   int       `json:"severity"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher is the subset of NATSClient the audit sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// AuditPublisher serializes moderation events onto NATS subjects.
type AuditPublisher struct {
	pub Publisher
}

// NewAuditPublisher wraps pub, usually a *NATSClient.
func NewAuditPublisher(pub Publisher) *AuditPublisher {
	return &AuditPublisher{pub: pub}
}

// Flagged publishes rec as a FlaggedEvent.
func (a *AuditPublisher) Flagged(_ context.Context, rec directory.ToxicMessageRecord, source string) error {
	return a.publish(SubjectFlagged+"."+rec.Room, FlaggedEvent{
		RecordID:      rec.ID,
		MessageID:     rec.MessageID,
		Username:      rec.Username,
		Room:          rec.Room,
		OriginalText:  rec.OriginalText,
		ModifiedText:  rec.ModifiedText,
		ToxicityScore: rec.ToxicityScore,
		Source:        source,
		Timestamp:     rec.Timestamp,
	})
}

// Reported publishes a ReportEvent for r against msg.
func (a *AuditPublisher) Reported(_ context.Context, r directory.Report, msg directory.Message, severity int) error {
	return a.publish(SubjectReports+"."+msg.Room, ReportEvent{
		ReportID:   r.ID,
		MessageID:  r.MessageID,
		ReportedBy: r.ReportedBy,
		Author:     msg.Username,
		Room:       msg.Room,
		Reason:     r.Reason,
		Severity:   severity,
		Timestamp:  r.Timestamp,
	})
}

func (a *AuditPublisher) publish(subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("messaging: marshal %s: %w", subject, err)
	}
	if err := a.pub.Publish(subject, data); err != nil {
		return fmt.Errorf("messaging: publish %s: %w", subject, err)
	}
	return nil
}
