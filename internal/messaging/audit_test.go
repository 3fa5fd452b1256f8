package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mridulmehra/CyberGaurd-Backend/internal/directory"
)

type recordingPublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	if p.err != nil {
		return p.err
	}
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func TestAuditPublisher_Flagged(t *testing.T) {
	pub := &recordingPublisher{}
	a := NewAuditPublisher(pub)

	msgID := int64(7)
	rewrite := "please be kind"
	rec := directory.ToxicMessageRecord{
		ID:            3,
		OriginalText:  "you idiot",
		ModifiedText:  &rewrite,
		ToxicityScore: 35,
		MessageID:     &msgID,
		Username:      "bob",
		Room:          "lobby",
		Timestamp:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := a.Flagged(context.Background(), rec, SourceClassifier); err != nil {
		t.Fatalf("Flagged: %v", err)
	}

	if len(pub.subjects) != 1 || pub.subjects[0] != "moderation.flagged.lobby" {
		t.Fatalf("subjects = %v", pub.subjects)
	}
	var ev FlaggedEvent
	if err := json.Unmarshal(pub.payloads[0], &ev); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if ev.Source != SourceClassifier || ev.ToxicityScore != 35 || ev.MessageID == nil || *ev.MessageID != 7 {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestAuditPublisher_Reported(t *testing.T) {
	pub := &recordingPublisher{}
	a := NewAuditPublisher(pub)

	r := directory.Report{ID: 1, MessageID: 9, ReportedBy: "alice", Reason: "hate speech"}
	msg := directory.Message{ID: 9, Username: "bob", Room: "garden"}
	if err := a.Reported(context.Background(), r, msg, 90); err != nil {
		t.Fatalf("Reported: %v", err)
	}

	if pub.subjects[0] != "reports.created.garden" {
		t.Errorf("subject = %q", pub.subjects[0])
	}
	var ev ReportEvent
	if err := json.Unmarshal(pub.payloads[0], &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Author != "bob" || ev.Severity != 90 || ev.ReportedBy != "alice" {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestAuditPublisher_PublishError(t *testing.T) {
	boom := errors.New("nats down")
	a := NewAuditPublisher(&recordingPublisher{err: boom})

	err := a.Flagged(context.Background(), directory.ToxicMessageRecord{Room: "r"}, SourceFallback)
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped %v", err, boom)
	}
}
