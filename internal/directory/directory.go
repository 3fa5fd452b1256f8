// Package directory defines the durable records of the chat service (users,
// messages, toxic-message records and reports) and the Directory interface
// the message pipeline persists them through. Two implementations exist: an
// in-memory store in this package and a SQL store in the sqlstore
// subpackage.
package directory

import (
	"context"
	"errors"
	"time"
)

// SystemUsername is the author of synthetic notices. No client may join
// with it.
const SystemUsername = "system"

// DefaultListLimit is applied by list operations when the caller passes a
// non-positive limit.
const DefaultListLimit = 50

// Toxicity score bounds.
const (
	MinScore = 0
	MaxScore = 100
)

// TimestampLayout is the wire format of Message.Timestamp: ISO-8601 in UTC
// with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

var (
	// ErrUserExists is returned by CreateUser when the username is held by
	// an active user.
	ErrUserExists = errors.New("directory: username already exists")

	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("directory: not found")

	// ErrInvalidStatus is returned by UpdateReportStatus for a status
	// outside pending, reviewed and dismissed.
	ErrInvalidStatus = errors.New("directory: invalid report status")
)

// User is an active participant. The row exists only while the user is
// joined to a room.
type User struct {
	ID            int64  `json:"id"`
	Username      string `json:"username"`
	Room          string `json:"room"`
	ToxicityScore int    `json:"toxicityScore"`
}

// Message is a persisted chat message. Text is the content actually
// broadcast, which is the rewrite when IsModified is set.
type Message struct {
	ID         int64  `json:"id"`
	Text       string `json:"text"`
	Username   string `json:"username"`
	Room       string `json:"room"`
	IsModified bool   `json:"isModified"`
	Timestamp  string `json:"timestamp"`
}

// IsSystem reports whether the message is a synthetic notice.
func (m Message) IsSystem() bool {
	return m.Username == SystemUsername
}

// ToxicMessageRecord is an audit row written when a message is flagged by
// the classifier, by the heuristic fallback, or by a user report.
type ToxicMessageRecord struct {
	ID            int64     `json:"id"`
	OriginalText  string    `json:"originalText"`
	ModifiedText  *string   `json:"modifiedText"`
	ToxicityScore int       `json:"toxicityScore"`
	MessageID     *int64    `json:"messageId"`
	Username      string    `json:"username"`
	Room          string    `json:"room"`
	Timestamp     time.Time `json:"timestamp"`
}

// ReportStatus is the review state of a Report.
type ReportStatus string

const (
	ReportPending   ReportStatus = "pending"
	ReportReviewed  ReportStatus = "reviewed"
	ReportDismissed ReportStatus = "dismissed"
)

// Valid reports whether s is one of the known review states.
func (s ReportStatus) Valid() bool {
	switch s {
	case ReportPending, ReportReviewed, ReportDismissed:
		return true
	}
	return false
}

// Report is a user complaint against a message.
type Report struct {
	ID         int64        `json:"id"`
	MessageID  int64        `json:"messageId"`
	ReportedBy string       `json:"reportedBy"`
	Reason     string       `json:"reason"`
	Status     ReportStatus `json:"status"`
	Timestamp  time.Time    `json:"timestamp"`
}

// Directory is the durable store behind the chat service. Every operation is
// atomic at the level of a single record; no operation spans records
// transactionally except the cascade performed by DeleteMessagesInRoom.
type Directory interface {
	// GetUser returns ErrNotFound when no active user holds username.
	GetUser(ctx context.Context, username string) (*User, error)
	ListUsersInRoom(ctx context.Context, room string) ([]User, error)
	// CreateUser inserts a user with score 0, or returns ErrUserExists.
	CreateUser(ctx context.Context, username, room string) (*User, error)
	// DeleteUser is a no-op when the user does not exist.
	DeleteUser(ctx context.Context, username string) error
	// SetToxicityScore clamps score into [MinScore, MaxScore].
	SetToxicityScore(ctx context.Context, username string, score int) (*User, error)
	// PurgeUsers removes every user row and returns how many were removed.
	PurgeUsers(ctx context.Context) (int64, error)

	CreateMessage(ctx context.Context, msg Message) (*Message, error)
	GetMessage(ctx context.Context, id int64) (*Message, error)
	// ListMessages returns the most recent limit messages of room in
	// ascending timestamp order.
	ListMessages(ctx context.Context, room string, limit int) ([]Message, error)
	// DeleteMessagesInRoom also removes the records and reports that
	// reference the deleted messages.
	DeleteMessagesInRoom(ctx context.Context, room string) (int64, error)

	CreateToxicMessageRecord(ctx context.Context, rec ToxicMessageRecord) (*ToxicMessageRecord, error)
	// ListToxicMessagesForUser returns newest first.
	ListToxicMessagesForUser(ctx context.Context, username string, limit int) ([]ToxicMessageRecord, error)

	// CreateReport defaults Status to ReportPending.
	CreateReport(ctx context.Context, r Report) (*Report, error)
	ListReportsForMessage(ctx context.Context, messageID int64) ([]Report, error)
	UpdateReportStatus(ctx context.Context, id int64, status ReportStatus) (*Report, error)
	// ListReportsForRoom returns reports on messages in room, newest first.
	ListReportsForRoom(ctx context.Context, room string, limit int) ([]Report, error)

	Close() error
}

// ClampScore bounds a toxicity score to [MinScore, MaxScore].
func ClampScore(score int) int {
	return max(MinScore, min(MaxScore, score))
}

// FormatTimestamp renders t in the Message.Timestamp wire format.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// NormalizeLimit maps a non-positive limit to DefaultListLimit.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
