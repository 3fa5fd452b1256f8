package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mridulmehra/CyberGaurd-Backend/internal/directory"
)

const (
	recordColumns = "id, original_text, modified_text, toxicity_score, message_id, username, room, created_at"
	reportColumns = "id, message_id, reported_by, reason, status, created_at"
)

func scanRecord(row rowScanner) (*directory.ToxicMessageRecord, error) {
	var (
		rec       directory.ToxicMessageRecord
		modified  sql.NullString
		messageID sql.NullInt64
	)
	if err := row.Scan(&rec.ID, &rec.OriginalText, &modified, &rec.ToxicityScore,
		&messageID, &rec.Username, &rec.Room, &rec.Timestamp); err != nil {
		return nil, err
	}
	if modified.Valid {
		rec.ModifiedText = &modified.String
	}
	if messageID.Valid {
		rec.MessageID = &messageID.Int64
	}
	rec.Timestamp = rec.Timestamp.UTC()
	return &rec, nil
}

func scanReport(row rowScanner) (*directory.Report, error) {
	var r directory.Report
	if err := row.Scan(&r.ID, &r.MessageID, &r.ReportedBy, &r.Reason, &r.Status, &r.Timestamp); err != nil {
		return nil, err
	}
	r.Timestamp = r.Timestamp.UTC()
	return &r, nil
}

func (s *Store) CreateToxicMessageRecord(ctx context.Context, rec directory.ToxicMessageRecord) (*directory.ToxicMessageRecord, error) {
	rec.ToxicityScore = directory.ClampScore(rec.ToxicityScore)
	rec.Timestamp = s.now().UTC()

	var modified sql.NullString
	if rec.ModifiedText != nil {
		modified = sql.NullString{String: *rec.ModifiedText, Valid: true}
	}
	var messageID sql.NullInt64
	if rec.MessageID != nil {
		messageID = sql.NullInt64{Int64: *rec.MessageID, Valid: true}
	}

	query := s.rebind(`INSERT INTO toxic_messages
		(original_text, modified_text, toxicity_score, message_id, username, room, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	err := s.db.QueryRowContext(ctx, query, rec.OriginalText, modified, rec.ToxicityScore,
		messageID, rec.Username, rec.Room, rec.Timestamp).Scan(&rec.ID)
	if isForeignKeyViolation(err) {
		return nil, directory.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: create toxic message record: %w", err)
	}
	return &rec, nil
}

func (s *Store) ListToxicMessagesForUser(ctx context.Context, username string, limit int) ([]directory.ToxicMessageRecord, error) {
	query := s.rebind("SELECT " + recordColumns + " FROM toxic_messages WHERE username = ? ORDER BY created_at DESC, id DESC LIMIT ?")
	rows, err := s.db.QueryContext(ctx, query, username, directory.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list toxic messages: %w", err)
	}
	defer rows.Close()

	recs := make([]directory.ToxicMessageRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scan toxic message: %w", err)
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: list toxic messages: %w", err)
	}
	return recs, nil
}

func (s *Store) CreateReport(ctx context.Context, r directory.Report) (*directory.Report, error) {
	if r.Status == "" {
		r.Status = directory.ReportPending
	}
	if !r.Status.Valid() {
		return nil, directory.ErrInvalidStatus
	}
	r.Timestamp = s.now().UTC()

	query := s.rebind("INSERT INTO reports (message_id, reported_by, reason, status, created_at) VALUES (?, ?, ?, ?, ?) RETURNING id")
	err := s.db.QueryRowContext(ctx, query, r.MessageID, r.ReportedBy, r.Reason, string(r.Status), r.Timestamp).Scan(&r.ID)
	if isForeignKeyViolation(err) {
		return nil, directory.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: create report: %w", err)
	}
	return &r, nil
}

func (s *Store) ListReportsForMessage(ctx context.Context, messageID int64) ([]directory.Report, error) {
	query := s.rebind("SELECT " + reportColumns + " FROM reports WHERE message_id = ? ORDER BY created_at DESC, id DESC")
	return s.queryReports(ctx, query, messageID)
}

func (s *Store) UpdateReportStatus(ctx context.Context, id int64, status directory.ReportStatus) (*directory.Report, error) {
	if !status.Valid() {
		return nil, directory.ErrInvalidStatus
	}

	query := s.rebind("UPDATE reports SET status = ? WHERE id = ? RETURNING " + reportColumns)
	r, err := scanReport(s.db.QueryRowContext(ctx, query, string(status), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, directory.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: update report status: %w", err)
	}
	return r, nil
}

func (s *Store) ListReportsForRoom(ctx context.Context, room string, limit int) ([]directory.Report, error) {
	query := s.rebind(`SELECT r.id, r.message_id, r.reported_by, r.reason, r.status, r.created_at
		FROM reports r
		JOIN messages m ON m.id = r.message_id
		WHERE m.room = ?
		ORDER BY r.created_at DESC, r.id DESC
		LIMIT ?`)
	return s.queryReports(ctx, query, room, directory.NormalizeLimit(limit))
}

func (s *Store) queryReports(ctx context.Context, query string, args ...any) ([]directory.Report, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list reports: %w", err)
	}
	defer rows.Close()

	reports := make([]directory.Report, 0)
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scan report: %w", err)
		}
		reports = append(reports, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: list reports: %w", err)
	}
	return reports, nil
}
