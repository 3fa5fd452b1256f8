package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/mridulmehra/CyberGaurd-Backend/internal/directory"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRebind(t *testing.T) {
	pg := &Store{driverName: DriverPostgres}
	lite := &Store{driverName: DriverSQLite}

	query := "SELECT * FROM users WHERE username = ? AND room = ?"
	if got, want := pg.rebind(query), "SELECT * FROM users WHERE username = $1 AND room = $2"; got != want {
		t.Errorf("postgres rebind = %q, want %q", got, want)
	}
	if got := lite.rebind(query); got != query {
		t.Errorf("sqlite rebind changed the query: %q", got)
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, err := Open("mysql", "dsn"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{":memory:", ":memory:?_foreign_keys=on"},
		{"file:chat.db?cache=shared", "file:chat.db?cache=shared&_foreign_keys=on"},
		{"chat.db?_foreign_keys=off", "chat.db?_foreign_keys=off"},
		{"chat.db?_fk=1", "chat.db?_fk=1"},
	}
	for _, tt := range tests {
		if got := sqliteDSN(tt.in); got != tt.want {
			t.Errorf("sqliteDSN(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOpen_ForeignKeysOnEveryConnection(t *testing.T) {
	ctx := context.Background()
	s, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "fk.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	s.DB().SetMaxOpenConns(2)

	// Holding the first connection forces the pool to open a second one.
	first, err := s.DB().Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()
	second, err := s.DB().Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()

	for i, c := range []*sql.Conn{first, second} {
		var on int
		if err := c.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&on); err != nil {
			t.Fatal(err)
		}
		if on != 1 {
			t.Errorf("connection %d: foreign_keys = %d, want 1", i, on)
		}
	}
}

func TestMigrate_ReleasesConnections(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 3; i++ {
		if _, _, err := s.MigrationVersion(); err != nil {
			t.Fatalf("MigrationVersion #%d: %v", i, err)
		}
	}
	if n := s.DB().Stats().InUse; n != 0 {
		t.Errorf("connections in use after migrations = %d, want 0", n)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	s := openTestStore(t)
	if err := s.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	version, dirty, err := s.MigrationVersion()
	if err != nil {
		t.Fatalf("MigrationVersion: %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("version = %d dirty = %v, want 1 clean", version, dirty)
	}
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	u, err := s.CreateUser(ctx, "alice", "lobby")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID == 0 || u.ToxicityScore != 0 || u.Room != "lobby" {
		t.Errorf("unexpected user %+v", u)
	}

	if _, err := s.CreateUser(ctx, "alice", "other"); !errors.Is(err, directory.ErrUserExists) {
		t.Fatalf("duplicate CreateUser error = %v, want ErrUserExists", err)
	}

	if _, err := s.CreateUser(ctx, "bob", "lobby"); err != nil {
		t.Fatal(err)
	}
	users, err := s.ListUsersInRoom(ctx, "lobby")
	if err != nil {
		t.Fatalf("ListUsersInRoom: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("got %d users, want 2", len(users))
	}

	updated, err := s.SetToxicityScore(ctx, "alice", 250)
	if err != nil {
		t.Fatalf("SetToxicityScore: %v", err)
	}
	if updated.ToxicityScore != 100 {
		t.Errorf("score = %d, want clamped 100", updated.ToxicityScore)
	}
	if _, err := s.SetToxicityScore(ctx, "ghost", 5); !errors.Is(err, directory.ErrNotFound) {
		t.Errorf("SetToxicityScore(ghost) error = %v, want ErrNotFound", err)
	}

	if err := s.DeleteUser(ctx, "alice"); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, err := s.GetUser(ctx, "alice"); !errors.Is(err, directory.ErrNotFound) {
		t.Errorf("GetUser after delete error = %v, want ErrNotFound", err)
	}
	if err := s.DeleteUser(ctx, "alice"); err != nil {
		t.Errorf("second DeleteUser = %v, want nil", err)
	}

	n, err := s.PurgeUsers(ctx)
	if err != nil {
		t.Fatalf("PurgeUsers: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d, want 1", n)
	}
}

func TestListMessages_LastNAscending(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, err := s.CreateMessage(ctx, directory.Message{
			Text:      fmt.Sprintf("m%d", i),
			Username:  "alice",
			Room:      "lobby",
			Timestamp: directory.FormatTimestamp(base.Add(time.Duration(i) * time.Millisecond)),
		})
		if err != nil {
			t.Fatalf("CreateMessage: %v", err)
		}
	}

	msgs, err := s.ListMessages(ctx, "lobby", 3)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	want := []string{"m2", "m3", "m4"}
	if len(msgs) != len(want) {
		t.Fatalf("got %d messages, want %d", len(msgs), len(want))
	}
	for i, w := range want {
		if msgs[i].Text != w {
			t.Errorf("msgs[%d] = %q, want %q", i, msgs[i].Text, w)
		}
	}

	got, err := s.GetMessage(ctx, msgs[0].ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if got.Timestamp != msgs[0].Timestamp {
		t.Errorf("timestamp round trip = %q, want %q", got.Timestamp, msgs[0].Timestamp)
	}
	if _, err := s.GetMessage(ctx, 9999); !errors.Is(err, directory.ErrNotFound) {
		t.Errorf("GetMessage(9999) error = %v, want ErrNotFound", err)
	}
}

func TestRecordsAndReports(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	msg, err := s.CreateMessage(ctx, directory.Message{Text: "you idiot", Username: "bob", Room: "lobby"})
	if err != nil {
		t.Fatal(err)
	}
	other, err := s.CreateMessage(ctx, directory.Message{Text: "hello", Username: "carol", Room: "garden"})
	if err != nil {
		t.Fatal(err)
	}

	modified := "I disagree"
	rec, err := s.CreateToxicMessageRecord(ctx, directory.ToxicMessageRecord{
		OriginalText:  msg.Text,
		ModifiedText:  &modified,
		ToxicityScore: 35,
		MessageID:     &msg.ID,
		Username:      "bob",
		Room:          "lobby",
	})
	if err != nil {
		t.Fatalf("CreateToxicMessageRecord: %v", err)
	}
	if rec.ID == 0 || rec.Timestamp.IsZero() {
		t.Errorf("record not populated: %+v", rec)
	}

	recs, err := s.ListToxicMessagesForUser(ctx, "bob", 0)
	if err != nil {
		t.Fatalf("ListToxicMessagesForUser: %v", err)
	}
	if len(recs) != 1 || recs[0].ModifiedText == nil || *recs[0].ModifiedText != modified {
		t.Fatalf("unexpected records %+v", recs)
	}

	report, err := s.CreateReport(ctx, directory.Report{MessageID: msg.ID, ReportedBy: "alice", Reason: "hate"})
	if err != nil {
		t.Fatalf("CreateReport: %v", err)
	}
	if report.Status != directory.ReportPending {
		t.Errorf("status = %q, want pending", report.Status)
	}
	if _, err := s.CreateReport(ctx, directory.Report{MessageID: other.ID, ReportedBy: "alice", Reason: "spam"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateReport(ctx, directory.Report{MessageID: 9999, ReportedBy: "alice"}); !errors.Is(err, directory.ErrNotFound) {
		t.Errorf("report on missing message error = %v, want ErrNotFound", err)
	}

	roomReports, err := s.ListReportsForRoom(ctx, "lobby", 0)
	if err != nil {
		t.Fatalf("ListReportsForRoom: %v", err)
	}
	if len(roomReports) != 1 || roomReports[0].ID != report.ID {
		t.Errorf("ListReportsForRoom = %+v", roomReports)
	}

	updated, err := s.UpdateReportStatus(ctx, report.ID, directory.ReportDismissed)
	if err != nil {
		t.Fatalf("UpdateReportStatus: %v", err)
	}
	if updated.Status != directory.ReportDismissed {
		t.Errorf("status = %q, want dismissed", updated.Status)
	}
	if _, err := s.UpdateReportStatus(ctx, report.ID, "bogus"); !errors.Is(err, directory.ErrInvalidStatus) {
		t.Errorf("bogus status error = %v, want ErrInvalidStatus", err)
	}
	if _, err := s.UpdateReportStatus(ctx, 9999, directory.ReportReviewed); !errors.Is(err, directory.ErrNotFound) {
		t.Errorf("missing report error = %v, want ErrNotFound", err)
	}

	n, err := s.DeleteMessagesInRoom(ctx, "lobby")
	if err != nil {
		t.Fatalf("DeleteMessagesInRoom: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d, want 1", n)
	}
	if reports, _ := s.ListReportsForMessage(ctx, msg.ID); len(reports) != 0 {
		t.Errorf("reports survived deletion: %d", len(reports))
	}
	if recs, _ := s.ListToxicMessagesForUser(ctx, "bob", 0); len(recs) != 0 {
		t.Errorf("records survived deletion: %d", len(recs))
	}
	if reports, _ := s.ListReportsForMessage(ctx, other.ID); len(reports) != 1 {
		t.Errorf("other room reports = %d, want 1", len(reports))
	}
}
