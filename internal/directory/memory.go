package directory

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Directory. It is used by tests and by
// single-node deployments that do not need history across restarts.
type Memory struct {
	mu sync.RWMutex

	users    map[string]*User
	messages map[int64]*Message
	records  map[int64]*ToxicMessageRecord
	reports  map[int64]*Report

	nextUser    int64
	nextMessage int64
	nextRecord  int64
	nextReport  int64

	now func() time.Time
}

// NewMemory returns an empty in-memory Directory.
func NewMemory() *Memory {
	return &Memory{
		users:    make(map[string]*User),
		messages: make(map[int64]*Message),
		records:  make(map[int64]*ToxicMessageRecord),
		reports:  make(map[int64]*Report),
		now:      time.Now,
	}
}

func (m *Memory) GetUser(_ context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[username]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) ListUsersInRoom(_ context.Context, room string) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]User, 0)
	for _, u := range m.users {
		if u.Room == room {
			users = append(users, *u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (m *Memory) CreateUser(_ context.Context, username, room string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[username]; ok {
		return nil, ErrUserExists
	}
	m.nextUser++
	u := &User{ID: m.nextUser, Username: username, Room: room}
	m.users[username] = u
	cp := *u
	return &cp, nil
}

func (m *Memory) DeleteUser(_ context.Context, username string) error {
	m.mu.Lock()
	delete(m.users, username)
	m.mu.Unlock()
	return nil
}

func (m *Memory) SetToxicityScore(_ context.Context, username string, score int) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[username]
	if !ok {
		return nil, ErrNotFound
	}
	u.ToxicityScore = ClampScore(score)
	cp := *u
	return &cp, nil
}

func (m *Memory) PurgeUsers(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := int64(len(m.users))
	m.users = make(map[string]*User)
	return n, nil
}

func (m *Memory) CreateMessage(_ context.Context, msg Message) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextMessage++
	msg.ID = m.nextMessage
	if msg.Timestamp == "" {
		msg.Timestamp = FormatTimestamp(m.now())
	}
	stored := msg
	m.messages[msg.ID] = &stored
	return &msg, nil
}

func (m *Memory) GetMessage(_ context.Context, id int64) (*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msg, ok := m.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

func (m *Memory) ListMessages(_ context.Context, room string, limit int) ([]Message, error) {
	limit = NormalizeLimit(limit)

	m.mu.RLock()
	msgs := make([]Message, 0)
	for _, msg := range m.messages {
		if msg.Room == room {
			msgs = append(msgs, *msg)
		}
	}
	m.mu.RUnlock()

	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].Timestamp != msgs[j].Timestamp {
			return msgs[i].Timestamp < msgs[j].Timestamp
		}
		return msgs[i].ID < msgs[j].ID
	})
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (m *Memory) DeleteMessagesInRoom(_ context.Context, room string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, msg := range m.messages {
		if msg.Room != room {
			continue
		}
		delete(m.messages, id)
		n++
		for rid, rec := range m.records {
			if rec.MessageID != nil && *rec.MessageID == id {
				delete(m.records, rid)
			}
		}
		for rid, r := range m.reports {
			if r.MessageID == id {
				delete(m.reports, rid)
			}
		}
	}
	return n, nil
}

func (m *Memory) CreateToxicMessageRecord(_ context.Context, rec ToxicMessageRecord) (*ToxicMessageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.MessageID != nil {
		if _, ok := m.messages[*rec.MessageID]; !ok {
			return nil, ErrNotFound
		}
	}
	m.nextRecord++
	rec.ID = m.nextRecord
	rec.ToxicityScore = ClampScore(rec.ToxicityScore)
	rec.Timestamp = m.now().UTC()
	stored := rec
	m.records[rec.ID] = &stored
	return &rec, nil
}

func (m *Memory) ListToxicMessagesForUser(_ context.Context, username string, limit int) ([]ToxicMessageRecord, error) {
	limit = NormalizeLimit(limit)

	m.mu.RLock()
	recs := make([]ToxicMessageRecord, 0)
	for _, rec := range m.records {
		if rec.Username == username {
			recs = append(recs, *rec)
		}
	}
	m.mu.RUnlock()

	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].Timestamp.Equal(recs[j].Timestamp) {
			return recs[i].Timestamp.After(recs[j].Timestamp)
		}
		return recs[i].ID > recs[j].ID
	})
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func (m *Memory) CreateReport(_ context.Context, r Report) (*Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.messages[r.MessageID]; !ok {
		return nil, ErrNotFound
	}
	if r.Status == "" {
		r.Status = ReportPending
	}
	if !r.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	m.nextReport++
	r.ID = m.nextReport
	r.Timestamp = m.now().UTC()
	stored := r
	m.reports[r.ID] = &stored
	return &r, nil
}

func (m *Memory) ListReportsForMessage(_ context.Context, messageID int64) ([]Report, error) {
	m.mu.RLock()
	reports := make([]Report, 0)
	for _, r := range m.reports {
		if r.MessageID == messageID {
			reports = append(reports, *r)
		}
	}
	m.mu.RUnlock()

	sortReportsNewestFirst(reports)
	return reports, nil
}

func (m *Memory) UpdateReportStatus(_ context.Context, id int64, status ReportStatus) (*Report, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reports[id]
	if !ok {
		return nil, ErrNotFound
	}
	r.Status = status
	cp := *r
	return &cp, nil
}

func (m *Memory) ListReportsForRoom(_ context.Context, room string, limit int) ([]Report, error) {
	limit = NormalizeLimit(limit)

	m.mu.RLock()
	reports := make([]Report, 0)
	for _, r := range m.reports {
		if msg, ok := m.messages[r.MessageID]; ok && msg.Room == room {
			reports = append(reports, *r)
		}
	}
	m.mu.RUnlock()

	sortReportsNewestFirst(reports)
	if len(reports) > limit {
		reports = reports[:limit]
	}
	return reports, nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}

func sortReportsNewestFirst(reports []Report) {
	sort.Slice(reports, func(i, j int) bool {
		if !reports[i].Timestamp.Equal(reports[j].Timestamp) {
			return reports[i].Timestamp.After(reports[j].Timestamp)
		}
		return reports[i].ID > reports[j].ID
	})
}
