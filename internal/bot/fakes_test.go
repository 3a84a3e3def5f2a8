package bot

import (
	"context"
	"sort"
	"sync"
	"time"

	"circularbot/internal/domain"
	"circularbot/internal/storage"
	"circularbot/internal/transport/telegram"
)

// memStore is an in-memory storage.Store for pipeline tests.
type memStore struct {
	mu      sync.Mutex
	records map[string]*domain.Notification

	completeErr error // returned by MarkCompleted when set
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*domain.Notification)}
}

func (m *memStore) ExistsByID(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[id]
	return ok, nil
}

func (m *memStore) ExistsByContent(_ context.Context, title, documentURL, sourceURL string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.records {
		if n.Title == title && (n.DocumentURL == documentURL || n.SourceURL == sourceURL) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) InsertProcessing(_ context.Context, n domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[n.ID]; ok {
		return nil
	}
	n.LastUpdatedAt = time.Now()
	m.records[n.ID] = &n
	return nil
}

func (m *memStore) MarkCompleted(_ context.Context, id string, chatMessageID int64, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completeErr != nil {
		return m.completeErr
	}
	if n, ok := m.records[id]; ok {
		n.Status = domain.StatusCompleted
		n.Sent = true
		n.ChatMessageID = chatMessageID
		n.ChatID = chatID
		n.ErrorMessage = ""
		n.LastUpdatedAt = time.Now()
	}
	return nil
}

func (m *memStore) MarkFailed(_ context.Context, id string, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.records[id]; ok {
		n.Status = domain.StatusFailed
		n.ErrorMessage = errMsg
		n.RetryCount++
		n.LastUpdatedAt = time.Now()
	}
	return nil
}

func (m *memStore) Recent(_ context.Context, limit int) ([]domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Notification
	for _, n := range m.records {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUpdatedAt.After(out[j].LastUpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) Stats(_ context.Context) (storage.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var st storage.Stats
	for _, n := range m.records {
		st.Total++
		switch n.Status {
		case domain.StatusCompleted:
			st.Completed++
		case domain.StatusFailed:
			st.Failed++
		}
	}
	return st, nil
}

func (m *memStore) PurgeOlderThan(context.Context, int) (int64, error) { return 0, nil }
func (m *memStore) Backend() string                                    { return "memory" }
func (m *memStore) Close() error                                       { return nil }

func (m *memStore) get(id string) (domain.Notification, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.records[id]; ok {
		return *n, true
	}
	return domain.Notification{}, false
}

// fakeSender records outgoing messages and can fail on chosen texts.
type fakeSender struct {
	mu     sync.Mutex
	sent   []sentMessage
	nextID int
	failOn func(text string) error
}

type sentMessage struct {
	chatID int64
	text   string
	opts   telegram.SendOptions
}

func (f *fakeSender) SendMessage(_ context.Context, chatID int64, text string, opts telegram.SendOptions) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != nil {
		if err := f.failOn(text); err != nil {
			return 0, err
		}
	}
	f.nextID++
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text, opts: opts})
	return f.nextID, nil
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

// fakeSource serves a fixed candidate list with optional limit.
type fakeSource struct {
	cands []domain.Candidate
	err   error
}

func (f *fakeSource) Fetch(_ context.Context, limit int) ([]domain.Candidate, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := append([]domain.Candidate(nil), f.cands...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// fakePoller replays scripted update batches.
type fakePoller struct {
	mu      sync.Mutex
	batches [][]telegram.Update
	offsets []int64
}

func (f *fakePoller) GetUpdates(_ context.Context, offset int64, _ time.Duration) ([]telegram.Update, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offsets = append(f.offsets, offset)
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

type fakeTranslator struct {
	result string
}

func (f *fakeTranslator) ToEnglish(context.Context, string) string { return f.result }

func candidate(id, title, date string) domain.Candidate {
	return domain.Candidate{
		ID:            id,
		Title:         title,
		Category:      "Circular",
		PublishedDate: date,
		DocumentURL:   "https://example.edu/" + id + ".pdf",
		SourceURL:     "https://example.edu/" + id + ".pdf",
	}
}
