package store

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"sync"

	"qe2ee/internal/domain"
)

const (
	accountsDir = "accounts"
	sessionsDir = "sessions"
)

// FileStore keeps one JSON file per account and one per (account, peer)
// under dir.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

func NewFileStore(dir string) *FileStore { return &FileStore{dir: dir} }

// Dir is the root directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) accountPath(accountID string) string {
	return filepath.Join(s.dir, accountsDir, url.PathEscape(accountID)+".json")
}

func (s *FileStore) sessionsPath(accountID, senderKey string) string {
	return filepath.Join(s.dir, sessionsDir, url.PathEscape(accountID), url.PathEscape(senderKey)+".json")
}

func (s *FileStore) SaveAccount(_ context.Context, rec domain.AccountRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeJSON(s.accountPath(rec.AccountID), rec); err != nil {
		return fmt.Errorf("store: save account %s: %w", rec.AccountID, err)
	}
	return nil
}

func (s *FileStore) LoadAccount(_ context.Context, accountID string) (domain.AccountRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rec domain.AccountRecord
	ok, err := readJSON(s.accountPath(accountID), &rec)
	if err != nil {
		return domain.AccountRecord{}, false, fmt.Errorf("store: load account %s: %w", accountID, err)
	}
	return rec, ok, nil
}

func (s *FileStore) SaveSession(_ context.Context, accountID, senderKey, sessionID string, pickle []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.sessionsPath(accountID, senderKey)
	sessions := map[string]domain.SessionRecord{}
	if _, err := readJSON(path, &sessions); err != nil {
		return fmt.Errorf("store: read sessions: %w", err)
	}
	rec, ok := sessions[sessionID]
	if !ok {
		rec = domain.SessionRecord{SessionID: sessionID, Seq: nextSeq(sessions)}
	}
	rec.Pickle = pickle
	sessions[sessionID] = rec
	if err := writeJSON(path, sessions); err != nil {
		return fmt.Errorf("store: save session %s: %w", sessionID, err)
	}
	return nil
}

func (s *FileStore) LoadSessions(_ context.Context, accountID, senderKey string) ([]domain.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions := map[string]domain.SessionRecord{}
	if _, err := readJSON(s.sessionsPath(accountID, senderKey), &sessions); err != nil {
		return nil, fmt.Errorf("store: load sessions: %w", err)
	}
	out := make([]domain.SessionRecord, 0, len(sessions))
	for _, rec := range sessions {
		out = append(out, rec)
	}
	sortBySeq(out)
	return out, nil
}

func (s *FileStore) DeleteSession(_ context.Context, accountID, senderKey, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.sessionsPath(accountID, senderKey)
	sessions := map[string]domain.SessionRecord{}
	ok, err := readJSON(path, &sessions)
	if err != nil || !ok {
		return err
	}
	delete(sessions, sessionID)
	if len(sessions) == 0 {
		return removeFile(path)
	}
	return writeJSON(path, sessions)
}

func (s *FileStore) Close() error { return nil }

func nextSeq(sessions map[string]domain.SessionRecord) int64 {
	var last int64
	for _, rec := range sessions {
		if rec.Seq > last {
			last = rec.Seq
		}
	}
	return last + 1
}

func sortBySeq(recs []domain.SessionRecord) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].Seq < recs[j].Seq })
}

var _ domain.PickleStore = (*FileStore)(nil)
