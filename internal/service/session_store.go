package service

import "sync"

// SessionStore 프로세스 내 세션 보관소
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*DuelSession
}

// NewSessionStore 세션 보관소 생성
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*DuelSession)}
}

func (s *SessionStore) Add(ds *DuelSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[ds.ID()] = ds
}

func (s *SessionStore) Get(id string) (*DuelSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds, ok := s.sessions[id]
	return ds, ok
}

func (s *SessionStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// List 현재 세션 목록 (스냅샷)
func (s *SessionStore) List() []*DuelSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*DuelSession, 0, len(s.sessions))
	for _, ds := range s.sessions {
		out = append(out, ds)
	}
	return out
}

// ForUser userID가 참가한 세션 목록
func (s *SessionStore) ForUser(userID string) []*DuelSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*DuelSession
	for _, ds := range s.sessions {
		if ds.HasParticipant(userID) {
			out = append(out, ds)
		}
	}
	return out
}

// IDs 보관 중인 세션 ID
func (s *SessionStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}
