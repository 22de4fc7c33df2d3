package session

import "sync"

// MemoryStore is a thread-safe in-memory Store. Sessions are lost on
// restart, by design: only long-lived vendor credentials are persisted.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Session
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]Session)}
}

func (s *MemoryStore) Get(token string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.data[token]
	return sess, ok
}

func (s *MemoryStore) Put(token string, sess Session) {
	s.mu.Lock()
	s.data[token] = sess
	s.mu.Unlock()
}

func (s *MemoryStore) Delete(token string) {
	s.mu.Lock()
	delete(s.data, token)
	s.mu.Unlock()
}

func (s *MemoryStore) Tokens() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tokens := make([]string, 0, len(s.data))
	for t := range s.data {
		tokens = append(tokens, t)
	}
	return tokens
}
