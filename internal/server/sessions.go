package server

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"scenetalk/internal/assembler"
	"scenetalk/internal/dialogue"
)

// ErrSessionNotFound signals a missing or expired session.
var ErrSessionNotFound = errors.New("session not found")

// Session holds one generated script and, once synthesized, its audio
// result. Everything is session-scoped: when the session goes away so do
// the files, via the assembler's working directory.
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Scene     string
	Document  dialogue.Document
	Assembler *assembler.Assembler
	Result    *assembler.Result
	Flash     string
}

// SessionStore is an in-memory, mutex-guarded session map. Nothing is
// persisted across restarts.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

// NewSessionStore constructs an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[uuid.UUID]*Session)}
}

// Create registers a new session for a generated document.
func (s *SessionStore) Create(scene string, doc dialogue.Document) *Session {
	sess := &Session{
		ID:        uuid.New(),
		CreatedAt: time.Now().UTC(),
		Scene:     scene,
		Document:  doc,
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess
}

// Get looks a session up by id.
func (s *SessionStore) Get(id uuid.UUID) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// List returns sessions newest-first.
func (s *SessionStore) List() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Delete removes a session and releases its working directory.
func (s *SessionStore) Delete(id uuid.UUID) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	if sess.Assembler != nil {
		return sess.Assembler.Close()
	}
	return nil
}

// Close releases every session's working directory. Called on shutdown.
func (s *SessionStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if sess.Assembler != nil {
			sess.Assembler.Close()
		}
		delete(s.sessions, id)
	}
}
