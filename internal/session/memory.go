package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory. Sessions do not survive a restart.
type MemoryStore struct {
	mutex    sync.RWMutex
	sessions map[string]Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

// Save ignores ttl; expiry is judged from Session.ExpiresAt when the token is presented.
func (store *MemoryStore) Save(ctx context.Context, token string, session Session, ttl time.Duration) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.sessions[token] = session
	return nil
}

func (store *MemoryStore) Load(ctx context.Context, token string) (Session, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	session, found := store.sessions[token]
	if !found {
		return Session{}, ErrSessionNotFound
	}
	return session, nil
}

func (store *MemoryStore) Delete(ctx context.Context, token string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	delete(store.sessions, token)
	return nil
}
