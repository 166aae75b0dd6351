package auth

import (
	"context"
	"sync"

	"github.com/octabyte/mmm-dashboard/enums"
)

// StaticSource always returns the same token.
type StaticSource struct {
	Token string
}

func (s StaticSource) Session(context.Context) (*Session, error) {
	if s.Token == "" {
		return nil, nil
	}
	return SessionFromJWT(s.Token), nil
}

// MemorySource is an in-process session holder that notifies subscribers of
// every change, standing in for the identity provider's client library.
type MemorySource struct {
	mu      sync.RWMutex
	session *Session
	subs    map[int]chan SessionEvent
	nextID  int
}

func NewMemorySource() *MemorySource {
	return &MemorySource{subs: make(map[int]chan SessionEvent)}
}

func (m *MemorySource) Session(context.Context) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil, nil
	}
	s := *m.session
	return &s, nil
}

// Set installs a session, publishing signed_in or token_refreshed.
func (m *MemorySource) Set(s Session) {
	m.mu.Lock()
	kind := enums.SessionSignedIn
	if m.session != nil {
		kind = enums.SessionTokenRefreshed
	}
	m.session = &s
	cp := s
	m.publishLocked(SessionEvent{Kind: kind, Session: &cp})
	m.mu.Unlock()
}

// Clear removes the session, publishing signed_out.
func (m *MemorySource) Clear() {
	m.mu.Lock()
	m.session = nil
	m.publishLocked(SessionEvent{Kind: enums.SessionSignedOut})
	m.mu.Unlock()
}

// SignOut satisfies the sign-out hook signature used by the context store.
func (m *MemorySource) SignOut(context.Context) error {
	m.Clear()
	return nil
}

// Subscribe returns a channel of future events. Slow subscribers lose the
// oldest pending event rather than blocking publishers.
func (m *MemorySource) Subscribe() (<-chan SessionEvent, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	ch := make(chan SessionEvent, 8)
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			close(ch)
			m.mu.Unlock()
		})
	}
}

func (m *MemorySource) publishLocked(ev SessionEvent) {
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}
