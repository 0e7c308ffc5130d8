// session/session.go
package session

import (
	"sync"
	"time"

	"github.com/wfunc/petlobby/network"
)

// Session is one admitted client connection.
type Session struct {
	ID            string
	Conn          network.Connection
	SessionID     string // token from the handshake cookie
	Authenticated bool
	CreatedAt     time.Time

	userID string
	mutex  sync.RWMutex
}

func NewSession(id string, conn network.Connection) *Session {
	return &Session{
		ID:        id,
		Conn:      conn,
		CreatedAt: time.Now(),
	}
}

// SetUserID records the account this connection joined via join:user.
func (s *Session) SetUserID(userID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.userID = userID
}

func (s *Session) UserID() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.userID
}

// Send queues an already encoded frame.
func (s *Session) Send(frame []byte) error {
	return s.Conn.Send(frame)
}

// Emit encodes and queues one event.
func (s *Session) Emit(event string, payload interface{}) error {
	frame, err := network.Encode(event, payload)
	if err != nil {
		return err
	}
	return s.Conn.Send(frame)
}

func (s *Session) GetID() string {
	return s.ID
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Manager 管理所有在线连接
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) GetByUserID(userID string) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, session := range m.sessions {
		if session.UserID() == userID {
			result = append(result, session)
		}
	}
	return result
}

// All returns a snapshot of every live session.
func (m *Manager) All() []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	result := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, session)
	}
	return result
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}
