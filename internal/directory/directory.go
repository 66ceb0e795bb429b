// Package directory tracks which participants are currently connected. The
// relay owns the authoritative copy; engines keep a mirror fed by roster
// events. Call logic queries it by identity and never holds its own lists.
package directory

import (
	"sync"

	"github.com/omitech/livetalk/internal/signal"
)

// Directory answers identity lookups for connected participants.
type Directory interface {
	Client(socketID string) (signal.ClientInfo, bool)
	Admin(socketID string) (signal.AdminInfo, bool)
	AdminByPhone(phone string) (signal.AdminInfo, bool)
	Clients() []signal.ClientInfo
	Admins() []signal.AdminInfo
	// Known reports whether socketID is a connected participant of either role.
	Known(socketID string) bool
}

// Memory is an in-memory Directory safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	clients map[string]signal.ClientInfo
	admins  map[string]signal.AdminInfo
}

func NewMemory() *Memory {
	return &Memory{
		clients: make(map[string]signal.ClientInfo),
		admins:  make(map[string]signal.AdminInfo),
	}
}

func (m *Memory) PutClient(info signal.ClientInfo) {
	m.mu.Lock()
	m.clients[info.SocketID] = info
	m.mu.Unlock()
}

func (m *Memory) PutAdmin(info signal.AdminInfo) {
	m.mu.Lock()
	m.admins[info.SocketID] = info
	m.mu.Unlock()
}

// ResetClients replaces the whole client roster, as delivered by a snapshot
// event on registration.
func (m *Memory) ResetClients(infos []signal.ClientInfo) {
	m.mu.Lock()
	m.clients = make(map[string]signal.ClientInfo, len(infos))
	for _, info := range infos {
		m.clients[info.SocketID] = info
	}
	m.mu.Unlock()
}

// ResetAdmins replaces the whole admin roster.
func (m *Memory) ResetAdmins(infos []signal.AdminInfo) {
	m.mu.Lock()
	m.admins = make(map[string]signal.AdminInfo, len(infos))
	for _, info := range infos {
		m.admins[info.SocketID] = info
	}
	m.mu.Unlock()
}

// Remove drops socketID from whichever roster holds it.
func (m *Memory) Remove(socketID string) {
	m.mu.Lock()
	delete(m.clients, socketID)
	delete(m.admins, socketID)
	m.mu.Unlock()
}

func (m *Memory) Client(socketID string) (signal.ClientInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.clients[socketID]
	return info, ok
}

func (m *Memory) Admin(socketID string) (signal.AdminInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.admins[socketID]
	return info, ok
}

func (m *Memory) AdminByPhone(phone string) (signal.AdminInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, info := range m.admins {
		if info.PhoneNumber == phone {
			return info, true
		}
	}
	return signal.AdminInfo{}, false
}

func (m *Memory) Clients() []signal.ClientInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]signal.ClientInfo, 0, len(m.clients))
	for _, info := range m.clients {
		out = append(out, info)
	}
	return out
}

func (m *Memory) Admins() []signal.AdminInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]signal.AdminInfo, 0, len(m.admins))
	for _, info := range m.admins {
		out = append(out, info)
	}
	return out
}

func (m *Memory) Known(socketID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, c := m.clients[socketID]
	_, a := m.admins[socketID]
	return c || a
}
