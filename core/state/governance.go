package state

import (
	"fmt"
	"strings"
)

// Role names recognised by the ledger.
const (
	RoleAdmin    = "admin"
	RoleVerifier = "verifier"
)

func roleKey(role string, addr [20]byte) []byte {
	return []byte(fmt.Sprintf("gov/role/%s/%x", strings.ToLower(strings.TrimSpace(role)), addr))
}

func roleMembersKey(role string) []byte {
	return []byte(fmt.Sprintf("gov/role-members/%s", strings.ToLower(strings.TrimSpace(role))))
}

func pauseKey(module string) []byte {
	return []byte(fmt.Sprintf("gov/pause/%s", strings.ToLower(strings.TrimSpace(module))))
}

// HasRole reports whether addr holds role. Storage errors are treated as a
// missing role.
func (m *Manager) HasRole(role string, addr [20]byte) bool {
	var granted bool
	ok, err := m.KVGet(roleKey(role, addr), &granted)
	if err != nil || !ok {
		return false
	}
	return granted
}

// SetRole grants or revokes role for addr and maintains the member list.
func (m *Manager) SetRole(role string, addr [20]byte, granted bool) error {
	if strings.TrimSpace(role) == "" {
		return fmt.Errorf("role must not be empty")
	}
	members, err := m.RoleMembers(role)
	if err != nil {
		return err
	}
	idx := -1
	for i, member := range members {
		if member == addr {
			idx = i
			break
		}
	}
	switch {
	case granted && idx < 0:
		members = append(members, addr)
	case !granted && idx >= 0:
		members = append(members[:idx], members[idx+1:]...)
	}
	if err := m.KVPut(roleMembersKey(role), members); err != nil {
		return err
	}
	if !granted {
		return m.KVDelete(roleKey(role, addr))
	}
	return m.KVPut(roleKey(role, addr), true)
}

// RoleMembers lists the accounts currently holding role in grant order.
func (m *Manager) RoleMembers(role string) ([][20]byte, error) {
	var members [][20]byte
	if _, err := m.KVGet(roleMembersKey(role), &members); err != nil {
		return nil, err
	}
	return members, nil
}

// IsPaused reports whether module is paused.
func (m *Manager) IsPaused(module string) bool {
	var paused bool
	ok, err := m.KVGet(pauseKey(module), &paused)
	if err != nil || !ok {
		return false
	}
	return paused
}

// SetPaused toggles the pause flag of module.
func (m *Manager) SetPaused(module string, paused bool) error {
	if strings.TrimSpace(module) == "" {
		return fmt.Errorf("module must not be empty")
	}
	return m.KVPut(pauseKey(module), paused)
}
