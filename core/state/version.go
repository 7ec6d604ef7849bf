package state

import (
	"errors"
	"fmt"
)

// StateVersion identifies the on-disk record layout. Bump it whenever a
// stored record changes shape.
const StateVersion uint64 = 1

var (
	stateVersionKey = []byte("meta/state-version")
	// ErrStateVersionMismatch indicates the stored schema version does not
	// match the version supported by the current binary.
	ErrStateVersionMismatch = errors.New("state: schema version mismatch")
)

// StateVersion returns the stored schema version and whether it was present.
func (m *Manager) StateVersion() (uint64, bool, error) {
	var stored uint64
	ok, err := m.KVGet(stateVersionKey, &stored)
	if err != nil {
		return 0, false, err
	}
	return stored, ok, nil
}

// EnsureStateVersion stamps an empty ledger with StateVersion and rejects a
// ledger written by an incompatible binary. It reports whether the ledger was
// empty.
func (m *Manager) EnsureStateVersion() (bool, error) {
	stored, ok, err := m.StateVersion()
	if err != nil {
		return false, err
	}
	if !ok {
		return true, m.KVPut(stateVersionKey, StateVersion)
	}
	if stored != StateVersion {
		return false, fmt.Errorf("%w: stored %d, supported %d", ErrStateVersionMismatch, stored, StateVersion)
	}
	return false, nil
}
