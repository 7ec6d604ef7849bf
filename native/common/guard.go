package common

import (
	coreerrors "esimchain/core/errors"
)

var (
	ErrModulePaused = coreerrors.Conflict("module paused")
	// ErrCapabilityMissing is returned when the caller lacks the role an
	// operation requires.
	ErrCapabilityMissing = coreerrors.Authorization("capability missing")
)

type PauseView interface {
	IsPaused(module string) bool
}

type RoleView interface {
	HasRole(role string, addr [20]byte) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// RequireRole rejects callers that do not hold role. A nil view denies every
// caller.
func RequireRole(r RoleView, role string, caller [20]byte) error {
	if r == nil || caller == ([20]byte{}) {
		return ErrCapabilityMissing
	}
	if !r.HasRole(role, caller) {
		return ErrCapabilityMissing
	}
	return nil
}
