package core

import (
	"sort"

	coreerrors "esimchain/core/errors"
	"esimchain/core/state"
	"esimchain/native/bandwidth"
	"esimchain/native/benefits"
	"esimchain/native/bridge"
	"esimchain/native/esim"
	"esimchain/native/market"
	"esimchain/native/proof"
)

var (
	// ErrOracleUnavailable wraps failures to obtain a proof verdict.
	ErrOracleUnavailable = coreerrors.New(coreerrors.ClassInternal, "core: proof oracle unavailable")
	// ErrUnknownModule is returned when pausing a module the node does not run.
	ErrUnknownModule = coreerrors.Validation("core: unknown module")
	// ErrUnknownRole is returned when granting a role the node does not define.
	ErrUnknownRole = coreerrors.Validation("core: unknown role")
	// ErrInvalidAccount is returned for zero account arguments.
	ErrInvalidAccount = coreerrors.Validation("core: invalid account")
	// ErrLastAdmin is returned when revoking the only remaining admin.
	ErrLastAdmin = coreerrors.Conflict("core: cannot revoke the last admin")
)

var knownModules = map[string]struct{}{
	proof.ModuleName:     {},
	esim.ModuleName:      {},
	benefits.ModuleName:  {},
	bandwidth.ModuleName: {},
	market.ModuleName:    {},
	bridge.ModuleName:    {},
}

// Modules lists the pausable module names in sorted order.
func Modules() []string {
	out := make([]string, 0, len(knownModules))
	for name := range knownModules {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Roles lists the capability roles the node understands.
func Roles() []string {
	return []string{state.RoleAdmin, state.RoleVerifier}
}
