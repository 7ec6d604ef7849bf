package core

import (
	"math/big"
	"strings"

	"esimchain/core/state"
	"esimchain/native/common"
)

// Deposit credits account with amount on the settlement rail. Admin role
// only; it stands in for off-ledger top-ups.
func (n *Node) Deposit(caller, account [20]byte, amount *big.Int) (*big.Int, error) {
	if account == ([20]byte{}) {
		return nil, ErrInvalidAccount
	}
	var balance *big.Int
	err := n.apply("bank", "deposit", func(l *ledger) error {
		if err := common.RequireRole(l.state, state.RoleAdmin, caller); err != nil {
			return err
		}
		if err := l.state.Credit(account, amount); err != nil {
			return err
		}
		var err error
		balance, err = l.state.Balance(account)
		return err
	})
	return balance, err
}

// Balance returns the settlement balance of account.
func (n *Node) Balance(account [20]byte) (*big.Int, error) {
	var balance *big.Int
	err := n.view(func(l *ledger) error {
		var err error
		balance, err = l.state.Balance(account)
		return err
	})
	return balance, err
}

// GrantRole assigns role to account. Admin role only.
func (n *Node) GrantRole(caller [20]byte, role string, account [20]byte) error {
	return n.setRole(caller, role, account, true)
}

// RevokeRole removes role from account. Admin role only. The last admin
// cannot be revoked.
func (n *Node) RevokeRole(caller [20]byte, role string, account [20]byte) error {
	return n.setRole(caller, role, account, false)
}

func (n *Node) setRole(caller [20]byte, role string, account [20]byte, granted bool) error {
	role = strings.ToLower(strings.TrimSpace(role))
	if role != state.RoleAdmin && role != state.RoleVerifier {
		return ErrUnknownRole
	}
	if account == ([20]byte{}) {
		return ErrInvalidAccount
	}
	op := "grant_role"
	if !granted {
		op = "revoke_role"
	}
	return n.apply("admin", op, func(l *ledger) error {
		if err := common.RequireRole(l.state, state.RoleAdmin, caller); err != nil {
			return err
		}
		if !granted && role == state.RoleAdmin && l.state.HasRole(role, account) {
			members, err := l.state.RoleMembers(role)
			if err != nil {
				return err
			}
			if len(members) <= 1 {
				return ErrLastAdmin
			}
		}
		return l.state.SetRole(role, account, granted)
	})
}

// RoleMembers lists the accounts holding role.
func (n *Node) RoleMembers(role string) ([][20]byte, error) {
	var members [][20]byte
	err := n.view(func(l *ledger) error {
		var err error
		members, err = l.state.RoleMembers(role)
		return err
	})
	return members, err
}

// PauseModule toggles the pause flag of module. Admin role only.
func (n *Node) PauseModule(caller [20]byte, module string, paused bool) error {
	module = strings.ToLower(strings.TrimSpace(module))
	if _, ok := knownModules[module]; !ok {
		return ErrUnknownModule
	}
	return n.apply("admin", "pause_module", func(l *ledger) error {
		if err := common.RequireRole(l.state, state.RoleAdmin, caller); err != nil {
			return err
		}
		return l.state.SetPaused(module, paused)
	})
}
