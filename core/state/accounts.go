package state

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	coreerrors "esimchain/core/errors"
	"esimchain/core/types"
)

var (
	// ErrInsufficientBalance is returned when a settlement transfer exceeds the
	// payer's balance.
	ErrInsufficientBalance = coreerrors.Exhausted("bank: insufficient balance")
	// ErrInvalidAmount is returned for negative or missing amounts.
	ErrInvalidAmount = coreerrors.Validation("bank: invalid amount")
	// ErrBalanceOverflow is returned when a credit would exceed 256 bits.
	ErrBalanceOverflow = coreerrors.Validation("bank: balance overflow")
)

type storedAccount struct {
	Balance *big.Int
	Nonce   uint64
}

func accountKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("bank/account/%x", addr))
}

// GetAccount loads the settlement account for addr. Unknown accounts are
// returned with a zero balance.
func (m *Manager) GetAccount(addr [20]byte) (*types.Account, error) {
	var stored storedAccount
	ok, err := m.KVGet(accountKey(addr), &stored)
	if err != nil {
		return nil, err
	}
	if !ok || stored.Balance == nil {
		stored.Balance = big.NewInt(0)
	}
	return &types.Account{Balance: stored.Balance, Nonce: stored.Nonce}, nil
}

// PutAccount persists the settlement account under addr.
func (m *Manager) PutAccount(addr [20]byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("nil account")
	}
	balance := account.Balance
	if balance == nil {
		balance = big.NewInt(0)
	}
	if balance.Sign() < 0 {
		return ErrInvalidAmount
	}
	if _, overflow := uint256.FromBig(balance); overflow {
		return ErrBalanceOverflow
	}
	return m.KVPut(accountKey(addr), &storedAccount{Balance: new(big.Int).Set(balance), Nonce: account.Nonce})
}

// Balance returns the settlement balance of addr.
func (m *Manager) Balance(addr [20]byte) (*big.Int, error) {
	account, err := m.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(account.Balance), nil
}

// Credit adds amount to addr's balance.
func (m *Manager) Credit(addr [20]byte, amount *big.Int) error {
	delta, err := toUint256(amount)
	if err != nil {
		return err
	}
	account, err := m.GetAccount(addr)
	if err != nil {
		return err
	}
	current, err := toUint256(account.Balance)
	if err != nil {
		return err
	}
	next, overflow := new(uint256.Int).AddOverflow(current, delta)
	if overflow {
		return ErrBalanceOverflow
	}
	account.Balance = next.ToBig()
	return m.PutAccount(addr, account)
}

// Transfer moves amount from one settlement account to another. Zero amounts
// are accepted and leave both balances untouched.
func (m *Manager) Transfer(from, to [20]byte, amount *big.Int) error {
	delta, err := toUint256(amount)
	if err != nil {
		return err
	}
	if delta.IsZero() || from == to {
		return nil
	}
	fromAcc, err := m.GetAccount(from)
	if err != nil {
		return err
	}
	fromBal, err := toUint256(fromAcc.Balance)
	if err != nil {
		return err
	}
	if fromBal.Lt(delta) {
		return ErrInsufficientBalance
	}
	fromAcc.Balance = new(uint256.Int).Sub(fromBal, delta).ToBig()
	if err := m.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return m.Credit(to, amount)
}

func toUint256(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, ErrBalanceOverflow
	}
	return out, nil
}
