package types

import "math/big"

// Account holds the settlement balance of a ledger participant. Balances are
// moved by marketplace settlement and credited through administrative deposits.
type Account struct {
	Balance *big.Int `json:"balance"`
	Nonce   uint64   `json:"nonce"`
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return &Account{Balance: big.NewInt(0)}
	}
	clone := *a
	if a.Balance != nil {
		clone.Balance = new(big.Int).Set(a.Balance)
	} else {
		clone.Balance = big.NewInt(0)
	}
	return &clone
}
