package types

import "math/big"

// Account is the ledger record for a single address: the native currency
// balance plus a nonce. Escrow instances are ordinary accounts whose address
// happens to be derived by the factory.
type Account struct {
	Nonce   uint64
	Balance *big.Int
}

// Clone returns a deep copy so callers can mutate the result without touching
// the stored account.
func (a *Account) Clone() *Account {
	if a == nil {
		return &Account{Balance: big.NewInt(0)}
	}
	clone := &Account{Nonce: a.Nonce, Balance: big.NewInt(0)}
	if a.Balance != nil {
		clone.Balance = new(big.Int).Set(a.Balance)
	}
	return clone
}
