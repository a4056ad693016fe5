package escrow

import (
	"fmt"
	"math/big"

	"crosslock/core/types"
)

// TokenTx is one movement inside a token-contract transfer batch.
type TokenTx struct {
	To      [20]byte
	TokenID uint64
	Amount  *big.Int
}

// TokenTransfer is the standard batch message dispatched to token contracts:
// move each entry in Txs out of From's holding.
type TokenTransfer struct {
	From [20]byte
	Txs  []TokenTx
}

// TokenCaller dispatches transfer batches to a token contract. The host
// implements it; a missing implementation or a failed call rejects the
// enclosing escrow operation.
type TokenCaller interface {
	TokenTransfer(contract [20]byte, batch []TokenTransfer) error
}

// BalanceState is the slice of ledger state needed to move native value.
type BalanceState interface {
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error
}

// AssetTransfer moves a quantity of a single asset out of an escrow's own
// holding. One implementation exists per settlement path, selected by the
// asset descriptor, so entrypoints never branch on the asset kind.
type AssetTransfer interface {
	Transfer(recipient [20]byte, amount *big.Int) error
}

// newAssetTransfer selects the settlement path for the asset held at holder.
func newAssetTransfer(asset Asset, holder [20]byte, state BalanceState, tokens TokenCaller) AssetTransfer {
	if asset.IsNative() {
		return nativeTransfer{state: state, from: holder}
	}
	return tokenTransfer{caller: tokens, token: *asset.Token, from: holder}
}

type nativeTransfer struct {
	state BalanceState
	from  [20]byte
}

func (n nativeTransfer) Transfer(recipient [20]byte, amount *big.Int) error {
	if n.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() < 0 {
		return fmt.Errorf("%w: negative amount", ErrTransferFailed)
	}
	if amt.Sign() == 0 || recipient == n.from {
		return nil
	}
	fromAcc, err := n.state.GetAccount(n.from)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	toAcc, err := n.state.GetAccount(recipient)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	fromAcc = ensureAccount(fromAcc)
	toAcc = ensureAccount(toAcc)
	if fromAcc.Balance.Cmp(amt) < 0 {
		return fmt.Errorf("%w: insufficient balance", ErrTransferFailed)
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := n.state.PutAccount(n.from, fromAcc); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := n.state.PutAccount(recipient, toAcc); err != nil {
		// Restore the debited side so a half-applied move never persists.
		fromAcc.Balance = new(big.Int).Add(fromAcc.Balance, amt)
		_ = n.state.PutAccount(n.from, fromAcc)
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	return nil
}

type tokenTransfer struct {
	caller TokenCaller
	token  TokenAsset
	from   [20]byte
}

func (t tokenTransfer) Transfer(recipient [20]byte, amount *big.Int) error {
	if t.caller == nil {
		return fmt.Errorf("%w: no token caller configured", ErrTransferFailed)
	}
	amt := cloneBigInt(amount)
	if amt.Sign() < 0 {
		return fmt.Errorf("%w: negative amount", ErrTransferFailed)
	}
	if amt.Sign() == 0 {
		return nil
	}
	batch := []TokenTransfer{{
		From: t.from,
		Txs:  []TokenTx{{To: recipient, TokenID: t.token.TokenID, Amount: amt}},
	}}
	if err := t.caller.TokenTransfer(t.token.Address, batch); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	return nil
}

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return &types.Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}
