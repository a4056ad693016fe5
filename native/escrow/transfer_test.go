package escrow

import (
	"errors"
	"math/big"
	"testing"

	"crosslock/core/types"
)

func TestNewAssetTransferSelectsPath(t *testing.T) {
	state := newMockState()
	if _, ok := newAssetTransfer(NativeAsset(), escrowAddr, state, nil).(nativeTransfer); !ok {
		t.Fatal("native asset must settle through the ledger")
	}
	if _, ok := newAssetTransfer(NewTokenAsset(testAddr(0x55), 1), escrowAddr, state, nil).(tokenTransfer); !ok {
		t.Fatal("token asset must settle through the token contract")
	}
}

func TestNativeTransferMovesBalance(t *testing.T) {
	state := newMockState()
	state.accounts[escrowAddr] = &types.Account{Balance: big.NewInt(100)}

	mover := nativeTransfer{state: state, from: escrowAddr}
	if err := mover.Transfer(otherAddr, big.NewInt(60)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := state.balance(escrowAddr); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("sender = %s, want 40", got)
	}
	if got := state.balance(otherAddr); got.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("recipient = %s, want 60", got)
	}
}

func TestNativeTransferInsufficientBalance(t *testing.T) {
	state := newMockState()
	state.accounts[escrowAddr] = &types.Account{Balance: big.NewInt(10)}

	mover := nativeTransfer{state: state, from: escrowAddr}
	if err := mover.Transfer(otherAddr, big.NewInt(60)); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("err = %v, want ErrTransferFailed", err)
	}
	if got := state.balance(escrowAddr); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("sender balance changed: %s", got)
	}
}

func TestNativeTransferSelfAndZeroAreNoops(t *testing.T) {
	state := newMockState()
	state.accounts[escrowAddr] = &types.Account{Balance: big.NewInt(100)}
	mover := nativeTransfer{state: state, from: escrowAddr}

	if err := mover.Transfer(escrowAddr, big.NewInt(60)); err != nil {
		t.Fatalf("self transfer: %v", err)
	}
	if err := mover.Transfer(otherAddr, big.NewInt(0)); err != nil {
		t.Fatalf("zero transfer: %v", err)
	}
	if err := mover.Transfer(otherAddr, nil); err != nil {
		t.Fatalf("nil transfer: %v", err)
	}
	if got := state.balance(escrowAddr); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("balance moved on no-op: %s", got)
	}
}

func TestNativeTransferRestoresOnPutFailure(t *testing.T) {
	state := newMockState()
	state.accounts[escrowAddr] = &types.Account{Balance: big.NewInt(100)}
	state.failAccountPut[otherAddr] = true

	mover := nativeTransfer{state: state, from: escrowAddr}
	if err := mover.Transfer(otherAddr, big.NewInt(60)); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("err = %v, want ErrTransferFailed", err)
	}
	if got := state.balance(escrowAddr); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("debited balance not restored: %s", got)
	}
}

func TestTokenTransferDispatch(t *testing.T) {
	tokens := &recordingTokenCaller{}
	mover := tokenTransfer{caller: tokens, token: TokenAsset{Address: testAddr(0x55), TokenID: 3}, from: escrowAddr}

	if err := mover.Transfer(otherAddr, big.NewInt(250)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if len(tokens.batches) != 1 {
		t.Fatalf("want 1 batch, got %d", len(tokens.batches))
	}
	tx := tokens.batches[0][0].Txs[0]
	if tx.To != otherAddr || tx.TokenID != 3 || tx.Amount.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("unexpected batch entry: %+v", tx)
	}

	// A zero amount skips the contract call entirely.
	if err := mover.Transfer(otherAddr, big.NewInt(0)); err != nil {
		t.Fatalf("zero transfer: %v", err)
	}
	if len(tokens.batches) != 1 {
		t.Fatal("zero transfer must not reach the token contract")
	}
}

func TestTokenTransferRequiresCaller(t *testing.T) {
	mover := tokenTransfer{token: TokenAsset{Address: testAddr(0x55)}, from: escrowAddr}
	if err := mover.Transfer(otherAddr, big.NewInt(1)); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("err = %v, want ErrTransferFailed", err)
	}
}
