package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"crosslock/core/events"
	"crosslock/core/types"
)

var errNilState = errors.New("escrow engine: state not configured")

// engineState is the ledger surface the engine needs: instance records plus
// account balances. The host supplies an implementation and serializes
// state-mutating calls per instance; the engine itself holds no locks.
type engineState interface {
	InstancePut(*Instance) error
	InstanceGet(addr [20]byte) (*Instance, bool)
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error
}

// AccessChecker is the host capability check gating public entrypoints when
// an escrow records an access token.
type AccessChecker interface {
	HoldsAccessToken(caller [20]byte, token TokenAsset) bool
}

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// Engine executes escrow entrypoints against external ledger state. Both
// sides of a swap run through the same engine; the differences live entirely
// in the side's role policy.
type Engine struct {
	state   engineState
	emitter events.Emitter
	tokens  TokenCaller
	access  AccessChecker
	nowFn   func() int64
}

// NewEngine creates an engine with a no-op emitter and wall-clock time.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the ledger state backend.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTokenCaller configures the token-contract dispatcher used for
// non-native assets.
func (e *Engine) SetTokenCaller(tokens TokenCaller) { e.tokens = tokens }

// SetAccessChecker configures the capability check for public entrypoints.
func (e *Engine) SetAccessChecker(access AccessChecker) { e.access = access }

// SetNowFunc overrides the time source, mainly for deterministic tests.
// Passing nil restores the wall clock.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(escrowEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) loadInstance(addr [20]byte) (*Instance, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	inst, ok := e.state.InstanceGet(addr)
	if !ok {
		return nil, ErrNotFound
	}
	return inst, nil
}

func (e *Engine) storeInstance(inst *Instance) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.InstancePut(inst)
}

// Instance returns the stored escrow at addr.
func (e *Engine) Instance(addr [20]byte) (*Instance, error) {
	return e.loadInstance(addr)
}

func checkFlags(inst *Instance) error {
	if inst.Withdrawn {
		return ErrAlreadyWithdrawn
	}
	if inst.Cancelled {
		return ErrAlreadyCancelled
	}
	return nil
}

func (e *Engine) checkPublicCaller(inst *Instance, caller [20]byte) error {
	token := inst.Immutables.AccessToken
	if token == nil {
		// No capability recorded: the public window is open to anyone.
		return nil
	}
	if e.access == nil || !e.access.HoldsAccessToken(caller, *token) {
		return fmt.Errorf("%w: access token required", ErrUnauthorized)
	}
	return nil
}

// Withdraw settles the escrow to the side's withdraw recipient and pays the
// safety deposit to the caller. Taker only, private withdrawal window.
func (e *Engine) Withdraw(addr, caller [20]byte, secret []byte) error {
	return e.withdraw(addr, caller, secret, ActionWithdraw, nil)
}

// WithdrawTo settles the locked amount to an explicit target instead of the
// default recipient. Source side only; the safety deposit still goes to the
// caller.
func (e *Engine) WithdrawTo(addr, caller [20]byte, secret []byte, target [20]byte) error {
	return e.withdraw(addr, caller, secret, ActionWithdrawTo, &target)
}

// PublicWithdraw routes funds exactly like Withdraw but is callable by any
// holder of the access capability during the public withdrawal window.
func (e *Engine) PublicWithdraw(addr, caller [20]byte, secret []byte) error {
	return e.withdraw(addr, caller, secret, ActionPublicWithdraw, nil)
}

func (e *Engine) withdraw(addr, caller [20]byte, secret []byte, action Action, target *[20]byte) error {
	inst, err := e.loadInstance(addr)
	if err != nil {
		return err
	}
	im := &inst.Immutables
	pol := inst.Side.policy()
	if action == ActionWithdrawTo && !pol.allowsWithdrawTo {
		return fmt.Errorf("%w: withdraw_to is a source-side action", ErrUnauthorized)
	}
	if action == ActionPublicWithdraw {
		if err := e.checkPublicCaller(inst, caller); err != nil {
			return err
		}
	} else if caller != im.Taker {
		return fmt.Errorf("%w: taker only", ErrUnauthorized)
	}
	// Terminal flags win over timing: a settled escrow reports its state, not
	// a closed window.
	if err := checkFlags(inst); err != nil {
		return err
	}
	if err := im.Timelocks.CheckWindow(action, e.now()); err != nil {
		return err
	}
	if !VerifySecret(secret, im.Hashlock) {
		return ErrInvalidSecret
	}
	recipient := pol.withdrawRecipient(im)
	if target != nil {
		recipient = *target
	}
	if err := e.payout(inst, recipient, caller); err != nil {
		return err
	}
	inst.Withdrawn = true
	// If the flag write fails the funds have already moved; the pre-flight
	// funding check in payout blocks a second drain, so the error surfaces
	// for the host to reconcile the record.
	if err := e.storeInstance(inst); err != nil {
		return err
	}
	e.emit(NewWithdrawnEvent(inst, caller, recipient))
	return nil
}

// Cancel returns the locked amount to the side's cancel recipient and pays
// the safety deposit to the caller. Taker only, cancellation window onwards.
func (e *Engine) Cancel(addr, caller [20]byte) error {
	return e.cancel(addr, caller, ActionCancel)
}

// PublicCancel is Cancel callable by any access-capability holder. Source
// side only; a stuck destination escrow can only be cancelled by its taker.
func (e *Engine) PublicCancel(addr, caller [20]byte) error {
	return e.cancel(addr, caller, ActionPublicCancel)
}

func (e *Engine) cancel(addr, caller [20]byte, action Action) error {
	inst, err := e.loadInstance(addr)
	if err != nil {
		return err
	}
	im := &inst.Immutables
	pol := inst.Side.policy()
	if action == ActionPublicCancel && !pol.allowsPublicCancel {
		return fmt.Errorf("%w: public cancel is a source-side action", ErrUnauthorized)
	}
	if action == ActionPublicCancel {
		if err := e.checkPublicCaller(inst, caller); err != nil {
			return err
		}
	} else if caller != im.Taker {
		return fmt.Errorf("%w: taker only", ErrUnauthorized)
	}
	if err := checkFlags(inst); err != nil {
		return err
	}
	if err := im.Timelocks.CheckWindow(action, e.now()); err != nil {
		return err
	}
	recipient := pol.cancelRecipient(im)
	if err := e.payout(inst, recipient, caller); err != nil {
		return err
	}
	inst.Cancelled = true
	// Same recovery story as withdraw: a failed flag write cannot lead to a
	// second payout because the instance holding is already drained.
	if err := e.storeInstance(inst); err != nil {
		return err
	}
	e.emit(NewCancelledEvent(inst, caller, recipient))
	return nil
}

// RescueFunds sweeps an arbitrary asset out of a stuck escrow to the taker
// once the rescue window opens. It is deliberately not guarded by the
// terminal flags and may run more than once: it is the emergency valve for
// funds stranded by integration errors, not part of the settlement machine.
func (e *Engine) RescueFunds(addr, caller [20]byte, asset Asset, amount *big.Int) error {
	inst, err := e.loadInstance(addr)
	if err != nil {
		return err
	}
	im := &inst.Immutables
	if caller != im.Taker {
		return fmt.Errorf("%w: taker only", ErrUnauthorized)
	}
	if err := im.Timelocks.CheckWindow(ActionRescue, e.now()); err != nil {
		return err
	}
	mover := newAssetTransfer(asset, inst.Address, e.state, e.tokens)
	if err := mover.Transfer(caller, amount); err != nil {
		return err
	}
	e.emit(NewRescuedEvent(inst, caller, asset, amount))
	return nil
}

// payout moves the locked amount to recipient and the safety deposit to the
// executing caller. All fallible checks run before the first balance write,
// so a rejected payout leaves the ledger untouched.
func (e *Engine) payout(inst *Instance, recipient, caller [20]byte) error {
	im := &inst.Immutables
	needed := cloneBigInt(im.SafetyDeposit)
	if im.Asset.IsNative() {
		needed.Add(needed, cloneBigInt(im.Amount))
	}
	if needed.Sign() > 0 {
		holding, err := e.state.GetAccount(inst.Address)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
		holding = ensureAccount(holding)
		if holding.Balance.Cmp(needed) < 0 {
			return fmt.Errorf("%w: escrow not funded", ErrTransferFailed)
		}
	}
	mover := newAssetTransfer(im.Asset, inst.Address, e.state, e.tokens)
	if err := mover.Transfer(recipient, im.Amount); err != nil {
		return err
	}
	deposit := nativeTransfer{state: e.state, from: inst.Address}
	if err := deposit.Transfer(caller, im.SafetyDeposit); err != nil {
		return err
	}
	return nil
}
