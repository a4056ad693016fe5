package escrow

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"crosslock/core/events"
	"crosslock/core/types"
)

// factoryState is the ledger surface the factory needs: deploying instance
// records and tracking them in the append-only directory.
type factoryState interface {
	InstancePut(*Instance) error
	InstanceGet(addr [20]byte) (*Instance, bool)
	DirectoryCounter() (uint64, error)
	SetDirectoryCounter(counter uint64) error
	DirectoryPut(counter uint64, addr [20]byte) error
	DirectoryGet(counter uint64) ([20]byte, bool, error)
}

// CreateParams is the typed record accepted by CreateEscrow.
type CreateParams struct {
	Kind          Side
	OrderHash     [32]byte
	Hashlock      [32]byte
	Maker         [20]byte
	Taker         [20]byte
	Asset         Asset
	Amount        *big.Int
	SafetyDeposit *big.Int
	Timelocks     Timelocks
	AccessToken   *TokenAsset
}

// Factory deploys escrow instances and records each under a strictly
// increasing counter, starting at zero. Entries are write-once and never
// reassigned. The factory does not fund instances: the ledger credits
// amount+safety_deposit to the new address separately, and after deployment
// callers talk to the instance directly.
type Factory struct {
	state   factoryState
	address [20]byte
	emitter events.Emitter
	nowFn   func() int64
}

// NewFactory creates a factory anchored at its own ledger address, which
// seeds the derivation of instance addresses.
func NewFactory(address [20]byte) *Factory {
	return &Factory{
		address: address,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the ledger state backend.
func (f *Factory) SetState(state factoryState) { f.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (f *Factory) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		f.emitter = events.NoopEmitter{}
		return
	}
	f.emitter = emitter
}

// SetNowFunc overrides the time source, mainly for deterministic tests.
func (f *Factory) SetNowFunc(now func() int64) {
	if now == nil {
		f.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	f.nowFn = now
}

func (f *Factory) emit(event *types.Event) {
	if f == nil || f.emitter == nil || event == nil {
		return
	}
	f.emitter.Emit(escrowEvent{evt: event})
}

// CreateEscrow validates params, deploys an unfunded instance of the chosen
// side and appends its address to the directory at the current counter.
func (f *Factory) CreateEscrow(params CreateParams) (*Instance, error) {
	if f == nil || f.state == nil {
		return nil, errNilState
	}
	if err := validateCreateParams(&params); err != nil {
		return nil, err
	}
	counter, err := f.state.DirectoryCounter()
	if err != nil {
		return nil, err
	}
	addr := deriveInstanceAddress(f.address, counter)
	if _, ok := f.state.InstanceGet(addr); ok {
		return nil, fmt.Errorf("escrow factory: instance already deployed at counter %d", counter)
	}
	inst := &Instance{
		Address: addr,
		Side:    params.Kind,
		Immutables: Immutables{
			OrderHash:     params.OrderHash,
			Hashlock:      params.Hashlock,
			Maker:         params.Maker,
			Taker:         params.Taker,
			Asset:         params.Asset,
			Amount:        cloneBigInt(params.Amount),
			SafetyDeposit: cloneBigInt(params.SafetyDeposit),
			Timelocks:     params.Timelocks,
			AccessToken:   params.AccessToken,
		},
		CreatedAt: f.nowFn(),
	}
	if err := f.state.InstancePut(inst); err != nil {
		return nil, err
	}
	if err := f.state.DirectoryPut(counter, addr); err != nil {
		return nil, err
	}
	if err := f.state.SetDirectoryCounter(counter + 1); err != nil {
		return nil, err
	}
	f.emit(NewDeployedEvent(inst, counter))
	return inst.Clone(), nil
}

// EscrowAddress returns the directory entry recorded at counter.
func (f *Factory) EscrowAddress(counter uint64) ([20]byte, error) {
	if f == nil || f.state == nil {
		return [20]byte{}, errNilState
	}
	addr, ok, err := f.state.DirectoryGet(counter)
	if err != nil {
		return [20]byte{}, err
	}
	if !ok {
		return [20]byte{}, ErrNotFound
	}
	return addr, nil
}

// EscrowCount returns how many instances the factory has deployed.
func (f *Factory) EscrowCount() (uint64, error) {
	if f == nil || f.state == nil {
		return 0, errNilState
	}
	return f.state.DirectoryCounter()
}

func validateCreateParams(p *CreateParams) error {
	if !p.Kind.Valid() {
		return fmt.Errorf("%w: unknown escrow kind %d", ErrInvalidParams, p.Kind)
	}
	if p.Maker == ([20]byte{}) {
		return fmt.Errorf("%w: maker address required", ErrInvalidParams)
	}
	if p.Taker == ([20]byte{}) {
		return fmt.Errorf("%w: taker address required", ErrInvalidParams)
	}
	if p.Hashlock == ([32]byte{}) {
		return fmt.Errorf("%w: hashlock commitment required", ErrInvalidParams)
	}
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidParams)
	}
	if p.SafetyDeposit != nil && p.SafetyDeposit.Sign() < 0 {
		return fmt.Errorf("%w: safety deposit must be non-negative", ErrInvalidParams)
	}
	return p.Timelocks.Validate(p.Kind)
}

// deriveInstanceAddress derives a fresh instance address from the factory's
// own address and the deployment counter, so addresses are deterministic and
// collision-free within one factory.
func deriveInstanceAddress(factory [20]byte, counter uint64) [20]byte {
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], counter)
	digest := ethcrypto.Keccak256(factory[:], nonce[:])
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr
}
