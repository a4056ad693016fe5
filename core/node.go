package core

import (
	"fmt"
	"log/slog"
	"math/big"
	"path/filepath"
	"sync"
	"time"

	"crosslock/config"
	"crosslock/core/events"
	"crosslock/core/state"
	"crosslock/native/escrow"
	"crosslock/observability"
	"crosslock/storage"
)

// Node hosts the escrow factory and engine over a persistent ledger. It owns
// the database handle and serializes all state-mutating operations behind one
// mutex, so the engine and factory themselves stay lock-free.
type Node struct {
	mu sync.Mutex

	db          storage.Database
	factoryAddr [20]byte
	emitter     events.Emitter
	tokens      escrow.TokenCaller
	access      escrow.AccessChecker
	nowFn       func() int64
	logger      *slog.Logger
	metrics     *observability.EscrowMetrics
}

// NewNode creates a node over db with the factory anchored at factoryAddr.
func NewNode(db storage.Database, factoryAddr [20]byte) *Node {
	return &Node{
		db:          db,
		factoryAddr: factoryAddr,
		emitter:     events.NoopEmitter{},
		nowFn:       func() int64 { return time.Now().Unix() },
		logger:      slog.Default(),
		metrics:     observability.Escrow(),
	}
}

// SetEmitter configures where escrow events go. Passing nil resets to a no-op.
func (n *Node) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		n.emitter = events.NoopEmitter{}
		return
	}
	n.emitter = emitter
}

// SetTokenCaller configures the dispatcher for token-contract transfers.
func (n *Node) SetTokenCaller(tokens escrow.TokenCaller) { n.tokens = tokens }

// SetAccessChecker configures the capability check for public entrypoints.
func (n *Node) SetAccessChecker(access escrow.AccessChecker) { n.access = access }

// SetNowFunc overrides the time source, mainly for deterministic tests.
func (n *Node) SetNowFunc(now func() int64) {
	if now == nil {
		n.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	n.nowFn = now
}

// SetLogger replaces the node's logger. Passing nil restores the default.
func (n *Node) SetLogger(logger *slog.Logger) {
	if logger == nil {
		n.logger = slog.Default()
		return
	}
	n.logger = logger
}

func (n *Node) manager() *state.Manager {
	return state.NewManager(n.db)
}

func (n *Node) newEscrowEngine() *escrow.Engine {
	engine := escrow.NewEngine()
	engine.SetState(n.manager())
	engine.SetEmitter(n.emitter)
	engine.SetTokenCaller(n.tokens)
	engine.SetAccessChecker(n.access)
	engine.SetNowFunc(n.nowFn)
	return engine
}

func (n *Node) newEscrowFactory() *escrow.Factory {
	factory := escrow.NewFactory(n.factoryAddr)
	factory.SetState(n.manager())
	factory.SetEmitter(n.emitter)
	factory.SetNowFunc(n.nowFn)
	return factory
}

func (n *Node) observe(operation string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	n.metrics.Observe(operation, outcome, time.Since(start).Seconds())
	if err != nil {
		n.logger.Error("escrow operation failed", "operation", operation, "error", err)
		return
	}
	n.logger.Info("escrow operation applied", "operation", operation)
}

// CreateEscrow deploys a new escrow instance through the factory. The
// instance starts unfunded; FundEscrow moves the deposit in.
func (n *Node) CreateEscrow(params escrow.CreateParams) (inst *escrow.Instance, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	start := time.Now()
	defer func() { n.observe("create", start, err) }()
	inst, err = n.newEscrowFactory().CreateEscrow(params)
	return inst, err
}

// FundEscrow moves the escrow's deposit from the funder into the instance's
// holding: the locked amount (when native) plus the safety deposit. Token
// amounts are pulled through the token contract. Only the side's depositor
// may fund: the maker on the source side, the taker on the destination side.
func (n *Node) FundEscrow(addr, funder [20]byte) (err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	start := time.Now()
	defer func() { n.observe("fund", start, err) }()

	mgr := n.manager()
	inst, ok := mgr.InstanceGet(addr)
	if !ok {
		return escrow.ErrNotFound
	}
	if inst.Finalized() {
		if inst.Withdrawn {
			return escrow.ErrAlreadyWithdrawn
		}
		return escrow.ErrAlreadyCancelled
	}
	im := inst.Immutables
	depositor := im.Maker
	if inst.Side == escrow.SideDestination {
		depositor = im.Taker
	}
	if funder != depositor {
		return fmt.Errorf("%w: only the %s-side depositor may fund", escrow.ErrUnauthorized, inst.Side)
	}

	native := new(big.Int)
	if im.SafetyDeposit != nil {
		native.Add(native, im.SafetyDeposit)
	}
	if im.Asset.IsNative() && im.Amount != nil {
		native.Add(native, im.Amount)
	}
	if !im.Asset.IsNative() && n.tokens == nil {
		return fmt.Errorf("%w: no token caller configured", escrow.ErrTransferFailed)
	}
	if err = n.moveNative(mgr, funder, addr, native); err != nil {
		return err
	}
	if !im.Asset.IsNative() {
		batch := []escrow.TokenTransfer{{
			From: funder,
			Txs:  []escrow.TokenTx{{To: addr, TokenID: im.Asset.Token.TokenID, Amount: im.Amount}},
		}}
		if callErr := n.tokens.TokenTransfer(im.Asset.Token.Address, batch); callErr != nil {
			// Give the native leg back so a rejected token pull leaves the
			// funder whole.
			_ = n.moveNative(mgr, addr, funder, native)
			return fmt.Errorf("%w: %v", escrow.ErrTransferFailed, callErr)
		}
	}
	return nil
}

func (n *Node) moveNative(mgr *state.Manager, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 || from == to {
		return nil
	}
	fromAcc, err := mgr.GetAccount(from)
	if err != nil {
		return fmt.Errorf("%w: %v", escrow.ErrTransferFailed, err)
	}
	toAcc, err := mgr.GetAccount(to)
	if err != nil {
		return fmt.Errorf("%w: %v", escrow.ErrTransferFailed, err)
	}
	if fromAcc.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: insufficient balance", escrow.ErrTransferFailed)
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	if err := mgr.PutAccount(from, fromAcc); err != nil {
		return fmt.Errorf("%w: %v", escrow.ErrTransferFailed, err)
	}
	if err := mgr.PutAccount(to, toAcc); err != nil {
		fromAcc.Balance = new(big.Int).Add(fromAcc.Balance, amount)
		_ = mgr.PutAccount(from, fromAcc)
		return fmt.Errorf("%w: %v", escrow.ErrTransferFailed, err)
	}
	return nil
}

// Withdraw settles the escrow at addr with the taker's secret.
func (n *Node) Withdraw(addr, caller [20]byte, secret []byte) (err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	start := time.Now()
	defer func() { n.observe("withdraw", start, err) }()
	err = n.newEscrowEngine().Withdraw(addr, caller, secret)
	return err
}

// WithdrawTo settles a source-side escrow to an explicit target.
func (n *Node) WithdrawTo(addr, caller [20]byte, secret []byte, target [20]byte) (err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	start := time.Now()
	defer func() { n.observe("withdraw_to", start, err) }()
	err = n.newEscrowEngine().WithdrawTo(addr, caller, secret, target)
	return err
}

// PublicWithdraw settles the escrow on behalf of any permitted caller during
// the public withdrawal window.
func (n *Node) PublicWithdraw(addr, caller [20]byte, secret []byte) (err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	start := time.Now()
	defer func() { n.observe("public_withdraw", start, err) }()
	err = n.newEscrowEngine().PublicWithdraw(addr, caller, secret)
	return err
}

// Cancel returns the escrow's funds along the cancellation path.
func (n *Node) Cancel(addr, caller [20]byte) (err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	start := time.Now()
	defer func() { n.observe("cancel", start, err) }()
	err = n.newEscrowEngine().Cancel(addr, caller)
	return err
}

// PublicCancel cancels a source-side escrow on behalf of a permitted caller.
func (n *Node) PublicCancel(addr, caller [20]byte) (err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	start := time.Now()
	defer func() { n.observe("public_cancel", start, err) }()
	err = n.newEscrowEngine().PublicCancel(addr, caller)
	return err
}

// RescueFunds sweeps a stranded asset out of the escrow at addr.
func (n *Node) RescueFunds(addr, caller [20]byte, asset escrow.Asset, amount *big.Int) (err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	start := time.Now()
	defer func() { n.observe("rescue", start, err) }()
	err = n.newEscrowEngine().RescueFunds(addr, caller, asset, amount)
	return err
}

// EscrowGet returns the stored escrow instance at addr.
func (n *Node) EscrowGet(addr [20]byte) (*escrow.Instance, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.newEscrowEngine().Instance(addr)
}

// EscrowAddress returns the address the factory recorded at counter.
func (n *Node) EscrowAddress(counter uint64) ([20]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.newEscrowFactory().EscrowAddress(counter)
}

// EscrowCount returns how many escrows the factory has deployed.
func (n *Node) EscrowCount() (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.newEscrowFactory().EscrowCount()
}

// BalanceOf returns the native balance recorded for addr.
func (n *Node) BalanceOf(addr [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	account, err := n.manager().GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return account.Balance, nil
}

// Mint credits native balance to addr. Hosts use it to seed accounts; it is
// not reachable from escrow entrypoints.
func (n *Node) Mint(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("core: mint amount must be non-negative")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	mgr := n.manager()
	account, err := mgr.GetAccount(addr)
	if err != nil {
		return err
	}
	account.Balance = new(big.Int).Add(account.Balance, amount)
	return mgr.PutAccount(addr, account)
}

// OpenDatabase opens the storage backend named by the configuration.
func OpenDatabase(cfg *config.Config) (storage.Database, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return storage.NewMemDB(), nil
	case config.BackendLevelDB:
		return storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	case config.BackendBolt:
		return storage.NewBoltDB(filepath.Join(cfg.DataDir, "ledger.db"))
	default:
		return nil, fmt.Errorf("core: unsupported storage backend %q", cfg.Backend)
	}
}
