package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"crosslock/core/types"
	"crosslock/native/escrow"
	"crosslock/storage"
)

var (
	accountPrefix         = []byte("account:")
	instancePrefix        = []byte("escrow/instance:")
	directoryPrefix       = []byte("escrow/directory:")
	directoryCounterKey   = ethcrypto.Keccak256([]byte("escrow/directory/counter"))
	errMalformedCounter   = errors.New("state: malformed directory counter")
	errDirectoryOverwrite = errors.New("state: directory entries are write-once")
)

// Manager reads and writes ledger state in a key-value database: accounts,
// escrow instance records and the factory directory. Values are RLP encoded;
// keys are keccak hashes of a prefix plus the record identity. It implements
// the state interfaces of both the escrow engine and the factory.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager over the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func accountKey(addr [20]byte) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr[:])
	return ethcrypto.Keccak256(buf)
}

func instanceKey(addr [20]byte) []byte {
	buf := make([]byte, len(instancePrefix)+len(addr))
	copy(buf, instancePrefix)
	copy(buf[len(instancePrefix):], addr[:])
	return ethcrypto.Keccak256(buf)
}

func directoryKey(counter uint64) []byte {
	buf := make([]byte, len(directoryPrefix)+8)
	copy(buf, directoryPrefix)
	binary.BigEndian.PutUint64(buf[len(directoryPrefix):], counter)
	return ethcrypto.Keccak256(buf)
}

type storedAccount struct {
	Nonce   uint64
	Balance *big.Int
}

// GetAccount loads the account at addr. Missing accounts materialise as
// zero-balance records so callers never see a not-found error.
func (m *Manager) GetAccount(addr [20]byte) (*types.Account, error) {
	raw, err := m.db.Get(accountKey(addr))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return &types.Account{Balance: big.NewInt(0)}, nil
	}
	if err != nil {
		return nil, err
	}
	var stored storedAccount
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, fmt.Errorf("state: decode account: %w", err)
	}
	account := &types.Account{Nonce: stored.Nonce, Balance: big.NewInt(0)}
	if stored.Balance != nil {
		account.Balance = stored.Balance
	}
	return account, nil
}

// PutAccount persists the account at addr.
func (m *Manager) PutAccount(addr [20]byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	stored := storedAccount{Nonce: account.Nonce, Balance: big.NewInt(0)}
	if account.Balance != nil {
		if account.Balance.Sign() < 0 {
			return fmt.Errorf("state: negative balance for account %x", addr)
		}
		stored.Balance = account.Balance
	}
	raw, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return fmt.Errorf("state: encode account: %w", err)
	}
	return m.db.Put(accountKey(addr), raw)
}

// storedInstance is the RLP shape of an escrow instance. Timestamps travel as
// big.Int because RLP has no signed integer encoding; optional token
// references flatten into a has-flag plus fields.
type storedInstance struct {
	Address                 [20]byte
	Side                    uint8
	OrderHash               [32]byte
	Hashlock                [32]byte
	Maker                   [20]byte
	Taker                   [20]byte
	HasToken                bool
	TokenAddress            [20]byte
	TokenID                 uint64
	Amount                  *big.Int
	SafetyDeposit           *big.Int
	WithdrawalStart         *big.Int
	PublicWithdrawalStart   *big.Int
	CancellationStart       *big.Int
	PublicCancellationStart *big.Int
	RescueStart             *big.Int
	HasAccessToken          bool
	AccessTokenAddress      [20]byte
	AccessTokenID           uint64
	Withdrawn               bool
	Cancelled               bool
	CreatedAt               *big.Int
}

func newStoredInstance(inst *escrow.Instance) *storedInstance {
	im := inst.Immutables
	stored := &storedInstance{
		Address:                 inst.Address,
		Side:                    uint8(inst.Side),
		OrderHash:               im.OrderHash,
		Hashlock:                im.Hashlock,
		Maker:                   im.Maker,
		Taker:                   im.Taker,
		Amount:                  im.Amount,
		SafetyDeposit:           im.SafetyDeposit,
		WithdrawalStart:         big.NewInt(im.Timelocks.WithdrawalStart),
		PublicWithdrawalStart:   big.NewInt(im.Timelocks.PublicWithdrawalStart),
		CancellationStart:       big.NewInt(im.Timelocks.CancellationStart),
		PublicCancellationStart: big.NewInt(im.Timelocks.PublicCancellationStart),
		RescueStart:             big.NewInt(im.Timelocks.RescueStart),
		Withdrawn:               inst.Withdrawn,
		Cancelled:               inst.Cancelled,
		CreatedAt:               big.NewInt(inst.CreatedAt),
	}
	if im.Asset.Token != nil {
		stored.HasToken = true
		stored.TokenAddress = im.Asset.Token.Address
		stored.TokenID = im.Asset.Token.TokenID
	}
	if im.AccessToken != nil {
		stored.HasAccessToken = true
		stored.AccessTokenAddress = im.AccessToken.Address
		stored.AccessTokenID = im.AccessToken.TokenID
	}
	return stored
}

func (s *storedInstance) toInstance() *escrow.Instance {
	inst := &escrow.Instance{
		Address: s.Address,
		Side:    escrow.Side(s.Side),
		Immutables: escrow.Immutables{
			OrderHash:     s.OrderHash,
			Hashlock:      s.Hashlock,
			Maker:         s.Maker,
			Taker:         s.Taker,
			Amount:        s.Amount,
			SafetyDeposit: s.SafetyDeposit,
			Timelocks: escrow.Timelocks{
				WithdrawalStart:         bigToInt64(s.WithdrawalStart),
				PublicWithdrawalStart:   bigToInt64(s.PublicWithdrawalStart),
				CancellationStart:       bigToInt64(s.CancellationStart),
				PublicCancellationStart: bigToInt64(s.PublicCancellationStart),
				RescueStart:             bigToInt64(s.RescueStart),
			},
		},
		Withdrawn: s.Withdrawn,
		Cancelled: s.Cancelled,
		CreatedAt: bigToInt64(s.CreatedAt),
	}
	if s.HasToken {
		inst.Immutables.Asset = escrow.NewTokenAsset(s.TokenAddress, s.TokenID)
	}
	if s.HasAccessToken {
		inst.Immutables.AccessToken = &escrow.TokenAsset{Address: s.AccessTokenAddress, TokenID: s.AccessTokenID}
	}
	return inst
}

func bigToInt64(v *big.Int) int64 {
	if v == nil {
		return 0
	}
	return v.Int64()
}

// InstancePut persists an escrow instance record.
func (m *Manager) InstancePut(inst *escrow.Instance) error {
	sanitized, err := escrow.SanitizeInstance(inst)
	if err != nil {
		return err
	}
	raw, err := rlp.EncodeToBytes(newStoredInstance(sanitized))
	if err != nil {
		return fmt.Errorf("state: encode escrow instance: %w", err)
	}
	return m.db.Put(instanceKey(sanitized.Address), raw)
}

// InstanceGet loads the escrow instance deployed at addr.
func (m *Manager) InstanceGet(addr [20]byte) (*escrow.Instance, bool) {
	raw, err := m.db.Get(instanceKey(addr))
	if err != nil {
		return nil, false
	}
	var stored storedInstance
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, false
	}
	return stored.toInstance(), true
}

// DirectoryCounter returns the next counter the factory will assign. A fresh
// ledger starts at zero.
func (m *Manager) DirectoryCounter() (uint64, error) {
	raw, err := m.db.Get(directoryCounterKey)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, errMalformedCounter
	}
	return binary.BigEndian.Uint64(raw), nil
}

// SetDirectoryCounter persists the next counter value.
func (m *Manager) SetDirectoryCounter(counter uint64) error {
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], counter)
	return m.db.Put(directoryCounterKey, raw[:])
}

// DirectoryPut records a deployed instance address under counter. Entries
// are insertion-only: rewriting an existing counter is refused.
func (m *Manager) DirectoryPut(counter uint64, addr [20]byte) error {
	key := directoryKey(counter)
	exists, err := m.db.Has(key)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: counter %d", errDirectoryOverwrite, counter)
	}
	return m.db.Put(key, addr[:])
}

// DirectoryGet returns the instance address recorded under counter.
func (m *Manager) DirectoryGet(counter uint64) ([20]byte, bool, error) {
	raw, err := m.db.Get(directoryKey(counter))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return [20]byte{}, false, nil
	}
	if err != nil {
		return [20]byte{}, false, err
	}
	if len(raw) != 20 {
		return [20]byte{}, false, fmt.Errorf("state: malformed directory entry %d", counter)
	}
	var addr [20]byte
	copy(addr[:], raw)
	return addr, true, nil
}
