package escrow

import (
	"fmt"
	"math/big"
)

// Side selects which half of a cross-chain swap an escrow secures. The source
// side holds the maker's deposit; the destination side holds the taker's.
type Side uint8

const (
	SideSource Side = iota + 1
	SideDestination
)

// Valid reports whether the side is one of the two supported variants.
func (s Side) Valid() bool {
	return s == SideSource || s == SideDestination
}

func (s Side) String() string {
	switch s {
	case SideSource:
		return "src"
	case SideDestination:
		return "dst"
	default:
		return "unknown"
	}
}

// TokenAsset names a token contract plus the token identifier inside it.
type TokenAsset struct {
	Address [20]byte
	TokenID uint64
}

// Asset describes what an escrow locks: the native currency when Token is
// nil, otherwise a token-contract managed balance. Immutable once set.
type Asset struct {
	Token *TokenAsset `rlp:"nil"`
}

// NativeAsset is the descriptor for the chain's own currency.
func NativeAsset() Asset { return Asset{} }

// NewTokenAsset is the descriptor for a token-contract balance.
func NewTokenAsset(contract [20]byte, tokenID uint64) Asset {
	return Asset{Token: &TokenAsset{Address: contract, TokenID: tokenID}}
}

// IsNative reports whether the asset settles in the native currency.
func (a Asset) IsNative() bool { return a.Token == nil }

// Immutables carries everything an escrow is seeded with at creation. None of
// these fields ever change afterwards.
type Immutables struct {
	OrderHash     [32]byte
	Hashlock      [32]byte
	Maker         [20]byte
	Taker         [20]byte
	Asset         Asset
	Amount        *big.Int
	SafetyDeposit *big.Int
	Timelocks     Timelocks
	// AccessToken, when present, is the capability public callers must hold
	// to use the public entrypoints. Absent means the reference behaviour:
	// public windows are open to anyone.
	AccessToken *TokenAsset `rlp:"nil"`
}

// Clone returns a deep copy of the immutables.
func (im *Immutables) Clone() *Immutables {
	if im == nil {
		return nil
	}
	clone := *im
	clone.Amount = cloneBigInt(im.Amount)
	clone.SafetyDeposit = cloneBigInt(im.SafetyDeposit)
	if im.Asset.Token != nil {
		token := *im.Asset.Token
		clone.Asset.Token = &token
	}
	if im.AccessToken != nil {
		token := *im.AccessToken
		clone.AccessToken = &token
	}
	return &clone
}

// Instance is one deployed escrow: its immutable parameters plus the two
// terminal flags. At most one flag ever becomes true.
type Instance struct {
	Address    [20]byte
	Side       Side
	Immutables Immutables
	Withdrawn  bool
	Cancelled  bool
	CreatedAt  int64
}

// Clone returns a deep copy so callers can safely mutate the result.
func (i *Instance) Clone() *Instance {
	if i == nil {
		return nil
	}
	clone := *i
	clone.Immutables = *i.Immutables.Clone()
	return &clone
}

// Finalized reports whether the escrow has completed its one terminal
// transition.
func (i *Instance) Finalized() bool {
	return i.Withdrawn || i.Cancelled
}

// SanitizeInstance validates the supplied instance and returns a cloned copy
// with non-nil amount fields. The original value is not mutated.
func SanitizeInstance(inst *Instance) (*Instance, error) {
	if inst == nil {
		return nil, fmt.Errorf("escrow: nil instance")
	}
	if !inst.Side.Valid() {
		return nil, fmt.Errorf("escrow: invalid side: %d", inst.Side)
	}
	clone := inst.Clone()
	if clone.Amount().Sign() < 0 {
		return nil, fmt.Errorf("escrow: amount must be non-negative")
	}
	if clone.Immutables.SafetyDeposit.Sign() < 0 {
		return nil, fmt.Errorf("escrow: safety deposit must be non-negative")
	}
	if clone.Withdrawn && clone.Cancelled {
		return nil, fmt.Errorf("escrow: withdrawn and cancelled are mutually exclusive")
	}
	return clone, nil
}

// Amount returns the locked quantity, never nil.
func (i *Instance) Amount() *big.Int {
	if i == nil {
		return big.NewInt(0)
	}
	return cloneBigInt(i.Immutables.Amount)
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// rolePolicy captures every behavioural difference between the two sides, so
// a single engine serves both instead of two near-identical code paths.
type rolePolicy struct {
	withdrawRecipient  func(im *Immutables) [20]byte
	cancelRecipient    func(im *Immutables) [20]byte
	allowsWithdrawTo   bool
	allowsPublicCancel bool
}

func (s Side) policy() rolePolicy {
	if s == SideDestination {
		return rolePolicy{
			withdrawRecipient: func(im *Immutables) [20]byte { return im.Maker },
			cancelRecipient:   func(im *Immutables) [20]byte { return im.Taker },
		}
	}
	return rolePolicy{
		withdrawRecipient:  func(im *Immutables) [20]byte { return im.Taker },
		cancelRecipient:    func(im *Immutables) [20]byte { return im.Maker },
		allowsWithdrawTo:   true,
		allowsPublicCancel: true,
	}
}
