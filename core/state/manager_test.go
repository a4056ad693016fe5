package state

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"crosslock/core/types"
	"crosslock/native/escrow"
	"crosslock/storage"
)

func addr(b byte) [20]byte {
	var a [20]byte
	a[0] = b
	return a
}

func sampleInstance() *escrow.Instance {
	return &escrow.Instance{
		Address: addr(0xEE),
		Side:    escrow.SideSource,
		Immutables: escrow.Immutables{
			OrderHash:     [32]byte{0xAA},
			Hashlock:      escrow.ComputeHashlock([]byte("s")),
			Maker:         addr(0x01),
			Taker:         addr(0x02),
			Asset:         escrow.NewTokenAsset(addr(0x55), 7),
			Amount:        big.NewInt(1000),
			SafetyDeposit: big.NewInt(50),
			Timelocks: escrow.Timelocks{
				WithdrawalStart:         100,
				PublicWithdrawalStart:   200,
				CancellationStart:       300,
				PublicCancellationStart: 400,
				RescueStart:             500,
			},
			AccessToken: &escrow.TokenAsset{Address: addr(0x77), TokenID: 9},
		},
		CreatedAt: 42,
	}
}

func TestAccountRoundTrip(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())

	missing, err := mgr.GetAccount(addr(0x01))
	require.NoError(t, err)
	require.Zero(t, missing.Balance.Sign())

	account := &types.Account{Nonce: 3, Balance: big.NewInt(12345)}
	require.NoError(t, mgr.PutAccount(addr(0x01), account))

	loaded, err := mgr.GetAccount(addr(0x01))
	require.NoError(t, err)
	require.Equal(t, uint64(3), loaded.Nonce)
	require.Zero(t, loaded.Balance.Cmp(big.NewInt(12345)))
}

func TestPutAccountRejectsNegativeBalance(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	err := mgr.PutAccount(addr(0x01), &types.Account{Balance: big.NewInt(-1)})
	require.Error(t, err)
}

func TestInstanceRoundTrip(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	inst := sampleInstance()
	require.NoError(t, mgr.InstancePut(inst))

	loaded, ok := mgr.InstanceGet(inst.Address)
	require.True(t, ok)
	require.Equal(t, inst.Side, loaded.Side)
	require.Equal(t, inst.Immutables.Hashlock, loaded.Immutables.Hashlock)
	require.Equal(t, inst.Immutables.Timelocks, loaded.Immutables.Timelocks)
	require.NotNil(t, loaded.Immutables.Asset.Token)
	require.Equal(t, uint64(7), loaded.Immutables.Asset.Token.TokenID)
	require.NotNil(t, loaded.Immutables.AccessToken)
	require.Equal(t, uint64(9), loaded.Immutables.AccessToken.TokenID)
	require.Zero(t, loaded.Immutables.Amount.Cmp(big.NewInt(1000)))
	require.Equal(t, int64(42), loaded.CreatedAt)
	require.False(t, loaded.Finalized())

	_, ok = mgr.InstanceGet(addr(0xFF))
	require.False(t, ok)
}

func TestInstancePutRejectsConflictingFlags(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	inst := sampleInstance()
	inst.Withdrawn = true
	inst.Cancelled = true
	require.Error(t, mgr.InstancePut(inst))
}

func TestDirectory(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())

	counter, err := mgr.DirectoryCounter()
	require.NoError(t, err)
	require.Zero(t, counter)

	require.NoError(t, mgr.DirectoryPut(0, addr(0xA0)))
	require.NoError(t, mgr.DirectoryPut(1, addr(0xA1)))
	require.NoError(t, mgr.SetDirectoryCounter(2))

	counter, err = mgr.DirectoryCounter()
	require.NoError(t, err)
	require.Equal(t, uint64(2), counter)

	entry, ok, err := mgr.DirectoryGet(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, addr(0xA1), entry)

	_, ok, err = mgr.DirectoryGet(5)
	require.NoError(t, err)
	require.False(t, ok)

	// Entries are write-once.
	require.Error(t, mgr.DirectoryPut(1, addr(0xB1)))
}

func TestStatePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger")

	db, err := storage.NewLevelDB(path)
	require.NoError(t, err)
	mgr := NewManager(db)
	require.NoError(t, mgr.InstancePut(sampleInstance()))
	require.NoError(t, mgr.PutAccount(addr(0x01), &types.Account{Balance: big.NewInt(7)}))
	require.NoError(t, mgr.SetDirectoryCounter(1))
	require.NoError(t, db.Close())

	db, err = storage.NewLevelDB(path)
	require.NoError(t, err)
	defer db.Close()
	mgr = NewManager(db)

	loaded, ok := mgr.InstanceGet(addr(0xEE))
	require.True(t, ok)
	require.Equal(t, escrow.SideSource, loaded.Side)

	account, err := mgr.GetAccount(addr(0x01))
	require.NoError(t, err)
	require.Zero(t, account.Balance.Cmp(big.NewInt(7)))

	counter, err := mgr.DirectoryCounter()
	require.NoError(t, err)
	require.Equal(t, uint64(1), counter)
}
