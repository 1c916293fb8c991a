package persistence

import (
	"math/big"
	"testing"
	"time"

	"amm-entrypoint-bot/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	admin = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bot   = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	weth  = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	token = common.HexToAddress("0x9d68f97e656AFEFAf63f200FB1C4518Cf2b24A78")
)

func TestLoadStateWhenEmpty(t *testing.T) {
	repo, err := NewBadgerRepository(t.TempDir())
	require.NoError(t, err)
	defer repo.Close()

	state, err := repo.LoadState()
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestSaveAndReloadState(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewBadgerRepository(dir)
	require.NoError(t, err)

	state := &models.EntrypointState{
		Version: models.CurrentStateVersion,
		Config: models.TradeConfig{
			Router:          common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"),
			BaseAsset:       weth,
			FixedInvestment: big.NewInt(5e15),
		},
		Roles: map[models.Role][]models.Principal{
			models.RoleAdmin: {admin},
			models.RoleBot:   {bot},
		},
		LastUpdateTime: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, repo.SaveState(state))
	require.NoError(t, repo.Close())

	// reopen to make sure the state survived on disk
	repo, err = NewBadgerRepository(dir)
	require.NoError(t, err)
	defer repo.Close()

	loaded, err := repo.LoadState()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, state.Config.Router, loaded.Config.Router)
	assert.Equal(t, 0, state.Config.FixedInvestment.Cmp(loaded.Config.FixedInvestment))
	assert.Equal(t, []models.Principal{bot}, loaded.Roles[models.RoleBot])
	assert.True(t, state.LastUpdateTime.Equal(loaded.LastUpdateTime))
}

func TestTradeJournalOrdering(t *testing.T) {
	repo, err := NewInMemoryRepository()
	require.NoError(t, err)
	defer repo.Close()

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, repo.AppendTrade(models.TradeRecord{
			ID:        id,
			Side:      models.Buy,
			Caller:    bot,
			FromAsset: weth,
			ToAsset:   token,
			AmountIn:  big.NewInt(int64(i + 1)),
			AmountOut: big.NewInt(100),
			Time:      start.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := repo.ListTrades(0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "d", all[3].ID)

	recent, err := repo.ListTrades(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].ID)
	assert.Equal(t, "d", recent[1].ID)
	assert.Equal(t, big.NewInt(4), recent[1].AmountIn)
}
