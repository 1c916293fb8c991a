package statemanager

import (
	"math/big"
	"sync"
	"testing"
	"time"

	"amm-entrypoint-bot/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	admin = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bot   = common.HexToAddress("0x00000000000000000000000000000000000000b0")
)

// mockStateRepository is a mock implementation of the StateRepository interface for testing.
type mockStateRepository struct {
	sync.Mutex
	savedState   *models.EntrypointState
	saveCalled   bool
	trades       []models.TradeRecord
	saveError    error
	saveDoneChan chan bool // signalled after every SaveState
}

func newMockStateRepository() *mockStateRepository {
	return &mockStateRepository{
		saveDoneChan: make(chan bool, 16),
	}
}

func (m *mockStateRepository) SaveState(state *models.EntrypointState) error {
	m.Lock()
	defer m.Unlock()

	m.saveCalled = true
	m.savedState = deepCopy(state)
	m.saveDoneChan <- true
	return m.saveError
}

func (m *mockStateRepository) LoadState() (*models.EntrypointState, error) {
	m.Lock()
	defer m.Unlock()
	return m.savedState, nil
}

func (m *mockStateRepository) AppendTrade(trade models.TradeRecord) error {
	m.Lock()
	defer m.Unlock()
	m.trades = append(m.trades, trade)
	return nil
}

func (m *mockStateRepository) ListTrades(int) ([]models.TradeRecord, error) {
	m.Lock()
	defer m.Unlock()
	return append([]models.TradeRecord(nil), m.trades...), nil
}

func (m *mockStateRepository) Close() error {
	return nil
}

func (m *mockStateRepository) getSavedState() *models.EntrypointState {
	m.Lock()
	defer m.Unlock()
	return m.savedState
}

func (m *mockStateRepository) wasSaveCalled() bool {
	m.Lock()
	defer m.Unlock()
	return m.saveCalled
}

func (m *mockStateRepository) waitSave(t *testing.T) {
	t.Helper()
	select {
	case <-m.saveDoneChan:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for state to be saved")
	}
}

func initialState() *models.EntrypointState {
	return &models.EntrypointState{
		Version: models.CurrentStateVersion,
		Config:  models.TradeConfig{FixedInvestment: big.NewInt(1e17)},
		Roles:   map[models.Role][]models.Principal{models.RoleAdmin: {admin}},
	}
}

func TestNewStateManager(t *testing.T) {
	sm := NewStateManager(initialState(), newMockStateRepository(), zap.NewNop())
	require.NotNil(t, sm)

	snapshot := sm.GetStateSnapshot()
	require.NotNil(t, snapshot)
	assert.Equal(t, []models.Principal{admin}, snapshot.Roles[models.RoleAdmin])

	assert.NotNil(t, sm.eventChannel)
	assert.NotNil(t, sm.persistenceChan)
	assert.NotNil(t, sm.stopChan)
}

func TestSnapshotIsIsolated(t *testing.T) {
	sm := NewStateManager(initialState(), nil, zap.NewNop())

	snapshot := sm.GetStateSnapshot()
	snapshot.Roles[models.RoleAdmin][0] = bot
	snapshot.Config.FixedInvestment.SetInt64(1)

	again := sm.GetStateSnapshot()
	assert.Equal(t, admin, again.Roles[models.RoleAdmin][0])
	assert.Equal(t, big.NewInt(1e17), again.Config.FixedInvestment)
}

func TestRoleChangedEvent(t *testing.T) {
	repo := newMockStateRepository()
	sm := NewStateManager(initialState(), repo, zap.NewNop())
	sm.Start()
	defer sm.Stop()

	sm.DispatchEvent(NormalizedEvent{
		Type:      RoleChangedEvent,
		Timestamp: time.Now(),
		Data: RoleChangedEventData{Roles: map[models.Role][]models.Principal{
			models.RoleAdmin: {admin},
			models.RoleBot:   {bot},
		}},
	})
	repo.waitSave(t)

	saved := repo.getSavedState()
	require.NotNil(t, saved)
	assert.Equal(t, []models.Principal{bot}, saved.Roles[models.RoleBot])
	assert.False(t, saved.LastUpdateTime.IsZero())
}

func TestTradeExecutedEventJournalsAndCaps(t *testing.T) {
	repo := newMockStateRepository()
	sm := NewStateManager(initialState(), repo, zap.NewNop())
	sm.Start()

	total := MaxRecentTrades + 5
	for i := 0; i < total; i++ {
		sm.DispatchEvent(NormalizedEvent{
			Type:      TradeExecutedEvent,
			Timestamp: time.Now(),
			Data: models.TradeRecord{
				ID:        string(rune('A' + i%26)),
				Side:      models.Buy,
				Caller:    bot,
				AmountIn:  big.NewInt(int64(i)),
				AmountOut: big.NewInt(1),
			},
		})
		repo.waitSave(t)
	}
	sm.Stop()

	trades, _ := repo.ListTrades(0)
	assert.Len(t, trades, total, "every trade reaches the journal")

	snapshot := sm.GetStateSnapshot()
	require.Len(t, snapshot.Trades, MaxRecentTrades)
	assert.Equal(t, big.NewInt(int64(total-1)), snapshot.Trades[MaxRecentTrades-1].AmountIn)
}

func TestStateResetEvent(t *testing.T) {
	repo := newMockStateRepository()
	sm := NewStateManager(initialState(), repo, zap.NewNop())
	sm.Start()
	defer sm.Stop()

	sm.DispatchEvent(NormalizedEvent{
		Type:      StateResetEvent,
		Timestamp: time.Now(),
		Data: &models.EntrypointState{
			Version: 2,
			Roles:   map[models.Role][]models.Principal{models.RoleAdmin: {bot}},
		},
	})
	repo.waitSave(t)

	snapshot := sm.GetStateSnapshot()
	assert.Equal(t, 2, snapshot.Version)
	assert.Equal(t, []models.Principal{bot}, snapshot.Roles[models.RoleAdmin])
}

// TestAsyncPersistence verifies that state persistence happens asynchronously.
func TestAsyncPersistence(t *testing.T) {
	repo := newMockStateRepository()
	repo.Lock() // hold the repository so the save cannot complete yet
	sm := NewStateManager(initialState(), repo, zap.NewNop())
	sm.Start()
	defer sm.Stop()

	sm.DispatchEvent(NormalizedEvent{
		Type:      RoleChangedEvent,
		Timestamp: time.Now(),
		Data:      RoleChangedEventData{Roles: map[models.Role][]models.Principal{models.RoleAdmin: {admin}}},
	})
	assert.False(t, repo.saveCalled, "SaveState should not be called synchronously with DispatchEvent")
	repo.Unlock()

	repo.waitSave(t)
	assert.True(t, repo.wasSaveCalled(), "SaveState should have been called asynchronously")
}

func TestStopFlushesPendingEvents(t *testing.T) {
	repo := newMockStateRepository()
	sm := NewStateManager(initialState(), repo, zap.NewNop())
	sm.Start()

	sm.DispatchEvent(NormalizedEvent{
		Type: RoleChangedEvent,
		Data: RoleChangedEventData{Roles: map[models.Role][]models.Principal{
			models.RoleAdmin: {admin},
			models.RoleBot:   {bot},
		}},
	})
	sm.Stop()
	sm.Stop()

	saved := repo.getSavedState()
	require.NotNil(t, saved)
	assert.Equal(t, []models.Principal{bot}, saved.Roles[models.RoleBot])
}
