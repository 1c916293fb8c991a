package statemanager

import (
	"math/big"
	"sync"
	"time"

	"amm-entrypoint-bot/internal/models"
	"amm-entrypoint-bot/internal/persistence"

	"go.uber.org/zap"
)

// MaxRecentTrades 是快照中保留的最近交易数量, 完整流水在 journal 中
const MaxRecentTrades = 50

// EventType defines the type of a normalized event
type EventType int

const (
	RoleChangedEvent EventType = iota
	TradeExecutedEvent
	StateResetEvent
)

// NormalizedEvent is a standardized internal representation of an event
type NormalizedEvent struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}
}

// RoleChangedEventData carries the full role membership after a grant or revoke.
type RoleChangedEventData struct {
	Roles map[models.Role][]models.Principal
}

// persistRequest pairs a state snapshot with the trade that produced it, if any.
type persistRequest struct {
	state *models.EntrypointState
	trade *models.TradeRecord
}

// StateManager mirrors the entrypoint's durable data and persists it off
// the hot path. Events are applied serially in the order they are dispatched.
type StateManager struct {
	mu              sync.RWMutex
	state           *models.EntrypointState
	repo            persistence.StateRepository
	eventChannel    chan NormalizedEvent
	persistenceChan chan persistRequest
	stopChan        chan struct{}
	wg              sync.WaitGroup
	stopOnce        sync.Once
	logger          *zap.Logger
}

// NewStateManager creates a new StateManager.
func NewStateManager(initialState *models.EntrypointState, repo persistence.StateRepository, logger *zap.Logger) *StateManager {
	return &StateManager{
		state:           initialState,
		repo:            repo,
		eventChannel:    make(chan NormalizedEvent, 1024),
		persistenceChan: make(chan persistRequest, 128),
		stopChan:        make(chan struct{}),
		logger:          logger,
	}
}

// Start begins the state manager's event processing and persistence loops.
func (sm *StateManager) Start() {
	sm.wg.Add(2)
	go sm.eventLoop()
	go sm.persistenceLoop()
	sm.logger.Sugar().Info("StateManager started.")
}

// Stop applies every event already dispatched, flushes pending writes and
// waits for both loops to exit.
func (sm *StateManager) Stop() {
	sm.stopOnce.Do(func() {
		close(sm.stopChan)
		sm.wg.Wait()
		sm.logger.Sugar().Info("StateManager stopped.")
	})
}

// DispatchEvent sends an event to the StateManager for processing.
func (sm *StateManager) DispatchEvent(event NormalizedEvent) {
	sm.eventChannel <- event
}

// GetStateSnapshot returns a deep copy of the current state for safe, concurrent reading.
func (sm *StateManager) GetStateSnapshot() *models.EntrypointState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return deepCopy(sm.state)
}

func deepCopy(state *models.EntrypointState) *models.EntrypointState {
	if state == nil {
		return nil
	}

	stateCopy := *state
	stateCopy.Config.FixedInvestment = copyInt(state.Config.FixedInvestment)

	if state.Roles != nil {
		stateCopy.Roles = make(map[models.Role][]models.Principal, len(state.Roles))
		for role, members := range state.Roles {
			stateCopy.Roles[role] = append([]models.Principal(nil), members...)
		}
	}

	if state.Trades != nil {
		stateCopy.Trades = make([]models.TradeRecord, len(state.Trades))
		for i, tr := range state.Trades {
			tr.AmountIn = copyInt(tr.AmountIn)
			tr.AmountOut = copyInt(tr.AmountOut)
			stateCopy.Trades[i] = tr
		}
	}

	return &stateCopy
}

// eventLoop is the core processing loop that handles all incoming events serially.
func (sm *StateManager) eventLoop() {
	defer sm.wg.Done()
	defer close(sm.persistenceChan)
	for {
		select {
		case event := <-sm.eventChannel:
			sm.processEvent(event)
		case <-sm.stopChan:
			for {
				select {
				case event := <-sm.eventChannel:
					sm.processEvent(event)
				default:
					return
				}
			}
		}
	}
}

// persistenceLoop handles the asynchronous saving of state snapshots until
// the event loop closes the channel.
func (sm *StateManager) persistenceLoop() {
	defer sm.wg.Done()
	for req := range sm.persistenceChan {
		if sm.repo == nil {
			continue
		}
		if req.trade != nil {
			if err := sm.repo.AppendTrade(*req.trade); err != nil {
				sm.logger.Sugar().Errorf("CRITICAL: Failed to journal trade %s: %v", req.trade.ID, err)
			}
		}
		if err := sm.repo.SaveState(req.state); err != nil {
			sm.logger.Sugar().Errorf("CRITICAL: Failed to save state: %v", err)
		}
	}
}

// processEvent contains the logic to mutate the state based on an event.
func (sm *StateManager) processEvent(event NormalizedEvent) {
	sm.mu.Lock()
	if sm.state == nil && event.Type != StateResetEvent {
		sm.mu.Unlock()
		sm.logger.Sugar().Warnf("Dropping event %d: no state loaded", event.Type)
		return
	}

	var trade *models.TradeRecord
	switch event.Type {
	case RoleChangedEvent:
		if data, ok := event.Data.(RoleChangedEventData); ok {
			sm.state.Roles = data.Roles
		} else {
			sm.logger.Sugar().Warnf("Received RoleChangedEvent with unexpected data type: %T", event.Data)
		}
	case TradeExecutedEvent:
		if data, ok := event.Data.(models.TradeRecord); ok {
			sm.state.Trades = append(sm.state.Trades, data)
			if n := len(sm.state.Trades); n > MaxRecentTrades {
				sm.state.Trades = append([]models.TradeRecord(nil), sm.state.Trades[n-MaxRecentTrades:]...)
			}
			trade = &data
		} else {
			sm.logger.Sugar().Warnf("Received TradeExecutedEvent with unexpected data type: %T", event.Data)
		}
	case StateResetEvent:
		if newState, ok := event.Data.(*models.EntrypointState); ok {
			sm.state = newState
			sm.logger.Sugar().Info("State has been reset.")
		} else {
			sm.logger.Sugar().Warnf("Received StateResetEvent with unexpected data type: %T", event.Data)
		}
	}

	if sm.state == nil {
		sm.mu.Unlock()
		return
	}

	sm.state.LastUpdateTime = time.Now()
	stateCopy := deepCopy(sm.state)
	sm.mu.Unlock()

	sm.persistenceChan <- persistRequest{state: stateCopy, trade: trade}
}

func copyInt(x *big.Int) *big.Int {
	if x == nil {
		return nil
	}
	return new(big.Int).Set(x)
}
