package persistence

import (
	"encoding/json"
	"errors"
	"fmt"

	"amm-entrypoint-bot/internal/models"

	"github.com/dgraph-io/badger/v3"
)

var (
	stateKey    = []byte("entrypoint_state")
	tradePrefix = []byte("trade/")
)

// badgerRepository is the BadgerDB implementation of the StateRepository.
type badgerRepository struct {
	db *badger.DB
}

// NewBadgerRepository creates and returns a new repository instance connected to a BadgerDB database.
func NewBadgerRepository(dbPath string) (StateRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	// Badger's own logging is noisy; errors still surface from DB operations.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", dbPath, err)
	}
	return &badgerRepository{db: db}, nil
}

// NewInMemoryRepository returns a badger repository that never touches disk.
func NewInMemoryRepository() (StateRepository, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &badgerRepository{db: db}, nil
}

// SaveState marshals the state into JSON and stores it under a single key.
func (r *badgerRepository) SaveState(state *models.EntrypointState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}

	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(stateKey, data)
	})
}

// LoadState returns (nil, nil) when no state has been saved yet.
func (r *badgerRepository) LoadState() (*models.EntrypointState, error) {
	var state models.EntrypointState

	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(stateKey)
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return errors.New("state value is empty in database")
			}
			return json.Unmarshal(val, &state)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// AppendTrade stores the trade under a key ordered by execution time.
func (r *badgerRepository) AppendTrade(trade models.TradeRecord) error {
	data, err := json.Marshal(trade)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(tradeKey(trade), data)
	})
}

func (r *badgerRepository) ListTrades(limit int) ([]models.TradeRecord, error) {
	var trades []models.TradeRecord

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = tradePrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, tradePrefix...), 0xFF)
		for it.Seek(seek); it.Valid(); it.Next() {
			if limit > 0 && len(trades) >= limit {
				break
			}
			var trade models.TradeRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &trade)
			}); err != nil {
				return err
			}
			trades = append(trades, trade)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// iterated newest first
	for i, j := 0, len(trades)-1; i < j; i, j = i+1, j-1 {
		trades[i], trades[j] = trades[j], trades[i]
	}
	return trades, nil
}

// Close gracefully closes the connection to the database.
func (r *badgerRepository) Close() error {
	return r.db.Close()
}

// tradeKey: prefix + 20-digit unix nanos + "/" + id
func tradeKey(trade models.TradeRecord) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", tradePrefix, trade.Time.UnixNano(), trade.ID))
}
