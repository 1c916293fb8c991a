package persistence

import "amm-entrypoint-bot/internal/models"

// StateRepository defines the interface for state persistence.
// It abstracts the underlying storage mechanism (e.g., BadgerDB, in-memory)
// from the rest of the application.
type StateRepository interface {
	// SaveState atomically saves the entire entrypoint state.
	SaveState(state *models.EntrypointState) error

	// LoadState loads the entrypoint state from storage.
	// If no state is found, it should return (nil, nil).
	LoadState() (*models.EntrypointState, error)

	// AppendTrade adds an executed trade to the append-only journal.
	AppendTrade(trade models.TradeRecord) error

	// ListTrades returns up to limit of the most recent trades, oldest first.
	// A non-positive limit returns the whole journal.
	ListTrades(limit int) ([]models.TradeRecord, error)

	// Close gracefully closes the connection to the database.
	Close() error
}
