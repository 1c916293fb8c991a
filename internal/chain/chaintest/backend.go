// Package chaintest provides an in-memory chain.Backend for tests.
package chaintest

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Backend answers contract calls with OnCall and mines every sent
// transaction immediately with ReceiptStatus.
type Backend struct {
	mu sync.Mutex

	OnCall        func(msg ethereum.CallMsg) ([]byte, error)
	EstimateErr   error
	ReceiptStatus uint64

	sent []*gethtypes.Transaction
}

func New() *Backend {
	return &Backend{ReceiptStatus: gethtypes.ReceiptStatusSuccessful}
}

func (b *Backend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if b.OnCall == nil {
		return nil, ethereum.NotFound
	}
	return b.OnCall(msg)
}

func (b *Backend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	if b.EstimateErr != nil {
		return 0, b.EstimateErr
	}
	return 100_000, nil
}

func (b *Backend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *Backend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(10_000_000_000), nil
}

func (b *Backend) HeaderByNumber(context.Context, *big.Int) (*gethtypes.Header, error) {
	return &gethtypes.Header{Number: big.NewInt(1), BaseFee: big.NewInt(10_000_000_000)}, nil
}

func (b *Backend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return uint64(len(b.sent)), nil
}

func (b *Backend) SendTransaction(_ context.Context, tx *gethtypes.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, tx)
	return nil
}

func (b *Backend) TransactionReceipt(_ context.Context, hash common.Hash) (*gethtypes.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, tx := range b.sent {
		if tx.Hash() == hash {
			return &gethtypes.Receipt{Status: b.ReceiptStatus, TxHash: hash}, nil
		}
	}
	return nil, ethereum.NotFound
}

// Sent returns the transactions submitted so far.
func (b *Backend) Sent() []*gethtypes.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*gethtypes.Transaction(nil), b.sent...)
}
