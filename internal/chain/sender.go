package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// Backend is the subset of *ethclient.Client used to read contracts and
// submit transactions.
type Backend interface {
	ethereum.ContractCaller
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
}

// ErrReverted is returned when a mined transaction has a failed status.
var ErrReverted = errors.New("transaction reverted")

const (
	defaultGasLimit       = 400_000
	defaultReceiptTimeout = 2 * time.Minute
	receiptPollInterval   = 2 * time.Second
)

// Sender signs EIP-1559 transactions with a single key and waits for them
// to be mined.
type Sender struct {
	ec             Backend
	key            *ecdsa.PrivateKey
	from           common.Address
	chainID        *big.Int
	gasLimit       uint64
	receiptTimeout time.Duration
	logger         *zap.Logger
}

// NewSender parses pkHex and binds it to the backend.
func NewSender(ec Backend, pkHex string, chainID *big.Int, gasLimit uint64, receiptTimeout time.Duration, logger *zap.Logger) (*Sender, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(pkHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("bad private key: %w", err)
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, errors.New("chain id must be positive")
	}
	if gasLimit == 0 {
		gasLimit = defaultGasLimit
	}
	if receiptTimeout <= 0 {
		receiptTimeout = defaultReceiptTimeout
	}
	return &Sender{
		ec:             ec,
		key:            key,
		from:           crypto.PubkeyToAddress(key.PublicKey),
		chainID:        new(big.Int).Set(chainID),
		gasLimit:       gasLimit,
		receiptTimeout: receiptTimeout,
		logger:         logger,
	}, nil
}

// From returns the address the sender signs for.
func (s *Sender) From() common.Address { return s.from }

// Call runs a read-only contract call against the latest block.
func (s *Sender) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return s.ec.CallContract(ctx, ethereum.CallMsg{From: s.from, To: &to, Data: data}, nil)
}

// Send signs and submits a call to `to`, then blocks until the receipt is
// available. A reverted receipt yields ErrReverted.
func (s *Sender) Send(ctx context.Context, to common.Address, data []byte) (string, error) {
	tip, err := s.ec.SuggestGasTipCap(ctx)
	if err != nil || tip == nil {
		tip = big.NewInt(2_000_000_000)
	}
	var baseFee *big.Int
	if h, _ := s.ec.HeaderByNumber(ctx, nil); h != nil && h.BaseFee != nil {
		baseFee = h.BaseFee
	} else if sp, _ := s.ec.SuggestGasPrice(ctx); sp != nil {
		baseFee = sp
	} else {
		baseFee = big.NewInt(5_000_000_000)
	}
	feeCap := new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), tip)

	nonce, err := s.ec.PendingNonceAt(ctx, s.from)
	if err != nil {
		return "", fmt.Errorf("get nonce: %w", err)
	}

	gas, err := s.ec.EstimateGas(ctx, ethereum.CallMsg{From: s.from, To: &to, Data: data})
	if err != nil {
		// a failed estimate means the call would revert
		return "", fmt.Errorf("estimate gas: %w", err)
	}
	if gas == 0 || gas > s.gasLimit {
		gas = s.gasLimit
	}

	tx := gethtypes.NewTx(&gethtypes.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		To:        &to,
		Gas:       gas,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Data:      data,
		Value:     big.NewInt(0),
	})
	signed, err := gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}
	if err := s.ec.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}
	hash := signed.Hash()
	s.logger.Debug("transaction submitted", zap.String("tx", hash.Hex()), zap.String("to", to.Hex()), zap.Uint64("nonce", nonce))

	receipt, err := s.waitMined(ctx, hash)
	if err != nil {
		return hash.Hex(), err
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		return hash.Hex(), fmt.Errorf("%w: %s", ErrReverted, hash.Hex())
	}
	return hash.Hex(), nil
}

func (s *Sender) waitMined(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, s.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.ec.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("get receipt: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for receipt %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// AddressFromKey derives the account address of a hex private key.
func AddressFromKey(pkHex string) (common.Address, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(pkHex), "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("bad private key: %w", err)
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}
