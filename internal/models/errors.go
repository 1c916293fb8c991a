package models

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized        = errors.New("access control: unauthorized")
	ErrOnlyBotOrAdmin      = fmt.Errorf("only bot or admin may sell: %w", ErrUnauthorized)
	ErrLastAdmin           = errors.New("access control: cannot revoke the last admin")
	ErrUnknownRole         = errors.New("access control: unknown role")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrSwapFailed          = errors.New("swap failed")
	ErrLedger              = errors.New("ledger error")
	ErrInvalidSwap         = errors.New("invalid swap parameters")
	ErrNoPosition          = errors.New("no open position")
	ErrInvalidConfig       = errors.New("invalid trade config")
	ErrInvalidAmount       = errors.New("amount must be positive")
)
