package types

import "errors"

var (
	// Ledger errors
	ErrUnauthorized      = errors.New("caller is not permitted")
	ErrInvalidTerms      = errors.New("invalid lease terms")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrAlreadyEnded      = errors.New("lease has already ended")
	ErrNotYetEligible    = errors.New("operation is not yet eligible")
	ErrNothingToTransfer = errors.New("nothing to transfer")
	ErrNotLive           = errors.New("lease is terminated")

	// Registry errors
	ErrLeaseNotFound = errors.New("lease not found")

	// Value mover errors
	ErrInsufficientFunds = errors.New("insufficient funds")

	// Clock errors
	ErrClockFixed = errors.New("clock cannot be set")
)
