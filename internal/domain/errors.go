package domain

import "errors"

// Intake errors are detected before any state change and surfaced to the
// caller synchronously. Store errors may occur mid-pass; matching treats
// them as best-effort (see core.Engine).
var (
	ErrInvalidInput        = errors.New("invalid order input")
	ErrUnknownSymbol       = errors.New("unknown symbol")
	ErrInvalidPrice        = errors.New("no market price available")
	ErrInsufficientBalance = errors.New("insufficient balance")

	ErrOrderNotFound = errors.New("order not found")
	ErrNotCancelable = errors.New("order cannot be cancelled")

	ErrStoreWrite   = errors.New("store write failed")
	ErrStoreRead    = errors.New("store read failed")
	ErrFillConflict = errors.New("fill state changed since read")
)
