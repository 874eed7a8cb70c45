package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid executor context")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Billing errors
	ErrNoCardToken         = errors.New("no card token stored for user")
	ErrTokenCaptureFailed  = errors.New("card token could not be recovered for settled invoice")
	ErrInsufficientBalance = errors.New("insufficient partner balance")
	ErrWithdrawalNotOpen   = errors.New("withdrawal request is not pending")
	ErrLockBusy            = errors.New("another pass is holding the lock")
)
