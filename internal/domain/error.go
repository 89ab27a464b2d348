package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrAlreadyExists       = errors.New("entity already exists")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInvalidExecContext  = errors.New("invalid query execution context")
	ErrOperationFailed     = errors.New("operation failed")
	ErrReadDatabaseRow     = errors.New("failed to read database row")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrUserNotFound        = errors.New("user not found")
	ErrUserBanned          = errors.New("user is banned")
	ErrInsufficientCredits = errors.New("insufficient credits")

	// Admission errors. All of these are raised before any balance mutation,
	// so a rejected request has zero side effects and is safe to retry.
	ErrDuplicateRequest     = errors.New("duplicate generation request")
	ErrRateLimitExceeded    = errors.New("generation rate limit exceeded")
	ErrMaxActiveGenerations = errors.New("max active generations reached")

	// Lifecycle errors
	ErrGenerationTerminal = errors.New("generation already in a terminal state")
	ErrProviderFailure    = errors.New("provider failed to fulfil generation")
	ErrGenerationTimeout  = errors.New("generation exceeded its deadline")

	// Payment workflow
	ErrPaymentProcessed = errors.New("payment already processed")
)
