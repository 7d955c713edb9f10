package wallet

import "errors"

var (
	// ErrProviderNotFound indicates a connect attempt for an unregistered provider id.
	ErrProviderNotFound = errors.New("wallet provider not registered")

	// ErrConnectionRejected indicates the user declined the account request.
	ErrConnectionRejected = errors.New("wallet connection rejected by user")

	// ErrConnectionFailed covers all non-rejection provider connect failures.
	ErrConnectionFailed = errors.New("wallet connection failed")

	// ErrSigningRejected indicates the user declined a signing prompt. It is
	// reported distinctly from other signing failures.
	ErrSigningRejected = errors.New("signing rejected by user")

	// ErrNoSession indicates an operation that requires a live session was
	// called without one.
	ErrNoSession = errors.New("no active wallet session")

	// ErrBatchUnsupported indicates the signing capability cannot provide
	// atomic batch execution.
	ErrBatchUnsupported = errors.New("atomic batch submission not supported by signer")
)
