package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid executor context")

	// Reconciliation errors
	ErrPaymentTerminal = errors.New("payment already in a terminal state")
	ErrOwnerMismatch   = errors.New("renewal owner does not match payment owner")
	ErrEntryTerminal   = errors.New("retry entry already in a terminal state")
)

// Kind classifies a failure for the retry machinery. Transient failures are
// re-attempted by the retry sweep; terminal and integrity failures are not.
type Kind int

const (
	KindTransient Kind = iota
	KindTerminal
	KindIntegrity
)

// ClassifiedError carries a failure kind alongside the wrapped cause so the
// poller, orchestrator and retry sweep can dispatch on it uniformly instead
// of string-matching provider responses.
type ClassifiedError struct {
	Kind Kind
	Err  error
}

func (e *ClassifiedError) Error() string { return e.Err.Error() }
func (e *ClassifiedError) Unwrap() error { return e.Err }

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Kind: KindTransient, Err: err}
}

func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Kind: KindTerminal, Err: err}
}

func Integrity(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Kind: KindIntegrity, Err: err}
}

// KindOf reports the failure kind of err. Unclassified errors default to
// transient so unknown infrastructure failures stay retryable.
func KindOf(err error) Kind {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindTransient
}
