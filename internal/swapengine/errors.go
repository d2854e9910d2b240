package swapengine

import (
	"errors"
	"fmt"
)

var (
	ErrMarketDataUnavailable = errors.New("market data unavailable")
	ErrInsufficientBalance   = errors.New("insufficient balance")

	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrBroadcastRejected = errors.New("broadcast rejected")
	ErrExpired           = errors.New("blockhash expired before confirmation")
	ErrTimeout           = errors.New("confirmation timeout")
	ErrBuildFailed       = errors.New("transaction build failed")
	ErrAlreadyInFlight   = errors.New("execution already in flight")
)

// ExecError is the terminal error of a FAILED execution.
// Kind is one of the sentinel errors above; errors.Is matches on it.
type ExecError struct {
	Kind error
	Err  error
}

func (e *ExecError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ExecError) Is(target error) bool { return target == e.Kind }

func (e *ExecError) Unwrap() error { return e.Err }

func execErr(kind, err error) *ExecError {
	return &ExecError{Kind: kind, Err: err}
}

var kindNames = map[error]string{
	ErrInsufficientFunds: "INSUFFICIENT_FUNDS",
	ErrBroadcastRejected: "BROADCAST_REJECTED",
	ErrExpired:           "EXPIRED",
	ErrTimeout:           "TIMEOUT",
	ErrBuildFailed:       "BUILD_FAILED",
	ErrAlreadyInFlight:   "ALREADY_IN_FLIGHT",
}

// KindName returns a stable label for the kind of an execution error,
// or "" when err is nil
func KindName(err error) string {
	if err == nil {
		return ""
	}
	var ee *ExecError
	if errors.As(err, &ee) {
		if name, ok := kindNames[ee.Kind]; ok {
			return name
		}
	}
	return "UNKNOWN"
}
