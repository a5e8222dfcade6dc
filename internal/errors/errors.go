package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type mapped to process exit codes.
type Code int

const (
	CodeSuccess     Code = 0
	CodeInternal    Code = 1
	CodeUsage       Code = 2
	CodeAuth        Code = 10
	CodeRateLimited Code = 11
	CodeUnavailable Code = 12
	CodeUnsupported Code = 13

	// Business outcomes of quote resolution. These are expected results of
	// normal operation, not system faults.
	CodeNoLiquidity      Code = 14
	CodeBelowMinimum     Code = 15
	CodePriceUnavailable Code = 16

	// Execution outcomes.
	CodeQuoteExpired   Code = 17
	CodeWalletRejected Code = 18
	CodeReverted       Code = 19
	CodeSigner         Code = 20
	CodeTimeout        Code = 21
	CodePlan           Code = 22
	CodeSim            Code = 23
)

// Error is a typed CLI error that carries a stable error code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

func HasCode(err error, code Code) bool {
	if cliErr, ok := As(err); ok {
		return cliErr.Code == code
	}
	return false
}

// IsBusinessOutcome reports whether the error is an expected trading outcome
// (no route, amount policy, missing price) rather than a system failure.
func IsBusinessOutcome(err error) bool {
	cliErr, ok := As(err)
	if !ok {
		return false
	}
	switch cliErr.Code {
	case CodeNoLiquidity, CodeBelowMinimum, CodePriceUnavailable:
		return true
	default:
		return false
	}
}

func ExitCode(err error) int {
	if err == nil {
		return int(CodeSuccess)
	}
	if cliErr, ok := As(err); ok {
		return int(cliErr.Code)
	}
	return int(CodeInternal)
}
