package common

import (
	"errors"

	"github.com/hermeznetwork/tracerr"
)

// ErrNotInFF is used when a *big.Int does not fit inside the finite field
var ErrNotInFF = errors.New("BigInt not inside the Finite Field")

// ErrNumOverflow is used when a given value overflows the maximum capacity of the parameter
var ErrNumOverflow = errors.New("Value overflows the type")

// ErrNonceOverflow is used when a given nonce overflows the maximum capacity of the Nonce (2**40-1)
var ErrNonceOverflow = errors.New("Nonce overflow, max value: 2**40 -1")

// ErrMissingPrivateKey is used when signing cannot resolve a private key for
// an account update that requested a signature
var ErrMissingPrivateKey = errors.New("no private key available for the account")

// ErrMissingProver is used when a proof intent names a method for which no
// compiled prover has been registered
var ErrMissingProver = errors.New("no compiled prover for method")

// ErrUnknownMethod is used when a proof intent names a method the registry
// has never seen
var ErrUnknownMethod = errors.New("unknown contract method")

// ErrPreconditionFailed is used when an account's current state does not
// satisfy an update's precondition
var ErrPreconditionFailed = errors.New("account precondition not satisfied")

// ErrInsufficientBalance is used when applying a balance change would leave
// the account negative
var ErrInsufficientBalance = errors.New("insufficient balance")

// ErrInvalidAuthRequired is used when parsing an authorization requirement
// string that is not one of the five recognized values
var ErrInvalidAuthRequired = errors.New("invalid authorization requirement")

// ErrChildrenHashMismatch is used when a checked children commitment does not
// equal the hash the node's calls type pinned
var ErrChildrenHashMismatch = errors.New("children commitment does not match the expected hash")

// ErrDone is used when a function returns earlier due to a cancelled context
var ErrDone = errors.New("done")

// Wrap attaches the call stack to the error
func Wrap(err error) error {
	return tracerr.Wrap(err)
}

// Unwrap returns the error without the attached call stack
func Unwrap(err error) error {
	return tracerr.Unwrap(err)
}

// IsErrDone returns true if the error or wrapped error is ErrDone
func IsErrDone(err error) bool {
	return Unwrap(err) == ErrDone
}
