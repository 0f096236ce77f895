// internal/swap/errors.go
package swap

import "errors"

var (
	// ErrNoRoute means the provider cannot find a route for the
	// requested pair or rejects the quote request.
	ErrNoRoute = errors.New("swap: no route for requested pair")

	// ErrExecution means swap submission or confirmation failed.
	ErrExecution = errors.New("swap: execution failed")

	// ErrInvalidMint means a mint failed base58 public key validation.
	ErrInvalidMint = errors.New("swap: invalid mint address")
)
