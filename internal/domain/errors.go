package domain

import "errors"

var (
	// ErrEndpointUnresolved is returned when no RPC endpoint is configured for the selected network
	ErrEndpointUnresolved = errors.New("rpc endpoint unresolved")

	// ErrContractUnresolved is returned when no marketplace contract address is configured for the selected network
	ErrContractUnresolved = errors.New("marketplace contract address unresolved")

	// ErrAlreadyRunning is returned when starting an ingestor that is already running
	ErrAlreadyRunning = errors.New("ingestor already running")

	// ErrSubscriptionFailed is returned when subscription to events fails
	ErrSubscriptionFailed = errors.New("subscription failed")

	// ErrUnknownEventSignature is returned when a log does not match any marketplace event
	ErrUnknownEventSignature = errors.New("unknown event signature")

	// ErrInvalidLog is returned when a log matches a marketplace event but cannot be decoded
	ErrInvalidLog = errors.New("invalid marketplace log")

	// ErrInvalidEvent is returned when a normalized event fails validation
	ErrInvalidEvent = errors.New("invalid marketplace event")

	// ErrUserNotFound is returned when a user row does not exist
	ErrUserNotFound = errors.New("user not found")
)
