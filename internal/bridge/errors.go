package bridge

import "errors"

var (
	ErrInvalidMessage     = errors.New("invalid cross-chain message")
	ErrMessageStale       = errors.New("cross-chain message outside freshness window")
	ErrUnsupportedChain   = errors.New("unsupported chain")
	ErrUnsupportedType    = errors.New("unsupported message type")
	ErrBridgeDisabled     = errors.New("bridge not enabled")
	ErrNoDestination      = errors.New("no ethereum contract address configured")
	ErrUnauthorizedSender = errors.New("ethereum sender not authorized")
)

// BridgeCallFailedError wraps a failure handing a transaction off to the
// EVM sub-program, matching the Rust source's BridgeCallFailed(String).
type BridgeCallFailedError struct {
	Reason string
	Err    error
}

func (e *BridgeCallFailedError) Error() string {
	return "bridge call failed: " + e.Reason
}

func (e *BridgeCallFailedError) Unwrap() error { return e.Err }
