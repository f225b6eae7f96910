package hxdrive

import "errors"

// Sentinel errors for interaction failures.
//
// Configuration errors are fatal to the single interaction and never
// retried. Transport errors (network, timeout, status) are retried up to
// the configured bound. Payload errors abort the specific operation while
// sibling operations continue. Target errors skip the specific fragment
// or swap.
var (
	ErrConfig    = errors.New("hxdrive: invalid configuration")
	ErrNoTarget  = errors.New("hxdrive: target not found")
	ErrTransport = errors.New("hxdrive: transport failure")
	ErrTimeout   = errors.New("hxdrive: request timed out")
	ErrStatus    = errors.New("hxdrive: non-success response status")
	ErrPayload   = errors.New("hxdrive: malformed payload")
	ErrCancelled = errors.New("hxdrive: action cancelled")
)

// IsConfig checks if err is a configuration error.
func IsConfig(err error) bool {
	return errors.Is(err, ErrConfig) || errors.Is(err, ErrNoTarget)
}

// IsTransport checks if err is a retryable transport error, including
// timeouts and non-success statuses.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrStatus)
}

// IsCancelled checks if err represents a declined confirmation or an
// onAction veto.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
