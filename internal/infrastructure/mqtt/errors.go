package mqtt

import "errors"

// Sentinel errors of the broker client. Failures from paho are wrapped
// with %w so callers can match them with errors.Is.
var (
	// ErrNotConnected means the broker link is down. Publishes made while
	// reconnecting fail with it instead of queueing.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed wraps the cause of a failed Connect.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed covers oversized payloads and rejected or timed-out publishes.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed covers a nil handler and rejected or timed-out subscriptions.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	ErrInvalidQoS   = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrTimeout is returned by Connect when the broker does not answer in time.
	ErrTimeout = errors.New("mqtt: operation timed out")
)
