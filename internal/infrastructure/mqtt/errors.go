package mqtt

import (
	"fmt"

	"github.com/nerrad567/netfleet-core/internal/fault"
)

// Errors returned by the client. Use errors.Is to check for them.
var (
	// ErrNotConnected is returned when operating on a disconnected client.
	ErrNotConnected = fmt.Errorf("%w: mqtt: client not connected", fault.ErrTransport)

	// ErrConnectionFailed is returned when the initial connection attempt fails.
	ErrConnectionFailed = fmt.Errorf("%w: mqtt: connection failed", fault.ErrTransport)

	// ErrPublishFailed is returned when a publish is rejected or times out.
	ErrPublishFailed = fmt.Errorf("%w: mqtt: publish failed", fault.ErrTransport)

	// ErrInvalidQoS is returned for QoS levels other than 0, 1 or 2.
	ErrInvalidQoS = fmt.Errorf("%w: mqtt: QoS must be 0, 1 or 2", fault.ErrValidation)

	// ErrInvalidTopic is returned for empty topics.
	ErrInvalidTopic = fmt.Errorf("%w: mqtt: topic cannot be empty", fault.ErrValidation)

	// ErrPayloadTooLarge is returned when a payload exceeds maxPayloadSize.
	ErrPayloadTooLarge = fmt.Errorf("%w: mqtt: payload too large", fault.ErrValidation)
)
