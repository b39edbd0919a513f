package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyMessage is returned by Write when the outgoing message is empty.
	ErrEmptyMessage = errors.New("gateway: message must not be empty")

	// ErrEmptyQueueName is returned when a queue operation is called with an
	// empty queue name.
	ErrEmptyQueueName = errors.New("gateway: queue name must not be empty")

	// ErrNotConnected is returned when a queue operation is attempted
	// without a live session.
	ErrNotConnected = errors.New("gateway: not connected to a queue manager")

	// ErrNoProperties is returned by Reconnect when no connection
	// properties were captured by a previous Connect.
	ErrNoProperties = errors.New("gateway: no connection properties captured")

	// ErrConnectionBroken is the distinguished transport failure signalling
	// that the underlying connection died (reason code 2009). Transports
	// wrap it so the gateway can trigger recovery.
	ErrConnectionBroken = errors.New("gateway: connection broken (2009)")
)

// PropertyError reports a connection property that failed validation.
type PropertyError struct {
	Key    string
	Reason string
}

func (e *PropertyError) Error() string {
	return fmt.Sprintf("gateway: invalid connection property %q: %s", e.Key, e.Reason)
}
