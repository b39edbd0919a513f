package gateway

import (
	"time"
)

const (
	defaultReconnectDelay = 500 * time.Millisecond
	defaultBrowseWait     = 3 * time.Second
)

type gatewayOptions struct {
	logger         Logger
	reconnectDelay time.Duration
	browseWait     time.Duration
}

// Option configures a Gateway at construction time.
type Option func(*gatewayOptions)

// WithLogger returns an Option which sets the logger used by the gateway.
func WithLogger(l Logger) Option {
	return func(o *gatewayOptions) {
		o.logger = l
	}
}

// WithReconnectDelay returns an Option which sets the wait between closing
// a broken connection and the reconnection attempt.
func WithReconnectDelay(delay time.Duration) Option {
	return func(o *gatewayOptions) {
		o.reconnectDelay = delay
	}
}

// WithBrowseWait returns an Option which sets the wait interval used by
// browse gets in Peek.
func WithBrowseWait(wait time.Duration) Option {
	return func(o *gatewayOptions) {
		o.browseWait = wait
	}
}

func defaultGatewayOptions() gatewayOptions {
	return gatewayOptions{
		reconnectDelay: defaultReconnectDelay,
		browseWait:     defaultBrowseWait,
	}
}

type callOptions struct {
	keepAlive bool
}

// CallOption configures a single queue operation.
type CallOption func(*callOptions)

// WithKeepAlive returns a CallOption which controls whether the connection
// stays open after the operation completes. The default is true; passing
// false closes the connection before the call returns, success or failure.
func WithKeepAlive(keep bool) CallOption {
	return func(o *callOptions) {
		o.keepAlive = keep
	}
}

func applyCallOptions(opts []CallOption) callOptions {
	call := callOptions{keepAlive: true}
	for _, opt := range opts {
		opt(&call)
	}

	return call
}
