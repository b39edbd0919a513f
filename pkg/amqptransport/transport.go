// Package amqptransport implements the gateway transport provider contract
// on top of RabbitMQ using the amqp091-go client.
//
// The mapping onto AMQP 0-9-1 is deliberately conservative: queues are
// declared durably and idempotently on access, puts publish to the default
// exchange with the queue name as routing key, destructive gets use
// basic.get with auto-ack, browse gets use basic.get without ack followed
// by a requeueing nack, and Commit waits on outstanding publisher confirms.
package amqptransport

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/architeacher/mq-gateway/pkg/gateway"
)

const (
	defaultHeartbeat      = 10 * time.Second
	defaultConnectTimeout = 10 * time.Second
	defaultPollInterval   = 100 * time.Millisecond
	defaultVhost          = "/"
	defaultUsername       = "guest"
	defaultPassword       = "guest"

	formatHeader   = "x-mq-format"
	encodingHeader = "x-mq-encoding"
)

// Transport implements gateway.Provider over AMQP 0-9-1.
type Transport struct {
	logger         gateway.Logger
	heartbeat      time.Duration
	connectTimeout time.Duration
	pollInterval   time.Duration
	vhost          string
	username       string
	password       string
}

// Option configures a Transport.
type Option func(*Transport)

// WithLogger returns an Option which sets the logger used by the transport.
func WithLogger(l gateway.Logger) Option {
	return func(t *Transport) {
		t.logger = l
	}
}

// WithHeartbeat returns an Option which sets the AMQP heartbeat interval.
func WithHeartbeat(d time.Duration) Option {
	return func(t *Transport) {
		t.heartbeat = d
	}
}

// WithConnectTimeout returns an Option which bounds the TCP dial.
func WithConnectTimeout(d time.Duration) Option {
	return func(t *Transport) {
		t.connectTimeout = d
	}
}

// WithPollInterval returns an Option which sets the interval between
// basic.get attempts while a bounded-wait get is pending.
func WithPollInterval(d time.Duration) Option {
	return func(t *Transport) {
		t.pollInterval = d
	}
}

// WithVhost returns an Option which sets the broker virtual host.
func WithVhost(vhost string) Option {
	return func(t *Transport) {
		t.vhost = vhost
	}
}

// WithCredentials returns an Option which sets the broker credentials. A
// user id in the connection properties still overrides the username.
func WithCredentials(username, password string) Option {
	return func(t *Transport) {
		t.username = username
		t.password = password
	}
}

// New creates an AMQP transport with sensible defaults for a local broker.
func New(opts ...Option) *Transport {
	transport := &Transport{
		heartbeat:      defaultHeartbeat,
		connectTimeout: defaultConnectTimeout,
		pollInterval:   defaultPollInterval,
		vhost:          defaultVhost,
		username:       defaultUsername,
		password:       defaultPassword,
	}

	for _, opt := range opts {
		opt(transport)
	}

	return transport
}

// OpenSession implements gateway.Provider. The queue manager name and the
// channel name have no AMQP equivalent; both are recorded as client
// connection properties so they show up in broker tooling.
func (t *Transport) OpenSession(ctx context.Context, manager string, props gateway.Properties) (gateway.Session, error) {
	port, err := props.Port()
	if err != nil {
		return nil, fmt.Errorf("amqptransport: invalid port: %w", err)
	}

	username := t.username
	if user := props[gateway.PropUserID]; user != "" {
		username = user
	}

	uri := amqp.URI{
		Scheme:   "amqp",
		Host:     props[gateway.PropHost],
		Port:     port,
		Username: username,
		Password: t.password,
		Vhost:    t.vhost,
	}

	timeout := t.connectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	conn, err := amqp.DialConfig(uri.String(), amqp.Config{
		Heartbeat: t.heartbeat,
		Dial:      amqp.DefaultDial(timeout),
		Properties: amqp.Table{
			"connection_name": manager,
			"channel_name":    props[gateway.PropChannel],
		},
	})
	if err != nil {
		return nil, fmt.Errorf("amqptransport: dial %s: %w", uri.Host, err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()

		return nil, fmt.Errorf("amqptransport: open channel: %w", mapErr(err))
	}

	// Publisher confirms back the session's Commit.
	if err := channel.Confirm(false); err != nil {
		channel.Close()
		conn.Close()

		return nil, fmt.Errorf("amqptransport: enable confirms: %w", mapErr(err))
	}

	if t.logger != nil {
		t.logger.Info().Str("manager", manager).Str("host", uri.Host).Msg("amqp session opened")
	}

	return &session{
		conn:         conn,
		channel:      channel,
		logger:       t.logger,
		pollInterval: t.pollInterval,
	}, nil
}
