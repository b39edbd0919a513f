package amqptransport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/architeacher/mq-gateway/pkg/gateway"
)

const commitTimeout = 5 * time.Second

type session struct {
	conn         *amqp.Connection
	channel      *amqp.Channel
	logger       gateway.Logger
	pollInterval time.Duration

	mutex   sync.Mutex
	pending []*amqp.DeferredConfirmation
}

func (s *session) AccessQueue(name string, opts gateway.OpenOptions) (gateway.Queue, error) {
	if opts&gateway.OpenFailIfQuiescing != 0 && s.conn.IsClosed() {
		return nil, fmt.Errorf("amqptransport: access queue %q: %w", name, gateway.ErrConnectionBroken)
	}

	// Declare idempotently rather than passively: a passive declare on a
	// missing queue raises a channel exception that kills the channel.
	if _, err := s.channel.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("amqptransport: access queue %q: %w", name, mapErr(err))
	}

	return &queueHandle{session: s, name: name, opts: opts}, nil
}

func (s *session) track(confirmation *amqp.DeferredConfirmation) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.pending = append(s.pending, confirmation)
}

// Commit waits for the broker to confirm every publish issued since the
// last commit.
func (s *session) Commit() error {
	s.mutex.Lock()
	pending := s.pending
	s.pending = nil
	s.mutex.Unlock()

	if len(pending) == 0 {
		return nil
	}

	timer := time.NewTimer(commitTimeout)
	defer timer.Stop()

	for _, confirmation := range pending {
		select {
		case <-confirmation.Done():
			if !confirmation.Acked() {
				return fmt.Errorf("amqptransport: broker rejected publish %d", confirmation.DeliveryTag)
			}
		case <-timer.C:
			return fmt.Errorf("amqptransport: publish %d unconfirmed after %s", confirmation.DeliveryTag, commitTimeout)
		}
	}

	return nil
}

func (s *session) Disconnect() error {
	if err := s.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		if s.logger != nil {
			s.logger.Debug().Err(err).Msg("closing amqp channel failed")
		}
	}

	if err := s.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return fmt.Errorf("amqptransport: disconnect: %w", mapErr(err))
	}

	return nil
}

func (s *session) IsConnected() bool {
	return !s.conn.IsClosed()
}

type queueHandle struct {
	session *session
	name    string
	opts    gateway.OpenOptions
}

func (q *queueHandle) Put(ctx context.Context, body []byte, opts gateway.PutOptions) error {
	if q.opts&gateway.OpenOutput == 0 {
		return fmt.Errorf("amqptransport: queue %q is not open for output", q.name)
	}

	contentType := "application/octet-stream"
	if opts.Format == gateway.FormatString {
		contentType = "text/plain; charset=utf-8"
	}

	confirmation, err := q.session.channel.PublishWithDeferredConfirmWithContext(
		ctx,
		"",     // default exchange
		q.name, // routing key
		false,  // mandatory
		false,  // immediate
		amqp.Publishing{
			ContentType:  contentType,
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Headers: amqp.Table{
				formatHeader:   opts.Format,
				encodingHeader: int32(opts.Encoding),
			},
		},
	)
	if err != nil {
		return fmt.Errorf("amqptransport: publish to %q: %w", q.name, mapErr(err))
	}

	q.session.track(confirmation)

	return nil
}

// Get retrieves one message with basic.get. Browse-first gets leave the
// message on the queue by nacking it back with requeue; the broker marks it
// redelivered, which is the closest AMQP comes to a browse cursor.
func (q *queueHandle) Get(ctx context.Context, opts gateway.GetOptions) ([]byte, error) {
	if opts.BrowseFirst && q.opts&gateway.OpenBrowse == 0 {
		return nil, fmt.Errorf("amqptransport: queue %q is not open for browse", q.name)
	}

	deadline := time.Now().Add(opts.Wait)

	for {
		delivery, ok, err := q.session.channel.Get(q.name, !opts.BrowseFirst)
		if err != nil {
			return nil, fmt.Errorf("amqptransport: get from %q: %w", q.name, mapErr(err))
		}

		if ok {
			if opts.BrowseFirst {
				if err := delivery.Nack(false, true); err != nil {
					return nil, fmt.Errorf("amqptransport: requeue browsed message: %w", mapErr(err))
				}
			}

			return delivery.Body, nil
		}

		if opts.Wait <= 0 || !time.Now().Before(deadline) {
			return nil, nil
		}

		timer := time.NewTimer(q.session.pollInterval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()

			return nil, ctx.Err()
		}
	}
}

func (q *queueHandle) CurrentDepth() (int, error) {
	state, err := q.session.channel.QueueDeclare(q.name, true, false, false, false, nil)
	if err != nil {
		return 0, fmt.Errorf("amqptransport: inquire %q: %w", q.name, mapErr(err))
	}

	return state.Messages, nil
}

func (q *queueHandle) Close() error {
	// AMQP has no per-queue handle to release.
	return nil
}

// mapErr folds connection-fatal AMQP failures into the gateway's
// distinguished broken-connection error.
func mapErr(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, amqp.ErrClosed) {
		return fmt.Errorf("%v: %w", err, gateway.ErrConnectionBroken)
	}

	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) && !amqpErr.Recover {
		return fmt.Errorf("%v: %w", err, gateway.ErrConnectionBroken)
	}

	return err
}
