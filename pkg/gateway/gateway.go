package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

// Gateway owns one logical connection to a named queue manager and exposes
// serialized enqueue, destructive dequeue, browse, depth inspection and
// recovery operations on top of a pluggable transport Provider.
type Gateway struct {
	manager string

	provider       Provider
	logger         Logger
	reconnectDelay time.Duration
	browseWait     time.Duration

	// mutex serializes every queue operation together with connect, close
	// and reconnect, so at most one operation touches the session at a time.
	mutex   sync.Mutex
	session Session
	props   Properties
}

// New creates a Gateway for the named queue manager. No connection is made
// until Connect is called.
func New(manager string, provider Provider, opts ...Option) (*Gateway, error) {
	if manager == "" {
		return nil, errors.New("gateway: queue manager name must not be empty")
	}

	if provider == nil {
		return nil, errors.New("gateway: transport provider must not be nil")
	}

	options := defaultGatewayOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &Gateway{
		manager:        manager,
		provider:       provider,
		logger:         options.logger,
		reconnectDelay: options.reconnectDelay,
		browseWait:     options.browseWait,
	}, nil
}

// Manager returns the queue manager name the gateway was constructed with.
func (g *Gateway) Manager() string {
	return g.manager
}

// IsConnected reports whether the gateway currently holds a live session.
func (g *Gateway) IsConnected() bool {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	return g.session != nil && g.session.IsConnected()
}

// Connect builds a property map from the discrete connection parameters and
// establishes a session. The user id is optional.
func (g *Gateway) Connect(ctx context.Context, host, channel string, port int, userID string) error {
	return g.ConnectWithProperties(ctx, NewProperties(host, channel, port, userID))
}

// ConnectWithProperties validates the property map, stores it and opens a
// session for the configured queue manager. Validation runs before any
// network attempt; provider failures surface to the caller unmodified.
func (g *Gateway) ConnectWithProperties(ctx context.Context, props Properties) error {
	if err := props.validate(); err != nil {
		return err
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	return g.connectLocked(ctx, props)
}

func (g *Gateway) connectLocked(ctx context.Context, props Properties) error {
	if g.session != nil {
		if err := g.closeLocked(); err != nil && g.logger != nil {
			g.logger.Error().Err(err).Msg("closing previous connection failed")
		}
	}

	session, err := g.provider.OpenSession(ctx, g.manager, props)
	if err != nil {
		return err
	}

	g.session = session
	g.props = props.clone()

	if g.logger != nil {
		g.logger.Info().
			Str("manager", g.manager).
			Str("host", props[PropHost]).
			Str("channel", props[PropChannel]).
			Msg("connected to queue manager")
	}

	return nil
}

// Close commits pending work and disconnects. It is idempotent and a no-op
// when no live session exists.
func (g *Gateway) Close() error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	return g.closeLocked()
}

func (g *Gateway) closeLocked() error {
	if g.session == nil {
		return nil
	}

	// Commit-on-close is best effort; the disconnect still proceeds.
	if err := g.session.Commit(); err != nil && g.logger != nil {
		g.logger.Error().Err(err).Msg("commit before disconnect failed")
	}

	err := g.session.Disconnect()
	g.session = nil

	if g.logger != nil {
		g.logger.Debug().Str("manager", g.manager).Msg("disconnected from queue manager")
	}

	return err
}

// Reconnect unconditionally closes the current connection, waits the
// configured reconnect delay, then connects again with the properties
// captured by the previous Connect.
func (g *Gateway) Reconnect(ctx context.Context) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	return g.reconnectLocked(ctx)
}

func (g *Gateway) reconnectLocked(ctx context.Context) error {
	if err := g.closeLocked(); err != nil && g.logger != nil {
		g.logger.Error().Err(err).Msg("closing connection before reconnect failed")
	}

	if len(g.props) == 0 {
		return ErrNoProperties
	}

	reconnectCounter.Inc()

	// A cancellable wait rather than a bare sleep, so callers can abandon
	// a reconnection loop on shutdown.
	timer := time.NewTimer(g.reconnectDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	return g.connectLocked(ctx, g.props)
}

// checkConnection is the precondition shared by every queue operation other
// than Connect and Reconnect. Failures here propagate to the caller instead
// of degrading to an empty result.
func (g *Gateway) checkConnection(queueName string) error {
	if queueName == "" {
		return ErrEmptyQueueName
	}

	if g.session == nil || !g.session.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// closeAfterCall applies the keep-alive policy once an operation body has
// run, regardless of whether it succeeded.
func (g *Gateway) closeAfterCall(call callOptions) {
	if call.keepAlive {
		return
	}

	if err := g.closeLocked(); err != nil && g.logger != nil {
		g.logger.Error().Err(err).Msg("closing connection after operation failed")
	}
}

// Write puts message onto the named queue. The payload is submitted as
// UTF-8 bytes tagged with the unformatted message format and the legacy
// native encoding marker.
func (g *Gateway) Write(ctx context.Context, queueName, message string, opts ...CallOption) (err error) {
	defer func() { observeOperation("write", err) }()

	if message == "" {
		return ErrEmptyMessage
	}

	call := applyCallOptions(opts)

	g.mutex.Lock()
	defer g.mutex.Unlock()

	if err = g.checkConnection(queueName); err != nil {
		return err
	}
	defer g.closeAfterCall(call)

	queue, err := g.session.AccessQueue(queueName, OpenOutput|OpenFailIfQuiescing)
	if err != nil {
		return fmt.Errorf("open queue %q for output: %w", queueName, err)
	}
	defer queue.Close()

	if err = queue.Put(ctx, []byte(message), PutOptions{Format: FormatNone, Encoding: EncodingNative}); err != nil {
		return fmt.Errorf("put message on %q: %w", queueName, err)
	}

	return nil
}

// Read destructively retrieves one message from the named queue. It returns
// an empty string without attempting a get when the queue depth is zero,
// and an empty string when the retrieved message has a zero-length body.
func (g *Gateway) Read(ctx context.Context, queueName string, opts ...CallOption) (msg string, err error) {
	defer func() { observeOperation("read", err) }()

	call := applyCallOptions(opts)

	g.mutex.Lock()
	defer g.mutex.Unlock()

	if err = g.checkConnection(queueName); err != nil {
		return "", err
	}
	defer g.closeAfterCall(call)

	queue, err := g.session.AccessQueue(queueName, OpenInputShared|OpenInquire)
	if err != nil {
		return "", fmt.Errorf("open queue %q for input: %w", queueName, err)
	}
	defer queue.Close()

	depth, err := queue.CurrentDepth()
	if err != nil {
		return "", fmt.Errorf("inquire depth of %q: %w", queueName, err)
	}
	if depth <= 0 {
		return "", nil
	}

	body, err := queue.Get(ctx, GetOptions{})
	if err != nil {
		return "", fmt.Errorf("get message from %q: %w", queueName, err)
	}

	return string(body), nil
}

// Peek retrieves one message from the named queue without removing it,
// using browse-first semantics combined with a bounded wait. Like Read it
// returns an empty string when the queue depth is zero.
func (g *Gateway) Peek(ctx context.Context, queueName string, opts ...CallOption) (msg string, err error) {
	defer func() { observeOperation("peek", err) }()

	call := applyCallOptions(opts)

	g.mutex.Lock()
	defer g.mutex.Unlock()

	if err = g.checkConnection(queueName); err != nil {
		return "", err
	}
	defer g.closeAfterCall(call)

	queue, err := g.session.AccessQueue(queueName, OpenInputShared|OpenInquire|OpenBrowse)
	if err != nil {
		return "", fmt.Errorf("open queue %q for browse: %w", queueName, err)
	}
	defer queue.Close()

	depth, err := queue.CurrentDepth()
	if err != nil {
		return "", fmt.Errorf("inquire depth of %q: %w", queueName, err)
	}
	if depth <= 0 {
		return "", nil
	}

	body, err := queue.Get(ctx, GetOptions{
		Wait:        g.browseWait,
		BrowseFirst: true,
		Format:      FormatString,
		CharSet:     CharSetUTF8,
	})
	if err != nil {
		return "", fmt.Errorf("browse message on %q: %w", queueName, err)
	}

	return string(body), nil
}

// ReadSafe peeks the named queue, appends the peeked text to filePath in
// the supplied encoding (UTF-8 when enc is nil), then destructively reads
// the queue to remove the message that was just browsed. The peeked text is
// returned even when the persist or removal step fails, so callers always
// know what was written to the file.
//
// Between the browse and the destructive get another consumer can remove,
// or a producer can insert, a message. The removal is therefore not
// guaranteed to take the exact message that was persisted; this is a known
// property of browse-then-consume without a provider-side cursor.
func (g *Gateway) ReadSafe(ctx context.Context, queueName, filePath string, enc encoding.Encoding, opts ...CallOption) (string, error) {
	// The peek keeps the connection open so the consuming read can run;
	// the caller's keep-alive choice applies to the final read.
	text, err := g.Peek(ctx, queueName)
	if err != nil {
		return "", err
	}

	var persistErr, consumeErr error
	if text != "" {
		if persistErr = appendText(filePath, text, enc); persistErr != nil {
			persistErr = fmt.Errorf("persist message to %q: %w", filePath, persistErr)
		}
	}

	if _, consumeErr = g.Read(ctx, queueName, opts...); consumeErr != nil {
		consumeErr = fmt.Errorf("consume after peek: %w", consumeErr)
	}

	return text, errors.Join(persistErr, consumeErr)
}

// Depth returns the number of messages currently on the named queue. It
// returns -1 when inspection could not be attempted at all and 0 when the
// inspection was attempted but failed. A broken-connection failure from the
// provider triggers exactly one reconnection attempt.
func (g *Gateway) Depth(ctx context.Context, queueName string, opts ...CallOption) (depth int, err error) {
	defer func() { observeOperation("depth", err) }()

	call := applyCallOptions(opts)

	g.mutex.Lock()
	defer g.mutex.Unlock()

	if err = g.checkConnection(queueName); err != nil {
		return -1, err
	}
	defer g.closeAfterCall(call)

	queue, err := g.session.AccessQueue(queueName, OpenInputShared|OpenInquire)
	if err != nil {
		return 0, g.depthFailure(ctx, queueName, err)
	}
	defer queue.Close()

	current, err := queue.CurrentDepth()
	if err != nil {
		return 0, g.depthFailure(ctx, queueName, err)
	}

	return current, nil
}

// depthFailure special-cases the distinguished broken-connection reason
// code: the gateway reconnects once instead of treating it as a generic
// inspection failure.
func (g *Gateway) depthFailure(ctx context.Context, queueName string, cause error) error {
	if errors.Is(cause, ErrConnectionBroken) {
		if g.logger != nil {
			g.logger.Error().Err(cause).Str("queue", queueName).Msg("connection broken, reconnecting")
		}

		if rerr := g.reconnectLocked(ctx); rerr != nil && g.logger != nil {
			g.logger.Error().Err(rerr).Msg("reconnect after broken connection failed")
		}
	}

	return fmt.Errorf("inquire depth of %q: %w", queueName, cause)
}

func appendText(path, text string, enc encoding.Encoding) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	var writer io.Writer = file
	var encWriter *transform.Writer
	if enc != nil {
		encWriter = transform.NewWriter(file, enc.NewEncoder())
		writer = encWriter
	}

	_, werr := io.WriteString(writer, text)
	if encWriter != nil {
		if cerr := encWriter.Close(); werr == nil {
			werr = cerr
		}
	}

	if cerr := file.Close(); werr == nil {
		werr = cerr
	}

	return werr
}
