package gateway

import (
	"context"
	"time"
)

// OpenOptions is the set of access-mode flags requested when a queue is
// opened on the transport provider. Flags are combinable.
type OpenOptions int

const (
	// OpenOutput opens the queue for putting messages.
	OpenOutput OpenOptions = 1 << iota
	// OpenInputShared opens the queue for destructive gets with the
	// provider's default sharing mode.
	OpenInputShared
	// OpenInquire allows depth inspection on the opened queue.
	OpenInquire
	// OpenBrowse allows non-destructive gets on the opened queue.
	OpenBrowse
	// OpenFailIfQuiescing makes the open attempt fail if the queue manager
	// is shutting down.
	OpenFailIfQuiescing
)

// Message format and encoding tags carried with puts and gets. The values
// follow the queue-manager wire conventions so that messages interoperate
// with clients written against the vendor API directly.
const (
	// FormatNone tags an outgoing message as unformatted bytes.
	FormatNone = "NONE"
	// FormatString tags a message as character data.
	FormatString = "MQSTR"
	// CharSetUTF8 is the coded character set id for UTF-8 payloads.
	CharSetUTF8 = 1208
	// EncodingNative is the legacy native numeric-encoding marker.
	EncodingNative = 546
)

// PutOptions carries the format and encoding tags attached to a put.
type PutOptions struct {
	Format   string
	Encoding int
}

// GetOptions controls a single get call.
type GetOptions struct {
	// Wait bounds how long the provider may block waiting for a message
	// to arrive. Zero means no wait.
	Wait time.Duration
	// BrowseFirst retrieves the first message without removing it.
	BrowseFirst bool

	Format  string
	CharSet int
}

// Provider is the transport provider the gateway delegates wire-level work
// to. Implementations own protocol negotiation and message encoding; the
// gateway owns session state, serialization and recovery.
type Provider interface {
	OpenSession(ctx context.Context, manager string, props Properties) (Session, error)
}

// Session is one live connection to a queue manager.
type Session interface {
	// AccessQueue opens the named queue with the requested access modes.
	AccessQueue(name string, opts OpenOptions) (Queue, error)
	// Commit flushes any provider-side work that is pending on the session.
	Commit() error
	// Disconnect tears the session down. The session must not be used after.
	Disconnect() error
	// IsConnected reports whether the session is still live.
	IsConnected() bool
}

// Queue is an open handle on a named queue.
type Queue interface {
	Put(ctx context.Context, body []byte, opts PutOptions) error
	// Get retrieves one message. A zero-length result with a nil error
	// signals an empty payload.
	Get(ctx context.Context, opts GetOptions) ([]byte, error)
	CurrentDepth() (int, error)
	Close() error
}
