package gateway_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/architeacher/mq-gateway/pkg/gateway"
	"github.com/architeacher/mq-gateway/pkg/memtransport"
)

const testQueue = "Q.TEST"

func newConnectedGateway(t *testing.T, transport *memtransport.Transport, opts ...gateway.Option) *gateway.Gateway {
	t.Helper()

	gw, err := gateway.New("QM1", transport, opts...)
	require.NoError(t, err)
	require.NoError(t, gw.Connect(context.Background(), "localhost", "DEV.APP.SVRCONN", 1414, ""))

	return gw
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := gateway.New("", memtransport.New())
	assert.Error(t, err)

	_, err = gateway.New("QM1", nil)
	assert.Error(t, err)
}

func TestConnect_ValidatesBeforeProviderCall(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		props gateway.Properties
	}{
		{
			name:  "empty properties",
			props: gateway.Properties{},
		},
		{
			name: "missing host",
			props: gateway.Properties{
				gateway.PropChannel: "DEV.APP.SVRCONN",
				gateway.PropPort:    "1414",
			},
		},
		{
			name: "missing channel",
			props: gateway.Properties{
				gateway.PropHost: "localhost",
				gateway.PropPort: "1414",
			},
		},
		{
			name: "non-numeric port",
			props: gateway.Properties{
				gateway.PropHost:    "localhost",
				gateway.PropChannel: "DEV.APP.SVRCONN",
				gateway.PropPort:    "NaN",
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			transport := memtransport.New()
			gw, err := gateway.New("QM1", transport)
			require.NoError(t, err)

			err = gw.ConnectWithProperties(context.Background(), tt.props)

			var propErr *gateway.PropertyError
			assert.True(t, errors.As(err, &propErr))
			assert.Zero(t, transport.OpenSessionCalls(), "validation must run before any provider call")
		})
	}
}

func TestConnect_ProviderFailurePropagates(t *testing.T) {
	t.Parallel()

	transport := memtransport.New()
	dialErr := errors.New("broker unreachable")
	transport.SetOpenErr(dialErr)

	gw, err := gateway.New("QM1", transport)
	require.NoError(t, err)

	err = gw.Connect(context.Background(), "localhost", "DEV.APP.SVRCONN", 1414, "")
	assert.ErrorIs(t, err, dialErr)
	assert.False(t, gw.IsConnected())
}

func TestWriteReadScenario(t *testing.T) {
	t.Parallel()

	transport := memtransport.New()
	gw := newConnectedGateway(t, transport)
	ctx := context.Background()

	require.NoError(t, gw.Write(ctx, testQueue, "hello"))

	msg, err := gw.Read(ctx, testQueue)
	require.NoError(t, err)
	assert.Equal(t, "hello", msg)

	msg, err = gw.Read(ctx, testQueue)
	require.NoError(t, err)
	assert.Empty(t, msg)

	// The second read found depth zero and must not have issued a get.
	assert.Equal(t, 1, transport.GetCalls())
}

func TestRead_EmptyQueueSkipsGet(t *testing.T) {
	t.Parallel()

	transport := memtransport.New()
	gw := newConnectedGateway(t, transport)
	ctx := context.Background()

	msg, err := gw.Read(ctx, testQueue)
	require.NoError(t, err)
	assert.Empty(t, msg)
	assert.Zero(t, transport.GetCalls())

	msg, err = gw.Peek(ctx, testQueue)
	require.NoError(t, err)
	assert.Empty(t, msg)
	assert.Zero(t, transport.BrowseCalls())
}

func TestPeek_PreservesDepth(t *testing.T) {
	t.Parallel()

	transport := memtransport.New()
	transport.Seed(testQueue, "payload")
	gw := newConnectedGateway(t, transport)
	ctx := context.Background()

	first, err := gw.Peek(ctx, testQueue)
	require.NoError(t, err)
	second, err := gw.Peek(ctx, testQueue)
	require.NoError(t, err)

	assert.Equal(t, "payload", first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, transport.QueueDepth(testQueue))

	consumed, err := gw.Read(ctx, testQueue)
	require.NoError(t, err)
	assert.Equal(t, "payload", consumed)
	assert.Zero(t, transport.QueueDepth(testQueue))
}

func TestWrite_EmptyMessage(t *testing.T) {
	t.Parallel()

	transport := memtransport.New()
	gw := newConnectedGateway(t, transport)

	err := gw.Write(context.Background(), testQueue, "")
	assert.ErrorIs(t, err, gateway.ErrEmptyMessage)
	assert.Zero(t, transport.PutCalls())
}

func TestPreconditions_Propagate(t *testing.T) {
	t.Parallel()

	transport := memtransport.New()
	gw, err := gateway.New("QM1", transport)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = gw.Read(ctx, testQueue)
	assert.ErrorIs(t, err, gateway.ErrNotConnected)

	err = gw.Write(ctx, testQueue, "msg")
	assert.ErrorIs(t, err, gateway.ErrNotConnected)

	depth, err := gw.Depth(ctx, testQueue)
	assert.ErrorIs(t, err, gateway.ErrNotConnected)
	assert.Equal(t, -1, depth, "depth inspection was never attempted")

	require.NoError(t, gw.Connect(ctx, "localhost", "DEV.APP.SVRCONN", 1414, ""))

	_, err = gw.Read(ctx, "")
	assert.ErrorIs(t, err, gateway.ErrEmptyQueueName)
}

func TestReadSafe_PersistsAndConsumes(t *testing.T) {
	t.Parallel()

	transport := memtransport.New()
	transport.Seed(testQueue, "first message")
	gw := newConnectedGateway(t, transport)

	path := filepath.Join(t.TempDir(), "messages.log")

	msg, err := gw.ReadSafe(context.Background(), testQueue, path, nil)
	require.NoError(t, err)
	assert.Equal(t, "first message", msg)
	assert.Zero(t, transport.QueueDepth(testQueue))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first message", string(content))
}

func TestReadSafe_AppendsInRequestedEncoding(t *testing.T) {
	t.Parallel()

	transport := memtransport.New()
	transport.Seed(testQueue, "héllo")
	gw := newConnectedGateway(t, transport)

	path := filepath.Join(t.TempDir(), "messages.log")

	msg, err := gw.ReadSafe(context.Background(), testQueue, path, charmap.ISO8859_1)
	require.NoError(t, err)
	assert.Equal(t, "héllo", msg)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{'h', 0xe9, 'l', 'l', 'o'}, content)
}

func TestReadSafe_ReturnsPeekedTextWhenConsumeFails(t *testing.T) {
	t.Parallel()

	transport := memtransport.New()
	transport.Seed(testQueue, "sticky")
	gw := newConnectedGateway(t, transport)

	consumeErr := errors.New("get refused")
	transport.SetGetErr(consumeErr)

	path := filepath.Join(t.TempDir(), "messages.log")

	msg, err := gw.ReadSafe(context.Background(), testQueue, path, nil)
	assert.Equal(t, "sticky", msg, "the peeked text is returned even when removal fails")
	assert.ErrorIs(t, err, consumeErr)

	content, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "sticky", string(content))
	assert.Equal(t, 1, transport.QueueDepth(testQueue), "the failed removal left the message behind")
}

func TestReadSafe_EmptyQueueSkipsPersist(t *testing.T) {
	t.Parallel()

	transport := memtransport.New()
	gw := newConnectedGateway(t, transport)

	path := filepath.Join(t.TempDir(), "messages.log")

	msg, err := gw.ReadSafe(context.Background(), testQueue, path, nil)
	require.NoError(t, err)
	assert.Empty(t, msg)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "nothing must be written for an empty queue")
}

func TestDepth(t *testing.T) {
	t.Parallel()

	transport := memtransport.New()
	transport.Seed(testQueue, "a", "b", "c")
	gw := newConnectedGateway(t, transport)

	depth, err := gw.Depth(context.Background(), testQueue)
	require.NoError(t, err)
	assert.Equal(t, 3, depth)
}

func TestDepth_FailureSentinel(t *testing.T) {
	t.Parallel()

	transport := memtransport.New()
	gw := newConnectedGateway(t, transport)

	transport.SetDepthErr(errors.New("inquire refused"))

	depth, err := gw.Depth(context.Background(), testQueue)
	assert.Error(t, err)
	assert.Equal(t, 0, depth, "attempted and failed reports zero, not the never-attempted sentinel")
	assert.Equal(t, 1, transport.OpenSessionCalls(), "a generic failure must not trigger a reconnect")
}

func TestDepth_BrokenConnectionTriggersReconnect(t *testing.T) {
	t.Parallel()

	transport := memtransport.New()
	gw := newConnectedGateway(t, transport, gateway.WithReconnectDelay(time.Millisecond))

	transport.SetDepthErr(fmt.Errorf("session lost: %w", gateway.ErrConnectionBroken))

	depth, err := gw.Depth(context.Background(), testQueue)
	assert.ErrorIs(t, err, gateway.ErrConnectionBroken)
	assert.Equal(t, 0, depth)
	assert.Equal(t, 2, transport.OpenSessionCalls(), "exactly one reconnect attempt")
	assert.True(t, gw.IsConnected())

	transport.SetDepthErr(nil)

	depth, err = gw.Depth(context.Background(), testQueue)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}

func TestKeepAliveFalse_ClosesConnection(t *testing.T) {
	t.Parallel()

	t.Run("read", func(t *testing.T) {
		t.Parallel()

		transport := memtransport.New()
		transport.Seed(testQueue, "msg")
		gw := newConnectedGateway(t, transport)

		msg, err := gw.Read(context.Background(), testQueue, gateway.WithKeepAlive(false))
		require.NoError(t, err)
		assert.Equal(t, "msg", msg)
		assert.False(t, gw.IsConnected())
	})

	t.Run("write", func(t *testing.T) {
		t.Parallel()

		transport := memtransport.New()
		gw := newConnectedGateway(t, transport)

		require.NoError(t, gw.Write(context.Background(), testQueue, "msg", gateway.WithKeepAlive(false)))
		assert.False(t, gw.IsConnected())
	})

	t.Run("depth", func(t *testing.T) {
		t.Parallel()

		transport := memtransport.New()
		gw := newConnectedGateway(t, transport)

		_, err := gw.Depth(context.Background(), testQueue, gateway.WithKeepAlive(false))
		require.NoError(t, err)
		assert.False(t, gw.IsConnected())
	})

	t.Run("failed operation still closes", func(t *testing.T) {
		t.Parallel()

		transport := memtransport.New()
		transport.Seed(testQueue, "msg")
		gw := newConnectedGateway(t, transport)

		transport.SetGetErr(errors.New("get refused"))

		_, err := gw.Read(context.Background(), testQueue, gateway.WithKeepAlive(false))
		assert.Error(t, err)
		assert.False(t, gw.IsConnected())
	})
}

func TestReconnect(t *testing.T) {
	t.Parallel()

	transport := memtransport.New()
	gw := newConnectedGateway(t, transport, gateway.WithReconnectDelay(time.Millisecond))

	require.NoError(t, gw.Reconnect(context.Background()))

	assert.Equal(t, 2, transport.OpenSessionCalls())
	assert.True(t, gw.IsConnected())

	props := transport.LastProperties()
	assert.Equal(t, "localhost", props[gateway.PropHost])
	assert.Equal(t, "DEV.APP.SVRCONN", props[gateway.PropChannel])
	assert.Equal(t, "1414", props[gateway.PropPort])
}

func TestReconnect_WithoutProperties(t *testing.T) {
	t.Parallel()

	gw, err := gateway.New("QM1", memtransport.New())
	require.NoError(t, err)

	err = gw.Reconnect(context.Background())
	assert.ErrorIs(t, err, gateway.ErrNoProperties)
}

func TestReconnect_Cancellable(t *testing.T) {
	t.Parallel()

	transport := memtransport.New()
	gw := newConnectedGateway(t, transport, gateway.WithReconnectDelay(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := gw.Reconnect(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, transport.OpenSessionCalls(), "the wait must abort before reconnecting")
}

func TestClose_Idempotent(t *testing.T) {
	t.Parallel()

	transport := memtransport.New()
	gw, err := gateway.New("QM1", transport)
	require.NoError(t, err)

	require.NoError(t, gw.Close())

	require.NoError(t, gw.Connect(context.Background(), "localhost", "DEV.APP.SVRCONN", 1414, ""))
	require.NoError(t, gw.Close())
	require.NoError(t, gw.Close())

	assert.Equal(t, 1, transport.CommitCalls(), "close commits once per live session")
	assert.False(t, gw.IsConnected())
}

func TestConnect_ReplacesExistingSession(t *testing.T) {
	t.Parallel()

	transport := memtransport.New()
	gw := newConnectedGateway(t, transport)

	require.NoError(t, gw.Connect(context.Background(), "other-host", "DEV.APP.SVRCONN", 1415, ""))

	assert.Equal(t, 2, transport.OpenSessionCalls())
	assert.Equal(t, 1, transport.CommitCalls(), "the previous session was committed and closed")
	assert.Equal(t, "other-host", transport.LastProperties()[gateway.PropHost])
}

func TestOperations_AreSerialized(t *testing.T) {
	t.Parallel()

	transport := memtransport.New()
	transport.SetOpLatency(2 * time.Millisecond)
	for i := 0; i < 64; i++ {
		transport.Seed(testQueue, fmt.Sprintf("msg-%d", i))
	}

	gw := newConnectedGateway(t, transport)
	ctx := context.Background()

	var wg sync.WaitGroup
	for worker := 0; worker < 4; worker++ {
		wg.Add(3)

		go func() {
			defer wg.Done()
			for i := 0; i < 4; i++ {
				_, _ = gw.Read(ctx, testQueue)
			}
		}()

		go func() {
			defer wg.Done()
			for i := 0; i < 4; i++ {
				_, _ = gw.Peek(ctx, testQueue)
			}
		}()

		go func() {
			defer wg.Done()
			for i := 0; i < 4; i++ {
				_, _ = gw.Depth(ctx, testQueue)
			}
		}()
	}
	wg.Wait()

	assert.False(t, transport.RaceDetected(), "operation bodies must never interleave")
}
