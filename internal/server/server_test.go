package server

import (
	"bufio"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	devErrors "github.com/conneroisu/liveserve/internal/errors"
	"github.com/conneroisu/liveserve/internal/logging"
	"github.com/conneroisu/liveserve/internal/protocol"
)

func startServer(t *testing.T) *Server {
	t.Helper()

	s := New("localhost:0", logging.NewNop())
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { s.Stop(context.Background()) })

	return s
}

// dialClient opens a raw TCP connection and completes the upgrade, returning
// the socket and a reader positioned at the first frame.
func dialClient(t *testing.T, addr string) (net.Conn, *bufio.Reader) {
	t.Helper()

	client, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	reader := completeHandshake(t, client)
	return client, reader
}

func readMessage(t *testing.T, reader *bufio.Reader) protocol.Message {
	t.Helper()

	frame, err := protocol.ReadFrame(reader)
	require.NoError(t, err)
	require.Equal(t, protocol.OpcodeText, frame.Opcode)

	message, ok := protocol.FromWire(frame.Payload)
	require.True(t, ok)
	return message
}

func TestStartIsIdempotent(t *testing.T) {
	s := startServer(t)

	assert.NoError(t, s.Start(context.Background()))
	assert.NoError(t, s.Start(context.Background()))
}

func TestStopIsIdempotentAndTerminal(t *testing.T) {
	s := New("localhost:0", logging.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	s.Stop(ctx)
	s.Stop(ctx)

	err := s.Start(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, devErrors.NewServerStoppedError())
}

func TestStartSurfacesPortInUse(t *testing.T) {
	first := startServer(t)

	second := New(first.Addr(), logging.NewNop())
	err := second.Start(context.Background())

	require.Error(t, err)
	assert.True(t, devErrors.IsPortInUse(err))
}

func TestBroadcastFanOut(t *testing.T) {
	s := startServer(t)
	ctx := context.Background()

	readers := make([]*bufio.Reader, 3)
	for i := range readers {
		_, readers[i] = dialClient(t, s.Addr())
	}

	require.Eventually(t, func() bool { return s.ConnectionCount() == 3 },
		2*time.Second, 10*time.Millisecond)

	s.BroadcastReload(ctx)

	for i, reader := range readers {
		assert.Equal(t, protocol.Reload(), readMessage(t, reader), "client %d", i)
	}
}

func TestBroadcastToleratesFailedConnection(t *testing.T) {
	// Built directly over pipes so the dead connection fails its write
	// synchronously instead of landing in a kernel buffer.
	s := New("unused:0", logging.NewNop())

	type pipeClient struct {
		conn   net.Conn
		reader *bufio.Reader
	}

	var clients []pipeClient
	for i := uint64(1); i <= 3; i++ {
		clientEnd, serverEnd := net.Pipe()
		conn := newConn(i, serverEnd, logging.NewNop(), nil, s.remove)
		s.conns[i] = conn
		clients = append(clients, pipeClient{conn: clientEnd, reader: bufio.NewReader(clientEnd)})
	}

	// Kill client 2's peer before the broadcast.
	require.NoError(t, clients[1].conn.Close())

	received := make(chan protocol.Message, 2)
	var wg sync.WaitGroup
	for _, c := range []pipeClient{clients[0], clients[2]} {
		wg.Add(1)
		go func(c pipeClient) {
			defer wg.Done()
			frame, err := protocol.ReadFrame(c.reader)
			if err != nil {
				return
			}
			if message, ok := protocol.FromWire(frame.Payload); ok {
				received <- message
			}
		}(c)
	}

	s.broadcast(context.Background(), protocol.Reload())
	wg.Wait()

	require.Len(t, received, 2)
	for len(received) > 0 {
		assert.Equal(t, protocol.Reload(), <-received)
	}

	// The failed connection must have been removed; the healthy two stay.
	assert.Equal(t, 2, s.ConnectionCount())
}

func TestBroadcastOrderingAcrossBackToBackCalls(t *testing.T) {
	s := startServer(t)
	ctx := context.Background()

	_, reader := dialClient(t, s.Addr())
	require.Eventually(t, func() bool { return s.ConnectionCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	s.BroadcastReload(ctx)
	s.BroadcastError(ctx, "compile failed")
	s.BroadcastReload(ctx)

	assert.Equal(t, protocol.Reload(), readMessage(t, reader))
	assert.Equal(t, protocol.Error("compile failed"), readMessage(t, reader))
	assert.Equal(t, protocol.Reload(), readMessage(t, reader))
}

func TestRegistrySettlesToZeroUnderChurn(t *testing.T) {
	s := startServer(t)

	const cycles = 25
	var wg sync.WaitGroup
	for i := 0; i < cycles; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			client, err := net.Dial("tcp", s.Addr())
			if err != nil {
				return
			}
			// Every other cycle completes the handshake first so both
			// teardown paths (pre- and post-upgrade) see churn.
			if i%2 == 0 {
				_, _ = client.Write([]byte(testUpgradeRequest))
			}
			client.Close()
		}(i)
	}
	wg.Wait()

	require.Eventually(t, func() bool { return s.ConnectionCount() == 0 },
		5*time.Second, 20*time.Millisecond)
}

func TestStopClosesConnections(t *testing.T) {
	s := New("localhost:0", logging.NewNop())
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))

	client, reader := dialClient(t, s.Addr())
	require.Eventually(t, func() bool { return s.ConnectionCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	s.Stop(ctx)

	assert.Equal(t, 0, s.ConnectionCount())

	// The client observes the closed socket.
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := protocol.ReadFrame(reader)
	assert.Error(t, err)
}

func TestClientScriptEmbedsAddress(t *testing.T) {
	script := ClientScript("localhost:7331")

	assert.Contains(t, script, `ws://localhost:7331/`)
	assert.Contains(t, script, "location.reload()")
	assert.Contains(t, script, `"ping"`)
}
