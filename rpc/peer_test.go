package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/require"

	"github.com/relaywire/rpcpeer/schema"
	"github.com/relaywire/rpcpeer/transport"
	"github.com/relaywire/rpcpeer/wire"
)

// newTestPeer builds a Peer and stops its background metrics loop
// when the test ends.
func newTestPeer(t *testing.T) *Peer {
	t.Helper()
	p := New()
	t.Cleanup(p.Close)
	return p
}

// serveOpenBuffer answers one OpenBuffer request the way the original
// test fixture's handle_messages helper does: routing the response by
// path.
func serveOpenBuffer(t *testing.T, server *Peer, env wire.TypedEnvelope[schema.OpenBuffer]) {
	t.Helper()
	var resp schema.OpenBufferResponse
	switch env.Payload.Path {
	case "path/one":
		require.EqualValues(t, 1, env.Payload.WorktreeID)
		resp = schema.OpenBufferResponse{Buffer: &schema.Buffer{ID: 101, Content: "path/one content"}}
	case "path/two":
		require.EqualValues(t, 2, env.Payload.WorktreeID)
		resp = schema.OpenBufferResponse{Buffer: &schema.Buffer{ID: 102, Content: "path/two content"}}
	default:
		t.Fatalf("unexpected path %q", env.Payload.Path)
	}
	require.NoError(t, server.Respond(context.Background(), wire.NewReceipt[schema.OpenBufferResponse](env), resp))
}

// handleServerMessages services a server's inbound queue until it
// closes, replying to Ping with Pong and to OpenBuffer per
// serveOpenBuffer, mirroring the original test suite's handle_messages
// helper.
func handleServerMessages(t *testing.T, server *Peer, inbound <-chan wire.AnyTypedEnvelope) {
	t.Helper()
	go func() {
		for any := range inbound {
			if env, ok := wire.Downcast[schema.Ping](any); ok {
				_ = server.Respond(context.Background(), wire.NewReceipt[schema.Pong](env), schema.Pong{ID: env.Payload.ID})
				continue
			}
			if env, ok := wire.Downcast[schema.OpenBuffer](any); ok {
				serveOpenBuffer(t, server, env)
				continue
			}
			t.Errorf("unknown message type delivered to server: %#v", any)
		}
	}()
}

// attach wires an in-memory pair between a client Peer and a server
// Peer, schedules both I/O tasks, and returns the client's minted
// connection id and the server's inbound queue.
func attach(t *testing.T, ctx context.Context, client, server *Peer) (wire.ConnectionID, <-chan wire.AnyTypedEnvelope) {
	t.Helper()
	clientConn, serverConn, _ := transport.InMemory()

	clientID, clientIO, _ := client.AddConnection(clientConn)
	_, serverIO, serverInbound := server.AddConnection(serverConn)

	go clientIO(ctx)
	go serverIO(ctx)

	return clientID, serverInbound
}

func TestTwoClientsOnePeerPing(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	server := newTestPeer(t)
	client1 := newTestPeer(t)
	client2 := newTestPeer(t)

	client1ID, inbound1 := attach(t, ctx, client1, server)
	client2ID, inbound2 := attach(t, ctx, client2, server)

	handleServerMessages(t, server, inbound1)
	handleServerMessages(t, server, inbound2)

	pong1, err := Request[schema.Pong](ctx, client1, client1ID, schema.Ping{ID: 1})
	require.NoError(t, err)
	require.Equal(t, schema.Pong{ID: 1}, pong1)

	pong2, err := Request[schema.Pong](ctx, client2, client2ID, schema.Ping{ID: 2})
	require.NoError(t, err)
	require.Equal(t, schema.Pong{ID: 2}, pong2)
}

func TestOpenBufferRoutingByPath(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	server := newTestPeer(t)
	client1 := newTestPeer(t)
	client2 := newTestPeer(t)

	client1ID, inbound1 := attach(t, ctx, client1, server)
	client2ID, inbound2 := attach(t, ctx, client2, server)

	handleServerMessages(t, server, inbound1)
	handleServerMessages(t, server, inbound2)

	resp1, err := Request[schema.OpenBufferResponse](ctx, client1, client1ID, schema.OpenBuffer{WorktreeID: 1, Path: "path/one"})
	require.NoError(t, err)
	require.NotNil(t, resp1.Buffer)
	require.EqualValues(t, 101, resp1.Buffer.ID)
	require.Equal(t, "path/one content", resp1.Buffer.Content)

	resp2, err := Request[schema.OpenBufferResponse](ctx, client2, client2ID, schema.OpenBuffer{WorktreeID: 2, Path: "path/two"})
	require.NoError(t, err)
	require.NotNil(t, resp2.Buffer)
	require.EqualValues(t, 102, resp2.Buffer.ID)
	require.Equal(t, "path/two content", resp2.Buffer.Content)
}

func TestDisconnectTerminatesIO(t *testing.T) {
	defer leaktest.Check(t)()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clientConn, serverConn, _ := transport.InMemory()

	client := newTestPeer(t)
	connID, ioTask, inbound := client.AddConnection(clientConn)

	ioEnded := make(chan struct{})
	var ioErr error
	go func() {
		ioErr = ioTask(ctx)
		close(ioEnded)
	}()

	inboundEnded := make(chan struct{})
	go func() {
		<-inbound
		close(inboundEnded)
	}()

	client.Disconnect(connID)

	select {
	case <-ioEnded:
	case <-time.After(time.Second):
		t.Fatal("I/O task did not terminate after Disconnect")
	}
	select {
	case <-inboundEnded:
	case <-time.After(time.Second):
		t.Fatal("inbound queue did not close after Disconnect")
	}
	require.NoError(t, ioErr, "an explicit Disconnect is an orderly teardown, not a task error")

	err := serverConn.Send(ctx, transport.Message{Data: []byte{}})
	require.Error(t, err)

	// Stop the background metrics loop before leaktest.Check's deferred
	// comparison runs; t.Cleanup would otherwise do this too late.
	client.Close()
}

func TestDroppedRemoteTransport(t *testing.T) {
	defer leaktest.Check(t)()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clientConn, serverConn, _ := transport.InMemory()
	require.NoError(t, serverConn.Close())

	client := newTestPeer(t)
	connID, ioTask, inbound := client.AddConnection(clientConn)

	ioEnded := make(chan struct{})
	var ioErr error
	go func() {
		ioErr = ioTask(ctx)
		close(ioEnded)
	}()
	go func() { <-inbound }()

	_, err := Request[schema.Pong](ctx, client, connID, schema.Ping{ID: 42})
	require.Error(t, err)
	require.Equal(t, "connection was closed", err.Error())

	select {
	case <-ioEnded:
	case <-time.After(time.Second):
		t.Fatal("I/O task did not terminate after the remote transport closed")
	}
	require.Error(t, ioErr, "a dropped remote transport is a task error, not an orderly teardown")

	client.Close()
}

func TestResponseTypeMismatch(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	server := newTestPeer(t)
	client := newTestPeer(t)

	clientID, inbound := attach(t, ctx, client, server)

	go func() {
		for any := range inbound {
			env, ok := wire.Downcast[schema.Ping](any)
			if !ok {
				continue
			}
			// Reply with the wrong payload type on purpose.
			_ = server.Respond(context.Background(), wire.NewReceipt[schema.Pong](env), schema.OpenBufferResponse{})
		}
	}()

	_, err := Request[schema.Pong](ctx, client, clientID, schema.Ping{ID: 1})
	require.ErrorIs(t, err, ErrWrongResponseType)

	// The connection must still be usable after a type mismatch.
	_, stillUp := client.connection(clientID)
	require.True(t, stillUp)
}

func TestForwardedRequestCarriesOriginalSenderID(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	server := newTestPeer(t)
	client := newTestPeer(t)

	clientID, inbound := attach(t, ctx, client, server)

	received := make(chan wire.TypedEnvelope[schema.Ping], 1)
	go func() {
		for any := range inbound {
			env, ok := wire.Downcast[schema.Ping](any)
			if !ok {
				continue
			}
			received <- env
			_ = server.Respond(context.Background(), wire.NewReceipt[schema.Pong](env), schema.Pong{ID: env.Payload.ID})
		}
	}()

	origin := wire.PeerID(777)
	_, err := ForwardRequest[schema.Pong](ctx, client, origin, clientID, schema.Ping{ID: 5})
	require.NoError(t, err)

	select {
	case env := <-received:
		originID, ok := env.Origin()
		require.True(t, ok)
		require.Equal(t, origin, originID)
	case <-time.After(time.Second):
		t.Fatal("server never saw the forwarded request")
	}
}
