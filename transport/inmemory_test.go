package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInMemoryRoundTrip(t *testing.T) {
	a, b, _ := InMemory()
	ctx := context.Background()

	require.NoError(t, a.Send(ctx, Message{Data: []byte("hello")}))

	msg, err := b.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, "hello", string(msg.Data))
}

func TestInMemoryKillSwitchFailsBothSides(t *testing.T) {
	a, b, kill := InMemory()
	ctx := context.Background()

	kill.Kill()

	require.ErrorIs(t, a.Send(ctx, Message{Data: []byte("x")}), ErrClosed)
	_, err := b.Recv(ctx)
	require.ErrorIs(t, err, ErrClosed)
}

func TestInMemoryKillSwitchUnblocksPendingRecv(t *testing.T) {
	a, _, kill := InMemory()
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := a.Recv(ctx)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	kill.Kill()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Recv did not unblock after Kill")
	}
}

// TestInMemoryCloseFailsPeerSend matches the disconnect scenario: one
// side announcing it is done reading causes the other side's
// subsequent Send to fail, not because the writer went away but
// because the reader did.
func TestInMemoryCloseFailsPeerSend(t *testing.T) {
	a, b, _ := InMemory()
	ctx := context.Background()

	require.NoError(t, a.Close())

	err := b.Send(ctx, Message{Data: []byte("x")})
	require.ErrorIs(t, err, ErrClosed)
}

// TestInMemoryCloseDrainsThenEOF matches the dropped-remote-transport
// scenario: closing one side lets the peer drain whatever was already
// queued, then observe closure on the next Recv.
func TestInMemoryCloseDrainsThenEOF(t *testing.T) {
	a, b, _ := InMemory()
	ctx := context.Background()

	require.NoError(t, a.Send(ctx, Message{Data: []byte("queued")}))
	require.NoError(t, a.Close())

	msg, err := b.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, "queued", string(msg.Data))

	_, err = b.Recv(ctx)
	require.ErrorIs(t, err, ErrClosed)
}

func TestInMemoryCloseIsIdempotent(t *testing.T) {
	a, _, _ := InMemory()
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}
