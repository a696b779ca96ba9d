package net

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("hello")))
	require.NoError(t, WriteFrame(&buf, []byte{1}))
	assert.Equal(t, []byte{5, 0, 0, 0}, buf.Bytes()[:4])

	got, err := ReadFrame(&buf, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
	got, err = ReadFrame(&buf, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, got)
}

func TestFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, make([]byte, 64)))
	_, err := ReadFrame(&buf, 16)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestPipeOrderingAndClose(t *testing.T) {
	a, b := Pipe()
	require.NoError(t, a.WriteMessage([]byte("1")))
	require.NoError(t, a.WriteMessage([]byte("2")))
	require.NoError(t, a.Close())

	got, err := b.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "1", string(got))
	got, err = b.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "2", string(got))

	_, err = b.ReadMessage()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, b.WriteMessage([]byte("x")), ErrClosed)
}

type inbox struct {
	mu   sync.Mutex
	msgs []string
}

func (in *inbox) add(_ PeerID, data []byte) {
	in.mu.Lock()
	in.msgs = append(in.msgs, string(data))
	in.mu.Unlock()
}

func (in *inbox) snapshot() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]string(nil), in.msgs...)
}

func pump(t *testing.T, hub *Hub, in *inbox, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		hub.Poll(0, in.add)
		return len(in.snapshot()) >= want
	}, 2*time.Second, 5*time.Millisecond)
}

func TestHubLifecycleOverPipe(t *testing.T) {
	log := zaptest.NewLogger(t)
	server := NewHub(SessionConfig{}, log)
	client := NewHub(SessionConfig{}, log)

	var connected, disconnected []PeerID
	server.OnPeerConnected(func(id PeerID) { connected = append(connected, id) })
	server.OnPeerDisconnected(func(id PeerID) { disconnected = append(disconnected, id) })

	a, b := Pipe()
	sess, err := server.Attach(a)
	require.NoError(t, err)
	_, err = client.Attach(b)
	require.NoError(t, err)

	server.Poll(0, func(PeerID, []byte) {})
	require.Equal(t, []PeerID{sess.ID}, connected)
	assert.Equal(t, []PeerID{sess.ID}, server.Peers())
	assert.NotEqual(t, sess.Token.String(), "")

	assert.True(t, server.Send(sess.ID, []byte("direct")))
	server.Broadcast([]byte("all"))
	assert.False(t, server.Send(999, []byte("nobody")))
	server.Flush()

	var got inbox
	pump(t, client, &got, 2)
	assert.Equal(t, []string{"direct", "all"}, got.snapshot())

	client.Close()
	require.Eventually(t, func() bool {
		server.Poll(0, func(PeerID, []byte) {})
		return len(disconnected) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, server.Len())
}

func TestHubDrainsInputBeforeDisconnect(t *testing.T) {
	log := zaptest.NewLogger(t)
	server := NewHub(SessionConfig{}, log)
	a, b := Pipe()
	_, err := server.Attach(a)
	require.NoError(t, err)

	require.NoError(t, b.WriteMessage([]byte("last words")))
	require.NoError(t, b.Close())

	var got inbox
	gone := false
	server.OnPeerDisconnected(func(PeerID) { gone = true })
	require.Eventually(t, func() bool {
		server.Poll(0, got.add)
		return gone
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"last words"}, got.snapshot())
}

func TestHubMaxPerPeer(t *testing.T) {
	log := zaptest.NewLogger(t)
	server := NewHub(SessionConfig{}, log)
	a, b := Pipe()
	_, err := server.Attach(a)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, b.WriteMessage([]byte{byte(i)}))
	}

	var got inbox
	require.Eventually(t, func() bool {
		before := len(got.snapshot())
		server.Poll(2, got.add)
		return len(got.snapshot())-before <= 2 && len(got.snapshot()) == 5
	}, 2*time.Second, 5*time.Millisecond)
}

func roundTrip(t *testing.T, transport string) {
	t.Helper()
	log := zaptest.NewLogger(t)
	server := NewHub(SessionConfig{}, log)
	ln, err := Listen(transport, "127.0.0.1:0", server, 0, log)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ln.Serve(ctx)

	conn, err := Dial(ctx, transport, ln.Addr(), 0)
	require.NoError(t, err)
	client := NewHub(SessionConfig{}, log)
	_, err = client.Attach(conn)
	require.NoError(t, err)
	client.Poll(0, func(PeerID, []byte) {})
	client.Broadcast([]byte("ping"))
	client.Flush()

	var got inbox
	pump(t, server, &got, 1)
	assert.Equal(t, []string{"ping"}, got.snapshot())

	server.Broadcast([]byte("pong"))
	server.Flush()
	var back inbox
	pump(t, client, &back, 1)
	assert.Equal(t, []string{"pong"}, back.snapshot())

	client.Close()
	server.Close()
	require.NoError(t, ln.Close())
}

func TestTCPRoundTrip(t *testing.T) {
	roundTrip(t, TransportTCP)
}

func TestWebSocketRoundTrip(t *testing.T) {
	roundTrip(t, TransportWebSocket)
}

func TestQUICRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("quic handshake in short mode")
	}
	roundTrip(t, TransportQUIC)
}

func TestUnknownTransport(t *testing.T) {
	_, err := Listen("carrier-pigeon", "127.0.0.1:0", nil, 0, zaptest.NewLogger(t))
	assert.Error(t, err)
	_, err = Dial(context.Background(), "carrier-pigeon", "x", 0)
	assert.Error(t, err)
}
