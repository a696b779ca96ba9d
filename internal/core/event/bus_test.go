package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusDeliversNextTick(t *testing.T) {
	b := NewBus()
	var got []uint64
	Subscribe(b, func(ev PeerConnected) { got = append(got, ev.Peer) })

	Emit(b, PeerConnected{Peer: 1})
	Emit(b, PeerDisconnected{Peer: 1})
	assert.Equal(t, 2, b.Pending())
	assert.Zero(t, b.DispatchAll(), "nothing is delivered before the swap")

	b.SwapBuffers()
	assert.Equal(t, 2, b.DispatchAll())
	assert.Equal(t, []uint64{1}, got)

	b.SwapBuffers()
	assert.Zero(t, b.DispatchAll())
	assert.Equal(t, []uint64{1}, got)
}

func TestBusMultipleSubscribers(t *testing.T) {
	b := NewBus()
	calls := 0
	Subscribe(b, func(ResyncRequested) { calls++ })
	Subscribe(b, func(ResyncRequested) { calls++ })

	Emit(b, ResyncRequested{Peer: 2, Reason: "divergence"})
	b.SwapBuffers()
	b.DispatchAll()
	assert.Equal(t, 2, calls)
}
