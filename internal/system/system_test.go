package system

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/voxelnet/server/internal/component"
	"github.com/voxelnet/server/internal/core/ecs"
	"github.com/voxelnet/server/internal/core/event"
	coresys "github.com/voxelnet/server/internal/core/system"
	"github.com/voxelnet/server/internal/core/task"
	"github.com/voxelnet/server/internal/net"
	"github.com/voxelnet/server/internal/net/packet"
	"github.com/voxelnet/server/internal/persist"
	"github.com/voxelnet/server/internal/replication"
	"github.com/voxelnet/server/internal/rpc"
)

type recorder struct {
	bcast   [][]byte
	flushes int
}

func (r *recorder) Broadcast(data []byte) { r.bcast = append(r.bcast, data) }
func (r *recorder) Send(_ uint64, data []byte) bool { r.bcast = append(r.bcast, data); return true }
func (r *recorder) Flush() { r.flushes++ }

type fakeSaver struct {
	saved []*persist.Snapshot
	err   error
}

func (f *fakeSaver) Save(_ context.Context, snap *persist.Snapshot) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, snap)
	return nil
}

type fakeExporter struct{ n int }

func (f *fakeExporter) Export() *persist.Snapshot {
	f.n++
	return &persist.Snapshot{LastID: uint32(f.n)}
}

func TestReplicationSystemBroadcastsOnSyncChannel(t *testing.T) {
	log := zaptest.NewLogger(t)
	store := ecs.NewStore(ecs.NewIDAllocator(0), log)
	producer := replication.NewProducer(store, log)
	out := &recorder{}
	sys := NewReplicationSystem(producer, out, log)

	sys.Update(0)
	assert.Empty(t, out.bcast, "idle producer sends nothing")

	_, err := store.Register(component.NewEntity("default"))
	require.NoError(t, err)
	sys.Update(0)
	require.Len(t, out.bcast, 1)
	assert.Equal(t, uint64(1), sys.Sent())

	ch, payload, err := packet.DecodeEnvelope(out.bcast[0])
	require.NoError(t, err)
	assert.Equal(t, packet.ChannelSync, ch)
	d, err := replication.DecodeDelta(payload)
	require.NoError(t, err)
	require.Len(t, d.Spawns, 1)
	assert.Equal(t, "default", d.Spawns[0].Name)
}

func TestOutputPhaseOrder(t *testing.T) {
	log := zaptest.NewLogger(t)
	store := ecs.NewStore(ecs.NewIDAllocator(0), log)
	producer := replication.NewProducer(store, log)
	channel := rpc.NewChannel(rpc.NewRegistry(log), nil, log)
	out := &recorder{}

	runner := coresys.NewRunner()
	runner.Register(NewOutputSystem(out))
	runner.Register(NewReplicationSystem(producer, out, log))
	runner.Register(NewRPCFlushSystem(channel, out))
	runner.Register(NewCleanupSystem(store))

	_, err := store.Register(component.NewEntity("a"))
	require.NoError(t, err)
	channel.Broadcast(&rpc.MoveEntityResponse{ID: 1})
	runner.TickPhase(coresys.PhaseOutput, 0)

	require.Len(t, out.bcast, 2)
	first, _, err := packet.DecodeEnvelope(out.bcast[0])
	require.NoError(t, err)
	second, _, err := packet.DecodeEnvelope(out.bcast[1])
	require.NoError(t, err)
	assert.Equal(t, packet.ChannelSync, first)
	assert.Equal(t, packet.ChannelRPC, second)
	assert.Equal(t, 1, out.flushes)
}

func TestEventDispatchSystem(t *testing.T) {
	bus := event.NewBus()
	var got []uint64
	event.Subscribe(bus, func(ev event.PeerConnected) { got = append(got, ev.Peer) })
	sys := NewEventDispatchSystem(bus)

	event.Emit(bus, event.PeerConnected{Peer: 9})
	sys.Update(0)
	assert.Equal(t, []uint64{9}, got)
	sys.Update(0)
	assert.Equal(t, []uint64{9}, got)
}

type countingTicker struct{ total time.Duration }

func (c *countingTicker) Update(dt time.Duration) { c.total += dt }

func TestUpdateSystemRunsScripts(t *testing.T) {
	store := ecs.NewStore(ecs.NewIDAllocator(0), zaptest.NewLogger(t))
	tick := &countingTicker{}
	NewUpdateSystem(store, tick).Update(50 * time.Millisecond)
	NewUpdateSystem(store, nil).Update(50 * time.Millisecond)
	NewRenderSystem(store).Update(0)
	assert.Equal(t, 50*time.Millisecond, tick.total)
}

func TestCleanupFlushesDestroyQueue(t *testing.T) {
	store := ecs.NewStore(ecs.NewIDAllocator(0), zaptest.NewLogger(t))
	e, err := store.Register(component.NewEntity("gone"))
	require.NoError(t, err)
	store.MarkForDestruction(e.ID())
	_, ok := store.Get(e.ID())
	assert.True(t, ok)

	NewCleanupSystem(store).Update(0)
	_, ok = store.Get(e.ID())
	assert.False(t, ok)
}

func TestPersistenceSavesEveryInterval(t *testing.T) {
	saver := &fakeSaver{}
	exp := &fakeExporter{}
	sys := NewPersistenceSystem(exp, saver, zaptest.NewLogger(t), 3)

	for i := 0; i < 7; i++ {
		sys.Update(0)
	}
	assert.Len(t, saver.saved, 2)

	require.NoError(t, sys.SaveNow(context.Background()))
	assert.Len(t, saver.saved, 3)

	saver.err = errors.New("db down")
	assert.Error(t, sys.SaveNow(context.Background()))
	sys.Update(0)
	sys.Update(0)
	sys.Update(0)
	assert.Len(t, saver.saved, 3)
}

func TestInputSystemDispatchesAndDrainsTasks(t *testing.T) {
	log := zaptest.NewLogger(t)
	hub := net.NewHub(net.SessionConfig{}, log)
	defer hub.Close()
	reg := packet.NewRegistry(log)
	var got []string
	reg.Register(packet.ChannelRPC, func(peer uint64, payload []byte) error {
		got = append(got, string(payload))
		return nil
	})
	tasks := task.NewQueue()
	ran := 0
	tasks.Enqueue(func() { ran++ })

	local, remote := net.Pipe()
	_, err := hub.Attach(local)
	require.NoError(t, err)
	require.NoError(t, remote.WriteMessage(packet.EncodeEnvelope(packet.ChannelRPC, []byte("hi"))))

	sys := NewInputSystem(hub, reg, tasks, 8, log)
	require.Eventually(t, func() bool {
		sys.Update(0)
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "hi", got[0])
	assert.Equal(t, 1, ran)
	assert.Equal(t, 1, hub.Len())
}
