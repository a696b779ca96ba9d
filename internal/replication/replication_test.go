package replication

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/voxelnet/server/internal/component"
	"github.com/voxelnet/server/internal/core/ecs"
)

type side struct {
	store *ecs.Store
	reg   *ecs.Registry
}

func newSide(t *testing.T, base uint32) side {
	t.Helper()
	reg := ecs.NewRegistry()
	require.NoError(t, component.RegisterAll(reg))
	return side{store: ecs.NewStore(ecs.NewIDAllocator(base), zaptest.NewLogger(t)), reg: reg}
}

func spawn(t *testing.T, s *ecs.Store, name string) *ecs.Entity {
	t.Helper()
	e, err := s.Register(component.NewEntity(name))
	require.NoError(t, err)
	return e
}

type link struct {
	server   side
	observer side
	producer *Producer
	consumer *Consumer
	resyncs  int
}

func newLink(t *testing.T) *link {
	t.Helper()
	l := &link{server: newSide(t, 0), observer: newSide(t, 1<<31)}
	log := zaptest.NewLogger(t)
	l.producer = NewProducer(l.server.store, log)
	l.consumer = NewConsumer(l.observer.store, l.observer.reg, ConsumerConfig{
		Defaults:      component.AttachDefaults,
		RequestResync: func() { l.resyncs++ },
	}, log)
	return l
}

// sync drains the producer through the wire codec into the consumer.
func (l *link) sync(t *testing.T) {
	t.Helper()
	d, ok := l.producer.Drain()
	if !ok {
		return
	}
	require.NoError(t, l.consumer.Handle(1, d.Encode()))
}

func TestDeltaRoundTrip(t *testing.T) {
	d := &Delta{
		Full:             true,
		Spawns:           []Spawn{{ID: 1, Name: "default"}, {ID: 2, Name: "default.floor"}},
		Deletes:          []ecs.NetworkID{9},
		AddChildren:      []Edge{{Parent: 1, Child: 2}},
		RemoveChildren:   []Edge{{Parent: 3, Child: 4}},
		AddComponents:    []ComponentRef{{ID: 2, Type: "Label"}},
		RemoveComponents: []ComponentRef{{ID: 2, Type: "Health"}},
		Dirty:            []DirtyRecord{{ID: 2, Type: "Label", Payload: []byte{1, 0, 0, 0, 'x'}}},
	}
	got, err := DecodeDelta(d.Encode())
	require.NoError(t, err)
	assert.Equal(t, d, got)
}

func TestDecodeDeltaRejectsGarbage(t *testing.T) {
	payload := (&Delta{Spawns: []Spawn{{ID: 1, Name: "a"}}}).Encode()
	_, err := DecodeDelta(payload[:len(payload)-3])
	assert.Error(t, err)
	_, err = DecodeDelta(append(payload, 7))
	assert.Error(t, err)
}

func TestProducerDrainEmptyAndState(t *testing.T) {
	l := newLink(t)
	_, ok := l.producer.Drain()
	assert.False(t, ok)

	spawn(t, l.server.store, "a")
	assert.Equal(t, StatePending, l.producer.State())
	d, ok := l.producer.Drain()
	require.True(t, ok)
	assert.Equal(t, StateSent, l.producer.State())
	assert.Len(t, d.Spawns, 1)
	require.Len(t, d.Dirty, 1)
	assert.Equal(t, component.TypeTransform, d.Dirty[0].Type)

	_, ok = l.producer.Drain()
	assert.False(t, ok, "dirty flags cleared after a send")
}

func TestProducerStateFollowsDirtyComponents(t *testing.T) {
	l := newLink(t)
	e := spawn(t, l.server.store, "lamp")
	l.producer.Drain()
	require.Equal(t, StateSent, l.producer.State())

	tr, _ := ecs.Get[*component.Transform](e)
	tr.SetPosition(component.Vec3{X: 3})
	assert.Equal(t, StatePending, l.producer.State())

	d, ok := l.producer.Drain()
	require.True(t, ok)
	assert.Len(t, d.Dirty, 1)
	assert.Equal(t, StateSent, l.producer.State())
}

func TestProducerIgnoresReplicas(t *testing.T) {
	l := newLink(t)
	e := ecs.NewEntity("remote", false)
	e.AssignNetworkID(77)
	_, err := l.server.store.Register(e)
	require.NoError(t, err)
	_, ok := l.producer.Drain()
	assert.False(t, ok)
}

func TestProducerCancelsWithinOneTick(t *testing.T) {
	l := newLink(t)
	a := spawn(t, l.server.store, "a")
	b := spawn(t, l.server.store, "b")
	l.sync(t)

	require.NoError(t, l.server.store.AddChild(a.ID(), b.ID()))
	require.NoError(t, l.server.store.RemoveChild(a.ID(), b.ID()))
	_, err := l.server.store.AddComponentByTypeName(b, l.server.reg, component.TypeLabel)
	require.NoError(t, err)
	require.NoError(t, l.server.store.RemoveComponent(b, component.TypeLabel))

	d, ok := l.producer.Drain()
	if ok {
		assert.Empty(t, d.AddChildren)
		assert.Empty(t, d.RemoveChildren)
		assert.Empty(t, d.AddComponents)
		assert.Empty(t, d.RemoveComponents)
	}
}

func TestProducerSpawnThenDestroyNeverSent(t *testing.T) {
	l := newLink(t)
	root := spawn(t, l.server.store, "root")
	l.sync(t)

	tmp := spawn(t, l.server.store, "tmp")
	require.NoError(t, l.server.store.AddChild(root.ID(), tmp.ID()))
	require.NoError(t, l.server.store.Unregister(tmp.ID()))

	_, ok := l.producer.Drain()
	assert.False(t, ok)
}

func TestReloadDrainCompleteness(t *testing.T) {
	l := newLink(t)
	root := spawn(t, l.server.store, "default")
	floor := spawn(t, l.server.store, "default.floor")
	lamp := spawn(t, l.server.store, "default.floor.lamp")
	require.NoError(t, l.server.store.AddChild(root.ID(), floor.ID()))
	require.NoError(t, l.server.store.AddChild(floor.ID(), lamp.ID()))
	_, err := l.server.store.AddComponentByTypeName(lamp, l.server.reg, component.TypeLabel)
	require.NoError(t, err)
	l.producer.Drain()

	l.producer.Reload()
	d, ok := l.producer.Drain()
	require.True(t, ok)
	assert.True(t, d.Full)
	assert.ElementsMatch(t, []Spawn{
		{ID: root.ID(), Name: "default"},
		{ID: floor.ID(), Name: "default.floor"},
		{ID: lamp.ID(), Name: "default.floor.lamp"},
	}, d.Spawns)
	assert.ElementsMatch(t, []Edge{
		{Parent: root.ID(), Child: floor.ID()},
		{Parent: floor.ID(), Child: lamp.ID()},
	}, d.AddChildren)

	var dirty int
	for _, e := range l.server.store.GetAll() {
		dirty += len(e.Components())
		for _, c := range e.Components() {
			assert.False(t, c.IsDirty())
		}
	}
	assert.Len(t, d.Dirty, dirty)
}

func TestDefaultFloorSpawn(t *testing.T) {
	l := newLink(t)
	floor := spawn(t, l.server.store, "default.floor")
	tr, _ := ecs.Get[*component.Transform](floor)
	tr.SetPosition(component.Vec3{X: 0, Y: -1, Z: 0})
	l.sync(t)

	got, ok := l.observer.store.GetByName("default.floor")
	require.True(t, ok)
	assert.Equal(t, floor.ID(), got.ID())
	assert.False(t, got.IsAuthoritative())
	gtr, ok := ecs.Get[*component.Transform](got)
	require.True(t, ok)
	assert.Equal(t, component.Vec3{X: 0, Y: -1, Z: 0}, gtr.Position)
	assert.False(t, gtr.IsDirty())

	node, ok := l.consumer.Shadow().Node(floor.ID())
	require.True(t, ok)
	assert.Equal(t, "default.floor", node.Name)
	assert.Zero(t, l.resyncs)
}

func TestConsumerMirrorsServer(t *testing.T) {
	l := newLink(t)
	s := l.server.store
	root := spawn(t, s, "world")
	a := spawn(t, s, "world.a")
	b := spawn(t, s, "world.b")
	require.NoError(t, s.AddChild(root.ID(), a.ID()))
	require.NoError(t, s.AddChild(root.ID(), b.ID()))
	l.sync(t)

	require.NoError(t, s.AddChild(a.ID(), b.ID()))
	h, err := s.AddComponentByTypeName(a, l.server.reg, component.TypeHealth)
	require.NoError(t, err)
	h.(*component.Health).Max = 5
	h.(*component.Health).Damage(-5)
	l.sync(t)

	require.NoError(t, s.Unregister(root.ID()))
	l.sync(t)

	serverTopo := FromStore(s, ecs.Authoritative)
	observerTopo := FromStore(l.observer.store, ecs.Replicated)
	assert.True(t, serverTopo.Equal(observerTopo), serverTopo.Diff(observerTopo, 0))
	assert.Equal(t, serverTopo.Fingerprint(), observerTopo.Fingerprint())
	assert.Zero(t, l.resyncs)

	ga, _ := l.observer.store.Get(a.ID())
	gh, ok := ecs.Get[*component.Health](ga)
	require.True(t, ok)
	assert.Equal(t, int32(5), gh.Current)
}

func TestAddChildToUnknownRequestsResyncOnce(t *testing.T) {
	l := newLink(t)
	root := spawn(t, l.server.store, "root")
	l.sync(t)

	bad := &Delta{AddChildren: []Edge{{Parent: root.ID(), Child: 999}}}
	l.consumer.ApplyDelta(bad)
	assert.Equal(t, 1, l.resyncs)
	assert.True(t, l.consumer.AwaitingFull())

	l.consumer.ApplyDelta(bad)
	l.consumer.ApplyDelta(&Delta{Spawns: []Spawn{{ID: 500, Name: "stray"}}})
	assert.Equal(t, 1, l.resyncs)

	l.producer.Reload()
	l.sync(t)
	assert.False(t, l.consumer.AwaitingFull())
	assert.Equal(t, 1, l.resyncs)
	_, ok := l.observer.store.Get(500)
	assert.False(t, ok, "snapshot prunes entities the server does not have")
	assert.True(t, FromStore(l.server.store, ecs.Authoritative).Equal(FromStore(l.observer.store, ecs.Replicated)))
}

func TestResyncCooldown(t *testing.T) {
	l := newLink(t)
	now := time.Unix(100, 0)
	l.consumer.cfg.ResyncCooldown = time.Second
	l.consumer.SetClock(func() time.Time { return now })

	bad := &Delta{AddChildren: []Edge{{Parent: 1, Child: 2}}}
	l.consumer.ApplyDelta(bad)
	l.consumer.ApplyDelta(bad)
	assert.Equal(t, 1, l.resyncs)

	now = now.Add(2 * time.Second)
	l.consumer.ApplyDelta(bad)
	assert.Equal(t, 2, l.resyncs)
}

func TestFullSnapshotReconcilesEdges(t *testing.T) {
	l := newLink(t)
	s := l.server.store
	a := spawn(t, s, "a")
	b := spawn(t, s, "b")
	c := spawn(t, s, "c")
	require.NoError(t, s.AddChild(a.ID(), c.ID()))
	l.sync(t)

	// observer drifts: c moved under b locally
	require.NoError(t, l.observer.store.AddChild(b.ID(), c.ID()))
	l.producer.Reload()
	l.sync(t)

	gc, _ := l.observer.store.Get(c.ID())
	assert.Equal(t, a.ID(), gc.Parent())
	assert.Zero(t, l.resyncs)
}

func TestFullSnapshotDropsComponentRemovedBeforeReload(t *testing.T) {
	l := newLink(t)
	floor := spawn(t, l.server.store, "default.floor")
	_, err := l.server.store.AddComponentByTypeName(floor, l.server.reg, component.TypeLabel)
	require.NoError(t, err)
	l.sync(t)

	got, ok := l.observer.store.Get(floor.ID())
	require.True(t, ok)
	_, ok = got.Component(component.TypeLabel)
	require.True(t, ok)

	// the removal is queued and then discarded by a reload in the same tick
	require.NoError(t, l.server.store.RemoveComponent(floor, component.TypeLabel))
	l.producer.Reload()
	l.sync(t)

	_, ok = got.Component(component.TypeLabel)
	assert.False(t, ok)
	_, ok = ecs.Get[*component.Transform](got)
	assert.True(t, ok, "components still on the server survive")
	assert.Zero(t, l.resyncs)

	l.producer.Reload()
	l.sync(t)
	_, ok = got.Component(component.TypeLabel)
	assert.False(t, ok)
}

func TestParentChildSwapInOneTick(t *testing.T) {
	l := newLink(t)
	s := l.server.store
	outer := spawn(t, s, "outer")
	inner := spawn(t, s, "inner")
	require.NoError(t, s.AddChild(outer.ID(), inner.ID()))
	l.sync(t)

	require.NoError(t, s.RemoveChild(outer.ID(), inner.ID()))
	require.NoError(t, s.AddChild(inner.ID(), outer.ID()))
	l.sync(t)

	gi, _ := l.observer.store.Get(inner.ID())
	gout, _ := l.observer.store.Get(outer.ID())
	assert.Equal(t, ecs.NetworkID(0), gi.Parent())
	assert.Equal(t, inner.ID(), gout.Parent())
	assert.True(t, FromStore(s, ecs.Authoritative).Equal(FromStore(l.observer.store, ecs.Replicated)))
	assert.Zero(t, l.resyncs)
}

func TestSpawnReusingDeletedName(t *testing.T) {
	l := newLink(t)
	old := spawn(t, l.server.store, "slot")
	l.sync(t)

	d := &Delta{
		Spawns:  []Spawn{{ID: old.ID() + 10, Name: "slot"}},
		Deletes: []ecs.NetworkID{old.ID()},
	}
	l.consumer.ApplyDelta(d)
	got, ok := l.observer.store.GetByName("slot")
	require.True(t, ok)
	assert.Equal(t, old.ID()+10, got.ID())
	assert.Zero(t, l.resyncs)
}

func TestUnknownComponentTypeIsSkipped(t *testing.T) {
	l := newLink(t)
	e := spawn(t, l.server.store, "e")
	l.sync(t)

	l.consumer.ApplyDelta(&Delta{
		AddComponents: []ComponentRef{{ID: e.ID(), Type: "Mystery"}},
		Dirty:         []DirtyRecord{{ID: e.ID(), Type: "Mystery", Payload: []byte{1}}},
	})
	got, _ := l.observer.store.Get(e.ID())
	_, ok := got.Component("Mystery")
	assert.False(t, ok)
	assert.Zero(t, l.resyncs)
}

func TestTopologySameOpsAreEqual(t *testing.T) {
	build := func() *Topology {
		tp := NewTopology()
		tp.AddNode(1, "a")
		tp.AddNode(2, "a.b")
		tp.AddNode(3, "a.c")
		tp.AddEdge(1, 2)
		tp.AddEdge(1, 3)
		tp.AddEdge(2, 3)
		tp.RemoveEdge(9, 9)
		tp.RemoveNode(4)
		return tp
	}
	x, y := build(), build()
	assert.True(t, x.Equal(y))
	assert.Equal(t, x.Fingerprint(), y.Fingerprint())
	assert.Empty(t, x.Diff(y, 0))

	n, _ := x.Node(1)
	assert.Len(t, n.Children, 1)
	n3, _ := x.Node(3)
	assert.Equal(t, ecs.NetworkID(2), n3.Parent)

	y.RemoveNode(2)
	assert.False(t, x.Equal(y))
	assert.NotEqual(t, x.Fingerprint(), y.Fingerprint())
	assert.NotEmpty(t, x.Diff(y, 1))

	x.Reset()
	assert.Zero(t, x.Len())
}

func TestTopologyChildOrderIrrelevant(t *testing.T) {
	x, y := NewTopology(), NewTopology()
	for _, tp := range []*Topology{x, y} {
		tp.AddNode(1, "p")
		tp.AddNode(2, "p.a")
		tp.AddNode(3, "p.b")
	}
	x.AddEdge(1, 2)
	x.AddEdge(1, 3)
	y.AddEdge(1, 3)
	y.AddEdge(1, 2)
	assert.True(t, x.Equal(y))
	assert.Equal(t, x.Fingerprint(), y.Fingerprint())
}
