package replication

import (
	"github.com/voxelnet/server/internal/core/ecs"
	"github.com/voxelnet/server/internal/net/packet"
	"go.uber.org/zap"
)

// State of the producer's outgoing buffer.
type State int

const (
	// StatePending means the next Drain has something to send.
	StatePending State = iota
	// StateSent means everything has been drained and no component is dirty.
	StateSent
)

func (s State) String() string {
	if s == StatePending {
		return "Pending"
	}
	return "Sent"
}

// Producer turns authoritative store changes into deltas. It is the
// store's ChangeListener on the authority. Simulation-thread only.
type Producer struct {
	store *ecs.Store
	state State
	full  bool

	spawns         []Spawn
	deletes        []ecs.NetworkID
	addChildren    []Edge
	removeChildren []Edge
	addComps       []ComponentRef
	removeComps    []ComponentRef

	log *zap.Logger
}

// NewProducer creates a producer and installs it as store's listener.
func NewProducer(store *ecs.Store, log *zap.Logger) *Producer {
	p := &Producer{store: store, state: StateSent, log: log}
	store.SetListener(p)
	return p
}

// State reports whether a Drain would emit anything. Components mark
// themselves dirty without telling the producer, so a Sent buffer turns
// Pending as soon as one authoritative component is dirty.
func (p *Producer) State() State {
	if p.state == StatePending {
		return StatePending
	}
	for _, e := range ecs.Filter(p.store, ecs.Authoritative) {
		for _, c := range e.Components() {
			if c.IsDirty() {
				return StatePending
			}
		}
	}
	return StateSent
}

func (p *Producer) touch() { p.state = StatePending }

func (p *Producer) OnSpawn(e *ecs.Entity) {
	if !e.IsAuthoritative() {
		return
	}
	p.spawns = append(p.spawns, Spawn{ID: e.ID(), Name: e.Name()})
	for _, c := range e.Components() {
		c.MarkDirty()
	}
	p.touch()
}

func (p *Producer) OnDestroy(e *ecs.Entity) {
	if !e.IsAuthoritative() {
		return
	}
	id := e.ID()
	p.addChildren = dropEdges(p.addChildren, id)
	p.removeChildren = dropEdges(p.removeChildren, id)
	p.addComps = dropRefs(p.addComps, id)
	p.removeComps = dropRefs(p.removeComps, id)

	for i, s := range p.spawns {
		if s.ID == id {
			// never sent; peers have nothing to delete
			p.spawns = append(p.spawns[:i], p.spawns[i+1:]...)
			return
		}
	}
	p.deletes = append(p.deletes, id)
	p.touch()
}

func (p *Producer) OnAddChild(parent, child *ecs.Entity) {
	if !parent.IsAuthoritative() || !child.IsAuthoritative() {
		return
	}
	edge := Edge{Parent: parent.ID(), Child: child.ID()}
	if i := indexEdge(p.removeChildren, edge); i >= 0 {
		p.removeChildren = append(p.removeChildren[:i], p.removeChildren[i+1:]...)
	} else {
		p.addChildren = append(p.addChildren, edge)
	}
	p.touch()
}

func (p *Producer) OnRemoveChild(parent, child *ecs.Entity) {
	if !parent.IsAuthoritative() || !child.IsAuthoritative() {
		return
	}
	edge := Edge{Parent: parent.ID(), Child: child.ID()}
	if i := indexEdge(p.addChildren, edge); i >= 0 {
		p.addChildren = append(p.addChildren[:i], p.addChildren[i+1:]...)
	} else {
		p.removeChildren = append(p.removeChildren, edge)
	}
	p.touch()
}

func (p *Producer) OnAddComponent(e *ecs.Entity, c ecs.Component) {
	if !e.IsAuthoritative() {
		return
	}
	c.MarkDirty()
	ref := ComponentRef{ID: e.ID(), Type: c.TypeName()}
	if i := indexRef(p.removeComps, ref); i >= 0 {
		// replaced within one tick: peers keep their instance and the
		// dirty record carries the new state
		p.removeComps = append(p.removeComps[:i], p.removeComps[i+1:]...)
	} else {
		p.addComps = append(p.addComps, ref)
	}
	p.touch()
}

func (p *Producer) OnRemoveComponent(e *ecs.Entity, c ecs.Component) {
	if !e.IsAuthoritative() {
		return
	}
	ref := ComponentRef{ID: e.ID(), Type: c.TypeName()}
	if i := indexRef(p.addComps, ref); i >= 0 {
		p.addComps = append(p.addComps[:i], p.addComps[i+1:]...)
	} else {
		p.removeComps = append(p.removeComps, ref)
	}
	p.touch()
}

// Reload discards queued changes and re-queues the whole authoritative
// world: every entity as a spawn, every relation as an add-child, every
// component dirty. The next Drain is a full snapshot.
func (p *Producer) Reload() {
	p.spawns = p.spawns[:0]
	p.deletes = p.deletes[:0]
	p.addChildren = p.addChildren[:0]
	p.removeChildren = p.removeChildren[:0]
	p.addComps = p.addComps[:0]
	p.removeComps = p.removeComps[:0]

	all := ecs.Filter(p.store, ecs.Authoritative)
	for _, e := range all {
		p.spawns = append(p.spawns, Spawn{ID: e.ID(), Name: e.Name()})
		for _, c := range e.Components() {
			c.MarkDirty()
		}
	}
	for _, e := range all {
		if parent := e.Parent(); parent != 0 {
			p.addChildren = append(p.addChildren, Edge{Parent: parent, Child: e.ID()})
		}
	}
	p.full = true
	p.touch()
	p.log.Debug("完整同步已排入", zap.Int("entities", len(all)))
}

// Drain emits everything queued since the last drain plus one record per
// dirty component, and clears those components' dirty flags. ok is false
// when there is nothing to send.
func (p *Producer) Drain() (d *Delta, ok bool) {
	if p.State() == StateSent {
		return nil, false
	}
	d = &Delta{
		Full:             p.full,
		Spawns:           append([]Spawn(nil), p.spawns...),
		Deletes:          append([]ecs.NetworkID(nil), p.deletes...),
		AddChildren:      append([]Edge(nil), p.addChildren...),
		RemoveChildren:   append([]Edge(nil), p.removeChildren...),
		AddComponents:    append([]ComponentRef(nil), p.addComps...),
		RemoveComponents: append([]ComponentRef(nil), p.removeComps...),
	}

	for _, e := range ecs.Filter(p.store, ecs.Authoritative) {
		for _, c := range e.Components() {
			if !c.IsDirty() {
				continue
			}
			w := packet.NewWriter()
			c.Serialize(w)
			d.Dirty = append(d.Dirty, DirtyRecord{ID: e.ID(), Type: c.TypeName(), Payload: w.Bytes()})
			c.ClearDirty()
		}
	}

	p.spawns = p.spawns[:0]
	p.deletes = p.deletes[:0]
	p.addChildren = p.addChildren[:0]
	p.removeChildren = p.removeChildren[:0]
	p.addComps = p.addComps[:0]
	p.removeComps = p.removeComps[:0]
	p.full = false
	p.state = StateSent

	if d.Empty() {
		return nil, false
	}
	return d, true
}

func dropEdges(edges []Edge, id ecs.NetworkID) []Edge {
	out := edges[:0]
	for _, e := range edges {
		if e.Parent != id && e.Child != id {
			out = append(out, e)
		}
	}
	return out
}

func dropRefs(refs []ComponentRef, id ecs.NetworkID) []ComponentRef {
	out := refs[:0]
	for _, r := range refs {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}

func indexEdge(edges []Edge, e Edge) int {
	for i, x := range edges {
		if x == e {
			return i
		}
	}
	return -1
}

func indexRef(refs []ComponentRef, r ComponentRef) int {
	for i, x := range refs {
		if x == r {
			return i
		}
	}
	return -1
}
