package replication

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/voxelnet/server/internal/core/ecs"
)

// Node is the shadow of one entity: its name, parent and child set.
type Node struct {
	Name     string
	Parent   ecs.NetworkID
	Children map[ecs.NetworkID]struct{}
}

func newNode(name string) *Node {
	return &Node{Name: name, Children: make(map[ecs.NetworkID]struct{})}
}

// Topology is a light structural copy of the entity tree. The consumer
// maintains one purely from replication messages and compares it against
// one rebuilt from its live store.
type Topology struct {
	nodes map[ecs.NetworkID]*Node
}

func NewTopology() *Topology {
	return &Topology{nodes: make(map[ecs.NetworkID]*Node)}
}

// FromStore builds a topology from the entities keep accepts. Relations to
// entities outside that set are ignored.
func FromStore(s *ecs.Store, keep func(*ecs.Entity) bool) *Topology {
	t := NewTopology()
	ents := ecs.Filter(s, keep)
	for _, e := range ents {
		t.nodes[e.ID()] = newNode(e.Name())
	}
	for _, e := range ents {
		n := t.nodes[e.ID()]
		if _, ok := t.nodes[e.Parent()]; ok {
			n.Parent = e.Parent()
		}
		for _, c := range e.Children() {
			if _, ok := t.nodes[c]; ok {
				n.Children[c] = struct{}{}
			}
		}
	}
	return t
}

func (t *Topology) Len() int { return len(t.nodes) }

func (t *Topology) Node(id ecs.NetworkID) (*Node, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// AddNode records a spawn. Re-adding an id renames it and keeps relations.
func (t *Topology) AddNode(id ecs.NetworkID, name string) {
	if n, ok := t.nodes[id]; ok {
		n.Name = name
		return
	}
	t.nodes[id] = newNode(name)
}

// RemoveNode records a delete. The node's children become roots and it
// leaves its parent's child set.
func (t *Topology) RemoveNode(id ecs.NetworkID) {
	n, ok := t.nodes[id]
	if !ok {
		return
	}
	if p, ok := t.nodes[n.Parent]; ok {
		delete(p.Children, id)
	}
	for c := range n.Children {
		if cn, ok := t.nodes[c]; ok && cn.Parent == id {
			cn.Parent = 0
		}
	}
	delete(t.nodes, id)
}

// AddEdge records an add-child. Unknown ids get placeholder nodes with an
// empty name, which will never match a live entity.
func (t *Topology) AddEdge(parent, child ecs.NetworkID) {
	p := t.ensure(parent)
	c := t.ensure(child)
	if old, ok := t.nodes[c.Parent]; ok && c.Parent != parent {
		delete(old.Children, child)
	}
	c.Parent = parent
	p.Children[child] = struct{}{}
}

// RemoveEdge records a remove-child. Unknown pairs are ignored.
func (t *Topology) RemoveEdge(parent, child ecs.NetworkID) {
	p, ok := t.nodes[parent]
	if !ok {
		return
	}
	delete(p.Children, child)
	if c, ok := t.nodes[child]; ok && c.Parent == parent {
		c.Parent = 0
	}
}

func (t *Topology) ensure(id ecs.NetworkID) *Node {
	n, ok := t.nodes[id]
	if !ok {
		n = newNode("")
		t.nodes[id] = n
	}
	return n
}

// Reset forgets every node.
func (t *Topology) Reset() {
	clear(t.nodes)
}

// Equal compares node-for-node: same ids, names, parents and child sets.
func (t *Topology) Equal(o *Topology) bool {
	if len(t.nodes) != len(o.nodes) {
		return false
	}
	for id, a := range t.nodes {
		b, ok := o.nodes[id]
		if !ok || !sameNode(a, b) {
			return false
		}
	}
	return true
}

func sameNode(a, b *Node) bool {
	if a.Name != b.Name || a.Parent != b.Parent || len(a.Children) != len(b.Children) {
		return false
	}
	for c := range a.Children {
		if _, ok := b.Children[c]; !ok {
			return false
		}
	}
	return true
}

// Diff describes up to limit differences between t and o for logging.
func (t *Topology) Diff(o *Topology, limit int) []string {
	var out []string
	add := func(format string, args ...any) bool {
		out = append(out, fmt.Sprintf(format, args...))
		return limit > 0 && len(out) >= limit
	}
	for _, id := range t.ids() {
		a := t.nodes[id]
		b, ok := o.nodes[id]
		switch {
		case !ok:
			if add("%d(%q) only in shadow", id, a.Name) {
				return out
			}
		case a.Name != b.Name:
			if add("%d name %q != %q", id, a.Name, b.Name) {
				return out
			}
		case a.Parent != b.Parent:
			if add("%d parent %d != %d", id, a.Parent, b.Parent) {
				return out
			}
		case !sameNode(a, b):
			if add("%d children %v != %v", id, sortedChildren(a), sortedChildren(b)) {
				return out
			}
		}
	}
	for _, id := range o.ids() {
		if _, ok := t.nodes[id]; !ok {
			if add("%d(%q) only in live tree", id, o.nodes[id].Name) {
				return out
			}
		}
	}
	return out
}

// Fingerprint hashes the topology independent of map and child order.
// Equal topologies have equal fingerprints.
func (t *Topology) Fingerprint() uint64 {
	h := xxhash.New()
	var buf [4]byte
	put := func(v ecs.NetworkID) {
		binary.LittleEndian.PutUint32(buf[:], uint32(v))
		h.Write(buf[:])
	}
	for _, id := range t.ids() {
		n := t.nodes[id]
		put(id)
		h.WriteString(n.Name)
		h.Write([]byte{0})
		put(n.Parent)
		for _, c := range sortedChildren(n) {
			put(c)
		}
		h.Write([]byte{0xff})
	}
	return h.Sum64()
}

func (t *Topology) ids() []ecs.NetworkID {
	ids := make([]ecs.NetworkID, 0, len(t.nodes))
	for id := range t.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedChildren(n *Node) []ecs.NetworkID {
	out := make([]ecs.NetworkID, 0, len(n.Children))
	for c := range n.Children {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
