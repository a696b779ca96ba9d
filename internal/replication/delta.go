package replication

import (
	"fmt"

	"github.com/voxelnet/server/internal/core/ecs"
	"github.com/voxelnet/server/internal/net/packet"
)

const flagFull uint8 = 1 << 0

type Spawn struct {
	ID   ecs.NetworkID
	Name string
}

type Edge struct {
	Parent ecs.NetworkID
	Child  ecs.NetworkID
}

type ComponentRef struct {
	ID   ecs.NetworkID
	Type string
}

type DirtyRecord struct {
	ID      ecs.NetworkID
	Type    string
	Payload []byte
}

// Delta is one sync message. Sections are applied in field order.
type Delta struct {
	// Full marks a snapshot produced by Reload.
	Full bool

	Spawns           []Spawn
	Deletes          []ecs.NetworkID
	AddChildren      []Edge
	RemoveChildren   []Edge
	AddComponents    []ComponentRef
	RemoveComponents []ComponentRef
	Dirty            []DirtyRecord
}

// Empty reports whether the delta carries nothing worth sending.
func (d *Delta) Empty() bool {
	return !d.Full &&
		len(d.Spawns) == 0 && len(d.Deletes) == 0 &&
		len(d.AddChildren) == 0 && len(d.RemoveChildren) == 0 &&
		len(d.AddComponents) == 0 && len(d.RemoveComponents) == 0 &&
		len(d.Dirty) == 0
}

// Encode serializes the delta:
//
//	flags u8
//	spawns        count u32, (id u32, name string)*
//	deletes       count u32, id u32*
//	add-child     count u32, (parent u32, child u32)*
//	remove-child  count u32, (parent u32, child u32)*
//	add-comp      count u32, (id u32, type string)*
//	remove-comp   count u32, (id u32, type string)*
//	dirty         (true, id u32, type string, payload bytes)* false
func (d *Delta) Encode() []byte {
	w := packet.NewWriter()
	var flags uint8
	if d.Full {
		flags |= flagFull
	}
	w.WriteU8(flags)

	w.WriteU32(uint32(len(d.Spawns)))
	for _, s := range d.Spawns {
		w.WriteU32(uint32(s.ID))
		w.WriteString(s.Name)
	}
	w.WriteU32(uint32(len(d.Deletes)))
	for _, id := range d.Deletes {
		w.WriteU32(uint32(id))
	}
	writeEdges(w, d.AddChildren)
	writeEdges(w, d.RemoveChildren)
	writeRefs(w, d.AddComponents)
	writeRefs(w, d.RemoveComponents)

	for _, rec := range d.Dirty {
		w.WriteBool(true)
		w.WriteU32(uint32(rec.ID))
		w.WriteString(rec.Type)
		w.WriteBytes(rec.Payload)
	}
	w.WriteBool(false)
	return w.Bytes()
}

func writeEdges(w *packet.Writer, edges []Edge) {
	w.WriteU32(uint32(len(edges)))
	for _, e := range edges {
		w.WriteU32(uint32(e.Parent))
		w.WriteU32(uint32(e.Child))
	}
}

func writeRefs(w *packet.Writer, refs []ComponentRef) {
	w.WriteU32(uint32(len(refs)))
	for _, r := range refs {
		w.WriteU32(uint32(r.ID))
		w.WriteString(r.Type)
	}
}

// DecodeDelta parses a sync payload. Any malformed section rejects the
// whole message.
func DecodeDelta(payload []byte) (*Delta, error) {
	r := packet.NewReader(payload)
	d := &Delta{}
	d.Full = r.ReadU8()&flagFull != 0

	n := r.ReadCount(8)
	for i := 0; i < n && r.Err() == nil; i++ {
		d.Spawns = append(d.Spawns, Spawn{ID: ecs.NetworkID(r.ReadU32()), Name: r.ReadString()})
	}
	n = r.ReadCount(4)
	for i := 0; i < n && r.Err() == nil; i++ {
		d.Deletes = append(d.Deletes, ecs.NetworkID(r.ReadU32()))
	}
	d.AddChildren = readEdges(r)
	d.RemoveChildren = readEdges(r)
	d.AddComponents = readRefs(r)
	d.RemoveComponents = readRefs(r)

	for r.Err() == nil && r.ReadBool() {
		d.Dirty = append(d.Dirty, DirtyRecord{
			ID:      ecs.NetworkID(r.ReadU32()),
			Type:    r.ReadString(),
			Payload: r.ReadBytes(),
		})
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("decode delta: %w", err)
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("decode delta: %w: %d trailing bytes", packet.ErrMalformed, r.Remaining())
	}
	return d, nil
}

func readEdges(r *packet.Reader) []Edge {
	n := r.ReadCount(8)
	var out []Edge
	for i := 0; i < n && r.Err() == nil; i++ {
		out = append(out, Edge{Parent: ecs.NetworkID(r.ReadU32()), Child: ecs.NetworkID(r.ReadU32())})
	}
	return out
}

func readRefs(r *packet.Reader) []ComponentRef {
	n := r.ReadCount(8)
	var out []ComponentRef
	for i := 0; i < n && r.Err() == nil; i++ {
		out = append(out, ComponentRef{ID: ecs.NetworkID(r.ReadU32()), Type: r.ReadString()})
	}
	return out
}
