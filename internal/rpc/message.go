package rpc

import (
	"github.com/voxelnet/server/internal/core/ecs"
	"github.com/voxelnet/server/internal/net/packet"
)

// Message is the kind-specific body of one RPC record.
type Message interface {
	Kind() Kind
	Encode(w *packet.Writer)
	Decode(r *packet.Reader)
}

// Failer is implemented by responses that can report failure.
type Failer interface {
	Failed() bool
}

// Vec3 is a position or rotation on the wire.
type Vec3 [3]float32

func writeVec3(w *packet.Writer, v Vec3) {
	w.WriteF32(v[0])
	w.WriteF32(v[1])
	w.WriteF32(v[2])
}

func readVec3(r *packet.Reader) Vec3 {
	return Vec3{r.ReadF32(), r.ReadF32(), r.ReadF32()}
}

func readID(r *packet.Reader) ecs.NetworkID { return ecs.NetworkID(r.ReadU32()) }

// newMessage returns an empty message for kind, or nil if kind is unknown.
func newMessage(k Kind) Message {
	switch k {
	case KindCreateEntity:
		return &CreateEntity{}
	case KindDestroyEntity:
		return &DestroyEntity{}
	case KindAddChild:
		return &AddChild{}
	case KindRemoveChild:
		return &RemoveChild{}
	case KindRequestFullSync:
		return &RequestFullSync{}
	case KindAddComponent:
		return &AddComponent{}
	case KindRemoveComponent:
		return &RemoveComponent{}
	case KindMoveEntity:
		return &MoveEntity{}
	case KindElevate:
		return &Elevate{}
	case KindCreateEntityResponse:
		return &CreateEntityResponse{}
	case KindAddChildResponse:
		return &AddChildResponse{}
	case KindAddComponentResponse:
		return &AddComponentResponse{}
	case KindRemoveComponentResponse:
		return &RemoveComponentResponse{}
	case KindMoveEntityResponse:
		return &MoveEntityResponse{}
	case KindElevateResponse:
		return &ElevateResponse{}
	}
	return nil
}

// ---------- requests ----------

// CreateEntity asks the authority to spawn Name, optionally under Parent.
type CreateEntity struct {
	Name   string
	Parent ecs.NetworkID
}

func (*CreateEntity) Kind() Kind { return KindCreateEntity }
func (m *CreateEntity) Encode(w *packet.Writer) {
	w.WriteString(m.Name)
	w.WriteU32(uint32(m.Parent))
}
func (m *CreateEntity) Decode(r *packet.Reader) {
	m.Name = r.ReadString()
	m.Parent = readID(r)
}

type DestroyEntity struct {
	ID ecs.NetworkID
}

func (*DestroyEntity) Kind() Kind                { return KindDestroyEntity }
func (m *DestroyEntity) Encode(w *packet.Writer) { w.WriteU32(uint32(m.ID)) }
func (m *DestroyEntity) Decode(r *packet.Reader) { m.ID = readID(r) }

type AddChild struct {
	Parent ecs.NetworkID
	Child  ecs.NetworkID
}

func (*AddChild) Kind() Kind { return KindAddChild }
func (m *AddChild) Encode(w *packet.Writer) {
	w.WriteU32(uint32(m.Parent))
	w.WriteU32(uint32(m.Child))
}
func (m *AddChild) Decode(r *packet.Reader) {
	m.Parent = readID(r)
	m.Child = readID(r)
}

type RemoveChild struct {
	Parent ecs.NetworkID
	Child  ecs.NetworkID
}

func (*RemoveChild) Kind() Kind { return KindRemoveChild }
func (m *RemoveChild) Encode(w *packet.Writer) {
	w.WriteU32(uint32(m.Parent))
	w.WriteU32(uint32(m.Child))
}
func (m *RemoveChild) Decode(r *packet.Reader) {
	m.Parent = readID(r)
	m.Child = readID(r)
}

// RequestFullSync asks the authority to resend the whole world.
type RequestFullSync struct{}

func (*RequestFullSync) Kind() Kind            { return KindRequestFullSync }
func (*RequestFullSync) Encode(*packet.Writer) {}
func (*RequestFullSync) Decode(*packet.Reader) {}

// AddComponent attaches Type to ID. A non-empty Payload is deserialized
// into the new component.
type AddComponent struct {
	ID      ecs.NetworkID
	Type    string
	Payload []byte
}

func (*AddComponent) Kind() Kind { return KindAddComponent }
func (m *AddComponent) Encode(w *packet.Writer) {
	w.WriteU32(uint32(m.ID))
	w.WriteString(m.Type)
	w.WriteBytes(m.Payload)
}
func (m *AddComponent) Decode(r *packet.Reader) {
	m.ID = readID(r)
	m.Type = r.ReadString()
	m.Payload = r.ReadBytes()
}

type RemoveComponent struct {
	ID   ecs.NetworkID
	Type string
}

func (*RemoveComponent) Kind() Kind { return KindRemoveComponent }
func (m *RemoveComponent) Encode(w *packet.Writer) {
	w.WriteU32(uint32(m.ID))
	w.WriteString(m.Type)
}
func (m *RemoveComponent) Decode(r *packet.Reader) {
	m.ID = readID(r)
	m.Type = r.ReadString()
}

// MoveEntity sets position and rotation; the result is broadcast to every
// peer as a MoveEntityResponse.
type MoveEntity struct {
	ID       ecs.NetworkID
	Position Vec3
	Rotation Vec3
}

func (*MoveEntity) Kind() Kind { return KindMoveEntity }
func (m *MoveEntity) Encode(w *packet.Writer) {
	w.WriteU32(uint32(m.ID))
	writeVec3(w, m.Position)
	writeVec3(w, m.Rotation)
}
func (m *MoveEntity) Decode(r *packet.Reader) {
	m.ID = readID(r)
	m.Position = readVec3(r)
	m.Rotation = readVec3(r)
}

// Elevate trades a shared secret for every mutating grant.
type Elevate struct {
	Secret string
}

func (*Elevate) Kind() Kind                { return KindElevate }
func (m *Elevate) Encode(w *packet.Writer) { w.WriteString(m.Secret) }
func (m *Elevate) Decode(r *packet.Reader) { m.Secret = r.ReadString() }

// ---------- responses ----------

// CreateEntityResponse carries the assigned id. ID 0 means the create
// failed.
type CreateEntityResponse struct {
	ID     ecs.NetworkID
	Name   string
	Parent ecs.NetworkID
}

func (*CreateEntityResponse) Kind() Kind { return KindCreateEntityResponse }
func (m *CreateEntityResponse) Encode(w *packet.Writer) {
	w.WriteU32(uint32(m.ID))
	w.WriteString(m.Name)
	w.WriteU32(uint32(m.Parent))
}
func (m *CreateEntityResponse) Decode(r *packet.Reader) {
	m.ID = readID(r)
	m.Name = r.ReadString()
	m.Parent = readID(r)
}
func (m *CreateEntityResponse) Failed() bool { return m.ID == 0 }

type AddChildResponse struct {
	Parent ecs.NetworkID
	Child  ecs.NetworkID
	OK     bool
}

func (*AddChildResponse) Kind() Kind { return KindAddChildResponse }
func (m *AddChildResponse) Encode(w *packet.Writer) {
	w.WriteU32(uint32(m.Parent))
	w.WriteU32(uint32(m.Child))
	w.WriteBool(m.OK)
}
func (m *AddChildResponse) Decode(r *packet.Reader) {
	m.Parent = readID(r)
	m.Child = readID(r)
	m.OK = r.ReadBool()
}
func (m *AddChildResponse) Failed() bool { return !m.OK }

// AddComponentResponse echoes the component's serialized state.
type AddComponentResponse struct {
	ID      ecs.NetworkID
	Type    string
	Payload []byte
	OK      bool
}

func (*AddComponentResponse) Kind() Kind { return KindAddComponentResponse }
func (m *AddComponentResponse) Encode(w *packet.Writer) {
	w.WriteU32(uint32(m.ID))
	w.WriteString(m.Type)
	w.WriteBytes(m.Payload)
	w.WriteBool(m.OK)
}
func (m *AddComponentResponse) Decode(r *packet.Reader) {
	m.ID = readID(r)
	m.Type = r.ReadString()
	m.Payload = r.ReadBytes()
	m.OK = r.ReadBool()
}
func (m *AddComponentResponse) Failed() bool { return !m.OK }

type RemoveComponentResponse struct {
	ID   ecs.NetworkID
	Type string
	OK   bool
}

func (*RemoveComponentResponse) Kind() Kind { return KindRemoveComponentResponse }
func (m *RemoveComponentResponse) Encode(w *packet.Writer) {
	w.WriteU32(uint32(m.ID))
	w.WriteString(m.Type)
	w.WriteBool(m.OK)
}
func (m *RemoveComponentResponse) Decode(r *packet.Reader) {
	m.ID = readID(r)
	m.Type = r.ReadString()
	m.OK = r.ReadBool()
}
func (m *RemoveComponentResponse) Failed() bool { return !m.OK }

type MoveEntityResponse struct {
	ID       ecs.NetworkID
	Position Vec3
	Rotation Vec3
}

func (*MoveEntityResponse) Kind() Kind { return KindMoveEntityResponse }
func (m *MoveEntityResponse) Encode(w *packet.Writer) {
	w.WriteU32(uint32(m.ID))
	writeVec3(w, m.Position)
	writeVec3(w, m.Rotation)
}
func (m *MoveEntityResponse) Decode(r *packet.Reader) {
	m.ID = readID(r)
	m.Position = readVec3(r)
	m.Rotation = readVec3(r)
}

type ElevateResponse struct {
	OK bool
}

func (*ElevateResponse) Kind() Kind                { return KindElevateResponse }
func (m *ElevateResponse) Encode(w *packet.Writer) { w.WriteBool(m.OK) }
func (m *ElevateResponse) Decode(r *packet.Reader) { m.OK = r.ReadBool() }
func (m *ElevateResponse) Failed() bool            { return !m.OK }
