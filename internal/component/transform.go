package component

import (
	"math"

	"github.com/voxelnet/server/internal/core/ecs"
	"github.com/voxelnet/server/internal/net/packet"
)

const TypeTransform = "Transform"

type Vec3 struct {
	X, Y, Z float32
}

func (v Vec3) write(w *packet.Writer) {
	w.WriteF32(v.X)
	w.WriteF32(v.Y)
	w.WriteF32(v.Z)
}

func readVec3(r *packet.Reader) Vec3 {
	return Vec3{X: r.ReadF32(), Y: r.ReadF32(), Z: r.ReadF32()}
}

// Transform is the spatial component every entity carries.
// Rotation is in degrees, each axis kept in [0, 360).
type Transform struct {
	ecs.DirtyFlag

	Position Vec3
	Rotation Vec3
	Scale    Vec3
}

func NewTransform() *Transform {
	return &Transform{Scale: Vec3{1, 1, 1}}
}

func (t *Transform) TypeName() string { return TypeTransform }

func (t *Transform) Serialize(w *packet.Writer) {
	t.Position.write(w)
	t.Rotation.write(w)
	t.Scale.write(w)
}

func (t *Transform) Deserialize(r *packet.Reader) error {
	pos, rot, scale := readVec3(r), readVec3(r), readVec3(r)
	if err := r.Err(); err != nil {
		return err
	}
	t.Position, t.Rotation, t.Scale = pos, rot, scale
	return nil
}

// SetPosition moves the entity and marks it for replication.
func (t *Transform) SetPosition(p Vec3) {
	t.Position = p
	t.MarkDirty()
}

// SetRotation stores a wrapped rotation and marks it for replication.
func (t *Transform) SetRotation(r Vec3) {
	t.Rotation = WrapRotation(r)
	t.MarkDirty()
}

func (t *Transform) SetScale(s Vec3) {
	t.Scale = s
	t.MarkDirty()
}

// Move sets position and rotation without marking the component dirty.
// Move broadcasts carry the new state themselves.
func (t *Transform) Move(p, r Vec3) {
	t.Position = p
	t.Rotation = WrapRotation(r)
}

// WrapRotation brings every axis into [0, 360).
func WrapRotation(r Vec3) Vec3 {
	return Vec3{X: wrapDegrees(r.X), Y: wrapDegrees(r.Y), Z: wrapDegrees(r.Z)}
}

func wrapDegrees(d float32) float32 {
	w := float32(math.Mod(float64(d), 360))
	if w < 0 {
		w += 360
	}
	if w >= 360 {
		w = 0
	}
	return w
}
