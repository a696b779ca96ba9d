package component

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxelnet/server/internal/core/ecs"
	"github.com/voxelnet/server/internal/net/packet"
)

func roundTrip(t *testing.T, src, dst ecs.Component) {
	t.Helper()
	w := packet.NewWriter()
	src.Serialize(w)
	r := packet.NewReader(w.Bytes())
	require.NoError(t, dst.Deserialize(r))
	assert.Zero(t, r.Remaining())
}

func TestTransformRoundTrip(t *testing.T) {
	src := NewTransform()
	src.SetPosition(Vec3{1, 2, 3})
	src.SetRotation(Vec3{90, 45, 10})
	src.SetScale(Vec3{2, 2, 2})

	dst := &Transform{}
	roundTrip(t, src, dst)
	assert.Equal(t, src.Position, dst.Position)
	assert.Equal(t, src.Rotation, dst.Rotation)
	assert.Equal(t, src.Scale, dst.Scale)
	assert.False(t, dst.IsDirty())
}

func TestTransformDeserializeTruncated(t *testing.T) {
	tr := NewTransform()
	tr.Position = Vec3{5, 5, 5}
	err := tr.Deserialize(packet.NewReader([]byte{1, 2, 3}))
	assert.ErrorIs(t, err, packet.ErrTruncated)
	assert.Equal(t, Vec3{5, 5, 5}, tr.Position)
}

func TestWrapRotation(t *testing.T) {
	got := WrapRotation(Vec3{370, -90, 360})
	assert.InDelta(t, 10, got.X, 1e-4)
	assert.InDelta(t, 270, got.Y, 1e-4)
	assert.InDelta(t, 0, got.Z, 1e-4)
}

func TestMoveDoesNotMarkDirty(t *testing.T) {
	tr := NewTransform()
	tr.Move(Vec3{1, 1, 1}, Vec3{-10, 0, 0})
	assert.False(t, tr.IsDirty())
	assert.InDelta(t, 350, tr.Rotation.X, 1e-4)

	tr.SetPosition(Vec3{})
	assert.True(t, tr.IsDirty())
	tr.ClearDirty()
	tr.ClearDirty()
	assert.False(t, tr.IsDirty())
}

func TestHealth(t *testing.T) {
	h := NewHealth(10)
	h.Damage(4)
	assert.Equal(t, int32(6), h.Current)
	assert.True(t, h.IsDirty())
	h.Damage(100)
	assert.True(t, h.Dead())
	h.Damage(-50)
	assert.Equal(t, int32(10), h.Current)

	dst := &Health{}
	roundTrip(t, h, dst)
	assert.Equal(t, h.Current, dst.Current)
	assert.Equal(t, h.Max, dst.Max)

	w := packet.NewWriter()
	w.WriteI32(11)
	w.WriteI32(10)
	assert.ErrorIs(t, dst.Deserialize(packet.NewReader(w.Bytes())), packet.ErrMalformed)
}

func TestLabelAndOwnerRoundTrip(t *testing.T) {
	l := &Label{}
	l.SetText("hello")
	l.SetText("hello")
	dl := &Label{}
	roundTrip(t, l, dl)
	assert.Equal(t, "hello", dl.Text)

	o := &Owner{Peer: 42}
	do := &Owner{}
	roundTrip(t, o, do)
	assert.Equal(t, uint64(42), do.Peer)
}

func TestRegisterAll(t *testing.T) {
	reg := ecs.NewRegistry()
	require.NoError(t, RegisterAll(reg))
	assert.Equal(t, []string{TypeHealth, TypeLabel, TypeOwner, TypeTransform}, reg.Names())

	c, ok := reg.Create(TypeTransform)
	require.True(t, ok)
	assert.Equal(t, Vec3{1, 1, 1}, c.(*Transform).Scale)

	assert.Error(t, RegisterAll(reg))
}

func TestNewEntityHasTransform(t *testing.T) {
	e := NewEntity("default.floor")
	assert.True(t, e.IsAuthoritative())
	_, ok := ecs.Get[*Transform](e)
	assert.True(t, ok)

	AttachDefaults(e)
	assert.Len(t, e.Components(), 1)
}
