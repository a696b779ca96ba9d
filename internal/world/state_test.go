package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/voxelnet/server/internal/component"
	"github.com/voxelnet/server/internal/core/ecs"
	"github.com/voxelnet/server/internal/data"
	"github.com/voxelnet/server/internal/net/packet"
	"github.com/voxelnet/server/internal/persist"
)

func newState(t *testing.T) *State {
	t.Helper()
	log := zaptest.NewLogger(t)
	reg := ecs.NewRegistry()
	require.NoError(t, component.RegisterAll(reg))
	return NewState(ecs.NewStore(ecs.NewIDAllocator(0), log), reg, log)
}

func TestSpawnUnderParent(t *testing.T) {
	s := newState(t)
	root, err := s.Spawn("default", 0)
	require.NoError(t, err)
	floor, err := s.Spawn("default.floor", root.ID())
	require.NoError(t, err)

	assert.Equal(t, root.ID(), floor.Parent())
	id, ok := s.Find("default.floor")
	assert.True(t, ok)
	assert.Equal(t, floor.ID(), id)
	_, ok = ecs.Get[*component.Transform](floor)
	assert.True(t, ok)

	_, err = s.Spawn("orphan", 99)
	assert.ErrorIs(t, err, ecs.ErrNotFound)
	_, ok = s.Find("orphan")
	assert.False(t, ok)

	_, err = s.Spawn("default", 0)
	assert.ErrorIs(t, err, ecs.ErrAlreadyExists)
	assert.Equal(t, 2, s.Count())
}

func TestMove(t *testing.T) {
	s := newState(t)
	e, err := s.Spawn("mover", 0)
	require.NoError(t, err)
	tr, _ := ecs.Get[*component.Transform](e)
	tr.ClearDirty()

	got, err := s.Move(e.ID(), component.Vec3{X: 1}, component.Vec3{Y: 400})
	require.NoError(t, err)
	assert.Equal(t, float32(1), got.Position.X)
	assert.InDelta(t, 40, got.Rotation.Y, 1e-4)
	assert.False(t, got.IsDirty())

	_, err = s.Move(77, component.Vec3{}, component.Vec3{})
	assert.ErrorIs(t, err, ecs.ErrNotFound)
}

func TestAddRemoveComponent(t *testing.T) {
	s := newState(t)
	e, err := s.Spawn("thing", 0)
	require.NoError(t, err)

	w := packet.NewWriter()
	(&component.Label{Text: "hi"}).Serialize(w)
	c, err := s.AddComponent(e.ID(), component.TypeLabel, w.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "hi", c.(*component.Label).Text)

	_, err = s.AddComponent(e.ID(), component.TypeLabel, nil)
	assert.ErrorIs(t, err, ecs.ErrDuplicateComponent)
	_, err = s.AddComponent(e.ID(), "Nope", nil)
	assert.ErrorIs(t, err, ecs.ErrUnknownComponentType)
	_, err = s.AddComponent(e.ID(), component.TypeHealth, []byte{1})
	assert.ErrorIs(t, err, packet.ErrTruncated)

	require.NoError(t, s.RemoveComponent(e.ID(), component.TypeLabel))
	assert.ErrorIs(t, s.RemoveComponent(e.ID(), component.TypeLabel), ecs.ErrComponentNotFound)
}

func TestSeedResolvesParentsInAnyOrder(t *testing.T) {
	s := newState(t)
	seed := &data.WorldSeed{Entities: []data.EntitySeed{
		{Name: "default.floor", Parent: "default", Label: "floor",
			Transform: &data.TransformSeed{Position: [3]float32{0, -1, 0}, Scale: [3]float32{1, 1, 1}}},
		{Name: "default", Health: 10},
	}}
	n, err := s.Seed(seed)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	floor, ok := s.Store.GetByName("default.floor")
	require.True(t, ok)
	root, _ := s.Store.GetByName("default")
	assert.Equal(t, root.ID(), floor.Parent())
	tr, _ := ecs.Get[*component.Transform](floor)
	assert.Equal(t, float32(-1), tr.Position.Y)
	lbl, ok := ecs.Get[*component.Label](floor)
	require.True(t, ok)
	assert.Equal(t, "floor", lbl.Text)
	_, ok = ecs.Get[*component.Health](root)
	assert.True(t, ok)
}

func TestSeedUnresolvableParent(t *testing.T) {
	s := newState(t)
	_, err := s.Seed(&data.WorldSeed{Entities: []data.EntitySeed{{Name: "a", Parent: "ghost"}}})
	assert.Error(t, err)
}

func TestExportImport(t *testing.T) {
	src := newState(t)
	root, err := src.Spawn("default", 0)
	require.NoError(t, err)
	floor, err := src.Spawn("default.floor", root.ID())
	require.NoError(t, err)
	_, err = src.AddComponent(floor.ID(), component.TypeHealth, nil)
	require.NoError(t, err)
	tmp, err := src.Spawn("tmp", 0)
	require.NoError(t, err)
	require.NoError(t, src.Destroy(tmp.ID()))

	snap := src.Export()
	assert.Equal(t, uint32(tmp.ID()), snap.LastID)
	require.Len(t, snap.Entities, 2)

	dst := newState(t)
	n, err := dst.Import(snap)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, ok := dst.Store.Get(floor.ID())
	require.True(t, ok)
	assert.True(t, got.IsAuthoritative())
	assert.Equal(t, root.ID(), got.Parent())
	assert.Len(t, got.Components(), 2)

	next, err := dst.Spawn("new", 0)
	require.NoError(t, err)
	assert.Greater(t, next.ID(), tmp.ID(), "ids of destroyed entities are not reused")

	_, err = dst.Import(snap)
	assert.Error(t, err)
}

func TestImportDuplicateComponentIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	log := zap.New(core)
	reg := ecs.NewRegistry()
	require.NoError(t, component.RegisterAll(reg))
	s := NewState(ecs.NewStore(ecs.NewIDAllocator(0), log), reg, log)

	label := func(text string) persist.ComponentRow {
		w := packet.NewWriter()
		(&component.Label{Text: text}).Serialize(w)
		return persist.ComponentRow{Type: component.TypeLabel, Payload: w.Bytes()}
	}
	snap := &persist.Snapshot{
		LastID: 5,
		Entities: []persist.EntityRow{
			{ID: 5, Name: "sign", Components: []persist.ComponentRow{label("first"), label("second")}},
		},
	}
	n, err := s.Import(snap)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	e, ok := s.Store.Get(5)
	require.True(t, ok)
	l, ok := ecs.Get[*component.Label](e)
	require.True(t, ok)
	assert.Equal(t, "first", l.Text)
	assert.Len(t, e.Components(), 1)

	warned := logs.FilterField(zap.String("type", component.TypeLabel)).All()
	require.Len(t, warned, 1)
	assert.Equal(t, zap.WarnLevel, warned[0].Level)
}
