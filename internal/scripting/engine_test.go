package scripting

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/voxelnet/server/internal/component"
	"github.com/voxelnet/server/internal/core/ecs"
	"github.com/voxelnet/server/internal/rpc"
)

type fakeWorld struct {
	store *ecs.Store
	moves int
}

func newFakeWorld(t *testing.T) *fakeWorld {
	return &fakeWorld{store: ecs.NewStore(ecs.NewIDAllocator(0), zaptest.NewLogger(t))}
}

func (w *fakeWorld) Spawn(name string, parent ecs.NetworkID) (*ecs.Entity, error) {
	e, err := w.store.Register(component.NewEntity(name))
	if err != nil {
		return nil, err
	}
	if parent != 0 {
		if err := w.store.AddChild(parent, e.ID()); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (w *fakeWorld) Destroy(id ecs.NetworkID) error { return w.store.Unregister(id) }

func (w *fakeWorld) Find(name string) (ecs.NetworkID, bool) {
	e, ok := w.store.GetByName(name)
	if !ok {
		return 0, false
	}
	return e.ID(), true
}

func (w *fakeWorld) Count() int { return w.store.Len() }

func (w *fakeWorld) Move(id ecs.NetworkID, pos, rot component.Vec3) (*component.Transform, error) {
	e, ok := w.store.Get(id)
	if !ok {
		return nil, errors.New("missing")
	}
	tr, _ := ecs.Get[*component.Transform](e)
	tr.Move(pos, rot)
	w.moves++
	return tr, nil
}

func newEngine(t *testing.T, w World) *Engine {
	t.Helper()
	e, err := NewEngine(t.TempDir(), w, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func TestWorldAPI(t *testing.T) {
	w := newFakeWorld(t)
	e := newEngine(t, w)
	require.NoError(t, e.LoadString(`
		function on_initialize()
			local root = world.spawn("default")
			local floor = world.spawn("default.floor", root)
			local dup, err = world.spawn("default")
			assert(dup == nil and err ~= nil)
			assert(world.find("default.floor") == floor)
			assert(world.find("nope") == nil)
			assert(world.move(floor, 1, 2, 3, 0, 370, 0))
			assert(not world.move(999, 0, 0, 0))
			log.info("spawned " .. world.count())
		end
	`))
	e.Initialize()

	assert.Equal(t, 2, w.Count())
	id, ok := w.Find("default.floor")
	require.True(t, ok)
	floor, _ := w.store.Get(id)
	tr, _ := ecs.Get[*component.Transform](floor)
	assert.Equal(t, component.Vec3{X: 1, Y: 2, Z: 3}, tr.Position)
	assert.InDelta(t, 10, tr.Rotation.Y, 1e-4)
	assert.Equal(t, 1, w.moves)
}

func TestHooksAreOptionalAndErrorsContained(t *testing.T) {
	e := newEngine(t, newFakeWorld(t))
	e.PreInitialize()
	e.Update(time.Millisecond)
	assert.False(t, e.HasHook(HookUpdate))

	require.NoError(t, e.LoadString(`
		ticks = 0
		function on_update(dt) ticks = ticks + 1 end
		function on_peer_connected(peer) error("bad script") end
	`))
	assert.True(t, e.HasHook(HookUpdate))
	e.Update(50 * time.Millisecond)
	e.Update(50 * time.Millisecond)
	e.PeerConnected(3)
	assert.Equal(t, "2", e.vm.GetGlobal("ticks").String())
}

func TestLoadsScriptDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "hooks"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hooks", "a.lua"),
		[]byte(`function on_uninitialize() done = true end`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hooks", "notes.txt"), []byte("ignored"), 0o644))

	e, err := NewEngine(dir, newFakeWorld(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer e.Close()
	e.Uninitialize()
	assert.Equal(t, "true", e.vm.GetGlobal("done").String())
}

func TestBrokenScriptFailsLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.lua"), []byte(`function (`), 0o644))
	_, err := NewEngine(dir, newFakeWorld(t), zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestShippedScriptsLoad(t *testing.T) {
	w := newFakeWorld(t)
	e, err := NewEngine("../../scripts", w, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer e.Close()
	assert.True(t, e.HasHook(HookInitialize))
	assert.True(t, e.HasHook(HookIsAuthorized))
	e.Initialize()
	e.PeerConnected(1)
	e.EntitySpawned(1, "x", 1)
	e.PeerDisconnected(1)
}

type fixedGate bool

func (g fixedGate) IsAuthorized(uint64, rpc.Kind) bool { return bool(g) }

func TestPolicyOverride(t *testing.T) {
	w := newFakeWorld(t)
	e := newEngine(t, w)

	p := NewPolicy(fixedGate(true), e)
	assert.True(t, p.IsAuthorized(1, rpc.KindDestroyEntity), "no hook keeps the base decision")

	require.NoError(t, e.LoadString(`
		function is_authorized(peer, kind, granted)
			if kind == "destroy-entity" then return false end
			if peer == 7 then return true end
			return nil
		end
	`))
	assert.False(t, p.IsAuthorized(1, rpc.KindDestroyEntity))
	assert.True(t, p.IsAuthorized(1, rpc.KindCreateEntity))

	deny := NewPolicy(fixedGate(false), e)
	assert.True(t, deny.IsAuthorized(7, rpc.KindAddChild))
	assert.False(t, deny.IsAuthorized(8, rpc.KindAddChild))
}
