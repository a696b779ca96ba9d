package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/voxelnet/server/internal/component"
	"github.com/voxelnet/server/internal/core/ecs"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Hook names scripts may define as globals.
const (
	HookPreInitialize    = "on_preinitialize"
	HookInitialize       = "on_initialize"
	HookUpdate           = "on_update"
	HookUninitialize     = "on_uninitialize"
	HookPeerConnected    = "on_peer_connected"
	HookPeerDisconnected = "on_peer_disconnected"
	HookEntitySpawned    = "on_entity_spawned"
	HookIsAuthorized     = "is_authorized"
)

// World is what scripts may touch. world.State implements it.
type World interface {
	Spawn(name string, parent ecs.NetworkID) (*ecs.Entity, error)
	Destroy(id ecs.NetworkID) error
	Find(name string) (ecs.NetworkID, bool)
	Count() int
	Move(id ecs.NetworkID, pos, rot component.Vec3) (*component.Transform, error)
}

// Engine wraps a single gopher-lua VM running server hooks.
// Single-goroutine access only (tick loop).
type Engine struct {
	vm    *lua.LState
	world World
	log   *zap.Logger
}

// NewEngine creates a Lua engine bound to w and loads every script under
// scriptsDir, then its core/, hooks/ and policy/ subdirectories.
func NewEngine(scriptsDir string, w World, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, world: w, log: log}
	e.registerAPI()

	for _, dir := range []string{scriptsDir, "core", "hooks", "policy"} {
		p := dir
		if dir != scriptsDir {
			p = filepath.Join(scriptsDir, dir)
		}
		if err := e.loadDir(p); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load %s scripts: %w", dir, err)
		}
	}
	return e, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// LoadString runs a chunk of Lua source.
func (e *Engine) LoadString(src string) error {
	return e.vm.DoString(src)
}

// HasHook reports whether scripts defined the global function name.
func (e *Engine) HasHook(name string) bool {
	_, ok := e.vm.GetGlobal(name).(*lua.LFunction)
	return ok
}

// call runs hook name if defined. Script errors are logged, never returned.
func (e *Engine) call(name string, nret int, args ...lua.LValue) (lua.LValue, bool) {
	fn, ok := e.vm.GetGlobal(name).(*lua.LFunction)
	if !ok {
		return lua.LNil, false
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    nret,
		Protect: true,
	}, args...); err != nil {
		e.log.Error("lua hook error", zap.String("hook", name), zap.Error(err))
		return lua.LNil, false
	}
	if nret == 0 {
		return lua.LNil, true
	}
	ret := e.vm.Get(-1)
	e.vm.Pop(1)
	return ret, true
}

func (e *Engine) PreInitialize() { e.call(HookPreInitialize, 0) }
func (e *Engine) Initialize()    { e.call(HookInitialize, 0) }
func (e *Engine) Uninitialize()  { e.call(HookUninitialize, 0) }

// Update runs on_update with the tick length in seconds.
func (e *Engine) Update(dt time.Duration) {
	e.call(HookUpdate, 0, lua.LNumber(dt.Seconds()))
}

func (e *Engine) PeerConnected(peer uint64) {
	e.call(HookPeerConnected, 0, lua.LNumber(peer))
}

func (e *Engine) PeerDisconnected(peer uint64) {
	e.call(HookPeerDisconnected, 0, lua.LNumber(peer))
}

func (e *Engine) EntitySpawned(id ecs.NetworkID, name string, peer uint64) {
	e.call(HookEntitySpawned, 0, lua.LNumber(id), lua.LString(name), lua.LNumber(peer))
}

// IsAuthorized asks the is_authorized hook. decided is false when the hook
// is missing, fails, or returns nil.
func (e *Engine) IsAuthorized(peer uint64, kind string, fallback bool) (allowed, decided bool) {
	ret, ok := e.call(HookIsAuthorized, 1, lua.LNumber(peer), lua.LString(kind), lua.LBool(fallback))
	if !ok || ret == lua.LNil {
		return false, false
	}
	return lua.LVAsBool(ret), true
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}

// ---------- Lua API ----------

func (e *Engine) registerAPI() {
	world := e.vm.NewTable()
	e.vm.SetFuncs(world, map[string]lua.LGFunction{
		"spawn":   e.luaSpawn,
		"destroy": e.luaDestroy,
		"find":    e.luaFind,
		"count":   e.luaCount,
		"move":    e.luaMove,
	})
	e.vm.SetGlobal("world", world)

	logT := e.vm.NewTable()
	e.vm.SetFuncs(logT, map[string]lua.LGFunction{
		"info": func(L *lua.LState) int {
			e.log.Info(L.CheckString(1), zap.String("source", "lua"))
			return 0
		},
		"warn": func(L *lua.LState) int {
			e.log.Warn(L.CheckString(1), zap.String("source", "lua"))
			return 0
		},
	})
	e.vm.SetGlobal("log", logT)
}

// world.spawn(name [, parent]) -> id | nil, err
func (e *Engine) luaSpawn(L *lua.LState) int {
	name := L.CheckString(1)
	parent := ecs.NetworkID(L.OptInt64(2, 0))
	ent, err := e.world.Spawn(name, parent)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LNumber(ent.ID()))
	return 1
}

// world.destroy(id) -> bool
func (e *Engine) luaDestroy(L *lua.LState) int {
	err := e.world.Destroy(ecs.NetworkID(L.CheckInt64(1)))
	L.Push(lua.LBool(err == nil))
	return 1
}

// world.find(name) -> id | nil
func (e *Engine) luaFind(L *lua.LState) int {
	id, ok := e.world.Find(L.CheckString(1))
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LNumber(id))
	return 1
}

func (e *Engine) luaCount(L *lua.LState) int {
	L.Push(lua.LNumber(e.world.Count()))
	return 1
}

// world.move(id, x, y, z [, rx, ry, rz]) -> bool
func (e *Engine) luaMove(L *lua.LState) int {
	id := ecs.NetworkID(L.CheckInt64(1))
	pos := component.Vec3{X: lf(L, 2), Y: lf(L, 3), Z: lf(L, 4)}
	rot := component.Vec3{X: lf(L, 5), Y: lf(L, 6), Z: lf(L, 7)}
	_, err := e.world.Move(id, pos, rot)
	L.Push(lua.LBool(err == nil))
	return 1
}

func lf(L *lua.LState, n int) float32 {
	return float32(L.OptNumber(n, 0))
}
