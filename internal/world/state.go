// Package world holds the authoritative world: the entity store, the
// component registry, and the operations handlers and scripts run on them.
package world

import (
	"errors"
	"fmt"

	"github.com/voxelnet/server/internal/component"
	"github.com/voxelnet/server/internal/core/ecs"
	"github.com/voxelnet/server/internal/data"
	"github.com/voxelnet/server/internal/net/packet"
	"github.com/voxelnet/server/internal/persist"
	"go.uber.org/zap"
)

var ErrNotLocal = errors.New("entity is not owned by this peer")

// State is the world seen from one peer. Accessed only from the tick loop.
type State struct {
	Store    *ecs.Store
	Registry *ecs.Registry
	log      *zap.Logger
}

func NewState(store *ecs.Store, reg *ecs.Registry, log *zap.Logger) *State {
	return &State{Store: store, Registry: reg, log: log}
}

// Spawn creates an authoritative entity with the default components, under
// parent when parent is not zero. Nothing is registered if parent is
// unknown.
func (s *State) Spawn(name string, parent ecs.NetworkID) (*ecs.Entity, error) {
	if parent != 0 {
		if _, ok := s.Store.Get(parent); !ok {
			return nil, fmt.Errorf("spawn %s: %w: parent %d", name, ecs.ErrNotFound, parent)
		}
	}
	e, err := s.Store.Register(component.NewEntity(name))
	if err != nil {
		return nil, fmt.Errorf("spawn %s: %w", name, err)
	}
	if parent != 0 {
		if err := s.Store.AddChild(parent, e.ID()); err != nil {
			_ = s.Store.Unregister(e.ID())
			return nil, fmt.Errorf("spawn %s: %w", name, err)
		}
	}
	s.log.Debug("實體已生成",
		zap.Uint32("id", uint32(e.ID())),
		zap.String("name", e.Name()),
		zap.Uint32("parent", uint32(parent)),
	)
	return e, nil
}

// Destroy removes an entity immediately.
func (s *State) Destroy(id ecs.NetworkID) error {
	return s.Store.Unregister(id)
}

// Find returns the id of the entity with name.
func (s *State) Find(name string) (ecs.NetworkID, bool) {
	e, ok := s.Store.GetByName(name)
	if !ok {
		return 0, false
	}
	return e.ID(), true
}

func (s *State) Count() int { return s.Store.Len() }

// Move sets position and rotation without marking the transform dirty;
// the caller broadcasts the change itself.
func (s *State) Move(id ecs.NetworkID, pos, rot component.Vec3) (*component.Transform, error) {
	e, ok := s.Store.Get(id)
	if !ok {
		return nil, fmt.Errorf("move: %w: id %d", ecs.ErrNotFound, id)
	}
	tr, ok := ecs.Get[*component.Transform](e)
	if !ok {
		return nil, fmt.Errorf("move %s: %w: %s", e.Name(), ecs.ErrComponentNotFound, component.TypeTransform)
	}
	tr.Move(pos, rot)
	return tr, nil
}

// AddComponent attaches a component by type name and, when payload is not
// empty, loads its state from payload.
func (s *State) AddComponent(id ecs.NetworkID, typeName string, payload []byte) (ecs.Component, error) {
	e, ok := s.Store.Get(id)
	if !ok {
		return nil, fmt.Errorf("add component: %w: id %d", ecs.ErrNotFound, id)
	}
	c, ok := s.Registry.Create(typeName)
	if !ok {
		return nil, fmt.Errorf("add component: %w: %s", ecs.ErrUnknownComponentType, typeName)
	}
	if len(payload) > 0 {
		if err := c.Deserialize(packet.NewReader(payload)); err != nil {
			return nil, fmt.Errorf("add component %s: %w", typeName, err)
		}
	}
	if err := s.Store.AddComponent(e, c); err != nil {
		return nil, err
	}
	return c, nil
}

// RemoveComponent detaches a component by type name.
func (s *State) RemoveComponent(id ecs.NetworkID, typeName string) error {
	e, ok := s.Store.Get(id)
	if !ok {
		return fmt.Errorf("remove component: %w: id %d", ecs.ErrNotFound, id)
	}
	return s.Store.RemoveComponent(e, typeName)
}

// Seed spawns every entry of seed, parents before children. Returns the
// number of entities created.
func (s *State) Seed(seed *data.WorldSeed) (int, error) {
	pending := make([]data.EntitySeed, len(seed.Entities))
	copy(pending, seed.Entities)

	created := 0
	for len(pending) > 0 {
		next := pending[:0]
		for _, es := range pending {
			var parent ecs.NetworkID
			if es.Parent != "" {
				id, ok := s.Find(es.Parent)
				if !ok {
					next = append(next, es)
					continue
				}
				parent = id
			}
			e, err := s.Spawn(es.Name, parent)
			if err != nil {
				return created, fmt.Errorf("seed: %w", err)
			}
			s.applySeed(e, es)
			created++
		}
		if len(next) == len(pending) {
			return created, fmt.Errorf("seed: %d entities with unresolved parents", len(next))
		}
		pending = next
	}
	s.log.Info("世界種子已載入", zap.Int("entities", created))
	return created, nil
}

func (s *State) applySeed(e *ecs.Entity, es data.EntitySeed) {
	if es.Transform != nil {
		if tr, ok := ecs.Get[*component.Transform](e); ok {
			tr.SetPosition(component.Vec3{X: es.Transform.Position[0], Y: es.Transform.Position[1], Z: es.Transform.Position[2]})
			tr.SetRotation(component.Vec3{X: es.Transform.Rotation[0], Y: es.Transform.Rotation[1], Z: es.Transform.Rotation[2]})
			tr.SetScale(component.Vec3{X: es.Transform.Scale[0], Y: es.Transform.Scale[1], Z: es.Transform.Scale[2]})
		}
	}
	if es.Label != "" {
		_ = s.Store.AddComponent(e, &component.Label{Text: es.Label})
	}
	if es.Health > 0 {
		_ = s.Store.AddComponent(e, component.NewHealth(es.Health))
	}
}

// Export captures every authoritative entity and the allocator position.
func (s *State) Export() *persist.Snapshot {
	snap := &persist.Snapshot{LastID: uint32(s.Store.IDs().Last())}
	for _, e := range ecs.Filter(s.Store, ecs.Authoritative) {
		row := persist.EntityRow{ID: uint32(e.ID()), Name: e.Name(), ParentID: uint32(e.Parent())}
		for _, c := range e.Components() {
			w := packet.NewWriter()
			c.Serialize(w)
			row.Components = append(row.Components, persist.ComponentRow{Type: c.TypeName(), Payload: w.Bytes()})
		}
		snap.Entities = append(snap.Entities, row)
	}
	return snap
}

// Import restores a snapshot into an empty store, keeping every id and
// advancing the allocator past snap.LastID. Unknown component types are
// skipped with a warning.
func (s *State) Import(snap *persist.Snapshot) (int, error) {
	if s.Store.Len() != 0 {
		return 0, fmt.Errorf("import: store already holds %d entities", s.Store.Len())
	}
	s.Store.IDs().Observe(ecs.NetworkID(snap.LastID))

	for _, row := range snap.Entities {
		e := ecs.RestoreEntity(row.Name, ecs.NetworkID(row.ID))
		for _, cr := range row.Components {
			c, ok := s.Registry.Create(cr.Type)
			if !ok {
				s.log.Warn("快照含未知元件", zap.String("entity", row.Name), zap.String("type", cr.Type))
				continue
			}
			if err := c.Deserialize(packet.NewReader(cr.Payload)); err != nil {
				return 0, fmt.Errorf("import %s/%s: %w", row.Name, cr.Type, err)
			}
			if err := e.Attach(c); err != nil {
				s.log.Warn("快照元件重複", zap.String("entity", row.Name), zap.String("type", cr.Type), zap.Error(err))
			}
		}
		if _, err := s.Store.Register(e); err != nil {
			return 0, fmt.Errorf("import %s: %w", row.Name, err)
		}
	}
	for _, row := range snap.Entities {
		if row.ParentID == 0 {
			continue
		}
		if err := s.Store.AddChild(ecs.NetworkID(row.ParentID), ecs.NetworkID(row.ID)); err != nil {
			s.log.Warn("快照關係無效", zap.String("entity", row.Name), zap.Error(err))
		}
	}
	s.log.Info("快照已還原", zap.Int("entities", len(snap.Entities)), zap.Uint32("last_id", snap.LastID))
	return len(snap.Entities), nil
}
