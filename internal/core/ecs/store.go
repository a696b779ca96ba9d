package ecs

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"
)

var (
	ErrAlreadyExists        = errors.New("entity already exists")
	ErrNotFound             = errors.New("entity not found")
	ErrDuplicateComponent   = errors.New("component type already attached")
	ErrComponentNotFound    = errors.New("component not attached")
	ErrUnknownComponentType = errors.New("unknown component type")
	ErrDuplicateType        = errors.New("component type already registered")
	ErrInvalidName          = errors.New("invalid entity name")
	ErrInvalidRelation      = errors.New("invalid parent/child relation")
)

// ChangeListener observes structural changes made through the store.
type ChangeListener interface {
	OnSpawn(e *Entity)
	OnDestroy(e *Entity)
	OnAddChild(parent, child *Entity)
	OnRemoveChild(parent, child *Entity)
	OnAddComponent(e *Entity, c Component)
	OnRemoveComponent(e *Entity, c Component)
}

// Store owns every live entity and the id and name indexes over them.
// Simulation-thread only.
type Store struct {
	ids      *IDAllocator
	byID     map[NetworkID]*Entity
	byName   map[string]*Entity
	listener ChangeListener

	destroyQueue []NetworkID
	log          *zap.Logger
}

func NewStore(ids *IDAllocator, log *zap.Logger) *Store {
	return &Store{
		ids:          ids,
		byID:         make(map[NetworkID]*Entity, 256),
		byName:       make(map[string]*Entity, 256),
		destroyQueue: make([]NetworkID, 0, 16),
		log:          log,
	}
}

// SetListener installs l as the change listener. nil disables notifications.
func (s *Store) SetListener(l ChangeListener) {
	s.listener = l
}

func (s *Store) IDs() *IDAllocator { return s.ids }

func (s *Store) Len() int { return len(s.byID) }

// Register indexes e. Authoritative entities without an id get the next
// allocated one. Returns ErrAlreadyExists if the name or id is taken.
func (s *Store) Register(e *Entity) (*Entity, error) {
	if e.store != nil {
		return nil, fmt.Errorf("%w: %s already registered", ErrAlreadyExists, e.name)
	}
	if !ValidName(e.name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, e.name)
	}
	if _, ok := s.byName[e.name]; ok {
		return nil, fmt.Errorf("%w: name %s", ErrAlreadyExists, e.name)
	}
	if e.id != 0 {
		if _, ok := s.byID[e.id]; ok {
			return nil, fmt.Errorf("%w: id %d", ErrAlreadyExists, e.id)
		}
		s.ids.Observe(e.id)
	} else {
		if !e.authoritative {
			return nil, fmt.Errorf("%w: replica %s has no network id", ErrInvalidRelation, e.name)
		}
		e.id = s.ids.Next()
	}

	e.store = s
	s.byID[e.id] = e
	s.byName[e.name] = e

	for _, c := range e.components {
		if in, ok := c.(Initializer); ok {
			in.Initialize(e)
		}
	}
	if s.listener != nil {
		s.listener.OnSpawn(e)
	}
	return e, nil
}

// Unregister removes the entity with id. Its children become roots and it
// is detached from its parent. Unknown ids are a logged no-op.
func (s *Store) Unregister(id NetworkID) error {
	e, ok := s.byID[id]
	if !ok {
		s.log.Debug("移除未知實體", zap.Uint32("id", uint32(id)))
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	s.destroy(e)
	return nil
}

// UnregisterByName removes the entity with the given name.
func (s *Store) UnregisterByName(name string) error {
	e, ok := s.byName[CanonicalName(name)]
	if !ok {
		s.log.Debug("移除未知實體", zap.String("name", name))
		return fmt.Errorf("%w: name %s", ErrNotFound, name)
	}
	s.destroy(e)
	return nil
}

func (s *Store) destroy(e *Entity) {
	if p, ok := s.byID[e.parent]; ok {
		p.unlinkChild(e)
	}
	e.parent = 0
	for _, cid := range e.children {
		if c, ok := s.byID[cid]; ok {
			c.parent = 0
		}
	}
	e.children = e.children[:0]
	clear(e.childByName)
	clear(e.childName)

	for i := len(e.components) - 1; i >= 0; i-- {
		if un, ok := e.components[i].(Uninitializer); ok {
			un.Uninitialize(e)
		}
	}

	delete(s.byID, e.id)
	delete(s.byName, e.name)
	if s.listener != nil {
		s.listener.OnDestroy(e)
	}
	e.store = nil
}

func (s *Store) Get(id NetworkID) (*Entity, bool) {
	e, ok := s.byID[id]
	return e, ok
}

func (s *Store) GetByName(name string) (*Entity, bool) {
	e, ok := s.byName[CanonicalName(name)]
	return e, ok
}

// GetAll returns a snapshot of every entity ordered by id.
func (s *Store) GetAll() []*Entity {
	ids := make([]NetworkID, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	sortIDs(ids)
	out := make([]*Entity, len(ids))
	for i, id := range ids {
		out[i] = s.byID[id]
	}
	return out
}

// Roots returns entities without a parent ordered by id.
func (s *Store) Roots() []*Entity {
	all := s.GetAll()
	roots := all[:0]
	for _, e := range all {
		if e.parent == 0 {
			roots = append(roots, e)
		}
	}
	return roots
}

// AddChild attaches child under parent. A child that already has another
// parent is moved. Cycles are rejected.
func (s *Store) AddChild(parentID, childID NetworkID) error {
	parent, ok := s.byID[parentID]
	if !ok {
		s.log.Debug("加入子實體: 父實體不存在", zap.Uint32("parent", uint32(parentID)))
		return fmt.Errorf("%w: parent %d", ErrNotFound, parentID)
	}
	child, ok := s.byID[childID]
	if !ok {
		s.log.Debug("加入子實體: 子實體不存在", zap.Uint32("child", uint32(childID)))
		return fmt.Errorf("%w: child %d", ErrNotFound, childID)
	}
	if child.parent == parentID {
		return nil
	}
	for cur := parent; cur != nil; {
		if cur.id == childID {
			return fmt.Errorf("%w: %d is an ancestor of %d", ErrInvalidRelation, childID, parentID)
		}
		next, ok := s.byID[cur.parent]
		if !ok {
			break
		}
		cur = next
	}

	if old, ok := s.byID[child.parent]; ok {
		old.unlinkChild(child)
		if s.listener != nil {
			s.listener.OnRemoveChild(old, child)
		}
	}
	parent.linkChild(child)
	if s.listener != nil {
		s.listener.OnAddChild(parent, child)
	}
	return nil
}

// RemoveChild detaches child from parent. A stale pair is a logged no-op.
func (s *Store) RemoveChild(parentID, childID NetworkID) error {
	parent, ok := s.byID[parentID]
	if !ok {
		s.log.Debug("移除子實體: 父實體不存在", zap.Uint32("parent", uint32(parentID)))
		return fmt.Errorf("%w: parent %d", ErrNotFound, parentID)
	}
	child, ok := s.byID[childID]
	if !ok || !parent.HasChild(childID) {
		s.log.Debug("移除子實體: 關係不存在",
			zap.Uint32("parent", uint32(parentID)),
			zap.Uint32("child", uint32(childID)),
		)
		return fmt.Errorf("%w: %d is not a child of %d", ErrNotFound, childID, parentID)
	}
	parent.unlinkChild(child)
	if s.listener != nil {
		s.listener.OnRemoveChild(parent, child)
	}
	return nil
}

// AddComponent attaches c to e and runs its Initialize hook. Attaching a
// second component of the same concrete type fails without side effects.
func (s *Store) AddComponent(e *Entity, c Component) error {
	t := reflect.TypeOf(c)
	if _, ok := e.byType[t]; ok {
		s.log.Warn("重複加入元件",
			zap.String("entity", e.name),
			zap.String("type", c.TypeName()),
		)
		return fmt.Errorf("%w: %s on %s", ErrDuplicateComponent, c.TypeName(), e.name)
	}
	e.components = append(e.components, c)
	e.byType[t] = c
	if in, ok := c.(Initializer); ok {
		in.Initialize(e)
	}
	if s.listener != nil {
		s.listener.OnAddComponent(e, c)
	}
	return nil
}

// AddComponentByTypeName builds a component through reg and attaches it.
func (s *Store) AddComponentByTypeName(e *Entity, reg *Registry, typeName string) (Component, error) {
	c, ok := reg.Create(typeName)
	if !ok {
		s.log.Warn("未知元件類型", zap.String("type", typeName))
		return nil, fmt.Errorf("%w: %s", ErrUnknownComponentType, typeName)
	}
	if err := s.AddComponent(e, c); err != nil {
		return nil, err
	}
	return c, nil
}

// RemoveComponent detaches the component with the given wire type name.
func (s *Store) RemoveComponent(e *Entity, typeName string) error {
	for i, c := range e.components {
		if c.TypeName() != typeName {
			continue
		}
		if un, ok := c.(Uninitializer); ok {
			un.Uninitialize(e)
		}
		e.components = append(e.components[:i], e.components[i+1:]...)
		delete(e.byType, reflect.TypeOf(c))
		if s.listener != nil {
			s.listener.OnRemoveComponent(e, c)
		}
		return nil
	}
	s.log.Debug("移除未掛載的元件",
		zap.String("entity", e.name),
		zap.String("type", typeName),
	)
	return fmt.Errorf("%w: %s on %s", ErrComponentNotFound, typeName, e.name)
}

// Walk visits every entity in pre-order starting from the roots, children
// in attach order.
func (s *Store) Walk(fn func(e *Entity)) {
	for _, root := range s.Roots() {
		s.walk(root, fn)
	}
}

func (s *Store) walk(e *Entity, fn func(e *Entity)) {
	fn(e)
	for _, cid := range e.Children() {
		if c, ok := s.byID[cid]; ok {
			s.walk(c, fn)
		}
	}
}

// Update runs every Updater component in pre-order.
func (s *Store) Update(dt time.Duration) {
	s.Walk(func(e *Entity) {
		for _, c := range e.Components() {
			if u, ok := c.(Updater); ok {
				u.Update(e, dt)
			}
		}
	})
}

// Render runs every Renderer component in pre-order.
func (s *Store) Render() {
	s.Walk(func(e *Entity) {
		for _, c := range e.Components() {
			if r, ok := c.(Renderer); ok {
				r.Render(e)
			}
		}
	})
}

// MarkForDestruction queues an entity for end-of-tick removal. Use it from
// inside a walk or script callback.
func (s *Store) MarkForDestruction(id NetworkID) {
	s.destroyQueue = append(s.destroyQueue, id)
}

// FlushDestroyQueue removes all queued entities. Called by CleanupSystem.
func (s *Store) FlushDestroyQueue() int {
	n := 0
	for _, id := range s.destroyQueue {
		if e, ok := s.byID[id]; ok {
			s.destroy(e)
			n++
		}
	}
	s.destroyQueue = s.destroyQueue[:0]
	return n
}
