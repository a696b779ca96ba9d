package ecs

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync/atomic"

	"golang.org/x/text/unicode/norm"
)

// NetworkID identifies an entity across peers. Zero means "none".
type NetworkID uint32

// IDAllocator hands out monotonically increasing network ids. Ids are
// never reused, including after restore from a snapshot.
type IDAllocator struct {
	last atomic.Uint32
}

// NewIDAllocator returns an allocator whose first id is base+1.
func NewIDAllocator(base uint32) *IDAllocator {
	a := &IDAllocator{}
	a.last.Store(base)
	return a
}

func (a *IDAllocator) Next() NetworkID {
	return NetworkID(a.last.Add(1))
}

// Observe advances the allocator past id so it is never handed out again.
func (a *IDAllocator) Observe(id NetworkID) {
	for {
		cur := a.last.Load()
		if uint32(id) <= cur {
			return
		}
		if a.last.CompareAndSwap(cur, uint32(id)) {
			return
		}
	}
}

// Last returns the most recently allocated or observed id.
func (a *IDAllocator) Last() NetworkID {
	return NetworkID(a.last.Load())
}

// Entity is a named node in the world tree owning a set of components,
// at most one per concrete type. Structural changes go through Store so the
// indexes stay consistent.
type Entity struct {
	id            NetworkID
	name          string
	authoritative bool

	components []Component
	byType     map[reflect.Type]Component

	parent      NetworkID
	children    []NetworkID
	childByName map[string]NetworkID
	childName   map[NetworkID]string

	store *Store
}

// NewEntity builds an unregistered entity. Authoritative entities receive
// their NetworkID from the store on Register; replicas call AssignNetworkID.
func NewEntity(name string, authoritative bool) *Entity {
	return &Entity{
		name:          CanonicalName(name),
		authoritative: authoritative,
		byType:        make(map[reflect.Type]Component, 4),
		childByName:   make(map[string]NetworkID),
		childName:     make(map[NetworkID]string),
	}
}

// RestoreEntity builds an authoritative entity that keeps a previously
// assigned id, e.g. one loaded from a snapshot.
func RestoreEntity(name string, id NetworkID) *Entity {
	e := NewEntity(name, true)
	e.id = id
	return e
}

func (e *Entity) ID() NetworkID         { return e.id }
func (e *Entity) Name() string          { return e.name }
func (e *Entity) IsAuthoritative() bool { return e.authoritative }
func (e *Entity) Parent() NetworkID     { return e.parent }
func (e *Entity) Registered() bool      { return e.store != nil }

// AssignNetworkID sets an id learned from a peer. The entity stops being
// authoritative the moment it carries a remote id.
func (e *Entity) AssignNetworkID(id NetworkID) {
	e.id = id
	e.authoritative = false
}

// Children returns the child ids in attach order.
func (e *Entity) Children() []NetworkID {
	out := make([]NetworkID, len(e.children))
	copy(out, e.children)
	return out
}

func (e *Entity) ChildByName(name string) (NetworkID, bool) {
	id, ok := e.childByName[CanonicalName(name)]
	return id, ok
}

func (e *Entity) HasChild(id NetworkID) bool {
	_, ok := e.childName[id]
	return ok
}

// Components returns the attached components in attach order.
func (e *Entity) Components() []Component {
	out := make([]Component, len(e.components))
	copy(out, e.components)
	return out
}

// Component finds an attached component by wire type name.
func (e *Entity) Component(typeName string) (Component, bool) {
	for _, c := range e.components {
		if c.TypeName() == typeName {
			return c, true
		}
	}
	return nil, false
}

// Attach adds c to an entity that is not registered yet. On a registered
// entity it defers to Store.AddComponent. A second component of the same
// concrete type is rejected; callers log the error.
func (e *Entity) Attach(c Component) error {
	if e.store != nil {
		return e.store.AddComponent(e, c)
	}
	t := reflect.TypeOf(c)
	if _, ok := e.byType[t]; ok {
		return fmt.Errorf("%w: %s on %s", ErrDuplicateComponent, c.TypeName(), e.name)
	}
	e.components = append(e.components, c)
	e.byType[t] = c
	return nil
}

// Get returns the component of concrete type T attached to e.
func Get[T Component](e *Entity) (T, bool) {
	var zero T
	c, ok := e.byType[reflect.TypeOf(zero)]
	if !ok {
		// T may be an interface; fall back to a scan.
		for _, c := range e.components {
			if v, ok := c.(T); ok {
				return v, true
			}
		}
		return zero, false
	}
	return c.(T), true
}

func (e *Entity) linkChild(child *Entity) {
	e.children = append(e.children, child.id)
	e.childByName[child.name] = child.id
	e.childName[child.id] = child.name
	child.parent = e.id
}

func (e *Entity) unlinkChild(child *Entity) {
	name, ok := e.childName[child.id]
	if !ok {
		return
	}
	delete(e.childName, child.id)
	delete(e.childByName, name)
	for i, id := range e.children {
		if id == child.id {
			e.children = append(e.children[:i], e.children[i+1:]...)
			break
		}
	}
	child.parent = 0
}

// CanonicalName trims and NFC-normalizes a hierarchical name so the same
// name typed on different peers indexes to the same entity.
func CanonicalName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// ValidName reports whether name is a non-empty dot-separated path with no
// empty segments.
func ValidName(name string) bool {
	if name == "" {
		return false
	}
	for _, seg := range strings.Split(name, ".") {
		if seg == "" {
			return false
		}
	}
	return true
}

func sortIDs(ids []NetworkID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
