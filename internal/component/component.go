// Package component holds the replicated component types of the world.
package component

import (
	"fmt"

	"github.com/voxelnet/server/internal/core/ecs"
)

// RegisterAll installs a factory for every component type in reg.
func RegisterAll(reg *ecs.Registry) error {
	regs := []error{
		ecs.RegisterType(reg, NewTransform),
		ecs.RegisterType(reg, func() *Health { return &Health{} }),
		ecs.RegisterType(reg, func() *Label { return &Label{} }),
		ecs.RegisterType(reg, func() *Owner { return &Owner{} }),
	}
	for _, err := range regs {
		if err != nil {
			return fmt.Errorf("register components: %w", err)
		}
	}
	return nil
}

// AttachDefaults gives an unregistered entity the components every entity
// starts with.
func AttachDefaults(e *ecs.Entity) {
	if _, ok := ecs.Get[*Transform](e); !ok {
		_ = e.Attach(NewTransform())
	}
}

// NewEntity builds an authoritative entity carrying the default components.
func NewEntity(name string) *ecs.Entity {
	e := ecs.NewEntity(name, true)
	AttachDefaults(e)
	return e
}
