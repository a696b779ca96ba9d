package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TransformSeed is the initial placement of a seeded entity.
type TransformSeed struct {
	Position [3]float32 `yaml:"position"`
	Rotation [3]float32 `yaml:"rotation"`
	Scale    [3]float32 `yaml:"scale"`
}

// EntitySeed is one entry of world.yaml. Parent refers to another entry
// by name and may appear before or after it.
type EntitySeed struct {
	Name      string         `yaml:"name"`
	Parent    string         `yaml:"parent"`
	Transform *TransformSeed `yaml:"transform"`
	Label     string         `yaml:"label"`
	Health    int32          `yaml:"health"`
}

// WorldSeed is the world the server starts with when no snapshot exists.
type WorldSeed struct {
	Entities []EntitySeed `yaml:"entities"`
}

// LoadWorldSeed loads world.yaml.
func LoadWorldSeed(path string) (*WorldSeed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read world seed: %w", err)
	}
	return ParseWorldSeed(raw)
}

// ParseWorldSeed decodes and checks a seed document.
func ParseWorldSeed(raw []byte) (*WorldSeed, error) {
	var seed WorldSeed
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse world seed: %w", err)
	}
	names := make(map[string]bool, len(seed.Entities))
	for i := range seed.Entities {
		e := &seed.Entities[i]
		if e.Name == "" {
			return nil, fmt.Errorf("world seed entry %d: empty name", i)
		}
		if names[e.Name] {
			return nil, fmt.Errorf("world seed: duplicate entity %q", e.Name)
		}
		names[e.Name] = true
		if e.Transform != nil && e.Transform.Scale == [3]float32{} {
			e.Transform.Scale = [3]float32{1, 1, 1}
		}
	}
	for _, e := range seed.Entities {
		if e.Parent != "" && !names[e.Parent] {
			return nil, fmt.Errorf("world seed: %q has unknown parent %q", e.Name, e.Parent)
		}
	}
	return &seed, nil
}

// Count returns the number of seeded entities.
func (s *WorldSeed) Count() int {
	return len(s.Entities)
}
