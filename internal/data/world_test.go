package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWorldSeed(t *testing.T) {
	seed, err := ParseWorldSeed([]byte(`
entities:
  - name: default.floor
    parent: default
    transform:
      position: [0, -1, 0]
  - name: default
    label: root
    health: 5
`))
	require.NoError(t, err)
	require.Equal(t, 2, seed.Count())
	floor := seed.Entities[0]
	assert.Equal(t, "default", floor.Parent)
	assert.Equal(t, [3]float32{0, -1, 0}, floor.Transform.Position)
	assert.Equal(t, [3]float32{1, 1, 1}, floor.Transform.Scale)
	assert.Nil(t, seed.Entities[1].Transform)
	assert.Equal(t, int32(5), seed.Entities[1].Health)
}

func TestParseWorldSeedErrors(t *testing.T) {
	for name, doc := range map[string]string{
		"dup":     "entities:\n  - name: a\n  - name: a\n",
		"parent":  "entities:\n  - name: a\n    parent: ghost\n",
		"empty":   "entities:\n  - label: x\n",
		"garbage": "entities: [",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseWorldSeed([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestShippedWorldSeed(t *testing.T) {
	seed, err := LoadWorldSeed("../../data/world.yaml")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, seed.Count(), 2)
	assert.Equal(t, "default", seed.Entities[0].Name)
}
