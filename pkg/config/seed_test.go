package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMemorySeedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
homes:
  - id: Home-1
    members: [claimant@home.test, Alice@home.test]
chores:
  - id: chore-1
    homeId: Home-1
    title: Dishes
    status: complete
    claimedBy: claimant@home.test
    points: 10
`), 0o600))

	seed, err := LoadMemorySeed(path)
	require.NoError(t, err)
	require.Len(t, seed.Homes, 1)
	assert.Equal(t, "Home-1", seed.Homes[0].ID)
	assert.Equal(t, []string{"claimant@home.test", "Alice@home.test"}, seed.Homes[0].Members)
	require.Len(t, seed.Chores, 1)
	assert.Equal(t, SeedChore{ID: "chore-1", HomeID: "Home-1", Title: "Dishes", Status: "complete", ClaimedBy: "claimant@home.test", Points: 10}, seed.Chores[0])
}

func TestLoadMemorySeedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"homes":[{"id":"home-2","members":["bob@home.test"]}]}`), 0o600))

	seed, err := LoadMemorySeed(path)
	require.NoError(t, err)
	require.Len(t, seed.Homes, 1)
	assert.Equal(t, []string{"bob@home.test"}, seed.Homes[0].Members)
	assert.Empty(t, seed.Chores)
}

func TestLoadMemorySeedMissingFile(t *testing.T) {
	_, err := LoadMemorySeed(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
