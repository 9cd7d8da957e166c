package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uptimizer/internal/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, models.DefaultCheckInterval, cfg.Settings.CheckIntervalSeconds)
	assert.Equal(t, models.DefaultCheckTimeout, cfg.Settings.CheckTimeoutSeconds)
	require.Len(t, cfg.Clients, 1)
	assert.Equal(t, "default_client", cfg.Clients[0].ID)
	assert.Equal(t, models.ClientLocal, cfg.Clients[0].Type)
}

func TestLoadNormalizesEndpoints(t *testing.T) {
	path := writeConfig(t, `
settings:
  check_interval_seconds: 2
clients:
  - id: c1
    endpoints:
      - name: no-id
        url: http://one
      - id: dup
        name: first
        url: http://two
        group: Custom
      - id: dup
        name: second
        url: http://three
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	// Intervals below the floor are clamped at load time.
	assert.Equal(t, models.MinCheckInterval, cfg.Settings.CheckIntervalSeconds)

	require.Len(t, cfg.Clients, 1)
	eps := cfg.Clients[0].Endpoints
	require.Len(t, eps, 3)
	assert.NotEmpty(t, eps[0].ID, "missing ids are generated")
	assert.Equal(t, DefaultGroup, eps[0].Group)
	assert.Equal(t, "Custom", eps[1].Group)
	assert.NotEqual(t, eps[1].ID, eps[2].ID, "duplicate ids are regenerated")
}

func TestLoadStripsEndpointsFromLinkedClients(t *testing.T) {
	path := writeConfig(t, `
clients:
  - id: peer
    type: linked
    remote_url: http://peer
    api_token: tok
    endpoints:
      - id: should-not-survive
        name: x
        url: http://x
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Clients, 1)
	assert.Equal(t, models.ClientLinked, cfg.Clients[0].Type)
	assert.Empty(t, cfg.Clients[0].Endpoints)
	assert.Equal(t, "tok", cfg.Clients[0].APIToken)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := writeConfig(t, "clients: [unclosed")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	interval := 15
	cfg := &Config{
		Settings: models.Settings{CheckIntervalSeconds: 60, CheckTimeoutSeconds: 5},
		Clients: []models.Client{{
			ID:   "c1",
			Name: "One",
			Type: models.ClientLocal,
			Endpoints: []models.Endpoint{{
				ID:              "e1",
				Name:            "E1",
				URL:             "http://one",
				Group:           "G",
				IntervalSeconds: &interval,
			}},
		}},
	}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 60, loaded.Settings.CheckIntervalSeconds)
	require.Len(t, loaded.Clients, 1)
	require.Len(t, loaded.Clients[0].Endpoints, 1)
	ep := loaded.Clients[0].Endpoints[0]
	assert.Equal(t, "e1", ep.ID)
	require.NotNil(t, ep.IntervalSeconds)
	assert.Equal(t, 15, *ep.IntervalSeconds)
}

func TestGenerateEndpointID(t *testing.T) {
	a, b := GenerateEndpointID(), GenerateEndpointID()
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "ep_")
}
