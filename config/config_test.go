package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("WHEATLEY_BASE_URL", "https://wheatley.example/api.php")
	t.Setenv("WHEATLEY_USER", "u14439141")
	t.Setenv("WHEATLEY_PASS", "secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://wheatley.example/api.php", cfg.Wheatley.BaseURL)
	assert.InDelta(t, 25.7472, cfg.Geofence.HQLat, 1e-9)
	assert.InDelta(t, 28.2511, cfg.Geofence.HQLng, 1e-9)
	assert.Equal(t, 5.0, cfg.Geofence.MaxKm)
	assert.Zero(t, cfg.Port)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("HQ_LAT", "-25.7545")
	t.Setenv("HQ_LNG", "28.2314")
	t.Setenv("MAX_DELIVERY_KM", "7.5")
	t.Setenv("GATEWAY_PORT", "8080")

	cfg, err := Load()
	require.NoError(t, err)

	assert.InDelta(t, -25.7545, cfg.Geofence.HQLat, 1e-9)
	assert.Equal(t, 7.5, cfg.Geofence.MaxKm)
	assert.Equal(t, 8080, cfg.Port)
}

func TestLoadMissingBackend(t *testing.T) {
	t.Setenv("WHEATLEY_BASE_URL", "")
	t.Setenv("WHEATLEY_USER", "u14439141")
	t.Setenv("WHEATLEY_PASS", "secret")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadMissingCredentials(t *testing.T) {
	t.Setenv("WHEATLEY_BASE_URL", "https://wheatley.example/api.php")
	t.Setenv("WHEATLEY_USER", "u14439141")
	t.Setenv("WHEATLEY_PASS", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadPortOutOfRange(t *testing.T) {
	setRequired(t)

	for _, port := range []string{"80", "70000", "not-a-port"} {
		t.Setenv("GATEWAY_PORT", port)
		_, err := Load()
		assert.Error(t, err, "port %s", port)
	}
}

func TestStringMasksCredentials(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotContains(t, cfg.String(), "secret")
}
