package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 2501, cfg.TCPPort)
	assert.Equal(t, 5, cfg.MaxClients)
	assert.Equal(t, "mon0", cfg.CapInterface)
	assert.Equal(t, []string{"dump", "network", "gps"}, cfg.LogTypes)
}

func TestLoadFlagsOverrideDefaults(t *testing.T) {
	cfg, err := Load([]string{"--port", "3000", "--capture-interface", "wlan1", "--log-types", "dump,weak"})
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.TCPPort)
	assert.Equal(t, "wlan1", cfg.CapInterface)
	assert.Equal(t, []string{"dump", "weak"}, cfg.LogTypes)
}

func TestLoadNoLoggingClearsLogTypes(t *testing.T) {
	cfg, err := Load([]string{"--no-logging"})
	require.NoError(t, err)
	assert.Nil(t, cfg.LogTypes)
}

func TestLoadGPSOffDisablesGPS(t *testing.T) {
	cfg, err := Load([]string{"--gps", "off"})
	require.NoError(t, err)
	assert.False(t, cfg.GPS)
}

func TestLoadGPSHostEnablesGPS(t *testing.T) {
	cfg, err := Load([]string{"--gps", "localhost:3000"})
	require.NoError(t, err)
	assert.True(t, cfg.GPS)
	assert.Equal(t, "localhost:3000", cfg.GPSHost)
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	_, err := Load([]string{"--port", "0"})
	require.Error(t, err)
}

func TestLoadRejectsUnknownLogType(t *testing.T) {
	_, err := Load([]string{"--log-types", "bogus"})
	require.Error(t, err)
}

func TestLoadRejectsEmptyCaptureInterface(t *testing.T) {
	_, err := Load([]string{"--capture-interface", ""})
	require.Error(t, err)
}
