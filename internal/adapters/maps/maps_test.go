package maps

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSSIDMapPersistAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ssid.map")

	m, err := OpenSSIDMap(path)
	require.NoError(t, err)
	require.NoError(t, m.Record("AA:BB:CC:DD:EE:FF", "guest network"))
	require.NoError(t, m.Close())

	reloaded, err := OpenSSIDMap(path)
	require.NoError(t, err)
	defer reloaded.Close()

	ssid, ok := reloaded.Lookup("AA:BB:CC:DD:EE:FF")
	require.True(t, ok)
	require.Equal(t, "guest network", ssid)
}

func TestIPMapPersistAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ip.map")

	m, err := OpenIPMap(path)
	require.NoError(t, err)
	require.NoError(t, m.Record("AA:BB:CC:DD:EE:FF", "192.168.1.0", "255.255.255.0"))
	require.NoError(t, m.Close())

	reloaded, err := OpenIPMap(path)
	require.NoError(t, err)
	defer reloaded.Close()

	ip, mask, ok := reloaded.Lookup("AA:BB:CC:DD:EE:FF")
	require.True(t, ok)
	require.Equal(t, "192.168.1.0", ip)
	require.Equal(t, "255.255.255.0", mask)
}
