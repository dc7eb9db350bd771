package daemon

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/braylonh/kismet/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewWiresMockCaptureAndOpensLogWriters(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load([]string{
		"--capture-type", "mock",
		"--capture-interface", "mon0",
		"--log-types", "network",
		"--config-file", dir,
		"--port", "21800",
	})
	require.NoError(t, err)
	cfg.ConfigDir = dir

	d, err := New(cfg, testLogger())
	require.NoError(t, err)
	require.NotNil(t, d.tracker)
	require.NotNil(t, d.loop)
	require.NotNil(t, d.coord)

	d.coord.Run()
}

func TestNewFailsOnUnknownCaptureType(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load([]string{
		"--capture-type", "nonsense",
		"--capture-interface", "mon0",
		"--config-file", dir,
		"--port", "21801",
	})
	require.NoError(t, err)

	_, err = New(cfg, testLogger())
	require.Error(t, err)
}
