package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsZeroValue(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, File{}, cfg)
}

func TestLoadParsesYAMLFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "laythe.yaml")
	contents := `
no_color: true
debug: true
gc_trace: false
stress_gc: true
growth_factor: 1.5
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, File{
		NoColor:      true,
		Debug:        true,
		GCTrace:      false,
		StressGC:     true,
		GrowthFactor: 1.5,
	}, cfg)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("no_color: [this is not a bool"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
