package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEngineSettings_Defaults(t *testing.T) {
	t.Setenv("ENGINE_SETTINGS_FILE", "")
	t.Setenv("COVERAGE_TOLERANCE_METRES", "")
	t.Setenv("HOUR_TOLERANCE", "")
	t.Setenv("SETTINGS_CACHE_TTL_SECONDS", "")

	s, err := LoadEngineSettings()
	require.NoError(t, err)
	assert.Equal(t, 10, s.ToleranceMetres)
	assert.Equal(t, "0.05", s.HourTolerance.String())
	assert.Equal(t, 5*time.Minute, s.SettingsCacheTTL)
}

func TestLoadEngineSettings_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tolerance_metres: 25\nsettings_cache_ttl: 1m\n"), 0o644))

	t.Setenv("ENGINE_SETTINGS_FILE", path)
	t.Setenv("COVERAGE_TOLERANCE_METRES", "")
	t.Setenv("HOUR_TOLERANCE", "0.1")
	t.Setenv("SETTINGS_CACHE_TTL_SECONDS", "")

	s, err := LoadEngineSettings()
	require.NoError(t, err)
	assert.Equal(t, 25, s.ToleranceMetres)
	assert.Equal(t, time.Minute, s.SettingsCacheTTL)
	assert.Equal(t, "0.1", s.HourTolerance.String())

	t.Setenv("COVERAGE_TOLERANCE_METRES", "5")
	s, err = LoadEngineSettings()
	require.NoError(t, err)
	assert.Equal(t, 5, s.ToleranceMetres)
}

func TestLoadEngineSettings_RejectsBadEnv(t *testing.T) {
	t.Setenv("ENGINE_SETTINGS_FILE", "")
	t.Setenv("COVERAGE_TOLERANCE_METRES", "ten")

	_, err := LoadEngineSettings()
	assert.Error(t, err)
}

func TestLoadEngineSettings_ZeroHourToleranceKept(t *testing.T) {
	t.Setenv("ENGINE_SETTINGS_FILE", "")
	t.Setenv("COVERAGE_TOLERANCE_METRES", "")
	t.Setenv("HOUR_TOLERANCE", "0")
	t.Setenv("SETTINGS_CACHE_TTL_SECONDS", "")

	s, err := LoadEngineSettings()
	require.NoError(t, err)
	assert.True(t, s.HourTolerance.IsZero(), s.HourTolerance.String())
}
