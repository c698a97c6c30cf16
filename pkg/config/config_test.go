package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaultsWithoutEnvFile(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 1, cfg.Planning.DefaultTour)
	assert.Equal(t, 5*time.Minute, cfg.Planning.CacheTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.Planning.DraftTTL)
	assert.True(t, cfg.Realtime.Enabled)
	assert.Equal(t, "planning:changes", cfg.Realtime.Channel)
	assert.Equal(t, 100, cfg.AutoAssignment.ChunkSize)
	assert.Equal(t, 3, cfg.Exports.WorkerRetries)
	assert.Nil(t, cfg.CORS.AllowedOrigins)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("PLANNING_DEFAULT_TOUR", "3")
	t.Setenv("PLANNING_CACHE_TTL", "not-a-duration")
	t.Setenv("ALLOWED_ORIGINS", " https://garde.example.org , ,http://localhost:5173")
	t.Setenv("ENABLE_REALTIME", "false")
	t.Setenv("RATE_LIMIT_RPS", "0.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Planning.DefaultTour)
	assert.Equal(t, 5*time.Minute, cfg.Planning.CacheTTL)
	assert.Equal(t, []string{"https://garde.example.org", "http://localhost:5173"}, cfg.CORS.AllowedOrigins)
	assert.False(t, cfg.Realtime.Enabled)
	assert.InDelta(t, 0.5, cfg.RateLimit.RequestsPerSecond, 1e-9)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("AUTO_ASSIGNMENT_CHUNK_SIZE=25\n"), 0o600))
	// godotenv exports the file into the process environment
	t.Cleanup(func() { _ = os.Unsetenv("AUTO_ASSIGNMENT_CHUNK_SIZE") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.AutoAssignment.ChunkSize)
}
