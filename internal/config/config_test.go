package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prism.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9999
pipeline:
  angle_count: 5
  per_angle_timeout: 45s
llm:
  base_url: http://llm.internal
  model: test-model
retrieval:
  base_url: http://retrieval.internal
  poll_max: 10
`)
	t.Setenv("CONFIG_PATH", path)

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9999, c.Server.Port)
	assert.Equal(t, 5, c.Pipeline.AngleCount)
	assert.Equal(t, 45*time.Second, c.Pipeline.PerAngleTimeout)
	assert.Equal(t, "test-model", c.LLM.Model)
	assert.Equal(t, 10, c.Retrieval.PollMax)
	// Defaults fill what the file omits.
	assert.Equal(t, 8, c.Pipeline.MaxAngleCount)
	assert.Equal(t, 2*time.Second, c.Retrieval.PollInterval)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
llm:
  base_url: http://from-file
retrieval:
  base_url: http://retrieval.internal
`)
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("LLM_BASE_URL", "http://from-env")
	t.Setenv("PRISM_ANGLE_COUNT", "4")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://from-env", c.LLM.BaseURL)
	assert.Equal(t, 4, c.Pipeline.AngleCount)
}

func TestLoadMissingBackendsFails(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
`)
	t.Setenv("CONFIG_PATH", path)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required configuration")
}

func TestLoadRejectsAngleCountOutOfBounds(t *testing.T) {
	path := writeConfig(t, `
pipeline:
  angle_count: 12
llm:
  base_url: http://llm.internal
retrieval:
  base_url: http://retrieval.internal
`)
	t.Setenv("CONFIG_PATH", path)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "angle_count")
}

func TestLoadWithoutFileUsesEnvAndDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("LLM_BASE_URL", "http://llm.internal")
	t.Setenv("RETRIEVAL_BASE_URL", "http://retrieval.internal")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, c.Pipeline.AngleCount)
	assert.Equal(t, 90*time.Second, c.Pipeline.PerAngleTimeout)
	assert.Equal(t, 2112, c.Server.MetricsPort)
}
