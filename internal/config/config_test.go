package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(m map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	c := Default()

	assert.Equal(t, 3000, c.Server.Port)
	assert.Equal(t, "local", c.Browser.Mode)
	assert.True(t, c.Browser.Headless)
	assert.Equal(t, 24*time.Hour, c.Storage.URLExpiration)
	assert.Equal(t, int64(4), c.Capture.MaxConcurrent)
	assert.False(t, c.IsDevelopment())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "local")

	c, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.NoError(t, err)
	assert.Equal(t, "local", c.Storage.Driver)
	assert.Equal(t, 100, c.RateLimit.PerHour)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scrollreel.yml")
	content := []byte(`
server:
  port: 8080
  env: development
storage:
  driver: s3
  bucket: from-file
  url_expiration: 2h
capture:
  max_concurrent: 2
`)
	require.NoError(t, os.WriteFile(path, content, 0644))
	t.Setenv("AWS_BUCKET_NAME", "from-env")

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, c.Server.Port)
	assert.True(t, c.IsDevelopment())
	assert.Equal(t, "from-env", c.Storage.Bucket)
	assert.Equal(t, 2*time.Hour, c.Storage.URLExpiration)
	assert.Equal(t, int64(2), c.Capture.MaxConcurrent)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yml")
	require.NoError(t, os.WriteFile(path, []byte("server: [ unclosed"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	c := Default()
	err := c.applyEnv(envFrom(map[string]string{
		"PORT":                    "9000",
		"BROWSER_MODE":            "container",
		"BROWSER_HEADLESS":        "false",
		"URL_EXPIRATION":          "3600",
		"MAX_CONCURRENT_CAPTURES": "8",
		"STATE_DIR":               "/var/lib/scrollreel/state",
	}))
	require.NoError(t, err)

	assert.Equal(t, 9000, c.Server.Port)
	assert.Equal(t, "container", c.Browser.Mode)
	assert.False(t, c.Browser.Headless)
	assert.Equal(t, time.Hour, c.Storage.URLExpiration)
	assert.Equal(t, int64(8), c.Capture.MaxConcurrent)
	assert.Equal(t, "/var/lib/scrollreel/state", c.Paths.State)
}

func TestApplyEnv_BadValues(t *testing.T) {
	c := Default()
	err := c.applyEnv(envFrom(map[string]string{
		"PORT":             "eighty",
		"BROWSER_HEADLESS": "maybe",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
	assert.Contains(t, err.Error(), "BROWSER_HEADLESS")
}

func TestValidate(t *testing.T) {
	c := Default()
	assert.ErrorContains(t, c.Validate(), "AWS_BUCKET_NAME")

	c.Storage.Driver = "local"
	assert.NoError(t, c.Validate())

	c.Browser.Mode = "remote"
	c.Capture.MaxConcurrent = 0
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "browser mode")
	assert.Contains(t, err.Error(), "max concurrent")
}
