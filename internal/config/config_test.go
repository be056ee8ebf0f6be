package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(old) })
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	chdir(t, t.TempDir())

	c := Load()
	assert.Equal(t, ":8520", c.HTTP.Addr)
	assert.Empty(t, c.JWT.Secret)
	assert.Empty(t, c.DB.DSN)

	// zero timeouts let the relay fall back to its own defaults
	assert.Zero(t, c.ViewerIdleTimeout())
	assert.Zero(t, c.AgentIdleTimeout())
	assert.Zero(t, c.ReapInterval())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	cfg := `
http:
  addr: ":9000"
jwt:
  secret: "hush"
db:
  dsn: "postgres://relay@localhost/relay"
relay:
  viewer_idle_minutes: 45
  agent_idle_minutes: 5
  reap_interval_minutes: 1
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(cfg), 0o644))
	chdir(t, dir)

	c := Load()
	assert.Equal(t, ":9000", c.HTTP.Addr)
	assert.Equal(t, "hush", c.JWT.Secret)
	assert.Equal(t, "postgres://relay@localhost/relay", c.DB.DSN)
	assert.Equal(t, 45*time.Minute, c.ViewerIdleTimeout())
	assert.Equal(t, 5*time.Minute, c.AgentIdleTimeout())
	assert.Equal(t, time.Minute, c.ReapInterval())
}
