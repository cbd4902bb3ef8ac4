package bridge

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "httpexec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
appCommand: node echo-app.js --pretty
host: 127.0.0.1
port: 8080
shell: /bin/bash
dir: /srv/app
env:
  - FOO=bar
timeout: 1m30s
maxRequestBytes: 1024
waitDelay: 500ms
responseContentType: application/x-ndjson
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, Config{
		AppCommand:          "node echo-app.js --pretty",
		Host:                "127.0.0.1",
		Port:                8080,
		Shell:               "/bin/bash",
		Dir:                 "/srv/app",
		Env:                 []string{"FOO=bar"},
		Timeout:             90 * time.Second,
		MaxRequestBytes:     1024,
		WaitDelay:           500 * time.Millisecond,
		ResponseContentType: "application/x-ndjson",
	}, cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config file")

	_, err = LoadConfig(writeConfig(t, "appCommand: cat\nprot: 80\n"))
	assert.ErrorContains(t, err, "field prot not found")

	_, err = LoadConfig(writeConfig(t, "timeout: soon\n"))
	assert.ErrorContains(t, err, "parsing config file")

	cfg, err := LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)
	assert.ErrorContains(t, cfg.Validate(), "appCommand is required")
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{AppCommand: "cat"}.Validate())
	assert.EqualError(t, Config{}.Validate(), "appCommand is required")
	assert.EqualError(t, Config{AppCommand: "cat", Port: 70000}.Validate(), "port 70000 out of range")
	assert.EqualError(t, Config{AppCommand: "cat", Port: -1}.Validate(), "port -1 out of range")
	assert.EqualError(t, Config{AppCommand: "cat", WaitDelay: -time.Second}.Validate(), "waitDelay -1s must not be negative")
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{AppCommand: "cat"}.withDefaults()
	assert.Equal(t, "/bin/sh", cfg.Shell)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, int64(DefaultMaxRequestBytes), cfg.MaxRequestBytes)
	assert.Equal(t, 2*time.Second, cfg.WaitDelay)
	assert.Equal(t, "application/json", cfg.ResponseContentType)

	cfg = Config{AppCommand: "cat", Timeout: -1, MaxRequestBytes: -1}.withDefaults()
	assert.Equal(t, time.Duration(-1), cfg.Timeout)
	assert.Equal(t, int64(-1), cfg.MaxRequestBytes)
}
