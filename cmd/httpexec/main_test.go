package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/guseggert/httpexec/bridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// parseServeConfig runs the serve command's flag handling without starting a server.
func parseServeConfig(t *testing.T, args ...string) (bridge.Config, error) {
	t.Helper()
	var cfg bridge.Config
	var cfgErr error
	cmd := *serveCommand
	cmd.Action = func(ctx *cli.Context) error {
		cfg, cfgErr = configFromContext(ctx)
		return nil
	}
	app := &cli.App{Name: "httpexec", Commands: []*cli.Command{&cmd}}
	require.NoError(t, app.Run(append([]string{"httpexec", "serve"}, args...)))
	return cfg, cfgErr
}

func TestServeConfigFromFlags(t *testing.T) {
	cfg, err := parseServeConfig(t,
		"--app-command", "node echo-app.js",
		"--host", "127.0.0.1",
		"--port", "8080",
		"--env", "A=1",
		"--env", "B=2",
		"--timeout", "5s",
		"--wait-delay", "250ms",
		"--max-request-bytes", "100",
	)
	require.NoError(t, err)
	assert.Equal(t, bridge.Config{
		AppCommand:      "node echo-app.js",
		Host:            "127.0.0.1",
		Port:            8080,
		Env:             []string{"A=1", "B=2"},
		Timeout:         5 * time.Second,
		WaitDelay:       250 * time.Millisecond,
		MaxRequestBytes: 100,
	}, cfg)
}

func TestServeConfigPositionalAppCommand(t *testing.T) {
	cfg, err := parseServeConfig(t, "cat -u")
	require.NoError(t, err)
	assert.Equal(t, "cat -u", cfg.AppCommand)

	_, err = parseServeConfig(t, "cat", "-u")
	assert.ErrorContains(t, err, "quote the app command")
}

func TestServeConfigFileWithOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "httpexec.yaml")
	require.NoError(t, os.WriteFile(path, []byte("appCommand: cat\nport: 9000\nenv: [A=1]\n"), 0o644))

	cfg, err := parseServeConfig(t, "--config", path, "--port", "9001", "--env", "B=2")
	require.NoError(t, err)
	assert.Equal(t, "cat", cfg.AppCommand)
	assert.Equal(t, 9001, cfg.Port)
	assert.Equal(t, []string{"A=1", "B=2"}, cfg.Env)
}

func TestServeConfigRequiresAppCommand(t *testing.T) {
	_, err := parseServeConfig(t)
	assert.EqualError(t, err, "appCommand is required")
}
