package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/Tyrowin/roomrelay/internal/server"
)

func parseConfig(t *testing.T, args ...string) server.Config {
	t.Helper()

	var cfg server.Config
	cmd := newCommand()
	cmd.Action = func(_ context.Context, c *cli.Command) error {
		cfg = loadConfig(c)
		return nil
	}
	require.NoError(t, cmd.Run(context.Background(), append([]string{appName}, args...)))
	return cfg
}

func TestLoadConfigFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "7000")
	t.Setenv("SERVER_HOSTNAME", "env-host")
	t.Setenv("LOG_LEVEL", "warn")

	cfg := parseConfig(t,
		"--port", ":9001",
		"--rooms", "lobby",
		"--rooms", "ops",
		"--max-message-size", "2048",
		"--env", "prod",
	)

	assert.Equal(t, ":9001", cfg.Port)
	assert.Equal(t, "env-host", cfg.Hostname)
	assert.Equal(t, []string{"lobby", "ops"}, cfg.Rooms)
	assert.Equal(t, int64(2048), cfg.MaxMessageSize)
	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"SERVER_PORT", "SERVER_HOSTNAME", "ROOMS", "ALLOWED_ORIGINS", "MAX_MESSAGE_SIZE", "APP_ENV", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}

	cfg := parseConfig(t)

	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, server.DefaultRooms, cfg.Rooms)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(4096), cfg.MaxMessageSize)
}

// unsetEnv removes key for the duration of the test. godotenv never
// overrides a variable that exists, even when it is empty.
func unsetEnv(t *testing.T, key string) {
	t.Helper()

	prev, had := os.LookupEnv(key)
	require.NoError(t, os.Unsetenv(key))
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func TestDotEnvFeedsEnvBackedFlags(t *testing.T) {
	for _, key := range []string{"NGROK_DOMAIN", "NGROK_ENABLED", "SERVER_HOSTNAME"} {
		unsetEnv(t, key)
	}

	path := filepath.Join(t.TempDir(), ".env")
	content := "NGROK_DOMAIN=relay.ngrok.example\nNGROK_ENABLED=true\nSERVER_HOSTNAME=dotenv-host\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	loadDotEnv(path)

	var domain, hostname string
	var tunnel bool
	cmd := newCommand()
	cmd.Action = func(_ context.Context, c *cli.Command) error {
		domain = c.String("ngrok-domain")
		tunnel = c.Bool("ngrok")
		hostname = loadConfig(c).Hostname
		return nil
	}
	require.NoError(t, cmd.Run(context.Background(), []string{appName}))

	assert.Equal(t, "relay.ngrok.example", domain)
	assert.True(t, tunnel)
	assert.Equal(t, "dotenv-host", hostname)
}

func TestDotEnvDoesNotOverrideEnvironmentOrFlags(t *testing.T) {
	unsetEnv(t, "NGROK_DOMAIN")
	t.Setenv("SERVER_HOSTNAME", "env-host")

	path := filepath.Join(t.TempDir(), ".env")
	content := "NGROK_DOMAIN=from-file.example\nSERVER_HOSTNAME=file-host\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	loadDotEnv(path)

	var domain, hostname string
	cmd := newCommand()
	cmd.Action = func(_ context.Context, c *cli.Command) error {
		domain = c.String("ngrok-domain")
		hostname = loadConfig(c).Hostname
		return nil
	}
	require.NoError(t, cmd.Run(context.Background(), []string{appName, "--ngrok-domain", "flag.example"}))

	assert.Equal(t, "flag.example", domain)
	assert.Equal(t, "env-host", hostname)
}
