package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-warden/warden/metrics"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "warden.toml")
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err)

	return path
}

func TestDefaultConfig(t *testing.T) {
	conf := DefaultConfig()

	assert.Equal(t, "warden", conf.Name)
	assert.Equal(t, "!", conf.Prefix)
	assert.Equal(t, "cli", conf.Adapter.Kind)
	assert.Equal(t, "memory", conf.Storage.Kind)
	assert.Empty(t, conf.HTTP.Listen)

	assert.True(t, conf.Cogs.Remind)
	assert.True(t, conf.Cogs.Tickets)
	assert.True(t, conf.Cogs.Help)

	assert.NoError(t, conf.Validate())
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
name = "guardbot"
prefix = "?"
admins = ["user-1", "user-2"]

[adapter]
kind = "discord"
token = "from-file"

[storage]
kind = "redis"
addr = "localhost:6379"
db = 3

[http]
listen = ":9090"

[log]
format = "json"
level = "warn"

[cogs]
emoji = false
`)

	// Neutralize overrides that may be set on the host running the tests.
	t.Setenv("WARDEN_DISCORD_TOKEN", "")
	t.Setenv("WARDEN_REDIS_PASSWORD", "")

	conf, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "guardbot", conf.Name)
	assert.Equal(t, "?", conf.Prefix)
	assert.Equal(t, []string{"user-1", "user-2"}, conf.Admins)
	assert.Equal(t, "discord", conf.Adapter.Kind)
	assert.Equal(t, "from-file", conf.Adapter.Token)
	assert.Equal(t, "redis", conf.Storage.Kind)
	assert.Equal(t, "localhost:6379", conf.Storage.Addr)
	assert.Equal(t, 3, conf.Storage.DB)
	assert.Equal(t, ":9090", conf.HTTP.Listen)
	assert.Equal(t, "json", conf.Log.Format)
	assert.Equal(t, "warn", conf.Log.Level)

	// A partial [cogs] section only overrides the listed cogs.
	assert.False(t, conf.Cogs.Emoji)
	assert.True(t, conf.Cogs.Remind)
	assert.True(t, conf.Cogs.Help)
}

func TestLoadConfigMissingFile(t *testing.T) {
	conf, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, "warden", conf.Name)
	assert.Equal(t, "cli", conf.Adapter.Kind)
	assert.Equal(t, "memory", conf.Storage.Kind)
	assert.True(t, conf.Cogs.Sticky)
}

func TestLoadConfigBrokenFile(t *testing.T) {
	path := writeConfig(t, `name = `)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
[adapter]
kind = "discord"
token = "from-file"

[storage]
kind = "redis"
addr = "localhost:6379"
password = "file-password"
`)

	t.Setenv("WARDEN_DISCORD_TOKEN", "from-env")
	t.Setenv("WARDEN_REDIS_PASSWORD", "env-password")

	conf, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", conf.Adapter.Token)
	assert.Equal(t, "env-password", conf.Storage.Password)
}

func TestLoadConfigEnvMatchesAdapterKind(t *testing.T) {
	path := writeConfig(t, `
[adapter]
kind = "discord"
token = "from-file"
`)

	// The slack token must not leak into a discord deployment.
	t.Setenv("WARDEN_SLACK_TOKEN", "slack-token")

	conf, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", conf.Adapter.Token)
}

func TestConfigValidate(t *testing.T) {
	cases := map[string]struct {
		change func(*Config)
		err    string
	}{
		"defaults pass": {
			change: func(*Config) {},
		},
		"discord needs a token": {
			change: func(conf *Config) { conf.Adapter.Kind = "discord" },
			err:    "missing discord token",
		},
		"slack needs a token": {
			change: func(conf *Config) { conf.Adapter.Kind = "slack" },
			err:    "missing slack token",
		},
		"discord with token passes": {
			change: func(conf *Config) {
				conf.Adapter.Kind = "discord"
				conf.Adapter.Token = "xyz"
			},
		},
		"unknown adapter kind": {
			change: func(conf *Config) { conf.Adapter.Kind = "irc" },
			err:    `unknown adapter kind "irc"`,
		},
		"file storage needs a path": {
			change: func(conf *Config) { conf.Storage.Kind = "file" },
			err:    "missing file storage path",
		},
		"redis storage needs an address": {
			change: func(conf *Config) { conf.Storage.Kind = "redis" },
			err:    "missing redis address",
		},
		"unknown storage kind": {
			change: func(conf *Config) { conf.Storage.Kind = "sqlite" },
			err:    `unknown storage kind "sqlite"`,
		},
		"kinds are case insensitive": {
			change: func(conf *Config) {
				conf.Adapter.Kind = "Discord"
				conf.Adapter.Token = "xyz"
				conf.Storage.Kind = "Redis"
				conf.Storage.Addr = "localhost:6379"
			},
		},
	}

	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			conf := DefaultConfig()
			c.change(&conf)

			err := conf.Validate()
			if c.err == "" {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), c.err)
		})
	}
}

func TestConfigModules(t *testing.T) {
	m := metrics.NewNop()

	conf := DefaultConfig()
	assert.Len(t, conf.Modules(m), 1) // just the prefix

	conf.Storage.Kind = "file"
	conf.Storage.Path = "memory.json"
	assert.Len(t, conf.Modules(m), 2)

	conf.Adapter.Kind = "discord"
	conf.Adapter.Token = "xyz"
	assert.Len(t, conf.Modules(m), 3)
}

func TestLogConfigLogger(t *testing.T) {
	logger, err := LogConfig{}.Logger()
	require.NoError(t, err)
	assert.Nil(t, logger)

	logger, err = LogConfig{Format: "json"}.Logger()
	require.NoError(t, err)
	assert.NotNil(t, logger)

	logger, err = LogConfig{Level: "debug"}.Logger()
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = LogConfig{Format: "xml"}.Logger()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown log format "xml"`)

	_, err = LogConfig{Level: "loud"}.Logger()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid log level "loud"`)
}
