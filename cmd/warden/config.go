package main

import (
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/go-warden/warden"
	discord "github.com/go-warden/warden/discord-adapter"
	file "github.com/go-warden/warden/file-memory"
	"github.com/go-warden/warden/metrics"
	redis "github.com/go-warden/warden/redis-memory"
	slack "github.com/go-warden/warden/slack-adapter"
)

// Config is the TOML configuration of the warden binary. All fields have
// working defaults so an empty (or missing) file yields a local shell bot
// with in-memory storage.
type Config struct {
	Name   string   `toml:"name"`
	Prefix string   `toml:"prefix"`
	Admins []string `toml:"admins"` // user IDs that get every cog scope granted

	Adapter AdapterConfig `toml:"adapter"`
	Storage StorageConfig `toml:"storage"`
	HTTP    HTTPConfig    `toml:"http"`
	Log     LogConfig     `toml:"log"`
	Cogs    CogsConfig    `toml:"cogs"`
}

// AdapterConfig selects the chat platform the bot connects to.
type AdapterConfig struct {
	Kind  string `toml:"kind"`  // "discord", "slack" or "cli"
	Token string `toml:"token"` // or WARDEN_DISCORD_TOKEN / WARDEN_SLACK_TOKEN
}

// StorageConfig selects where the bot persists its state.
type StorageConfig struct {
	Kind string `toml:"kind"` // "file", "redis" or "memory"

	// Path is the JSON file of the "file" backend.
	Path string `toml:"path"`

	// Addr, Key, Password and DB configure the "redis" backend. The
	// password can also come from WARDEN_REDIS_PASSWORD.
	Addr     string `toml:"addr"`
	Key      string `toml:"key"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// HTTPConfig configures the operations endpoint of the binary.
type HTTPConfig struct {
	// Listen is the address that serves /metrics and /debug/pprof. Leaving
	// it empty disables the HTTP server and all metrics collection.
	Listen string `toml:"listen"`
}

// LogConfig overrides the default console logger of the bot.
type LogConfig struct {
	Format string `toml:"format"` // "console" or "json"
	Level  string `toml:"level"`  // "debug", "info", "warn" or "error"
}

// CogsConfig enables or disables individual cogs. All cogs are on by
// default, so a [cogs] section only needs to list the ones to turn off.
type CogsConfig struct {
	Remind    bool `toml:"remind"`
	Presence  bool `toml:"presence"`
	AFK       bool `toml:"afk"`
	Blacklist bool `toml:"blacklist"`
	Sticky    bool `toml:"sticky"`
	Triggers  bool `toml:"triggers"`
	Purge     bool `toml:"purge"`
	Emoji     bool `toml:"emoji"`
	Embeds    bool `toml:"embeds"`
	Tickets   bool `toml:"tickets"`
	Autoreact bool `toml:"autoreact"`
	Modlog    bool `toml:"modlog"`
	Help      bool `toml:"help"`
}

// DefaultConfig returns the configuration the binary runs with when no file
// and no environment overrides are present.
func DefaultConfig() Config {
	return Config{
		Name:    "warden",
		Prefix:  "!",
		Adapter: AdapterConfig{Kind: "cli"},
		Storage: StorageConfig{Kind: "memory"},
		Cogs: CogsConfig{
			Remind:    true,
			Presence:  true,
			AFK:       true,
			Blacklist: true,
			Sticky:    true,
			Triggers:  true,
			Purge:     true,
			Emoji:     true,
			Embeds:    true,
			Tickets:   true,
			Autoreact: true,
			Modlog:    true,
			Help:      true,
		},
	}
}

// LoadConfig reads the TOML file at path over the defaults and applies the
// environment overrides. A missing file is not an error; secrets from a
// .env file in the working directory are picked up as well.
func LoadConfig(path string) (Config, error) {
	_ = godotenv.Load()

	conf := DefaultConfig()
	_, err := toml.DecodeFile(path, &conf)
	if err != nil && !os.IsNotExist(err) {
		return conf, errors.Wrap(err, "failed to read config file")
	}

	conf.applyEnv(os.Getenv)
	return conf, conf.Validate()
}

// applyEnv copies secrets from the environment over the file values. Only
// the token matching the configured adapter kind is considered so a stray
// WARDEN_SLACK_TOKEN cannot leak into a Discord deployment.
func (conf *Config) applyEnv(getenv func(string) string) {
	switch strings.ToLower(conf.Adapter.Kind) {
	case "discord":
		if v := getenv("WARDEN_DISCORD_TOKEN"); v != "" {
			conf.Adapter.Token = v
		}
	case "slack":
		if v := getenv("WARDEN_SLACK_TOKEN"); v != "" {
			conf.Adapter.Token = v
		}
	}

	if v := getenv("WARDEN_REDIS_PASSWORD"); v != "" {
		conf.Storage.Password = v
	}
}

// Validate reports configurations the bot cannot start with.
func (conf Config) Validate() error {
	switch strings.ToLower(conf.Adapter.Kind) {
	case "", "cli":
	case "discord", "slack":
		if conf.Adapter.Token == "" {
			return errors.Errorf("missing %s token", strings.ToLower(conf.Adapter.Kind))
		}
	default:
		return errors.Errorf("unknown adapter kind %q", conf.Adapter.Kind)
	}

	switch strings.ToLower(conf.Storage.Kind) {
	case "", "memory":
	case "file":
		if conf.Storage.Path == "" {
			return errors.New("missing file storage path")
		}
	case "redis":
		if conf.Storage.Addr == "" {
			return errors.New("missing redis address")
		}
	default:
		return errors.Errorf("unknown storage kind %q", conf.Storage.Kind)
	}

	return nil
}

// Modules assembles the warden modules described by the configuration. The
// metrics are handed to adapters that can report call latencies.
func (conf Config) Modules(m metrics.Metrics) []warden.Module {
	modules := []warden.Module{warden.WithPrefix(conf.Prefix)}

	switch strings.ToLower(conf.Storage.Kind) {
	case "file":
		modules = append(modules, file.Module(conf.Storage.Path))
	case "redis":
		var opts []redis.Option
		if conf.Storage.Key != "" {
			opts = append(opts, redis.WithKey(conf.Storage.Key))
		}
		if conf.Storage.Password != "" {
			opts = append(opts, redis.WithPassword(conf.Storage.Password))
		}
		if conf.Storage.DB != 0 {
			opts = append(opts, redis.WithDB(conf.Storage.DB))
		}
		modules = append(modules, redis.Module(conf.Storage.Addr, opts...))
	}

	switch strings.ToLower(conf.Adapter.Kind) {
	case "discord":
		modules = append(modules, discord.Adapter(conf.Adapter.Token, discord.WithMetrics(m)))
	case "slack":
		modules = append(modules, slack.Adapter(conf.Adapter.Token))
	}

	return modules
}

// Logger builds the logger described by the [log] section. The zero value
// returns nil so the bot keeps its default console logger.
func (conf LogConfig) Logger() (*zap.Logger, error) {
	if conf.Format == "" && conf.Level == "" {
		return nil, nil
	}

	var cfg zap.Config
	switch strings.ToLower(conf.Format) {
	case "", "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.DisableCaller = true
		cfg.DisableStacktrace = true
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	case "json":
		cfg = zap.NewProductionConfig()
	default:
		return nil, errors.Errorf("unknown log format %q", conf.Format)
	}

	if conf.Level != "" {
		lvl, err := zapcore.ParseLevel(conf.Level)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid log level %q", conf.Level)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	logger, err := cfg.Build()
	return logger, errors.Wrap(err, "failed to build logger")
}
