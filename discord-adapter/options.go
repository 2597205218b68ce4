package discord

import (
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/go-warden/warden/metrics"
)

// An Option is used to configure the discord adapter.
type Option func(*Config) error

// WithLogger can be used to inject a different logger for the discord adapter.
func WithLogger(logger *zap.Logger) Option {
	return func(conf *Config) error {
		conf.Logger = logger
		return nil
	}
}

// WithIntents replaces the gateway intents the adapter subscribes to. The
// default is DefaultIntents.
func WithIntents(intents discordgo.Intent) Option {
	return func(conf *Config) error {
		conf.Intents = intents
		return nil
	}
}

// WithCacheSize changes how many recent messages the adapter remembers to
// resolve the old content of edited and deleted messages.
func WithCacheSize(n int) Option {
	return func(conf *Config) error {
		conf.CacheSize = n
		return nil
	}
}

// WithSendRate changes the rate limit that is applied to all outgoing
// messages of the adapter.
func WithSendRate(perSecond float64, burst int) Option {
	return func(conf *Config) error {
		conf.SendsPerSecond = perSecond
		conf.SendBurst = burst
		return nil
	}
}

// WithMetrics lets the adapter report the latency of its outbound Discord
// calls.
func WithMetrics(m metrics.Metrics) Option {
	return func(conf *Config) error {
		conf.Metrics = m
		return nil
	}
}
