package warden

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// A Module is an optional Bot extension that can add new capabilities such as
// a different chat Adapter or Memory implementation.
type Module interface {
	Apply(*Config) error
}

// ModuleFunc is a function implementation of a Module.
type ModuleFunc func(*Config) error

// Apply implements the Module interface.
func (f ModuleFunc) Apply(conf *Config) error {
	return f(conf)
}

// An Option is a function that can be passed to New() to change the Config of
// the Bot before it is started.
type Option = ModuleFunc

// Config is the configuration of a Bot that can be used or changed during
// setup in a Module. Some configuration settings such as the Logger are
// read only after the bot was created (changing them has no effect), which
// is why Modules should be passed directly to New(…).
type Config struct {
	Context        context.Context
	Name           string
	Prefix         string // the command prefix, defaults to "!"
	HandlerTimeout time.Duration

	logger  *zap.Logger
	brain   *Brain
	store   *Storage
	adapter Adapter
	errs    []error
}

// NewConfig creates a new Config that can be used in unit tests of Modules.
func NewConfig(logger *zap.Logger, brain *Brain, store *Storage, adapter Adapter) Config {
	return Config{
		Context: context.Background(),
		logger:  logger,
		brain:   brain,
		store:   store,
		adapter: adapter,
	}
}

// EventEmitter returns the EventEmitter that can be used to send events to
// the Bot and other Modules.
func (c *Config) EventEmitter() EventEmitter {
	return c.brain
}

// Logger returns a new named logger.
func (c *Config) Logger(name string) *zap.Logger {
	return c.logger.Named(name)
}

// SetMemory can be used to change the Memory implementation of the bot.
func (c *Config) SetMemory(mem Memory) {
	c.store.SetMemory(mem)
}

// SetMemoryEncoder can be used to change the MemoryEncoder implementation of
// the bot.
func (c *Config) SetMemoryEncoder(enc MemoryEncoder) {
	c.store.SetMemoryEncoder(enc)
}

// SetAdapter can be used to change the Adapter implementation of the Bot.
func (c *Config) SetAdapter(a Adapter) {
	c.adapter = a
}

// RegisterHandler can be used to register an event handler in a Module.
func (c *Config) RegisterHandler(fun interface{}) {
	c.brain.RegisterHandler(fun)
}

// WithContext returns an Option to run the bot with a custom context.
// By default the bot is run with a context that is canceled upon receiving a
// SIGINT or SIGTERM.
func WithContext(ctx context.Context) Option {
	return func(conf *Config) error {
		conf.Context = ctx
		return nil
	}
}

// WithHandlerTimeout returns an Option to run the bot with a timeout that is
// applied to each executed event handler. By default no timeout is enforced.
func WithHandlerTimeout(timeout time.Duration) Option {
	return func(conf *Config) error {
		conf.HandlerTimeout = timeout
		return nil
	}
}

// WithPrefix returns an Option that changes the prefix that Bot.Command(…)
// handlers respond to. The default prefix is "!".
func WithPrefix(prefix string) Option {
	return func(conf *Config) error {
		conf.Prefix = prefix
		return nil
	}
}

// WithLogger returns an Option that replaces the default logger of the bot.
func WithLogger(logger *zap.Logger) Option {
	return func(conf *Config) error {
		conf.logger = logger
		conf.brain.logger = logger.Named("brain")
		conf.store.logger = logger.Named("store")
		return nil
	}
}
