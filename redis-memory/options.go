package redis

import "go.uber.org/zap"

// Config bundles all settings of a redis memory.
type Config struct {
	Addr     string
	Key      string
	Password string
	DB       int
	Logger   *zap.Logger
}

// An Option configures the redis memory during NewMemory.
type Option func(*Config) error

// WithConfig replaces the whole configuration at once.
func WithConfig(newConf Config) Option {
	return func(conf *Config) error {
		*conf = newConf
		return nil
	}
}

// WithLogger changes the logger of the memory.
func WithLogger(logger *zap.Logger) Option {
	return func(conf *Config) error {
		conf.Logger = logger
		return nil
	}
}

// WithKey changes the redis hash under which all keys are stored. The
// default is "warden-bot".
func WithKey(key string) Option {
	return func(conf *Config) error {
		conf.Key = key
		return nil
	}
}

// WithPassword sets the password used when connecting to redis.
func WithPassword(password string) Option {
	return func(conf *Config) error {
		conf.Password = password
		return nil
	}
}

// WithDB selects the redis database.
func WithDB(db int) Option {
	return func(conf *Config) error {
		conf.DB = db
		return nil
	}
}
