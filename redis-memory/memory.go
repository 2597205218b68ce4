// Package redis implements a memory for the warden bot that stores all keys
// in a single redis hash.
package redis

import (
	"github.com/go-redis/redis"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/go-warden/warden"
)

// Memory is a warden.Memory backed by redis.
type Memory struct {
	logger *zap.Logger
	Client *redis.Client
	hkey   string
}

// Module configures a bot to use redis at the given address as its memory.
func Module(addr string, opts ...Option) warden.Module {
	return warden.ModuleFunc(func(conf *warden.Config) error {
		opts = append([]Option{WithLogger(conf.Logger("memory"))}, opts...)

		memory, err := NewMemory(addr, opts...)
		if err != nil {
			return err
		}

		conf.SetMemory(memory)
		return nil
	})
}

// NewMemory connects to redis at the given address and pings it once to
// verify the connection.
func NewMemory(addr string, opts ...Option) (*Memory, error) {
	conf := Config{Addr: addr}
	for _, opt := range opts {
		err := opt(&conf)
		if err != nil {
			return nil, err
		}
	}

	if conf.Logger == nil {
		conf.Logger = zap.NewNop()
	}

	if conf.Key == "" {
		conf.Key = "warden-bot"
	}

	memory := &Memory{
		logger: conf.Logger,
		hkey:   conf.Key,
	}

	memory.logger.Debug("Connecting to redis memory",
		zap.String("addr", conf.Addr),
		zap.String("key", conf.Key),
	)

	memory.Client = redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})

	_, err := memory.Client.Ping().Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to ping redis")
	}

	memory.logger.Info("Memory initialized successfully")
	return memory, nil
}

func (m *Memory) Set(key string, value []byte) error {
	m.logger.Debug("Writing data to memory", zap.String("key", key))
	resp := m.Client.HSet(m.hkey, key, value)
	return resp.Err()
}

func (m *Memory) Get(key string) ([]byte, bool, error) {
	m.logger.Debug("Retrieving data from memory", zap.String("key", key))
	res, err := m.Client.HGet(m.hkey, key).Bytes()
	switch {
	case err == redis.Nil:
		return nil, false, nil
	case err != nil:
		return nil, false, err
	default:
		return res, true, nil
	}
}

func (m *Memory) Delete(key string) (bool, error) {
	m.logger.Debug("Deleting data from memory", zap.String("key", key))
	res, err := m.Client.HDel(m.hkey, key).Result()
	return res > 0, err
}

func (m *Memory) Keys() ([]string, error) {
	return m.Client.HKeys(m.hkey).Result()
}

func (m *Memory) Close() error {
	return m.Client.Close()
}
