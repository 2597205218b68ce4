// Package file implements a memory for the warden bot that persists all
// keys into a single JSON file. Values pass through as raw JSON, so the
// file stays readable and editable by hand as long as the bot uses the
// default JSON memory encoder.
package file

import (
	"encoding/json"
	"os"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/go-warden/warden"
)

// Memory is a warden.Memory that writes every change to a JSON file.
type Memory struct {
	path   string
	logger *zap.Logger

	mu   sync.Mutex
	data map[string]json.RawMessage
}

// An Option configures a Memory during NewMemory.
type Option func(*Memory) error

// WithLogger changes the logger of the memory.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Memory) error {
		m.logger = logger
		return nil
	}
}

// Module configures a bot to persist its memory in the JSON file at the
// given path.
func Module(path string, opts ...Option) warden.Module {
	return warden.ModuleFunc(func(conf *warden.Config) error {
		opts = append([]Option{WithLogger(conf.Logger("memory"))}, opts...)

		memory, err := NewMemory(path, opts...)
		if err != nil {
			return err
		}

		conf.SetMemory(memory)
		return nil
	})
}

// NewMemory loads the JSON file at the given path. A missing file is not an
// error, it simply means an empty memory; the file appears with the first
// write.
func NewMemory(path string, opts ...Option) (*Memory, error) {
	memory := &Memory{
		path: path,
		data: map[string]json.RawMessage{},
	}

	for _, opt := range opts {
		err := opt(memory)
		if err != nil {
			return nil, err
		}
	}

	if memory.logger == nil {
		memory.logger = zap.NewNop()
	}

	memory.logger.Debug("Opening memory file", zap.String("path", path))
	f, err := os.Open(path)
	switch {
	case os.IsNotExist(err):
		memory.logger.Debug("File does not exist. Continuing with empty memory", zap.String("path", path))
	case err != nil:
		return nil, errors.Wrap(err, "failed to open file")
	default:
		err := json.NewDecoder(f).Decode(&memory.data)
		_ = f.Close()
		if err != nil {
			return nil, errors.Wrap(err, "failed to decode data as JSON")
		}
	}

	memory.logger.Info("Memory initialized successfully",
		zap.String("path", path),
		zap.Int("num_keys", len(memory.data)),
	)

	return memory, nil
}

func (m *Memory) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data == nil {
		return errors.New("file memory was already closed")
	}

	if !json.Valid(value) {
		return errors.New("value is no valid JSON; the file memory requires the JSON memory encoder")
	}

	m.logger.Debug("Writing data to memory", zap.String("key", key))
	m.data[key] = value

	return m.persist()
}

func (m *Memory) Get(key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data == nil {
		return nil, false, errors.New("file memory was already closed")
	}

	m.logger.Debug("Retrieving data from memory", zap.String("key", key))
	value, ok := m.data[key]
	return value, ok, nil
}

func (m *Memory) Delete(key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data == nil {
		return false, errors.New("file memory was already closed")
	}

	m.logger.Debug("Deleting data from memory", zap.String("key", key))
	_, ok := m.data[key]
	if !ok {
		return false, nil
	}

	delete(m.data, key)
	return ok, m.persist()
}

func (m *Memory) Keys() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data == nil {
		return nil, errors.New("file memory was already closed")
	}

	keys := make([]string, 0, len(m.data))
	for key := range m.data {
		keys = append(keys, key)
	}

	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data == nil {
		return errors.New("file memory was already closed")
	}

	m.logger.Debug("Closing memory file", zap.String("path", m.path))
	m.data = nil

	return nil
}

func (m *Memory) persist() error {
	f, err := os.OpenFile(m.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0660)
	if err != nil {
		return errors.Wrap(err, "failed to open file to persist data")
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	err = enc.Encode(m.data)
	if err != nil {
		_ = f.Close()
		return errors.Wrap(err, "failed to encode data as JSON")
	}

	err = f.Close()
	if err != nil {
		return errors.Wrap(err, "failed to close file; data might not have been fully persisted to disk")
	}

	return nil
}
