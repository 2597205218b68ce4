package file

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/go-warden/warden"
)

func tempPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "memory.json")
}

func TestMemory(t *testing.T) {
	path := tempPath(t)
	m, err := NewMemory(path, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	val, ok, err := m.Get("test")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, val)

	require.NoError(t, m.Set("test", []byte(`"value"`)))
	require.NoError(t, m.Set("zzz", []byte(`{"n":42}`)))

	val, ok, err = m.Get("test")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `"value"`, string(val))

	keys, err := m.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"test", "zzz"}, keys)

	ok, err = m.Delete("test")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Delete("does-not-exist")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_Persistence(t *testing.T) {
	path := tempPath(t)

	m1, err := NewMemory(path, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	require.NoError(t, m1.Set("guild-1", []byte(`{"cooldown":7200}`)))
	require.NoError(t, m1.Set("guild-2", []byte(`{"cooldown":600}`)))
	require.NoError(t, m1.Close())

	// A new memory on the same path sees everything again.
	m2, err := NewMemory(path, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	val, ok, err := m2.Get("guild-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"cooldown":7200}`, string(val))

	keys, err := m2.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"guild-1", "guild-2"}, keys)
}

func TestMemory_FileIsReadableJSON(t *testing.T) {
	path := tempPath(t)

	m, err := NewMemory(path)
	require.NoError(t, err)
	require.NoError(t, m.Set("test", []byte(`{"hello":"world"}`)))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Contains(t, decoded, "test")
}

func TestMemory_RejectsInvalidJSON(t *testing.T) {
	m, err := NewMemory(tempPath(t))
	require.NoError(t, err)

	err = m.Set("test", []byte{0x01, 0x02})
	assert.EqualError(t, err, "value is no valid JSON; the file memory requires the JSON memory encoder")
}

func TestMemory_CorruptFile(t *testing.T) {
	path := tempPath(t)
	require.NoError(t, os.WriteFile(path, []byte("not json at all"), 0660))

	_, err := NewMemory(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode data as JSON")
}

func TestMemory_Closed(t *testing.T) {
	m, err := NewMemory(tempPath(t))
	require.NoError(t, err)
	require.NoError(t, m.Close())

	assert.EqualError(t, m.Set("k", []byte(`1`)), "file memory was already closed")
	_, _, err = m.Get("k")
	assert.EqualError(t, err, "file memory was already closed")
	_, err = m.Delete("k")
	assert.EqualError(t, err, "file memory was already closed")
	_, err = m.Keys()
	assert.EqualError(t, err, "file memory was already closed")
	assert.EqualError(t, m.Close(), "file memory was already closed")
}

func TestModule(t *testing.T) {
	path := tempPath(t)
	logger := zaptest.NewLogger(t)
	brain := warden.NewBrain(logger)
	conf := warden.NewConfig(logger, brain, warden.NewStorage(logger), nil)

	err := Module(path).Apply(&conf)
	require.NoError(t, err)

	// A path below an existing file cannot be opened.
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0660))
	mod := Module(filepath.Join(path, "memory.json"))
	assert.Error(t, mod.Apply(&conf), "an unreadable path must fail module setup")
}

func TestModule_StorageRoundtrip(t *testing.T) {
	path := tempPath(t)
	logger := zaptest.NewLogger(t)

	store := warden.NewStorage(logger)
	m, err := NewMemory(path)
	require.NoError(t, err)
	store.SetMemory(m)

	type remindConfig struct {
		Channel  string `json:"channel"`
		Cooldown int    `json:"cooldown"`
	}

	require.NoError(t, store.Set("remind.guild-1", remindConfig{Channel: "general", Cooldown: 7200}))

	store2 := warden.NewStorage(logger)
	m2, err := NewMemory(path)
	require.NoError(t, err)
	store2.SetMemory(m2)

	var cfg remindConfig
	ok, err := store2.Get("remind.guild-1", &cfg)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, remindConfig{Channel: "general", Cooldown: 7200}, cfg)
}
