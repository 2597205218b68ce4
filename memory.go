package warden

// inMemory is the default Memory of a bot. It is all of "in-memory",
// non-persistent and not safe for concurrent access (the Storage is
// responsible for synchronizing concurrent access).
type inMemory struct {
	data map[string][]byte
}

func newInMemory() *inMemory {
	return &inMemory{data: map[string][]byte{}}
}

func (m *inMemory) Set(key string, value []byte) error {
	m.data[key] = value
	return nil
}

func (m *inMemory) Get(key string) ([]byte, bool, error) {
	value, ok := m.data[key]
	return value, ok, nil
}

func (m *inMemory) Delete(key string) (bool, error) {
	_, ok := m.data[key]
	delete(m.data, key)
	return ok, nil
}

func (m *inMemory) Keys() ([]string, error) {
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}

	return keys, nil
}

func (m *inMemory) Close() error {
	m.data = map[string][]byte{}
	return nil
}
