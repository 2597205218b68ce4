package discord

import "sync"

// The messageCache remembers the content of recently seen messages. Discord
// does not include the original content in edit and delete gateway events so
// the adapter keeps its own bounded copy to fill the OldText and Text fields
// of the corresponding warden events.
type messageCache struct {
	mu    sync.Mutex
	size  int
	order []string // message IDs in arrival order, oldest first
	byID  map[string]cachedMessage
}

type cachedMessage struct {
	text     string
	authorID string
}

func newMessageCache(size int) *messageCache {
	return &messageCache{
		size: size,
		byID: make(map[string]cachedMessage, size),
	}
}

func (c *messageCache) add(id, text, authorID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byID[id]; !ok {
		c.order = append(c.order, id)
	}

	c.byID[id] = cachedMessage{text: text, authorID: authorID}

	for len(c.order) > c.size {
		delete(c.byID, c.order[0])
		c.order = c.order[1:]
	}
}

func (c *messageCache) get(id string) (cachedMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg, ok := c.byID[id]
	return msg, ok
}

// remove returns and forgets the cached message. Its ID stays in the arrival
// order and falls out of the window like any other entry.
func (c *messageCache) remove(id string) (cachedMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg, ok := c.byID[id]
	if ok {
		delete(c.byID, id)
	}

	return msg, ok
}
