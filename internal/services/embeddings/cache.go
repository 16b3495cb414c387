package embeddings

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// cache is a content-addressed, in-memory embedding cache keyed on
// sha256(model || text). It is valid only for the process lifetime (spec
// §4.3): nothing here is persisted, so a restart always re-embeds.
type cache struct {
	mu    sync.RWMutex
	model string
	data  map[string][]float32
}

func newCache(model string) *cache {
	return &cache{model: model, data: make(map[string][]float32)}
}

func (c *cache) key(text string) string {
	h := sha256.New()
	h.Write([]byte(c.model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *cache) Get(text string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[c.key(text)]
	return v, ok
}

func (c *cache) Put(text string, v []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[c.key(text)] = v
}

func (c *cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
